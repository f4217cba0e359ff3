package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/platform/openai"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
)

const maxLoggedPayload = 16 << 10

// Structurer converts a raw summary into a schema-validated report of one kind.
type Structurer interface {
	Structure(ctx context.Context, rawText string) (*reports.StructuredReport, error)
	Kind() reports.Kind
}

type structurer struct {
	log     *logger.Logger
	client  openai.Client
	prompts *promptconfig.Prompts
	kind    reports.Kind
}

func NewStructurer(baseLog *logger.Logger, client openai.Client, prompts *promptconfig.Prompts, kind reports.Kind) Structurer {
	return &structurer{
		log:     baseLog.With("service", "Structurer", "report_kind", kind),
		client:  client,
		prompts: prompts,
		kind:    kind,
	}
}

func (s *structurer) Kind() reports.Kind { return s.kind }

func (s *structurer) Structure(ctx context.Context, rawText string) (*reports.StructuredReport, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, apierr.Upstream("structuring_failed", errors.New("raw summary is empty"))
	}
	system, err := s.prompts.StructuringSystem(s.kind, rawText)
	if err != nil {
		return nil, apierr.Upstream("structuring_failed", err)
	}
	name, schema := reports.JSONSchema(s.kind)

	text, err := s.client.GenerateJSON(ctx, system, s.prompts.Structuring.User, name, schema)
	if err != nil {
		return nil, apierr.Upstream("structuring_failed", fmt.Errorf("structuring request failed: %w", err))
	}

	out, err := reports.DecodeStructured(s.kind, []byte(text))
	if err != nil {
		observability.Current().IncSchemaFailure(string(s.kind))
		s.log.Warn("Structured report rejected",
			append(ctxutil.LogFields(ctx), "error", err, "model", s.client.Model(), "raw_payload", truncate(text, maxLoggedPayload))...,
		)
		return nil, apierr.Schema("structured_report_invalid", err)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
