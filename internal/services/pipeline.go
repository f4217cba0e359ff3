package services

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	repos "github.com/navincodesalot/moonshot/internal/data/repos/reports"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
	"github.com/navincodesalot/moonshot/internal/realtime"
	"github.com/navincodesalot/moonshot/internal/realtime/bus"
)

const (
	DefaultRunStaleAfter = 30 * time.Minute
	errorWriteTimeout    = 15 * time.Second
)

// AnalysisResult is returned by a successful run. StructuredReport holds the
// exact bytes persisted on the report.
type AnalysisResult struct {
	ReportID         string          `json:"reportId"`
	Status           reports.Status  `json:"status"`
	ReportKind       reports.Kind    `json:"reportKind"`
	StructuredReport json.RawMessage `json:"structuredReport"`
	ProcessingTimeMs int64           `json:"processingTimeMs"`
}

type PipelineService interface {
	// RunAnalysis drives one report through analyzing -> processing -> complete,
	// or to error with the failure persisted. It ignores cancellation of ctx.
	RunAnalysis(ctx context.Context, reportID string) (*AnalysisResult, error)
}

type PipelineConfig struct {
	// StaleAfter lets a new run take over an in-flight one untouched this long.
	// Zero disables takeover.
	StaleAfter time.Duration
}

type pipelineService struct {
	log        *logger.Logger
	repo       repos.ReportRepo
	summarizer Summarizer
	structurer Structurer
	prompts    *promptconfig.Prompts
	events     bus.Bus
	cfg        PipelineConfig
	now        func() time.Time
}

func NewPipelineService(
	baseLog *logger.Logger,
	repo repos.ReportRepo,
	summarizer Summarizer,
	structurer Structurer,
	prompts *promptconfig.Prompts,
	events bus.Bus,
	cfg PipelineConfig,
) PipelineService {
	if events == nil {
		events = bus.Nop()
	}
	return &pipelineService{
		log:        baseLog.With("service", "PipelineService"),
		repo:       repo,
		summarizer: summarizer,
		structurer: structurer,
		prompts:    prompts,
		events:     events,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *pipelineService) RunAnalysis(ctx context.Context, reportID string) (out *AnalysisResult, err error) {
	ctx = context.WithoutCancel(ctxutil.Default(ctx))
	ctx, span := observability.StartSpan(ctx, "pipeline.run_analysis", attribute.String("report.id", reportID))
	defer func() { observability.EndSpan(span, err) }()

	dbc := dbctx.From(ctx)
	rep, err := s.repo.GetByID(dbc, reportID)
	if err != nil {
		return nil, storeError(err)
	}

	start := s.now()
	var staleBefore time.Time
	if s.cfg.StaleAfter > 0 {
		staleBefore = start.Add(-s.cfg.StaleAfter)
	}
	analyzing := reports.StatusAnalyzing
	rep, err = s.repo.Transition(dbc, rep.ID.String(), reports.RunStartStatuses, staleBefore,
		reports.Patch{Status: &analyzing, ResetRun: true})
	if err != nil {
		return nil, storeError(err)
	}
	s.publish(ctx, rep)

	id := rep.ID.String()
	log := s.log.With(append(ctxutil.LogFields(ctx), "report_id", id)...)
	log.Info("Analysis started", "source_file_ref", rep.SourceFileRef)

	finish := observability.Current().PipelineStarted()
	outcome := "error"
	defer func() { finish(outcome) }()
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = apierr.Upstream("analysis_panicked", fmt.Errorf("analysis panicked: %v", r))
			log.Error("Analysis panicked", "panic", r, "stack", string(debug.Stack()))
			s.fail(ctx, log, id, err)
		}
	}()

	out, err = s.run(ctx, log, rep, start)
	if err != nil {
		log.Warn("Analysis failed", "error", err, "code", apierr.CodeOf(err))
		s.fail(ctx, log, id, err)
		return nil, err
	}
	outcome = "complete"
	log.Info("Analysis complete", "processing_time_ms", out.ProcessingTimeMs, "report_kind", out.ReportKind)
	return out, nil
}

func (s *pipelineService) run(ctx context.Context, log *logger.Logger, rep *reports.Report, start time.Time) (*AnalysisResult, error) {
	id := rep.ID.String()
	dbc := dbctx.From(ctx)

	var raw string
	err := s.stage(ctx, "summarize", func(ctx context.Context) error {
		var err error
		raw, err = s.summarizer.Summarize(ctx, rep.SourceFileRef, s.prompts.Summarize)
		return err
	})
	if err != nil {
		return nil, err
	}

	processing := reports.StatusProcessing
	rep, err = s.repo.Update(dbc, id, reports.Patch{Status: &processing, RawSummary: &raw})
	if err != nil {
		return nil, storeError(err)
	}
	s.publish(ctx, rep)
	log.Debug("Raw summary persisted", "raw_summary_bytes", len(raw))

	var structured *reports.StructuredReport
	err = s.stage(ctx, "structure", func(ctx context.Context) error {
		var err error
		structured, err = s.structurer.Structure(ctx, raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(structured)
	if err != nil {
		return nil, apierr.Schema("structured_report_invalid", fmt.Errorf("encode structured report: %w", err))
	}

	elapsed := s.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	complete := reports.StatusComplete
	kind := structured.Kind
	rep, err = s.repo.Update(dbc, id, reports.Patch{
		Status:           &complete,
		ReportKind:       &kind,
		StructuredReport: payload,
		ProcessingTimeMs: &elapsed,
	})
	if err != nil {
		return nil, storeError(err)
	}
	s.publish(ctx, rep)

	return &AnalysisResult{
		ReportID:         id,
		Status:           rep.Status,
		ReportKind:       kind,
		StructuredReport: payload,
		ProcessingTimeMs: elapsed,
	}, nil
}

func (s *pipelineService) stage(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	ctx, span := observability.StartSpan(ctx, "pipeline."+name)
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.Current().ObserveStage(name, status, time.Since(start))
		observability.EndSpan(span, err)
	}()
	return fn(ctx)
}

// fail persists the error state. Its own failures are logged and dropped so
// the run's original error is what reaches the caller.
func (s *pipelineService) fail(ctx context.Context, log *logger.Logger, id string, cause error) {
	ctx, cancel := context.WithTimeout(ctx, errorWriteTimeout)
	defer cancel()
	status := reports.StatusError
	msg := cause.Error()
	rep, err := s.repo.Update(dbctx.From(ctx), id, reports.Patch{Status: &status, ErrorMessage: &msg})
	if err != nil {
		log.Error("Could not persist error state", "error", err, "cause", cause)
		return
	}
	s.publish(ctx, rep)
}

func (s *pipelineService) publish(ctx context.Context, rep *reports.Report) {
	if rep == nil {
		return
	}
	if err := s.events.Publish(ctx, realtime.EventFor(rep)); err != nil {
		s.log.Warn("Report event publish failed", "report_id", rep.ID.String(), "status", rep.Status, "error", err)
	}
}
