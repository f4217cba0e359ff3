package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
	"github.com/navincodesalot/moonshot/internal/platform/vss"
)

// Summarizer turns an intake file ref into unstructured, timestamped text.
// Implementations make exactly one upstream attempt.
type Summarizer interface {
	Summarize(ctx context.Context, fileRef string, prompts promptconfig.Summarize) (string, error)
}

type vssSummarizer struct {
	log    *logger.Logger
	client vss.Client
}

func NewVSSSummarizer(baseLog *logger.Logger, client vss.Client) Summarizer {
	return &vssSummarizer{log: baseLog.With("service", "VSSSummarizer"), client: client}
}

func (s *vssSummarizer) Summarize(ctx context.Context, fileRef string, prompts promptconfig.Summarize) (string, error) {
	text, err := s.client.Summarize(ctx, vss.SummarizeRequest{
		FileID:                     fileRef,
		Prompt:                     prompts.Prompt,
		SystemPrompt:               prompts.SystemPrompt,
		CaptionSummarizationPrompt: prompts.CaptionSummarizationPrompt,
		SummaryAggregationPrompt:   prompts.SummaryAggregationPrompt,
	})
	if err != nil {
		return "", apierr.Upstream("summarization_failed", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", apierr.Upstream("summarization_failed", errors.New("VSS summarize returned no text"))
	}
	return text, nil
}

type videoAISummarizer struct {
	log       *logger.Logger
	annotator gcp.VideoAnnotator
	cfg       gcp.VideoAIConfig
}

// NewVideoAISummarizer annotates gs:// refs with Cloud Video Intelligence.
// Prompts do not apply; the annotation is rendered as start:end:caption lines.
func NewVideoAISummarizer(baseLog *logger.Logger, annotator gcp.VideoAnnotator, cfg gcp.VideoAIConfig) Summarizer {
	return &videoAISummarizer{log: baseLog.With("service", "VideoAISummarizer"), annotator: annotator, cfg: cfg}
}

func (s *videoAISummarizer) Summarize(ctx context.Context, fileRef string, _ promptconfig.Summarize) (string, error) {
	res, err := s.annotator.Annotate(ctx, fileRef, s.cfg)
	if err != nil {
		return "", apierr.Upstream("summarization_failed", err)
	}
	for _, w := range res.Warnings {
		s.log.Warn("Video annotation warning", "file_ref", fileRef, "warning", w)
	}
	text := res.Render()
	if text == "" {
		return "", apierr.Upstream("summarization_failed", fmt.Errorf("video annotation of %s produced no segments", fileRef))
	}
	return text, nil
}
