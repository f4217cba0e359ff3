package gcp

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

// VideoAnnotator describes a stored video with Cloud Video Intelligence.
type VideoAnnotator interface {
	Annotate(ctx context.Context, gcsURI string, cfg VideoAIConfig) (*VideoAIResult, error)
	Close() error
}

type VideoAIConfig struct {
	LanguageCode string
	// Labels below this confidence are dropped.
	MinLabelConfidence float32
	Timeout            time.Duration
}

type SegmentKind string

const (
	SegmentLabel  SegmentKind = "label"
	SegmentShot   SegmentKind = "shot"
	SegmentText   SegmentKind = "on_screen_text"
	SegmentSpeech SegmentKind = "speech"
)

type Segment struct {
	Kind       SegmentKind
	StartSec   float64
	EndSec     float64
	Text       string
	Confidence float32
}

type VideoAIResult struct {
	SourceURI string
	Segments  []Segment
	Warnings  []string
}

// Render prints segments as start:end:caption lines in time order, the same
// caption format the summarization prompts ask for.
func (r *VideoAIResult) Render() string {
	if r == nil {
		return ""
	}
	segs := append([]Segment(nil), r.Segments...)
	sort.SliceStable(segs, func(i, j int) bool {
		if segs[i].StartSec == segs[j].StartSec {
			return segs[i].EndSec < segs[j].EndSec
		}
		return segs[i].StartSec < segs[j].StartSec
	})
	var b strings.Builder
	for _, s := range segs {
		text := strings.Join(strings.Fields(s.Text), " ")
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "%s:%s:[%s] %s\n", formatSec(s.StartSec), formatSec(s.EndSec), s.Kind, text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}

type videoAnnotator struct {
	log    *logger.Logger
	client *videointelligence.Client
}

func NewVideoAnnotator(ctx context.Context, log *logger.Logger, credentials string) (VideoAnnotator, error) {
	c, err := videointelligence.NewClient(ctx, ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	return &videoAnnotator{log: log.With("service", "gcp.VideoAnnotator"), client: c}, nil
}

func (s *videoAnnotator) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *videoAnnotator) Annotate(ctx context.Context, gcsURI string, cfg VideoAIConfig) (*VideoAIResult, error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return nil, fmt.Errorf("gcsURI must be gs://... got %q", gcsURI)
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), cfg.Timeout)
	defer cancel()

	req := &vipb.AnnotateVideoRequest{
		InputUri: gcsURI,
		Features: []vipb.Feature{
			vipb.Feature_LABEL_DETECTION,
			vipb.Feature_SHOT_CHANGE_DETECTION,
			vipb.Feature_TEXT_DETECTION,
			vipb.Feature_SPEECH_TRANSCRIPTION,
		},
		VideoContext: &vipb.VideoContext{
			LabelDetectionConfig: &vipb.LabelDetectionConfig{
				LabelDetectionMode: vipb.LabelDetectionMode_SHOT_AND_FRAME_MODE,
			},
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               cfg.LanguageCode,
				EnableAutomaticPunctuation: true,
			},
			TextDetectionConfig: &vipb.TextDetectionConfig{},
		},
	}

	start := time.Now()
	op, err := s.client.AnnotateVideo(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	resp, err := op.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	out := &VideoAIResult{SourceURI: gcsURI}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		out.Warnings = append(out.Warnings, "no annotation results")
		return out, nil
	}
	out.Segments = SegmentsFromAnnotation(resp.AnnotationResults[0], cfg.MinLabelConfidence)
	s.log.Info("Video annotated",
		append(ctxutil.LogFields(ctx), "uri", gcsURI, "segments", len(out.Segments), "duration_ms", time.Since(start).Milliseconds())...,
	)
	return out, nil
}

// SegmentsFromAnnotation flattens one annotation result into timed segments.
func SegmentsFromAnnotation(ar *vipb.VideoAnnotationResults, minLabelConfidence float32) []Segment {
	if ar == nil {
		return nil
	}
	out := []Segment{}
	for _, la := range append(append([]*vipb.LabelAnnotation{}, ar.SegmentLabelAnnotations...), ar.ShotLabelAnnotations...) {
		if la == nil || la.Entity == nil {
			continue
		}
		for _, ls := range la.Segments {
			if ls == nil || ls.Segment == nil || ls.Confidence < minLabelConfidence {
				continue
			}
			out = append(out, Segment{
				Kind:       SegmentLabel,
				StartSec:   durToSec(ls.Segment.StartTimeOffset),
				EndSec:     durToSec(ls.Segment.EndTimeOffset),
				Text:       la.Entity.Description,
				Confidence: ls.Confidence,
			})
		}
	}
	for i, sh := range ar.ShotAnnotations {
		if sh == nil {
			continue
		}
		out = append(out, Segment{
			Kind:     SegmentShot,
			StartSec: durToSec(sh.StartTimeOffset),
			EndSec:   durToSec(sh.EndTimeOffset),
			Text:     fmt.Sprintf("camera shot %d", i+1),
		})
	}
	for _, ta := range ar.TextAnnotations {
		if ta == nil || strings.TrimSpace(ta.Text) == "" {
			continue
		}
		for _, seg := range ta.Segments {
			if seg == nil || seg.Segment == nil {
				continue
			}
			out = append(out, Segment{
				Kind:       SegmentText,
				StartSec:   durToSec(seg.Segment.StartTimeOffset),
				EndSec:     durToSec(seg.Segment.EndTimeOffset),
				Text:       ta.Text,
				Confidence: seg.Confidence,
			})
		}
	}
	for _, tr := range ar.SpeechTranscriptions {
		if tr == nil || len(tr.Alternatives) == 0 || tr.Alternatives[0] == nil {
			continue
		}
		alt := tr.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		seg := Segment{Kind: SegmentSpeech, Text: alt.Transcript, Confidence: alt.Confidence}
		if n := len(alt.Words); n > 0 && alt.Words[0] != nil && alt.Words[n-1] != nil {
			seg.StartSec = durToSec(alt.Words[0].StartTime)
			seg.EndSec = durToSec(alt.Words[n-1].EndTime)
		}
		out = append(out, seg)
	}
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
