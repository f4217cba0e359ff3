package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/navincodesalot/moonshot/internal/data/repos/testutil"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/httpx"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
)

type pipelineFixture struct {
	repo       *countingRepo
	summarizer *fakeSummarizer
	structurer *fakeStructurer
	events     *recordingBus
	svc        PipelineService
}

func newPipeline(t *testing.T) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		repo:       newTestRepo(t),
		summarizer: &fakeSummarizer{text: "0.0:12.0:worker frames a wall"},
		structurer: &fakeStructurer{raw: validActivityJSON},
		events:     &recordingBus{},
	}
	f.svc = NewPipelineService(testutil.Logger(t), f.repo, f.summarizer, f.structurer,
		promptconfig.Default(), f.events, PipelineConfig{StaleAfter: DefaultRunStaleAfter})
	return f
}

func (f *pipelineFixture) create(t *testing.T) *reports.Report {
	t.Helper()
	rep, err := f.repo.Create(dbctx.Background(), &reports.Report{SourceFileRef: "file-123", VideoFilename: "site.mp4"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return rep
}

func (f *pipelineFixture) get(t *testing.T, id string) *reports.Report {
	t.Helper()
	rep, err := f.repo.GetByID(dbctx.Background(), id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	return rep
}

func TestRunAnalysisSuccess(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)

	out, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
	if err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if out.Status != reports.StatusComplete || out.ReportKind != reports.KindActivity || out.ProcessingTimeMs < 0 {
		t.Fatalf("result: got=%+v", out)
	}
	if f.summarizer.gotRef != "file-123" {
		t.Fatalf("summarizer ref: want=file-123 got=%q", f.summarizer.gotRef)
	}
	if f.summarizer.prompts.Prompt == "" || f.summarizer.prompts.SummaryAggregationPrompt == "" {
		t.Fatalf("summarizer should receive the configured prompts")
	}
	if f.structurer.got != "0.0:12.0:worker frames a wall" {
		t.Fatalf("structurer input: got=%q", f.structurer.got)
	}

	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusComplete {
		t.Fatalf("status: want=complete got=%q", stored.Status)
	}
	if stored.RawSummary == nil || *stored.RawSummary != "0.0:12.0:worker frames a wall" {
		t.Fatalf("raw summary: got=%v", stored.RawSummary)
	}
	if stored.ErrorMessage != nil {
		t.Fatalf("error message should be absent: got=%q", *stored.ErrorMessage)
	}
	if stored.ProcessingTimeMs == nil || *stored.ProcessingTimeMs != out.ProcessingTimeMs {
		t.Fatalf("processing time: want=%d got=%v", out.ProcessingTimeMs, stored.ProcessingTimeMs)
	}
	if string(stored.StructuredReport) != string(out.StructuredReport) {
		t.Fatalf("stored payload differs from returned payload:\nstored=%s\nreturned=%s", stored.StructuredReport, out.StructuredReport)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(out.StructuredReport, &decoded); err != nil {
		t.Fatalf("structured report is not JSON: %v", err)
	}
	if string(decoded["Scores"]) == "" || !strings.Contains(string(decoded["Scores"]), `"85"`) {
		t.Fatalf("string score should keep its representation: %s", decoded["Scores"])
	}

	want := []reports.Status{reports.StatusAnalyzing, reports.StatusProcessing, reports.StatusComplete}
	if got := f.events.Statuses(); !equalStatuses(got, want) {
		t.Fatalf("events: want=%v got=%v", want, got)
	}
}

func TestRunAnalysisMissingReportWritesNothing(t *testing.T) {
	f := newPipeline(t)
	for _, id := range []string{"6f1d2c1e-8a4b-4f5e-9a3c-2b1d0e9f8a7b", "garbage"} {
		_, err := f.svc.RunAnalysis(context.Background(), id)
		if apierr.StatusOf(err) != http.StatusNotFound {
			t.Fatalf("RunAnalysis(%q): want 404 got=%d (%v)", id, apierr.StatusOf(err), err)
		}
	}
	if f.repo.Writes() != 0 {
		t.Fatalf("writes: want=0 got=%d", f.repo.Writes())
	}
	if f.summarizer.calls != 0 {
		t.Fatalf("summarizer should not be called")
	}
}

func TestRunAnalysisSummarizerFailure(t *testing.T) {
	f := newPipeline(t)
	f.summarizer.err = apierr.Upstream("summarization_failed",
		&httpx.StatusError{Service: "VSS", Op: "summarize", StatusCode: 502, Body: "bad gateway"})
	rep := f.create(t)

	_, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
	if apierr.StatusOf(err) != http.StatusInternalServerError || apierr.CodeOf(err) != "summarization_failed" {
		t.Fatalf("error: got status=%d code=%q (%v)", apierr.StatusOf(err), apierr.CodeOf(err), err)
	}

	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusError {
		t.Fatalf("status: want=error got=%q", stored.Status)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "VSS summarize failed (502): bad gateway" {
		t.Fatalf("error message: got=%v", stored.ErrorMessage)
	}
	if stored.RawSummary != nil || stored.StructuredReport != nil {
		t.Fatalf("outputs must stay absent: raw=%v structured=%s", stored.RawSummary, stored.StructuredReport)
	}
}

func TestRunAnalysisSchemaFailure(t *testing.T) {
	bad := strings.Replace(validActivityJSON, `"value": 60`, `"value": 50`, 1)
	_, decodeErr := reports.DecodeStructured(reports.KindActivity, []byte(bad))
	if decodeErr == nil {
		t.Fatalf("fixture should violate the schema")
	}
	f := newPipeline(t)
	f.structurer.err = apierr.Schema("structured_report_invalid", decodeErr)
	rep := f.create(t)

	_, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
	if apierr.StatusOf(err) != http.StatusInternalServerError || apierr.KindOf(err) != apierr.KindSchema {
		t.Fatalf("error: got status=%d kind=%q (%v)", apierr.StatusOf(err), apierr.KindOf(err), err)
	}
	var se *reports.SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("error should wrap a SchemaError: %v", err)
	}

	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusError || stored.ErrorMessage == nil || *stored.ErrorMessage == "" {
		t.Fatalf("want error state with message, got status=%q msg=%v", stored.Status, stored.ErrorMessage)
	}
	if stored.StructuredReport != nil {
		t.Fatalf("structured report must be absent on error")
	}
	if stored.RawSummary == nil {
		t.Fatalf("raw summary from the summarize step should be kept")
	}
}

func TestRunAnalysisRetryClearsPreviousError(t *testing.T) {
	f := newPipeline(t)
	f.summarizer.err = errors.New("VSS summarize failed (500): boom")
	rep := f.create(t)
	if _, err := f.svc.RunAnalysis(context.Background(), rep.ID.String()); err == nil {
		t.Fatalf("first run should fail")
	}

	f.summarizer.err = nil
	if _, err := f.svc.RunAnalysis(context.Background(), rep.ID.String()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusComplete || stored.ErrorMessage != nil {
		t.Fatalf("retry should clear the error: status=%q msg=%v", stored.Status, stored.ErrorMessage)
	}
}

func TestRunAnalysisRejectsInFlightRun(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)

	analyzing := reports.StatusAnalyzing
	if _, err := f.repo.Update(dbctx.Background(), rep.ID.String(), reports.Patch{Status: &analyzing}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
	if apierr.StatusOf(err) != http.StatusConflict {
		t.Fatalf("want 409 got=%d (%v)", apierr.StatusOf(err), err)
	}
	if f.summarizer.calls != 0 {
		t.Fatalf("summarizer should not run for a rejected transition")
	}
	if got := f.get(t, rep.ID.String()).Status; got != reports.StatusAnalyzing {
		t.Fatalf("in-flight run must be left alone, got status=%q", got)
	}
}

func TestRunAnalysisConcurrentTriggersRunOnce(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)

	release := make(chan struct{})
	var once sync.Once
	f.summarizer.hook = func() { once.Do(func() { <-release }) }

	const n = 4
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
			errs <- err
		}()
	}
	// Losers return without blocking; the winner waits for release.
	deadline := time.After(5 * time.Second)
	conflicts := 0
	for conflicts < n-1 {
		select {
		case err := <-errs:
			if apierr.StatusOf(err) != http.StatusConflict {
				t.Fatalf("loser: want 409 got=%v", err)
			}
			conflicts++
		case <-deadline:
			t.Fatalf("timed out waiting for conflicts (got %d)", conflicts)
		}
	}
	close(release)
	wg.Wait()
	if err := <-errs; err != nil {
		t.Fatalf("winner: %v", err)
	}
	if f.summarizer.calls != 1 {
		t.Fatalf("summarizer calls: want=1 got=%d", f.summarizer.calls)
	}
}

func TestRunAnalysisIgnoresCallerCancellation(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)

	ctx, cancel := context.WithCancel(context.Background())
	f.summarizer.hook = cancel

	if _, err := f.svc.RunAnalysis(ctx, rep.ID.String()); err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
	if got := f.get(t, rep.ID.String()).Status; got != reports.StatusComplete {
		t.Fatalf("status: want=complete got=%q", got)
	}
}

func TestRunAnalysisRecoversPanic(t *testing.T) {
	f := newPipeline(t)
	f.structurer.panic = true
	rep := f.create(t)

	out, err := f.svc.RunAnalysis(context.Background(), rep.ID.String())
	if err == nil || out != nil {
		t.Fatalf("want error after panic, got out=%v err=%v", out, err)
	}
	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusError || stored.ErrorMessage == nil ||
		!strings.Contains(*stored.ErrorMessage, "structurer exploded") {
		t.Fatalf("panic should persist error state: status=%q msg=%v", stored.Status, stored.ErrorMessage)
	}
}

func TestRunAnalysisErrorWriteFailureKeepsOriginalError(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)
	f.summarizer.err = apierr.Upstream("summarization_failed", errors.New("VSS summarize failed (503): down"))

	broken := &failingUpdates{ReportRepo: f.repo, allow: 0, err: reports.ErrStoreUnavailable}
	svc := NewPipelineService(testutil.Logger(t), broken, f.summarizer, f.structurer,
		promptconfig.Default(), nil, PipelineConfig{})

	_, err := svc.RunAnalysis(context.Background(), rep.ID.String())
	if apierr.CodeOf(err) != "summarization_failed" {
		t.Fatalf("original error should win: code=%q err=%v", apierr.CodeOf(err), err)
	}
	if got := f.get(t, rep.ID.String()).Status; got != reports.StatusAnalyzing {
		t.Fatalf("status: want=analyzing (error write failed) got=%q", got)
	}
}

func TestRunAnalysisStoreFailureMidRun(t *testing.T) {
	f := newPipeline(t)
	rep := f.create(t)

	// The processing write fails; the error write after it succeeds.
	flaky := &flakyUpdate{ReportRepo: f.repo, failOn: 1, err: reports.ErrStoreUnavailable}
	svc := NewPipelineService(testutil.Logger(t), flaky, f.summarizer, f.structurer,
		promptconfig.Default(), nil, PipelineConfig{})

	_, err := svc.RunAnalysis(context.Background(), rep.ID.String())
	if apierr.KindOf(err) != apierr.KindStore {
		t.Fatalf("want store error, got kind=%q (%v)", apierr.KindOf(err), err)
	}
	stored := f.get(t, rep.ID.String())
	if stored.Status != reports.StatusError || stored.ErrorMessage == nil {
		t.Fatalf("want error state, got status=%q", stored.Status)
	}
}

func TestRunAnalysisPublishFailureIsIgnored(t *testing.T) {
	f := newPipeline(t)
	f.events.err = errors.New("redis down")
	rep := f.create(t)
	if _, err := f.svc.RunAnalysis(context.Background(), rep.ID.String()); err != nil {
		t.Fatalf("RunAnalysis: %v", err)
	}
}

func equalStatuses(a, b []reports.Status) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
