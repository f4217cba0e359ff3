package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	repos "github.com/navincodesalot/moonshot/internal/data/repos/reports"
	"github.com/navincodesalot/moonshot/internal/data/repos/testutil"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/promptconfig"
	"github.com/navincodesalot/moonshot/internal/realtime"
)

const validActivityJSON = `{
  "Metadata": {
    "Work_Description": "Framing an interior wall with a nail gun",
    "Stream_Duration_Sec": 120,
    "Gen_Summary": ["Framed two studs", "Missing eye protection", "Short idle period", "Used level once", "Ladder was secured"]
  },
  "Recharts_Pie": [
    {"name": "Direct Work", "value": 60, "seconds": 72},
    {"name": "Tool & Material Handling", "value": 20, "seconds": 24},
    {"name": "Transition & Movement", "value": 10, "seconds": 12},
    {"name": "Idle & Distraction", "value": 5, "seconds": 6},
    {"name": "Safety/Quality Adjustment", "value": 5, "seconds": 6}
  ],
  "Recharts_Timeline": [
    {"category": "Direct Work", "start": 0, "end": 72, "task": "Nailing studs"}
  ],
  "Scores": {"Prod_Score": 88, "Qual_Score": "85", "Safe_Score": 70},
  "Descriptions": {"Prod_Desc": "Busy.", "Qual_Desc": "Measured once.", "Safe_Desc": "Wear glasses."}
}`

// countingRepo records writes so tests can assert a run touched nothing.
type countingRepo struct {
	repos.ReportRepo
	writes int32
}

func (r *countingRepo) Update(dbc dbctx.Context, id string, patch reports.Patch) (*reports.Report, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.ReportRepo.Update(dbc, id, patch)
}

func (r *countingRepo) Transition(dbc dbctx.Context, id string, from []reports.Status, staleBefore time.Time, patch reports.Patch) (*reports.Report, error) {
	atomic.AddInt32(&r.writes, 1)
	return r.ReportRepo.Transition(dbc, id, from, staleBefore, patch)
}

func (r *countingRepo) Writes() int { return int(atomic.LoadInt32(&r.writes)) }

// failingUpdates makes every Update after the first n fail.
type failingUpdates struct {
	repos.ReportRepo
	allow int32
	err   error
}

func (r *failingUpdates) Update(dbc dbctx.Context, id string, patch reports.Patch) (*reports.Report, error) {
	if atomic.AddInt32(&r.allow, -1) < 0 {
		return nil, r.err
	}
	return r.ReportRepo.Update(dbc, id, patch)
}

func newTestRepo(t *testing.T) *countingRepo {
	t.Helper()
	provider, _ := testutil.Provider(t)
	return &countingRepo{ReportRepo: repos.NewReportRepo(provider, testutil.Logger(t))}
}

type fakeSummarizer struct {
	text    string
	err     error
	calls   int32
	gotRef  string
	prompts promptconfig.Summarize
	hook    func()
}

func (f *fakeSummarizer) Summarize(_ context.Context, fileRef string, p promptconfig.Summarize) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.gotRef = fileRef
	f.prompts = p
	if f.hook != nil {
		f.hook()
	}
	return f.text, f.err
}

type fakeStructurer struct {
	raw   string
	err   error
	panic bool
	got   string
}

func (f *fakeStructurer) Kind() reports.Kind { return reports.KindActivity }

func (f *fakeStructurer) Structure(_ context.Context, rawText string) (*reports.StructuredReport, error) {
	f.got = rawText
	if f.panic {
		panic("structurer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return reports.DecodeStructured(reports.KindActivity, []byte(f.raw))
}

type fakeOpenAI struct {
	text       string
	err        error
	gotSystem  string
	gotUser    string
	gotName    string
	gotSchema  map[string]any
	callsCount int
}

func (f *fakeOpenAI) GenerateJSON(_ context.Context, system, user, name string, schema map[string]any) (string, error) {
	f.callsCount++
	f.gotSystem, f.gotUser, f.gotName, f.gotSchema = system, user, name, schema
	return f.text, f.err
}

func (f *fakeOpenAI) Model() string { return "gpt-test" }

type recordingBus struct {
	mu     sync.Mutex
	events []realtime.ReportEvent
	err    error
}

func (b *recordingBus) Publish(_ context.Context, ev realtime.ReportEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
	return b.err
}

func (b *recordingBus) StartForwarder(context.Context, func(realtime.ReportEvent)) error { return nil }
func (b *recordingBus) Close() error                                                    { return nil }

func (b *recordingBus) Statuses() []reports.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]reports.Status, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.Status)
	}
	return out
}

type fakeIntake struct {
	ref      string
	key      string
	err      error
	calls    int
	gotBody  string
	gotName  string
	describe *SourceInfo
}

func (f *fakeIntake) Provider() string { return "fake" }

func (f *fakeIntake) Upload(_ context.Context, file io.Reader, filename, _ string) (*Intake, error) {
	f.calls++
	f.gotName = filename
	b, _ := io.ReadAll(file)
	f.gotBody = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &Intake{FileRef: f.ref, StorageKey: f.key}, nil
}

func (f *fakeIntake) Describe(_ context.Context, fileRef string) (*SourceInfo, error) {
	if f.describe == nil {
		return nil, errors.New("no source")
	}
	out := *f.describe
	out.FileRef = fileRef
	return &out, nil
}

// memBucket is an in-memory gcp.VideoBucket.
type memBucket struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	deleteErr error
	deleted   []string
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memBucket) Upload(_ context.Context, key, contentType string, r io.Reader) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memBucket) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, key)
	return nil
}

func (b *memBucket) OpenRange(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	end := int64(len(data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(data[offset:end])), nil
}

func (b *memBucket) Attrs(_ context.Context, key string) (*gcp.ObjectAttrs, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, gcp.ErrObjectNotFound
	}
	return &gcp.ObjectAttrs{Size: int64(len(data)), ContentType: b.types[key]}, nil
}

func (b *memBucket) URI(key string) string { return "gs://mem/" + strings.TrimLeft(key, "/") }
func (b *memBucket) Name() string          { return "mem" }
func (b *memBucket) Close() error          { return nil }

func (b *memBucket) Has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func upload(body, filename, contentType string) UploadInput {
	return UploadInput{
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

// flakyUpdate fails only the failOn-th Update call (1-based).
type flakyUpdate struct {
	repos.ReportRepo
	n      int32
	failOn int32
	err    error
}

func (r *flakyUpdate) Update(dbc dbctx.Context, id string, patch reports.Patch) (*reports.Report, error) {
	if atomic.AddInt32(&r.n, 1) == r.failOn {
		return nil, r.err
	}
	return r.ReportRepo.Update(dbc, id, patch)
}
