package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/services"
)

type fakeReports struct {
	uploaded  *services.UploadInput
	uploadErr error

	listPage, listLimit int
	reports             map[string]*reports.Report
	deleted             []string

	video      *services.VideoObject
	videoBytes []byte
	opened     [][2]int64
}

var _ services.ReportService = (*fakeReports)(nil)

func notFound() error {
	return apierr.NotFound("report_not_found", errors.New("Report not found"))
}

func (f *fakeReports) Upload(_ context.Context, in services.UploadInput) (*services.UploadResult, error) {
	f.uploaded = &in
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	rc, err := in.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	if _, err := io.ReadAll(rc); err != nil {
		return nil, err
	}
	return &services.UploadResult{ReportID: "r-1", FileID: "file-1"}, nil
}

func (f *fakeReports) List(_ context.Context, page, limit int) (*services.ReportPage, error) {
	f.listPage, f.listLimit = page, limit
	return &services.ReportPage{Reports: []*reports.Report{}, Pagination: services.Pagination{Page: page, Limit: limit}}, nil
}

func (f *fakeReports) Get(_ context.Context, id string) (*reports.Report, error) {
	if r, ok := f.reports[id]; ok {
		return r, nil
	}
	return nil, notFound()
}

func (f *fakeReports) UpdateNotes(ctx context.Context, id string, notes string) (*reports.Report, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.SupervisorNotes = notes
	return r, nil
}

func (f *fakeReports) Delete(ctx context.Context, id string) error {
	if _, err := f.Get(ctx, id); err != nil {
		return err
	}
	delete(f.reports, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeReports) Source(ctx context.Context, id string) (*services.SourceInfo, error) {
	r, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &services.SourceInfo{Provider: services.ProviderVSS, FileRef: r.SourceFileRef, Filename: r.VideoFilename}, nil
}

func (f *fakeReports) Video(ctx context.Context, id string) (*services.VideoObject, error) {
	if _, err := f.Get(ctx, id); err != nil {
		return nil, err
	}
	if f.video == nil {
		return nil, apierr.NotFound("video_not_archived", errors.New("No archived video for this report"))
	}
	return f.video, nil
}

func (f *fakeReports) OpenVideo(_ context.Context, _ *services.VideoObject, offset, length int64) (io.ReadCloser, error) {
	f.opened = append(f.opened, [2]int64{offset, length})
	end := int64(len(f.videoBytes))
	if length >= 0 {
		end = offset + length
	}
	return io.NopCloser(bytes.NewReader(f.videoBytes[offset:end])), nil
}

type fakePipeline struct {
	result *services.AnalysisResult
	err    error
	calls  []string
}

func (f *fakePipeline) RunAnalysis(_ context.Context, id string) (*services.AnalysisResult, error) {
	f.calls = append(f.calls, id)
	return f.result, f.err
}

func serve(t *testing.T, register func(r *gin.Engine), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, filename, contentType string, body []byte, notes string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(body); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if notes != "" {
		if err := w.WriteField("supervisorNotes", notes); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}
