package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/navincodesalot/moonshot/internal/data/repos/testutil"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
)

func newReportService(t *testing.T, intake *fakeIntake, archive *memBucket) (ReportService, *countingRepo) {
	t.Helper()
	repo := newTestRepo(t)
	var svc ReportService
	if archive == nil {
		svc = NewReportService(testutil.Logger(t), repo, intake, nil, ReportServiceConfig{MaxUploadBytes: 1 << 20})
	} else {
		svc = NewReportService(testutil.Logger(t), repo, intake, archive, ReportServiceConfig{MaxUploadBytes: 1 << 20})
	}
	return svc, repo
}

func TestUploadCreatesUploadedReport(t *testing.T) {
	intake := &fakeIntake{ref: "file-xyz"}
	archive := newMemBucket()
	svc, repo := newReportService(t, intake, archive)

	in := upload("videobytes", "site.mp4", "video/mp4")
	in.SupervisorNotes = "  east scaffold  "
	res, err := svc.Upload(context.Background(), in)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if res.FileID != "file-xyz" {
		t.Fatalf("fileId: want=file-xyz got=%q", res.FileID)
	}
	if intake.gotBody != "videobytes" || intake.gotName != "site.mp4" {
		t.Fatalf("intake got body=%q name=%q", intake.gotBody, intake.gotName)
	}

	rep, err := repo.GetByID(dbctx.Background(), res.ReportID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rep.Status != reports.StatusUploaded || rep.SourceFileRef != "file-xyz" {
		t.Fatalf("report: status=%q ref=%q", rep.Status, rep.SourceFileRef)
	}
	if rep.SupervisorNotes != "east scaffold" {
		t.Fatalf("notes: got=%q", rep.SupervisorNotes)
	}
	want := "videos/" + res.ReportID + ".mp4"
	if rep.VideoStorageKey != want || !archive.Has(want) {
		t.Fatalf("archive key: want=%q got=%q (stored=%v)", want, rep.VideoStorageKey, archive.Has(want))
	}
}

func TestUploadValidationHappensBeforeNetwork(t *testing.T) {
	tests := []struct {
		name string
		in   UploadInput
		code string
	}{
		{"no file", UploadInput{}, "file_required"},
		{"bad type", upload("x", "notes.pdf", "application/pdf"), "unsupported_media_type"},
		{"too large", func() UploadInput {
			in := upload("x", "big.mp4", "video/mp4")
			in.Size = 2 << 20
			return in
		}(), "file_too_large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intake := &fakeIntake{ref: "f"}
			svc, repo := newReportService(t, intake, nil)
			_, err := svc.Upload(context.Background(), tt.in)
			if apierr.StatusOf(err) != http.StatusBadRequest || apierr.CodeOf(err) != tt.code {
				t.Fatalf("want 400/%s got=%d/%s (%v)", tt.code, apierr.StatusOf(err), apierr.CodeOf(err), err)
			}
			if intake.calls != 0 {
				t.Fatalf("intake should not be called")
			}
			_, total, _ := repo.List(dbctx.Background(), 1, 10)
			if total != 0 {
				t.Fatalf("no report should be created, total=%d", total)
			}
		})
	}
}

func TestUploadIntakeFailure(t *testing.T) {
	intake := &fakeIntake{err: apierr.Upstream("upload_failed", errors.New("VSS upload failed (413): too big"))}
	svc, repo := newReportService(t, intake, nil)

	_, err := svc.Upload(context.Background(), upload("x", "a.webm", ""))
	if apierr.StatusOf(err) != http.StatusInternalServerError || err.Error() != "VSS upload failed (413): too big" {
		t.Fatalf("error: got=%d %v", apierr.StatusOf(err), err)
	}
	_, total, _ := repo.List(dbctx.Background(), 1, 10)
	if total != 0 {
		t.Fatalf("no report should be created, total=%d", total)
	}
}

func TestUploadArchiveFailureStillCreatesReport(t *testing.T) {
	archive := newMemBucket()
	archive.uploadErr = errors.New("bucket down")
	svc, repo := newReportService(t, &fakeIntake{ref: "f1"}, archive)

	res, err := svc.Upload(context.Background(), upload("x", "a.mov", "video/quicktime"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rep, _ := repo.GetByID(dbctx.Background(), res.ReportID)
	if rep.VideoStorageKey != "" {
		t.Fatalf("storage key should be empty when archiving fails, got=%q", rep.VideoStorageKey)
	}
}

// failingCreate rejects every Create.
type failingCreate struct {
	*countingRepo
	err error
}

func (r *failingCreate) Create(dbctx.Context, *reports.Report) (*reports.Report, error) {
	return nil, r.err
}

func TestUploadStoreFailureDeletesArchivedVideo(t *testing.T) {
	archive := newMemBucket()
	repo := &failingCreate{countingRepo: newTestRepo(t), err: reports.ErrStoreUnavailable}
	svc := NewReportService(testutil.Logger(t), repo, &fakeIntake{ref: "f1"}, archive, ReportServiceConfig{MaxUploadBytes: 1 << 20})

	_, err := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))
	if apierr.StatusOf(err) != http.StatusInternalServerError {
		t.Fatalf("status: want=500 got=%d (%v)", apierr.StatusOf(err), err)
	}
	if len(archive.deleted) != 1 {
		t.Fatalf("archived copy should be deleted, deleted=%v", archive.deleted)
	}
	if len(archive.objects) != 0 {
		t.Fatalf("no object should remain, got %d", len(archive.objects))
	}
}

func TestUploadUsesIntakeStorageKey(t *testing.T) {
	archive := newMemBucket()
	svc, repo := newReportService(t, &fakeIntake{ref: "gs://mem/videos/a.mp4", key: "videos/a.mp4"}, archive)

	res, err := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	rep, _ := repo.GetByID(dbctx.Background(), res.ReportID)
	if rep.VideoStorageKey != "videos/a.mp4" {
		t.Fatalf("storage key: got=%q", rep.VideoStorageKey)
	}
	if len(archive.objects) != 0 {
		t.Fatalf("no second copy expected when intake already stores the video")
	}
}

func TestListPagination(t *testing.T) {
	svc, repo := newReportService(t, &fakeIntake{}, nil)
	for i := 0; i < 25; i++ {
		if _, err := repo.Create(dbctx.Background(), &reports.Report{SourceFileRef: fmt.Sprintf("f%d", i), VideoFilename: "v.mp4"}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	page, err := svc.List(context.Background(), 2, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Reports) != 10 || page.Pagination.Total != 25 || page.Pagination.TotalPages != 3 {
		t.Fatalf("page 2: len=%d pagination=%+v", len(page.Reports), page.Pagination)
	}

	page, err = svc.List(context.Background(), 1, 999)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Pagination.Limit != 50 || len(page.Reports) != 25 {
		t.Fatalf("clamp: limit=%d len=%d", page.Pagination.Limit, len(page.Reports))
	}
}

func TestListEmptyIsNotNil(t *testing.T) {
	svc, _ := newReportService(t, &fakeIntake{}, nil)
	page, err := svc.List(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Reports == nil || page.Pagination.TotalPages != 0 {
		t.Fatalf("empty page: %+v", page)
	}
}

func TestUpdateNotesIdempotent(t *testing.T) {
	svc, repo := newReportService(t, &fakeIntake{}, nil)
	rep, _ := repo.Create(dbctx.Background(), &reports.Report{SourceFileRef: "f", VideoFilename: "v.mp4"})

	first, err := svc.UpdateNotes(context.Background(), rep.ID.String(), "check harness")
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	second, err := svc.UpdateNotes(context.Background(), rep.ID.String(), "check harness")
	if err != nil {
		t.Fatalf("UpdateNotes: %v", err)
	}
	if first.SupervisorNotes != "check harness" || second.SupervisorNotes != "check harness" {
		t.Fatalf("notes: first=%q second=%q", first.SupervisorNotes, second.SupervisorNotes)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Fatalf("updatedAt should advance: first=%v second=%v", first.UpdatedAt, second.UpdatedAt)
	}
	if second.Status != first.Status || second.SourceFileRef != first.SourceFileRef {
		t.Fatalf("only notes and updatedAt may change")
	}

	if _, err := svc.UpdateNotes(context.Background(), "6f1d2c1e-8a4b-4f5e-9a3c-2b1d0e9f8a7b", "x"); apierr.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("missing report: want 404 got=%v", err)
	}
}

func TestDeleteRemovesArchivedVideo(t *testing.T) {
	archive := newMemBucket()
	svc, _ := newReportService(t, &fakeIntake{ref: "f"}, archive)
	res, err := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := svc.Delete(context.Background(), res.ReportID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(archive.deleted) != 1 || archive.Has(archive.deleted[0]) {
		t.Fatalf("archived video should be deleted: %v", archive.deleted)
	}
	if _, err := svc.Get(context.Background(), res.ReportID); apierr.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("Get after delete: want 404 got=%v", err)
	}
	if err := svc.Delete(context.Background(), res.ReportID); apierr.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("second delete: want 404 got=%v", err)
	}
}

func TestDeleteIgnoresBlobFailure(t *testing.T) {
	archive := newMemBucket()
	svc, _ := newReportService(t, &fakeIntake{ref: "f"}, archive)
	res, _ := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))
	archive.deleteErr = errors.New("bucket down")

	if err := svc.Delete(context.Background(), res.ReportID); err != nil {
		t.Fatalf("Delete should succeed without the blob: %v", err)
	}
}

func TestVideoAndOpenRange(t *testing.T) {
	archive := newMemBucket()
	svc, _ := newReportService(t, &fakeIntake{ref: "f"}, archive)
	res, _ := svc.Upload(context.Background(), upload("0123456789", "a.mp4", "video/mp4"))

	v, err := svc.Video(context.Background(), res.ReportID)
	if err != nil {
		t.Fatalf("Video: %v", err)
	}
	if v.Size != 10 || v.ContentType != "video/mp4" || v.Filename != "a.mp4" {
		t.Fatalf("video: %+v", v)
	}
	rc, err := svc.OpenVideo(context.Background(), v, 2, 3)
	if err != nil {
		t.Fatalf("OpenVideo: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if string(b) != "234" {
		t.Fatalf("range: want=234 got=%q", b)
	}
}

func TestVideoNotArchived(t *testing.T) {
	svc, _ := newReportService(t, &fakeIntake{ref: "f"}, nil)
	res, _ := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))
	_, err := svc.Video(context.Background(), res.ReportID)
	if apierr.StatusOf(err) != http.StatusNotFound || apierr.CodeOf(err) != "video_not_archived" {
		t.Fatalf("want 404 video_not_archived got=%v", err)
	}
}

func TestSourceDescribesIntakeFile(t *testing.T) {
	intake := &fakeIntake{ref: "file-9", describe: &SourceInfo{Provider: "fake", Filename: "a.mp4", Bytes: 1}}
	svc, _ := newReportService(t, intake, nil)
	res, _ := svc.Upload(context.Background(), upload("x", "a.mp4", "video/mp4"))

	info, err := svc.Source(context.Background(), res.ReportID)
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if info.FileRef != "file-9" || !strings.EqualFold(info.Filename, "a.mp4") {
		t.Fatalf("source: %+v", info)
	}
}
