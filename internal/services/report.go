package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	repos "github.com/navincodesalot/moonshot/internal/data/repos/reports"
	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/observability"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/ctxutil"
	"github.com/navincodesalot/moonshot/internal/platform/dbctx"
	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

// UploadInput is one uploaded video. Open may be called more than once.
type UploadInput struct {
	Filename        string
	ContentType     string
	Size            int64
	SupervisorNotes string
	Open            func() (io.ReadCloser, error)
}

type UploadResult struct {
	ReportID string `json:"reportId"`
	FileID   string `json:"fileId"`
}

type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

type ReportPage struct {
	Reports    []*reports.Report `json:"reports"`
	Pagination Pagination        `json:"pagination"`
}

// VideoObject locates the archived copy of a report's video.
type VideoObject struct {
	StorageKey  string
	Filename    string
	ContentType string
	Size        int64
}

type ReportService interface {
	Upload(ctx context.Context, in UploadInput) (*UploadResult, error)
	List(ctx context.Context, page, limit int) (*ReportPage, error)
	Get(ctx context.Context, id string) (*reports.Report, error)
	UpdateNotes(ctx context.Context, id string, notes string) (*reports.Report, error)
	Delete(ctx context.Context, id string) error
	Source(ctx context.Context, id string) (*SourceInfo, error)
	Video(ctx context.Context, id string) (*VideoObject, error)
	// OpenVideo reads length bytes from offset; length < 0 reads to the end.
	OpenVideo(ctx context.Context, v *VideoObject, offset, length int64) (io.ReadCloser, error)
}

type ReportServiceConfig struct {
	MaxUploadBytes int64
}

type reportService struct {
	log    *logger.Logger
	repo   repos.ReportRepo
	intake MediaIntake
	// archive is nil when no video bucket is configured.
	archive gcp.VideoBucket
	cfg     ReportServiceConfig
}

func NewReportService(
	baseLog *logger.Logger,
	repo repos.ReportRepo,
	intake MediaIntake,
	archive gcp.VideoBucket,
	cfg ReportServiceConfig,
) ReportService {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &reportService{
		log:     baseLog.With("service", "ReportService"),
		repo:    repo,
		intake:  intake,
		archive: archive,
		cfg:     cfg,
	}
}

func (s *reportService) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Open == nil {
		return nil, apierr.Validation("file_required", errors.New("No file provided"))
	}
	contentType, err := ValidateVideoUpload(in.Filename, in.ContentType, in.Size, s.cfg.MaxUploadBytes)
	if err != nil {
		observability.Current().IncUpload("rejected", in.Size)
		return nil, err
	}
	filename := strings.TrimSpace(in.Filename)
	if filename == "" {
		filename = "video"
	}

	intake, err := s.sendToIntake(ctx, in, filename, contentType)
	if err != nil {
		observability.Current().IncUpload("upstream_error", in.Size)
		return nil, err
	}

	rep := &reports.Report{
		ID:               uuid.New(),
		SourceFileRef:    intake.FileRef,
		VideoFilename:    filename,
		VideoContentType: contentType,
		VideoSizeBytes:   in.Size,
		VideoStorageKey:  intake.StorageKey,
		SupervisorNotes:  strings.TrimSpace(in.SupervisorNotes),
	}
	if rep.VideoStorageKey == "" {
		rep.VideoStorageKey = s.archiveCopy(ctx, in, rep.ID, filename, contentType)
	}

	created, err := s.repo.Create(dbctx.From(ctx), rep)
	if err != nil {
		observability.Current().IncUpload("store_error", in.Size)
		s.dropArchived(ctx, rep)
		return nil, storeError(err)
	}
	observability.Current().IncUpload("ok", in.Size)
	s.log.Info("Report created",
		append(ctxutil.LogFields(ctx),
			"report_id", created.ID.String(),
			"source_file_ref", created.SourceFileRef,
			"provider", s.intake.Provider(),
			"size_bytes", in.Size,
		)...,
	)
	return &UploadResult{ReportID: created.ID.String(), FileID: intake.FileRef}, nil
}

func (s *reportService) sendToIntake(ctx context.Context, in UploadInput, filename, contentType string) (*Intake, error) {
	rc, err := in.Open()
	if err != nil {
		return nil, apierr.Validation("file_unreadable", fmt.Errorf("read upload: %w", err))
	}
	defer rc.Close()
	return s.intake.Upload(ctx, rc, filename, contentType)
}

// archiveCopy keeps a streamable copy of the video. Failures only cost the
// video endpoint, so they are logged and the report is created without one.
func (s *reportService) archiveCopy(ctx context.Context, in UploadInput, id uuid.UUID, filename, contentType string) string {
	if s.archive == nil {
		return ""
	}
	rc, err := in.Open()
	if err != nil {
		s.log.Warn("Video archive skipped", "report_id", id.String(), "error", err)
		return ""
	}
	defer rc.Close()
	key := VideoStorageKey(id, filename)
	if err := s.archive.Upload(ctx, key, contentType, rc); err != nil {
		s.log.Warn("Video archive failed", "report_id", id.String(), "storage_key", key, "error", err)
		return ""
	}
	return key
}

// dropArchived removes the stored video of a report that was never persisted.
func (s *reportService) dropArchived(ctx context.Context, rep *reports.Report) {
	if rep.VideoStorageKey == "" || s.archive == nil {
		return
	}
	if err := s.archive.Delete(ctx, rep.VideoStorageKey); err != nil {
		s.log.Warn("Orphaned video delete failed", "report_id", rep.ID.String(), "storage_key", rep.VideoStorageKey, "error", err)
	}
}

func (s *reportService) List(ctx context.Context, page, limit int) (*ReportPage, error) {
	page, limit = reports.NormalizePage(page, limit)
	items, total, err := s.repo.List(dbctx.From(ctx), page, limit)
	if err != nil {
		return nil, storeError(err)
	}
	if items == nil {
		items = []*reports.Report{}
	}
	return &ReportPage{
		Reports: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: reports.TotalPages(total, limit),
		},
	}, nil
}

func (s *reportService) Get(ctx context.Context, id string) (*reports.Report, error) {
	rep, err := s.repo.GetByID(dbctx.From(ctx), id)
	if err != nil {
		return nil, storeError(err)
	}
	return rep, nil
}

func (s *reportService) UpdateNotes(ctx context.Context, id string, notes string) (*reports.Report, error) {
	rep, err := s.repo.Update(dbctx.From(ctx), id, reports.Patch{SupervisorNotes: &notes})
	if err != nil {
		return nil, storeError(err)
	}
	return rep, nil
}

func (s *reportService) Delete(ctx context.Context, id string) error {
	dbc := dbctx.From(ctx)
	rep, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return storeError(err)
	}
	if err := s.repo.Delete(dbc, id); err != nil {
		return storeError(err)
	}
	if rep.VideoStorageKey != "" && s.archive != nil {
		if err := s.archive.Delete(ctx, rep.VideoStorageKey); err != nil {
			s.log.Warn("Archived video delete failed", "report_id", id, "storage_key", rep.VideoStorageKey, "error", err)
		}
	}
	return nil
}

func (s *reportService) Source(ctx context.Context, id string) (*SourceInfo, error) {
	rep, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.intake.Describe(ctx, rep.SourceFileRef)
}

func (s *reportService) Video(ctx context.Context, id string) (*VideoObject, error) {
	rep, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep.VideoStorageKey == "" || s.archive == nil {
		return nil, apierr.NotFound("video_not_archived", errors.New("No archived video for this report"))
	}
	attrs, err := s.archive.Attrs(ctx, rep.VideoStorageKey)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, apierr.NotFound("video_not_found", err)
		}
		return nil, apierr.Upstream("video_lookup_failed", err)
	}
	ct := rep.VideoContentType
	if ct == "" {
		ct = attrs.ContentType
	}
	return &VideoObject{
		StorageKey:  rep.VideoStorageKey,
		Filename:    rep.VideoFilename,
		ContentType: ct,
		Size:        attrs.Size,
	}, nil
}

func (s *reportService) OpenVideo(ctx context.Context, v *VideoObject, offset, length int64) (io.ReadCloser, error) {
	if s.archive == nil || v == nil {
		return nil, apierr.NotFound("video_not_archived", errors.New("No archived video for this report"))
	}
	rc, err := s.archive.OpenRange(ctx, v.StorageKey, offset, length)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, apierr.NotFound("video_not_found", err)
		}
		return nil, apierr.Upstream("stream_failed", err)
	}
	return rc, nil
}
