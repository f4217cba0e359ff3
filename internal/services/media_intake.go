package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/gcp"
	"github.com/navincodesalot/moonshot/internal/platform/httpx"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/platform/vss"
)

const (
	ProviderVSS = "vss"
	ProviderGCP = "gcp"
)

// Intake is the result of handing a video to the summarization backend.
type Intake struct {
	FileRef string
	// StorageKey is set when the intake copy also lives in the video bucket.
	StorageKey string
}

// SourceInfo describes the intake backend's copy of a report's video.
type SourceInfo struct {
	Provider    string         `json:"provider"`
	FileRef     string         `json:"fileRef"`
	Filename    string         `json:"filename,omitempty"`
	Purpose     string         `json:"purpose,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Bytes       int64          `json:"bytes"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

type MediaIntake interface {
	Upload(ctx context.Context, file io.Reader, filename, contentType string) (*Intake, error)
	Describe(ctx context.Context, fileRef string) (*SourceInfo, error)
	Provider() string
}

type vssIntake struct {
	log    *logger.Logger
	client vss.Client
}

func NewVSSMediaIntake(baseLog *logger.Logger, client vss.Client) MediaIntake {
	return &vssIntake{log: baseLog.With("service", "VSSMediaIntake"), client: client}
}

func (m *vssIntake) Provider() string { return ProviderVSS }

func (m *vssIntake) Upload(ctx context.Context, file io.Reader, filename, _ string) (*Intake, error) {
	info, err := m.client.UploadFile(ctx, file, filename)
	if err != nil {
		return nil, apierr.Upstream("upload_failed", err)
	}
	if strings.TrimSpace(info.ID) == "" {
		return nil, apierr.Upstream("upload_failed", errors.New("VSS upload returned no file id"))
	}
	return &Intake{FileRef: info.ID}, nil
}

func (m *vssIntake) Describe(ctx context.Context, fileRef string) (*SourceInfo, error) {
	info, err := m.client.GetFile(ctx, fileRef)
	if err != nil {
		if httpx.StatusCode(err) == 404 {
			return nil, apierr.NotFound("source_not_found", err)
		}
		return nil, apierr.Upstream("source_lookup_failed", err)
	}
	out := &SourceInfo{
		Provider: ProviderVSS,
		FileRef:  info.ID,
		Filename: info.Filename,
		Purpose:  info.Purpose,
		Bytes:    info.Bytes,
		Extra:    info.Extra,
	}
	if info.CreatedAt > 0 {
		t := time.Unix(info.CreatedAt, 0).UTC()
		out.CreatedAt = &t
	}
	return out, nil
}

type gcsIntake struct {
	log    *logger.Logger
	bucket gcp.VideoBucket
}

// NewGCSMediaIntake stores intake copies in the video bucket; the file ref is the gs:// URI.
func NewGCSMediaIntake(baseLog *logger.Logger, bucket gcp.VideoBucket) MediaIntake {
	return &gcsIntake{log: baseLog.With("service", "GCSMediaIntake"), bucket: bucket}
}

func (m *gcsIntake) Provider() string { return ProviderGCP }

func (m *gcsIntake) Upload(ctx context.Context, file io.Reader, filename, contentType string) (*Intake, error) {
	key := VideoStorageKey(uuid.New(), filename)
	if err := m.bucket.Upload(ctx, key, contentType, file); err != nil {
		return nil, apierr.Upstream("upload_failed", fmt.Errorf("GCS upload failed: %w", err))
	}
	return &Intake{FileRef: m.bucket.URI(key), StorageKey: key}, nil
}

func (m *gcsIntake) Describe(ctx context.Context, fileRef string) (*SourceInfo, error) {
	key, err := m.keyFromRef(fileRef)
	if err != nil {
		return nil, apierr.NotFound("source_not_found", err)
	}
	attrs, err := m.bucket.Attrs(ctx, key)
	if err != nil {
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return nil, apierr.NotFound("source_not_found", err)
		}
		return nil, apierr.Upstream("source_lookup_failed", err)
	}
	out := &SourceInfo{
		Provider:    ProviderGCP,
		FileRef:     fileRef,
		Filename:    path.Base(key),
		ContentType: attrs.ContentType,
		Bytes:       attrs.Size,
	}
	if !attrs.Updated.IsZero() {
		t := attrs.Updated.UTC()
		out.CreatedAt = &t
	}
	if attrs.ETag != "" {
		out.Extra = map[string]any{"etag": attrs.ETag}
	}
	return out, nil
}

func (m *gcsIntake) keyFromRef(ref string) (string, error) {
	prefix := "gs://" + m.bucket.Name() + "/"
	if !strings.HasPrefix(ref, prefix) || len(ref) == len(prefix) {
		return "", fmt.Errorf("file ref %q is not in bucket %q", ref, m.bucket.Name())
	}
	return strings.TrimPrefix(ref, prefix), nil
}

// VideoStorageKey is the bucket key for a video: videos/<id><ext>.
func VideoStorageKey(id uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if _, ok := videoTypeByExt[ext]; !ok {
		ext = ""
	}
	return "videos/" + id.String() + ext
}
