package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

// ErrObjectNotFound is returned when a key has no object.
var ErrObjectNotFound = errors.New("object not found")

// VideoBucket stores uploaded videos under opaque keys in one GCS bucket.
type VideoBucket interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) error
	Delete(ctx context.Context, key string) error
	// OpenRange reads length bytes from offset; length < 0 reads to the end.
	OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	Attrs(ctx context.Context, key string) (*ObjectAttrs, error)
	// URI is the gs:// address of key.
	URI(key string) string
	Name() string
	Close() error
}

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type BucketConfig struct {
	Name        string
	Storage     ObjectStorageConfig
	Credentials string
}

type videoBucket struct {
	log           *logger.Logger
	storageClient *storage.Client
	httpClient    *http.Client
	name          string
	emulatorHost  string
}

func NewVideoBucket(ctx context.Context, log *logger.Logger, cfg BucketConfig) (VideoBucket, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("missing env var VIDEO_GCS_BUCKET_NAME")
	}
	if err := cfg.Storage.Validate(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.Storage.IsEmulatorMode() {
		opts = []option.ClientOption{
			option.WithoutAuthentication(),
			option.WithEndpoint(cfg.Storage.EmulatorHost + "/storage/v1/"),
		}
	} else {
		opts = append(ClientOptions(cfg.Credentials), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	b := &videoBucket{
		log:           log.With("service", "VideoBucket", "bucket", name),
		storageClient: client,
		httpClient:    &http.Client{},
		name:          name,
	}
	if cfg.Storage.IsEmulatorMode() {
		b.emulatorHost = cfg.Storage.EmulatorHost
	}
	b.log.Info("Object storage initialized", "mode", cfg.Storage.Mode, "inferred", cfg.Storage.Inferred, "emulator_host", b.emulatorHost)
	return b, nil
}

func (b *videoBucket) Name() string { return b.name }

func (b *videoBucket) URI(key string) string {
	return fmt.Sprintf("gs://%s/%s", b.name, strings.TrimLeft(key, "/"))
}

func (b *videoBucket) Close() error {
	if b.storageClient == nil {
		return nil
	}
	return b.storageClient.Close()
}

func (b *videoBucket) Upload(ctx context.Context, key, contentType string, r io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	w := b.storageClient.Bucket(b.name).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if w.ContentType == "" {
		w.ContentType = ContentTypeForKey(key)
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

// Delete treats a missing object as already deleted.
func (b *videoBucket) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := b.storageClient.Bucket(b.name).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object %q in bucket %q: %w", key, b.name, err)
	}
	return nil
}

// ContentTypeForKey guesses a video content type from the key's extension.
func ContentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}

// The returned reader owns cancel; the context must outlive the caller's reads.
type readCloserWithCancel struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *readCloserWithCancel) Close() error {
	err := r.ReadCloser.Close()
	if r.cancel != nil {
		r.cancel()
	}
	return err
}

func (b *videoBucket) emulatorURL(key string, media bool) string {
	u := fmt.Sprintf("%s/storage/v1/b/%s/o/%s", b.emulatorHost, url.PathEscape(b.name), url.PathEscape(key))
	if media {
		u += "?alt=media"
	}
	return u
}

func (b *videoBucket) OpenRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	ctx2, cancel := context.WithTimeout(ctx, 30*time.Minute)
	if b.emulatorHost != "" {
		req, err := http.NewRequestWithContext(ctx2, http.MethodGet, b.emulatorURL(key, true), nil)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed creating emulator range request: %w", err)
		}
		if offset > 0 || length >= 0 {
			if length >= 0 {
				req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
			} else {
				req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
			}
		}
		resp, err := b.httpClient.Do(req)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed emulator range request: %w", err)
		}
		switch resp.StatusCode {
		case http.StatusOK, http.StatusPartialContent:
			return &readCloserWithCancel{ReadCloser: resp.Body, cancel: cancel}, nil
		case http.StatusNotFound:
			_ = resp.Body.Close()
			cancel()
			return nil, ErrObjectNotFound
		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			_ = resp.Body.Close()
			cancel()
			return nil, fmt.Errorf("emulator range read failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	r, err := b.storageClient.Bucket(b.name).Object(key).NewRangeReader(ctx2, offset, length)
	if err != nil {
		cancel()
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to open GCS range reader: %w", err)
	}
	return &readCloserWithCancel{ReadCloser: r, cancel: cancel}, nil
}

func (b *videoBucket) Attrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if b.emulatorHost != "" {
		return b.emulatorAttrs(ctx, key)
	}
	attrs, err := b.storageClient.Bucket(b.name).Object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to fetch GCS object attrs: %w", err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (b *videoBucket) emulatorAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.emulatorURL(key, false), nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating emulator attrs request: %w", err)
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed emulator attrs request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("emulator attrs failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Size        string `json:"size"`
		ContentType string `json:"contentType"`
		Updated     string `json:"updated"`
		ETag        string `json:"etag"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode emulator attrs: %w", err)
	}
	size, _ := strconv.ParseInt(strings.TrimSpace(payload.Size), 10, 64)
	updated, _ := time.Parse(time.RFC3339, strings.TrimSpace(payload.Updated))
	return &ObjectAttrs{
		Size:        size,
		ContentType: payload.ContentType,
		Updated:     updated,
		ETag:        payload.ETag,
	}, nil
}
