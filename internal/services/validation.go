package services

import (
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/navincodesalot/moonshot/internal/platform/apierr"
)

const DefaultMaxUploadBytes int64 = 500 << 20

var allowedVideoTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
	"video/webm":      true,
}

var videoTypeByExt = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".webm": "video/webm",
}

// ValidateVideoUpload checks an upload before any network call and returns the
// resolved content type. The declared type wins; the extension is the fallback.
func ValidateVideoUpload(filename, contentType string, size, maxBytes int64) (string, error) {
	if strings.TrimSpace(filename) == "" && size <= 0 {
		return "", apierr.Validation("file_required", errors.New("No file provided"))
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	ct := normalizeContentType(contentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = videoTypeByExt[strings.ToLower(filepath.Ext(filename))]
	}
	if !allowedVideoTypes[ct] {
		shown := ct
		if shown == "" {
			shown = "unknown"
		}
		return "", apierr.Validation("unsupported_media_type",
			fmt.Errorf("Invalid file type: %s. Allowed: mp4, mov, avi, webm", shown))
	}
	if size <= 0 {
		return "", apierr.Validation("file_empty", errors.New("File is empty"))
	}
	if size > maxBytes {
		return "", apierr.Validation("file_too_large",
			fmt.Errorf("File too large: %d bytes. Maximum: %d MB", size, maxBytes>>20))
	}
	return ct, nil
}

func normalizeContentType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	return strings.ToLower(mt)
}
