package handlers

import (
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/http/response"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/services"
)

type VideoHandler struct {
	log     *logger.Logger
	reports services.ReportService
}

func NewVideoHandler(log *logger.Logger, reports services.ReportService) *VideoHandler {
	return &VideoHandler{log: log.With("handler", "VideoHandler"), reports: reports}
}

// GET /api/reports/:id/video[?download=1]
// Honors a single byte Range so players can seek.
func (h *VideoHandler) StreamVideo(c *gin.Context) {
	ctx := c.Request.Context()
	v, err := h.reports.Video(ctx, c.Param("id"))
	if err != nil {
		h.respond(c, err)
		return
	}

	contentType := resolveContentType(v.ContentType, v.Filename, v.StorageKey)
	disposition := buildContentDisposition(v.Filename, c.Query("download") != "")
	size := v.Size

	if rangeHeader := c.GetHeader("Range"); rangeHeader != "" && size > 0 {
		rng, ok, rErr := parseByteRangeHeader(rangeHeader, size)
		if rErr != nil {
			c.Header("Content-Range", fmt.Sprintf("bytes */%d", size))
			response.RespondError(c, http.StatusRequestedRangeNotSatisfiable, "invalid_range", rErr)
			return
		}
		if ok {
			n := rng.end - rng.start + 1
			reader, err := h.reports.OpenVideo(ctx, v, rng.start, n)
			if err != nil {
				h.respond(c, err)
				return
			}
			defer reader.Close()
			c.DataFromReader(http.StatusPartialContent, n, contentType, reader, map[string]string{
				"Content-Range":       fmt.Sprintf("bytes %d-%d/%d", rng.start, rng.end, size),
				"Accept-Ranges":       "bytes",
				"Content-Disposition": disposition,
			})
			return
		}
	}

	reader, err := h.reports.OpenVideo(ctx, v, 0, -1)
	if err != nil {
		h.respond(c, err)
		return
	}
	defer reader.Close()
	contentLength := size
	if contentLength <= 0 {
		contentLength = -1
	}
	c.DataFromReader(http.StatusOK, contentLength, contentType, reader, map[string]string{
		"Accept-Ranges":       "bytes",
		"Content-Disposition": disposition,
	})
}

func (h *VideoHandler) respond(c *gin.Context, err error) {
	if apierr.StatusOf(err) >= http.StatusInternalServerError {
		h.log.Error("StreamVideo failed", "report_id", c.Param("id"), "error", err)
	}
	response.RespondErr(c, err)
}

// byteRange is inclusive on both ends.
type byteRange struct {
	start int64
	end   int64
}

// parseByteRangeHeader accepts one "bytes=" range. ok is false when the header is empty.
func parseByteRangeHeader(rangeHeader string, size int64) (rng byteRange, ok bool, err error) {
	rh := strings.TrimSpace(rangeHeader)
	if rh == "" {
		return byteRange{}, false, nil
	}
	if size <= 0 {
		return byteRange{}, false, fmt.Errorf("unknown object size")
	}
	rangeSpec, found := strings.CutPrefix(rh, "bytes=")
	if !found {
		return byteRange{}, false, fmt.Errorf("unsupported range unit")
	}
	if strings.Contains(rangeSpec, ",") {
		return byteRange{}, false, fmt.Errorf("multiple ranges not supported")
	}
	rangeSpec = strings.TrimSpace(rangeSpec)

	first, last, found := strings.Cut(rangeSpec, "-")
	if !found {
		return byteRange{}, false, fmt.Errorf("invalid range format")
	}
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return byteRange{}, false, fmt.Errorf("invalid suffix range")
		}
		return byteRange{start: size - min(n, size), end: size - 1}, true, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return byteRange{}, false, fmt.Errorf("invalid range start")
	}
	end := size - 1
	if last != "" {
		end, err = strconv.ParseInt(last, 10, 64)
		if err != nil || end < 0 {
			return byteRange{}, false, fmt.Errorf("invalid range end")
		}
	}
	if start >= size || end < start {
		return byteRange{}, false, fmt.Errorf("range out of bounds")
	}
	return byteRange{start: start, end: min(end, size-1)}, true, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" {
		return ""
	}
	base = strings.NewReplacer("\"", "", "\\", "", "\r", "", "\n", "").Replace(base)
	return strings.TrimSpace(base)
}

func resolveContentType(recorded, filename, storageKey string) string {
	for _, v := range []string{
		strings.TrimSpace(recorded),
		mime.TypeByExtension(filepath.Ext(filename)),
		mime.TypeByExtension(filepath.Ext(storageKey)),
	} {
		if v != "" {
			return v
		}
	}
	return "application/octet-stream"
}

func buildContentDisposition(filename string, download bool) string {
	disposition := "inline"
	if download {
		disposition = "attachment"
	}
	name := sanitizeFilename(filename)
	if name == "" {
		return disposition
	}
	return fmt.Sprintf("%s; filename=\"%s\"", disposition, name)
}
