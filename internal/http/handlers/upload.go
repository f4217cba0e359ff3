package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/http/response"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/services"
)

// multipartSlack covers form boundaries and the notes field on top of the file limit.
const multipartSlack = 1 << 20

type UploadHandler struct {
	log     *logger.Logger
	reports services.ReportService
	maxBody int64
}

func NewUploadHandler(log *logger.Logger, reports services.ReportService, maxUploadBytes int64) *UploadHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = services.DefaultMaxUploadBytes
	}
	return &UploadHandler{
		log:     log.With("handler", "UploadHandler"),
		reports: reports,
		maxBody: maxUploadBytes + multipartSlack,
	}
}

// POST /api/upload (multipart: file, supervisorNotes)
func (h *UploadHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			response.RespondError(c, http.StatusBadRequest, "file_too_large", errors.New("File exceeds the upload size limit"))
		case errors.Is(err, http.ErrMissingFile):
			response.RespondError(c, http.StatusBadRequest, "file_required", errors.New("No file provided"))
		default:
			response.RespondError(c, http.StatusBadRequest, "invalid_multipart", err)
		}
		return
	}

	out, err := h.reports.Upload(c.Request.Context(), services.UploadInput{
		Filename:        fh.Filename,
		ContentType:     fh.Header.Get("Content-Type"),
		Size:            fh.Size,
		SupervisorNotes: c.PostForm("supervisorNotes"),
		Open:            func() (io.ReadCloser, error) { return fh.Open() },
	})
	if err != nil {
		h.log.Warn("Upload failed", "error", err, "filename", fh.Filename, "size_bytes", fh.Size)
		response.RespondErr(c, err)
		return
	}
	response.RespondCreated(c, out)
}
