package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/domain/reports"
	"github.com/navincodesalot/moonshot/internal/http/response"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/services"
)

type ReportHandler struct {
	log     *logger.Logger
	reports services.ReportService
}

func NewReportHandler(log *logger.Logger, reports services.ReportService) *ReportHandler {
	return &ReportHandler{log: log.With("handler", "ReportHandler"), reports: reports}
}

// GET /api/reports?page=&limit=
func (h *ReportHandler) ListReports(c *gin.Context) {
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", reports.DefaultPageSize)
	out, err := h.reports.List(c.Request.Context(), page, limit)
	if err != nil {
		h.fail(c, "ListReports", err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/reports/:id
func (h *ReportHandler) GetReport(c *gin.Context) {
	rep, err := h.reports.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetReport", err)
		return
	}
	response.RespondOK(c, rep)
}

type patchReportRequest struct {
	SupervisorNotes *string `json:"supervisorNotes"`
}

// PATCH /api/reports/:id
func (h *ReportHandler) PatchReport(c *gin.Context) {
	var req patchReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	if req.SupervisorNotes == nil {
		response.RespondError(c, http.StatusBadRequest, "supervisor_notes_required", errors.New("supervisorNotes is required"))
		return
	}
	rep, err := h.reports.UpdateNotes(c.Request.Context(), c.Param("id"), *req.SupervisorNotes)
	if err != nil {
		h.fail(c, "PatchReport", err)
		return
	}
	response.RespondOK(c, rep)
}

// DELETE /api/reports/:id
func (h *ReportHandler) DeleteReport(c *gin.Context) {
	if err := h.reports.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "DeleteReport", err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// GET /api/reports/:id/source
func (h *ReportHandler) GetSource(c *gin.Context) {
	info, err := h.reports.Source(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "GetSource", err)
		return
	}
	response.RespondOK(c, info)
}

func (h *ReportHandler) fail(c *gin.Context, op string, err error) {
	if apierr.StatusOf(err) >= http.StatusInternalServerError {
		h.log.Error(op+" failed", "error", err, "code", apierr.CodeOf(err), "report_id", c.Param("id"))
	}
	response.RespondErr(c, err)
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
