package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/http/response"
	"github.com/navincodesalot/moonshot/internal/platform/apierr"
	"github.com/navincodesalot/moonshot/internal/platform/logger"
	"github.com/navincodesalot/moonshot/internal/services"
)

type AnalyzeHandler struct {
	log      *logger.Logger
	pipeline services.PipelineService
}

func NewAnalyzeHandler(log *logger.Logger, pipeline services.PipelineService) *AnalyzeHandler {
	return &AnalyzeHandler{log: log.With("handler", "AnalyzeHandler"), pipeline: pipeline}
}

type analyzeRequest struct {
	ReportID string `json:"reportId"`
}

// POST /api/analyze {reportId}
// Runs the whole pipeline before responding; clients may poll the report meanwhile.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
			return
		}
	}
	id := strings.TrimSpace(req.ReportID)
	if id == "" {
		response.RespondError(c, http.StatusBadRequest, "report_id_required", errors.New("reportId is required"))
		return
	}
	out, err := h.pipeline.RunAnalysis(c.Request.Context(), id)
	if err != nil {
		if apierr.StatusOf(err) >= http.StatusInternalServerError {
			h.log.Error("Analysis failed", "report_id", id, "code", apierr.CodeOf(err), "error", err)
		}
		response.RespondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}
