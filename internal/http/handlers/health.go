package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/navincodesalot/moonshot/internal/platform/logger"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	log   *logger.Logger
	store Pinger
}

func NewHealthHandler(log *logger.Logger, store Pinger) *HealthHandler {
	return &HealthHandler{log: log.With("handler", "HealthHandler"), store: store}
}

// GET /healthcheck
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	if h.store == nil {
		c.String(http.StatusOK, "ok")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		h.log.Warn("Health check failed", "error", err)
		c.String(http.StatusServiceUnavailable, "store unavailable")
		return
	}
	c.String(http.StatusOK, "ok")
}
