package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks one backing store.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	checks         map[string]Pinger
	isShuttingDown func() bool
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		checks:         checks,
		isShuttingDown: func() bool { return false },
	}
}

// WithShutdown makes Readyz fail once isShuttingDown reports true, so load
// balancers drain the instance before the server stops.
func (h *HealthHandler) WithShutdown(isShuttingDown func() bool) *HealthHandler {
	if isShuttingDown != nil {
		h.isShuttingDown = isShuttingDown
	}
	return h
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readyz pings every store and reports the ones that fail.
func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.isShuttingDown() {
		RespondError(ctx, http.StatusServiceUnavailable, "shutting_down", "Server is shutting down", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), time.Second)
	defer cancel()

	failed := gin.H{}
	for name, ping := range h.checks {
		if err := ping(cctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		RespondError(ctx, http.StatusServiceUnavailable, "not_ready", "One or more stores are unreachable", failed)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"status": "ready"})
}
