// Package api provides the HTTP handlers of the storygraph service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/storygraph/internal/db"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	store     Pinger
	log       *logrus.Logger
	version   string
	backend   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler. store may be nil.
func NewHealthHandler(store Pinger, log *logrus.Logger, version, backend string) *HealthHandler {
	return &HealthHandler{
		store:     store,
		log:       log,
		version:   version,
		backend:   backend,
		startTime: time.Now(),
	}
}

// readinessResponse is the JSON payload returned by the readiness endpoint.
type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// healthResponse is the JSON payload returned by the health/liveness endpoint.
type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Backend       string  `json:"backend"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Liveness handles GET /api/v1/health.
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       h.version,
		Backend:       h.backend,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	})
}

// Readiness handles GET /api/v1/ready. It pings the durable cache tier and,
// on the postgres backend, reports the embedded schema version.
func (h *HealthHandler) Readiness(c *gin.Context) {
	checks := map[string]string{"cache": "ok"}
	status := "ready"
	statusCode := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	switch {
	case h.store == nil:
		checks["cache"] = "not_configured"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	default:
		if err := h.store.Ping(ctx); err != nil {
			h.log.WithError(err).Error("readiness: cache backend ping failed")
			checks["cache"] = "error"
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
		}
	}

	if h.backend == "postgres" {
		checks["schema"] = fmt.Sprintf("v%d", db.SchemaVersion())
	}

	c.JSON(statusCode, readinessResponse{Status: status, Checks: checks})
}
