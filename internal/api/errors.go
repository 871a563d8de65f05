package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/persistorai/storygraph/internal/httputil"
	"github.com/persistorai/storygraph/internal/metrics"
	"github.com/persistorai/storygraph/internal/models"
)

// Error code constants for standardized API responses.
const (
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeInternalError  = "internal_error"
	ErrCodeUnavailable    = "unavailable"
	ErrCodeAborted        = "aborted"
	ErrCodeQueueFull      = "queue_full"
)

// respondError writes a standardized JSON error response, pulling the request
// ID from the Gin context (set by the request ID middleware).
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error onto a status code.
func respondServiceError(c *gin.Context, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, models.ErrManifestNotFound),
		errors.Is(err, models.ErrEventNotFound),
		errors.Is(err, models.ErrNotFound):
		respondError(c, http.StatusNotFound, ErrCodeNotFound, notFoundMsg)
	case errors.Is(err, models.ErrAborted):
		// The client went away or the server is shutting down.
		respondError(c, http.StatusServiceUnavailable, ErrCodeAborted, "request aborted")
	default:
		respondError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
