// Package httputil holds the JSON envelope shared by handlers and middleware.
package httputil

import "github.com/gin-gonic/gin"

// RequestIDKey is the gin context key the request id middleware writes.
const RequestIDKey = "request_id"

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// RespondError aborts the request with an ErrorBody tagged with the
// request id, when one was assigned.
func RespondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:      code,
		Message:   message,
		RequestID: c.GetString(RequestIDKey),
	})
}
