// internal/common/errors/handler.go
package errors

import (
	"github.com/gin-gonic/gin"
)

type Logger interface {
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// ErrorHandler writes StandardErrors as `{"error": message}` JSON responses.
type ErrorHandler struct {
	logger Logger
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Respond normalizes err, logs it and aborts the request with the mapped status.
func (h *ErrorHandler) Respond(c *gin.Context, err error) {
	stdErr := Normalize(err)
	status := HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"errorCode": string(stdErr.Code),
		"message":   stdErr.Message,
		"details":   stdErr.Details,
		"status":    status,
		"path":      c.FullPath(),
	}
	if requestID, ok := c.Get("requestId"); ok {
		fields["requestId"] = requestID
	}
	if IsClientError(stdErr.Code) {
		h.logger.Warn("request rejected", fields)
	} else {
		h.logger.Error("request failed", fields)
	}

	body := gin.H{"error": stdErr.Message}
	if retryAfter, ok := stdErr.Metadata["retry_after"]; ok {
		body["retry_after"] = retryAfter
	}
	c.AbortWithStatusJSON(status, body)
}
