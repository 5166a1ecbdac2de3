// Package errors provides the standardized error taxonomy shared by the relay
// and its client.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeQueryRequired           ErrorCode = "QUERY_REQUIRED"
	ErrCodeInvalidOperation        ErrorCode = "INVALID_OPERATION"
	ErrCodeInvalidRequest          ErrorCode = "INVALID_REQUEST"
	ErrCodeMethodNotAllowed        ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited             ErrorCode = "RATE_LIMITED"
	ErrCodeUpstreamFailed          ErrorCode = "UPSTREAM_FAILED"
	ErrCodeUpstreamTimeout         ErrorCode = "UPSTREAM_TIMEOUT"
	ErrCodeInvalidUpstreamResponse ErrorCode = "INVALID_UPSTREAM_RESPONSE"
	ErrCodeCacheFailed             ErrorCode = "CACHE_FAILED"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewQueryRequiredError is returned for a blank query; no network call is made.
func NewQueryRequiredError() *StandardError {
	return newError(ErrCodeQueryRequired, "Query is required", "", false, nil)
}

func NewInvalidOperationError(operation string) *StandardError {
	return newError(ErrCodeInvalidOperation, "Invalid operation", fmt.Sprintf("operation: %s", operation), false, nil)
}

func NewInvalidRequestError(err error) *StandardError {
	return newError(ErrCodeInvalidRequest, "Invalid request format", err.Error(), false, err)
}

func NewMethodNotAllowedError(method string) *StandardError {
	return newError(ErrCodeMethodNotAllowed, "Method not allowed", fmt.Sprintf("method: %s", method), false, nil)
}

func NewRateLimitedError(retryAfter time.Duration) *StandardError {
	return newError(ErrCodeRateLimited, "Rate limit exceeded", "", true, nil).
		WithMetadata("retry_after", int(retryAfter.Seconds()))
}

// NewUpstreamFailedError wraps a failed model call.
func NewUpstreamFailedError(operation string, err error) *StandardError {
	return newError(ErrCodeUpstreamFailed, "Language model request failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), false, err)
}

func NewUpstreamTimeoutError(operation string, err error) *StandardError {
	return newError(ErrCodeUpstreamTimeout, "Language model request timed out",
		fmt.Sprintf("operation: %s", operation), false, err)
}

func NewInvalidUpstreamResponseError(details string) *StandardError {
	return newError(ErrCodeInvalidUpstreamResponse, "Language model returned an unexpected response", details, false, nil)
}

func NewCacheFailedError(err error) *StandardError {
	return newError(ErrCodeCacheFailed, "Cache operation failed", err.Error(), true, err)
}

// HTTPStatus maps an error code to the status the relay answers with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeQueryRequired, ErrCodeInvalidOperation, ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeCacheFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsClientError reports whether the code is caused by the caller's request.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatus(code)
	return status >= 400 && status < 500
}

// Normalize ensures we always have a StandardError.
func Normalize(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "An internal server error occurred.", err.Error(), false, err)
}

// CodeOf returns the code of err, or ErrCodeInternal when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	if n := Normalize(err); n != nil {
		return n.Code
	}
	return ""
}
