// Package httperror renders domain errors as the API error envelope:
// {statusCode, message, correlationId, timestamp, path, method}.
package httperror

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/opsplane/opsplane-backend/internal/tenantctx"
	"github.com/opsplane/opsplane-backend/pkg/log"
)

type HTTPError struct {
	StatusCode    int    `json:"statusCode"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Timestamp     string `json:"timestamp"`
	Path          string `json:"path"`
	Method        string `json:"method"`

	// Err carries the original error for logs; it is never serialized.
	Err error `json:"-"`
	// RetryAfter, when positive, is emitted as a Retry-After header.
	RetryAfter time.Duration `json:"-"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// ReportErrorFunc reports unexpected errors to the crash tracker.
type ReportErrorFunc func(ctx context.Context, err error, msg string)

var reportErrorFunc ReportErrorFunc = func(ctx context.Context, err error, msg string) {
	if msg != "" {
		err = fmt.Errorf("%s: %w", msg, err)
	}
	log.Ctx(ctx).Errorf("%+v", err)
}

// SetReportErrorFunc routes InternalError reporting; wired to the crash
// tracker at boot.
func SetReportErrorFunc(fn ReportErrorFunc) {
	reportErrorFunc = fn
}

// Render completes the envelope from the request and writes it.
func (e *HTTPError) Render(w http.ResponseWriter, req *http.Request) {
	e.CorrelationID = tenantctx.CorrelationID(req.Context())
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.Path = req.URL.Path
	e.Method = req.Method

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(e.RetryAfter.Seconds())))
	}
	w.WriteHeader(e.StatusCode)
	if err := json.NewEncoder(w).Encode(e); err != nil {
		log.Ctx(req.Context()).Errorf("writing error response: %v", err)
	}
}

func NewHTTPError(statusCode int, msg string, originalErr error) *HTTPError {
	return &HTTPError{
		StatusCode: statusCode,
		Message:    msg,
		Err:        originalErr,
	}
}

func BadRequest(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "The request was invalid in some way."
	}
	return NewHTTPError(http.StatusBadRequest, msg, originalErr)
}

func Unauthorized(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "Not authorized."
	}
	return NewHTTPError(http.StatusUnauthorized, msg, originalErr)
}

func Forbidden(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "You don't have permission to perform this action."
	}
	return NewHTTPError(http.StatusForbidden, msg, originalErr)
}

func NotFound(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "Resource not found."
	}
	return NewHTTPError(http.StatusNotFound, msg, originalErr)
}

func Conflict(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "The resource already exists."
	}
	return NewHTTPError(http.StatusConflict, msg, originalErr)
}

func UnprocessableEntity(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "Unprocessable entity."
	}
	return NewHTTPError(http.StatusUnprocessableEntity, msg, originalErr)
}

func TooManyRequests(retryAfter time.Duration) *HTTPError {
	hErr := NewHTTPError(http.StatusTooManyRequests, "Too many requests.", nil)
	hErr.RetryAfter = retryAfter
	return hErr
}

func ServiceUnavailable(msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "The service is temporarily unavailable."
	}
	return NewHTTPError(http.StatusServiceUnavailable, msg, originalErr)
}

func InternalError(ctx context.Context, msg string, originalErr error) *HTTPError {
	if msg == "" {
		msg = "An internal error occurred while processing this request."
	}
	reportErrorFunc(ctx, originalErr, msg)
	return NewHTTPError(http.StatusInternalServerError, msg, originalErr)
}
