package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/Harvey-AU/catalog-backoffice/internal/apperr"
	"github.com/Harvey-AU/catalog-backoffice/internal/taxonomy"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// ErrorResponse is the body of every non-2xx response. Clients surface the
// error field verbatim.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// ErrorCode represents standard error codes
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest           ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound             ErrorCode = "NOT_FOUND"
	ErrCodeMethodNotAllowed     ErrorCode = "METHOD_NOT_ALLOWED"
	ErrCodeConflict             ErrorCode = "CONFLICT"
	ErrCodeValidation           ErrorCode = "VALIDATION_ERROR"
	ErrCodeIllegalTransition    ErrorCode = "ILLEGAL_TRANSITION"
	ErrCodeConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"
	ErrCodeRateLimit            ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Server errors (5xx)
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// WriteError writes a standardised error response with a custom message
func WriteError(w http.ResponseWriter, r *http.Request, message string, status int, code ErrorCode) {
	writeErrorResponse(w, r, status, ErrorResponse{Error: message, Code: string(code)})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp ErrorResponse) {
	resp.RequestID = GetRequestID(r)

	logger := loggerWithRequest(r)
	var event *zerolog.Event
	if status >= http.StatusInternalServerError {
		event = logger.Error()
	} else {
		event = logger.Warn()
	}
	event.
		Int("status", status).
		Str("code", resp.Code).
		Str("message", resp.Error).
		Msg("API error response")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode error response")
	}
}

// WriteAppError maps an error kind onto its HTTP status. Anything unexpected
// is reported to Sentry and answered with a generic 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorResponse(w, r, http.StatusBadRequest, ErrorResponse{
			Error:  err.Error(),
			Code:   string(ErrCodeValidation),
			Fields: verr.Fields,
		})
	case errors.Is(err, apperr.ErrValidation):
		WriteError(w, r, err.Error(), http.StatusBadRequest, ErrCodeValidation)
	case errors.Is(err, apperr.ErrNotFound):
		WriteError(w, r, err.Error(), http.StatusNotFound, ErrCodeNotFound)
	case errors.Is(err, apperr.ErrIllegalTransition):
		WriteError(w, r, err.Error(), http.StatusConflict, ErrCodeIllegalTransition)
	case errors.Is(err, apperr.ErrConfirmationRequired):
		WriteError(w, r, err.Error(), http.StatusPreconditionRequired, ErrCodeConfirmationRequired)
	case errors.Is(err, apperr.ErrActionInFlight), errors.Is(err, taxonomy.ErrHasChildren):
		WriteError(w, r, err.Error(), http.StatusConflict, ErrCodeConflict)
	default:
		InternalError(w, r, err)
	}
}

// BadRequest responds with a 400 Bad Request error
func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, message, http.StatusBadRequest, ErrCodeBadRequest)
}

// NotFound responds with a 404 Not Found error
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, message, http.StatusNotFound, ErrCodeNotFound)
}

// MethodNotAllowed responds with a 405 Method Not Allowed error
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	WriteError(w, r, "Method not allowed", http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed)
}

// InternalError logs err and responds with a generic 500. The cause is not
// leaked to the client.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	logger := loggerWithRequest(r)
	logger.Error().Err(err).Msg("Unhandled API error")
	WriteError(w, r, "Internal server error", http.StatusInternalServerError, ErrCodeInternal)
}

// ServiceUnavailable responds with a 503 Service Unavailable error
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, message, http.StatusServiceUnavailable, ErrCodeServiceUnavailable)
}

// TooManyRequests responds with 429 and Retry-After header
func TooManyRequests(w http.ResponseWriter, r *http.Request, message string, retryAfter time.Duration) {
	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds <= 0 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	WriteError(w, r, message, http.StatusTooManyRequests, ErrCodeRateLimit)
}
