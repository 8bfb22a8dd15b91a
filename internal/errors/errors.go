// Package errors maps closetiq failures onto gofulmen error envelopes and
// writes them as JSON responses.
package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/metrics"
	"github.com/closetiq/closetiq/internal/observability"
	"github.com/closetiq/closetiq/internal/server/middleware"
)

// Error codes beyond the gofulmen defaults.
const (
	CodeRateLimited        = "RATE_LIMITED"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"
	CodeQueueCleared       = "QUEUE_CLEARED"
)

func NewInvalidInputError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INVALID_INPUT", message)
}

func NewNotFoundError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("NOT_FOUND", message)
}

func NewUnauthorizedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("UNAUTHORIZED", message)
}

func NewMethodNotAllowedError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("METHOD_NOT_ALLOWED", message)
}

func NewServiceUnavailableError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", message)
}

func NewInternalError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("INTERNAL_ERROR", message)
}

func NewConfigInvalidError(message string) *errors.ErrorEnvelope {
	return errors.NewErrorEnvelope("CONFIG_INVALID", message)
}

// WrapInternal wraps err as an INTERNAL_ERROR envelope correlated with ctx.
func WrapInternal(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "INTERNAL_ERROR", err, message)
}

// WrapConfigInvalid wraps a configuration failure.
func WrapConfigInvalid(ctx context.Context, err error, message string) *errors.ErrorEnvelope {
	return wrap(ctx, "CONFIG_INVALID", err, message)
}

func wrap(ctx context.Context, code string, err error, message string) *errors.ErrorEnvelope {
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(extractCorrelationID(ctx))
	if err == nil {
		return envelope
	}
	if updated, updateErr := envelope.WithContext(map[string]interface{}{"wrapped_error": err.Error()}); updateErr == nil {
		envelope = updated
	}
	return envelope
}

// FromGovernor classifies a governor failure. The request path and backend
// status, when known, are carried in the envelope context.
func FromGovernor(ctx context.Context, err error) *errors.ErrorEnvelope {
	if err == nil {
		return nil
	}

	code, message, severe := classify(err)
	envelope := errors.NewErrorEnvelope(code, message).WithCorrelationID(extractCorrelationID(ctx))

	details := map[string]interface{}{"wrapped_error": err.Error()}
	var reqErr *governor.RequestError
	if stderrors.As(err, &reqErr) {
		details["path"] = reqErr.Path
		details["backend_status"] = reqErr.StatusCode
		if reqErr.RetryAfter != "" {
			details["retry_after"] = reqErr.RetryAfter
		}
	}
	if updated, updateErr := envelope.WithContext(details); updateErr == nil {
		envelope = updated
	}
	updated, updateErr := envelope.WithSeverity(errors.SeverityMedium)
	if severe {
		updated, updateErr = envelope.WithSeverity(errors.SeverityHigh)
	}
	if updateErr == nil {
		envelope = updated
	}
	return envelope
}

// classify returns the envelope code and message, and whether the failure
// points at the backend or closetiq itself rather than the caller.
func classify(err error) (string, string, bool) {
	switch {
	case stderrors.Is(err, governor.ErrClosed):
		return "SERVICE_UNAVAILABLE", "request governor is shut down", false
	case stderrors.Is(err, governor.ErrCleared):
		return CodeQueueCleared, "request dropped by queue clear", false
	case stderrors.Is(err, governor.ErrResponseTooLarge):
		return "EXTERNAL_SERVICE_ERROR", "backend response too large", true
	case stderrors.Is(err, context.DeadlineExceeded):
		return "TIMEOUT", "backend request timed out", false
	case stderrors.Is(err, context.Canceled):
		return "TIMEOUT", "request cancelled", false
	}

	var reqErr *governor.RequestError
	if !stderrors.As(err, &reqErr) {
		return "INTERNAL_ERROR", "unexpected error", true
	}

	message := reqErr.Message
	switch {
	case reqErr.Network():
		return CodeBackendUnavailable, "backend unreachable", true
	case reqErr.StatusCode == http.StatusUnauthorized:
		return "UNAUTHORIZED", orDefault(message, "authentication required"), false
	case reqErr.StatusCode == http.StatusForbidden:
		return "FORBIDDEN", orDefault(message, "access denied"), false
	case reqErr.StatusCode == http.StatusNotFound:
		return "NOT_FOUND", orDefault(message, "resource not found"), false
	case reqErr.StatusCode == http.StatusConflict:
		return "CONFLICT", orDefault(message, "conflict"), false
	case reqErr.StatusCode == http.StatusTooManyRequests:
		return CodeRateLimited, orDefault(message, "backend rate limit exceeded"), false
	case reqErr.StatusCode >= 500:
		return "EXTERNAL_SERVICE_ERROR", orDefault(message, "backend error"), true
	default:
		return "INVALID_INPUT", orDefault(message, http.StatusText(reqErr.StatusCode)), false
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// extractCorrelationID prefers the inbound request ID and falls back to a new UUID.
func extractCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if requestID := middleware.GetRequestID(ctx); requestID != "" {
			return requestID
		}
	}
	return uuid.New().String()
}

// EnsureEnvelope normalizes any error into a gofulmen ErrorEnvelope.
func EnsureEnvelope(err error) *errors.ErrorEnvelope {
	if err == nil {
		env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected nil error")
		env, _ = env.WithSeverity(errors.SeverityCritical)
		return env
	}

	var envelope *errors.ErrorEnvelope
	if stderrors.As(err, &envelope) && envelope != nil {
		return envelope
	}

	var reqErr *governor.RequestError
	if stderrors.As(err, &reqErr) || stderrors.Is(err, governor.ErrClosed) || stderrors.Is(err, governor.ErrCleared) {
		return FromGovernor(nil, err)
	}

	env := errors.NewErrorEnvelope("INTERNAL_ERROR", "unexpected error")
	env, _ = env.WithContext(map[string]interface{}{
		"wrapped_error": err.Error(),
	})
	env, _ = env.WithSeverity(errors.SeverityHigh)
	return env
}

// EnsureCorrelationID attaches a correlation ID to the envelope using the context when available.
func EnsureCorrelationID(envelope *errors.ErrorEnvelope, ctx context.Context) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}
	if envelope.CorrelationID != "" {
		return envelope
	}

	var correlationID string
	if ctx != nil {
		correlationID = middleware.GetRequestID(ctx)
	}
	if correlationID == "" {
		correlationID = "fallback-" + errors.GenerateCorrelationID()
	}
	return envelope.WithCorrelationID(correlationID)
}

// HTTPStatusFromEnvelope resolves the HTTP status code corresponding to an error envelope.
func HTTPStatusFromEnvelope(envelope *errors.ErrorEnvelope) int {
	if envelope == nil {
		return http.StatusInternalServerError
	}
	return HTTPStatusFromCode(envelope.Code)
}

// HTTPStatusFromCode resolves the HTTP status code corresponding to an error code.
func HTTPStatusFromCode(code string) int {
	switch code {
	case "INVALID_INPUT", "VALIDATION_FAILED":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "UNAUTHORIZED":
		return http.StatusUnauthorized
	case "FORBIDDEN":
		return http.StatusForbidden
	case "METHOD_NOT_ALLOWED":
		return http.StatusMethodNotAllowed
	case "CONFLICT", CodeQueueCleared:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case "TIMEOUT":
		return http.StatusGatewayTimeout
	case "EXTERNAL_SERVICE_ERROR":
		return http.StatusBadGateway
	case "SERVICE_UNAVAILABLE", CodeBackendUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ResponseDetails merges envelope details and context into an API-safe map.
func ResponseDetails(envelope *errors.ErrorEnvelope) map[string]interface{} {
	if envelope == nil {
		return nil
	}

	details := make(map[string]interface{})
	for key, value := range envelope.Details {
		details[key] = value
	}
	for key, value := range envelope.Context {
		if _, exists := details[key]; !exists {
			details[key] = value
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}

// HTTPErrorDetail captures the error body returned to callers.
type HTTPErrorDetail struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// HTTPErrorResponse wraps HTTPErrorDetail in the standard envelope structure.
type HTTPErrorResponse struct {
	Error HTTPErrorDetail `json:"error"`
}

// RespondWithError normalizes the supplied error and writes a JSON response.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	RespondWithEnvelope(w, r, EnsureEnvelope(err))
}

// RespondWithEnvelope finalizes the provided envelope, logging and emitting metrics.
func RespondWithEnvelope(w http.ResponseWriter, r *http.Request, envelope *errors.ErrorEnvelope) {
	if w == nil {
		return
	}

	var ctx context.Context
	if r != nil {
		ctx = r.Context()
	}
	envelope = EnsureCorrelationID(envelope, ctx)
	statusCode := HTTPStatusFromEnvelope(envelope)

	logHTTPError(envelope, statusCode)
	emitErrorMetrics(r, envelope, statusCode)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPErrorDetail{
			Code:      envelope.Code,
			Message:   envelope.Message,
			Details:   ResponseDetails(envelope),
			RequestID: envelope.CorrelationID,
		},
	})
}

func logHTTPError(envelope *errors.ErrorEnvelope, statusCode int) {
	if observability.ServerLogger == nil || envelope == nil {
		return
	}

	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.Int("http_status", statusCode),
	}
	if envelope.Severity != "" {
		fields = append(fields, zap.String("severity", string(envelope.Severity)))
	}
	for key, value := range envelope.Context {
		fields = append(fields, zap.Any(key, value))
	}
	if envelope.CorrelationID != "" {
		fields = append(fields, zap.String("request_id", envelope.CorrelationID))
	}

	switch envelope.Severity {
	case errors.SeverityCritical, errors.SeverityHigh:
		observability.ServerLogger.Error(envelope.Message, fields...)
	case errors.SeverityMedium:
		observability.ServerLogger.Warn(envelope.Message, fields...)
	default:
		observability.ServerLogger.Info(envelope.Message, fields...)
	}
}

func emitErrorMetrics(r *http.Request, envelope *errors.ErrorEnvelope, statusCode int) {
	if envelope == nil {
		return
	}
	metrics.RecordError(envelope.Code, statusCode)
	if r != nil {
		metrics.RecordErrorByEndpoint(r.URL.Path, envelope.Code)
	}
}
