package errors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/server/middleware"
)

func TestFromGovernorCodes(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{&governor.RequestError{Path: "/api/clothing"}, CodeBackendUnavailable, http.StatusServiceUnavailable},
		{&governor.RequestError{StatusCode: 401}, "UNAUTHORIZED", http.StatusUnauthorized},
		{&governor.RequestError{StatusCode: 403}, "FORBIDDEN", http.StatusForbidden},
		{&governor.RequestError{StatusCode: 404}, "NOT_FOUND", http.StatusNotFound},
		{&governor.RequestError{StatusCode: 429, RetryAfter: "5"}, CodeRateLimited, http.StatusTooManyRequests},
		{&governor.RequestError{StatusCode: 502}, "EXTERNAL_SERVICE_ERROR", http.StatusBadGateway},
		{&governor.RequestError{StatusCode: 422, Message: "bad season"}, "INVALID_INPUT", http.StatusBadRequest},
		{&governor.RequestError{StatusCode: 200, Err: governor.ErrResponseTooLarge}, "EXTERNAL_SERVICE_ERROR", http.StatusBadGateway},
		{governor.ErrClosed, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{fmt.Errorf("queued: %w", governor.ErrCleared), CodeQueueCleared, http.StatusConflict},
		{context.DeadlineExceeded, "TIMEOUT", http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), "INTERNAL_ERROR", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		env := FromGovernor(context.Background(), tc.err)
		require.NotNil(t, env, tc.err.Error())
		assert.Equal(t, tc.code, env.Code, tc.err.Error())
		assert.Equal(t, tc.status, HTTPStatusFromEnvelope(env), tc.err.Error())
	}

	assert.Nil(t, FromGovernor(context.Background(), nil))
}

func TestFromGovernorContext(t *testing.T) {
	ctx := middleware.WithRequestID(context.Background(), "req-42")
	env := FromGovernor(ctx, &governor.RequestError{Method: "GET", Path: "/api/wardrobes", StatusCode: 429, RetryAfter: "7", Message: "slow down"})

	assert.Equal(t, "req-42", env.CorrelationID)
	assert.Equal(t, "slow down", env.Message)
	assert.Equal(t, "/api/wardrobes", env.Context["path"])
	assert.Equal(t, "7", env.Context["retry_after"])
}

func TestRespondWithError(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/clothing", nil)
	rec := httptest.NewRecorder()

	RespondWithError(rec, req, &governor.RequestError{Method: "GET", Path: "/api/clothing", StatusCode: 503})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "EXTERNAL_SERVICE_ERROR", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
	assert.Equal(t, "/api/clothing", body.Error.Details["path"])
}

func TestEnsureEnvelope(t *testing.T) {
	env := NewNotFoundError("missing")
	assert.Same(t, env, EnsureEnvelope(env))

	wrapped := EnsureEnvelope(fmt.Errorf("plain"))
	assert.Equal(t, "INTERNAL_ERROR", wrapped.Code)
	assert.Equal(t, "plain", wrapped.Context["wrapped_error"])

	assert.Equal(t, "INTERNAL_ERROR", EnsureEnvelope(nil).Code)
	assert.Equal(t, CodeRateLimited, EnsureEnvelope(&governor.RequestError{StatusCode: 429}).Code)
}

func TestEnsureCorrelationIDFallback(t *testing.T) {
	env := EnsureCorrelationID(NewInternalError("x"), nil)
	assert.Contains(t, env.CorrelationID, "fallback-")
	assert.Nil(t, EnsureCorrelationID(nil, nil))
}
