package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	err error
}

func (s stubChecker) CheckHealth(ctx context.Context) error {
	return s.err
}

func TestHealthHandlerReturnsHealthyStatus(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("backend", stubChecker{})

	rec := httptest.NewRecorder()
	manager.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "healthy", resp.Checks["backend"])
}

func TestReadinessFailsWhenBackendDown(t *testing.T) {
	manager := NewHealthManager("1.2.3")
	manager.RegisterChecker("backend", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp struct {
		Error struct {
			Code    string                 `json:"code"`
			Message string                 `json:"message"`
			Details map[string]interface{} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Error.Code)
	assert.Equal(t, "ready probe failed", resp.Error.Message)

	checks, ok := resp.Error.Details["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "unhealthy", checks["backend"])
}

func TestLivenessIgnoresChecks(t *testing.T) {
	manager := NewHealthManager("dev")
	manager.RegisterChecker("backend", stubChecker{err: errors.New("down")})

	rec := httptest.NewRecorder()
	manager.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, "degraded", overallStatus(map[string]string{"backend": "timeout"}))
	assert.Equal(t, "unhealthy", overallStatus(map[string]string{"a": "timeout", "b": "unhealthy"}))
	assert.Equal(t, "healthy", overallStatus(nil))
}

func TestGlobalHandlersWithoutManager(t *testing.T) {
	original := globalHealthManager
	globalHealthManager = nil
	t.Cleanup(func() { globalHealthManager = original })

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	InitHealthManager("dev")
	rec = httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackendChecker(t *testing.T) {
	assert.NoError(t, BackendChecker{Probe: func(context.Context) bool { return true }}.CheckHealth(context.Background()))
	assert.ErrorIs(t, BackendChecker{Probe: func(context.Context) bool { return false }}.CheckHealth(context.Background()), ErrBackendUnhealthy)
	assert.ErrorIs(t, BackendChecker{}.CheckHealth(context.Background()), ErrBackendUnhealthy)
}
