package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/closetiq/closetiq/internal/errors"
	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/server/handlers"
)

type fakeGateway struct {
	mu       sync.Mutex
	requests []*governor.Request
	result   *governor.Result
	err      error
	healthy  bool
	status   governor.QueueStatus
	dropped  int
}

func (f *fakeGateway) Do(ctx context.Context, req *governor.Request) (*governor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

func (f *fakeGateway) CheckHealth(ctx context.Context) bool { return f.healthy }
func (f *fakeGateway) Status() governor.QueueStatus        { return f.status }
func (f *fakeGateway) Clear() int                          { return f.dropped }

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/does-not-exist", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
}

func TestGovernorRoutesRequireGateway(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/governor/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForwardThroughRouter(t *testing.T) {
	gw := &fakeGateway{result: &governor.Result{Success: true, Data: json.RawMessage(`{"items":[]}`)}}
	srv := New(Options{Gateway: gw})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/clothing?wardrobeId=w1", strings.NewReader(`{"name":"Blue Shirt"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, http.MethodPost, gw.requests[0].Method)
	assert.Equal(t, "/api/clothing", gw.requests[0].Path)
	assert.Equal(t, "w1", gw.requests[0].Query.Get("wardrobeId"))
	assert.JSONEq(t, `{"name":"Blue Shirt"}`, string(gw.requests[0].Body.(json.RawMessage)))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestGovernorStatusRoute(t *testing.T) {
	gw := &fakeGateway{status: governor.QueueStatus{PendingRequests: 2, RequestCount: 7, MaxPerWindow: 30}}
	srv := New(Options{Gateway: gw})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/governor/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body handlers.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 2, body.PendingRequests)
	assert.Equal(t, 7, body.RequestCount)
}

func TestAdminEndpointDisabledWithoutToken(t *testing.T) {
	srv := New(Options{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/signal", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClearRequiresAdminToken(t *testing.T) {
	t.Run("NotMountedWithoutToken", func(t *testing.T) {
		srv := New(Options{Gateway: &fakeGateway{dropped: 3}})

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/governor/clear", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	srv := New(Options{Gateway: &fakeGateway{dropped: 3}, AdminToken: "s3cret"})
	postClear := func(auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/governor/clear", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	for _, auth := range []string{"", "Bearer wrong", "s3cret", "Basic s3cret"} {
		rec := postClear(auth)
		require.Equal(t, http.StatusUnauthorized, rec.Code, auth)

		var body apperrors.HTTPErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	}

	rec := postClear("Bearer s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dropped":3}`, rec.Body.String())
}
