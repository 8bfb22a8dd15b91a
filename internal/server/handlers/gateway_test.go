package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/closetiq/closetiq/internal/governor"
)

type fakeGateway struct {
	last    *governor.Request
	result  *governor.Result
	err     error
	healthy bool
	status  governor.QueueStatus
	dropped int
}

func (f *fakeGateway) Do(ctx context.Context, req *governor.Request) (*governor.Result, error) {
	f.last = req
	return f.result, f.err
}

func (f *fakeGateway) CheckHealth(ctx context.Context) bool { return f.healthy }
func (f *fakeGateway) Status() governor.QueueStatus        { return f.status }
func (f *fakeGateway) Clear() int                          { return f.dropped }

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) governor.Result {
	t.Helper()
	var res governor.Result
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	return res
}

func TestForwardJSON(t *testing.T) {
	gw := &fakeGateway{result: &governor.Result{Success: true, Data: json.RawMessage(`{"id":"c1"}`)}}
	h := &GovernorHandlers{Gateway: gw}

	req := httptest.NewRequest(http.MethodPut, "/api/clothing/c1", strings.NewReader(`{"color":"navy"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Forward(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeResult(t, rec)
	assert.True(t, res.Success)
	assert.JSONEq(t, `{"id":"c1"}`, string(res.Data))

	require.NotNil(t, gw.last)
	assert.Equal(t, http.MethodPut, gw.last.Method)
	assert.Equal(t, "/api/clothing/c1", gw.last.Path)
	assert.Nil(t, gw.last.Query)
	assert.Equal(t, json.RawMessage(`{"color":"navy"}`), gw.last.Body)
}

func TestForwardWithoutBody(t *testing.T) {
	gw := &fakeGateway{result: &governor.Result{Success: true}}
	h := &GovernorHandlers{Gateway: gw}

	rec := httptest.NewRecorder()
	h.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/wardrobes?page=2", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, gw.last.Body)
	assert.Equal(t, "2", gw.last.Query.Get("page"))
}

func TestForwardRejectsInvalidJSON(t *testing.T) {
	gw := &fakeGateway{}
	h := &GovernorHandlers{Gateway: gw}

	rec := httptest.NewRecorder()
	h.Forward(rec, httptest.NewRequest(http.MethodPost, "/api/clothing", strings.NewReader("not json")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, gw.last)
}

func TestForwardMultipart(t *testing.T) {
	gw := &fakeGateway{result: &governor.Result{Success: true}}
	h := &GovernorHandlers{Gateway: gw}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("wardrobeId", "w1"))
	part, err := mw.CreateFormFile("image", "shirt.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/classify", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Forward(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, gw.last.Form)
	assert.Equal(t, "w1", gw.last.Form.Fields["wardrobeId"])
	require.Len(t, gw.last.Form.Files, 1)
	assert.Equal(t, "image", gw.last.Form.Files[0].Field)
	assert.Equal(t, "shirt.jpg", gw.last.Form.Files[0].Name)
	assert.Equal(t, []byte("jpeg-bytes"), gw.last.Form.Files[0].Data)
}

func TestForwardMapsGovernorErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"rate limited", &governor.RequestError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, http.StatusTooManyRequests},
		{"network", &governor.RequestError{Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{"unauthorized", &governor.RequestError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{"cleared", governor.ErrCleared, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gw := &fakeGateway{
				result: &governor.Result{Success: false, Error: tc.err.Error()},
				err:    tc.err,
			}
			h := &GovernorHandlers{Gateway: gw}

			rec := httptest.NewRecorder()
			h.Forward(rec, httptest.NewRequest(http.MethodGet, "/api/auth/me", nil))

			assert.Equal(t, tc.want, rec.Code)
			res := decodeResult(t, rec)
			assert.False(t, res.Success)
			assert.Equal(t, tc.err.Error(), res.Error)
		})
	}
}

func TestStatusAndClear(t *testing.T) {
	gw := &fakeGateway{
		status:  governor.QueueStatus{PendingRequests: 3, MaxPerWindow: 30, TimeToReset: 1500 * time.Millisecond},
		dropped: 3,
	}
	h := &GovernorHandlers{Gateway: gw}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/v1/governor/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 3, status.PendingRequests)
	assert.Equal(t, int64(1500), status.TimeToResetMS)

	rec = httptest.NewRecorder()
	h.Clear(rec, httptest.NewRequest(http.MethodPost, "/v1/governor/clear", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dropped":3}`, rec.Body.String())
}

func TestBackendHealth(t *testing.T) {
	h := &GovernorHandlers{Gateway: &fakeGateway{healthy: true}}
	rec := httptest.NewRecorder()
	h.BackendHealth(rec, httptest.NewRequest(http.MethodGet, "/v1/backend/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h = &GovernorHandlers{Gateway: &fakeGateway{healthy: false}}
	rec = httptest.NewRecorder()
	h.BackendHealth(rec, httptest.NewRequest(http.MethodGet, "/v1/backend/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "BACKEND_UNAVAILABLE")
}
