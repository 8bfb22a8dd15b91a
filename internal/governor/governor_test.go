package governor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type recordingHooks struct {
	mu       sync.Mutex
	retries  []time.Duration
	reasons  []string
	settled  []bool
	shared   int
	statuses []int
}

func (h *recordingHooks) OnEnqueue(int) {}

func (h *recordingHooks) OnDispatch(method string, status int, duration time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

func (h *recordingHooks) OnRetry(reason string, attempt int, delay time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
	h.retries = append(h.retries, delay)
}

func (h *recordingHooks) OnSettle(success bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settled = append(h.settled, success)
}

func (h *recordingHooks) OnDedupe(shared bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if shared {
		h.shared++
	}
}

func (h *recordingHooks) OnTokenRefresh(bool) {}

func (h *recordingHooks) snapshot() ([]time.Duration, []string, []bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Duration(nil), h.retries...), append([]string(nil), h.reasons...), append([]bool(nil), h.settled...)
}

type memoryWindowStore struct {
	mu     sync.Mutex
	states map[string]WindowState
}

func (m *memoryWindowStore) GetWindow(ctx context.Context, endpoint string) (*WindowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[endpoint]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *memoryWindowStore) SaveWindow(ctx context.Context, endpoint string, state *WindowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]WindowState)
	}
	m.states[endpoint] = *state
	return nil
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:        baseURL,
		TickInterval:   time.Millisecond,
		MaxPerWindow:   1000,
		WindowDuration: time.Minute,
		MinInterval:    0,
		RequestTimeout: 2 * time.Second,
		HealthTimeout:  time.Second,
		Retry: RetryPolicy{
			MaxRetries:    3,
			BaseDelay:     time.Millisecond,
			MaxDelay:      5 * time.Millisecond,
			RateLimitBase: time.Millisecond,
			RateLimitMax:  5 * time.Millisecond,
		},
	}
}

func newTestGovernor(t *testing.T, cfg Config, opts ...Option) *Governor {
	t.Helper()
	g, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "not a url"})
	require.Error(t, err)

	_, err = New(Config{BaseURL: "/relative"})
	require.Error(t, err)
}

func TestGetDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/clothing", r.URL.Path)
		assert.Equal(t, "w1", r.URL.Query().Get("wardrobeId"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"items":[{"id":"c1"}]}}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/clothing", map[string][]string{"wardrobeId": {"w1"}})
	require.NoError(t, err)
	require.True(t, res.Success)

	var payload struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, res.Decode(&payload))
	require.Len(t, payload.Items, 1)
	require.Equal(t, "c1", payload.Items[0].ID)
}

func TestNonEnvelopeBodyIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `[1,2,3]`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/wardrobes", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.JSONEq(t, `[1,2,3]`, string(res.Data))
}

func TestOversizedResponseFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":"`)
		_, _ = io.WriteString(w, strings.Repeat("x", maxResponseBytes))
		_, _ = io.WriteString(w, `"}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/clothing", nil)
	require.ErrorIs(t, err, ErrResponseTooLarge)
	require.False(t, res.Success)
	require.Empty(t, res.Data)
	require.Equal(t, http.StatusOK, StatusCode(err))
	require.Equal(t, int32(1), hits.Load())
}

func TestResponseAtLimitIsAccepted(t *testing.T) {
	payload := strings.Repeat("y", maxResponseBytes-len(`{"success":true,"data":""}`))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true,"data":"`+payload+`"}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/clothing", nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	var data string
	require.NoError(t, res.Decode(&data))
	require.Len(t, data, len(payload))
}

func TestForbiddenIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusForbidden, `{"message":"Access denied"}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/admin", nil)
	require.Error(t, err)
	require.NotNil(t, res)
	require.False(t, res.Success)
	require.Equal(t, "Access denied", res.Message)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	require.Equal(t, http.StatusForbidden, reqErr.StatusCode)
	require.Equal(t, int32(1), hits.Load())
}

func TestServerErrorRetriesThenFails(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"error":"boom"}`)
	}))
	defer srv.Close()

	hooks := &recordingHooks{}
	g := newTestGovernor(t, testConfig(srv.URL), WithHooks(hooks))

	res, err := g.Post(context.Background(), "/api/clothing", map[string]string{"name": "scarf"})
	require.Error(t, err)
	require.Equal(t, "boom", res.Message)
	require.Equal(t, http.StatusInternalServerError, StatusCode(err))
	require.Equal(t, int32(4), hits.Load())

	delays, reasons, settled := hooks.snapshot()
	require.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 5 * time.Millisecond}, delays)
	require.Equal(t, []string{"server_error", "server_error", "server_error"}, reasons)
	require.Equal(t, []bool{false}, settled)
}

func TestNetworkErrorTwiceThenSuccess(t *testing.T) {
	var attempts atomic.Int32
	client := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if attempts.Add(1) <= 2 {
			return nil, errors.New("connection reset by peer")
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"success":true,"data":{"ok":true}}`)),
			Request:    r,
		}, nil
	})}

	g := newTestGovernor(t, testConfig("http://backend.test"), WithHTTPClient(client))
	res, err := g.Get(context.Background(), "/api/recommendations", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.JSONEq(t, `{"ok":true}`, string(res.Data))
	require.Equal(t, int32(3), attempts.Load())
}

func TestRateLimitedHonoursRetryAfter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			writeJSON(w, http.StatusTooManyRequests, `{"message":"slow down"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	hooks := &recordingHooks{}
	g := newTestGovernor(t, testConfig(srv.URL), WithHooks(hooks))

	res, err := g.Get(context.Background(), "/api/wardrobes", nil)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, int32(2), hits.Load())

	delays, reasons, _ := hooks.snapshot()
	require.Equal(t, []time.Duration{0}, delays)
	require.Equal(t, []string{"rate_limited"}, reasons)
}

func TestRetryAfterDelaysNextAttempt(t *testing.T) {
	var mu sync.Mutex
	var hitTimes []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hitTimes = append(hitTimes, time.Now())
		first := len(hitTimes) == 1
		mu.Unlock()
		if first {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, `{"message":"slow down"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Get(context.Background(), "/api/wardrobes", nil)
	require.NoError(t, err)
	require.True(t, res.Success)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, hitTimes, 2)
	require.GreaterOrEqual(t, hitTimes[1].Sub(hitTimes[0]), time.Second)
}

func TestConcurrentGetsShareOneCall(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"count":3}}`)
	}))
	defer srv.Close()

	hooks := &recordingHooks{}
	g := newTestGovernor(t, testConfig(srv.URL), WithHooks(hooks))

	var wg sync.WaitGroup
	results := make([]*Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Get(context.Background(), "/api/clothing", nil)
		}(i)
	}

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, results[0], results[1])
	require.NotSame(t, results[0], results[1])
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, 2, hooks.shared)
}

func TestGetsWithDifferentHeadersAreNotShared(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		writeJSON(w, http.StatusOK, `{"success":true,"data":"`+r.Header.Get("X-Variant")+`"}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))

	variants := []string{"a", "b"}
	results := make([]*Result, len(variants))
	var wg sync.WaitGroup
	for i, v := range variants {
		wg.Add(1)
		go func(i int, v string) {
			defer wg.Done()
			res, err := g.Do(context.Background(), &Request{
				Method: http.MethodGet,
				Path:   "/api/x",
				Header: http.Header{"x-variant": {v}},
			})
			assert.NoError(t, err)
			results[i] = res
		}(i, v)
	}

	require.Eventually(t, func() bool { return hits.Load() >= 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(2), hits.Load())
	for i, v := range variants {
		var got string
		require.NoError(t, results[i].Decode(&got))
		require.Equal(t, v, got)
	}
}

func TestPostOutsideAllowListIsNotShared(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(20 * time.Millisecond)
		writeJSON(w, http.StatusCreated, `{"success":true}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Post(context.Background(), "/api/clothing", map[string]string{"name": "coat"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(2), hits.Load())
}

func TestBearerTokenAndUnauthorizedInvalidation(t *testing.T) {
	var hits atomic.Int32
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("Authorization"))
		mu.Unlock()
		if hits.Add(1) == 1 {
			writeJSON(w, http.StatusUnauthorized, `{"message":"token expired"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	source := &countingSource{}
	store := &memoryTokenStore{}
	cache := NewTokenCache(source, store)
	g := newTestGovernor(t, testConfig(srv.URL), WithTokenCache(cache))

	_, err := g.Get(context.Background(), "/api/auth/me", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, StatusCode(err))
	require.Equal(t, int32(1), hits.Load())
	require.Nil(t, cache.Peek())
	require.Nil(t, store.cred)

	_, err = g.Get(context.Background(), "/api/auth/me", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, seen)
}

func TestAnonymousRequestHasNoAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	cache := NewTokenCache(&countingSource{err: ErrNoIdentity}, nil)
	g := newTestGovernor(t, testConfig(srv.URL), WithTokenCache(cache))

	_, err := g.Get(context.Background(), "/health", nil)
	require.NoError(t, err)
}

func TestUploadSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close() // nolint:errcheck // test cleanup
		data, _ := io.ReadAll(file)
		assert.Equal(t, "shirt.jpg", header.Filename)
		assert.Equal(t, "jpegbytes", string(data))
		assert.Equal(t, "casual", r.FormValue("occasion"))
		writeJSON(w, http.StatusOK, `{"success":true,"data":{"predicted_class":"shirt"}}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	res, err := g.Upload(context.Background(), "/api/classify", &Form{
		Fields: map[string]string{"occasion": "casual"},
		Files:  []File{{Field: "image", Name: "shirt.jpg", ContentType: "image/jpeg", Data: []byte("jpegbytes")}},
	})
	require.NoError(t, err)
	require.True(t, res.Success)
}

func TestBasePathPrefixIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/backend/api/outfits/generate", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL+"/backend/"))
	_, err := g.Post(context.Background(), "api/outfits/generate", map[string]any{"occasion": "work"})
	require.NoError(t, err)
}

func TestClearDropsQueuedRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPerWindow = 1
	cfg.WindowDuration = time.Hour
	g := newTestGovernor(t, cfg)

	_, err := g.Delete(context.Background(), "/api/clothing/1")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Delete(context.Background(), "/api/clothing/2")
		errCh <- err
	}()
	require.Eventually(t, func() bool { return g.Status().PendingRequests == 1 }, time.Second, time.Millisecond)

	status := g.Status()
	require.Equal(t, 1, status.RequestCount)
	require.Greater(t, status.TimeToReset, 59*time.Minute)

	require.Equal(t, 1, g.Clear())
	require.ErrorIs(t, <-errCh, ErrCleared)
	require.Equal(t, 0, g.Status().RequestCount)
}

func TestClearSettlesFiredRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("cleared request reached the backend: %s", r.URL.Path)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))

	// A stopped timer reports false from Stop, as one that has already fired
	// and is waiting to hand its entry back to the loop.
	e := newEntry(&Request{Method: http.MethodGet, Path: "/api/clothing"}, time.Now())
	require.True(t, g.inspect(func(s *scheduler) {
		timer := time.NewTimer(time.Hour)
		timer.Stop()
		s.delayed[e] = timer
	}))

	require.Equal(t, 1, g.Clear())
	select {
	case o := <-e.done:
		require.ErrorIs(t, o.err, ErrCleared)
		require.False(t, o.result.Success)
	default:
		t.Fatal("cleared entry was not settled")
	}

	g.requeue <- e
	status := g.Status()
	require.Equal(t, 0, status.PendingRequests)
	require.Equal(t, 0, status.RetryWaiting)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, g.Status().RequestCount)
}

func TestCloseSettlesPendingRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxPerWindow = 1
	cfg.WindowDuration = time.Hour
	store := &memoryWindowStore{}
	g, err := New(cfg, WithWindowStore(store))
	require.NoError(t, err)

	_, err = g.Put(context.Background(), "/api/auth/profile", map[string]string{"displayName": "Ada"})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Patch(context.Background(), "/api/clothing/1", map[string]bool{"isFavorite": true})
		errCh <- err
	}()
	require.Eventually(t, func() bool { return g.Status().PendingRequests == 1 }, time.Second, time.Millisecond)

	require.NoError(t, g.Close())
	require.ErrorIs(t, <-errCh, ErrClosed)
	require.True(t, g.Status().Closed)

	_, err = g.Get(context.Background(), "/api/clothing", nil)
	require.ErrorIs(t, err, ErrClosed)

	state, err := store.GetWindow(context.Background(), g.Endpoint())
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, 1, state.RequestCount)

	restored := newTestGovernor(t, cfg, WithWindowStore(store))
	require.Equal(t, 1, restored.Status().RequestCount)
}

func TestCallerContextCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, `{"success":true}`)
	}))
	defer srv.Close()
	defer close(release)

	g := newTestGovernor(t, testConfig(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	res, err := g.Get(ctx, "/api/slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, res.Success)
}

func TestCheckHealth(t *testing.T) {
	var hits atomic.Int32
	healthy := atomic.Bool{}
	healthy.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/health", r.URL.Path)
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGovernor(t, testConfig(srv.URL))
	require.True(t, g.CheckHealth(context.Background()))

	healthy.Store(false)
	require.False(t, g.CheckHealth(context.Background()))
	require.Equal(t, 0, g.Status().RequestCount)

	srv.Close()
	require.False(t, g.CheckHealth(context.Background()))
	require.Equal(t, int32(2), hits.Load())
}
