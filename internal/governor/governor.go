// Package governor mediates every call from the client to the wardrobe
// backend: it attaches credentials, paces dispatches under a request budget,
// retries transient failures and collapses duplicate in-flight reads.
package governor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

// Config holds the governor tuning knobs.
type Config struct {
	BaseURL         string
	TickInterval    time.Duration
	MaxPerWindow    int
	WindowDuration  time.Duration
	MinInterval     time.Duration
	RequestTimeout  time.Duration
	HealthPath      string
	HealthTimeout   time.Duration
	UserAgent       string
	DedupePostPaths []string
	Retry           RetryPolicy
}

// DefaultConfig returns the production pacing and retry settings.
func DefaultConfig() Config {
	return Config{
		TickInterval:   50 * time.Millisecond,
		MaxPerWindow:   30,
		WindowDuration: time.Minute,
		MinInterval:    100 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		HealthPath:     "/health",
		HealthTimeout:  5 * time.Second,
		UserAgent:      "closetiq",
		Retry:          DefaultRetryPolicy(),
	}
}

// Option customises a Governor.
type Option func(*Governor)

// WithHTTPClient overrides the client used for backend calls.
func WithHTTPClient(client *http.Client) Option {
	return func(g *Governor) {
		if client != nil {
			g.client = client
		}
	}
}

// WithTokenCache attaches a credential cache.
func WithTokenCache(cache *TokenCache) Option {
	return func(g *Governor) { g.tokens = cache }
}

// WithWindowStore persists the rate-limit window under the backend host.
func WithWindowStore(store WindowStore) Option {
	return func(g *Governor) { g.windowStore = store }
}

// WithHooks installs event hooks, typically metrics.
func WithHooks(hooks Hooks) Option {
	return func(g *Governor) {
		if hooks != nil {
			g.hooks = hooks
		}
	}
}

// WithLogger sets the logger for dispatch and retry events.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Governor) { g.logger = logger }
}

// WithClock replaces the wall clock used for admission decisions.
func WithClock(clock func() time.Time) Option {
	return func(g *Governor) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// Governor owns the pending queue, the rate-limit window and the retry timers.
// All of that state is touched only by the loop goroutine.
type Governor struct {
	cfg         Config
	base        *url.URL
	client      *http.Client
	tokens      *TokenCache
	deduper     *Deduper
	windowStore WindowStore
	hooks       Hooks
	logger      *logging.Logger
	clock       func() time.Time

	sched *scheduler

	submit  chan *entry
	requeue chan *entry
	done    chan completion
	control chan func(*scheduler)
	quit    chan struct{}
	stopped chan struct{}

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type completion struct {
	entry  *entry
	result *Result
	err    error
}

// New validates cfg, restores any persisted window and starts the scheduler loop.
func New(cfg Config, opts ...Option) (*Governor, error) {
	cfg = withDefaults(cfg)

	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, errors.New("backend url must include scheme and host")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Governor{
		cfg:     cfg,
		base:    base,
		client:  &http.Client{},
		deduper: NewDeduper(cfg.DedupePostPaths),
		hooks:   NopHooks{},
		clock:   func() time.Time { return time.Now().UTC() },
		submit:  make(chan *entry),
		requeue: make(chan *entry),
		done:    make(chan completion),
		control: make(chan func(*scheduler)),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.cfg.Retry.Clock == nil {
		g.cfg.Retry.Clock = g.clock
	}
	g.sched = newScheduler(NewWindow(cfg.MaxPerWindow, cfg.WindowDuration, cfg.MinInterval))
	g.restoreWindow()

	go g.run()
	return g, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = def.MaxPerWindow
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = def.WindowDuration
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if strings.TrimSpace(cfg.HealthPath) == "" {
		cfg.HealthPath = def.HealthPath
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = def.HealthTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	cfg.Retry = retryDefaults(cfg.Retry, def.Retry)
	return cfg
}

func retryDefaults(p, def RetryPolicy) RetryPolicy {
	if p.BaseDelay <= 0 && p.RateLimitBase <= 0 && p.MaxRetries == 0 {
		def.Clock = p.Clock
		return def
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.RateLimitBase <= 0 {
		p.RateLimitBase = def.RateLimitBase
	}
	if p.RateLimitMax <= 0 {
		p.RateLimitMax = def.RateLimitMax
	}
	return p
}

// Tokens returns the attached credential cache, if any.
func (g *Governor) Tokens() *TokenCache {
	if g == nil {
		return nil
	}
	return g.tokens
}

// Endpoint is the key used for the persisted rate-limit window.
func (g *Governor) Endpoint() string {
	if g == nil || g.base == nil {
		return ""
	}
	return g.base.Host
}

// Close stops the loop, settles every pending request with ErrClosed and
// persists the window snapshot.
func (g *Governor) Close() error {
	if g == nil {
		return nil
	}

	var saveErr error
	g.closeOnce.Do(func() {
		close(g.quit)
		<-g.stopped
		g.cancel()
		saveErr = g.saveWindow()
	})
	return saveErr
}

func (g *Governor) run() {
	defer close(g.stopped)

	ticker := time.NewTicker(g.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.quit:
			g.shutdown()
			return
		case e := <-g.submit:
			g.sched.queue.pushFresh(e)
			g.hooks.OnEnqueue(g.sched.queue.len())
		case e := <-g.requeue:
			// Clear may have settled the entry after its timer fired.
			if _, waiting := g.sched.delayed[e]; !waiting {
				continue
			}
			delete(g.sched.delayed, e)
			g.sched.queue.pushRetry(e)
		case c := <-g.done:
			g.sched.finish()
			g.complete(c)
		case fn := <-g.control:
			fn(g.sched)
		case <-ticker.C:
			if e := g.sched.next(g.now()); e != nil {
				go g.execute(e)
			}
		}
	}
}

func (g *Governor) execute(e *entry) {
	res, err := g.send(g.ctx, e.req)
	c := completion{entry: e, result: res, err: err}
	select {
	case g.done <- c:
	case <-g.quit:
		if err != nil {
			e.settle(failureResult(err), err)
			return
		}
		e.settle(res, nil)
	}
}

// complete settles a finished dispatch or schedules its retry.
func (g *Governor) complete(c completion) {
	e := c.entry
	if c.err == nil {
		e.settle(c.result, nil)
		g.hooks.OnSettle(true)
		return
	}

	if g.cfg.Retry.ShouldRetry(c.err, e.retries) {
		e.retries++
		delay := g.cfg.Retry.ComputeDelay(c.err, e.retries)
		reason := failureReason(c.err)
		g.debug("Retrying backend request",
			zap.String("method", e.req.Method),
			zap.String("path", e.req.Path),
			zap.String("reason", reason),
			zap.Int("attempt", e.retries),
			zap.Duration("delay", delay))
		g.hooks.OnRetry(reason, e.retries, delay)
		g.scheduleRetry(e, delay)
		return
	}

	e.settle(failureResult(c.err), c.err)
	g.hooks.OnSettle(false)
}

func (g *Governor) scheduleRetry(e *entry, delay time.Duration) {
	g.sched.delayed[e] = time.AfterFunc(delay, func() {
		select {
		case g.requeue <- e:
		case <-g.quit:
			e.settle(failureResult(ErrClosed), ErrClosed)
		}
	})
}

func (g *Governor) shutdown() {
	for _, e := range g.sched.queue.drain() {
		e.settle(failureResult(ErrClosed), ErrClosed)
	}
	for e, timer := range g.sched.delayed {
		if timer.Stop() {
			e.settle(failureResult(ErrClosed), ErrClosed)
		}
		delete(g.sched.delayed, e)
	}
}

// enqueue submits req and waits for its settlement or for ctx to end.
// The governor still settles the entry when the caller stops waiting.
func (g *Governor) enqueue(ctx context.Context, req *Request) (*Result, error) {
	e := newEntry(req, g.now())

	select {
	case g.submit <- e:
	case <-g.quit:
		return failureResult(ErrClosed), ErrClosed
	case <-ctx.Done():
		return failureResult(ctx.Err()), ctx.Err()
	}

	select {
	case o := <-e.done:
		return o.result, o.err
	case <-ctx.Done():
		return failureResult(ctx.Err()), ctx.Err()
	}
}

// inspect runs fn on the loop goroutine. It reports false once the loop has stopped.
func (g *Governor) inspect(fn func(*scheduler)) bool {
	reply := make(chan struct{})
	select {
	case g.control <- func(s *scheduler) {
		fn(s)
		close(reply)
	}:
		<-reply
		return true
	case <-g.stopped:
		return false
	}
}

func (g *Governor) restoreWindow() {
	if g.windowStore == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state, err := g.windowStore.GetWindow(ctx, g.Endpoint())
	if err != nil {
		g.warn("Failed to restore rate limit window", zap.Error(err))
		return
	}
	if state != nil {
		g.sched.window.Restore(*state)
	}
}

func (g *Governor) saveWindow() error {
	if g.windowStore == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	state := g.sched.window.Snapshot()
	if state.WindowStart.IsZero() {
		return nil
	}
	if err := g.windowStore.SaveWindow(ctx, g.Endpoint(), &state); err != nil {
		return fmt.Errorf("save rate limit window: %w", err)
	}
	return nil
}

func (g *Governor) now() time.Time {
	if g.clock != nil {
		return g.clock()
	}
	return time.Now().UTC()
}

func (g *Governor) debug(msg string, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Debug(msg, fields...)
	}
}

func (g *Governor) warn(msg string, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Warn(msg, fields...)
	}
}

func (g *Governor) errorf(msg string, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Error(msg, fields...)
	}
}
