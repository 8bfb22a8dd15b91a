package governor

import (
	"context"
	"time"
)

// WindowState captures the fixed-window admission counters.
type WindowState struct {
	RequestCount int
	WindowStart  time.Time
	LastRequest  time.Time
}

// WindowStore persists window snapshots between runs.
type WindowStore interface {
	GetWindow(ctx context.Context, endpoint string) (*WindowState, error)
	SaveWindow(ctx context.Context, endpoint string, state *WindowState) error
}

// Window enforces a request cap per fixed window plus a minimum spacing
// between consecutive dispatches.
type Window struct {
	MaxPerWindow int
	Duration     time.Duration
	MinInterval  time.Duration

	state WindowState
}

// NewWindow returns a window with the given limits. Non-positive values fall
// back to 30 requests per minute with 100ms spacing.
func NewWindow(maxPerWindow int, duration, minInterval time.Duration) *Window {
	if maxPerWindow <= 0 {
		maxPerWindow = 30
	}
	if duration <= 0 {
		duration = time.Minute
	}
	if minInterval < 0 {
		minInterval = 100 * time.Millisecond
	}
	return &Window{MaxPerWindow: maxPerWindow, Duration: duration, MinInterval: minInterval}
}

// Allow runs admission at now and reports how long to wait when refused.
// It resets the counter once the current window has fully elapsed.
func (w *Window) Allow(now time.Time) (bool, time.Duration) {
	if w == nil {
		return true, 0
	}

	if w.state.WindowStart.IsZero() {
		w.state.WindowStart = now
	}
	if now.Sub(w.state.WindowStart) > w.Duration {
		w.state.RequestCount = 0
		w.state.WindowStart = now
	}

	if w.state.RequestCount >= w.MaxPerWindow {
		wait := w.state.WindowStart.Add(w.Duration).Sub(now)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return false, wait
	}

	if !w.state.LastRequest.IsZero() {
		if elapsed := now.Sub(w.state.LastRequest); elapsed < w.MinInterval {
			return false, w.MinInterval - elapsed
		}
	}

	return true, 0
}

// Record counts a dispatch made at now.
func (w *Window) Record(now time.Time) {
	if w == nil {
		return
	}
	if w.state.WindowStart.IsZero() {
		w.state.WindowStart = now
	}
	w.state.RequestCount++
	w.state.LastRequest = now
}

// Reset starts a fresh window at now.
func (w *Window) Reset(now time.Time) {
	if w == nil {
		return
	}
	w.state = WindowState{WindowStart: now}
}

// TimeToReset reports how long until the counter resets.
func (w *Window) TimeToReset(now time.Time) time.Duration {
	if w == nil || w.state.WindowStart.IsZero() {
		return 0
	}
	remaining := w.Duration - now.Sub(w.state.WindowStart)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns a copy of the current counters.
func (w *Window) Snapshot() WindowState {
	if w == nil {
		return WindowState{}
	}
	return w.state
}

// Restore loads previously persisted counters.
func (w *Window) Restore(state WindowState) {
	if w == nil {
		return
	}
	w.state = state
}
