package governor

import "time"

// Hooks receives governor lifecycle events. Implementations must not block.
type Hooks interface {
	OnEnqueue(depth int)
	OnDispatch(method string, status int, duration time.Duration)
	OnRetry(reason string, attempt int, delay time.Duration)
	OnSettle(success bool)
	OnDedupe(shared bool)
	OnTokenRefresh(success bool)
}

// NopHooks ignores every event.
type NopHooks struct{}

func (NopHooks) OnEnqueue(int) {}
func (NopHooks) OnDispatch(string, int, time.Duration) {}
func (NopHooks) OnRetry(string, int, time.Duration) {}
func (NopHooks) OnSettle(bool) {}
func (NopHooks) OnDedupe(bool) {}
func (NopHooks) OnTokenRefresh(bool) {}
