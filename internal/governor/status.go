package governor

import "time"

// QueueStatus is a point-in-time view of the governor.
type QueueStatus struct {
	PendingRequests int           `json:"pending_requests"`
	RetryWaiting    int           `json:"retry_waiting"`
	InFlightShared  int           `json:"in_flight_shared"`
	Dispatching     bool          `json:"dispatching"`
	RequestCount    int           `json:"request_count"`
	MaxPerWindow    int           `json:"max_per_window"`
	TimeToReset     time.Duration `json:"time_to_reset"`
	Closed          bool          `json:"closed"`
}

// Status reports queue depth, shared in-flight calls and window usage.
func (g *Governor) Status() QueueStatus {
	if g == nil {
		return QueueStatus{Closed: true}
	}

	status := QueueStatus{MaxPerWindow: g.cfg.MaxPerWindow}
	ok := g.inspect(func(s *scheduler) {
		now := g.now()
		status.PendingRequests = s.queue.len()
		status.RetryWaiting = len(s.delayed)
		status.Dispatching = s.busy
		status.RequestCount = s.window.Snapshot().RequestCount
		status.TimeToReset = s.window.TimeToReset(now)
	})
	if !ok {
		status.Closed = true
	}
	status.InFlightShared = g.deduper.InFlight()
	return status
}

// Clear drops every queued and retry-waiting request, settling them with
// ErrCleared, and starts a fresh rate-limit window. A dispatch already in
// flight is not interrupted.
func (g *Governor) Clear() int {
	if g == nil {
		return 0
	}

	dropped := 0
	g.inspect(func(s *scheduler) {
		for _, e := range s.queue.drain() {
			e.settle(failureResult(ErrCleared), ErrCleared)
			dropped++
		}
		// An entry whose timer already fired is settled here too; the loop
		// discards it when the timer hands it back.
		for e, timer := range s.delayed {
			timer.Stop()
			e.settle(failureResult(ErrCleared), ErrCleared)
			dropped++
			delete(s.delayed, e)
		}
		s.window.Reset(g.now())
	})
	return dropped
}
