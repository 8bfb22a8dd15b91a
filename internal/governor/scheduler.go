package governor

import "time"

// scheduler is the single-dispatch admission state machine driven by the
// loop's ticker. It is not safe for concurrent use.
type scheduler struct {
	queue   lanes
	window  *Window
	busy    bool
	delayed map[*entry]*time.Timer
}

func newScheduler(window *Window) *scheduler {
	return &scheduler{window: window, delayed: make(map[*entry]*time.Timer)}
}

// next returns the entry to dispatch at now, or nil when this tick is skipped:
// a dispatch is still in flight, nothing is queued, or admission refuses.
func (s *scheduler) next(now time.Time) *entry {
	if s.busy || s.queue.len() == 0 {
		return nil
	}
	if ok, _ := s.window.Allow(now); !ok {
		return nil
	}

	e := s.queue.pop()
	s.window.Record(now)
	s.busy = true
	return e
}

// finish marks the in-flight dispatch as completed.
func (s *scheduler) finish() {
	s.busy = false
}
