package governor

import (
	"sync"
	"time"
)

type outcome struct {
	result *Result
	err    error
}

// entry is a queued request owned by the governor until settled.
type entry struct {
	req        *Request
	retries    int
	enqueuedAt time.Time

	once sync.Once
	done chan outcome
}

func newEntry(req *Request, now time.Time) *entry {
	return &entry{req: req, enqueuedAt: now, done: make(chan outcome, 1)}
}

// settle delivers the outcome exactly once.
func (e *entry) settle(res *Result, err error) {
	e.once.Do(func() {
		e.done <- outcome{result: res, err: err}
	})
}

// lanes is a two-tier FIFO. Entries waiting on a retry are served before
// fresh submissions.
type lanes struct {
	retry []*entry
	fresh []*entry
}

func (l *lanes) pushFresh(e *entry) {
	l.fresh = append(l.fresh, e)
}

func (l *lanes) pushRetry(e *entry) {
	l.retry = append(l.retry, e)
}

func (l *lanes) pop() *entry {
	if len(l.retry) > 0 {
		e := l.retry[0]
		l.retry[0] = nil
		l.retry = l.retry[1:]
		return e
	}
	if len(l.fresh) > 0 {
		e := l.fresh[0]
		l.fresh[0] = nil
		l.fresh = l.fresh[1:]
		return e
	}
	return nil
}

func (l *lanes) len() int {
	return len(l.retry) + len(l.fresh)
}

func (l *lanes) drain() []*entry {
	out := make([]*entry, 0, l.len())
	out = append(out, l.retry...)
	out = append(out, l.fresh...)
	l.retry = nil
	l.fresh = nil
	return out
}
