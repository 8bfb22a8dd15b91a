package governor

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxRetryAfterSeconds keeps a delta-seconds Retry-After within time.Duration.
const maxRetryAfterSeconds = math.MaxInt64 / int64(time.Second)

// RetryPolicy decides which failures are retried and how long to wait.
type RetryPolicy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	RateLimitBase time.Duration
	RateLimitMax  time.Duration
	Clock         func() time.Time
}

// DefaultRetryPolicy returns the production backoff settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		RateLimitBase: 2 * time.Second,
		RateLimitMax:  30 * time.Second,
	}
}

// ShouldRetry reports whether a request that has already been retried
// retryCount times may be retried again after err.
func (p RetryPolicy) ShouldRetry(err error, retryCount int) bool {
	if err == nil || retryCount >= p.MaxRetries {
		return false
	}
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Temporary()
}

// ComputeDelay returns the wait before retry number retryCount (starting at 1).
func (p RetryPolicy) ComputeDelay(err error, retryCount int) time.Duration {
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusTooManyRequests {
		if delay, ok := retryAfterDelay(reqErr.RetryAfter, p.now()); ok {
			return delay
		}
		return backoff(retryCount, p.RateLimitBase, p.RateLimitMax)
	}
	return backoff(retryCount, p.BaseDelay, p.MaxDelay)
}

func (p RetryPolicy) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

func backoff(n int, base, ceiling time.Duration) time.Duration {
	if n < 0 {
		n = 0
	}
	if n > 30 {
		return ceiling
	}
	delay := base * time.Duration(1<<uint(n))
	if delay > ceiling || delay <= 0 {
		return ceiling
	}
	return delay
}

// retryAfterDelay parses a Retry-After value given either as delta-seconds
// or as an HTTP-date.
func retryAfterDelay(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return 0, false
		}
		if seconds > maxRetryAfterSeconds {
			seconds = maxRetryAfterSeconds
		}
		return time.Duration(seconds) * time.Second, true
	}
	if _, err := strconv.ParseUint(value, 10, 64); err == nil {
		// all digits but beyond int64
		return time.Duration(maxRetryAfterSeconds) * time.Second, true
	}
	if parsed, err := http.ParseTime(value); err == nil {
		wait := parsed.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}

	return 0, false
}
