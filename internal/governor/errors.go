package governor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrClosed is returned for requests submitted to, or still pending in, a closed governor.
	ErrClosed = errors.New("governor is closed")

	// ErrCleared settles queued requests dropped by Clear.
	ErrCleared = errors.New("request dropped by queue clear")

	// ErrNoIdentity is reported by token sources when nobody is signed in.
	ErrNoIdentity = errors.New("no authenticated identity")

	// ErrResponseTooLarge marks a backend response body over the read limit.
	ErrResponseTooLarge = errors.New("response body exceeds limit")
)

// RequestError describes a backend call that did not succeed.
// StatusCode is zero when no response was received.
type RequestError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
	RetryAfter string
	Err        error
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}

	target := strings.TrimSpace(e.Method + " " + e.Path)
	if e.StatusCode == 0 {
		if e.Err != nil {
			return fmt.Sprintf("%s: network error: %v", target, e.Err)
		}
		return fmt.Sprintf("%s: network error", target)
	}

	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", target, e.StatusCode, msg)
}

func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Network reports whether the call failed before a response arrived.
func (e *RequestError) Network() bool {
	return e != nil && e.StatusCode == 0
}

// Temporary reports whether the failure class is retryable.
func (e *RequestError) Temporary() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// StatusCode extracts the HTTP status from err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

func failureReason(err error) string {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return "error"
	}
	switch {
	case reqErr.StatusCode == 0:
		return "network"
	case reqErr.StatusCode == http.StatusTooManyRequests:
		return "rate_limited"
	case reqErr.StatusCode >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}
