// Package wardrobe is the typed ClosetIQ backend client. Every call goes
// through a Requester, normally a *governor.Governor, so pacing, retries,
// deduplication and credentials apply uniformly.
package wardrobe

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/governor"
)

// ErrBackendUnavailable is returned when the health probe fails before an
// operation that requires a reachable backend.
var ErrBackendUnavailable = errors.New("backend service is unavailable, please try again later")

// Requester is the subset of the governor the client needs.
type Requester interface {
	Do(ctx context.Context, req *governor.Request) (*governor.Result, error)
	CheckHealth(ctx context.Context) bool
}

// Client wraps backend endpoints with typed requests and responses.
type Client struct {
	api    Requester
	images ImageOptions
	logger *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithImageOptions overrides how uploads are prepared.
func WithImageOptions(opts ImageOptions) Option {
	return func(c *Client) {
		c.images = opts
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient builds a client over api.
func NewClient(api Requester, opts ...Option) *Client {
	c := &Client{api: api, images: DefaultImageOptions()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Error is a failed backend operation with a message fit for end users.
type Error struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// call runs req and decodes the payload into out when out is non-nil.
func (c *Client) call(ctx context.Context, op string, req *governor.Request, out any) (*governor.Result, error) {
	if c == nil || c.api == nil {
		return nil, &Error{Op: op, Message: "client is not initialized", Err: governor.ErrClosed}
	}

	res, err := c.api.Do(ctx, req)
	if err != nil {
		return res, c.fail(op, err)
	}
	if res == nil {
		return nil, &Error{Op: op, Message: "No response received from server"}
	}
	if !res.Success {
		return res, c.fail(op, res.Err())
	}
	if out != nil {
		if len(res.Data) == 0 {
			return res, &Error{Op: op, Message: "No data received from server"}
		}
		if err := res.Decode(out); err != nil {
			return res, &Error{Op: op, Message: "Invalid data format", Err: err}
		}
	}
	return res, nil
}

func (c *Client) fail(op string, err error) error {
	wrapped := &Error{Op: op, Status: governor.StatusCode(err), Message: userMessage(err), Err: err}
	if c.logger != nil {
		c.logger.Debug("Backend operation failed",
			zap.String("op", op),
			zap.Int("status", wrapped.Status),
			zap.Error(err))
	}
	return wrapped
}

// userMessage maps a governor failure onto the text shown to users.
func userMessage(err error) string {
	var reqErr *governor.RequestError
	if !errors.As(err, &reqErr) {
		if err == nil {
			return "Request failed"
		}
		return err.Error()
	}

	switch {
	case reqErr.Network():
		return "Network error. Please check your internet connection."
	case reqErr.StatusCode == http.StatusUnauthorized:
		return "Authentication failed. Please log in again."
	case reqErr.StatusCode == http.StatusRequestEntityTooLarge:
		return "Image file is too large. Please use a smaller image."
	case reqErr.StatusCode == http.StatusTooManyRequests:
		return "Too many requests. Please wait a moment and try again."
	case reqErr.StatusCode == http.StatusServiceUnavailable:
		return "Service is temporarily unavailable. Please try again later."
	case reqErr.StatusCode >= 500:
		return "Server error. Please try again later."
	case reqErr.Message != "":
		return reqErr.Message
	default:
		return fmt.Sprintf("Server error (%d)", reqErr.StatusCode)
	}
}
