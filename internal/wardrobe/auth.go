package wardrobe

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/closetiq/closetiq/internal/governor"
)

// Register creates the backend user for a signed-in identity. The backend
// is probed first so an outage surfaces as ErrBackendUnavailable.
func (c *Client) Register(ctx context.Context, in RegisterInput) (*User, error) {
	const op = "register"

	if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.Username) == "" {
		return nil, &Error{Op: op, Message: "email and username are required"}
	}
	if c == nil || c.api == nil || !c.api.CheckHealth(ctx) {
		return nil, &Error{Op: op, Message: "Backend service is unavailable. Please try again later.", Err: ErrBackendUnavailable}
	}

	req := &governor.Request{Method: "POST", Path: "/api/auth/register", Body: in}
	res, err := c.call(ctx, op, req, nil)
	if err != nil {
		return nil, err
	}
	return userFrom(res), nil
}

// CurrentUser fetches the profile behind the current credential.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	res, err := c.call(ctx, "me", &governor.Request{Method: "GET", Path: "/api/auth/me"}, nil)
	if err != nil {
		return nil, err
	}
	return userFrom(res), nil
}

// ValidateSession reports whether the backend accepts the current credential.
func (c *Client) ValidateSession(ctx context.Context) bool {
	if c == nil || c.api == nil || !c.api.CheckHealth(ctx) {
		return false
	}
	_, err := c.call(ctx, "validate", &governor.Request{Method: "GET", Path: "/api/auth/validate"}, nil)
	return err == nil
}

// UpdateProfile sends a partial profile update.
func (c *Client) UpdateProfile(ctx context.Context, changes map[string]any) (*User, error) {
	const op = "update profile"
	if len(changes) == 0 {
		return nil, &Error{Op: op, Message: "no profile changes given"}
	}

	res, err := c.call(ctx, op, &governor.Request{Method: "PUT", Path: "/api/auth/profile", Body: changes}, nil)
	if err != nil {
		return nil, err
	}
	return userFrom(res), nil
}

// userFrom accepts both {"user": {...}} and a bare user payload.
func userFrom(res *governor.Result) *User {
	if res == nil || len(res.Data) == 0 {
		return nil
	}

	var wrapped struct {
		User *User `json:"user"`
	}
	if err := json.Unmarshal(res.Data, &wrapped); err == nil && wrapped.User != nil {
		return wrapped.User
	}

	var user User
	if err := json.Unmarshal(res.Data, &user); err != nil || (user.ID == "" && user.Email == "") {
		return nil
	}
	return &user
}
