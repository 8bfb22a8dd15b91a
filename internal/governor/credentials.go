package governor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"
)

const (
	// DefaultTokenLifetime is assumed for tokens that carry no exp claim.
	DefaultTokenLifetime = time.Hour

	// DefaultTokenLookAhead is the margin before expiry at which a cached
	// token is no longer handed out.
	DefaultTokenLookAhead = 5 * time.Minute
)

// TokenSource yields identity tokens for the signed-in user.
type TokenSource interface {
	Token(ctx context.Context, forceRefresh bool) (string, error)
}

// TokenStore persists a credential across process restarts.
type TokenStore interface {
	LoadCredential(ctx context.Context) (*Credential, error)
	SaveCredential(ctx context.Context, cred *Credential) error
	ClearCredential(ctx context.Context) error
}

// Credential is a bearer token with its absolute expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the credential may still be handed out at now.
func (c *Credential) ValidAt(now time.Time, lookAhead time.Duration) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return c.ExpiresAt.After(now.Add(lookAhead))
}

// TokenCache hands out bearer tokens, refreshing them from Source when the
// cached one is missing or about to expire.
type TokenCache struct {
	Source    TokenSource
	Store     TokenStore
	Lifetime  time.Duration
	LookAhead time.Duration
	Clock     func() time.Time
	Logger    *logging.Logger
	Hooks     Hooks

	mu       sync.Mutex
	cached   *Credential
	hydrated bool
}

// NewTokenCache returns a cache with the default lifetime and look-ahead.
func NewTokenCache(source TokenSource, store TokenStore) *TokenCache {
	return &TokenCache{
		Source:    source,
		Store:     store,
		Lifetime:  DefaultTokenLifetime,
		LookAhead: DefaultTokenLookAhead,
	}
}

// Token returns a usable token, or "" when no identity is available.
// Refresh failures are logged and never returned.
func (c *TokenCache) Token(ctx context.Context) string {
	if c == nil || c.Source == nil {
		return ""
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cached.ValidAt(now, c.lookAhead()) {
		return c.cached.Token
	}

	if !c.hydrated {
		c.hydrated = true
		if c.Store != nil {
			stored, err := c.Store.LoadCredential(ctx)
			if err != nil {
				c.warn("Failed to load stored credential", zap.Error(err))
			} else if stored.ValidAt(now, c.lookAhead()) {
				c.cached = stored
				return stored.Token
			}
		}
	}

	token, err := c.Source.Token(ctx, false)
	if err != nil || strings.TrimSpace(token) == "" {
		c.cached = nil
		if err != nil && !errors.Is(err, ErrNoIdentity) {
			c.warn("Failed to refresh identity token", zap.Error(err))
			c.hooks().OnTokenRefresh(false)
		}
		return ""
	}

	token = strings.TrimSpace(token)
	c.cached = &Credential{Token: token, ExpiresAt: tokenExpiry(token, now, c.lifetime())}
	c.hooks().OnTokenRefresh(true)

	if c.Store != nil {
		if err := c.Store.SaveCredential(ctx, c.cached); err != nil {
			c.warn("Failed to persist credential", zap.Error(err))
		}
	}

	return token
}

// Invalidate drops the cached and persisted credential.
func (c *TokenCache) Invalidate(ctx context.Context) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cached = nil
	c.hydrated = true
	if c.Store != nil {
		if err := c.Store.ClearCredential(ctx); err != nil {
			c.warn("Failed to clear stored credential", zap.Error(err))
		}
	}
}

// Peek returns a copy of the cached credential without refreshing.
func (c *TokenCache) Peek() *Credential {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached == nil {
		return nil
	}
	cp := *c.cached
	return &cp
}

func (c *TokenCache) now() time.Time {
	if c != nil && c.Clock != nil {
		return c.Clock()
	}
	return time.Now().UTC()
}

func (c *TokenCache) lifetime() time.Duration {
	if c.Lifetime > 0 {
		return c.Lifetime
	}
	return DefaultTokenLifetime
}

func (c *TokenCache) lookAhead() time.Duration {
	if c.LookAhead > 0 {
		return c.LookAhead
	}
	return DefaultTokenLookAhead
}

func (c *TokenCache) hooks() Hooks {
	if c.Hooks != nil {
		return c.Hooks
	}
	return NopHooks{}
}

func (c *TokenCache) warn(msg string, fields ...zap.Field) {
	if c.Logger != nil {
		c.Logger.Warn(msg, fields...)
	}
}

// tokenExpiry prefers the exp claim of a JWT and falls back to now+lifetime.
func tokenExpiry(token string, now time.Time, lifetime time.Duration) time.Time {
	if exp, ok := jwtExpiry(token); ok {
		return exp
	}
	return now.Add(lifetime)
}

func jwtExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return time.Time{}, false
	}

	var claims struct {
		Exp float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.Exp <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(claims.Exp), 0).UTC(), true
}
