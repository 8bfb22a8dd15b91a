// Package identity supplies identity-provider tokens to the governor's
// credential cache. Sign-in itself happens elsewhere; these sources only
// read the token that sign-in produced.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/closetiq/closetiq/internal/config"
	"github.com/closetiq/closetiq/internal/governor"
)

// Static always returns the configured token.
type Static struct {
	Value string
}

// Token implements governor.TokenSource.
func (s Static) Token(ctx context.Context, forceRefresh bool) (string, error) {
	token := strings.TrimSpace(s.Value)
	if token == "" {
		return "", governor.ErrNoIdentity
	}
	return token, nil
}

// File reads the token from a file kept current by an external sign-in
// helper. The file is reread on every call.
type File struct {
	Path string
}

// Token implements governor.TokenSource.
func (f File) Token(ctx context.Context, forceRefresh bool) (string, error) {
	path := strings.TrimSpace(f.Path)
	if path == "" {
		return "", governor.ErrNoIdentity
	}

	// #nosec G304 -- token path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", governor.ErrNoIdentity
		}
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", governor.ErrNoIdentity
	}
	return token, nil
}

// Env reads the token from an environment variable.
type Env struct {
	Name string
}

// Token implements governor.TokenSource.
func (e Env) Token(ctx context.Context, forceRefresh bool) (string, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return "", governor.ErrNoIdentity
	}
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", governor.ErrNoIdentity
	}
	return token, nil
}

// None reports that nobody is signed in.
type None struct{}

// Token implements governor.TokenSource.
func (None) Token(ctx context.Context, forceRefresh bool) (string, error) {
	return "", governor.ErrNoIdentity
}

// FromConfig builds the token source selected by cfg.Source.
func FromConfig(cfg config.CredentialsConfig) (governor.TokenSource, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Source)) {
	case "", "none":
		return None{}, nil
	case "static":
		return Static{Value: cfg.Token}, nil
	case "file":
		return File{Path: cfg.TokenFile}, nil
	case "env":
		return Env{Name: cfg.TokenEnv}, nil
	default:
		return nil, fmt.Errorf("unsupported credentials source: %s", cfg.Source)
	}
}
