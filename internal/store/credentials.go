package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/closetiq/closetiq/internal/governor"
)

// CredentialStore keeps the cached identity credential for one scope,
// usually the backend host.
type CredentialStore struct {
	store *Store
	scope string
	clock func() time.Time
}

// Credentials returns a governor.TokenStore bound to scope.
func (s *Store) Credentials(scope string) *CredentialStore {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	return &CredentialStore{store: s, scope: scope}
}

// LoadCredential returns the stored credential, or nil when none exists.
func (c *CredentialStore) LoadCredential(ctx context.Context) (*governor.Credential, error) {
	if c == nil || c.store == nil || c.store.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		token     string
		expiresAt int64
	)
	row := c.store.DB.QueryRowContext(ctx, `
		SELECT token, expires_at
		FROM credentials
		WHERE scope = ?
	`, c.scope)
	if err := row.Scan(&token, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch credential: %w", err)
	}

	return &governor.Credential{
		Token:     token,
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// SaveCredential upserts the credential for the scope.
func (c *CredentialStore) SaveCredential(ctx context.Context, cred *governor.Credential) error {
	if c == nil || c.store == nil || c.store.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cred == nil || strings.TrimSpace(cred.Token) == "" {
		return errors.New("credential token is required")
	}

	_, err := c.store.DB.ExecContext(ctx, `
		INSERT INTO credentials (scope, token, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			token = excluded.token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`, c.scope, cred.Token, cred.ExpiresAt.UTC().Unix(), c.now().Unix())
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

// ClearCredential deletes the credential for the scope.
func (c *CredentialStore) ClearCredential(ctx context.Context) error {
	if c == nil || c.store == nil || c.store.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := c.store.DB.ExecContext(ctx, `DELETE FROM credentials WHERE scope = ?`, c.scope); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	return nil
}

func (c *CredentialStore) now() time.Time {
	if c.clock != nil {
		return c.clock()
	}
	return time.Now().UTC()
}
