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

// GetWindow returns the stored rate-limit window for an endpoint.
func (s *Store) GetWindow(ctx context.Context, endpoint string) (*governor.WindowState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("endpoint is required")
	}

	var (
		requestCount  int
		windowStart   int64
		lastRequestAt sql.NullInt64
	)

	row := s.DB.QueryRowContext(ctx, `
		SELECT request_count, window_start, last_request_at
		FROM rate_limits
		WHERE endpoint = ?
	`, endpoint)

	if err := row.Scan(&requestCount, &windowStart, &lastRequestAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate limit: %w", err)
	}

	return windowState(requestCount, windowStart, lastRequestAt), nil
}

// SaveWindow persists the rate-limit window for an endpoint.
func (s *Store) SaveWindow(ctx context.Context, endpoint string, state *governor.WindowState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return errors.New("endpoint is required")
	}
	if state == nil {
		return errors.New("rate limit state is required")
	}

	var lastRequestAt sql.NullInt64
	if !state.LastRequest.IsZero() {
		lastRequestAt = sql.NullInt64{Int64: state.LastRequest.UTC().UnixMilli(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO rate_limits (endpoint, request_count, window_start, last_request_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			request_count = excluded.request_count,
			window_start = excluded.window_start,
			last_request_at = excluded.last_request_at
	`, endpoint, state.RequestCount, state.WindowStart.UTC().UnixMilli(), lastRequestAt)
	if err != nil {
		return fmt.Errorf("store rate limit: %w", err)
	}

	return nil
}

func windowState(requestCount int, windowStart int64, lastRequestAt sql.NullInt64) *governor.WindowState {
	state := &governor.WindowState{
		RequestCount: requestCount,
		WindowStart:  time.UnixMilli(windowStart).UTC(),
	}
	if lastRequestAt.Valid {
		state.LastRequest = time.UnixMilli(lastRequestAt.Int64).UTC()
	}
	return state
}
