package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/closetiq/closetiq/internal/config"
	"github.com/closetiq/closetiq/internal/governor"
	"github.com/closetiq/closetiq/internal/identity"
	"github.com/closetiq/closetiq/internal/metrics"
	"github.com/closetiq/closetiq/internal/store"
	"github.com/closetiq/closetiq/internal/wardrobe"
)

// session bundles a running governor with the stores it depends on.
type session struct {
	cfg      *config.Config
	governor *governor.Governor
	db       *store.Store
	redis    *store.RedisTokenStore
	logger   *logging.Logger

	closeOnce sync.Once
}

// openSession builds the governor described by cfg. Close must be called to
// stop the loop and release the stores.
func openSession(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*session, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return nil, errors.New("backend.base_url is required (set --base-url or CLOSETIQ_BACKEND_BASE_URL)")
	}
	host, err := backendHost(cfg.Backend.BaseURL)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	hooks := metrics.GovernorHooks{Endpoint: host}

	source, err := identity.FromConfig(cfg.Credentials)
	if err != nil {
		return nil, err
	}

	var tokenStore governor.TokenStore
	switch strings.ToLower(strings.TrimSpace(cfg.Credentials.Store)) {
	case "libsql":
		db, err := s.database(ctx)
		if err != nil {
			return nil, err
		}
		tokenStore = db.Credentials(host)
	case "redis":
		rs, err := store.OpenRedisTokenStore(ctx, cfg.Redis, host)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.redis = rs
		tokenStore = rs
	}

	tokens := governor.NewTokenCache(source, tokenStore)
	if cfg.Credentials.Lifetime > 0 {
		tokens.Lifetime = cfg.Credentials.Lifetime
	}
	if cfg.Credentials.LookAhead > 0 {
		tokens.LookAhead = cfg.Credentials.LookAhead
	}
	tokens.Logger = logger
	tokens.Hooks = hooks

	opts := []governor.Option{
		governor.WithTokenCache(tokens),
		governor.WithHooks(hooks),
		governor.WithLogger(logger),
	}
	if cfg.Governor.PersistWindow {
		db, err := s.database(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		opts = append(opts, governor.WithWindowStore(db))
	}

	gov, err := governor.New(governorConfig(cfg), opts...)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.governor = gov
	return s, nil
}

// database opens the libsql store once per session.
func (s *session) database(ctx context.Context) (*store.Store, error) {
	if s.db != nil {
		return s.db, nil
	}
	db, err := store.OpenAndMigrate(ctx, s.cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	s.db = db
	return db, nil
}

// Wardrobe returns a typed client over the session's governor.
func (s *session) Wardrobe() *wardrobe.Client {
	opts := wardrobe.DefaultImageOptions()
	if s.cfg.Upload.MaxDimension > 0 {
		opts.MaxDimension = s.cfg.Upload.MaxDimension
	}
	if s.cfg.Upload.JPEGQuality > 0 {
		opts.JPEGQuality = s.cfg.Upload.JPEGQuality
	}
	if s.cfg.Upload.MaxBytes > 0 {
		opts.MaxBytes = s.cfg.Upload.MaxBytes
	}
	return wardrobe.NewClient(s.governor, wardrobe.WithImageOptions(opts), wardrobe.WithLogger(s.logger))
}

// Close stops the governor, which persists the window, then closes the stores.
func (s *session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.governor != nil {
			if err := s.governor.Close(); err != nil && s.logger != nil {
				s.logger.Warn("Governor close failed", zap.Error(err))
			}
		}
		if s.redis != nil {
			_ = s.redis.Close()
		}
		if s.db != nil {
			_ = s.db.Close()
		}
	})
}

func governorConfig(cfg *config.Config) governor.Config {
	gc := governor.DefaultConfig()
	gc.BaseURL = cfg.Backend.BaseURL
	if cfg.Backend.HealthPath != "" {
		gc.HealthPath = cfg.Backend.HealthPath
	}
	if cfg.Backend.HealthTimeout > 0 {
		gc.HealthTimeout = cfg.Backend.HealthTimeout
	}
	if cfg.Backend.RequestTimeout > 0 {
		gc.RequestTimeout = cfg.Backend.RequestTimeout
	}
	if cfg.Backend.UserAgent != "" {
		gc.UserAgent = cfg.Backend.UserAgent
	}

	g := cfg.Governor
	if g.TickInterval > 0 {
		gc.TickInterval = g.TickInterval
	}
	if g.MaxPerWindow > 0 {
		gc.MaxPerWindow = g.MaxPerWindow
	}
	if g.Window > 0 {
		gc.WindowDuration = g.Window
	}
	if g.MinInterval > 0 {
		gc.MinInterval = g.MinInterval
	}
	if g.MaxRetries > 0 {
		gc.Retry.MaxRetries = g.MaxRetries
	}
	if g.BaseDelay > 0 {
		gc.Retry.BaseDelay = g.BaseDelay
	}
	if g.MaxDelay > 0 {
		gc.Retry.MaxDelay = g.MaxDelay
	}
	if g.RateLimitBaseDelay > 0 {
		gc.Retry.RateLimitBase = g.RateLimitBaseDelay
	}
	if g.RateLimitMaxDelay > 0 {
		gc.Retry.RateLimitMax = g.RateLimitMaxDelay
	}
	if len(g.DedupePostPaths) > 0 {
		gc.DedupePostPaths = g.DedupePostPaths
	}
	return gc
}

func backendHost(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid backend.base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid backend.base_url: scheme must be http or https")
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid backend.base_url: missing host")
	}
	return u.Host, nil
}

// openStore opens the libsql store for the admin commands.
func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := loadedConfig()
	if err != nil {
		return nil, err
	}
	return store.OpenAndMigrate(ctx, cfg.Store)
}
