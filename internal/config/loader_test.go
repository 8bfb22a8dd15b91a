package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		v := viper.New()
		used, err := Configure(v, "")
		require.NoError(t, err)
		assert.Empty(t, used)

		cfg, err := Load(v)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// Verify server defaults
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		// Verify governor defaults
		assert.Equal(t, 50*time.Millisecond, cfg.Governor.TickInterval)
		assert.Equal(t, 30, cfg.Governor.MaxPerWindow)
		assert.Equal(t, time.Minute, cfg.Governor.Window)
		assert.Equal(t, 100*time.Millisecond, cfg.Governor.MinInterval)
		assert.Equal(t, 3, cfg.Governor.MaxRetries)
		assert.Equal(t, 30*time.Second, cfg.Governor.RateLimitMaxDelay)
		assert.Equal(t, []string{"/api/auth/register", "/api/auth/me", "/api/users/profile"}, cfg.Governor.DedupePostPaths)

		// Verify credential and backend defaults
		assert.Equal(t, 5*time.Minute, cfg.Credentials.LookAhead)
		assert.Equal(t, time.Hour, cfg.Credentials.Lifetime)
		assert.Equal(t, 5*time.Second, cfg.Backend.HealthTimeout)
		assert.Equal(t, 30*time.Second, cfg.Backend.RequestTimeout)

		assert.Equal(t, "libsql", cfg.Store.Driver)
		assert.NotEmpty(t, cfg.Store.Path)
		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("CLOSETIQ_BACKEND_BASE_URL", "https://api.closetiq.test")
		t.Setenv("CLOSETIQ_GOVERNOR_MAX_PER_WINDOW", "10")
		t.Setenv("CLOSETIQ_GOVERNOR_MIN_INTERVAL", "250ms")
		t.Setenv("CLOSETIQ_GOVERNOR_DEDUPE_POST_PATHS", "/api/auth/me,/api/recommendations")
		t.Setenv("CLOSETIQ_CREDENTIALS_SOURCE", "env")

		v := viper.New()
		_, err := Configure(v, "")
		require.NoError(t, err)

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "https://api.closetiq.test", cfg.Backend.BaseURL)
		assert.Equal(t, 10, cfg.Governor.MaxPerWindow)
		assert.Equal(t, 250*time.Millisecond, cfg.Governor.MinInterval)
		assert.Equal(t, []string{"/api/auth/me", "/api/recommendations"}, cfg.Governor.DedupePostPaths)
		assert.Equal(t, "env", cfg.Credentials.Source)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "closetiq.yaml")
		content := []byte(`
backend:
  base_url: https://wardrobe.example.com
governor:
  window: 2m
  max_retries: 5
credentials:
  source: static
  token: abc123
  store: redis
redis:
  addr: redis.internal:6379
`)
		require.NoError(t, os.WriteFile(path, content, 0o600))

		v := viper.New()
		used, err := Configure(v, path)
		require.NoError(t, err)
		assert.Equal(t, path, used)

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "https://wardrobe.example.com", cfg.Backend.BaseURL)
		assert.Equal(t, 2*time.Minute, cfg.Governor.Window)
		assert.Equal(t, 5, cfg.Governor.MaxRetries)
		assert.Equal(t, "static", cfg.Credentials.Source)
		assert.Equal(t, "abc123", cfg.Credentials.Token)
		assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)

		// Untouched keys keep their defaults
		assert.Equal(t, 30, cfg.Governor.MaxPerWindow)
	})

	t.Run("MissingExplicitFile", func(t *testing.T) {
		v := viper.New()
		_, err := Configure(v, filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
	})

	t.Run("InvalidCredentialSource", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("credentials.source", "keychain")

		_, err := Load(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "credentials.source")
	})
}

func TestDefaultPaths(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	assert.Equal(t, "closetiq.db", filepath.Base(DefaultStorePath()))
	assert.Equal(t, "id_token", filepath.Base(DefaultTokenFile()))
	assert.Equal(t, "config.yaml", filepath.Base(DefaultConfigPath()))
}
