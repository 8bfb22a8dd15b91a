// Package config provides centralized configuration management for closetiq.
// Settings are layered with viper (defaults, config file, CLOSETIQ_*
// environment) and decoded into typed structs with mapstructure.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	// AppName names the config and data directories.
	AppName = "closetiq"

	// EnvPrefix is the prefix for environment overrides.
	EnvPrefix = "CLOSETIQ"
)

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Configure binds defaults, environment variables and the config file onto v.
// An explicit configFile must exist; otherwise the XDG config directory and
// ./config are searched and a missing file is not an error. It returns the
// config file in use, if any.
func Configure(v *viper.Viper, configFile string) (string, error) {
	if v == nil {
		return "", errors.New("viper instance is required")
	}

	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if strings.TrimSpace(configFile) != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("read config file: %w", err)
		}
		return v.ConfigFileUsed(), nil
	}

	if dir := gfconfig.GetAppConfigDir(AppName); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath("./config")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", fmt.Errorf("read config file: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load decodes the settings held by v into a Config and makes it current.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		return nil, errors.New("viper instance is required")
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings the governor cannot run with.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Governor.MaxPerWindow < 0 {
		return errors.New("governor.max_per_window must not be negative")
	}
	if c.Governor.MaxRetries < 0 {
		return errors.New("governor.max_retries must not be negative")
	}
	switch strings.ToLower(strings.TrimSpace(c.Credentials.Source)) {
	case "", "none", "static", "file", "env":
	default:
		return fmt.Errorf("unsupported credentials.source: %s", c.Credentials.Source)
	}
	switch strings.ToLower(strings.TrimSpace(c.Credentials.Store)) {
	case "", "none", "libsql", "redis":
	default:
		return fmt.Errorf("unsupported credentials.store: %s", c.Credentials.Store)
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// SetDefaults registers every known key so environment overrides resolve.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:5000")
	v.SetDefault("backend.health_path", "/health")
	v.SetDefault("backend.health_timeout", "5s")
	v.SetDefault("backend.request_timeout", "30s")
	v.SetDefault("backend.user_agent", AppName)

	// Governor defaults
	v.SetDefault("governor.tick_interval", "50ms")
	v.SetDefault("governor.max_per_window", 30)
	v.SetDefault("governor.window", "60s")
	v.SetDefault("governor.min_interval", "100ms")
	v.SetDefault("governor.max_retries", 3)
	v.SetDefault("governor.base_delay", "1s")
	v.SetDefault("governor.max_delay", "10s")
	v.SetDefault("governor.rate_limit_base_delay", "2s")
	v.SetDefault("governor.rate_limit_max_delay", "30s")
	v.SetDefault("governor.dedupe_post_paths", []string{"/api/auth/register", "/api/auth/me", "/api/users/profile"})
	v.SetDefault("governor.persist_window", true)

	// Credential defaults
	v.SetDefault("credentials.source", "file")
	v.SetDefault("credentials.token", "")
	v.SetDefault("credentials.token_file", DefaultTokenFile())
	v.SetDefault("credentials.token_env", "CLOSETIQ_ID_TOKEN")
	v.SetDefault("credentials.lifetime", "1h")
	v.SetDefault("credentials.look_ahead", "5m")
	v.SetDefault("credentials.store", "libsql")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", AppName+":credential:")
	v.SetDefault("redis.encryption_key", "")

	// Upload defaults
	v.SetDefault("upload.max_dimension", 1024)
	v.SetDefault("upload.jpeg_quality", 85)
	v.SetDefault("upload.max_bytes", 10<<20)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(AppName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultDataDir returns the XDG-compliant data directory for the app.
func DefaultDataDir() string {
	return gfconfig.GetAppDataDir(AppName)
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./" + AppName + ".db"
	}
	return filepath.Join(dataDir, AppName+".db")
}

// DefaultTokenFile is where an external sign-in helper drops the identity token.
func DefaultTokenFile() string {
	dataDir := DefaultDataDir()
	if strings.TrimSpace(dataDir) == "" {
		return "./id_token"
	}
	return filepath.Join(dataDir, "id_token")
}
