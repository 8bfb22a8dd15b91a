package config

import (
	"time"
)

// Config represents the complete application configuration.
// Values are layered: built-in defaults, then the optional YAML config file,
// then CLOSETIQ_* environment variables, then command-line flags.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Health      HealthConfig      `mapstructure:"health"`
	Debug       DebugConfig       `mapstructure:"debug"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Governor    GovernorConfig    `mapstructure:"governor"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Upload      UploadConfig      `mapstructure:"upload"`
}

// ServerConfig contains HTTP server configuration for the local gateway
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// BackendConfig describes the wardrobe backend the governor talks to.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	HealthPath     string        `mapstructure:"health_path"`
	HealthTimeout  time.Duration `mapstructure:"health_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// GovernorConfig tunes pacing, retries and deduplication.
type GovernorConfig struct {
	TickInterval       time.Duration `mapstructure:"tick_interval"`
	MaxPerWindow       int           `mapstructure:"max_per_window"`
	Window             time.Duration `mapstructure:"window"`
	MinInterval        time.Duration `mapstructure:"min_interval"`
	MaxRetries         int           `mapstructure:"max_retries"`
	BaseDelay          time.Duration `mapstructure:"base_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"`
	RateLimitBaseDelay time.Duration `mapstructure:"rate_limit_base_delay"`
	RateLimitMaxDelay  time.Duration `mapstructure:"rate_limit_max_delay"`
	DedupePostPaths    []string      `mapstructure:"dedupe_post_paths"`

	// PersistWindow saves the rate-limit window to the store between runs
	PersistWindow bool `mapstructure:"persist_window"`
}

// CredentialsConfig selects where identity tokens come from and where the
// cached credential is kept.
type CredentialsConfig struct {
	// Source is one of: none, static, file, env
	Source    string        `mapstructure:"source"`
	Token     string        `mapstructure:"token"`
	TokenFile string        `mapstructure:"token_file"`
	TokenEnv  string        `mapstructure:"token_env"`
	Lifetime  time.Duration `mapstructure:"lifetime"`
	LookAhead time.Duration `mapstructure:"look_ahead"`

	// Store is one of: none, libsql, redis
	Store string `mapstructure:"store"`
}

// RedisConfig configures the redis credential store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`

	// EncryptionKey is a 32-byte key (raw or base64) used to seal tokens at rest
	EncryptionKey string `mapstructure:"encryption_key"`
}

// UploadConfig controls image preparation before classification.
type UploadConfig struct {
	MaxDimension int `mapstructure:"max_dimension"`
	JPEGQuality  int `mapstructure:"jpeg_quality"`
	MaxBytes     int `mapstructure:"max_bytes"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	// Valid values: SIMPLE, STRUCTURED
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
