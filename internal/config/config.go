// Package config loads and validates walk-core configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config holds all configuration values for the walk core binaries.
type Config struct {
	// DataDir holds the local SQLite database. Defaults to "./data".
	DataDir string `mapstructure:"DATA_DIR"`

	// LogLevel controls the minimum log level. Defaults to "info".
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// StorageBackend selects the local key-value store: sqlite, redis or memory.
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`

	// RedisAddr and RedisPassword configure the redis backend.
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	// DatabaseURL is the remote Postgres connection string. Empty means the
	// core runs permanently offline and every finished walk is queued.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// CheckpointInterval is how often an active walk is snapshotted. Defaults to 30s.
	CheckpointInterval time.Duration `mapstructure:"CHECKPOINT_INTERVAL"`

	// ProbeInterval is how often remote reachability is checked. Defaults to 15s.
	ProbeInterval time.Duration `mapstructure:"PROBE_INTERVAL"`

	// SyncSchedule is an optional cron spec for periodic sync passes.
	SyncSchedule string `mapstructure:"SYNC_SCHEDULE"`

	// DesktopAddr is the listen address of the desktop dev server.
	DesktopAddr string `mapstructure:"DESKTOP_ADDR"`

	// MetricsEnabled exposes Prometheus metrics. Off unless explicitly enabled.
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`
}

var defaults = map[string]any{
	"DATA_DIR":            "./data",
	"LOG_LEVEL":           "info",
	"STORAGE_BACKEND":     BackendSQLite,
	"REDIS_ADDR":          "",
	"REDIS_PASSWORD":      "",
	"REDIS_PREFIX":        "pawtrail:",
	"DATABASE_URL":        "",
	"CHECKPOINT_INTERVAL": "30s",
	"PROBE_INTERVAL":      "15s",
	"SYNC_SCHEDULE":       "",
	"DESKTOP_ADDR":        "localhost:8090",
	"METRICS_ENABLED":     false,
}

// Load reads an optional .env file and then configuration from environment variables.
func Load(envFiles ...string) (Config, error) {
	// A missing .env is normal on devices; real environment variables win.
	_ = godotenv.Load(envFiles...)

	// A private instance keeps repeated loads (tests, FFI re-init) independent.
	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	switch c.StorageBackend {
	case BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when STORAGE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q (want sqlite, redis or memory)", c.StorageBackend)
	}
	if c.CheckpointInterval <= 0 {
		return fmt.Errorf("CHECKPOINT_INTERVAL must be positive")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("PROBE_INTERVAL must be positive")
	}
	return nil
}

// Online reports whether a remote store is configured at all.
func (c Config) Online() bool {
	return c.DatabaseURL != ""
}
