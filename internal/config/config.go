package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jask/offlinesync/internal/conflict"
)

// Config holds application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Network   NetworkConfig   `mapstructure:"network"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Conflict  ConflictConfig  `mapstructure:"conflict"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig describes the API queued mutations are replayed against.
type ServerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// NetworkConfig tunes the HTTP connectivity prober. An empty ProbeURL
// means <base_url>/health.
type NetworkConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeAttempts uint          `mapstructure:"probe_attempts"`
}

// CacheConfig holds cache settings. DefaultMaxAge of zero disables expiry.
type CacheConfig struct {
	SchemaVersion string        `mapstructure:"schema_version"`
	DefaultMaxAge time.Duration `mapstructure:"default_max_age"`
}

// QueueConfig holds sync queue settings.
type QueueConfig struct {
	DefaultMaxRetries int `mapstructure:"default_max_retries"`
}

// ConflictConfig selects the conflict strategy used during replay.
type ConflictConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// TelemetryConfig controls OTLP metric export. Disabled by default.
type TelemetryConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	Insecure bool          `mapstructure:"insecure"`
	Interval time.Duration `mapstructure:"interval"`
}

// Path returns the config file location: $OFFLINESYNC_CONFIG or
// ~/.config/offlinesync/config.toml.
func Path() string {
	if p := os.Getenv("OFFLINESYNC_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".config", "offlinesync", "config.toml")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "offlinesync", "offlinesync.db"))
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.user_agent", "offlinesync/1.0")
	v.SetDefault("server.request_timeout", 15*time.Second)
	v.SetDefault("network.probe_url", "")
	v.SetDefault("network.probe_interval", 10*time.Second)
	v.SetDefault("network.probe_attempts", 2)
	v.SetDefault("cache.schema_version", "1")
	v.SetDefault("cache.default_max_age", time.Duration(0))
	v.SetDefault("queue.default_max_retries", 3)
	v.SetDefault("conflict.strategy", string(conflict.DefaultStrategy))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4318")
	v.SetDefault("telemetry.insecure", false)
	v.SetDefault("telemetry.interval", 60*time.Second)
}

// Load reads configuration from file and env. Env var overrides use prefix
// OFFLINESYNC_, e.g. OFFLINESYNC_SERVER_BASE_URL.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("toml")
	v.SetConfigFile(Path())

	v.SetEnvPrefix("OFFLINESYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Network.ProbeURL == "" {
		c.Network.ProbeURL = strings.TrimRight(c.Server.BaseURL, "/") + "/health"
	}
	return c, c.Validate()
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("database.path is required")
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute URL, got %q", c.Server.BaseURL)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive")
	}
	if c.Network.ProbeInterval <= 0 {
		return fmt.Errorf("network.probe_interval must be positive")
	}
	if c.Network.ProbeAttempts == 0 {
		return fmt.Errorf("network.probe_attempts must be at least 1")
	}
	if c.Queue.DefaultMaxRetries <= 0 {
		return fmt.Errorf("queue.default_max_retries must be positive")
	}
	if c.Cache.DefaultMaxAge < 0 {
		return fmt.Errorf("cache.default_max_age must not be negative")
	}
	if _, err := conflict.ParseStrategy(c.Conflict.Strategy); err != nil {
		return fmt.Errorf("conflict.strategy: %w", err)
	}
	if c.Telemetry.Enabled {
		if strings.TrimSpace(c.Telemetry.Endpoint) == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		if c.Telemetry.Interval <= 0 {
			return fmt.Errorf("telemetry.interval must be positive")
		}
	}
	return nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("server.base_url", cfg.Server.BaseURL)
	v.Set("server.user_agent", cfg.Server.UserAgent)
	v.Set("server.request_timeout", cfg.Server.RequestTimeout.String())
	v.Set("network.probe_url", cfg.Network.ProbeURL)
	v.Set("network.probe_interval", cfg.Network.ProbeInterval.String())
	v.Set("network.probe_attempts", cfg.Network.ProbeAttempts)
	v.Set("cache.schema_version", cfg.Cache.SchemaVersion)
	v.Set("cache.default_max_age", cfg.Cache.DefaultMaxAge.String())
	v.Set("queue.default_max_retries", cfg.Queue.DefaultMaxRetries)
	v.Set("conflict.strategy", cfg.Conflict.Strategy)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.development", cfg.Log.Development)
	v.Set("telemetry.enabled", cfg.Telemetry.Enabled)
	v.Set("telemetry.endpoint", cfg.Telemetry.Endpoint)
	v.Set("telemetry.insecure", cfg.Telemetry.Insecure)
	v.Set("telemetry.interval", cfg.Telemetry.Interval.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
