package config

import (
	"embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed example.yaml
var exampleConfig embed.FS

// Config represents the complete plume configuration
type Config struct {
	Gateway       Gateway       `yaml:"gateway"`
	Push          Push          `yaml:"push"`
	Refresh       Refresh       `yaml:"refresh"`
	Notifications Notifications `yaml:"notifications"`
	Session       Session       `yaml:"session"`
	Diagnostics   Diagnostics   `yaml:"diagnostics"`
	Logging       Logging       `yaml:"logging"`
}

// Gateway contains remote data gateway connection settings
type Gateway struct {
	BaseURL   string `yaml:"base_url"`
	Token     string `yaml:"token"` // usually supplied via PLUME_TOKEN instead
	TimeoutMs int    `yaml:"timeout_ms"`
	PageSize  int    `yaml:"page_size"`
}

// Timeout returns the gateway request timeout as a duration
func (g *Gateway) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

// Push contains push event bus settings
type Push struct {
	Enabled   bool   `yaml:"enabled"`
	URL       string `yaml:"url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Refresh contains auto-refresh scheduler settings
type Refresh struct {
	Enabled                 bool `yaml:"enabled"`
	IntervalMinutes         int  `yaml:"interval_minutes"`
	InteractionGraceSeconds int  `yaml:"interaction_grace_seconds"`
}

// Interval returns the refresh interval as a duration
func (r *Refresh) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Notifications contains notification tracking settings
type Notifications struct {
	KnownCacheSize int  `yaml:"known_cache_size"`
	AlertsEnabled  bool `yaml:"alerts_enabled"`
}

// Session contains persisted session store settings
type Session struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Diagnostics contains the optional metrics/diagnostics listener settings
type Diagnostics struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// Logging contains logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// applyDefaults fills in missing configuration fields with sensible defaults
func applyDefaults(cfg *Config) {
	defaults := Default()

	if cfg.Gateway.TimeoutMs == 0 {
		cfg.Gateway.TimeoutMs = defaults.Gateway.TimeoutMs
	}
	if cfg.Gateway.PageSize == 0 {
		cfg.Gateway.PageSize = defaults.Gateway.PageSize
	}
	if cfg.Push.TimeoutMs == 0 {
		cfg.Push.TimeoutMs = defaults.Push.TimeoutMs
	}
	if cfg.Refresh.IntervalMinutes == 0 {
		cfg.Refresh.IntervalMinutes = defaults.Refresh.IntervalMinutes
	}
	if cfg.Refresh.InteractionGraceSeconds == 0 {
		cfg.Refresh.InteractionGraceSeconds = defaults.Refresh.InteractionGraceSeconds
	}
	if cfg.Notifications.KnownCacheSize == 0 {
		cfg.Notifications.KnownCacheSize = defaults.Notifications.KnownCacheSize
	}
	if cfg.Session.SQLitePath == "" {
		cfg.Session.SQLitePath = defaults.Session.SQLitePath
	}
	if cfg.Diagnostics.Bind == "" {
		cfg.Diagnostics.Bind = defaults.Diagnostics.Bind
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
}

// Load reads and parses a configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(cfg *Config) error {
	// The session token does not belong in a file on disk
	if token := os.Getenv("PLUME_TOKEN"); token != "" {
		cfg.Gateway.Token = token
	}
	return nil
}

// GetExampleConfig returns the embedded example configuration
func GetExampleConfig() ([]byte, error) {
	return exampleConfig.ReadFile("example.yaml")
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Gateway: Gateway{
			BaseURL:   "https://api.example.social",
			TimeoutMs: 10000,
			PageSize:  50,
		},
		Push: Push{
			Enabled:   true,
			URL:       "wss://api.example.social/events",
			TimeoutMs: 10000,
		},
		Refresh: Refresh{
			Enabled:                 true,
			IntervalMinutes:         5,
			InteractionGraceSeconds: 30,
		},
		Notifications: Notifications{
			KnownCacheSize: 4096,
			AlertsEnabled:  true,
		},
		Session: Session{
			SQLitePath: "./data/plume.db",
		},
		Diagnostics: Diagnostics{
			Enabled: false,
			Bind:    "127.0.0.1:9190",
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks the configuration for errors
func Validate(cfg *Config) error {
	if cfg.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if cfg.Push.Enabled && cfg.Push.URL == "" {
		return fmt.Errorf("push.url is required when push is enabled")
	}
	if cfg.Refresh.IntervalMinutes < 1 {
		return fmt.Errorf("refresh.interval_minutes must be at least 1")
	}
	if cfg.Notifications.KnownCacheSize < 0 {
		return fmt.Errorf("notifications.known_cache_size must not be negative")
	}
	if cfg.Session.SQLitePath == "" {
		return fmt.Errorf("session.sqlite_path is required")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	return nil
}
