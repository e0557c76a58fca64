// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Source   SourceConfig   `mapstructure:"source"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Backoff  BackoffConfig  `mapstructure:"backoff"`
	Renderer RendererConfig `mapstructure:"renderer"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// SourceConfig identifies the scraped source and how to read it.
type SourceConfig struct {
	URL               string `mapstructure:"url"`
	RowSelector       string `mapstructure:"row_selector"`
	PollIntervalMs    int    `mapstructure:"poll_interval_ms"`
	WarmupDelaySec    int    `mapstructure:"warmup_delay_seconds"`
	MaxRecords        int    `mapstructure:"max_records"`
	NavTimeoutSeconds int    `mapstructure:"nav_timeout_seconds"`
}

// SnapshotConfig sets the durable mirror file paths.
type SnapshotConfig struct {
	PrimaryPath string `mapstructure:"primary_path"`
	BackupPath  string `mapstructure:"backup_path"`
}

// BackoffConfig governs the acquisition loop's retry delays.
type BackoffConfig struct {
	InitialSeconds int `mapstructure:"initial_seconds"`
	MaxSeconds     int `mapstructure:"max_seconds"`
}

// RendererConfig configures the headless rendering client.
type RendererConfig struct {
	UserAgent     string `mapstructure:"user_agent"`
	MinIntervalMs int    `mapstructure:"min_interval_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUOTEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("source.url", "https://www.binance.com/en/markets")
	v.SetDefault("source.row_selector", "div.overview-table-row")
	v.SetDefault("source.poll_interval_ms", 2000)
	v.SetDefault("source.warmup_delay_seconds", 5)
	v.SetDefault("source.max_records", 0)
	v.SetDefault("source.nav_timeout_seconds", 30)
	v.SetDefault("snapshot.primary_path", "crypto_data.json")
	v.SetDefault("snapshot.backup_path", "crypto_data_backup.json")
	v.SetDefault("backoff.initial_seconds", 1)
	v.SetDefault("backoff.max_seconds", 30)
	v.SetDefault("renderer.user_agent", "quotewatchd/0.1 (+https://github.com/quotewatch/quotewatchd)")
	v.SetDefault("renderer.min_interval_ms", 0)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Source.URL == "" {
		return fmt.Errorf("source.url must be set")
	}
	if c.Source.RowSelector == "" {
		return fmt.Errorf("source.row_selector must be set")
	}
	if c.Source.PollIntervalMs <= 0 {
		return fmt.Errorf("source.poll_interval_ms must be > 0")
	}
	if c.Source.MaxRecords < 0 {
		return fmt.Errorf("source.max_records must be >= 0")
	}
	if c.Snapshot.PrimaryPath == "" {
		return fmt.Errorf("snapshot.primary_path must be set")
	}
	if c.Backoff.InitialSeconds <= 0 {
		return fmt.Errorf("backoff.initial_seconds must be > 0")
	}
	if c.Backoff.MaxSeconds < c.Backoff.InitialSeconds {
		return fmt.Errorf("backoff.max_seconds must be >= backoff.initial_seconds")
	}
	return nil
}

// PollInterval returns the poll interval as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Source.PollIntervalMs) * time.Millisecond
}

// WarmupDelay returns the initial page settle delay as a duration.
func (c Config) WarmupDelay() time.Duration {
	return time.Duration(c.Source.WarmupDelaySec) * time.Second
}

// NavTimeout returns the navigation timeout as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Source.NavTimeoutSeconds) * time.Second
}

// BackoffFloor returns the initial backoff delay as a duration.
func (c Config) BackoffFloor() time.Duration {
	return time.Duration(c.Backoff.InitialSeconds) * time.Second
}

// BackoffCap returns the maximum backoff delay as a duration.
func (c Config) BackoffCap() time.Duration {
	return time.Duration(c.Backoff.MaxSeconds) * time.Second
}
