// Package config provides configuration management for quota-monitor.
//
// Configuration is loaded from multiple sources with the following precedence:
// 1. Environment variables (highest priority)
// 2. Configuration file
// 3. Default values (lowest priority)
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Event log dirs: %v\n", cfg.EventLogDirs)
package config

import (
	"time"
)

// Config represents the complete application configuration.
//
// Invariants:
// - EventLogDirs must have at least one directory
// - Poller.Interval must be > 0
// - Poller.Timeout must be >= 0 and <= Poller.Interval
// - Poller.FailureThreshold must be > 0
// - Storage retention horizons must be > 0.
type Config struct {
	// Event log directories to ingest (Claude Code project trees)
	EventLogDirs []string `yaml:"event_log_dirs"`

	// Snapshot poller settings
	Poller PollerConfig `yaml:"poller"`

	// Storage settings
	Storage StorageConfig `yaml:"storage"`

	// Pricing rate overrides, keyed by model identifier.
	// Empty means the built-in rate table is used unchanged.
	Pricing map[string]RateConfig `yaml:"pricing"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging"`
}

// PollerConfig contains snapshot-poller settings.
type PollerConfig struct {
	// How often to poll the usage snapshot collaborator
	Interval time.Duration `yaml:"interval"`

	// Timeout for a single poll. Zero means half the interval.
	Timeout time.Duration `yaml:"timeout"`

	// Consecutive failures before the poller reports degraded health
	FailureThreshold int `yaml:"failure_threshold"`

	// External command whose output is scraped for a snapshot.
	// Empty disables polling (event ingestion still runs).
	Command string `yaml:"command"`
}

// StorageConfig contains storage-related settings.
type StorageConfig struct {
	// Directory for all durable daemon state
	DataDir string `yaml:"data_dir"`

	// Path to the BoltDB summary database. Defaults under DataDir.
	DBPath string `yaml:"db_path"`

	// Path to the append-only snapshot log. Defaults under DataDir.
	SnapshotLogPath string `yaml:"snapshot_log_path"`

	// Days of daily summaries to retain
	RetentionDays int `yaml:"retention_days"`

	// Days of raw snapshot records to retain (independent horizon)
	SnapshotRetentionDays int `yaml:"snapshot_retention_days"`
}

// RateConfig contains per-model pricing rates in USD per million tokens.
type RateConfig struct {
	Input      float64 `yaml:"input"`
	Output     float64 `yaml:"output"`
	CacheWrite float64 `yaml:"cache_write"`
	CacheRead  float64 `yaml:"cache_read"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level"`

	// Log output destination (stdout, stderr, file path)
	Output string `yaml:"output"`

	// Log format (text, json)
	Format string `yaml:"format"`
}

// Validate checks if the configuration satisfies all invariants.
//
// Returns an error if any invariant is violated:
//   - No event log directories specified
//   - Invalid poller interval, timeout, or failure threshold
//   - Invalid retention horizons
//   - Negative pricing rates
//   - Invalid log level or format
//
// Thread-safety: This method is read-only and thread-safe.
func (c *Config) Validate() error {
	if len(c.EventLogDirs) == 0 {
		return ErrNoEventLogDirs
	}

	if c.Poller.Interval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.Poller.Timeout < 0 || c.Poller.Timeout > c.Poller.Interval {
		return ErrInvalidPollTimeout
	}
	if c.Poller.FailureThreshold <= 0 {
		return ErrInvalidFailureThreshold
	}

	if c.Storage.RetentionDays <= 0 {
		return ErrInvalidRetention
	}
	if c.Storage.SnapshotRetentionDays <= 0 {
		return ErrInvalidRetention
	}

	for model, rate := range c.Pricing {
		if rate.Input < 0 || rate.Output < 0 || rate.CacheWrite < 0 || rate.CacheRead < 0 {
			return ErrNegativeRate{Model: model}
		}
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	validFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validFormats[c.Logging.Format] {
		return ErrInvalidLogFormat
	}

	return nil
}

// Default returns a configuration with sensible default values.
//
// The 30s poll interval matches the cadence the upstream usage endpoint
// tolerates; summaries default to a 90-day horizon.
func Default() *Config {
	return &Config{
		EventLogDirs: defaultEventLogDirs(),
		Poller: PollerConfig{
			Interval:         30 * time.Second,
			Timeout:          0, // resolved to Interval/2 by the poller
			FailureThreshold: 5,
		},
		Storage: StorageConfig{
			DataDir:               defaultDataDir(),
			DBPath:                defaultDBPath(),
			SnapshotLogPath:       defaultSnapshotLogPath(),
			RetentionDays:         90,
			SnapshotRetentionDays: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			Format: "text",
		},
	}
}
