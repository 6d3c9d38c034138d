// Package config handles TOML and environment configuration for auroratag.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. AURORATAG_TAGGING_MODE.
const EnvPrefix = "AURORATAG"

// EnvConfigPath names the variable holding an optional TOML file path.
const EnvConfigPath = EnvPrefix + "_CONFIG"

const maxTagKeyLen = 128

// Config is the root configuration structure.
type Config struct {
	AWS     AWSConfig     `toml:"aws"`
	Tagging TaggingConfig `toml:"tagging"`
	Filter  FilterConfig  `toml:"filter"`
	OTEL    OTELConfig    `toml:"otel"`
	Daemon  DaemonConfig  `toml:"daemon"`
	Log     LogConfig     `toml:"log"`
}

// AWSConfig holds AWS SDK settings. Empty values defer to the SDK's
// default chain (AWS_REGION, AWS_PROFILE, the execution role).
type AWSConfig struct {
	Region  string `toml:"region" envconfig:"REGION"`
	Profile string `toml:"profile" envconfig:"PROFILE"`
}

// TaggingConfig selects sweep behaviour.
type TaggingConfig struct {
	// Mode is "checked" (skip resources already tagged) or "unconditional".
	Mode string `toml:"mode" envconfig:"MODE"`
	// Key is the tag key written by sweeps. Empty picks the mode's default.
	Key    string `toml:"key" envconfig:"KEY"`
	DryRun bool   `toml:"dry_run" envconfig:"DRY_RUN"`
}

// FilterConfig selects which clusters are acted on.
type FilterConfig struct {
	IncludeIDs  []string          `toml:"include_ids" envconfig:"INCLUDE_IDS"`
	ExcludeIDs  []string          `toml:"exclude_ids" envconfig:"EXCLUDE_IDS"`
	Engines     []string          `toml:"engines" envconfig:"ENGINES"`
	IncludeTags map[string]string `toml:"include_tags" envconfig:"INCLUDE_TAGS"`
	ExcludeTags map[string]string `toml:"exclude_tags" envconfig:"EXCLUDE_TAGS"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint" envconfig:"ENDPOINT"`
	Insecure    bool          `toml:"insecure" envconfig:"INSECURE"`
	ServiceName string        `toml:"service_name" envconfig:"SERVICE_NAME"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled" envconfig:"ENABLED"`
	SampleRate float64 `toml:"sample_rate" envconfig:"SAMPLE_RATE"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled" envconfig:"ENABLED"`
}

// DaemonConfig holds settings for running sweeps on an interval outside Lambda.
type DaemonConfig struct {
	IntervalStr string        `toml:"interval" envconfig:"INTERVAL"`
	Interval    time.Duration `toml:"-" ignored:"true"`
	MetricsAddr string        `toml:"metrics_addr" envconfig:"METRICS_ADDR"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level" envconfig:"LEVEL"`
	Format string `toml:"format" envconfig:"FORMAT"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load builds a configuration from defaults, the TOML file at path (skipped
// when path is empty) and AURORATAG_* environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator input
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromEnv loads configuration for a Lambda function, reading the file named
// by AURORATAG_CONFIG when set.
func FromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

func applyDefaults(cfg *Config) {
	if cfg.Tagging.Mode == "" {
		cfg.Tagging.Mode = "checked"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "auroratag"
	}
	if cfg.Daemon.IntervalStr == "" {
		cfg.Daemon.IntervalStr = "1h"
	}
	if cfg.Daemon.Interval == 0 {
		cfg.Daemon.Interval = time.Hour
	}
	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Daemon.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Daemon.IntervalStr, err)
	}
	cfg.Daemon.Interval = d
	return nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	switch c.Tagging.Mode {
	case "checked", "unconditional":
	default:
		return fmt.Errorf("tagging: unknown mode %q (want checked or unconditional)", c.Tagging.Mode)
	}
	if c.Tagging.Key != "" {
		if err := ValidateTagKey(c.Tagging.Key); err != nil {
			return fmt.Errorf("tagging: %w", err)
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon: interval must be positive (got %s)", c.Daemon.Interval)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q (want json or console)", c.Log.Format)
	}
	return nil
}

// ValidateTagKey applies the RDS tag key rules: 1-128 characters, not
// prefixed with "aws:" or "rds:".
func ValidateTagKey(key string) error {
	if key == "" || len(key) > maxTagKeyLen {
		return fmt.Errorf("tag key must be 1-%d characters (got %d)", maxTagKeyLen, len(key))
	}
	lower := strings.ToLower(key)
	if strings.HasPrefix(lower, "aws:") || strings.HasPrefix(lower, "rds:") {
		return fmt.Errorf("tag key %q uses a reserved prefix", key)
	}
	return nil
}
