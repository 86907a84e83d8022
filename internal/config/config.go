// Package config handles YAML configuration for vacuum.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Sweep names accepted in daemon.sweeps.
const (
	SweepTaskDefinitions = "taskdefs"
	SweepFunctions       = "functions"
	SweepInactive        = "inactive"
)

// Config is the root configuration structure.
type Config struct {
	AWS             AWSConfig            `yaml:"aws"`
	TaskDefinitions TaskDefinitionConfig `yaml:"task_definitions"`
	Functions       FunctionConfig       `yaml:"functions"`
	Filter          FilterConfig         `yaml:"filter"`
	Workers         int                  `yaml:"workers"`
	DryRun          *bool                `yaml:"dry_run"`
	Strict          bool                 `yaml:"strict"`
	Journal         JournalConfig        `yaml:"journal"`
	Daemon          DaemonConfig         `yaml:"daemon"`
	OTEL            OTELConfig           `yaml:"otel"`
	Log             LogConfig            `yaml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Region      string `yaml:"region"`
	Profile     string `yaml:"profile"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// TaskDefinitionConfig holds retention settings for task definitions.
type TaskDefinitionConfig struct {
	KeepCount  int      `yaml:"keep_count"`
	KeepRecent int      `yaml:"keep_recent"`
	Whitelist  []string `yaml:"whitelist"`
}

// FunctionConfig holds retention settings for function versions.
type FunctionConfig struct {
	KeepCount int `yaml:"keep_count"`
}

// FilterConfig scopes sweeps to a subset of families.
type FilterConfig struct {
	IncludeFamilies []string `yaml:"include_families"`
	ExcludeFamilies []string `yaml:"exclude_families"`
}

// JournalConfig holds deletion journal settings. An empty Dir disables it.
type JournalConfig struct {
	Dir          string        `yaml:"dir"`
	RetentionStr string        `yaml:"retention"`
	Retention    time.Duration `yaml:"-"`
}

// DaemonConfig holds settings for the long-running mode.
type DaemonConfig struct {
	IntervalStr string        `yaml:"interval"`
	Interval    time.Duration `yaml:"-"`
	MetricsAddr string        `yaml:"metrics_addr"`
	Sweeps      []string      `yaml:"sweeps"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Insecure    bool          `yaml:"insecure"`
	ServiceName string        `yaml:"service_name"`
	Traces      TracesConfig  `yaml:"traces"`
	Metrics     MetricsConfig `yaml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate float64 `yaml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	// Defaults are valid by construction.
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AWS.MaxAttempts == 0 {
		cfg.AWS.MaxAttempts = 10
	}
	if cfg.TaskDefinitions.KeepCount == 0 {
		cfg.TaskDefinitions.KeepCount = 5
	}
	if cfg.Functions.KeepCount == 0 {
		cfg.Functions.KeepCount = 3
	}
	if cfg.Workers == 0 {
		cfg.Workers = 8
	}
	if cfg.DryRun == nil {
		dryRun := true
		cfg.DryRun = &dryRun
	}
	if cfg.Journal.RetentionStr == "" {
		cfg.Journal.RetentionStr = "720h"
	}
	if cfg.Daemon.IntervalStr == "" {
		cfg.Daemon.IntervalStr = "24h"
	}
	if cfg.Daemon.MetricsAddr == "" {
		cfg.Daemon.MetricsAddr = ":9090"
	}
	if len(cfg.Daemon.Sweeps) == 0 {
		cfg.Daemon.Sweeps = []string{SweepTaskDefinitions, SweepFunctions}
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "vacuum"
	}
	if cfg.OTEL.Traces.SampleRate == 0 {
		cfg.OTEL.Traces.SampleRate = 1.0
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Daemon.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse daemon.interval %q: %w", cfg.Daemon.IntervalStr, err)
	}
	cfg.Daemon.Interval = d

	r, err := time.ParseDuration(cfg.Journal.RetentionStr)
	if err != nil {
		return fmt.Errorf("parse journal.retention %q: %w", cfg.Journal.RetentionStr, err)
	}
	cfg.Journal.Retention = r

	return nil
}

// IsDryRun reports whether deletions are only planned.
func (c *Config) IsDryRun() bool {
	return c.DryRun == nil || *c.DryRun
}

// SetDryRun overrides the dry-run setting.
func (c *Config) SetDryRun(v bool) {
	c.DryRun = &v
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if c.TaskDefinitions.KeepCount < 1 {
		return fmt.Errorf("task_definitions: keep_count must be at least 1 (got %d)", c.TaskDefinitions.KeepCount)
	}
	if c.TaskDefinitions.KeepRecent < 0 {
		return fmt.Errorf("task_definitions: keep_recent must not be negative (got %d)", c.TaskDefinitions.KeepRecent)
	}
	if c.Functions.KeepCount < 1 {
		return fmt.Errorf("functions: keep_count must be at least 1 (got %d)", c.Functions.KeepCount)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1 (got %d)", c.Workers)
	}
	if c.AWS.MaxAttempts < 1 {
		return fmt.Errorf("aws: max_attempts must be at least 1 (got %d)", c.AWS.MaxAttempts)
	}
	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon: interval must be positive (got %v)", c.Daemon.Interval)
	}
	for _, s := range c.Daemon.Sweeps {
		switch s {
		case SweepTaskDefinitions, SweepFunctions, SweepInactive:
		default:
			return fmt.Errorf("daemon: unknown sweep %q", s)
		}
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
