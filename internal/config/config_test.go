package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
aws:
  region: us-west-2
  profile: legacy-stage
  max_attempts: 100
task_definitions:
  keep_count: 5
  keep_recent: 2
  whitelist:
    - us-west-2-jenkins-slave
    - us-west-2-jenkins-kaniko
functions:
  keep_count: 3
filter:
  exclude_families: [sandbox]
workers: 4
dry_run: false
strict: true
journal:
  dir: /var/lib/vacuum
  retention: 168h
daemon:
  interval: 6h
  metrics_addr: ":9191"
  sweeps: [taskdefs, inactive]
otel:
  endpoint: localhost:4317
  insecure: true
  traces:
    enabled: true
    sample_rate: 0.5
  metrics:
    enabled: true
log:
  level: debug
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "us-west-2", cfg.AWS.Region)
	assert.Equal(t, "legacy-stage", cfg.AWS.Profile)
	assert.Equal(t, 100, cfg.AWS.MaxAttempts)
	assert.Equal(t, 5, cfg.TaskDefinitions.KeepCount)
	assert.Equal(t, 2, cfg.TaskDefinitions.KeepRecent)
	assert.Equal(t, []string{"us-west-2-jenkins-slave", "us-west-2-jenkins-kaniko"}, cfg.TaskDefinitions.Whitelist)
	assert.Equal(t, 3, cfg.Functions.KeepCount)
	assert.Equal(t, []string{"sandbox"}, cfg.Filter.ExcludeFamilies)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.IsDryRun())
	assert.True(t, cfg.Strict)
	assert.Equal(t, "/var/lib/vacuum", cfg.Journal.Dir)
	assert.Equal(t, 168*time.Hour, cfg.Journal.Retention)
	assert.Equal(t, 6*time.Hour, cfg.Daemon.Interval)
	assert.Equal(t, ":9191", cfg.Daemon.MetricsAddr)
	assert.Equal(t, []string{SweepTaskDefinitions, SweepInactive}, cfg.Daemon.Sweeps)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.Equal(t, "vacuum", cfg.OTEL.ServiceName)
	assert.Equal(t, 0.5, cfg.OTEL.Traces.SampleRate)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTempConfig(t, "aws:\n  region: us-east-1\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.AWS.MaxAttempts)
	assert.Equal(t, 5, cfg.TaskDefinitions.KeepCount)
	assert.Equal(t, 0, cfg.TaskDefinitions.KeepRecent)
	assert.Equal(t, 3, cfg.Functions.KeepCount)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.IsDryRun(), "dry run is the default")
	assert.False(t, cfg.Strict)
	assert.Equal(t, 720*time.Hour, cfg.Journal.Retention)
	assert.Equal(t, 24*time.Hour, cfg.Daemon.Interval)
	assert.Equal(t, []string{SweepTaskDefinitions, SweepFunctions}, cfg.Daemon.Sweeps)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.IsDryRun())

	cfg.SetDryRun(false)
	assert.False(t, cfg.IsDryRun())
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/vacuum.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempConfig(t, "aws: [unclosed")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidInterval(t *testing.T) {
	path := writeTempConfig(t, "daemon:\n  interval: soon\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "daemon.interval")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"keep count", func(c *Config) { c.TaskDefinitions.KeepCount = 0 }, "keep_count"},
		{"keep recent", func(c *Config) { c.TaskDefinitions.KeepRecent = -1 }, "keep_recent"},
		{"function keep count", func(c *Config) { c.Functions.KeepCount = -3 }, "functions"},
		{"workers", func(c *Config) { c.Workers = 0 }, "workers"},
		{"max attempts", func(c *Config) { c.AWS.MaxAttempts = 0 }, "max_attempts"},
		{"unknown sweep", func(c *Config) { c.Daemon.Sweeps = []string{"images"} }, "unknown sweep"},
		{"sample rate", func(c *Config) { c.OTEL.Traces.SampleRate = 1.5 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vacuum.yaml")
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
	return path
}

func TestLoad_PartialSections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "journal dir only",
			content: "journal:\n  dir: /tmp/j\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "/tmp/j", cfg.Journal.Dir)
				assert.Equal(t, 720*time.Hour, cfg.Journal.Retention)
			},
		},
		{
			name:    "daemon metrics address only",
			content: "daemon:\n  metrics_addr: \":9191\"\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, ":9191", cfg.Daemon.MetricsAddr)
				assert.Equal(t, 24*time.Hour, cfg.Daemon.Interval)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTempConfig(t, tt.content))
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}
