package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
[aws]
region = "eu-west-1"
profile = "production"

[tagging]
mode = "unconditional"
key = "cluster"
dry_run = true

[filter]
include_ids = ["prod-*"]
exclude_ids = ["prod-scratch"]
engines = ["aurora*"]
exclude_tags = { "auroratag:skip" = "true" }

[otel]
endpoint = "localhost:4317"
insecure = true
service_name = "auroratag"

[otel.traces]
enabled = true
sample_rate = 1.0

[otel.metrics]
enabled = true

[daemon]
interval = "15m"
metrics_addr = ":9191"

[log]
level = "debug"
format = "console"
`
	path := writeTempConfig(t, content)
	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, "production", cfg.AWS.Profile)
	assert.Equal(t, "unconditional", cfg.Tagging.Mode)
	assert.Equal(t, "cluster", cfg.Tagging.Key)
	assert.True(t, cfg.Tagging.DryRun)
	assert.Equal(t, []string{"prod-*"}, cfg.Filter.IncludeIDs)
	assert.Equal(t, []string{"prod-scratch"}, cfg.Filter.ExcludeIDs)
	assert.Equal(t, []string{"aurora*"}, cfg.Filter.Engines)
	assert.Equal(t, map[string]string{"auroratag:skip": "true"}, cfg.Filter.ExcludeTags)
	assert.Equal(t, "localhost:4317", cfg.OTEL.Endpoint)
	assert.True(t, cfg.OTEL.Insecure)
	assert.True(t, cfg.OTEL.Traces.Enabled)
	assert.Equal(t, 1.0, cfg.OTEL.Traces.SampleRate)
	assert.True(t, cfg.OTEL.Metrics.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Daemon.Interval)
	assert.Equal(t, ":9191", cfg.Daemon.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "checked", cfg.Tagging.Mode)
	assert.Empty(t, cfg.Tagging.Key)
	assert.False(t, cfg.Tagging.DryRun)
	assert.Equal(t, "auroratag", cfg.OTEL.ServiceName)
	assert.Equal(t, time.Hour, cfg.Daemon.Interval)
	assert.Equal(t, ":9090", cfg.Daemon.MetricsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	require.NoError(t, cfg.Validate())
}

func TestDefault_Validates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	content := `
[tagging]
mode = "checked"
key = "aurora_cluster"

[log]
level = "warn"
`
	path := writeTempConfig(t, content)
	t.Setenv("AURORATAG_TAGGING_MODE", "unconditional")
	t.Setenv("AURORATAG_TAGGING_DRY_RUN", "true")
	t.Setenv("AURORATAG_FILTER_ENGINES", "aurora-mysql,aurora-postgresql")
	t.Setenv("AURORATAG_OTEL_TRACES_SAMPLE_RATE", "0.5")
	t.Setenv("AURORATAG_DAEMON_INTERVAL", "30s")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "unconditional", cfg.Tagging.Mode)
	assert.Equal(t, "aurora_cluster", cfg.Tagging.Key, "file value survives when env unset")
	assert.True(t, cfg.Tagging.DryRun)
	assert.Equal(t, []string{"aurora-mysql", "aurora-postgresql"}, cfg.Filter.Engines)
	assert.Equal(t, 0.5, cfg.OTEL.Traces.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.Daemon.Interval)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestFromEnv_ReadsConfigPath(t *testing.T) {
	path := writeTempConfig(t, "[tagging]\nkey = \"owner_cluster\"\n")
	t.Setenv(EnvConfigPath, path)

	cfg, err := FromEnv()

	require.NoError(t, err)
	assert.Equal(t, "owner_cluster", cfg.Tagging.Key)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	require.Error(t, err)
}

func TestLoad_InvalidTOML(t *testing.T) {
	content := `
[tagging
mode =
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	content := `
[daemon]
interval = "not-a-duration"
`
	path := writeTempConfig(t, content)
	_, err := Load(path)
	require.Error(t, err)
}

func TestConfig_Validate_UnknownMode(t *testing.T) {
	cfg := Default()
	cfg.Tagging.Mode = "sometimes"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestConfig_Validate_SampleRate(t *testing.T) {
	cfg := Default()
	cfg.OTEL.Traces.SampleRate = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sample_rate")
}

func TestConfig_Validate_Interval(t *testing.T) {
	cfg := Default()
	cfg.Daemon.Interval = 0

	require.Error(t, cfg.Validate())
}

func TestValidateTagKey(t *testing.T) {
	assert.NoError(t, ValidateTagKey("aurora_cluster"))
	assert.Error(t, ValidateTagKey(""))
	assert.Error(t, ValidateTagKey(strings.Repeat("k", 129)))
	assert.Error(t, ValidateTagKey("aws:cluster"))
	assert.Error(t, ValidateTagKey("RDS:cluster"))
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}
