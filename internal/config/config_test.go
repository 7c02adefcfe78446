package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_AppliesDocumentedDefaults(t *testing.T) {
	path := writeTempConfig(t, "default-keys: []\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 8888, cfg.Endpoint.Port)
	assert.Equal(t, "0.0.0.0", cfg.Endpoint.Host)
	assert.Equal(t, time.Hour, cfg.Droplets.Interval.Duration())
	assert.Equal(t, 5*time.Second, cfg.ExporterMetrics.Interval.Duration())
}

func TestLoad_OverridesDefaultsFromFile(t *testing.T) {
	path := writeTempConfig(t, `
endpoint:
  port: 9999
  host: 127.0.0.1
custom:
  prefix: "do_"
  labels:
    env: prod
metrics:
  droplet_cpu:
    enabled: true
    interval: 30s
    keys: ["cpu-key"]
    types: ["usage"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.EqualValues(t, 9999, cfg.Endpoint.Port)
	assert.Equal(t, "127.0.0.1", cfg.Endpoint.Host)
	assert.Equal(t, "do_", cfg.Custom.Prefix)
	assert.Equal(t, "prod", cfg.Custom.Labels["env"])

	fam := cfg.Metrics["droplet_cpu"]
	assert.True(t, fam.Enabled)
	assert.Equal(t, 30*time.Second, fam.Interval.Duration())
	assert.Equal(t, []string{"cpu-key"}, fam.Keys)
}

func TestLoad_ExpandsEnvironmentBeforeParsing(t *testing.T) {
	t.Setenv("DROXPORTER_TEST_PREFIX", "env_")
	path := writeTempConfig(t, "custom:\n  prefix: \"${DROXPORTER_TEST_PREFIX}\"\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env_", cfg.Custom.Prefix)
}

func TestLoad_ErrorsOnMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoad_ErrorsOnInvalidDuration(t *testing.T) {
	path := writeTempConfig(t, "droplets:\n  interval: \"not-a-duration\"\n")
	_, err := Load(path)
	assert.Error(t, err)
}
