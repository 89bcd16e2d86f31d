package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "config/universe.yaml", cfg.UniverseFile)
	assert.Equal(t, 15, cfg.TopN)
	assert.InDelta(t, 5.0, cfg.Screen.MinPrice, 1e-9)
	assert.Equal(t, 8090, cfg.Server.Port)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", `
top_n: 10
screen:
  min_price: 3.0
enrich:
  timeout: 15s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.TopN)
	assert.InDelta(t, 3.0, cfg.Screen.MinPrice, 1e-9)
	assert.Equal(t, 15*time.Second, cfg.Enrich.Timeout)

	// Everything the file does not mention keeps its default.
	assert.InDelta(t, -25.0, cfg.Screen.MaxGapDownPct, 1e-9)
	assert.InDelta(t, 30.0, cfg.Regime.VIXEnterRiskOff, 1e-9)
	assert.Equal(t, 8, cfg.Enrich.Workers)
	assert.Equal(t, "memory", cfg.Fingerprint.Backend)
	assert.Equal(t, "30 7 * * 1-5", cfg.Schedule.Expression)
	assert.Equal(t, "out", cfg.ArtifactDir)
}

func TestLoadParsesCompoundDurations(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", `
fingerprint:
  ttl: 1h30m
store:
  conn_max_lifetime: 45m
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Minute, cfg.Fingerprint.TTL)
	assert.Equal(t, 45*time.Minute, cfg.Store.ConnMaxLifetime)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", "top_n: [this is not\n  an int\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestLoadRejectsIncoherentThresholds(t *testing.T) {
	// Hysteresis requires the exit threshold below the enter threshold.
	path := writeTemp(t, "pipeline.yaml", `
regime:
  vix_enter_risk_off: 27.0
  vix_exit_risk_off: 30.0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
	assert.Contains(t, err.Error(), "exit threshold")
}

func TestLoadRejectsTagViolations(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", `
server:
  port: 70000
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadRejectsZeroedRequiredField(t *testing.T) {
	// An explicit zero overrides the default and must fail closed.
	path := writeTemp(t, "pipeline.yaml", `
enrich:
  workers: 0
`)

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", "top_n: 5\n")

	t.Setenv("DATABASE_URL", "postgres://openprep:pw@db:5432/openprep?sslmode=disable")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("HTTP_PORT", "9100")
	t.Setenv("QUOTE_FEED_URL", "wss://quotes.example.com/v1")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)

	assert.True(t, cfg.Store.Enabled)
	assert.Contains(t, cfg.Store.DSN, "db:5432")
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Notify.Brokers)
	assert.Equal(t, "redis", cfg.Fingerprint.Backend)
	assert.Equal(t, "redis:6379", cfg.Fingerprint.RedisAddr)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "wss://quotes.example.com/v1", cfg.Signals.URL)
	assert.Equal(t, 5, cfg.TopN, "env overrides never touch file-set fields")
}

func TestLoadWithEnvIgnoresUnsetVariables(t *testing.T) {
	path := writeTemp(t, "pipeline.yaml", "top_n: 5\n")
	t.Setenv("DATABASE_URL", "")

	cfg, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.False(t, cfg.Store.Enabled)
	assert.Empty(t, cfg.Notify.Brokers)
}
