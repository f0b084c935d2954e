package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Engine.MaxConcurrent = 0
	cfg.Risk.MaxRiskScore = 1.5
	cfg.Risk.MaxExposure = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "max_concurrent")
	assert.Contains(t, err.Error(), "max_risk_score")
	assert.Contains(t, err.Error(), "max_exposure")
}

func TestValidateLiveQuotesNeedCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Quotes.Source = "live"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.Max.ApiKey = "key"
	cfg.Max.ApiSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestValidateTriangularPairCount(t *testing.T) {
	cfg := Defaults()
	cfg.Triangular.Pairs = []string{"BTCTWD", "ETHTWD"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly 3 pairs")
}

func TestValidateArchiveNeedsS3(t *testing.T) {
	cfg := Defaults()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "engine"
log_level = "debug"

[engine]
max_concurrent = 7
scan_interval = "1s"

[quotes]
source = "simulated"
pairs = ["BTCTWD"]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, 7, cfg.Engine.MaxConcurrent)
	assert.Equal(t, time.Second, cfg.Engine.ScanInterval.Duration)
	assert.Equal(t, []string{"BTCTWD"}, cfg.Quotes.Pairs)
	// Untouched fields keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Engine.ExecutionTimeout.Duration)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARBENGINE_MODE", "server")
	t.Setenv("ARBENGINE_ENGINE_MAX_CONCURRENT", "9")
	t.Setenv("ARBENGINE_ENGINE_SCAN_INTERVAL", "250ms")
	t.Setenv("ARBENGINE_ENGINE_AUTO_EXECUTE", "false")
	t.Setenv("ARBENGINE_QUOTES_VENUES", "max, binance, kraken")
	t.Setenv("ARBENGINE_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("ARBENGINE_RISK_MAX_EXPOSURE", "250000")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "server", cfg.Mode)
	assert.Equal(t, 9, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 250*time.Millisecond, cfg.Engine.ScanInterval.Duration)
	assert.False(t, cfg.Engine.AutoExecute)
	assert.Equal(t, []string{"max", "binance", "kraken"}, cfg.Quotes.Venues)
	assert.Equal(t, "hunter2", cfg.Postgres.Password)
	assert.Equal(t, 250_000.0, cfg.Risk.MaxExposure)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("ARBENGINE_ENGINE_MAX_CONCURRENT", "lots")
	t.Setenv("ARBENGINE_ENGINE_SCAN_INTERVAL", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, 3, cfg.Engine.MaxConcurrent)
	assert.Equal(t, 3*time.Second, cfg.Engine.ScanInterval.Duration)
}

func TestDurationTextRoundTrip(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Max.ApiKey = "key"
	cfg.Postgres.Password = "pw"
	cfg.Server.ApiKey = "api"
	cfg.Notify.TelegramToken = "token"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Max.ApiKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.ApiKey)
	assert.Equal(t, "***", red.Notify.TelegramToken)

	// Original is untouched.
	assert.Equal(t, "key", cfg.Max.ApiKey)
	// Empty secrets stay empty rather than becoming placeholders.
	assert.Empty(t, red.Redis.Password)
}
