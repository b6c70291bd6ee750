package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "unix:///tmp/walletbridge-runtime.sock", cfg.Runtime.Address)
	assert.Equal(t, 30*time.Second, cfg.Runtime.CallbackTimeout)
	assert.Equal(t, 5*time.Second, cfg.Runtime.ScriptTimeout)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.False(t, cfg.Keystore.Light)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	assert.Equal(t, 20, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 40, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)
}

func TestLoadMatchesDefault(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"RUNTIME_ADDR":       "unix:///run/wb.sock",
		"APPS_DIR":           "/data/apps",
		"CALLBACK_TIMEOUT":   "45s",
		"SCRIPT_TIMEOUT":     "250ms",
		"PORT":               "9000",
		"ALLOWED_ORIGINS":    "https://a.example,https://b.example",
		"KEYSTORE_LIGHT":     "true",
		"UNLOCK_SECRET_PATH": "/data/unlock.json",
		"LOG_LEVEL":          "debug",
		"LOG_DEV":            "true",
		"RATE_LIMIT_RPS":     "5",
		"RATE_LIMIT_BURST":   "10",
		"RATE_LIMIT_ENABLED": "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "unix:///run/wb.sock", cfg.Runtime.Address)
	assert.Equal(t, "/data/apps", cfg.Runtime.AppsDir)
	assert.Equal(t, 45*time.Second, cfg.Runtime.CallbackTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Runtime.ScriptTimeout)
	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.True(t, cfg.Keystore.Light)
	assert.Equal(t, "/data/unlock.json", cfg.Keystore.UnlockSecretPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("CALLBACK_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)

	cfg := LoadOrDefault()
	assert.Equal(t, 30*time.Second, cfg.Runtime.CallbackTimeout)
}
