package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/mnt/conduit", cfg.DataPath)
	assert.Equal(t, "", cfg.CatalogDir)
	assert.Equal(t, 0, cfg.RateLimit)
	assert.Equal(t, 3, cfg.WriteRetries)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		EnvPort:       "8080",
		EnvDataPath:   "/data",
		EnvCatalogDir: " /etc/conduit ",
		EnvRateLimit:  "50",
		EnvLogLevel:   "debug",
	}))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/data", cfg.DataPath)
	assert.Equal(t, "/etc/conduit", cfg.CatalogDir)
	assert.Equal(t, 50, cfg.RateLimit)
	assert.Equal(t, 50, cfg.RateBurst, "burst defaults to the rate")
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)

	cfg, err = FromEnv(env(map[string]string{EnvRateLimit: "10", EnvRateBurst: "25"}))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.RateBurst)

	cfg, err = FromEnv(env(map[string]string{EnvRetries: "0"}))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.WriteRetries, "zero disables retries")
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port not a number", map[string]string{EnvPort: "http"}},
		{"port zero", map[string]string{EnvPort: "0"}},
		{"port too large", map[string]string{EnvPort: "70000"}},
		{"negative rate", map[string]string{EnvRateLimit: "-1"}},
		{"bad burst", map[string]string{EnvRateBurst: "lots"}},
		{"bad log level", map[string]string{EnvLogLevel: "loud"}},
		{"negative retries", map[string]string{EnvRetries: "-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(env(tt.env))
			assert.Error(t, err)
		})
	}
}
