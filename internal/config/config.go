// Package config reads process configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Environment variables.
const (
	EnvPort       = "FUNCTIONS_CUSTOMHANDLER_PORT"
	EnvDataPath   = "CONDUIT_DATA_PATH"
	EnvCatalogDir = "CONDUIT_CATALOG_DIR"
	EnvRateLimit  = "CONDUIT_RATE_LIMIT"
	EnvRateBurst  = "CONDUIT_RATE_BURST"
	EnvLogLevel   = "CONDUIT_LOG_LEVEL"
	EnvRetries    = "CONDUIT_WRITE_RETRIES"
)

// Defaults.
const (
	DefaultPort     = 3000
	DefaultDataPath = "/mnt/conduit"
	DefaultRetries  = 3
)

// Config is the process configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port int

	// DataPath is the directory holding one database per topic.
	DataPath string

	// CatalogDir holds an operator catalog. Empty means the embedded one.
	CatalogDir string

	// RateLimit is requests per second per client; 0 disables limiting.
	RateLimit int

	// RateBurst is the token bucket size. Defaults to RateLimit.
	RateBurst int

	// WriteRetries bounds retries of an append that finds the topic
	// database busy.
	WriteRetries int

	LogLevel slog.Level
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return FromEnv(os.Getenv)
}

// FromEnv reads the configuration through getenv. Any malformed value is an
// error; the caller treats it as fatal before serving.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Port:         DefaultPort,
		DataPath:     DefaultDataPath,
		CatalogDir:   strings.TrimSpace(getenv(EnvCatalogDir)),
		WriteRetries: DefaultRetries,
		LogLevel:     slog.LevelInfo,
	}

	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return Config{}, fmt.Errorf("invalid %s=%q: must be a port number", EnvPort, v)
		}
		cfg.Port = port
	}

	if v := getenv(EnvDataPath); v != "" {
		cfg.DataPath = v
	}

	var err error
	if cfg.RateLimit, err = nonNegative(getenv, EnvRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = nonNegative(getenv, EnvRateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = cfg.RateLimit
	}
	if getenv(EnvRetries) != "" {
		if cfg.WriteRetries, err = nonNegative(getenv, EnvRetries); err != nil {
			return Config{}, err
		}
	}

	if v := getenv(EnvLogLevel); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return Config{}, fmt.Errorf("invalid %s=%q: %w", EnvLogLevel, v, err)
		}
	}
	return cfg, nil
}

// Addr is the listen address for Port.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func nonNegative(getenv func(string) string, key string) (int, error) {
	v := getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s=%q: must be a non-negative integer", key, v)
	}
	return n, nil
}
