// Package config loads process configuration from environment variables,
// using an env-var-with-fallback pattern generalized from {port, log_level,
// database_dsn} to this engine's scheduler tunables (MAX_CONCURRENT_NODES,
// ENABLE_INPUT_CONCURRENCY, ENABLE_YIELD_CONCURRENCY) plus the same
// ambient DSN/log-level knobs.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the process-wide configuration, loaded once at startup.
type Config struct {
	DatabaseDSN string
	LogLevel    string
	LogFormat   string // "console" or "json"

	MaxConcurrentNodes     int
	EnableInputConcurrency bool
	EnableYieldConcurrency bool
	NodeExecutionTimeout   time.Duration
}

// Load builds a Config from the environment, applying defaults:
// MAX_CONCURRENT_NODES=10, ENABLE_INPUT_CONCURRENCY=true,
// ENABLE_YIELD_CONCURRENCY=false.
func Load() *Config {
	return &Config{
		DatabaseDSN:            getEnv("DATABASE_DSN", ""),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "console"),
		MaxConcurrentNodes:     getEnvInt("MAX_CONCURRENT_NODES", 10),
		EnableInputConcurrency: getEnvBool("ENABLE_INPUT_CONCURRENCY", true),
		EnableYieldConcurrency: getEnvBool("ENABLE_YIELD_CONCURRENCY", false),
		NodeExecutionTimeout:   getEnvDuration("NODE_EXECUTION_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
