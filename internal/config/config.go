// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend selects the RemoteGateway implementation.
const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

// Config holds all drivectl configuration.
type Config struct {
	// Gateway
	Backend     string // "http" or "postgres"
	ServerURL   string
	AuthToken   string
	DatabaseURL string

	// Caller identity for favorites
	UserID string

	// Logging
	LogLevel  string
	LogFormat string

	// Metrics (empty disables the endpoint)
	MetricsAddr string

	// API server listen address (serve command)
	ListenAddr string

	// View defaults
	PageSize int

	// Remote call bound
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Backend:        envOr("DRIVE_BACKEND", BackendHTTP),
		ServerURL:      envOr("DRIVE_SERVER_URL", ""),
		AuthToken:      envOr("DRIVE_AUTH_TOKEN", ""),
		DatabaseURL:    envOr("DATABASE_URL", ""),
		UserID:         envOr("DRIVE_USER_ID", "default"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		LogFormat:      envOr("LOG_FORMAT", "console"),
		MetricsAddr:    envOr("METRICS_ADDR", ""),
		ListenAddr:     envOr("DRIVE_LISTEN_ADDR", ":8080"),
		PageSize:       envInt("DRIVE_PAGE_SIZE", 50),
		RequestTimeout: envDuration("DRIVE_REQUEST_TIMEOUT", 30*time.Second),
	}

	switch cfg.Backend {
	case BackendHTTP:
		if cfg.ServerURL == "" {
			return nil, fmt.Errorf("DRIVE_SERVER_URL is required for the http backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown DRIVE_BACKEND %q", cfg.Backend)
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("DRIVE_PAGE_SIZE must be positive")
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
