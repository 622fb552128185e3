// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Admin API
	AdminSecret     string // shared secret for admin endpoints
	AdminRateLimit  int    // mutating admin calls allowed per window
	AdminRateWindow time.Duration

	// Risk engine
	ListMinScore int // default threshold for the admin high-risk listing

	// External threat-intel feed (stubbed until a provider is wired in)
	ExternalFeedURL     string
	ExternalFeedTimeout time.Duration

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; empty disables tracing
}

// Defaults.
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultAdminRateLimit  = 10
	DefaultAdminRateWindow = 60 * time.Second
	DefaultListMinScore    = 60
	DefaultFeedTimeout     = 2 * time.Second
)

// Load reads configuration from environment variables. A .env file is
// loaded first if present (local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		AdminSecret:         os.Getenv("ADMIN_SECRET"),
		AdminRateLimit:      int(getEnvInt64("ADMIN_RATE_LIMIT", DefaultAdminRateLimit)),
		AdminRateWindow:     getEnvDuration("ADMIN_RATE_WINDOW", DefaultAdminRateWindow),
		ListMinScore:        int(getEnvInt64("RISK_LIST_MIN_SCORE", DefaultListMinScore)),
		ExternalFeedURL:     os.Getenv("EXTERNAL_FEED_URL"),
		ExternalFeedTimeout: getEnvDuration("EXTERNAL_FEED_TIMEOUT", DefaultFeedTimeout),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is coherent.
func (c *Config) Validate() error {
	if c.AdminRateLimit < 1 {
		return fmt.Errorf("ADMIN_RATE_LIMIT must be at least 1")
	}
	if c.AdminRateWindow < time.Second {
		return fmt.Errorf("ADMIN_RATE_WINDOW must be at least 1s")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
