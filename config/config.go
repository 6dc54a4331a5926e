package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	// Server
	Port               string // default: 8080
	CORSAllowedOrigins []string

	// Storage
	StoreDriver string // "postgres" or "memory"
	PostgresDSN string

	// Cache and rate limiting; both are disabled when RedisAddr is empty
	RedisAddr             string
	CacheTTL              time.Duration // default: 1h
	ExportRateLimitPerMin int           // default: 30, 0 disables the limit

	// Billing
	MaxLookbackYears int     // default: 5, 0 disables the bound
	UpgradeThreshold float64 // fraction of cap, default: 0.8
	DefaultCapGB     float64 // default: 1000

	// Observability
	OTELExporterType     string  // "stdout", "otlp" or "none"
	OTELExporterEndpoint string  // default: "localhost:4317"
	OTELSampleRatio      float64 // fraction of new traces kept, default: 1
	LogLevel             string  // default: "info"
	LogFormat            string  // "json" or "console"
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		StoreDriver:          getEnv("STORE_DRIVER", StoreDriverPostgres),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "json"),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.CacheTTL, err = time.ParseDuration(getEnv("CACHE_TTL", "1h")); err != nil {
		return nil, fmt.Errorf("invalid CACHE_TTL: %w", err)
	}
	if cfg.ExportRateLimitPerMin, err = strconv.Atoi(getEnv("EXPORT_RATE_LIMIT_PER_MIN", "30")); err != nil {
		return nil, fmt.Errorf("invalid EXPORT_RATE_LIMIT_PER_MIN: %w", err)
	}
	if cfg.MaxLookbackYears, err = strconv.Atoi(getEnv("MAX_LOOKBACK_YEARS", "5")); err != nil {
		return nil, fmt.Errorf("invalid MAX_LOOKBACK_YEARS: %w", err)
	}
	if cfg.UpgradeThreshold, err = strconv.ParseFloat(getEnv("UPGRADE_THRESHOLD", "0.8"), 64); err != nil {
		return nil, fmt.Errorf("invalid UPGRADE_THRESHOLD: %w", err)
	}
	if cfg.DefaultCapGB, err = strconv.ParseFloat(getEnv("DEFAULT_CAP_GB", "1000"), 64); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_CAP_GB: %w", err)
	}
	if cfg.OTELSampleRatio, err = strconv.ParseFloat(getEnv("OTEL_SAMPLE_RATIO", "1"), 64); err != nil {
		return nil, fmt.Errorf("invalid OTEL_SAMPLE_RATIO: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q", c.StoreDriver)
	}
	if c.MaxLookbackYears < 0 {
		return fmt.Errorf("MAX_LOOKBACK_YEARS must not be negative")
	}
	if c.UpgradeThreshold <= 0 {
		return fmt.Errorf("UPGRADE_THRESHOLD must be positive")
	}
	if c.DefaultCapGB <= 0 {
		return fmt.Errorf("DEFAULT_CAP_GB must be positive")
	}
	if c.ExportRateLimitPerMin < 0 {
		return fmt.Errorf("EXPORT_RATE_LIMIT_PER_MIN must not be negative")
	}
	if c.OTELSampleRatio < 0 || c.OTELSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
