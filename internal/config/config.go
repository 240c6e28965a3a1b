package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Database    DatabaseConfig
	Scraper     ScraperConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
	Environment string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdle        int
}

type ScraperConfig struct {
	// SitesDir holds the per-site selector YAML files.
	SitesDir  string
	UserAgent string
	// Delay is the courtesy pause between requests to one site.
	Delay      time.Duration
	Timeout    time.Duration
	Workers    int
	MaxRetries int
}

type MetricsConfig struct {
	Addr string // empty disables the /metrics listener
}

type LoggingConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load builds the configuration from environment variables. On validation
// failure the populated config is returned alongside the error, so commands
// that can run without a database (dry runs, site listing) still see the
// scraper settings.
func Load() (Config, error) {
	cfg := Config{
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
			MaxIdle:        getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
		},
		Scraper: ScraperConfig{
			SitesDir:   getEnv("SITES_DIR", "configs/sites"),
			UserAgent:  getEnv("SCRAPER_USER_AGENT", ""),
			Delay:      time.Duration(getEnvInt("SCRAPER_DELAY_MS", 1000)) * time.Millisecond,
			Timeout:    time.Duration(getEnvInt("SCRAPER_TIMEOUT_SECONDS", 30)) * time.Second,
			Workers:    getEnvInt("SCRAPER_WORKERS", 4),
			MaxRetries: getEnvInt("SCRAPER_MAX_RETRIES", 2),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("METRICS_ADDR", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Scraper.Workers < 1 {
		return cfg, fmt.Errorf("SCRAPER_WORKERS must be >= 1")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
