package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"histdata/models"
)

// Config holds all application configuration
type Config struct {
	MT5BridgeURL    string `env:"MT5_BRIDGE_URL" envDefault:"http://127.0.0.1:6542"`
	MT5AuthToken    string `env:"MT5_AUTH_TOKEN" envDefault:"-"`
	RequestTimeout  int    `env:"REQUEST_TIMEOUT" envDefault:"30"` // seconds
	RequestsPerSec  int    `env:"REQUESTS_PER_SEC" envDefault:"5"`
	MaxRetryTimeout int    `env:"MAX_RETRY_TIMEOUT" envDefault:"30"` // seconds

	DBHost     string `env:"DB_HOST" envDefault:""`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:""`
	DBName     string `env:"DB_NAME" envDefault:"histdata"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	CacheDir       string `env:"CACHE_DIR" envDefault:"data/cache"`
	CacheTTL       int    `env:"CACHE_TTL" envDefault:"300"`       // seconds, memory tier
	FileCacheTTL   int    `env:"FILE_CACHE_TTL" envDefault:"3600"` // seconds
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	FillGaps       bool   `env:"FILL_GAPS" envDefault:"false"`
	DefaultDays    int    `env:"DEFAULT_DAYS" envDefault:"30"`
	DefaultTimefrm string `env:"DEFAULT_TIMEFRAME" envDefault:"1h"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.MT5BridgeURL = getEnvWithDefault("MT5_BRIDGE_URL", "http://127.0.0.1:6542")
	cfg.MT5AuthToken = os.Getenv("MT5_AUTH_TOKEN")
	cfg.RequestTimeout = getEnvIntWithDefault("REQUEST_TIMEOUT", 30)
	cfg.RequestsPerSec = getEnvIntWithDefault("REQUESTS_PER_SEC", 5)
	cfg.MaxRetryTimeout = getEnvIntWithDefault("MAX_RETRY_TIMEOUT", 30)

	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = getEnvWithDefault("DB_USER", "postgres")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "histdata")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.CacheDir = getEnvWithDefault("CACHE_DIR", "data/cache")
	cfg.CacheTTL = getEnvIntWithDefault("CACHE_TTL", 300)
	cfg.FileCacheTTL = getEnvIntWithDefault("FILE_CACHE_TTL", 3600)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.FillGaps = getEnvBoolWithDefault("FILL_GAPS", false)
	cfg.DefaultDays = getEnvIntWithDefault("DEFAULT_DAYS", 30)
	cfg.DefaultTimefrm = getEnvWithDefault("DEFAULT_TIMEFRAME", "1h")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DBEnabled reports whether Postgres persistence is configured.
func (c *Config) DBEnabled() bool {
	return c.DBHost != ""
}

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.MT5BridgeURL == "" {
		return errors.New("MT5_BRIDGE_URL is required")
	}
	if c.RequestTimeout < 1 {
		return fmt.Errorf("REQUEST_TIMEOUT must be >= 1, got %d", c.RequestTimeout)
	}
	if c.RequestsPerSec < 1 {
		return fmt.Errorf("REQUESTS_PER_SEC must be >= 1, got %d", c.RequestsPerSec)
	}
	if c.CacheDir == "" {
		return errors.New("CACHE_DIR is required")
	}
	if c.CacheTTL < 1 {
		return fmt.Errorf("CACHE_TTL must be >= 1, got %d", c.CacheTTL)
	}
	if !models.IsValidTimeframe(c.DefaultTimefrm) {
		return fmt.Errorf("DEFAULT_TIMEFRAME %q is not supported", c.DefaultTimefrm)
	}
	if c.DBEnabled() && c.DBName == "" {
		return errors.New("DB_NAME is required when DB_HOST is set")
	}
	return nil
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
