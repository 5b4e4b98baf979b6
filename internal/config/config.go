// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DataDir  string // base directory for all databases, always absolute
	LogLevel string
	Port     int
	DevMode  bool

	// Default lookback for assembling return matrices, in trading days.
	DefaultLookback int

	// Walk-forward degradation thresholds.
	DegradationLow  float64
	DegradationHigh float64

	// Floor applied to reported drawdowns.
	DrawdownFloor float64

	// Cron expression (with seconds) for the nightly revalidation job.
	RevalidateCron string
	// Days of runs and cache entries kept before scheduled cleanup.
	RetentionDays int
}

// Load reads configuration from environment variables. A .env file is
// loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("QUANTFOLIO_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("QUANTFOLIO_PORT", 8001),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DefaultLookback: getEnvAsInt("DEFAULT_LOOKBACK", 504),
		DegradationLow:  getEnvAsFloat("DEGRADATION_LOW", 0.10),
		DegradationHigh: getEnvAsFloat("DEGRADATION_HIGH", 0.30),
		DrawdownFloor:   getEnvAsFloat("DRAWDOWN_FLOOR", -0.999),
		RevalidateCron:  getEnv("REVALIDATE_CRON", "0 0 3 * * *"),
		RetentionDays:   getEnvAsInt("RETENTION_DAYS", 90),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.DefaultLookback < 2 {
		return fmt.Errorf("default lookback must be at least 2, got %d", c.DefaultLookback)
	}
	if c.DegradationLow <= 0 || c.DegradationHigh <= c.DegradationLow {
		return fmt.Errorf("degradation thresholds must satisfy 0 < low < high, got %.2f and %.2f",
			c.DegradationLow, c.DegradationHigh)
	}
	if c.DrawdownFloor >= 0 || c.DrawdownFloor < -1 {
		return fmt.Errorf("drawdown floor must be in [-1, 0), got %.4f", c.DrawdownFloor)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention days must be positive, got %d", c.RetentionDays)
	}
	return nil
}

// DatabasePath returns the path of a named database under the data dir.
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
