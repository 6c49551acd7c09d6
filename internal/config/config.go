// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir       string // Base directory for the ledger database (always absolute)
	Port          int
	LogLevel      string
	DevMode       bool
	BrokerBaseURL string
	BrokerAPIKey  string

	// Risk limits
	MaxNotional float64 // Hard cap on single-order notional value
	MaxPosition float64 // Absolute per-symbol position cap, in shares

	// Orchestrator thresholds
	DustThreshold float64 // |diff| / portfolio_value below which no trade is made
	MinPrice      float64 // Latest-price floor (penny-stock / bad-tick protection)

	// Concurrency and recovery
	RateGateSize    int           // Max simultaneous broker calls
	BreakerCooldown time.Duration // Circuit breaker lockout duration

	// Scheduler
	RebalanceCron string // Cron expression; empty disables the scheduler
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BALLAST_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("BALLAST_PORT", 8002),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		BrokerBaseURL:   getEnv("BROKER_BASE_URL", "http://localhost:7100"),
		BrokerAPIKey:    getEnv("BROKER_API_KEY", ""),
		MaxNotional:     getEnvAsFloat("MAX_ORDER_NOTIONAL", 25000),
		MaxPosition:     getEnvAsFloat("MAX_POSITION_SHARES", 1000),
		DustThreshold:   getEnvAsFloat("DUST_THRESHOLD", 0.0003),
		MinPrice:        getEnvAsFloat("MIN_PRICE", 0.50),
		RateGateSize:    getEnvAsInt("BROKER_MAX_INFLIGHT", 5),
		BreakerCooldown: time.Duration(getEnvAsInt("BREAKER_COOLDOWN_MINUTES", 30)) * time.Minute,
		RebalanceCron:   getEnv("REBALANCE_CRON", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configured limits are coherent
func (c *Config) Validate() error {
	if c.MaxNotional <= 0 {
		return fmt.Errorf("MAX_ORDER_NOTIONAL must be positive, got %.2f", c.MaxNotional)
	}
	if c.MaxPosition <= 0 {
		return fmt.Errorf("MAX_POSITION_SHARES must be positive, got %.2f", c.MaxPosition)
	}
	if c.RateGateSize <= 0 {
		return fmt.Errorf("BROKER_MAX_INFLIGHT must be positive, got %d", c.RateGateSize)
	}
	if c.DustThreshold < 0 || c.DustThreshold >= 1 {
		return fmt.Errorf("DUST_THRESHOLD must be in [0, 1), got %.6f", c.DustThreshold)
	}
	return nil
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
