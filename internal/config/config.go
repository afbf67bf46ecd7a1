package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Executor tuning.
	NumWorkers   int
	PollInterval time.Duration
	ClaimBatch   int

	// Send behavior.
	SendRatePerSec  int
	SendSuccessRate float64
	SendMaxAttempts int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     dbURL,
		RedisURL:        redisURL,
		NumWorkers:      getEnvInt("NUM_WORKERS", 4),
		PollInterval:    time.Duration(getEnvInt("POLL_INTERVAL_MS", 250)) * time.Millisecond,
		ClaimBatch:      getEnvInt("CLAIM_BATCH", 50),
		SendRatePerSec:  getEnvInt("SEND_RATE_PER_SEC", 0), // 0 = unlimited
		SendSuccessRate: getEnvFloat("SEND_SUCCESS_RATE", 1.0),
		SendMaxAttempts: getEnvInt("SEND_MAX_ATTEMPTS", 3),
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}
