package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadConfigFromEnv loads database configuration from environment
// variables.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	minConns, _ := strconv.Atoi(getEnvOrDefault("DB_MIN_CONNS", "2"))
	maxConns, _ := strconv.Atoi(getEnvOrDefault("DB_MAX_CONNS", "10"))

	acquireTimeout := 10 * time.Second
	if v := os.Getenv("DB_ACQUIRE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DB_ACQUIRE_TIMEOUT: %w", err)
		}
		acquireTimeout = d
	}

	return Config{
		Host:           getEnvOrDefault("DB_HOST", "localhost"),
		Port:           port,
		User:           getEnvOrDefault("DB_USER", "skyvault"),
		Password:       os.Getenv("DB_PASSWORD"),
		Database:       getEnvOrDefault("DB_NAME", "skyvault"),
		SSLMode:        getEnvOrDefault("DB_SSLMODE", "disable"),
		MinConns:       int32(minConns),
		MaxConns:       int32(maxConns),
		AcquireTimeout: acquireTimeout,
	}, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
