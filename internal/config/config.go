package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
)

// Config holds settings read from the environment. Empty values mean
// "not set" and leave the local config file in charge.
type Config struct {
	// Server
	Port  int
	Debug bool

	// Remote progress store
	DatabaseURL string

	// RabbitMQ
	RabbitMQURL string

	// Signed-in user for this device
	UserID string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 0),
		Debug:       getEnvBool("DEBUG", false),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RabbitMQURL: getEnv("RABBITMQ_URL", ""),
		UserID:      getEnv("FRACQUEST_USER_ID", ""),
	}

	if cfg.UserID != "" {
		if _, err := uuid.Parse(cfg.UserID); err != nil {
			return nil, fmt.Errorf("FRACQUEST_USER_ID must be a UUID: %w", err)
		}
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
