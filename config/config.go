// Package config reads the engine's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	ServerPort         int
	AutomationInterval time.Duration

	// Cloudflare R2 credentials for tournament archives. All empty
	// means archiving is disabled.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// ArchivingEnabled reports whether every required R2 credential is set.
func (c *Config) ArchivingEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != ""
}

// Load reads configuration from environment variables. A missing .env
// file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	portStr := os.Getenv("SERVER_PORT")
	if portStr == "" {
		portStr = "8080"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	interval := 30 * time.Second
	if v := os.Getenv("AUTOMATION_INTERVAL"); v != "" {
		interval, err = time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTOMATION_INTERVAL environment variable: %w", err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("AUTOMATION_INTERVAL must be positive, got %v", interval)
		}
	}

	return &Config{
		DatabaseURL:        dbURL,
		ServerPort:         port,
		AutomationInterval: interval,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}, nil
}
