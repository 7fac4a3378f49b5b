// Package config loads process configuration for the server commands from
// environment variables. The CLI takes everything as flags and does not
// read it.
package config

import (
	"os"
	"strconv"
	"time"

	"edgestat/internal/errors"
)

// Config represents the complete application configuration.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Engine   EngineConfig
}

// DatabaseConfig holds run store connection settings.
type DatabaseConfig struct {
	URL string
}

// ServerConfig holds results API settings.
type ServerConfig struct {
	Port          string
	TopEdges      int
	ShutdownGrace time.Duration
}

// EngineConfig holds permutation engine settings. Workers 0 means one per
// available CPU.
type EngineConfig struct {
	Workers int
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	config := &Config{}

	dbConfig, err := loadDatabaseConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load database configuration")
	}
	config.Database = *dbConfig
	config.Server = *loadServerConfig()
	config.Engine = *loadEngineConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadDatabaseConfig() (*DatabaseConfig, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	return &DatabaseConfig{URL: url}, nil
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:          getEnvOrDefault("PORT", "8080"),
		TopEdges:      getEnvIntOrDefault("REPORT_TOP_EDGES", 10),
		ShutdownGrace: getEnvDurationOrDefault("SHUTDOWN_GRACE", 10*time.Second),
	}
}

func loadEngineConfig() *EngineConfig {
	return &EngineConfig{
		Workers: getEnvIntOrDefault("WORKERS", 0),
	}
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return errors.ConfigInvalid("database URL is required")
	}
	if config.Server.Port == "" {
		return errors.ConfigInvalid("server port is required")
	}
	if config.Server.TopEdges < 1 {
		return errors.ConfigInvalid("report edge count must be positive")
	}
	if config.Server.ShutdownGrace <= 0 {
		return errors.ConfigInvalid("shutdown grace must be positive")
	}
	if config.Engine.Workers < 0 {
		return errors.ConfigInvalid("worker count cannot be negative")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
