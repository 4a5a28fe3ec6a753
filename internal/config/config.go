package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config lifts what used to be hardcoded literals (target address, payload,
// chunk size) into environment-driven settings.
type Config struct {
	// Probe target
	TargetHost string `env:"TARGET_HOST" default:"127.0.0.1"`
	TargetPort int    `env:"TARGET_PORT" default:"32767"`
	PayloadHex string `env:"PAYLOAD_HEX"`

	// Probe behaviour
	ChunkSize   int           `env:"CHUNK_SIZE" default:"1024"`
	DialTimeout time.Duration `env:"DIAL_TIMEOUT" default:"10s"`
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" default:"0"`

	// speedd server
	ListenAddr  string `env:"LISTEN_ADDR" default:"127.0.0.1:32767"`
	ArchiveMode string `env:"ARCHIVE_MODE" default:"none"`
	RedisURL    string `env:"REDIS_URL" default:"redis://localhost:6379"`
	PostgresURL string `env:"POSTGRES_URL"`

	// Development
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Try to load .env file from the working directory
	err := godotenv.Load(".env")
	if err != nil {
		// If .env file doesn't exist, that's OK - we can still use system env vars
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	config := &Config{}

	// Probe target
	if err := loadEnvString(&config.TargetHost, "TARGET_HOST", "127.0.0.1"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TargetPort, "TARGET_PORT", 32767); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.PayloadHex, "PAYLOAD_HEX", ""); err != nil {
		return nil, err
	}

	// Probe behaviour
	if err := loadEnvInt(&config.ChunkSize, "CHUNK_SIZE", 1024); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.DialTimeout, "DIAL_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.IdleTimeout, "IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}

	// speedd server
	if err := loadEnvString(&config.ListenAddr, "LISTEN_ADDR", "127.0.0.1:32767"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.ArchiveMode, "ARCHIVE_MODE", "none"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.RedisURL, "REDIS_URL", "redis://localhost:6379"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.PostgresURL, "POSTGRES_URL", ""); err != nil {
		return nil, err
	}

	// Development
	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "text"); err != nil {
		return nil, err
	}

	return config, nil
}

// TargetAddr returns the probe target as host:port.
func (c *Config) TargetAddr() string {
	return fmt.Sprintf("%s:%d", c.TargetHost, c.TargetPort)
}

// RedisAddr strips the scheme prefix from RedisURL.
func (c *Config) RedisAddr() string {
	addr := strings.TrimPrefix(c.RedisURL, "redis://")
	return strings.TrimPrefix(addr, "rediss://")
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.TargetPort < 1 || c.TargetPort > 65535 {
		errors = append(errors, "TARGET_PORT must be between 1 and 65535")
	}
	if c.ChunkSize < 1 {
		errors = append(errors, "CHUNK_SIZE must be at least 1")
	}
	if c.DialTimeout <= 0 {
		errors = append(errors, "DIAL_TIMEOUT must be positive")
	}

	validArchiveModes := []string{"none", "redis", "postgres", "hybrid"}
	if !contains(validArchiveModes, c.ArchiveMode) {
		errors = append(errors, fmt.Sprintf("ARCHIVE_MODE must be one of: %s", strings.Join(validArchiveModes, ", ")))
	}
	if (c.ArchiveMode == "postgres" || c.ArchiveMode == "hybrid") && c.PostgresURL == "" {
		errors = append(errors, "POSTGRES_URL is required when ARCHIVE_MODE is postgres or hybrid")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
