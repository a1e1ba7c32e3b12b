package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	LogLevel string

	// Conversion configuration
	Strict bool   // reject malformed records instead of degrading them
	Query  string // jq expression selecting the transaction array

	// MetricsFile is where the Prometheus textfile is written; empty disables it.
	MetricsFile string

	// Timezone drives the day boundaries used for date sections.
	Timezone string
	Location *time.Location
}

// Load reads configuration from environment variables and validates all fields.
// Returns an error if any configuration is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	strict, err := parseBool("TXLIST_STRICT", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.Strict = strict
	}

	cfg.Query = os.Getenv("TXLIST_QUERY")
	cfg.MetricsFile = os.Getenv("TXLIST_METRICS_FILE")
	cfg.Timezone = getEnvOrDefault("TXLIST_TIMEZONE", "Local")

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks the configuration and resolves Location from Timezone.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error (got %q)", c.LogLevel))
	}

	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		errs = append(errs, fmt.Errorf("Timezone %q: %w", c.Timezone, err))
	} else {
		c.Location = loc
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
