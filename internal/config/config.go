// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	AnalyzerAddr    string
	AnalyzerTimeout time.Duration

	MaxMessageLength int
	HistoryLimit     int
	AnalyticsWindow  int
	DefaultRoom      string

	RateLimit RateLimitConfig

	StoreTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// RateLimitConfig controls per-session admission and optional global ceilings.
type RateLimitConfig struct {
	PerWindow int           // accepted sends per rolling window per session
	Window    time.Duration // rolling window length
	PerHour   int           // global ceiling, 0 disables
	PerDay    int           // global ceiling, 0 disables
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/chatsense.db"),

		AnalyzerAddr:    getEnv("ANALYZER_ADDR", ""),
		AnalyzerTimeout: getEnvDuration("ANALYZER_TIMEOUT", 5*time.Second),

		MaxMessageLength: getEnvInt("MAX_MESSAGE_LENGTH", 500),
		HistoryLimit:     getEnvInt("HISTORY_LIMIT", 50),
		AnalyticsWindow:  getEnvInt("ANALYTICS_WINDOW", 100),
		DefaultRoom:      getEnv("DEFAULT_ROOM", "general"),

		RateLimit: RateLimitConfig{
			PerWindow: getEnvInt("RATE_LIMIT_MESSAGES", 10),
			Window:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			PerHour:   getEnvInt("RATE_LIMIT_PER_HOUR", 50),
			PerDay:    getEnvInt("RATE_LIMIT_PER_DAY", 200),
		},

		StoreTimeout:    getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("MAX_MESSAGE_LENGTH must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.AnalyticsWindow <= 0 {
		return fmt.Errorf("ANALYTICS_WINDOW must be > 0")
	}
	if c.DefaultRoom == "" {
		return fmt.Errorf("DEFAULT_ROOM cannot be empty")
	}
	if c.RateLimit.PerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_MESSAGES must be > 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.AnalyzerTimeout <= 0 {
		return fmt.Errorf("ANALYZER_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
