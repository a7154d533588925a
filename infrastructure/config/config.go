// Package config loads service configuration from the environment and, for
// layout and autosave tuning, from an optional hot-reloaded YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Upstream collaborators
	DocumentServiceURL  string
	KnowledgeServiceURL string
	ActivityServiceURL  string
	UpstreamTimeout     time.Duration

	// Editing behavior
	AutosaveQuietPeriod time.Duration
	SessionIdleTimeout  time.Duration
	MaxNotifications    int

	// Tuning file watched for hot reload (optional)
	TuningFile string

	// Logging and features
	LogLevel           string
	EnableMetrics      bool
	EnableCORS         bool
	CORSAllowedOrigins []string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		DocumentServiceURL:  getEnv("DOCUMENT_SERVICE_URL", "http://localhost:5000"),
		KnowledgeServiceURL: getEnv("KNOWLEDGE_SERVICE_URL", "http://localhost:5001"),
		ActivityServiceURL:  getEnv("ACTIVITY_SERVICE_URL", ""),
		UpstreamTimeout:     getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),

		AutosaveQuietPeriod: getEnvDuration("AUTOSAVE_QUIET_PERIOD", 2*time.Second),
		SessionIdleTimeout:  getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		MaxNotifications:    getEnvInt("MAX_NOTIFICATIONS", 50),

		TuningFile: getEnv("TUNING_FILE", ""),

		LogLevel:           getEnv("LOG_LEVEL", "info"),
		EnableMetrics:      getEnvBool("ENABLE_METRICS", true),
		EnableCORS:         getEnvBool("ENABLE_CORS", true),
		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.DocumentServiceURL == "" {
		return fmt.Errorf("DOCUMENT_SERVICE_URL is required")
	}
	if c.KnowledgeServiceURL == "" {
		return fmt.Errorf("KNOWLEDGE_SERVICE_URL is required")
	}
	if c.AutosaveQuietPeriod <= 0 {
		return fmt.Errorf("AUTOSAVE_QUIET_PERIOD must be positive")
	}
	if c.Environment == "production" && c.EnableCORS && len(c.CORSAllowedOrigins) == 0 {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production when CORS is enabled")
	}
	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
