// Package config loads application configuration from FORMAPI_* environment
// variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Store configuration
	Store StoreConfig

	// Authorization configuration
	Auth AuthConfig

	// Template bootstrap configuration
	Template TemplateConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StoreConfig holds persistence gateway configuration
type StoreConfig struct {
	// Type selects the gateway: memory, sqlite, or postgres
	Type string

	// SQLitePath is the database file for the sqlite gateway
	SQLitePath string

	// PostgresURL is the connection string for the postgres gateway
	PostgresURL string

	// Redis read-through document cache (optional)
	RedisURL      string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// AuthConfig holds authorization engine configuration
type AuthConfig struct {
	// AdminKey short-circuits authorization when presented by a caller
	AdminKey string

	// EveryoneRole overrides the well-known pseudo-role identifier
	EveryoneRole string

	// DecisionCacheSize bounds the in-process authorization decision
	// cache; zero disables it
	DecisionCacheSize int
}

// TemplateConfig holds bootstrap template configuration
type TemplateConfig struct {
	// Path to a template file imported at startup; empty skips bootstrap
	Path string

	// Watch re-imports the template whenever the file changes
	Watch bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel slog.Level

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Auth:          loadAuthConfig(),
		Template:      loadTemplateConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FORMAPI_HOST", "0.0.0.0"),
		Port:            getEnv("FORMAPI_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FORMAPI_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FORMAPI_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FORMAPI_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FORMAPI_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FORMAPI_HEALTH_PORT", "9090"),
	}
}

// loadStoreConfig loads persistence configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:          getEnv("FORMAPI_STORE_TYPE", "memory"),
		SQLitePath:    getEnv("FORMAPI_SQLITE_PATH", "formapi.db"),
		PostgresURL:   getEnv("FORMAPI_POSTGRES_URL", ""),
		RedisURL:      getEnv("FORMAPI_REDIS_URL", ""),
		RedisPassword: getEnv("FORMAPI_REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("FORMAPI_REDIS_DB", 0),
		CacheTTL:      getEnvDuration("FORMAPI_CACHE_TTL", 5*time.Minute),
	}
}

// loadAuthConfig loads authorization configuration from environment
func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AdminKey:          getEnv("FORMAPI_ADMIN_KEY", ""),
		EveryoneRole:      getEnv("FORMAPI_EVERYONE_ROLE", ""),
		DecisionCacheSize: getEnvInt("FORMAPI_AUTH_CACHE_SIZE", 1024),
	}
}

// loadTemplateConfig loads bootstrap template configuration from environment
func loadTemplateConfig() TemplateConfig {
	return TemplateConfig{
		Path:  getEnv("FORMAPI_TEMPLATE_PATH", ""),
		Watch: getEnvBool("FORMAPI_TEMPLATE_WATCH", false),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("FORMAPI_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("FORMAPI_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("FORMAPI_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("FORMAPI_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("FORMAPI_OTEL_SERVICE_NAME", "formapi"),
		OTelServiceVersion: getEnv("FORMAPI_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("FORMAPI_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate store config based on type
	switch c.Store.Type {
	case "memory":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite store")
		}
	case "postgres":
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres store")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, sqlite, or postgres)", c.Store.Type)
	}

	if c.Template.Watch && c.Template.Path == "" {
		return fmt.Errorf("template path is required when template watch is enabled")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
