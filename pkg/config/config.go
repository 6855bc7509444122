package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/formloft/formloft/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Auth configuration
	Auth AuthConfig

	// Cache configuration
	Cache CacheConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

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

// AuthConfig holds authentication configuration
type AuthConfig struct {
	// ProvidersFile is the YAML file describing the provider set and
	// role mappings. Watched for changes at runtime.
	ProvidersFile string

	// InternalIssuer is the issuer of first-party tokens.
	InternalIssuer string

	// InternalHMACSecret signs first-party tokens.
	InternalHMACSecret string

	// InternalAudience, when set, is enforced on first-party tokens.
	InternalAudience string
}

// CacheConfig holds cache tuning
type CacheConfig struct {
	// SafetyBuffer keeps cached authorization from outliving its token.
	SafetyBuffer time.Duration

	// FallbackTTL caps entries with no usable token expiry.
	FallbackTTL time.Duration

	// Ownership cache bounds.
	OwnershipTTL  time.Duration
	OwnershipSize int
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		Cache:         loadCacheConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FORMLOFT_HOST", "0.0.0.0"),
		Port:            getEnv("FORMLOFT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FORMLOFT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FORMLOFT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FORMLOFT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FORMLOFT_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FORMLOFT_HEALTH_PORT", "9090"),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		ProvidersFile:      getEnv("FORMLOFT_AUTH_PROVIDERS_FILE", "providers.yaml"),
		InternalIssuer:     getEnv("FORMLOFT_AUTH_INTERNAL_ISSUER", "https://auth.formloft.io"),
		InternalHMACSecret: getEnv("FORMLOFT_AUTH_INTERNAL_HMAC_SECRET", ""),
		InternalAudience:   getEnv("FORMLOFT_AUTH_INTERNAL_AUDIENCE", ""),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		SafetyBuffer:  getEnvDuration("FORMLOFT_CACHE_SAFETY_BUFFER", 10*time.Second),
		FallbackTTL:   getEnvDuration("FORMLOFT_CACHE_FALLBACK_TTL", 15*time.Minute),
		OwnershipTTL:  getEnvDuration("FORMLOFT_OWNERSHIP_CACHE_TTL", 5*time.Minute),
		OwnershipSize: getEnvInt("FORMLOFT_OWNERSHIP_CACHE_SIZE", 4096),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:          getEnv("FORMLOFT_POSTGRES_URL", ""),
		MaxOpenConns: getEnvInt("FORMLOFT_POSTGRES_MAX_CONNS", 25),
		MaxIdleConns: getEnvInt("FORMLOFT_POSTGRES_IDLE_CONNS", 5),
		ConnLifetime: getEnvDuration("FORMLOFT_POSTGRES_CONN_LIFETIME", 5*time.Minute),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:       getEnv("FORMLOFT_REDIS_ADDR", "localhost:6379"),
		Password:   getEnv("FORMLOFT_REDIS_PASSWORD", ""),
		DB:         getEnvInt("FORMLOFT_REDIS_DB", 0),
		MaxRetries: getEnvInt("FORMLOFT_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("FORMLOFT_REDIS_POOL_SIZE", 10),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       parseLogLevel(getEnv("FORMLOFT_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FORMLOFT_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Auth.ProvidersFile == "" {
		return fmt.Errorf("auth providers file is required")
	}
	if c.Auth.InternalIssuer == "" {
		return fmt.Errorf("internal token issuer is required")
	}
	if c.Auth.InternalHMACSecret == "" {
		return fmt.Errorf("internal HMAC secret is required")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Cache.SafetyBuffer <= 0 {
		return fmt.Errorf("cache safety buffer must be positive")
	}
	if c.Cache.FallbackTTL <= c.Cache.SafetyBuffer {
		return fmt.Errorf("cache fallback TTL must exceed the safety buffer")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
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
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
