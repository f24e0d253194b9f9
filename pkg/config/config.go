package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

// Config holds all service configuration.
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Cache         CacheConfig
	Registry      RegistryConfig
	Audit         AuditConfig
	Janitor       JanitorConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration.
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

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds the shared generation-counter backend
// configuration. Leaving URL empty selects process-local counters.
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// CacheConfig bounds the in-process decision cache.
type CacheConfig struct {
	Enabled    bool
	MaxEntries int
	TTL        time.Duration
}

// RegistryConfig locates the versioned role definition file. Empty
// path means built-in roles only.
type RegistryConfig struct {
	Path string
}

// AuditConfig selects audit sinks.
type AuditConfig struct {
	FilePath  string
	ToDB      bool
	Decisions bool
}

// JanitorConfig schedules expired-assignment purging.
type JanitorConfig struct {
	Enabled  bool
	Schedule string
}

// ObservabilityConfig holds logging/metrics/tracing settings.
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	TracingEnabled bool
	OTelEndpoint   string
	ServiceName    string
	ServiceVersion string
	OTelInsecure   bool
}

// Load reads configuration from GAIA_AUTHZ_* environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("GAIA_AUTHZ_HOST", "0.0.0.0"),
			Port:            getEnv("GAIA_AUTHZ_PORT", "8080"),
			ReadTimeout:     getEnvDuration("GAIA_AUTHZ_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("GAIA_AUTHZ_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("GAIA_AUTHZ_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("GAIA_AUTHZ_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("GAIA_AUTHZ_HEALTH_PORT", "9090"),
		},
		Database: DatabaseConfig{
			URL:         getEnv("GAIA_AUTHZ_POSTGRES_URL", ""),
			ReplicaURLs: splitList(getEnv("GAIA_AUTHZ_POSTGRES_REPLICA_URLS", "")),
			MaxConns:    getEnvInt("GAIA_AUTHZ_POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("GAIA_AUTHZ_POSTGRES_MIN_CONNS", 2),
			Timeout:     getEnvDuration("GAIA_AUTHZ_POSTGRES_TIMEOUT", 5*time.Second),
			MaxLifetime: getEnvDuration("GAIA_AUTHZ_POSTGRES_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:        getEnv("GAIA_AUTHZ_REDIS_URL", ""),
			Password:   getEnv("GAIA_AUTHZ_REDIS_PASSWORD", ""),
			DB:         getEnvInt("GAIA_AUTHZ_REDIS_DB", 0),
			MaxRetries: getEnvInt("GAIA_AUTHZ_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("GAIA_AUTHZ_REDIS_POOL_SIZE", 10),
		},
		Cache: CacheConfig{
			Enabled:    getEnvBool("GAIA_AUTHZ_CACHE_ENABLED", true),
			MaxEntries: getEnvInt("GAIA_AUTHZ_CACHE_MAX_ENTRIES", 65536),
			TTL:        getEnvDuration("GAIA_AUTHZ_CACHE_TTL", 10*time.Minute),
		},
		Registry: RegistryConfig{
			Path: getEnv("GAIA_AUTHZ_ROLES_FILE", ""),
		},
		Audit: AuditConfig{
			FilePath:  getEnv("GAIA_AUTHZ_AUDIT_FILE", ""),
			ToDB:      getEnvBool("GAIA_AUTHZ_AUDIT_DB", true),
			Decisions: getEnvBool("GAIA_AUTHZ_AUDIT_DECISIONS", false),
		},
		Janitor: JanitorConfig{
			Enabled:  getEnvBool("GAIA_AUTHZ_JANITOR_ENABLED", true),
			Schedule: getEnv("GAIA_AUTHZ_JANITOR_SCHEDULE", "@hourly"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       observability.ParseLogLevel(getEnv("GAIA_AUTHZ_LOG_LEVEL", "info")),
			MetricsEnabled: getEnvBool("GAIA_AUTHZ_METRICS_ENABLED", true),
			TracingEnabled: getEnvBool("GAIA_AUTHZ_OTEL_ENABLED", false),
			OTelEndpoint:   getEnv("GAIA_AUTHZ_OTEL_ENDPOINT", "localhost:4317"),
			ServiceName:    getEnv("GAIA_AUTHZ_OTEL_SERVICE_NAME", "gaia-authz"),
			ServiceVersion: getEnv("GAIA_AUTHZ_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:   getEnvBool("GAIA_AUTHZ_OTEL_INSECURE", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
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
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max entries must be positive")
	}
	if c.Janitor.Enabled && c.Janitor.Schedule == "" {
		return fmt.Errorf("janitor schedule is required when the janitor is enabled")
	}
	if c.Observability.TracingEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OTel endpoint is required when tracing is enabled")
	}
	return nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
