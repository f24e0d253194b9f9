package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aeonia-ai/gaia-sub005/pkg/observability"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GAIA_AUTHZ_POSTGRES_URL", "postgres://localhost/authz")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Empty(t, cfg.Database.ReplicaURLs)
	assert.Empty(t, cfg.Redis.URL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 65536, cfg.Cache.MaxEntries)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.True(t, cfg.Janitor.Enabled)
	assert.Equal(t, "@hourly", cfg.Janitor.Schedule)
	assert.True(t, cfg.Audit.ToDB)
	assert.False(t, cfg.Audit.Decisions)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.False(t, cfg.Observability.TracingEnabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("GAIA_AUTHZ_POSTGRES_URL", "postgres://primary/authz")
	t.Setenv("GAIA_AUTHZ_POSTGRES_REPLICA_URLS", "postgres://r1/authz, postgres://r2/authz,")
	t.Setenv("GAIA_AUTHZ_PORT", "9000")
	t.Setenv("GAIA_AUTHZ_CACHE_TTL", "30s")
	t.Setenv("GAIA_AUTHZ_CACHE_MAX_ENTRIES", "1024")
	t.Setenv("GAIA_AUTHZ_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("GAIA_AUTHZ_AUDIT_DECISIONS", "true")
	t.Setenv("GAIA_AUTHZ_JANITOR_ENABLED", "false")
	t.Setenv("GAIA_AUTHZ_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, []string{"postgres://r1/authz", "postgres://r2/authz"}, cfg.Database.ReplicaURLs)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, 1024, cfg.Cache.MaxEntries)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.True(t, cfg.Audit.Decisions)
	assert.False(t, cfg.Janitor.Enabled)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("GAIA_AUTHZ_POSTGRES_URL", "postgres://localhost/authz")
	t.Setenv("GAIA_AUTHZ_POSTGRES_MAX_CONNS", "not-a-number")
	t.Setenv("GAIA_AUTHZ_READ_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Database: DatabaseConfig{URL: "postgres://localhost/authz"},
			Cache:    CacheConfig{Enabled: true, MaxEntries: 100},
			Janitor:  JanitorConfig{Enabled: true, Schedule: "@hourly"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing postgres URL", func(c *Config) { c.Database.URL = "" }, "postgres URL is required"},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"port collision", func(c *Config) { c.Server.HealthPort = "8080" }, "must be different"},
		{"bad cache size", func(c *Config) { c.Cache.MaxEntries = 0 }, "cache max entries"},
		{"janitor without schedule", func(c *Config) { c.Janitor.Schedule = "" }, "janitor schedule"},
		{
			"tracing without endpoint",
			func(c *Config) { c.Observability.TracingEnabled = true },
			"OTel endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
