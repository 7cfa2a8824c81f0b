package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "memory", cfg.Bus.Transport)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Auth.Scopes)
	assert.Equal(t, "/auth/sign-in", cfg.Auth.SignInPath)
	assert.Equal(t, logrus.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Fragments.WatchCatalog)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("MOSAIC_PORT", "3000")
	t.Setenv("MOSAIC_BUS_TRANSPORT", "redis")
	t.Setenv("MOSAIC_REDIS_URL", "redis.internal:6379")
	t.Setenv("MOSAIC_SESSION_STORE", "sqlite")
	t.Setenv("MOSAIC_SESSION_SQLITE_PATH", "/var/lib/mosaic/session.db")
	t.Setenv("MOSAIC_OIDC_SCOPES", "openid, api://billing/.default")
	t.Setenv("MOSAIC_LOG_LEVEL", "debug")
	t.Setenv("MOSAIC_READ_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Bus.Transport)
	assert.Equal(t, "redis.internal:6379", cfg.Bus.RedisURL)
	assert.Equal(t, "sqlite", cfg.Session.Store)
	assert.Equal(t, []string{"openid", "api://billing/.default"}, cfg.Auth.Scopes)
	assert.Equal(t, logrus.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
}

func TestValidateRejectsInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			"same ports",
			func(c *Config) { c.Server.HealthPort = c.Server.Port },
			"must be different",
		},
		{
			"unknown bus transport",
			func(c *Config) { c.Bus.Transport = "nats" },
			"invalid bus transport",
		},
		{
			"redis without URL",
			func(c *Config) { c.Bus.Transport = "redis"; c.Bus.RedisURL = "" },
			"redis URL is required",
		},
		{
			"unknown session store",
			func(c *Config) { c.Session.Store = "postgres" },
			"invalid session store",
		},
		{
			"issuer without client ID",
			func(c *Config) { c.Auth.Issuer = "https://login.example.com" },
			"client ID is required",
		},
		{
			"otel without endpoint",
			func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" },
			"endpoint is required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLogLevelFallsBackToInfo(t *testing.T) {
	t.Setenv("MOSAIC_LOG_LEVEL", "verbose")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, cfg.Observability.LogLevel)
}
