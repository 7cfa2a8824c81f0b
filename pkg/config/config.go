package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds all portal configuration.
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Bus           BusConfig
	Session       SessionConfig
	Fragments     FragmentsConfig
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

	// HealthPort serves health and metrics on a separate port for
	// probes and scrapes.
	HealthPort string
}

// AuthConfig holds identity-provider configuration.
type AuthConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// SignInPath is the host's interactive sign-in route, the redirect
	// target for unauthenticated protected navigations.
	SignInPath string

	// RefreshSchedule is the cron spec for scheduled silent token
	// refresh. Empty disables the refresher.
	RefreshSchedule string
}

// BusConfig holds auth-event transport configuration.
type BusConfig struct {
	// Transport selects the bus: "memory" for single-process runs,
	// "redis" for cross-process sync.
	Transport string

	RedisURL      string
	RedisPassword string
	RedisDB       int
	Channel       string
}

// SessionConfig holds durable session storage configuration.
type SessionConfig struct {
	// Store selects the backend: "memory" or "sqlite".
	Store string

	SQLitePath string
}

// FragmentsConfig holds fragment catalog and fetch configuration.
type FragmentsConfig struct {
	CatalogPath string

	// WatchCatalog hot-reloads the catalog on change.
	WatchCatalog bool

	// S3 settings for s3:// entry URLs.
	S3Region       string
	S3Endpoint     string
	S3UsePathStyle bool
}

// ObservabilityConfig holds logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel logrus.Level

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("MOSAIC_HOST", "0.0.0.0"),
			Port:            getEnv("MOSAIC_PORT", "8080"),
			ReadTimeout:     getEnvDuration("MOSAIC_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("MOSAIC_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("MOSAIC_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("MOSAIC_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("MOSAIC_HEALTH_PORT", "9090"),
		},
		Auth: AuthConfig{
			Issuer:          getEnv("MOSAIC_OIDC_ISSUER", ""),
			ClientID:        getEnv("MOSAIC_OIDC_CLIENT_ID", ""),
			ClientSecret:    getEnv("MOSAIC_OIDC_CLIENT_SECRET", ""),
			RedirectURL:     getEnv("MOSAIC_OIDC_REDIRECT_URL", ""),
			Scopes:          getEnvList("MOSAIC_OIDC_SCOPES", []string{"openid", "profile", "email"}),
			SignInPath:      getEnv("MOSAIC_SIGN_IN_PATH", "/auth/sign-in"),
			RefreshSchedule: getEnv("MOSAIC_TOKEN_REFRESH_SCHEDULE", "@every 5m"),
		},
		Bus: BusConfig{
			Transport:     getEnv("MOSAIC_BUS_TRANSPORT", "memory"),
			RedisURL:      getEnv("MOSAIC_REDIS_URL", "localhost:6379"),
			RedisPassword: getEnv("MOSAIC_REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("MOSAIC_REDIS_DB", 0),
			Channel:       getEnv("MOSAIC_BUS_CHANNEL", "mosaic:authbus"),
		},
		Session: SessionConfig{
			Store:      getEnv("MOSAIC_SESSION_STORE", "memory"),
			SQLitePath: getEnv("MOSAIC_SESSION_SQLITE_PATH", "mosaic-session.db"),
		},
		Fragments: FragmentsConfig{
			CatalogPath:    getEnv("MOSAIC_CATALOG_PATH", "catalog.json"),
			WatchCatalog:   getEnvBool("MOSAIC_CATALOG_WATCH", true),
			S3Region:       getEnv("MOSAIC_S3_REGION", "us-east-1"),
			S3Endpoint:     getEnv("MOSAIC_S3_ENDPOINT", ""),
			S3UsePathStyle: getEnvBool("MOSAIC_S3_USE_PATH_STYLE", false),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("MOSAIC_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("MOSAIC_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("MOSAIC_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("MOSAIC_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("MOSAIC_OTEL_SERVICE_NAME", "mosaic-host"),
			OTelServiceVersion: getEnv("MOSAIC_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("MOSAIC_OTEL_INSECURE", true),
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

	switch c.Bus.Transport {
	case "memory":
	case "redis":
		if c.Bus.RedisURL == "" {
			return fmt.Errorf("redis URL is required for the redis bus transport")
		}
		if c.Bus.Channel == "" {
			return fmt.Errorf("bus channel is required for the redis bus transport")
		}
	default:
		return fmt.Errorf("invalid bus transport: %s (must be memory or redis)", c.Bus.Transport)
	}

	switch c.Session.Store {
	case "memory":
	case "sqlite":
		if c.Session.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for the sqlite session store")
		}
	default:
		return fmt.Errorf("invalid session store: %s (must be memory or sqlite)", c.Session.Store)
	}

	if c.Auth.Issuer != "" {
		if c.Auth.ClientID == "" {
			return fmt.Errorf("OIDC client ID is required when an issuer is set")
		}
		if c.Auth.RedirectURL == "" {
			return fmt.Errorf("OIDC redirect URL is required when an issuer is set")
		}
	}

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

func parseLogLevel(level string) logrus.Level {
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return parsed
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

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
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
