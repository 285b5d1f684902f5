package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment   string
	LogLevel      string
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Workflow      WorkflowConfig
	Observability ObservabilityConfig
	Worker        WorkerConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
	// TenantHeader carries the tenant subdomain when the token has no tenant.
	TenantHeader string
}

type DatabaseConfig struct {
	URL     string
	TestURL string
}

type RedisConfig struct {
	// URL is a redis:// URL or "memory" for the in-process queue.
	URL string
}

const (
	AuthProviderJWT      = "jwt"
	AuthProviderSupabase = "supabase"
)

type AuthConfig struct {
	Provider         string
	JWTSecret        string
	JWTIssuer        string
	SupabaseURL      string
	SupabaseAPIKey   string
	DevTokenLifetime time.Duration
}

type WorkflowConfig struct {
	CASMaxAttempts            int
	CASInitialBackoff         time.Duration
	CASMaxBackoff             time.Duration
	DefaultVotingDeadlineDays int
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	OTLPEndpoint   string
	ServiceName    string
}

type WorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// Load configuration from environment variables
func Load() (*Config, error) {
	// Load .env file in non-production environments
	env := os.Getenv("ENVIRONMENT")
	if env != "production" {
		// .env file is optional
		_ = godotenv.Load()
	}

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Host:           getEnv("HOST", "localhost"),
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ","),
			TenantHeader:   getEnv("TENANT_HEADER", "X-Tenant-Subdomain"),
		},
		Database: DatabaseConfig{
			URL:     getEnv("DATABASE_URL", ""),
			TestURL: getEnv("DATABASE_URL_TEST", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Auth: AuthConfig{
			Provider:         strings.ToLower(getEnv("AUTH_PROVIDER", AuthProviderJWT)),
			JWTSecret:        getEnv("JWT_SECRET", ""),
			JWTIssuer:        getEnv("JWT_ISSUER", "docflow"),
			SupabaseURL:      getEnv("SUPABASE_URL", ""),
			SupabaseAPIKey:   getEnv("SUPABASE_API_KEY", ""),
			DevTokenLifetime: parseDuration(getEnv("DEV_TOKEN_LIFETIME", "24h")),
		},
		Workflow: WorkflowConfig{
			CASMaxAttempts:            parseInt(getEnv("CAS_MAX_ATTEMPTS", "5")),
			CASInitialBackoff:         parseDuration(getEnv("CAS_INITIAL_BACKOFF", "5ms")),
			CASMaxBackoff:             parseDuration(getEnv("CAS_MAX_BACKOFF", "200ms")),
			DefaultVotingDeadlineDays: parseInt(getEnv("DEFAULT_VOTING_DEADLINE_DAYS", "7")),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: parseBool(getEnv("METRICS_ENABLED", "true")),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "docflow"),
		},
		Worker: WorkerConfig{
			PollInterval: parseDuration(getEnv("WORKER_POLL_INTERVAL", "2s")),
			BatchSize:    parseInt(getEnv("WORKER_BATCH_SIZE", "100")),
		},
	}

	// Validate required configuration
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// GetDatabaseURL returns the appropriate database URL based on environment
func (c *Config) GetDatabaseURL() string {
	if c.Environment == "test" && c.Database.TestURL != "" {
		return c.Database.TestURL
	}
	return c.Database.URL
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsTest returns true if running in test environment
func (c *Config) IsTest() bool {
	return c.Environment == "test"
}

func validate(config *Config) error {
	if config.GetDatabaseURL() == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch config.Auth.Provider {
	case AuthProviderJWT:
		if config.Auth.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when AUTH_PROVIDER=jwt")
		}
	case AuthProviderSupabase:
		if config.Auth.SupabaseURL == "" || config.Auth.SupabaseAPIKey == "" {
			return fmt.Errorf("SUPABASE_URL and SUPABASE_API_KEY are required when AUTH_PROVIDER=supabase")
		}
	default:
		return fmt.Errorf("unknown AUTH_PROVIDER %q", config.Auth.Provider)
	}
	if config.Workflow.CASMaxAttempts < 1 {
		return fmt.Errorf("CAS_MAX_ATTEMPTS must be at least 1")
	}
	if config.Workflow.DefaultVotingDeadlineDays < 1 {
		return fmt.Errorf("DEFAULT_VOTING_DEADLINE_DAYS must be at least 1")
	}
	if config.Worker.PollInterval <= 0 || config.Worker.BatchSize < 1 {
		return fmt.Errorf("WORKER_POLL_INTERVAL and WORKER_BATCH_SIZE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(value string) int {
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	return 0
}

func parseBool(value string) bool {
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return false
}

func parseDuration(value string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return 0
}
