package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/eams/pkg/identity"
	"github.com/platinummonkey/eams/pkg/observability"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageDynamoDB = "dynamodb"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Auth          AuthConfig
	Jobs          JobsConfig
	Webhooks      WebhookConfig
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
	MaxBodyBytes    int64
	CORSOrigins     []string

	// Requests per minute; zero disables rate limiting
	UserRateLimit      int
	AnonymousRateLimit int

	// Health/metrics server (separate port for k8s health checks)
	HealthPort string
}

// StorageConfig selects the user and directory store and sizes its caches
type StorageConfig struct {
	Type string

	PostgresURL         string
	PostgresReplicaURLs string
	PostgresMaxConns    int
	PostgresMinConns    int
	PostgresTimeout     time.Duration
	AutoMigrate         bool

	// Single-table DynamoDB layout; empty endpoint uses the AWS default
	DynamoDBTable     string
	DynamoDBRegion    string
	DynamoDBEndpoint  string
	DynamoDBAccessKey string
	DynamoDBSecretKey string

	// Shared user cache; empty URL disables it
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	UserCacheSize  int
	UserCacheTTL   time.Duration
	SharedCacheTTL time.Duration
}

// AuthConfig configures token verification, the login flow and the role catalog
type AuthConfig struct {
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
	OIDCScopes       []string

	// RoleCatalogPath overrides the built-in role catalog when set
	RoleCatalogPath string
}

// JobsConfig holds background job settings
type JobsConfig struct {
	GrantAuditSchedule string
}

// WebhookConfig configures access change notifications; no URLs disables them
type WebhookConfig struct {
	URLs []string
	// Secret signs every delivery when set
	Secret string
	// Events overrides the default grant, revoke and role change events
	Events        []string
	RetrySchedule string
	MaxAttempts   int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Auth:          loadAuthConfig(),
		Jobs:          loadJobsConfig(),
		Webhooks:      loadWebhookConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:               getEnv("EAMS_HOST", "0.0.0.0"),
		Port:               getEnv("EAMS_PORT", "8080"),
		ReadTimeout:        getEnvDuration("EAMS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:       getEnvDuration("EAMS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:        getEnvDuration("EAMS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:    getEnvDuration("EAMS_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:       getEnvInt64("EAMS_MAX_BODY_BYTES", 1<<20),
		CORSOrigins:        getEnvList("EAMS_CORS_ORIGINS"),
		UserRateLimit:      getEnvInt("EAMS_RATE_LIMIT_PER_MINUTE", 1000),
		AnonymousRateLimit: getEnvInt("EAMS_ANON_RATE_LIMIT_PER_MINUTE", 100),
		HealthPort:         getEnv("EAMS_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:                strings.ToLower(getEnv("EAMS_STORAGE_TYPE", StoragePostgres)),
		PostgresURL:         getEnv("EAMS_POSTGRES_URL", ""),
		PostgresReplicaURLs: getEnv("EAMS_POSTGRES_REPLICA_URLS", ""),
		PostgresMaxConns:    getEnvInt("EAMS_POSTGRES_MAX_CONNS", 20),
		PostgresMinConns:    getEnvInt("EAMS_POSTGRES_MIN_CONNS", 2),
		PostgresTimeout:     getEnvDuration("EAMS_POSTGRES_TIMEOUT", 5*time.Second),
		AutoMigrate:         getEnvBool("EAMS_AUTO_MIGRATE", true),
		DynamoDBTable:       getEnv("EAMS_DYNAMODB_TABLE", "eams"),
		DynamoDBRegion:      getEnv("EAMS_DYNAMODB_REGION", "us-east-1"),
		DynamoDBEndpoint:    getEnv("EAMS_DYNAMODB_ENDPOINT", ""),
		DynamoDBAccessKey:   getEnv("EAMS_DYNAMODB_ACCESS_KEY", ""),
		DynamoDBSecretKey:   getEnv("EAMS_DYNAMODB_SECRET_KEY", ""),
		RedisURL:            getEnv("EAMS_REDIS_URL", ""),
		RedisPassword:       getEnv("EAMS_REDIS_PASSWORD", ""),
		RedisDB:             getEnvInt("EAMS_REDIS_DB", 0),
		RedisPoolSize:       getEnvInt("EAMS_REDIS_POOL_SIZE", 0),
		UserCacheSize:       getEnvInt("EAMS_USER_CACHE_SIZE", 1024),
		UserCacheTTL:        getEnvDuration("EAMS_USER_CACHE_TTL", time.Minute),
		SharedCacheTTL:      getEnvDuration("EAMS_SHARED_CACHE_TTL", 5*time.Minute),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		OIDCIssuerURL:    getEnv("EAMS_OIDC_ISSUER_URL", ""),
		OIDCClientID:     getEnv("EAMS_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("EAMS_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("EAMS_OIDC_REDIRECT_URL", ""),
		OIDCScopes:       getEnvList("EAMS_OIDC_SCOPES"),
		RoleCatalogPath:  getEnv("EAMS_ROLE_CATALOG", ""),
	}
}

func loadJobsConfig() JobsConfig {
	return JobsConfig{
		GrantAuditSchedule: getEnv("EAMS_GRANT_AUDIT_SCHEDULE", "@every 1h"),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		URLs:          getEnvList("EAMS_WEBHOOK_URLS"),
		Secret:        getEnv("EAMS_WEBHOOK_SECRET", ""),
		Events:        getEnvList("EAMS_WEBHOOK_EVENTS"),
		RetrySchedule: getEnv("EAMS_WEBHOOK_RETRY_SCHEDULE", "@every 30s"),
		MaxAttempts:   getEnvInt("EAMS_WEBHOOK_MAX_ATTEMPTS", 5),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("EAMS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("EAMS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("EAMS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("EAMS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("EAMS_OTEL_SERVICE_NAME", "eams-server"),
		OTelServiceVersion: getEnv("EAMS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("EAMS_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("EAMS_OTEL_SAMPLE_RATIO", 1),
	}
}

// Provider returns the identity provider settings
func (a AuthConfig) Provider() identity.ProviderConfig {
	return identity.ProviderConfig{
		IssuerURL:    a.OIDCIssuerURL,
		ClientID:     a.OIDCClientID,
		ClientSecret: a.OIDCClientSecret,
		RedirectURL:  a.OIDCRedirectURL,
		Scopes:       a.OIDCScopes,
	}
}

// OTel returns the OpenTelemetry settings
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
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

	switch c.Storage.Type {
	case StorageMemory:
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case StorageDynamoDB:
		if c.Storage.DynamoDBTable == "" || c.Storage.DynamoDBRegion == "" {
			return fmt.Errorf("table and region are required for dynamodb storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory, postgres or dynamodb)", c.Storage.Type)
	}
	if c.Server.UserRateLimit < 0 || c.Server.AnonymousRateLimit < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	for _, u := range c.Webhooks.URLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("webhook URL %q must be http or https", u)
		}
	}

	if c.Storage.UserCacheSize <= 0 {
		return fmt.Errorf("user cache size must be positive")
	}

	if err := c.Auth.Provider().Validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
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

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList returns a comma-separated environment variable as a trimmed list
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
