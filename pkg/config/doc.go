// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	EAMS_HOST="0.0.0.0"
//	EAMS_PORT="8080"
//	EAMS_HEALTH_PORT="9090"
//	EAMS_READ_TIMEOUT="15s"
//	EAMS_WRITE_TIMEOUT="15s"
//	EAMS_SHUTDOWN_TIMEOUT="30s"
//	EAMS_CORS_ORIGINS="https://app.example.com"
//	EAMS_RATE_LIMIT_PER_MINUTE="1000"      # per authenticated user, 0 disables
//	EAMS_ANON_RATE_LIMIT_PER_MINUTE="100"  # per client IP on /auth routes
//
// Storage settings:
//
//	EAMS_STORAGE_TYPE="postgres"  # memory, postgres
//	EAMS_POSTGRES_URL="postgres://localhost/eams"
//	EAMS_POSTGRES_REPLICA_URLS="postgres://replica1/eams,postgres://replica2/eams"
//	EAMS_POSTGRES_MAX_CONNS="20"
//	EAMS_AUTO_MIGRATE="true"
//
// User cache settings:
//
//	EAMS_USER_CACHE_SIZE="1024"
//	EAMS_USER_CACHE_TTL="1m"
//	EAMS_REDIS_URL="redis://localhost:6379"  # enables the shared tier
//	EAMS_SHARED_CACHE_TTL="5m"
//
// Identity settings:
//
//	EAMS_OIDC_ISSUER_URL="https://idp.example.com"
//	EAMS_OIDC_CLIENT_ID="eams"
//	EAMS_OIDC_CLIENT_SECRET="..."
//	EAMS_OIDC_REDIRECT_URL="https://eams.example.com/auth/callback"
//	EAMS_ROLE_CATALOG="/etc/eams/roles.yaml"
//
// Jobs and observability settings:
//
//	EAMS_GRANT_AUDIT_SCHEDULE="@every 1h"
//	EAMS_LOG_LEVEL="info"  # debug, info, warn, error
//	EAMS_METRICS_ENABLED="true"
//	EAMS_OTEL_ENABLED="true"
//	EAMS_OTEL_ENDPOINT="otel-collector:4317"
//	EAMS_OTEL_SAMPLE_RATIO="0.1"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	verifier, err := identity.NewProvider(ctx, cfg.Auth.Provider())
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/identity: Uses auth configuration
//   - pkg/observability: Uses observability configuration
package config
