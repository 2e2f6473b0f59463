// Package config provides application configuration from defaults, an
// optional YAML file, and environment variables.
//
// # Overview
//
// Configuration is assembled in three layers. Built-in defaults come first,
// then the YAML file named by ORGSCOPE_CONFIG (when set), then ORGSCOPE_*
// environment variables. Later layers win, so an env var always overrides
// the file and the file always overrides a default.
//
// # Configuration Structure
//
// Server settings:
//
//	ORGSCOPE_HOST="0.0.0.0"
//	ORGSCOPE_PORT="8080"
//	ORGSCOPE_HEALTH_PORT="9090"
//	ORGSCOPE_READ_TIMEOUT="15s"
//	ORGSCOPE_WRITE_TIMEOUT="15s"
//	ORGSCOPE_SHUTDOWN_TIMEOUT="30s"
//
// Database settings:
//
//	ORGSCOPE_POSTGRES_URL="postgres://localhost/orgscope"
//	ORGSCOPE_POSTGRES_REPLICA_URLS="postgres://replica1/orgscope,postgres://replica2/orgscope"
//	ORGSCOPE_POSTGRES_MAX_CONNS="20"
//
// Cache settings:
//
//	ORGSCOPE_CACHE_ENABLED="true"
//	ORGSCOPE_CACHE_TTL="5m"
//	ORGSCOPE_REDIS_ENABLED="false"
//	ORGSCOPE_REDIS_ADDR="localhost:6379"
//
// Auth and audit settings:
//
//	ORGSCOPE_TOKEN_FILE="/etc/orgscope/tokens.yaml"
//	ORGSCOPE_AUDIT_FILE_ENABLED="false"
//	ORGSCOPE_AUDIT_RETENTION_DAYS="90"
//
// Observability settings:
//
//	ORGSCOPE_LOG_LEVEL="info"  # debug, info, warn, error
//	ORGSCOPE_METRICS_ENABLED="true"
//	ORGSCOPE_OTEL_ENABLED="false"
//	ORGSCOPE_OTEL_ENDPOINT="otel-collector:4317"
//
// Janitor settings:
//
//	ORGSCOPE_JANITOR_EXPIRY_SPEC="*/5 * * * *"
//	ORGSCOPE_JANITOR_INTEGRITY_SPEC="0 3 * * *"
//	ORGSCOPE_JANITOR_PURGE_SPEC="30 4 * * *"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Log level: %s\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/storage/postgres: Uses database configuration
//   - pkg/observability: Uses observability configuration
package config
