package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/orgscope/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Redis configuration
	Redis RedisConfig `yaml:"redis"`

	// Scope cache configuration
	Cache CacheConfig `yaml:"cache"`

	// Auth configuration
	Auth AuthConfig `yaml:"auth"`

	// Audit configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`

	// Janitor configuration
	Janitor JanitorConfig `yaml:"janitor"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"` // comma-separated
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
}

// Replicas returns the configured replica URLs as a slice.
func (d DatabaseConfig) Replicas() []string {
	if d.ReplicaURLs == "" {
		return nil
	}
	parts := strings.Split(d.ReplicaURLs, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

// RedisConfig holds Redis configuration for the scope cache second tier
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	MaxRetries int    `yaml:"max_retries"`
	PoolSize   int    `yaml:"pool_size"`
}

// CacheConfig holds scope cache configuration
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	MaxEntries int           `yaml:"max_entries"`
	TTL        time.Duration `yaml:"ttl"`
}

// AuthConfig holds service-token auth configuration
type AuthConfig struct {
	// TokenFile is a YAML file mapping bearer tokens to actor ids,
	// hot-reloaded by the auth middleware.
	TokenFile string `yaml:"token_file"`
}

// AuditConfig holds audit trail configuration
type AuditConfig struct {
	// FileEnabled mirrors audit events to NDJSON files in addition to the DB.
	FileEnabled bool   `yaml:"file_enabled"`
	FileDir     string `yaml:"file_dir"`

	// RetentionDays bounds how long DB audit events are kept; the janitor
	// purges older rows. Zero disables purging.
	RetentionDays int `yaml:"retention_days"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel `yaml:"-"`
	// LogLevelName is the YAML-facing level name; parsed into LogLevel.
	LogLevelName string `yaml:"log_level"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// JanitorConfig holds schedules for the background janitor
type JanitorConfig struct {
	// Cron specs (robfig/cron format)
	ExpirySpec    string `yaml:"expiry_spec"`
	IntegritySpec string `yaml:"integrity_spec"`
	PurgeSpec     string `yaml:"purge_spec"`
}

// DefaultConfig returns the built-in defaults before file and env overlays.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			MaxConns:    20,
			MinConns:    2,
			Timeout:     10 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			DB:         0,
			MaxRetries: 3,
			PoolSize:   10,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 4096,
			TTL:        5 * time.Minute,
		},
		Audit: AuditConfig{
			FileEnabled:   false,
			FileDir:       "/var/log/orgscope/audit",
			RetentionDays: 90,
		},
		Observability: ObservabilityConfig{
			LogLevel:           observability.InfoLevel,
			LogLevelName:       "info",
			MetricsEnabled:     true,
			OTelEnabled:        false,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "orgscope",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
		Janitor: JanitorConfig{
			ExpirySpec:    "*/5 * * * *",
			IntegritySpec: "0 3 * * *",
			PurgeSpec:     "30 4 * * *",
		},
	}
}

// LoadConfig loads configuration in three layers: built-in defaults, then the
// YAML file named by ORGSCOPE_CONFIG (if set), then ORGSCOPE_* environment
// variables. Later layers win.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("ORGSCOPE_CONFIG"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.Observability.LogLevel = observability.ParseLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyFile overlays YAML file values onto cfg. Absent keys keep their
// current values.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("invalid YAML: %w", err)
	}
	return nil
}

// applyEnv overlays ORGSCOPE_* environment variables onto cfg. Each helper
// falls back to the current (default or file-provided) value.
func applyEnv(cfg *Config) {
	// Server
	cfg.Server.Host = getEnv("ORGSCOPE_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnv("ORGSCOPE_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("ORGSCOPE_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("ORGSCOPE_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.IdleTimeout = getEnvDuration("ORGSCOPE_IDLE_TIMEOUT", cfg.Server.IdleTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("ORGSCOPE_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.HealthPort = getEnv("ORGSCOPE_HEALTH_PORT", cfg.Server.HealthPort)

	// Database
	cfg.Database.URL = getEnv("ORGSCOPE_POSTGRES_URL", cfg.Database.URL)
	cfg.Database.ReplicaURLs = getEnv("ORGSCOPE_POSTGRES_REPLICA_URLS", cfg.Database.ReplicaURLs)
	cfg.Database.MaxConns = getEnvInt("ORGSCOPE_POSTGRES_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = getEnvInt("ORGSCOPE_POSTGRES_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.Timeout = getEnvDuration("ORGSCOPE_POSTGRES_TIMEOUT", cfg.Database.Timeout)
	cfg.Database.MaxLifetime = getEnvDuration("ORGSCOPE_POSTGRES_MAX_LIFETIME", cfg.Database.MaxLifetime)
	cfg.Database.MaxIdleTime = getEnvDuration("ORGSCOPE_POSTGRES_MAX_IDLE_TIME", cfg.Database.MaxIdleTime)

	// Redis
	cfg.Redis.Enabled = getEnvBool("ORGSCOPE_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = getEnv("ORGSCOPE_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("ORGSCOPE_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("ORGSCOPE_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.MaxRetries = getEnvInt("ORGSCOPE_REDIS_MAX_RETRIES", cfg.Redis.MaxRetries)
	cfg.Redis.PoolSize = getEnvInt("ORGSCOPE_REDIS_POOL_SIZE", cfg.Redis.PoolSize)

	// Cache
	cfg.Cache.Enabled = getEnvBool("ORGSCOPE_CACHE_ENABLED", cfg.Cache.Enabled)
	cfg.Cache.MaxEntries = getEnvInt("ORGSCOPE_CACHE_MAX_ENTRIES", cfg.Cache.MaxEntries)
	cfg.Cache.TTL = getEnvDuration("ORGSCOPE_CACHE_TTL", cfg.Cache.TTL)

	// Auth
	cfg.Auth.TokenFile = getEnv("ORGSCOPE_TOKEN_FILE", cfg.Auth.TokenFile)

	// Audit
	cfg.Audit.FileEnabled = getEnvBool("ORGSCOPE_AUDIT_FILE_ENABLED", cfg.Audit.FileEnabled)
	cfg.Audit.FileDir = getEnv("ORGSCOPE_AUDIT_FILE_DIR", cfg.Audit.FileDir)
	cfg.Audit.RetentionDays = getEnvInt("ORGSCOPE_AUDIT_RETENTION_DAYS", cfg.Audit.RetentionDays)

	// Observability
	cfg.Observability.LogLevelName = getEnv("ORGSCOPE_LOG_LEVEL", cfg.Observability.LogLevelName)
	cfg.Observability.MetricsEnabled = getEnvBool("ORGSCOPE_METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.OTelEnabled = getEnvBool("ORGSCOPE_OTEL_ENABLED", cfg.Observability.OTelEnabled)
	cfg.Observability.OTelEndpoint = getEnv("ORGSCOPE_OTEL_ENDPOINT", cfg.Observability.OTelEndpoint)
	cfg.Observability.OTelServiceName = getEnv("ORGSCOPE_OTEL_SERVICE_NAME", cfg.Observability.OTelServiceName)
	cfg.Observability.OTelServiceVersion = getEnv("ORGSCOPE_OTEL_SERVICE_VERSION", cfg.Observability.OTelServiceVersion)
	cfg.Observability.OTelInsecure = getEnvBool("ORGSCOPE_OTEL_INSECURE", cfg.Observability.OTelInsecure)

	// Janitor
	cfg.Janitor.ExpirySpec = getEnv("ORGSCOPE_JANITOR_EXPIRY_SPEC", cfg.Janitor.ExpirySpec)
	cfg.Janitor.IntegritySpec = getEnv("ORGSCOPE_JANITOR_INTEGRITY_SPEC", cfg.Janitor.IntegritySpec)
	cfg.Janitor.PurgeSpec = getEnv("ORGSCOPE_JANITOR_PURGE_SPEC", cfg.Janitor.PurgeSpec)
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

	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("database max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	if c.Cache.Enabled && c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache max_entries must be positive when cache is enabled")
	}

	if c.Audit.RetentionDays < 0 {
		return fmt.Errorf("audit retention_days must not be negative")
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
