// Package config provides centralized configuration management for the importer.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Import    ImportConfig
	Breaker   BreakerConfig
	Retention RetentionConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty runs on in-memory stores.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// Migrate applies the embedded schema on startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// RedisConfig holds progress mirroring settings.
type RedisConfig struct {
	// URL is the Redis connection string. Empty disables progress mirroring.
	URL string `env:"REDIS_URL"`

	// KeyPrefix namespaces progress keys (default: bulkimport)
	KeyPrefix string `env:"REDIS_KEY_PREFIX" default:"bulkimport"`

	// ProgressTTL is how long a snapshot outlives its last update (default: 24h)
	ProgressTTL time.Duration `env:"REDIS_PROGRESS_TTL" default:"24h"`
}

// ImportConfig holds import job settings.
type ImportConfig struct {
	// MaxFileSize is the maximum allowed file size in bytes (default: 20MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrentJobs is the maximum number of jobs processing at once (default: 4)
	MaxConcurrentJobs int `env:"IMPORT_MAX_CONCURRENT_JOBS" default:"4"`

	// MaxWaitTime is how long to wait for a job slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// JobTimeout bounds a single run of a job's row loop (default: 30m)
	JobTimeout time.Duration `env:"IMPORT_JOB_TIMEOUT" default:"30m"`

	// TemplateDir overrides the embedded template seeds with a directory on disk.
	TemplateDir string `env:"IMPORT_TEMPLATE_DIR"`
}

// BreakerConfig holds content store circuit breaker settings.
type BreakerConfig struct {
	// Timeout is how long the breaker stays open before probing (default: 10s)
	Timeout time.Duration `env:"BREAKER_TIMEOUT" default:"10s"`

	// Interval is the closed-state window after which counts reset (default: 30s)
	Interval time.Duration `env:"BREAKER_INTERVAL" default:"30s"`

	// MinRequests is the request count before the breaker may trip (default: 5)
	MinRequests int `env:"BREAKER_MIN_REQUESTS" default:"5"`

	// FailureRatio is the share of failed requests that trips the breaker (default: 0.6)
	FailureRatio float64 `env:"BREAKER_FAILURE_RATIO" default:"0.6"`
}

// RetentionConfig holds finished-job cleanup settings.
type RetentionConfig struct {
	// Schedule is the cron spec of the sweep (default: @every 1h)
	Schedule string `env:"RETENTION_SCHEDULE" default:"@every 1h"`

	// Keep is how long finished jobs keep their stored rows (default: 24h)
	Keep time.Duration `env:"RETENTION_KEEP" default:"24h"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`

	// File additionally writes JSON logs to this path when set.
	File string `env:"LOG_FILE"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
