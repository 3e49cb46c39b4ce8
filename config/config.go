// Package config loads the environment-driven knobs enumerated in
// SPEC_FULL §6, combining kelseyhightower/envconfig's struct-tag env
// binding with the teacher gateway's own optional godotenv loading for
// local development — grounded in the teacher's config/config.go.
package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ValidationMode selects enforce vs monitor for one validation direction.
type ValidationMode string

const (
	ValidationEnforce ValidationMode = "enforce"
	ValidationMonitor ValidationMode = "monitor"
)

// CacheConfig mirrors the cache.* env knobs.
type CacheConfig struct {
	MaxEntries  int  `envconfig:"CACHE_MAX_ENTRIES" default:"10000"`
	TTLSeconds  int  `envconfig:"CACHE_TTL_SECONDS" default:"60"`
	CacheDenies bool `envconfig:"CACHE_CACHE_DENIES" default:"false"`
}

// Config is the full set of environment knobs the server reads at startup.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"0.0.0.0"`
	ListenPort int    `envconfig:"LISTEN_PORT" default:"8080"`
	MetricsPort int   `envconfig:"METRICS_PORT" default:"9090"`

	EnableValidation         bool `envconfig:"ENABLE_VALIDATION" default:"true"`
	EnableResponseValidation bool `envconfig:"ENABLE_RESPONSE_VALIDATION" default:"true"`
	EnableAuthorization      bool `envconfig:"ENABLE_AUTHORIZATION" default:"true"`
	EnableTracing            bool `envconfig:"ENABLE_TRACING" default:"true"`

	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"archimedes"`

	ShutdownTimeoutSeconds int `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"30"`
	RequestTimeoutSeconds  int `envconfig:"REQUEST_TIMEOUT_SECONDS" default:"30"`
	MaxBodySizeBytes       int `envconfig:"MAX_BODY_SIZE_BYTES" default:"1048576"`

	RequestValidationMode  ValidationMode `envconfig:"REQUEST_VALIDATION_MODE" default:"enforce"`
	ResponseValidationMode ValidationMode `envconfig:"RESPONSE_VALIDATION_MODE" default:"monitor"`

	Cache CacheConfig

	MaxTotalConnections int `envconfig:"MAX_TOTAL_CONNECTIONS" default:"10000"`
	MaxPerClientConnections int `envconfig:"MAX_PER_CLIENT_CONNECTIONS" default:"100"`

	ArtifactPath string `envconfig:"ARTIFACT_PATH"`
	PolicyBundlePath string `envconfig:"POLICY_BUNDLE_PATH"`

	EnableRemoteAuthzCache bool   `envconfig:"ENABLE_REMOTE_AUTHZ_CACHE" default:"false"`
	RedisURL               string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	Env string `envconfig:"ENV" default:"development"`
}

// ShutdownTimeout returns the configured drain deadline as a Duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// RequestTimeout returns the configured per-request timeout as a Duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// CacheTTL returns the configured decision-cache TTL as a Duration.
func (c CacheConfig) CacheTTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Load reads an optional .env file (development convenience, silently
// ignored if absent) then binds environment variables onto a Config via
// struct tags.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("archimedes", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
