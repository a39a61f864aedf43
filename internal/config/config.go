package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petrijr/skein/internal/persistence"
	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
)

type (
	// Config holds configuration settings for a skein runtime
	Config struct {
		// Engine
		EngineID        string        `yaml:"engine_id"`
		Workers         int           `yaml:"workers"`
		Verbose         bool          `yaml:"verbose"`
		BreadcrumbLimit int           `yaml:"breadcrumb_limit"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		LogLevel        string        `yaml:"log_level"`

		// Default retry policy for request steps
		Retry RetryConfig `yaml:"retry"`

		// Observability
		History HistoryConfig `yaml:"history"`
		Metrics MetricsConfig `yaml:"metrics"`
		Tracing TracingConfig `yaml:"tracing"`
	}

	// RetryConfig mirrors api.RetryPolicy
	RetryConfig struct {
		MaxRetries int           `yaml:"max_retries"`
		Low        int           `yaml:"low"`
		High       int           `yaml:"high"`
		Scale      time.Duration `yaml:"scale"`
		MaxDelay   time.Duration `yaml:"max_delay"`
	}

	// HistoryConfig selects where fiber events are recorded
	HistoryConfig struct {
		Backend     string        `yaml:"backend"`
		SQLitePath  string        `yaml:"sqlite_path"`
		RedisAddr   string        `yaml:"redis_addr"`
		RedisPrefix string        `yaml:"redis_prefix"`
		RedisTTL    time.Duration `yaml:"redis_ttl"`
	}

	// MetricsConfig controls the Prometheus collectors
	MetricsConfig struct {
		Enabled   bool   `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	}

	// TracingConfig controls OpenTelemetry spans
	TracingConfig struct {
		Enabled     bool   `yaml:"enabled"`
		ServiceName string `yaml:"service_name"`
	}
)

const (
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultRedisEndpoint   = "localhost:6379"
	DefaultRedisPrefix     = "skein:"
	DefaultNamespace       = "skein"
	DefaultServiceName     = "skein"

	MaxWorkers         = 10_000
	MaxBreadcrumbLimit = 100_000
	MaxRetryMaxRetries = 1000
)

var (
	ErrInvalidWorkers         = errors.New("workers must not be negative")
	ErrInvalidBreadcrumbLimit = errors.New("breadcrumb limit must not be negative")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidLogLevel        = errors.New("invalid log level")
	ErrInvalidRetryMaxRetries = errors.New("retry max retries must be positive")
	ErrInvalidRetryRange      = errors.New("retry high must be >= retry low >= 0")
	ErrInvalidRetryScale      = errors.New("retry scale must not be negative")
	ErrInvalidHistoryBackend  = errors.New("invalid history backend")
	ErrMissingRedisAddr       = errors.New("redis history requires an address")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// engine, retries and observability
func NewDefaultConfig() *Config {
	policy := api.DefaultRetryPolicy()
	return &Config{
		ShutdownTimeout: DefaultShutdownTimeout,
		LogLevel:        DefaultLogLevel,
		Retry: RetryConfig{
			MaxRetries: policy.MaxRetries,
			Low:        policy.Low,
			High:       policy.High,
			Scale:      policy.Scale,
			MaxDelay:   policy.MaxDelay,
		},
		History: HistoryConfig{
			Backend:     persistence.BackendNone,
			SQLitePath:  ":memory:",
			RedisAddr:   DefaultRedisEndpoint,
			RedisPrefix: DefaultRedisPrefix,
		},
		Metrics: MetricsConfig{Namespace: DefaultNamespace},
		Tracing: TracingConfig{ServiceName: DefaultServiceName},
	}
}

// LoadFile reads a YAML file over the defaults. Keys absent from the file
// keep their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv populates configuration values from SKEIN_* environment
// variables. Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	if id := os.Getenv("SKEIN_ENGINE_ID"); id != "" {
		c.EngineID = id
	}
	if lvl := os.Getenv("SKEIN_LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	if backend := os.Getenv("SKEIN_HISTORY_BACKEND"); backend != "" {
		c.History.Backend = backend
	}
	if path := os.Getenv("SKEIN_HISTORY_SQLITE_PATH"); path != "" {
		c.History.SQLitePath = path
	}
	if addr := os.Getenv("SKEIN_HISTORY_REDIS_ADDR"); addr != "" {
		c.History.RedisAddr = addr
	}
	if prefix := os.Getenv("SKEIN_HISTORY_REDIS_PREFIX"); prefix != "" {
		c.History.RedisPrefix = prefix
	}

	if err := loadEnvInt("SKEIN_WORKERS", &c.Workers, 0, MaxWorkers); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SKEIN_BREADCRUMB_LIMIT", &c.BreadcrumbLimit, 0, MaxBreadcrumbLimit,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"SKEIN_RETRY_MAX_RETRIES", &c.Retry.MaxRetries, 0, MaxRetryMaxRetries,
	); err != nil {
		return err
	}

	if err := loadEnvDuration("SKEIN_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout); err != nil {
		return err
	}
	if err := loadEnvDuration("SKEIN_RETRY_SCALE", &c.Retry.Scale); err != nil {
		return err
	}
	if err := loadEnvDuration("SKEIN_RETRY_MAX_DELAY", &c.Retry.MaxDelay); err != nil {
		return err
	}
	if err := loadEnvDuration("SKEIN_HISTORY_REDIS_TTL", &c.History.RedisTTL); err != nil {
		return err
	}

	if err := loadEnvBool("SKEIN_VERBOSE", &c.Verbose); err != nil {
		return err
	}
	if err := loadEnvBool("SKEIN_METRICS_ENABLED", &c.Metrics.Enabled); err != nil {
		return err
	}
	return loadEnvBool("SKEIN_TRACING_ENABLED", &c.Tracing.Enabled)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.BreadcrumbLimit < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBreadcrumbLimit, c.BreadcrumbLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Retry.MaxRetries <= 0 {
		return ErrInvalidRetryMaxRetries
	}
	if c.Retry.Low < 0 || c.Retry.High < c.Retry.Low {
		return fmt.Errorf("%w: low=%d high=%d", ErrInvalidRetryRange, c.Retry.Low, c.Retry.High)
	}
	if c.Retry.Scale < 0 || c.Retry.MaxDelay < 0 {
		return ErrInvalidRetryScale
	}

	switch c.History.Backend {
	case "", persistence.BackendNone, persistence.BackendMemory, persistence.BackendSQLite:
	case persistence.BackendRedis:
		if c.History.RedisAddr == "" {
			return ErrMissingRedisAddr
		}
	default:
		return fmt.Errorf("%w: %s", ErrInvalidHistoryBackend, c.History.Backend)
	}
	return nil
}

// RetryPolicy converts the retry section to an api.RetryPolicy
func (c *Config) RetryPolicy() api.RetryPolicy {
	return api.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		Low:        c.Retry.Low,
		High:       c.Retry.High,
		Scale:      c.Retry.Scale,
		MaxDelay:   c.Retry.MaxDelay,
	}
}

// HistoryOptions converts the history section for persistence.Open
func (c *Config) HistoryOptions() persistence.Options {
	return persistence.Options{
		Backend:     c.History.Backend,
		SQLitePath:  c.History.SQLitePath,
		RedisAddr:   c.History.RedisAddr,
		RedisPrefix: c.History.RedisPrefix,
		RedisTTL:    c.History.RedisTTL,
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = d
	return nil
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = b
	return nil
}
