package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/skein/internal/config"
	"github.com/petrijr/skein/internal/persistence"
	"github.com/petrijr/skein/pkg/api"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := config.NewDefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, persistence.BackendNone, cfg.History.Backend)
	assert.Equal(t, api.DefaultRetryPolicy(), cfg.RetryPolicy())
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, config.DefaultNamespace, cfg.Metrics.Namespace)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		configMod func(*config.Config)
		want      error
	}{
		{
			name:      "negative_workers",
			configMod: func(c *config.Config) { c.Workers = -1 },
			want:      config.ErrInvalidWorkers,
		},
		{
			name:      "negative_breadcrumbs",
			configMod: func(c *config.Config) { c.BreadcrumbLimit = -5 },
			want:      config.ErrInvalidBreadcrumbLimit,
		},
		{
			name:      "zero_shutdown_timeout",
			configMod: func(c *config.Config) { c.ShutdownTimeout = 0 },
			want:      config.ErrInvalidShutdownTimeout,
		},
		{
			name:      "bad_log_level",
			configMod: func(c *config.Config) { c.LogLevel = "chatty" },
			want:      config.ErrInvalidLogLevel,
		},
		{
			name:      "zero_retries",
			configMod: func(c *config.Config) { c.Retry.MaxRetries = 0 },
			want:      config.ErrInvalidRetryMaxRetries,
		},
		{
			name:      "inverted_range",
			configMod: func(c *config.Config) { c.Retry.Low, c.Retry.High = 10, 5 },
			want:      config.ErrInvalidRetryRange,
		},
		{
			name:      "negative_scale",
			configMod: func(c *config.Config) { c.Retry.Scale = -time.Second },
			want:      config.ErrInvalidRetryScale,
		},
		{
			name:      "unknown_backend",
			configMod: func(c *config.Config) { c.History.Backend = "etcd" },
			want:      config.ErrInvalidHistoryBackend,
		},
		{
			name: "redis_without_addr",
			configMod: func(c *config.Config) {
				c.History.Backend = persistence.BackendRedis
				c.History.RedisAddr = ""
			},
			want: config.ErrMissingRedisAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.configMod(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
		})
	}
}

func TestValidateValidEdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"zero_workers_means_default", func(c *config.Config) { c.Workers = 0 }},
		{"fixed_delay", func(c *config.Config) { c.Retry.Low, c.Retry.High = 3, 3 }},
		{"zero_scale", func(c *config.Config) { c.Retry.Scale = 0 }},
		{"empty_backend", func(c *config.Config) { c.History.Backend = "" }},
		{"sqlite_backend", func(c *config.Config) { c.History.Backend = persistence.BackendSQLite }},
		{"one_retry", func(c *config.Config) { c.Retry.MaxRetries = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewDefaultConfig()
			tt.modify(cfg)
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestParseYAML(t *testing.T) {
	cfg, err := config.Parse([]byte(`
engine_id: billing
workers: 16
verbose: true
shutdown_timeout: 30s
log_level: debug
retry:
  max_retries: 3
  scale: 50ms
history:
  backend: redis
  redis_addr: cache:6379
  redis_ttl: 24h
metrics:
  enabled: true
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "billing", cfg.EngineID)
	assert.Equal(t, 16, cfg.Workers)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)

	policy := cfg.RetryPolicy()
	assert.Equal(t, 3, policy.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, policy.Scale)
	assert.Equal(t, api.DefaultRetryPolicy().Low, policy.Low, "unset keys keep defaults")

	opts := cfg.HistoryOptions()
	assert.Equal(t, persistence.BackendRedis, opts.Backend)
	assert.Equal(t, "cache:6379", opts.RedisAddr)
	assert.Equal(t, config.DefaultRedisPrefix, opts.RedisPrefix)
	assert.Equal(t, 24*time.Hour, opts.RedisTTL)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, config.DefaultNamespace, cfg.Metrics.Namespace)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skein.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 2\nhistory:\n  backend: sqlite\n"), 0o600))

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, persistence.BackendSQLite, cfg.History.Backend)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = config.Parse([]byte("workers: [not, a, number]"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SKEIN_ENGINE_ID", "env-engine")
	t.Setenv("SKEIN_WORKERS", "8")
	t.Setenv("SKEIN_VERBOSE", "true")
	t.Setenv("SKEIN_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("SKEIN_RETRY_MAX_RETRIES", "7")
	t.Setenv("SKEIN_HISTORY_BACKEND", "memory")
	t.Setenv("SKEIN_METRICS_ENABLED", "1")

	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "env-engine", cfg.EngineID)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Verbose)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 7, cfg.Retry.MaxRetries)
	assert.Equal(t, persistence.BackendMemory, cfg.History.Backend)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := map[string]string{
		"SKEIN_WORKERS":           "many",
		"SKEIN_BREADCRUMB_LIMIT":  "0",
		"SKEIN_RETRY_MAX_RETRIES": "5000",
		"SKEIN_SHUTDOWN_TIMEOUT":  "soon",
		"SKEIN_TRACING_ENABLED":   "maybe",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			cfg := config.NewDefaultConfig()
			err := cfg.LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}
