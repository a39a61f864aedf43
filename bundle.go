package skein

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/skein/internal/config"
	"github.com/petrijr/skein/internal/engine"
	"github.com/petrijr/skein/internal/persistence"
	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
	"github.com/petrijr/skein/pkg/telemetry"
)

// Config is the file and environment driven runtime configuration.
type Config = config.Config

// Configuration loaders.
var (
	DefaultConfig  = config.NewDefaultConfig
	LoadConfigFile = config.LoadFile
)

// Runtime wires together an Engine with structured logging, fiber history,
// Prometheus metrics and OpenTelemetry tracing, all driven by a Config.
//
// Typical usage:
//
//	cfg, _ := skein.LoadConfigFile("skein.yaml")
//	_ = cfg.LoadFromEnv()
//	rt, err := skein.Open(ctx, cfg)
//	defer rt.Close(ctx)
//	h, err := skein.RunAsync(rt.Engine, chain.Build(), nil)
type Runtime struct {
	Engine Engine
	Logger *slog.Logger

	// Metrics is nil unless metrics are enabled.
	Metrics *telemetry.Metrics

	cfg        *Config
	engineID   string
	history    persistence.EventStore
	closeStore func() error
}

type runtimeOptions struct {
	logger    *slog.Logger
	registry  prometheus.Registerer
	tracer    trace.TracerProvider
	observers []Observer
}

// RuntimeOption customizes Open.
type RuntimeOption func(*runtimeOptions)

// WithLogger replaces the JSON logger built from Config.LogLevel.
func WithLogger(logger *slog.Logger) RuntimeOption {
	return func(o *runtimeOptions) { o.logger = logger }
}

// WithRegisterer registers metrics with reg instead of
// prometheus.DefaultRegisterer.
func WithRegisterer(reg prometheus.Registerer) RuntimeOption {
	return func(o *runtimeOptions) { o.registry = reg }
}

// WithTracerProvider replaces the global OpenTelemetry tracer provider.
func WithTracerProvider(tp trace.TracerProvider) RuntimeOption {
	return func(o *runtimeOptions) { o.tracer = tp }
}

// WithObserver adds an observer next to the configured ones.
func WithObserver(obs Observer) RuntimeOption {
	return func(o *runtimeOptions) { o.observers = append(o.observers, obs) }
}

// Open validates cfg and builds a Runtime. A nil cfg uses DefaultConfig.
func Open(ctx context.Context, cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("skein: invalid config: %w", err)
	}

	o := runtimeOptions{
		registry: prometheus.DefaultRegisterer,
		tracer:   otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		lvl, _ := log.ParseLevel(cfg.LogLevel)
		logger = log.New(lvl)
	}

	engineID := cfg.EngineID
	if engineID == "" {
		engineID = uuid.NewString()
	}

	store, closeStore, err := persistence.Open(ctx, cfg.HistoryOptions())
	if err != nil {
		return nil, fmt.Errorf("skein: open history: %w", err)
	}

	rt := &Runtime{
		Logger:     logger,
		cfg:        cfg,
		engineID:   engineID,
		history:    store,
		closeStore: closeStore,
	}

	observers := []Observer{api.NewLoggingObserver(logger)}
	if _, ok := store.(persistence.NoopEventStore); !ok {
		observers = append(observers, persistence.NewRecorder(store, engineID, logger))
	}
	if cfg.Metrics.Enabled {
		m, err := telemetry.NewMetrics(o.registry, telemetry.MetricsConfig{
			Namespace: cfg.Metrics.Namespace,
			EngineID:  engineID,
		})
		if err != nil {
			_ = closeStore()
			return nil, err
		}
		rt.Metrics = m
		observers = append(observers, m)
	}
	if cfg.Tracing.Enabled {
		observers = append(observers, telemetry.NewTracing(o.tracer, cfg.Tracing.ServiceName, engineID))
	}
	observers = append(observers, o.observers...)

	rt.Engine = engine.NewEngineWithConfig(engine.Config{
		ID:              engineID,
		Workers:         cfg.Workers,
		Observer:        api.NewCompositeObserver(observers...),
		Logger:          logger,
		BreadcrumbLimit: cfg.BreadcrumbLimit,
		Verbose:         cfg.Verbose,
	})

	logger.Info("runtime started",
		log.EngineID(engineID),
		slog.String("history", cfg.History.Backend),
		slog.Bool("metrics", cfg.Metrics.Enabled),
		slog.Bool("tracing", cfg.Tracing.Enabled),
	)
	return rt, nil
}

// EngineID returns the id stamped on logs and history events.
func (r *Runtime) EngineID() string {
	return r.engineID
}

// RetryPolicy returns the configured default retry policy.
func (r *Runtime) RetryPolicy() RetryPolicy {
	return r.cfg.RetryPolicy()
}

// Request is skein.Request with the configured retry policy applied before
// opts.
func (r *Runtime) Request(factory CallFactory, opts ...RequestOption) StepFactory {
	all := append([]RequestOption{api.WithRetryPolicy(r.RetryPolicy())}, opts...)
	return api.Request(factory, all...)
}

// History returns the recorded events of a fiber. It is empty when history
// is disabled.
func (r *Runtime) History(ctx context.Context, fiberID int64) ([]FiberEvent, error) {
	return r.history.ListEvents(ctx, r.engineID, fiberID)
}

// Close stops the engine, waiting up to the configured shutdown timeout for
// running steps, then closes the history store.
func (r *Runtime) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.ShutdownTimeout)
	defer cancel()

	stopErr := r.Engine.Stop(ctx)
	closeErr := r.closeStore()
	if stopErr != nil {
		r.Logger.Warn("engine stop incomplete", log.EngineID(r.engineID), log.Error(stopErr))
	}
	return errors.Join(stopErr, closeErr)
}
