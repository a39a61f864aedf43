package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/petrijr/skein/pkg/api"
)

// Outcome label values for finished fibers.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// MetricsConfig configures the Prometheus observer.
type MetricsConfig struct {
	// Namespace prefixes every metric name. Defaults to "skein".
	Namespace string

	// EngineID is attached to every series as the engine label.
	EngineID string

	// Buckets for the step and fiber duration histograms. Defaults to
	// prometheus.DefBuckets.
	Buckets []float64
}

// Metrics is an api.Observer that exports fiber activity as Prometheus
// collectors.
type Metrics struct {
	fibersStarted  *prometheus.CounterVec
	fibersFinished *prometheus.CounterVec
	fibersActive   *prometheus.GaugeVec
	fiberDuration  *prometheus.HistogramVec

	stepsApplied *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec

	suspensions *prometheus.CounterVec
	resumptions *prometheus.CounterVec
	retries     *prometheus.CounterVec

	engine string

	// fiber id -> start time; presence means the fiber is counted as active
	started sync.Map
}

var _ api.Observer = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, cfg MetricsConfig) (*Metrics, error) {
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "skein"
	}
	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		engine: cfg.EngineID,

		fibersStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fibers_started_total",
				Help:      "Total number of fibers started",
			},
			[]string{"engine", "child"},
		),
		fibersFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fibers_finished_total",
				Help:      "Total number of fibers finished, by outcome",
			},
			[]string{"engine", "outcome"},
		),
		fibersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "fibers_active",
				Help:      "Number of fibers started but not yet finished",
			},
			[]string{"engine"},
		),
		fiberDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "fiber_duration_seconds",
				Help:      "Wall time from fiber start to completion in seconds",
				Buckets:   buckets,
			},
			[]string{"engine", "outcome"},
		),

		stepsApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_applied_total",
				Help:      "Total number of steps applied, by returned action",
			},
			[]string{"engine", "action"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Duration of step Apply calls in seconds",
				Buckets:   buckets,
			},
			[]string{"engine", "action"},
		),

		suspensions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fiber_suspensions_total",
				Help:      "Total number of times a fiber released its worker",
			},
			[]string{"engine", "reason"},
		),
		resumptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fiber_resumptions_total",
				Help:      "Total number of times a parked fiber was rescheduled",
			},
			[]string{"engine"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_scheduled_total",
				Help:      "Total number of delayed step re-applications",
			},
			[]string{"engine", "step"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.fibersStarted, m.fibersFinished, m.fibersActive, m.fiberDuration,
		m.stepsApplied, m.stepDuration,
		m.suspensions, m.resumptions, m.retries,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) OnFiberStart(_ context.Context, f api.Fiber) {
	m.started.Store(f.ID(), time.Now())
	m.fibersStarted.WithLabelValues(m.engine, strconv.FormatBool(f.Parent() != nil)).Inc()
	m.fibersActive.WithLabelValues(m.engine).Inc()
}

func (m *Metrics) OnStepApplied(_ context.Context, _ api.Fiber, _ string, action api.ActionKind, d time.Duration) {
	m.stepsApplied.WithLabelValues(m.engine, action.String()).Inc()
	m.stepDuration.WithLabelValues(m.engine, action.String()).Observe(d.Seconds())
}

func (m *Metrics) OnFiberSuspended(_ context.Context, _ api.Fiber, reason api.ActionKind) {
	m.suspensions.WithLabelValues(m.engine, reason.String()).Inc()
}

func (m *Metrics) OnFiberResumed(context.Context, api.Fiber) {
	m.resumptions.WithLabelValues(m.engine).Inc()
}

func (m *Metrics) OnRetryScheduled(_ context.Context, _ api.Fiber, step string, _ time.Duration, _ int) {
	m.retries.WithLabelValues(m.engine, step).Inc()
}

func (m *Metrics) OnFiberCompleted(_ context.Context, f api.Fiber, _ any) {
	m.finish(f, OutcomeSuccess)
}

func (m *Metrics) OnFiberFailed(_ context.Context, f api.Fiber, _ error) {
	m.finish(f, OutcomeFailure)
}

func (m *Metrics) OnFiberCancelled(_ context.Context, f api.Fiber) {
	m.finish(f, OutcomeCancelled)
}

func (m *Metrics) finish(f api.Fiber, outcome string) {
	m.fibersFinished.WithLabelValues(m.engine, outcome).Inc()

	// Fibers cancelled before they started were never counted as active.
	v, ok := m.started.LoadAndDelete(f.ID())
	if !ok {
		return
	}
	m.fibersActive.WithLabelValues(m.engine).Dec()
	m.fiberDuration.WithLabelValues(m.engine, outcome).Observe(time.Since(v.(time.Time)).Seconds())
}
