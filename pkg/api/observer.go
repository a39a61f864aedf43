package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the engine for logging and metrics.
//
// Callbacks run on the goroutine driving the fiber, so implementations
// should be fast and non-blocking.
type Observer interface {
	// OnFiberStart is called once when a fiber is started, before its first
	// step is applied.
	OnFiberStart(ctx context.Context, f Fiber)

	// OnStepApplied is called after every step with the kind of action it
	// returned and the time Apply took.
	OnStepApplied(ctx context.Context, f Fiber, step string, action ActionKind, d time.Duration)

	// OnFiberSuspended is called when the fiber releases its goroutine for a
	// Suspend or an Invoke.
	OnFiberSuspended(ctx context.Context, f Fiber, reason ActionKind)

	// OnFiberResumed is called when a parked fiber is rescheduled.
	OnFiberResumed(ctx context.Context, f Fiber)

	// OnRetryScheduled is called when a step will be re-applied after delay.
	// attempt is the number of failures recorded by the strategy, or 0.
	OnRetryScheduled(ctx context.Context, f Fiber, step string, delay time.Duration, attempt int)

	OnFiberCompleted(ctx context.Context, f Fiber, result any)
	OnFiberFailed(ctx context.Context, f Fiber, err error)
	OnFiberCancelled(ctx context.Context, f Fiber)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnFiberStart(context.Context, Fiber)                                    {}
func (NoopObserver) OnStepApplied(context.Context, Fiber, string, ActionKind, time.Duration) {}
func (NoopObserver) OnFiberSuspended(context.Context, Fiber, ActionKind)                    {}
func (NoopObserver) OnFiberResumed(context.Context, Fiber)                                  {}
func (NoopObserver) OnRetryScheduled(context.Context, Fiber, string, time.Duration, int)    {}
func (NoopObserver) OnFiberCompleted(context.Context, Fiber, any)                           {}
func (NoopObserver) OnFiberFailed(context.Context, Fiber, error)                            {}
func (NoopObserver) OnFiberCancelled(context.Context, Fiber)                                {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnFiberStart(ctx context.Context, f Fiber) {
	for _, o := range c.observers {
		o.OnFiberStart(ctx, f)
	}
}

func (c *CompositeObserver) OnStepApplied(ctx context.Context, f Fiber, step string, action ActionKind, d time.Duration) {
	for _, o := range c.observers {
		o.OnStepApplied(ctx, f, step, action, d)
	}
}

func (c *CompositeObserver) OnFiberSuspended(ctx context.Context, f Fiber, reason ActionKind) {
	for _, o := range c.observers {
		o.OnFiberSuspended(ctx, f, reason)
	}
}

func (c *CompositeObserver) OnFiberResumed(ctx context.Context, f Fiber) {
	for _, o := range c.observers {
		o.OnFiberResumed(ctx, f)
	}
}

func (c *CompositeObserver) OnRetryScheduled(ctx context.Context, f Fiber, step string, delay time.Duration, attempt int) {
	for _, o := range c.observers {
		o.OnRetryScheduled(ctx, f, step, delay, attempt)
	}
}

func (c *CompositeObserver) OnFiberCompleted(ctx context.Context, f Fiber, result any) {
	for _, o := range c.observers {
		o.OnFiberCompleted(ctx, f, result)
	}
}

func (c *CompositeObserver) OnFiberFailed(ctx context.Context, f Fiber, err error) {
	for _, o := range c.observers {
		o.OnFiberFailed(ctx, f, err)
	}
}

func (c *CompositeObserver) OnFiberCancelled(ctx context.Context, f Fiber) {
	for _, o := range c.observers {
		o.OnFiberCancelled(ctx, f)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs fiber and step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func fiberAttrs(f Fiber, extra ...slog.Attr) []any {
	out := make([]any, 0, len(extra)+2)
	out = append(out, slog.Int64("fiber_id", f.ID()))
	if p := f.Parent(); p != nil {
		out = append(out, slog.Int64("parent_id", p.ID()))
	}
	for _, a := range extra {
		out = append(out, a)
	}
	return out
}

func (o *LoggingObserver) OnFiberStart(ctx context.Context, f Fiber) {
	o.Logger.InfoContext(ctx, "fiber_start", fiberAttrs(f)...)
}

func (o *LoggingObserver) OnStepApplied(ctx context.Context, f Fiber, step string, action ActionKind, d time.Duration) {
	o.Logger.DebugContext(ctx, "step_applied", fiberAttrs(f,
		slog.String("step", step),
		slog.String("action", action.String()),
		slog.Duration("duration", d),
	)...)
}

func (o *LoggingObserver) OnFiberSuspended(ctx context.Context, f Fiber, reason ActionKind) {
	o.Logger.DebugContext(ctx, "fiber_suspended", fiberAttrs(f,
		slog.String("action", reason.String()),
	)...)
}

func (o *LoggingObserver) OnFiberResumed(ctx context.Context, f Fiber) {
	o.Logger.DebugContext(ctx, "fiber_resumed", fiberAttrs(f)...)
}

func (o *LoggingObserver) OnRetryScheduled(ctx context.Context, f Fiber, step string, delay time.Duration, attempt int) {
	o.Logger.WarnContext(ctx, "retry_scheduled", fiberAttrs(f,
		slog.String("step", step),
		slog.Duration("delay", delay),
		slog.Int("attempt", attempt),
	)...)
}

func (o *LoggingObserver) OnFiberCompleted(ctx context.Context, f Fiber, result any) {
	o.Logger.InfoContext(ctx, "fiber_completed", fiberAttrs(f)...)
}

func (o *LoggingObserver) OnFiberFailed(ctx context.Context, f Fiber, err error) {
	o.Logger.ErrorContext(ctx, "fiber_failed", fiberAttrs(f,
		slog.Any("error", err),
	)...)
}

func (o *LoggingObserver) OnFiberCancelled(ctx context.Context, f Fiber) {
	o.Logger.InfoContext(ctx, "fiber_cancelled", fiberAttrs(f)...)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	fibersStarted     atomic.Int64
	fibersCompleted   atomic.Int64
	fibersFailed      atomic.Int64
	fibersCancelled   atomic.Int64
	stepsApplied      atomic.Int64
	retriesScheduled  atomic.Int64
	suspensions       atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	FibersStarted   int64
	FibersCompleted int64
	FibersFailed    int64
	FibersCancelled int64
	ActiveFibers    int64

	StepsApplied     int64
	RetriesScheduled int64
	Suspensions      int64
	AvgStepDuration  time.Duration
}

func (m *BasicMetrics) OnFiberStart(context.Context, Fiber) {
	m.fibersStarted.Add(1)
}

func (m *BasicMetrics) OnStepApplied(_ context.Context, _ Fiber, _ string, _ ActionKind, d time.Duration) {
	m.stepsApplied.Add(1)
	m.totalStepDuration.Add(d.Nanoseconds())
}

func (m *BasicMetrics) OnFiberSuspended(context.Context, Fiber, ActionKind) {
	m.suspensions.Add(1)
}

func (m *BasicMetrics) OnRetryScheduled(context.Context, Fiber, string, time.Duration, int) {
	m.retriesScheduled.Add(1)
}

func (m *BasicMetrics) OnFiberCompleted(context.Context, Fiber, any) {
	m.fibersCompleted.Add(1)
}

func (m *BasicMetrics) OnFiberFailed(context.Context, Fiber, error) {
	m.fibersFailed.Add(1)
}

func (m *BasicMetrics) OnFiberCancelled(context.Context, Fiber) {
	m.fibersCancelled.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.fibersStarted.Load()
	completed := m.fibersCompleted.Load()
	failed := m.fibersFailed.Load()
	cancelled := m.fibersCancelled.Load()
	steps := m.stepsApplied.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		FibersStarted:    started,
		FibersCompleted:  completed,
		FibersFailed:     failed,
		FibersCancelled:  cancelled,
		ActiveFibers:     started - completed - failed - cancelled,
		StepsApplied:     steps,
		RetriesScheduled: m.retriesScheduled.Load(),
		Suspensions:      m.suspensions.Load(),
		AvgStepDuration:  avg,
	}
}
