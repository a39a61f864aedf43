package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petrijr/skein/pkg/api"
)

// Span attribute keys.
const (
	AttrEngineID = attribute.Key("skein.engine_id")
	AttrFiberID  = attribute.Key("skein.fiber_id")
	AttrParentID = attribute.Key("skein.parent_id")
	AttrStep     = attribute.Key("skein.step")
	AttrAction   = attribute.Key("skein.action")
	AttrDelay    = attribute.Key("skein.delay")
	AttrAttempt  = attribute.Key("skein.attempt")
	AttrDuration = attribute.Key("skein.duration")
)

// Tracing is an api.Observer that records one span per fiber. Steps,
// suspensions and retries are added as span events. A child fiber's span is
// parented to the span of the fiber that created it.
type Tracing struct {
	tracer trace.Tracer
	engine string

	mu    sync.Mutex
	spans map[int64]trace.Span
}

var _ api.Observer = (*Tracing)(nil)

// NewTracing creates a tracing observer on the given provider.
func NewTracing(tp trace.TracerProvider, serviceName, engineID string) *Tracing {
	return &Tracing{
		tracer: tp.Tracer(serviceName),
		engine: engineID,
		spans:  make(map[int64]trace.Span),
	}
}

func (t *Tracing) span(id int64) (trace.Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[id]
	return s, ok
}

func (t *Tracing) take(id int64) (trace.Span, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.spans[id]
	delete(t.spans, id)
	return s, ok
}

func (t *Tracing) OnFiberStart(ctx context.Context, f api.Fiber) {
	attrs := []attribute.KeyValue{
		AttrEngineID.String(t.engine),
		AttrFiberID.Int64(f.ID()),
	}
	if parent := f.Parent(); parent != nil {
		attrs = append(attrs, AttrParentID.Int64(parent.ID()))
		if ps, ok := t.span(parent.ID()); ok {
			ctx = trace.ContextWithSpan(ctx, ps)
		}
	}

	_, span := t.tracer.Start(context.WithoutCancel(ctx), "fiber "+f.Name(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)

	t.mu.Lock()
	t.spans[f.ID()] = span
	t.mu.Unlock()
}

func (t *Tracing) OnStepApplied(_ context.Context, f api.Fiber, step string, action api.ActionKind, d time.Duration) {
	if span, ok := t.span(f.ID()); ok {
		span.AddEvent("step", trace.WithAttributes(
			AttrStep.String(step),
			AttrAction.String(action.String()),
			AttrDuration.String(d.String()),
		))
	}
}

func (t *Tracing) OnFiberSuspended(_ context.Context, f api.Fiber, reason api.ActionKind) {
	if span, ok := t.span(f.ID()); ok {
		span.AddEvent("suspended", trace.WithAttributes(AttrAction.String(reason.String())))
	}
}

func (t *Tracing) OnFiberResumed(_ context.Context, f api.Fiber) {
	if span, ok := t.span(f.ID()); ok {
		span.AddEvent("resumed")
	}
}

func (t *Tracing) OnRetryScheduled(_ context.Context, f api.Fiber, step string, delay time.Duration, attempt int) {
	if span, ok := t.span(f.ID()); ok {
		span.AddEvent("retry", trace.WithAttributes(
			AttrStep.String(step),
			AttrDelay.String(delay.String()),
			AttrAttempt.Int(attempt),
		))
	}
}

func (t *Tracing) OnFiberCompleted(_ context.Context, f api.Fiber, _ any) {
	if span, ok := t.take(f.ID()); ok {
		span.SetStatus(codes.Ok, "")
		span.End()
	}
}

func (t *Tracing) OnFiberFailed(_ context.Context, f api.Fiber, err error) {
	if span, ok := t.take(f.ID()); ok {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

func (t *Tracing) OnFiberCancelled(_ context.Context, f api.Fiber) {
	if span, ok := t.take(f.ID()); ok {
		span.AddEvent("cancelled")
		span.SetStatus(codes.Error, api.ErrCancelled.Error())
		span.End()
	}
}
