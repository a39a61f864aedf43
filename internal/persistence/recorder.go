package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
)

// Recorder is an api.Observer that appends every fiber lifecycle event to
// an EventStore. Write failures are logged and otherwise ignored so that
// history never affects execution.
type Recorder struct {
	store    EventStore
	engineID string
	logger   *slog.Logger
	now      func() time.Time
}

var _ api.Observer = (*Recorder)(nil)

// NewRecorder returns a Recorder writing events for engineID to store.
func NewRecorder(store EventStore, engineID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		engineID: engineID,
		logger:   logger,
		now:      time.Now,
	}
}

func (r *Recorder) append(ctx context.Context, f api.Fiber, typ api.EventType, step, detail string) {
	ev := api.FiberEvent{
		ID:       uuid.NewString(),
		EngineID: r.engineID,
		FiberID:  f.ID(),
		At:       r.now(),
		Type:     typ,
		Step:     step,
		Detail:   detail,
	}
	if p := f.Parent(); p != nil {
		ev.ParentID = p.ID()
	}
	// The fiber context is cancelled on completion; history still gets written.
	if err := r.store.AppendEvent(context.WithoutCancel(ctx), ev); err != nil {
		r.logger.Warn("fiber history append failed",
			log.EngineID(r.engineID),
			log.FiberID(f.ID()),
			slog.String("event", string(typ)),
			log.Error(err),
		)
	}
}

func (r *Recorder) OnFiberStart(ctx context.Context, f api.Fiber) {
	r.append(ctx, f, api.EventFiberStarted, "", "")
}

func (r *Recorder) OnStepApplied(ctx context.Context, f api.Fiber, step string, action api.ActionKind, d time.Duration) {
	r.append(ctx, f, api.EventStepApplied, step, fmt.Sprintf("action=%s duration=%s", action, d))
}

func (r *Recorder) OnFiberSuspended(ctx context.Context, f api.Fiber, reason api.ActionKind) {
	r.append(ctx, f, api.EventFiberSuspended, "", "reason="+reason.String())
}

func (r *Recorder) OnFiberResumed(ctx context.Context, f api.Fiber) {
	r.append(ctx, f, api.EventFiberResumed, "", "")
}

func (r *Recorder) OnRetryScheduled(ctx context.Context, f api.Fiber, step string, delay time.Duration, attempt int) {
	r.append(ctx, f, api.EventRetryScheduled, step, fmt.Sprintf("attempt=%d delay=%s", attempt, delay))
}

func (r *Recorder) OnFiberCompleted(ctx context.Context, f api.Fiber, _ any) {
	r.append(ctx, f, api.EventFiberCompleted, "", "")
}

func (r *Recorder) OnFiberFailed(ctx context.Context, f api.Fiber, err error) {
	r.append(ctx, f, api.EventFiberFailed, "", err.Error())
}

func (r *Recorder) OnFiberCancelled(ctx context.Context, f api.Fiber) {
	r.append(ctx, f, api.EventFiberCancelled, "", "")
}
