package persistence

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/skein/internal/engine"
	"github.com/petrijr/skein/pkg/api"
)

func eventTypes(evs []api.FiberEvent) []api.EventType {
	out := make([]api.EventType, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}

func runFiber(t *testing.T, eng api.Engine, head api.Step) api.Fiber {
	t.Helper()
	done := make(chan struct{})
	f, err := eng.StartFiber(head, nil, api.Callbacks{
		Success: func(*api.Packet, any) { close(done) },
		Failure: func(*api.Packet, error) { close(done) },
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("fiber did not finish")
	}
	return f
}

func TestRecorderWritesLifecycle(t *testing.T) {
	store := NewInMemoryEventStore()
	rec := NewRecorder(store, "orders", nil)
	eng := engine.NewEngineWithConfig(engine.Config{ID: "orders", Workers: 2, Observer: rec})
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	f := runFiber(t, eng, api.Chain(
		api.Then("validate", func(api.Fiber, *api.Packet) error { return nil }),
		api.Sleep(time.Millisecond),
	))

	var evs []api.FiberEvent
	require.Eventually(t, func() bool {
		evs, _ = store.ListEvents(context.Background(), "orders", f.ID())
		return len(evs) > 0 && evs[len(evs)-1].Type == api.EventFiberCompleted
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []api.EventType{
		api.EventFiberStarted,
		api.EventStepApplied,
		api.EventStepApplied,
		api.EventRetryScheduled,
		api.EventFiberResumed,
		api.EventStepApplied,
		api.EventFiberCompleted,
	}, eventTypes(evs))

	assert.Equal(t, "validate", evs[1].Step)
	assert.Contains(t, evs[1].Detail, "action=continue")
	assert.Contains(t, evs[3].Detail, "attempt=0")
	for _, ev := range evs {
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, "orders", ev.EngineID)
		assert.Zero(t, ev.ParentID)
	}
}

func TestRecorderRecordsFailureAndParent(t *testing.T) {
	store := NewInMemoryEventStore()
	eng := engine.NewEngineWithConfig(engine.Config{ID: "e", Observer: NewRecorder(store, "e", nil)})
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	boom := errors.New("child exploded")
	f := runFiber(t, eng, api.Chain(
		api.Fork(api.JoinAll, "results", api.Branch{
			Name: "bad",
			Step: api.StepFunc(func(api.Fiber, *api.Packet) api.NextAction { return api.Throw{Err: boom} }),
		}),
	))

	children := f.Children()
	require.Len(t, children, 1)
	childEvents, err := store.ListEvents(context.Background(), "e", children[0].ID())
	require.NoError(t, err)
	require.NotEmpty(t, childEvents)
	assert.Equal(t, f.ID(), childEvents[0].ParentID)

	last := childEvents[len(childEvents)-1]
	assert.Equal(t, api.EventFiberFailed, last.Type)
	assert.Equal(t, "child exploded", last.Detail)
}

type failingStore struct{ NoopEventStore }

func (failingStore) AppendEvent(context.Context, api.FiberEvent) error {
	return errors.New("disk full")
}

func TestRecorderLogsAppendFailures(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	eng := engine.NewEngineWithConfig(engine.Config{Observer: NewRecorder(failingStore{}, "e", logger)})
	t.Cleanup(func() { _ = eng.Stop(context.Background()) })

	runFiber(t, eng, api.StepFunc(func(api.Fiber, *api.Packet) api.NextAction {
		return api.Done{Result: "fine"}
	}))

	assert.Contains(t, buf.String(), "fiber history append failed")
	assert.Contains(t, buf.String(), "disk full")
}
