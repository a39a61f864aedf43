package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/skein/pkg/api"
)

func TestSuspendParksUntilResume(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	parked := make(chan struct{})
	var after atomic.Int32
	head := api.NamedStep("wait", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Suspend{
			Next: api.NamedStep("after", func(api.Fiber, *api.Packet) api.NextAction {
				after.Add(1)
				return api.Done{Result: "resumed"}
			}),
			OnSuspend: func(api.Fiber) { close(parked) },
		}
	})

	rec := newRecorder()
	f, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	<-parked

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, after.Load(), "next step must not run before Resume")
	assert.Equal(t, api.StatusNotComplete, f.Status())

	require.NoError(t, e.Resume(f.ID(), nil))
	rec.wait(t)
	assert.Equal(t, int32(1), after.Load())
	assert.Equal(t, "resumed", rec.Result())
}

func TestConcurrentResumeRunsNextStepOnce(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{Workers: 8})

	for round := 0; round < 50; round++ {
		parked := make(chan api.Fiber, 1)
		var runs atomic.Int32
		head := api.NamedStep("wait", func(api.Fiber, *api.Packet) api.NextAction {
			return api.Suspend{
				Next: api.NamedStep("after", func(api.Fiber, *api.Packet) api.NextAction {
					runs.Add(1)
					return api.Done{}
				}),
				OnSuspend: func(f api.Fiber) { parked <- f },
			}
		})

		rec := newRecorder()
		_, err := e.StartFiber(head, nil, rec)
		require.NoError(t, err)
		f := <-parked

		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.Resume(nil)
			}()
		}
		wg.Wait()
		rec.wait(t)

		require.Equal(t, int32(1), runs.Load(), "round %d", round)
		s, _, _ := rec.counts()
		require.Equal(t, int32(1), s, "round %d", round)
	}
}

func TestResumeInsideOnSuspend(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	rec := newRecorder()
	head := api.NamedStep("wait", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Suspend{
			Next:      doneStep("same goroutine"),
			OnSuspend: func(f api.Fiber) { f.Resume(nil) },
		}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	rec.wait(t)
	assert.Equal(t, "same goroutine", rec.Result())
}

func TestResumeBeforeSuspendIsLatched(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	resumed := make(chan struct{})
	rec := newRecorder()
	head := api.NamedStep("early", func(f api.Fiber, _ *api.Packet) api.NextAction {
		// The resume lands while this step still owns the fiber.
		f.Resume(api.NewPacket().With("approved", true))
		close(resumed)
		return api.Suspend{Next: api.NamedStep("check", func(_ api.Fiber, p *api.Packet) api.NextAction {
			v, _ := api.Value[bool](p, "approved")
			return api.Done{Result: v}
		})}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	<-resumed
	rec.wait(t)
	assert.Equal(t, true, rec.Result())
}

func TestResumeReplacesPacket(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	parked := make(chan api.Fiber, 1)
	rec := newRecorder()
	head := api.Chain(
		api.WaitForResume("wait", func(f api.Fiber) { parked <- f }),
		api.Result(func(p *api.Packet) any {
			v, _ := api.Value[string](p, "decision")
			return v
		}),
	)
	_, err := e.StartFiber(head, api.NewPacket().With("decision", "pending"), rec)
	require.NoError(t, err)

	f := <-parked
	f.Resume(api.NewPacket().With("decision", "approved"))
	rec.wait(t)
	assert.Equal(t, "approved", rec.Result())
}

func TestResumeAfterCompletionIsIgnored(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	rec := newRecorder()
	f, err := e.StartFiber(doneStep(1), nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	f.Resume(nil)
	assert.ErrorIs(t, e.Resume(f.ID(), nil), api.ErrFiberNotFound)
	s, _, _ := rec.counts()
	assert.Equal(t, int32(1), s)
}

func TestSuspendHookPanicFailsFiber(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	rec := newRecorder()
	head := api.NamedStep("wait", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Suspend{Next: doneStep(nil), OnSuspend: func(api.Fiber) { panic("hook") }}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	var pe *api.PanicError
	require.ErrorAs(t, rec.Err(), &pe)
	assert.Equal(t, "hook", pe.Value)
}

func TestLookupFindsSuspendedFiber(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	parked := make(chan struct{})
	rec := newRecorder()
	f, err := e.StartFiber(api.Chain(
		api.WaitForResume("wait", func(api.Fiber) { close(parked) }),
	), nil, rec)
	require.NoError(t, err)
	<-parked

	got, ok := e.Lookup(f.ID())
	require.True(t, ok)
	assert.Equal(t, f.ID(), got.ID())
	assert.Equal(t, 1, e.Active())

	require.NoError(t, e.Resume(f.ID(), nil))
	rec.wait(t)
	waitFor(t, func() bool { return e.Active() == 0 }, "fiber to leave the registry")
}

func TestDuplicateResumeDoesNotSkipNextSuspension(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{Workers: 1})

	first := make(chan api.Fiber, 1)
	second := make(chan struct{})
	rec := newRecorder()
	head := api.NamedStep("first", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Suspend{
			Next: api.NamedStep("second", func(api.Fiber, *api.Packet) api.NextAction {
				return api.Suspend{
					Next:      doneStep("finished"),
					OnSuspend: func(api.Fiber) { close(second) },
				}
			}),
			OnSuspend: func(f api.Fiber) { first <- f },
		}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	f := <-first

	// Hold the only worker so both resumes land while the fiber is queued.
	release := blockWorker(t, e)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Resume(nil)
		}()
	}
	wg.Wait()
	release()

	select {
	case <-second:
	case <-time.After(waitTimeout):
		t.Fatalf("fiber did not reach the second suspension")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, api.StatusNotComplete, f.Status())
	s, _, _ := rec.counts()
	assert.Zero(t, s)

	f.Resume(nil)
	rec.wait(t)
	assert.Equal(t, "finished", rec.Result())
}
