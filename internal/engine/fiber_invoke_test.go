package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/skein/internal/testutil"
	"github.com/petrijr/skein/pkg/api"
)

// immediate retries without touching the scheduler.
func immediatePolicy(maxRetries int) api.RetryPolicy {
	return api.RetryPolicy{MaxRetries: maxRetries}
}

func TestInvokeDeliversResponse(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	for _, inline := range []bool{false, true} {
		factory := testutil.NewScriptedFactory(testutil.Outcome{Result: "pong"})
		factory.Sync = inline

		rec := newRecorder()
		p := api.NewPacket()
		_, err := e.StartFiber(api.Chain(api.Request(factory, api.WithResultKey("reply"))), p, rec)
		require.NoError(t, err)
		rec.wait(t)

		v, ok := api.Value[string](p, "reply")
		require.True(t, ok, "inline=%v", inline)
		assert.Equal(t, "pong", v)

		resp, ok := api.Value[api.CallResponse](p, api.KeyResponse)
		require.True(t, ok)
		assert.Equal(t, "pong", resp.Result)
		assert.Equal(t, 1, factory.Calls())
	}
}

func TestInvokeWithoutNextReturnsResult(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	factory := testutil.NewScriptedFactory(testutil.Outcome{Result: 42})
	rec := newRecorder()
	_, err := e.StartFiber(api.NewAsyncRequestStep(factory, nil), nil, rec)
	require.NoError(t, err)
	rec.wait(t)
	assert.Equal(t, 42, rec.Result())
}

func TestInvokeFatalErrorFailsFiber(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	denied := errors.New("denied")
	factory := testutil.NewScriptedFactory(testutil.Outcome{Err: denied})
	rec := newRecorder()
	_, err := e.StartFiber(api.Chain(api.Request(factory)), nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	assert.ErrorIs(t, rec.Err(), denied)
	assert.Equal(t, 1, factory.Calls(), "fatal errors are not retried")
}

func TestInvokeStartErrorFailsFiber(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	refused := errors.New("connection refused")
	rec := newRecorder()
	head := api.NamedStep("call", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Invoke{
			Call: func(context.Context, api.CallCallback) (api.PendingCall, error) {
				return nil, refused
			},
			Next: doneStep(nil),
		}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	rec.wait(t)
	assert.ErrorIs(t, rec.Err(), refused)
}

func TestInvokeReportsOnlyFirstOutcome(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	rec := newRecorder()
	head := api.NamedStep("call", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Invoke{
			Call: func(_ context.Context, cb api.CallCallback) (api.PendingCall, error) {
				go func() {
					cb.OnSuccess("first")
					cb.OnFailure(errors.New("second"))
					cb.OnSuccess("third")
				}()
				return nil, nil
			},
			Next: api.NamedStep("read", func(_ api.Fiber, p *api.Packet) api.NextAction {
				resp, _ := api.Value[api.CallResponse](p, api.KeyResponse)
				return api.Done{Result: resp.Result}
			}),
		}
	})
	_, err := e.StartFiber(head, nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, "first", rec.Result())
	s, f, _ := rec.counts()
	assert.Equal(t, int32(1), s)
	assert.Zero(t, f)
}

func TestRetryBudget(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})
	transient := api.Transient(errors.New("unavailable"))

	t.Run("three failures exhaust three retries", func(t *testing.T) {
		factory := testutil.NewScriptedFactory(
			testutil.Outcome{Err: transient},
			testutil.Outcome{Err: transient},
			testutil.Outcome{Err: transient},
			testutil.Outcome{Result: "too late"},
		)
		rec := newRecorder()
		_, err := e.StartFiber(api.Chain(api.Request(factory, api.WithRetryPolicy(immediatePolicy(3)))), nil, rec)
		require.NoError(t, err)
		rec.wait(t)

		require.ErrorIs(t, rec.Err(), api.ErrRetriesExhausted)
		var re *api.RetriesExhaustedError
		require.ErrorAs(t, rec.Err(), &re)
		assert.Equal(t, 3, re.Retries)
		assert.ErrorIs(t, re, transient)
		assert.Equal(t, 3, factory.Calls())
	})

	t.Run("four attempts succeed after three failures", func(t *testing.T) {
		factory := testutil.NewScriptedFactory(
			testutil.Outcome{Err: transient},
			testutil.Outcome{Err: transient},
			testutil.Outcome{Err: transient},
			testutil.Outcome{Result: "finally"},
		)
		var strategy *api.DefaultRetryStrategy
		newStrategy := func() api.RetryStrategy {
			strategy = immediatePolicy(4).NewStrategy()
			return strategy
		}
		rec := newRecorder()
		_, err := e.StartFiber(api.Chain(api.Request(factory, api.WithRetryStrategy(newStrategy))), nil, rec)
		require.NoError(t, err)
		rec.wait(t)

		require.NoError(t, rec.Err())
		assert.Equal(t, "finally", rec.Result())
		assert.Equal(t, 3, strategy.Retries())
		assert.Equal(t, 4, factory.Calls())
	})
}

func TestRetryWaitsForScheduler(t *testing.T) {
	t.Parallel()
	sched := testutil.NewManualScheduler()
	obs := &fakeObserver{}
	e := newTestEngine(t, Config{Scheduler: sched, Observer: obs})

	policy := api.RetryPolicy{MaxRetries: 5, Low: 1, High: 3, Scale: time.Second}
	factory := testutil.NewScriptedFactory(
		testutil.Outcome{Err: api.Transient(errors.New("busy"))},
		testutil.Outcome{Err: api.Transient(errors.New("busy"))},
		testutil.Outcome{Result: "ok"},
	)
	rec := newRecorder()
	_, err := e.StartFiber(api.Chain(api.Request(factory, api.WithRetryPolicy(policy), api.WithStepName("lookup"))), nil, rec)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		require.True(t, sched.WaitPending(1, waitTimeout), "retry %d not scheduled", i)
		assert.Equal(t, i, factory.Calls(), "no attempt may run before the delay fires")
		require.Equal(t, 1, sched.FireAll())
	}
	rec.wait(t)
	assert.Equal(t, "ok", rec.Result())

	delays := sched.Delays()
	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, 3*time.Second)
	}

	got := obs.snapshot()
	require.Len(t, got.retries, 2)
	assert.Equal(t, "lookup", got.retries[0].Step)
	assert.Equal(t, 1, got.retries[0].Attempt)
	assert.Equal(t, 2, got.retries[1].Attempt)
}

func TestRetryStoppedByListener(t *testing.T) {
	t.Parallel()
	sched := testutil.NewManualScheduler()
	e := newTestEngine(t, Config{Scheduler: sched})

	var strategy *api.DefaultRetryStrategy
	factory := testutil.NewScriptedFactory(testutil.Outcome{Err: api.Transient(errors.New("down"))})
	rec := newRecorder()
	_, err := e.StartFiber(api.Chain(api.Request(factory, api.WithRetryStrategy(func() api.RetryStrategy {
		strategy = api.RetryPolicy{MaxRetries: 10, Low: 1, High: 2, Scale: time.Second}.NewStrategy()
		return strategy
	}))), nil, rec)
	require.NoError(t, err)

	require.True(t, sched.WaitPending(1, waitTimeout))
	var listener api.RetryStrategyListener = strategy
	listener.StopRetrying()
	sched.FireAll()
	rec.wait(t)

	assert.ErrorIs(t, rec.Err(), api.ErrRetriesExhausted)
	assert.Equal(t, 1, factory.Calls())
}

func TestCallTimeoutCountsAsTransient(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	factory := testutil.NewScriptedFactory(testutil.Outcome{Hold: true})
	rec := newRecorder()
	_, err := e.StartFiber(api.Chain(api.Request(factory,
		api.WithCallTimeout(20*time.Millisecond),
		api.WithRetryPolicy(immediatePolicy(1)),
	)), nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	require.ErrorIs(t, rec.Err(), api.ErrRetriesExhausted)
	assert.ErrorIs(t, rec.Err(), api.ErrCallTimeout)

	held := factory.Pending()
	require.Len(t, held, 1)
	assert.True(t, held[0].Cancelled())
	assert.Error(t, held[0].Ctx.Err(), "the attempt context ends with the timeout")
}

func TestConflictRetriesAtConflictStep(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	factory := testutil.NewScriptedFactory(
		testutil.Outcome{Err: api.Conflict(errors.New("stale version"))},
		testutil.Outcome{Result: "saved"},
	)
	var req *api.AsyncRequestStep
	refresh := api.NamedStep("refresh", func(_ api.Fiber, p *api.Packet) api.NextAction {
		p.Put("refreshed", true)
		return api.Continue{Next: req}
	})
	req = api.NewAsyncRequestStep(factory, api.End(),
		api.WithConflictStep(refresh),
		api.WithRetryPolicy(immediatePolicy(3)),
	)

	rec := newRecorder()
	p := api.NewPacket()
	_, err := e.StartFiber(req, p, rec)
	require.NoError(t, err)
	rec.wait(t)

	require.NoError(t, rec.Err())
	assert.Equal(t, "saved", rec.Result())
	assert.True(t, p.Has("refreshed"))
}

func TestConflictWithoutConflictStepIsFatal(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	conflict := api.Conflict(errors.New("stale version"))
	factory := testutil.NewScriptedFactory(testutil.Outcome{Err: conflict})
	rec := newRecorder()
	_, err := e.StartFiber(api.Chain(api.Request(factory)), nil, rec)
	require.NoError(t, err)
	rec.wait(t)

	assert.ErrorIs(t, rec.Err(), conflict)
	assert.Equal(t, 1, factory.Calls())
}

func TestRetryStrategyIsPerFiber(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, Config{})

	transient := api.Transient(errors.New("flaky"))
	factory := api.CallFactoryFunc(func(_ context.Context, p *api.Packet, cb api.CallCallback) (api.PendingCall, error) {
		n, _ := api.Value[int](p, "attempts")
		p.Put("attempts", n+1)
		if n < 2 {
			go cb.OnFailure(transient)
		} else {
			go cb.OnSuccess(n)
		}
		return nil, nil
	})
	shared := api.NewAsyncRequestStep(factory, nil, api.WithRetryPolicy(immediatePolicy(3)))

	recs := make([]*recorder, 10)
	for i := range recs {
		recs[i] = newRecorder()
		_, err := e.StartFiber(shared, nil, recs[i])
		require.NoError(t, err)
	}
	for _, rec := range recs {
		rec.wait(t)
		require.NoError(t, rec.Err())
		assert.Equal(t, 2, rec.Result())
	}
}
