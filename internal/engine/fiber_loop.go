package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/petrijr/skein/internal/taskqueue"
	"github.com/petrijr/skein/pkg/api"
)

var errCallFailedWithoutError = errors.New("skein: call failed without error")

// run drives the fiber on the current pool goroutine until it parks,
// finishes or is cancelled.
func (f *fiber) run(context.Context) {
	for {
		f.mu.Lock()
		if f.status.Load() != stateNotComplete {
			timer := f.timer
			f.timer = nil
			report := f.yieldLocked()
			f.mu.Unlock()
			if timer != nil {
				timer.Cancel()
			}
			if report {
				f.reportCancel()
			}
			return
		}
		f.woken = false
		step, p := f.step, f.packet
		if f.response != nil {
			p.Put(api.KeyResponse, *f.response)
			f.response = nil
		}
		f.mu.Unlock()

		start := time.Now()
		action := f.apply(step, p)
		elapsed := time.Since(start)
		name := api.StepName(step)
		kind := api.KindOf(action)

		f.mu.Lock()
		f.last = action
		f.mu.Unlock()
		if f.crumbs != nil {
			f.crumbs.add(api.Breadcrumb{Step: name, Action: kind, At: start})
		}
		f.eng.observer.OnStepApplied(f.ctx, f, name, kind, elapsed)

		if !f.dispatch(step, action) {
			return
		}
	}
}

// apply runs one step, turning a panic into a Throw.
func (f *fiber) apply(step api.Step, p *api.Packet) (action api.NextAction) {
	defer func() {
		if r := recover(); r != nil {
			action = api.Throw{Err: api.RecoveredError(r)}
		}
	}()
	return step.Apply(f, p)
}

// dispatch acts on the action returned by current. It returns true when the
// loop should continue on this goroutine.
func (f *fiber) dispatch(current api.Step, action api.NextAction) bool {
	if f.status.Load() != stateNotComplete {
		// Cancelled while the step ran; the loop reports it.
		return true
	}

	switch a := action.(type) {
	case api.Continue:
		if a.Next == nil {
			return f.fail(api.ErrNoNextStep)
		}
		f.setStep(a.Next)
		return true

	case api.Done:
		f.finish(outcome{result: a.Result})
		return false

	case api.Throw:
		err := a.Err
		if err == nil {
			err = api.ErrNilThrow
		}
		return f.fail(err)

	case api.Retry:
		return f.retry(current, a)

	case api.Suspend:
		if a.Next == nil {
			return f.fail(api.ErrNoNextStep)
		}
		f.eng.observer.OnFiberSuspended(f.ctx, f, api.ActionSuspend)
		return f.park(waitSuspend, a.Next, func(uint64) error {
			if a.OnSuspend == nil {
				return nil
			}
			return safely(func() { a.OnSuspend(f) })
		})

	case api.Invoke:
		if a.Next == nil {
			return f.fail(api.ErrNoNextStep)
		}
		if a.Call == nil {
			return f.fail(fmt.Errorf("invoke without call: %w", api.ErrNilStep))
		}
		f.eng.observer.OnFiberSuspended(f.ctx, f, api.ActionInvoke)
		return f.park(waitInvoke, a.Next, func(epoch uint64) error {
			cb := &callCallback{f: f, epoch: epoch}
			var startErr error
			if err := safely(func() { _, startErr = a.Call(f.ctx, cb) }); err != nil {
				return err
			}
			return startErr
		})

	case nil:
		return f.fail(api.ErrNilAction)

	default:
		return f.fail(fmt.Errorf("skein: unsupported action %T", action))
	}
}

func (f *fiber) fail(err error) bool {
	f.finish(outcome{err: err})
	return false
}

func (f *fiber) setStep(s api.Step) {
	f.mu.Lock()
	f.step = s
	f.mu.Unlock()
}

func (f *fiber) retry(current api.Step, a api.Retry) bool {
	if a.Strategy != nil && a.Strategy.Exhausted() {
		return f.fail(api.ExhaustedError(a.Strategy))
	}
	target := a.Step
	if target == nil {
		target = current
	}
	attempt := 0
	if a.Strategy != nil {
		attempt = a.Strategy.Retries()
	}
	f.eng.observer.OnRetryScheduled(f.ctx, f, api.StepName(target), a.Delay, attempt)

	if a.Delay <= 0 {
		f.setStep(target)
		return true
	}
	return f.park(waitRetry, target, func(epoch uint64) error {
		t := f.eng.sched.ScheduleOnce(a.Delay, func() {
			f.wake(epoch, nil, taskqueue.TaskTypeRetry)
		})
		f.mu.Lock()
		keep := f.epoch == epoch && f.waiting == waitRetry
		if keep {
			f.timer = t
		}
		f.mu.Unlock()
		if !keep {
			t.Cancel()
		}
		return nil
	})
}

// park records a suspension at next, runs hook, and then either keeps the
// goroutine (a wake-up already arrived) or releases it. It returns true
// when the loop should continue.
func (f *fiber) park(kind waitKind, next api.Step, hook func(epoch uint64) error) bool {
	f.mu.Lock()
	f.step = next
	f.epoch++
	epoch := f.epoch
	f.waiting = kind
	f.wakePending = false
	f.mu.Unlock()

	err := hook(epoch)

	f.mu.Lock()
	if err != nil {
		f.waiting = waitNone
		f.wakePending = false
		f.response = nil
		f.epoch++
		f.mu.Unlock()
		return f.fail(err)
	}
	if f.status.Load() != stateNotComplete {
		f.waiting = waitNone
		f.mu.Unlock()
		return true
	}
	if f.wakePending {
		f.wakePending = false
		if f.wakePacket != nil {
			f.packet = f.wakePacket
			f.wakePacket = nil
		}
		f.mu.Unlock()
		f.eng.observer.OnFiberResumed(f.ctx, f)
		return true
	}
	if kind == waitSuspend && f.permit {
		f.permit = false
		f.waiting = waitNone
		f.woken = true
		if f.permitPacket != nil {
			f.packet = f.permitPacket
			f.permitPacket = nil
		}
		f.mu.Unlock()
		f.eng.observer.OnFiberResumed(f.ctx, f)
		return true
	}
	report := f.yieldLocked()
	f.mu.Unlock()
	if report {
		f.reportCancel()
	}
	return false
}

// wake ends the suspension identified by epoch. Stale or late wake-ups,
// including call completions on a cancelled fiber, are dropped.
func (f *fiber) wake(epoch uint64, resp *api.CallResponse, typ taskqueue.TaskType) {
	f.mu.Lock()
	if f.status.Load() != stateNotComplete || f.epoch != epoch || f.waiting == waitNone {
		f.mu.Unlock()
		return
	}
	f.waiting = waitNone
	f.timer = nil
	f.response = resp
	if f.running {
		f.wakePending = true
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	f.eng.observer.OnFiberResumed(f.ctx, f)
	f.resubmit(typ)
}

// finish completes the fiber, or parks the outcome until the last live
// child terminates. A failing fiber cancels its live children first.
func (f *fiber) finish(o outcome) {
	f.mu.Lock()
	if f.live > 0 {
		f.pending = &o
		f.waiting = waitChildren
		var live []*fiber
		if o.err != nil {
			live = f.liveChildrenLocked()
		}
		report := f.yieldLocked()
		f.mu.Unlock()
		if report {
			f.reportCancel()
			return
		}
		for _, c := range live {
			c.Cancel()
		}
		return
	}
	report := f.yieldLocked()
	f.mu.Unlock()
	if report {
		f.reportCancel()
		return
	}
	f.complete(o)
}

func (f *fiber) complete(o outcome) {
	if !f.status.CompareAndSwap(stateNotComplete, stateDone) {
		// Cancel won the race and reports it.
		return
	}

	f.mu.Lock()
	cb, p := f.cb, f.packet
	f.waiting = waitNone
	f.pending = nil
	f.mu.Unlock()

	f.release()
	ctx := context.WithoutCancel(f.ctx)
	if o.err != nil {
		f.eng.observer.OnFiberFailed(ctx, f, o.err)
		if cb != nil {
			cb.OnFailure(p, o.err)
		}
	} else {
		f.eng.observer.OnFiberCompleted(ctx, f, o.result)
		if cb != nil {
			cb.OnSuccess(p, o.result)
		}
	}

	if f.linked {
		f.parent.childTerminated(f)
	}
}

// callCallback accepts the first outcome of one Invoke.
type callCallback struct {
	f     *fiber
	epoch uint64
	once  sync.Once
}

func (c *callCallback) OnSuccess(result any) {
	c.once.Do(func() {
		c.f.wake(c.epoch, &api.CallResponse{Result: result}, taskqueue.TaskTypeResume)
	})
}

func (c *callCallback) OnFailure(err error) {
	if err == nil {
		err = errCallFailedWithoutError
	}
	c.once.Do(func() {
		c.f.wake(c.epoch, &api.CallResponse{Err: err}, taskqueue.TaskTypeResume)
	})
}

func safely(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = api.RecoveredError(r)
		}
	}()
	fn()
	return nil
}
