package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/petrijr/skein/internal/taskqueue"
	"github.com/petrijr/skein/pkg/api"
	"github.com/petrijr/skein/pkg/log"
)

const (
	stateNotComplete int32 = iota
	stateDone
	stateCancelled
)

// waitKind records what a parked fiber is waiting for.
type waitKind uint8

const (
	waitNone waitKind = iota
	waitSuspend
	waitInvoke
	waitRetry
	waitChildren
)

type outcome struct {
	result any
	err    error
}

// fiber is the engine's api.Fiber.
//
// At most one goroutine owns a fiber at a time. running is true from the
// moment the fiber is put on the run queue until the owner parks it or it
// finishes; every wake-up path takes mu and either hands the fiber to a new
// owner or leaves a note for the current one.
type fiber struct {
	id        int64
	name      string
	eng       *engineImpl
	parent    *fiber
	linked    bool
	ctx       context.Context
	cancelCtx context.CancelFunc
	crumbs    *breadcrumbs

	status atomic.Int32

	mu      sync.Mutex
	started bool
	running bool
	step    api.Step
	packet  *api.Packet
	cb      api.CompletionCallback
	last    api.NextAction

	// waiting and epoch identify the current suspension; wake-ups for an
	// older epoch are dropped.
	waiting     waitKind
	epoch       uint64
	wakePending bool
	wakePacket  *api.Packet
	response    *api.CallResponse
	timer       api.Cancelable

	// permit is a Resume that arrived while a step was executing.
	permit       bool
	permitPacket *api.Packet

	// woken is set once the current suspension has been resumed and stays
	// set until the run loop applies the next step. Resumes in between are
	// duplicates of the one that woke the fiber.
	woken bool

	children []*fiber
	live     int
	pending  *outcome

	components     map[string]any
	cancelReported bool
}

var _ api.Fiber = (*fiber)(nil)

func (f *fiber) ID() int64                { return f.id }
func (f *fiber) Name() string             { return f.name }
func (f *fiber) Context() context.Context { return f.ctx }

func (f *fiber) Status() api.Status {
	switch f.status.Load() {
	case stateDone:
		return api.StatusDone
	case stateCancelled:
		return api.StatusCancelled
	default:
		return api.StatusNotComplete
	}
}

func (f *fiber) String() string {
	if f.parent != nil {
		return fmt.Sprintf("%s(parent=%s, %s)", f.name, f.parent.name, f.Status())
	}
	return fmt.Sprintf("%s(%s)", f.name, f.Status())
}

func (f *fiber) Parent() api.Fiber {
	if f.parent == nil {
		return nil
	}
	return f.parent
}

func (f *fiber) Children() []api.Fiber {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.Fiber, len(f.children))
	for i, c := range f.children {
		out[i] = c
	}
	return out
}

func (f *fiber) Component(name string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.components[name]
	return v, ok
}

func (f *fiber) SetComponent(name string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v == nil {
		delete(f.components, name)
		return
	}
	if f.components == nil {
		f.components = make(map[string]any)
	}
	f.components[name] = v
}

func (f *fiber) Breadcrumbs() []api.Breadcrumb {
	if f.crumbs == nil {
		return nil
	}
	return f.crumbs.list()
}

func (f *fiber) LastAction() api.NextAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *fiber) Packet() *api.Packet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packet
}

func (f *fiber) Start(head api.Step, p *api.Packet, cb api.CompletionCallback) error {
	if head == nil {
		return api.ErrNilStep
	}
	if f.eng.stopped.Load() {
		return api.ErrEngineStopped
	}
	if p == nil {
		p = api.NewPacket()
	}

	f.mu.Lock()
	if f.started {
		f.mu.Unlock()
		return api.ErrFiberStarted
	}
	f.started = true
	if f.status.Load() != stateNotComplete {
		f.mu.Unlock()
		return api.ErrCancelled
	}
	f.step, f.packet, f.cb = head, p, cb
	f.running = true
	f.mu.Unlock()

	if err := f.eng.fibers.Register(f); err != nil {
		f.abandon()
		return err
	}
	f.eng.observer.OnFiberStart(f.ctx, f)
	if err := f.eng.submit(f, taskqueue.TaskTypeStart); err != nil {
		if f.abandon() {
			f.eng.observer.OnFiberCancelled(context.WithoutCancel(f.ctx), f)
		}
		return err
	}
	return nil
}

func (f *fiber) Resume(p *api.Packet) {
	f.mu.Lock()
	if !f.started || f.status.Load() != stateNotComplete {
		f.mu.Unlock()
		return
	}

	if f.waiting == waitSuspend {
		f.waiting = waitNone
		f.woken = true
		if f.running {
			// The owner is still inside OnSuspend; it picks this up itself.
			f.wakePending = true
			f.wakePacket = p
			f.mu.Unlock()
			return
		}
		if p != nil {
			f.packet = p
		}
		f.running = true
		f.mu.Unlock()

		f.eng.observer.OnFiberResumed(f.ctx, f)
		f.resubmit(taskqueue.TaskTypeResume)
		return
	}
	if f.woken {
		f.mu.Unlock()
		return
	}

	f.permit = true
	if p != nil {
		f.permitPacket = p
	}
	f.mu.Unlock()
}

func (f *fiber) Cancel() bool {
	if !f.status.CompareAndSwap(stateNotComplete, stateCancelled) {
		return false
	}
	f.cancelCtx()

	f.mu.Lock()
	timer := f.timer
	f.timer = nil
	f.pending = nil
	children := slices.Clone(f.children)
	started := f.started
	report := started && !f.running && !f.cancelReported
	if report || !started {
		f.cancelReported = true
	}
	f.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	for _, c := range children {
		c.Cancel()
	}
	if f.linked {
		f.parent.childTerminated(f)
	}
	if report {
		f.reportCancel()
	} else if !started {
		f.release()
	}
	return true
}

func (f *fiber) CreateChild(head api.Step, p *api.Packet, cb api.CompletionCallback) api.Fiber {
	child := f.eng.newFiber(f)
	if head == nil {
		head = api.StepFunc(func(api.Fiber, *api.Packet) api.NextAction {
			return api.Throw{Err: api.ErrNilStep}
		})
	}

	f.mu.Lock()
	if p == nil {
		p = f.packet.Copy()
	}
	if f.status.Load() != stateNotComplete {
		f.mu.Unlock()
		child.Cancel()
		return child
	}
	child.linked = true
	f.children = append(f.children, child)
	f.live++
	f.mu.Unlock()

	if err := child.Start(head, p, cb); err != nil {
		f.eng.logger.Warn("child fiber not started",
			log.FiberID(child.id),
			log.ParentID(f.id),
			log.Error(err),
		)
		child.abandon()
	}
	return child
}

// abandon drops a fiber that never ran a step. It reports whether the fiber
// was still live.
func (f *fiber) abandon() bool {
	if !f.status.CompareAndSwap(stateNotComplete, stateCancelled) {
		return false
	}
	f.mu.Lock()
	f.running = false
	f.cancelReported = true
	f.mu.Unlock()

	f.release()
	if f.linked {
		f.parent.childTerminated(f)
	}
	return true
}

// childTerminated is called exactly once per linked child, when the child
// reaches a terminal status.
func (f *fiber) childTerminated(*fiber) {
	f.mu.Lock()
	f.live--
	var o *outcome
	if f.live == 0 && f.pending != nil {
		o = f.pending
		f.pending = nil
	}
	f.mu.Unlock()

	if o != nil {
		f.complete(*o)
	}
}

func (f *fiber) liveChildrenLocked() []*fiber {
	var out []*fiber
	for _, c := range f.children {
		if c.status.Load() == stateNotComplete {
			out = append(out, c)
		}
	}
	return out
}

// yieldLocked gives up ownership. It reports whether a cancellation that
// happened while the fiber was owned must now be reported by the caller.
func (f *fiber) yieldLocked() bool {
	f.running = false
	if f.status.Load() == stateCancelled && !f.cancelReported {
		f.cancelReported = true
		return true
	}
	return false
}

func (f *fiber) resubmit(typ taskqueue.TaskType) {
	if err := f.eng.submit(f, typ); err == nil {
		return
	}
	f.mu.Lock()
	report := f.yieldLocked()
	f.mu.Unlock()
	if report {
		f.reportCancel()
		return
	}
	f.Cancel()
}

func (f *fiber) reportCancel() {
	f.mu.Lock()
	cb, p := f.cb, f.packet
	f.mu.Unlock()

	f.release()
	f.eng.observer.OnFiberCancelled(context.WithoutCancel(f.ctx), f)
	if cc, ok := cb.(api.CancellationCallback); ok {
		cc.OnCancel(p)
	}
}

// release frees the fiber's context, timer, components and registry entry.
func (f *fiber) release() {
	f.cancelCtx()

	f.mu.Lock()
	timer := f.timer
	f.timer = nil
	f.components = nil
	f.mu.Unlock()

	if timer != nil {
		timer.Cancel()
	}
	f.eng.fibers.Remove(f.id)
}
