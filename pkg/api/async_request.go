package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// CallCallback receives the outcome of an external call. Implementations
// supplied by the engine accept only the first report.
type CallCallback interface {
	OnSuccess(result any)
	OnFailure(err error)
}

// PendingCall is a handle to a started call. It may be nil when the call
// cannot be aborted.
type PendingCall interface {
	Cancel()
}

// AsyncCall starts an external operation and reports its outcome to cb,
// from any goroutine. A returned error means the call never started.
type AsyncCall func(ctx context.Context, cb CallCallback) (PendingCall, error)

// CallResponse is stored under KeyResponse when an Invoke completes.
type CallResponse struct {
	Result any
	Err    error
}

// CallFactory produces the external call made by an AsyncRequestStep.
type CallFactory interface {
	ProduceCall(ctx context.Context, params *Packet, cb CallCallback) (PendingCall, error)
}

// CallFactoryFunc adapts a function to CallFactory.
type CallFactoryFunc func(ctx context.Context, params *Packet, cb CallCallback) (PendingCall, error)

func (fn CallFactoryFunc) ProduceCall(ctx context.Context, params *Packet, cb CallCallback) (PendingCall, error) {
	return fn(ctx, params, cb)
}

// ErrorClass is the retry treatment of a call failure.
type ErrorClass uint8

const (
	ClassFatal ErrorClass = iota
	ClassTransient
	ClassConflict
)

// ErrorClassifier maps a call failure to an ErrorClass.
type ErrorClassifier func(err error) ErrorClass

// DefaultClassifier treats Transient errors, timeouts and deadline expiry as
// transient, Conflict errors as conflicts, and anything else as fatal.
func DefaultClassifier(err error) ErrorClass {
	switch {
	case IsConflict(err):
		return ClassConflict
	case IsTransient(err),
		errors.Is(err, ErrCallTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ClassTransient
	default:
		return ClassFatal
	}
}

// AsyncRequestStep issues an external call, parks the fiber until it
// reports back, and retries transient failures under a RetryStrategy.
//
// The strategy is created on first use by each fiber and kept as a fiber
// component until the call succeeds, so one AsyncRequestStep may be shared
// by any number of fibers.
type AsyncRequestStep struct {
	name        string
	factory     CallFactory
	next        Step
	resultKey   string
	newStrategy func() RetryStrategy
	conflict    Step
	timeout     time.Duration
	classify    ErrorClassifier
	onSuccess   func(f Fiber, p *Packet, result any) NextAction
	response    *responseStep
}

// RequestOption configures an AsyncRequestStep.
type RequestOption func(*AsyncRequestStep)

// WithStepName names the step in breadcrumbs and events.
func WithStepName(name string) RequestOption {
	return func(s *AsyncRequestStep) { s.name = name }
}

// WithResultKey sets the packet key the call result is written to.
func WithResultKey(key string) RequestOption {
	return func(s *AsyncRequestStep) { s.resultKey = key }
}

// WithRetryPolicy builds a DefaultRetryStrategy from policy per fiber.
func WithRetryPolicy(policy RetryPolicy) RequestOption {
	return func(s *AsyncRequestStep) {
		s.newStrategy = func() RetryStrategy { return policy.NewStrategy() }
	}
}

// WithRetryStrategy sets the constructor for per-fiber strategies.
func WithRetryStrategy(newStrategy func() RetryStrategy) RequestOption {
	return func(s *AsyncRequestStep) { s.newStrategy = newStrategy }
}

// WithConflictStep retries conflict failures at step instead of failing.
func WithConflictStep(step Step) RequestOption {
	return func(s *AsyncRequestStep) { s.conflict = step }
}

// WithCallTimeout fails an attempt with ErrCallTimeout when the call has
// not reported back within d.
func WithCallTimeout(d time.Duration) RequestOption {
	return func(s *AsyncRequestStep) { s.timeout = d }
}

// WithClassifier replaces DefaultClassifier.
func WithClassifier(c ErrorClassifier) RequestOption {
	return func(s *AsyncRequestStep) { s.classify = c }
}

// WithSuccessHandler replaces the default success handling, which writes the
// result to the result key and continues to the next step.
func WithSuccessHandler(fn func(f Fiber, p *Packet, result any) NextAction) RequestOption {
	return func(s *AsyncRequestStep) { s.onSuccess = fn }
}

// NewAsyncRequestStep returns a step that calls factory and continues to
// next with the result stored under KeyResult.
func NewAsyncRequestStep(factory CallFactory, next Step, opts ...RequestOption) *AsyncRequestStep {
	if factory == nil {
		panic("skein: nil call factory")
	}
	s := &AsyncRequestStep{
		name:      "request",
		factory:   factory,
		next:      next,
		resultKey: KeyResult,
		classify:  DefaultClassifier,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newStrategy == nil {
		policy := DefaultRetryPolicy()
		s.newStrategy = func() RetryStrategy { return policy.NewStrategy() }
	}
	s.response = &responseStep{req: s}
	return s
}

// Request returns a StepFactory for use with Chain.
func Request(factory CallFactory, opts ...RequestOption) StepFactory {
	return func(next Step) Step {
		return NewAsyncRequestStep(factory, next, opts...)
	}
}

func (s *AsyncRequestStep) Name() string { return s.name }

// Strategy returns the strategy f is currently using for this step.
func (s *AsyncRequestStep) Strategy(f Fiber) (RetryStrategy, bool) {
	return ComponentOf[RetryStrategy](f, s.componentKey())
}

func (s *AsyncRequestStep) componentKey() string {
	return fmt.Sprintf("skein.retry.%s.%p", s.name, s)
}

func (s *AsyncRequestStep) strategy(f Fiber) RetryStrategy {
	if st, ok := s.Strategy(f); ok {
		return st
	}
	st := s.newStrategy()
	f.SetComponent(s.componentKey(), st)
	return st
}

func (s *AsyncRequestStep) Apply(f Fiber, p *Packet) NextAction {
	// A listener may have stopped the strategy while the retry was pending.
	if st := s.strategy(f); st.Retries() > 0 && st.Exhausted() {
		f.SetComponent(s.componentKey(), nil)
		return Throw{Err: ExhaustedError(st)}
	}
	return Invoke{
		Call: func(ctx context.Context, cb CallCallback) (PendingCall, error) {
			return s.produce(ctx, p, cb)
		},
		Next: s.response,
	}
}

func (s *AsyncRequestStep) produce(ctx context.Context, p *Packet, cb CallCallback) (PendingCall, error) {
	if s.timeout <= 0 {
		return s.factory.ProduceCall(ctx, p, cb)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	guard := &timeoutCallback{cb: cb, cancel: cancel}
	pending, err := s.factory.ProduceCall(ctx, p, guard)
	if err != nil {
		cancel()
		return nil, err
	}
	guard.arm(s.timeout, pending)
	return pending, nil
}

type responseStep struct {
	req *AsyncRequestStep
}

func (r *responseStep) Name() string { return r.req.name + ".response" }

func (r *responseStep) Apply(f Fiber, p *Packet) NextAction {
	s := r.req
	resp, _ := Value[CallResponse](p, KeyResponse)
	st := s.strategy(f)

	if resp.Err == nil {
		f.SetComponent(s.componentKey(), nil)
		if s.onSuccess != nil {
			return s.onSuccess(f, p, resp.Result)
		}
		p.Put(s.resultKey, resp.Result)
		if s.next == nil {
			return Done{Result: resp.Result}
		}
		return Continue{Next: s.next}
	}

	class := s.classify(resp.Err)
	if class == ClassConflict && s.conflict == nil {
		class = ClassFatal
	}
	if class == ClassFatal {
		f.SetComponent(s.componentKey(), nil)
		return Throw{Err: resp.Err}
	}

	delay, ok := st.Backoff(resp.Err)
	if !ok {
		f.SetComponent(s.componentKey(), nil)
		return Throw{Err: ExhaustedError(st)}
	}
	target := Step(s)
	if class == ClassConflict {
		target = s.conflict
	}
	return Retry{Step: target, Delay: delay, Strategy: st}
}

// timeoutCallback forwards the first outcome and turns a missed deadline
// into ErrCallTimeout.
type timeoutCallback struct {
	cb     CallCallback
	cancel context.CancelFunc

	mu    sync.Mutex
	done  bool
	timer *time.Timer
}

func (t *timeoutCallback) arm(d time.Duration, pending PendingCall) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.timer = time.AfterFunc(d, func() {
		if t.claim() {
			if pending != nil {
				pending.Cancel()
			}
			t.cb.OnFailure(ErrCallTimeout)
		}
	})
}

func (t *timeoutCallback) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.cancel()
	return true
}

func (t *timeoutCallback) OnSuccess(result any) {
	if t.claim() {
		t.cb.OnSuccess(result)
	}
}

func (t *timeoutCallback) OnFailure(err error) {
	if t.claim() {
		t.cb.OnFailure(err)
	}
}
