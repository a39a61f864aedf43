package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/skein/pkg/api"
)

const waitTimeout = 2 * time.Second

func newTestEngine(t *testing.T, cfg Config) *engineImpl {
	t.Helper()
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	e := newEngine(cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

// recorder is a CompletionCallback that counts every notification.
type recorder struct {
	successes atomic.Int32
	failures  atomic.Int32
	cancels   atomic.Int32

	mu     sync.Mutex
	result any
	err    error
	packet *api.Packet

	done chan struct{}
	once sync.Once
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) OnSuccess(p *api.Packet, result any) {
	r.successes.Add(1)
	r.mu.Lock()
	r.result, r.packet = result, p
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder) OnFailure(p *api.Packet, err error) {
	r.failures.Add(1)
	r.mu.Lock()
	r.err, r.packet = err, p
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder) OnCancel(p *api.Packet) {
	r.cancels.Add(1)
	r.mu.Lock()
	r.packet = p
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(waitTimeout):
		t.Fatalf("fiber did not finish within %v", waitTimeout)
	}
}

func (r *recorder) Result() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

func (r *recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// counts returns (successes, failures, cancels).
func (r *recorder) counts() (int32, int32, int32) {
	return r.successes.Load(), r.failures.Load(), r.cancels.Load()
}

// successOnly wraps a recorder without exposing OnCancel.
type successOnly struct{ r *recorder }

func (s successOnly) OnSuccess(p *api.Packet, result any) { s.r.OnSuccess(p, result) }
func (s successOnly) OnFailure(p *api.Packet, err error)  { s.r.OnFailure(p, err) }

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", msg)
		}
		time.Sleep(time.Millisecond)
	}
}

// writeStep puts key=value and continues to next.
func writeStep(key string, value any, next api.Step) api.Step {
	return api.NamedStep(key, func(_ api.Fiber, p *api.Packet) api.NextAction {
		p.Put(key, value)
		return api.Continue{Next: next}
	})
}

func doneStep(result any) api.Step {
	return api.NamedStep("done", func(api.Fiber, *api.Packet) api.NextAction {
		return api.Done{Result: result}
	})
}

// blocker occupies the only worker of a single-worker engine until released.
func blockWorker(t *testing.T, e *engineImpl) (release func()) {
	t.Helper()
	started := make(chan struct{})
	gate := make(chan struct{})
	_, err := e.StartFiber(api.StepFunc(func(api.Fiber, *api.Packet) api.NextAction {
		close(started)
		<-gate
		return api.Done{}
	}), nil, nil)
	if err != nil {
		t.Fatalf("StartFiber blocker: %v", err)
	}
	select {
	case <-started:
	case <-time.After(waitTimeout):
		t.Fatalf("blocker did not start")
	}
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}
