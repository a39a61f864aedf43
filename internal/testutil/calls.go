package testutil

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/petrijr/skein/pkg/api"
)

// Outcome is one scripted response of a ScriptedFactory.
type Outcome struct {
	Result any
	Err    error

	// Hold leaves the call pending; the test completes it through Pending.
	Hold bool
}

// ScriptedFactory is an api.CallFactory that answers calls with a fixed
// script, one Outcome per call. Calls beyond the script succeed with the
// last scripted result. Responses are delivered on a new goroutine unless
// Sync is set.
type ScriptedFactory struct {
	Sync bool

	mu      sync.Mutex
	script  []Outcome
	calls   atomic.Int32
	pending []*HeldCall
}

// HeldCall is a call left pending by an Outcome with Hold set.
type HeldCall struct {
	cb        api.CallCallback
	Ctx       context.Context
	cancelled atomic.Bool
}

func (h *HeldCall) Cancel()         { h.cancelled.Store(true) }
func (h *HeldCall) Cancelled() bool { return h.cancelled.Load() }

func (h *HeldCall) Succeed(result any) { h.cb.OnSuccess(result) }
func (h *HeldCall) Fail(err error)     { h.cb.OnFailure(err) }

// NewScriptedFactory returns a factory answering with outcomes in order.
func NewScriptedFactory(outcomes ...Outcome) *ScriptedFactory {
	return &ScriptedFactory{script: outcomes}
}

var _ api.CallFactory = (*ScriptedFactory)(nil)

// Calls returns the number of calls produced so far.
func (f *ScriptedFactory) Calls() int {
	return int(f.calls.Load())
}

// Pending returns the calls currently held.
func (f *ScriptedFactory) Pending() []*HeldCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*HeldCall(nil), f.pending...)
}

func (f *ScriptedFactory) ProduceCall(ctx context.Context, _ *api.Packet, cb api.CallCallback) (api.PendingCall, error) {
	n := int(f.calls.Add(1))

	f.mu.Lock()
	var out Outcome
	switch {
	case n <= len(f.script):
		out = f.script[n-1]
	case len(f.script) > 0:
		out = f.script[len(f.script)-1]
		out.Err = nil
		out.Hold = false
	}
	held := &HeldCall{cb: cb, Ctx: ctx}
	if out.Hold {
		f.pending = append(f.pending, held)
	}
	f.mu.Unlock()

	if out.Hold {
		return held, nil
	}

	deliver := func() {
		if out.Err != nil {
			cb.OnFailure(out.Err)
			return
		}
		cb.OnSuccess(out.Result)
	}
	if f.Sync {
		deliver()
	} else {
		go deliver()
	}
	return held, nil
}
