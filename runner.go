package skein

import (
	"context"
	"sync"
)

// Handle tracks the outcome of a fiber started by RunAsync.
//
// Typical usage:
//
//	h, err := skein.RunAsync(engine, chain.Build(), packet)
//	...
//	result, err := h.Wait(ctx)
type Handle struct {
	Fiber Fiber

	done chan struct{}
	once sync.Once

	packet *Packet
	result any
	err    error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) finish(p *Packet, result any, err error) {
	h.once.Do(func() {
		h.packet, h.result, h.err = p, result, err
		close(h.done)
	})
}

func (h *Handle) OnSuccess(p *Packet, result any) { h.finish(p, result, nil) }
func (h *Handle) OnFailure(p *Packet, err error)  { h.finish(p, nil, err) }
func (h *Handle) OnCancel(p *Packet)              { h.finish(p, nil, ErrCancelled) }

// Done is closed once the fiber has completed, failed or been cancelled.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the fiber finishes or ctx is done. It does not cancel
// the fiber when ctx expires.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Packet returns the fiber's final packet, or nil while it is running.
func (h *Handle) Packet() *Packet {
	select {
	case <-h.done:
		return h.packet
	default:
		return nil
	}
}

// RunAsync starts head on eng and returns immediately.
func RunAsync(eng Engine, head Step, p *Packet) (*Handle, error) {
	h := newHandle()
	f, err := eng.StartFiber(head, p, h)
	if err != nil {
		return nil, err
	}
	h.Fiber = f
	return h, nil
}

// Run starts head on eng and blocks until the fiber finishes. If ctx ends
// first the fiber is cancelled and ctx's error is returned.
//
// A cancelled fiber yields ErrCancelled.
func Run(ctx context.Context, eng Engine, head Step, p *Packet) (any, error) {
	h, err := RunAsync(eng, head, p)
	if err != nil {
		return nil, err
	}
	result, err := h.Wait(ctx)
	if ctx.Err() != nil && err == ctx.Err() {
		h.Fiber.Cancel()
	}
	return result, err
}
