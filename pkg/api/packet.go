package api

import (
	"fmt"
	"slices"
	"strings"
)

// Reserved packet keys written by the engine and the built-in steps.
const (
	// KeyResponse holds the CallResponse of the most recent Invoke.
	KeyResponse = "skein.response"

	// KeyResult is read by the terminal step appended by Chain.
	KeyResult = "skein.result"
)

// Packet is the mutable key/value context threaded through a fiber's steps.
//
// Every step of a fiber sees the same Packet. A Packet is not safe for
// concurrent use; the engine guarantees that only one goroutine executes a
// fiber's steps at a time, which makes the owning fiber its single writer.
// Entries keep their insertion order.
type Packet struct {
	keys   []string
	values map[string]any
}

// NewPacket returns an empty Packet.
func NewPacket() *Packet {
	return &Packet{values: make(map[string]any)}
}

// With stores value under key and returns p, for building packets inline.
func (p *Packet) With(key string, value any) *Packet {
	p.Put(key, value)
	return p
}

// Get returns the value stored under key.
func (p *Packet) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Has reports whether key is present.
func (p *Packet) Has(key string) bool {
	_, ok := p.Get(key)
	return ok
}

// Put stores value under key, replacing any previous value. A replaced key
// keeps its original position.
func (p *Packet) Put(key string, value any) {
	if p.values == nil {
		p.values = make(map[string]any)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Remove deletes key and reports whether it was present.
func (p *Packet) Remove(key string) bool {
	if _, ok := p.values[key]; !ok {
		return false
	}
	delete(p.values, key)
	if i := slices.Index(p.keys, key); i >= 0 {
		p.keys = slices.Delete(p.keys, i, i+1)
	}
	return true
}

// Keys returns the keys in insertion order.
func (p *Packet) Keys() []string {
	if p == nil {
		return nil
	}
	return slices.Clone(p.keys)
}

// Len returns the number of entries.
func (p *Packet) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Range calls fn for every entry in insertion order until fn returns false.
func (p *Packet) Range(fn func(key string, value any) bool) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		if !fn(k, p.values[k]) {
			return
		}
	}
}

// Copy returns a shallow copy of p. Values are shared, the mapping is not.
func (p *Packet) Copy() *Packet {
	out := &Packet{values: make(map[string]any, p.Len())}
	if p == nil {
		return out
	}
	out.keys = slices.Clone(p.keys)
	for k, v := range p.values {
		out.values[k] = v
	}
	return out
}

func (p *Packet) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range p.Keys() {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", k, p.values[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Value returns the value stored under key converted to T. It reports false
// when the key is absent or holds a value of another type.
func Value[T any](p *Packet, key string) (T, bool) {
	var zero T
	v, ok := p.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}
