package engine

import (
	"sync"

	"github.com/petrijr/skein/pkg/api"
)

// breadcrumbs is a fixed-size ring of the most recently applied steps.
type breadcrumbs struct {
	mu   sync.Mutex
	buf  []api.Breadcrumb
	next int
	full bool
}

func newBreadcrumbs(limit int) *breadcrumbs {
	return &breadcrumbs{buf: make([]api.Breadcrumb, limit)}
}

func (b *breadcrumbs) add(c api.Breadcrumb) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf[b.next] = c
	b.next++
	if b.next == len(b.buf) {
		b.next = 0
		b.full = true
	}
}

// list returns the trail oldest first.
func (b *breadcrumbs) list() []api.Breadcrumb {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return append([]api.Breadcrumb(nil), b.buf[:b.next]...)
	}
	out := make([]api.Breadcrumb, 0, len(b.buf))
	out = append(out, b.buf[b.next:]...)
	return append(out, b.buf[:b.next]...)
}
