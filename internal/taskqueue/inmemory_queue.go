package taskqueue

import (
	"context"
	"sync"
)

// InMemoryQueue is an unbounded FIFO Queue. Enqueue never blocks, so a
// fiber can always be rescheduled from inside a step or a callback.
// It is safe for concurrent use.
type InMemoryQueue struct {
	mu     sync.Mutex
	items  []Task
	head   int
	notify chan struct{}
}

// NewInMemoryQueue creates a new queue. capacity is only an initial size
// hint.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		items:  make([]Task, 0, capacity),
		notify: make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, t Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if t, ok := q.pop(); ok {
			return &t, nil
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *InMemoryQueue) pop() (Task, bool) {
	q.mu.Lock()
	if q.head == len(q.items) {
		q.mu.Unlock()
		return Task{}, false
	}
	t := q.items[q.head]
	q.items[q.head] = Task{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	more := q.head < len(q.items)
	q.mu.Unlock()

	// Pass the wake-up on so another waiting worker picks up the rest.
	if more {
		q.signal()
	}
	return t, true
}

func (q *InMemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
