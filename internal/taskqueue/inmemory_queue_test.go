package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewInMemoryQueue(0)

	ctx := context.Background()

	t1 := Task{ID: "1", Type: TaskTypeStart, FiberID: 1}
	t2 := Task{ID: "2", Type: TaskTypeResume, FiberID: 1}
	t3 := Task{ID: "3", Type: TaskTypeRetry, FiberID: 2}

	for _, task := range []Task{t1, t2, t3} {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", task.ID, err)
		}
	}

	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	var got []string
	for i := 0; i < 3; i++ {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		got = append(got, task.ID)
	}

	if got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Fatalf("unexpected dequeue order: %v", got)
	}
	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func TestInMemoryQueue_DequeueHonorsContextCancellation(t *testing.T) {
	q := NewInMemoryQueue(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// No tasks enqueued, Dequeue should return ctx error.
	_, err := q.Dequeue(ctx)
	if err == nil {
		t.Fatalf("expected Dequeue to fail due to context cancellation")
	}
}

func TestInMemoryQueue_EnqueueNeverBlocksPastCapacity(t *testing.T) {
	q := NewInMemoryQueue(2)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := q.Enqueue(ctx, Task{FiberID: int64(i)}); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if q.Len() != 100 {
		t.Fatalf("expected Len 100, got %d", q.Len())
	}
}

func TestInMemoryQueue_EnqueueRejectsCancelledContext(t *testing.T) {
	q := NewInMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := q.Enqueue(ctx, Task{}); err == nil {
		t.Fatalf("expected Enqueue to fail on cancelled context")
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestInMemoryQueue_WakesEveryWaitingConsumer(t *testing.T) {
	q := NewInMemoryQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const consumers = 4
	var wg sync.WaitGroup
	got := make(chan int64, consumers)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task, err := q.Dequeue(ctx)
			if err != nil {
				return
			}
			got <- task.FiberID
		}()
	}

	// Give the consumers a moment to block before the burst arrives.
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < consumers; i++ {
		if err := q.Enqueue(context.Background(), Task{FiberID: int64(i)}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	wg.Wait()
	close(got)
	if n := len(got); n != consumers {
		t.Fatalf("expected %d tasks delivered, got %d", consumers, n)
	}
}
