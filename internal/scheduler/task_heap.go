package scheduler

import (
	"container/heap"
	"time"
)

type (
	// Task is a scheduled function and its execution time
	Task struct {
		Func  func()
		At    time.Time
		seq   uint64
		index int
		owner *Scheduler
	}

	// TaskHeap stores scheduled tasks ordered by execution time, then by
	// insertion order
	TaskHeap struct {
		items []*Task
	}
)

// NewTaskHeap creates an empty task heap
func NewTaskHeap() *TaskHeap {
	h := &TaskHeap{}
	heap.Init(h)
	return h
}

// Insert adds a task to the heap
func (h *TaskHeap) Insert(t *Task) {
	if t == nil || t.Func == nil {
		return
	}
	heap.Push(h, t)
}

// PopTask removes and returns the next scheduled task
func (h *TaskHeap) PopTask() *Task {
	if h.Len() == 0 {
		return nil
	}
	return heap.Pop(h).(*Task)
}

// Peek returns the next scheduled task without removing it
func (h *TaskHeap) Peek() *Task {
	if len(h.items) == 0 {
		return nil
	}
	return h.items[0]
}

// Remove takes t out of the heap, reporting whether it was still queued
func (h *TaskHeap) Remove(t *Task) bool {
	if t == nil || t.index < 0 || t.index >= len(h.items) || h.items[t.index] != t {
		return false
	}
	heap.Remove(h, t.index)
	return true
}

// Len returns the number of scheduled tasks in the heap
func (h *TaskHeap) Len() int {
	return len(h.items)
}

// Less reports whether the task at i should sort before the task at j
func (h *TaskHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	if a.At.Equal(b.At) {
		return a.seq < b.seq
	}
	return a.At.Before(b.At)
}

// Swap exchanges the heap items at the provided indexes
func (h *TaskHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds a task to the underlying heap implementation
func (h *TaskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(h.items)
	h.items = append(h.items, t)
}

// Pop removes a task from the underlying heap implementation
func (h *TaskHeap) Pop() any {
	old := h.items
	n := len(old)
	if n == 0 {
		return nil
	}
	t := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	t.index = -1
	return t
}
