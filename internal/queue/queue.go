// Package queue holds the ordered work queue used to drain pending transfers.
package queue

import (
	"container/heap"
	"sync"
)

// Item is a single queued value. Items with the same priority leave the queue
// in the order they entered it.
type Item[T any] struct {
	Value    T
	Priority int
	seq      uint64
	index    int
}

type itemHeap[T any] []*Item[T]

func (h itemHeap[T]) Len() int {
	return len(h)
}

// Lower priority values leave first, ties break on insertion order
func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap[T]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

// Queue is a thread-safe, stable priority queue.
type Queue[T any] struct {
	heap itemHeap[T]
	seq  uint64
	mu   sync.Mutex
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{
		heap: make(itemHeap[T], 0),
	}
	heap.Init(&q.heap)
	return q
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Push appends value behind every queued item with the same or lower priority.
func (q *Queue[T]) Push(value T, priority int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	heap.Push(&q.heap, &Item[T]{
		Value:    value,
		Priority: priority,
		seq:      q.seq,
	})
}

// PushAll queues values in order with the same priority.
func (q *Queue[T]) PushAll(values []T, priority int) {
	for _, v := range values {
		q.Push(v, priority)
	}
}

func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		var zero T
		return zero, false
	}

	item := heap.Pop(&q.heap).(*Item[T])
	return item.Value, true
}

// Drain empties the queue and returns what was in it, in order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]T, 0, q.heap.Len())
	for q.heap.Len() > 0 {
		items = append(items, heap.Pop(&q.heap).(*Item[T]).Value)
	}
	return items
}
