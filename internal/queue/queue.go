// Package queue provides a small generic FIFO queue.
package queue

// Queue is a generic FIFO queue that can hold any type. A positive capacity
// bounds it; Enqueue then refuses items once full. Not safe for concurrent use.
type Queue[T any] struct {
	items    []T
	capacity int
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{items: []T{}}
}

// NewBounded creates a queue holding at most capacity items.
// capacity <= 0 means unbounded.
func NewBounded[T any](capacity int) *Queue[T] {
	return &Queue[T]{items: []T{}, capacity: capacity}
}

// Enqueue adds an element to the end of the queue.
// It returns false if the queue is full.
func (q *Queue[T]) Enqueue(item T) bool {
	if q.capacity > 0 && len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Dequeue removes and returns the front element of the queue.
// The boolean indicates whether an element was dequeued (false if the queue was empty).
func (q *Queue[T]) Dequeue() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Peek returns the front element without removing it from the queue.
func (q *Queue[T]) Peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

// Clear drops every element.
func (q *Queue[T]) Clear() {
	q.items = []T{}
}

// Len returns the number of elements in the queue.
func (q *Queue[T]) Len() int {
	return len(q.items)
}

// IsEmpty returns true if the queue is empty.
func (q *Queue[T]) IsEmpty() bool {
	return len(q.items) == 0
}
