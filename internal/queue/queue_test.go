package queue

import "testing"

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		q.Enqueue(i)
	}
	if v, ok := q.Peek(); !ok || v != 1 {
		t.Errorf("Peek() = %d, %v", v, ok)
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Dequeue()
		if !ok || got != want {
			t.Errorf("Dequeue() = %d, %v, want %d", got, ok, want)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("expected empty queue")
	}
	if !q.IsEmpty() {
		t.Error("IsEmpty() = false")
	}
}

func TestQueue_Bounded(t *testing.T) {
	q := NewBounded[string](2)
	if !q.Enqueue("a") || !q.Enqueue("b") {
		t.Fatal("expected first two enqueues to succeed")
	}
	if q.Enqueue("c") {
		t.Error("expected enqueue on full queue to fail")
	}
	q.Dequeue()
	if !q.Enqueue("c") {
		t.Error("expected enqueue after dequeue to succeed")
	}
	q.Clear()
	if q.Len() != 0 {
		t.Errorf("Len() after Clear = %d", q.Len())
	}
}
