// Package queue implements TransferQueue and ReadyQueue (spec.md §3):
// bounded FIFOs keyed to the firmware descriptor-ring depth and the
// client-facing delivery depth respectively. Both card families'
// engines (internal/engine) use the same bounded-ring mechanics over
// different item types (Superpage vs. Page), so it is generic over the
// queued item type rather than duplicated per family.
package queue

import "github.com/AliceO2Group/readoutcard/internal/rocerr"

// Ring is a fixed-capacity FIFO. Pushing past capacity fails rather
// than growing, matching spec.md §3's "bounded FIFO" data model for
// both TransferQueue and ReadyQueue.
type Ring[T any] struct {
	items []T
	cap   int
}

// NewRing creates an empty Ring with the given fixed capacity.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{items: make([]T, 0, capacity), cap: capacity}
}

// Len returns the number of items currently queued.
func (r *Ring[T]) Len() int { return len(r.items) }

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int { return r.cap }

// Available returns the remaining free capacity.
func (r *Ring[T]) Available() int { return r.cap - len(r.items) }

// Full reports whether the ring has no remaining capacity.
func (r *Ring[T]) Full() bool { return len(r.items) >= r.cap }

// Empty reports whether the ring holds no items.
func (r *Ring[T]) Empty() bool { return len(r.items) == 0 }

// Push enqueues item at the tail. fullKind is the caller's
// family-specific "queue full" error kind (spec.md §4.6:
// TransferQueueFull for the CRU transfer queue).
func (r *Ring[T]) Push(item T, fullKind rocerr.Kind) error {
	if r.Full() {
		return rocerr.New(fullKind, "queue is full", rocerr.Fields{"cap": r.cap})
	}
	r.items = append(r.items, item)
	return nil
}

// Peek returns the head item without removing it. emptyKind is the
// caller's family-specific "queue empty" error kind (spec.md §4.6:
// ReadyQueueEmpty).
func (r *Ring[T]) Peek(emptyKind rocerr.Kind) (T, error) {
	var zero T
	if r.Empty() {
		return zero, rocerr.New(emptyKind, "queue is empty", nil)
	}
	return r.items[0], nil
}

// Pop removes and returns the head item.
func (r *Ring[T]) Pop(emptyKind rocerr.Kind) (T, error) {
	item, err := r.Peek(emptyKind)
	if err != nil {
		return item, err
	}
	r.items = r.items[1:]
	return item, nil
}

// DrainAll removes and returns every queued item, in FIFO order,
// leaving the ring empty. Used by stopDma to flush outstanding items
// into the ready queue (spec.md §4.6 "Start/stop").
func (r *Ring[T]) DrainAll() []T {
	out := r.items
	r.items = make([]T, 0, r.cap)
	return out
}
