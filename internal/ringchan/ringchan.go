// Package ringchan provides a bounded channel with overwrite-oldest
// semantics. BLE platform callbacks (advertisement handlers, notification
// handlers) run on the radio event loop and must never block; ringchan lets
// them publish into a channel that slow consumers drain at their own pace.
package ringchan

import "sync/atomic"

// RingChannel wraps a buffered channel and guarantees that producers never
// block: when the buffer is full, the oldest element is discarded to make
// room for the newest one.
//
// Readers consume via C() like a normal Go channel:
//
//	rc := ringchan.New[int](3)
//	for v := range rc.C() {
//	    fmt.Println(v)
//	}
type RingChannel[T any] struct {
	ch        chan T
	dropped   atomic.Uint64
	closeOnce atomic.Bool
}

// New creates a RingChannel with the given capacity. Panics if capacity <= 0.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. It is closed by Close.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item, discarding the oldest buffered element if the
// channel is full. It never blocks indefinitely.
func (rc *RingChannel[T]) Send(v T) {
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
		default:
			// a consumer drained the buffer between the two selects
		}
		select {
		case rc.ch <- v:
		default:
			// full again; drop the new value rather than block
			rc.dropped.Add(1)
		}
	}
}

// TrySend attempts to insert without blocking and without displacing
// buffered elements. Returns false if the buffer is full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		return true
	default:
		return false
	}
}

// Dropped reports how many elements have been discarded due to overflow.
func (rc *RingChannel[T]) Dropped() uint64 {
	return rc.dropped.Load()
}

// Close closes the channel. Safe to call more than once; producers must not
// call Send after Close.
func (rc *RingChannel[T]) Close() {
	if rc.closeOnce.CompareAndSwap(false, true) {
		close(rc.ch)
	}
}
