// Package ring provides the bounded single-producer/single-consumer queue that
// connects the acquisition side to the demodulator and the demodulator to the
// application.
package ring

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrCapacity = errors.New("ring capacity must be a power of two >= 2")
	ErrOverflow = errors.New("ring full, item dropped")
	ErrClosed   = errors.New("ring closed")
)

// Ring is a fixed size circular buffer guarded by a mutex and a condition
// variable. One slot is always left free, so the ring is empty iff the read
// and write pointers are equal and full when the write pointer is one behind
// the read pointer.
type Ring[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	mask   int
	rd     int
	wr     int
	closed bool

	overflows atomic.Uint64
}

func New[T any](capacity int) (*Ring[T], error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, ErrCapacity
	}
	r := &Ring[T]{
		buf:  make([]T, capacity),
		mask: capacity - 1,
	}
	r.cond = sync.NewCond(&r.mu)
	return r, nil
}

// NewFilled is New with every slot pre-set to fill, so a read of a slot that
// was never written is recognisable.
func NewFilled[T any](capacity int, fill T) (*Ring[T], error) {
	r, err := New[T](capacity)
	if err != nil {
		return nil, err
	}
	for i := range r.buf {
		r.buf[i] = fill
	}
	return r, nil
}

func (r *Ring[T]) empty() bool {
	return r.rd == r.wr
}

func (r *Ring[T]) full() bool {
	return (r.wr+1)&r.mask == r.rd
}

// Put appends item without blocking. If the ring is full the item is dropped,
// the overflow counter is bumped and ErrOverflow is returned.
func (r *Ring[T]) Put(item T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.full() {
		r.overflows.Add(1)
		return ErrOverflow
	}
	r.buf[r.wr] = item
	r.wr = (r.wr + 1) & r.mask
	r.cond.Broadcast()
	return nil
}

// PutBatch stores items in order under a single lock and returns how many were
// stored. Anything that does not fit is counted as an overflow.
func (r *Ring[T]) PutBatch(items []T) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, ErrClosed
	}
	n := 0
	for _, item := range items {
		if r.full() {
			break
		}
		r.buf[r.wr] = item
		r.wr = (r.wr + 1) & r.mask
		n++
	}
	if n > 0 {
		r.cond.Broadcast()
	}
	if dropped := len(items) - n; dropped > 0 {
		r.overflows.Add(uint64(dropped))
		return n, ErrOverflow
	}
	return n, nil
}

func (r *Ring[T]) take() T {
	item := r.buf[r.rd]
	r.rd = (r.rd + 1) & r.mask
	// a producer may be blocked in WaitSpace
	r.cond.Broadcast()
	return item
}

// Get blocks until an item is available. Once the ring is closed Get keeps
// returning buffered items and then ErrClosed.
func (r *Ring[T]) Get() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.empty() && !r.closed {
		r.cond.Wait()
	}
	if r.empty() {
		var zero T
		return zero, ErrClosed
	}
	return r.take(), nil
}

// GetContext is Get with cancellation.
func (r *Ring[T]) GetContext(ctx context.Context) (T, error) {
	var zero T
	if err := r.waitContext(ctx); err != nil {
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.empty() {
		return zero, ErrClosed
	}
	return r.take(), nil
}

func (r *Ring[T]) waitContext(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.empty() && !r.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cond.Wait()
	}
	if r.empty() {
		return ErrClosed
	}
	return nil
}

// Wait blocks until the ring is non-empty. It returns ErrClosed only when the
// ring is closed and nothing is left to read. The lock is held just for the
// check, so the caller does its processing unlocked.
func (r *Ring[T]) Wait() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.empty() && !r.closed {
		r.cond.Wait()
	}
	if r.empty() {
		return ErrClosed
	}
	return nil
}

// WaitSpace blocks until at least n slots are free, capped at Cap. It is the
// producer side backpressure for inputs that can be read faster than real
// time.
func (r *Ring[T]) WaitSpace(ctx context.Context, n int) error {
	n = min(n, r.Cap())
	stop := context.AfterFunc(ctx, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.Cap()-((r.wr-r.rd)&r.mask) < n && !r.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.cond.Wait()
	}
	if r.closed {
		return ErrClosed
	}
	return nil
}

// Drain appends every buffered item to dst without blocking.
func (r *Ring[T]) Drain(dst []T) []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	for !r.empty() {
		dst = append(dst, r.take())
	}
	return dst
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return (r.wr - r.rd) & r.mask
}

// Cap is the number of items the ring can hold at once.
func (r *Ring[T]) Cap() int {
	return len(r.buf) - 1
}

func (r *Ring[T]) Overflows() uint64 {
	return r.overflows.Load()
}

// Close wakes every waiter. Puts after Close fail with ErrClosed.
func (r *Ring[T]) Close() {
	r.mu.Lock()
	r.closed = true
	r.cond.Broadcast()
	r.mu.Unlock()
}

func (r *Ring[T]) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
