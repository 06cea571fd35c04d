// Package queue implements a bounded, cause-failable queue: Enqueue
// suspends when full, Dequeue suspends when empty, and FailWithCause both
// rejects further Enqueue calls and wakes every blocked caller. Capacity 0
// means unbounded.
//
// A bare buffered channel gives the same bounded FIFO; this package adds
// one behavior a raw channel can't express on its own: failing with a
// cause that distinct callers can tell apart (graceful End vs forced Kill
// vs Error(e)).
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/corewye/pipeline/cause"
)

// ErrKilled is returned by Dequeue/Enqueue once the queue has been failed
// with cause.OfKill().
var ErrKilled = errors.New("queue: killed")

// Bounded is a FIFO queue with an optional capacity and a single terminal
// cause. A nil *Bounded is not valid; use NewBounded.
type Bounded[T any] struct {
	capacity int // 0 == unbounded
	mu       sync.Mutex
	items    []T
	closed   bool
	cause    cause.Cause

	notEmpty chan struct{}
	notFull  chan struct{}
	closeCh  chan struct{}
}

// NewBounded returns an empty queue. capacity <= 0 means unbounded: Enqueue
// never blocks on space.
func NewBounded[T any](capacity int) *Bounded[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Bounded[T]{
		capacity: capacity,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}, 1),
		closeCh:  make(chan struct{}),
	}
}

func (q *Bounded[T]) lock()   { q.mu.Lock() }
func (q *Bounded[T]) unlock() { q.mu.Unlock() }

func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Len reports the number of buffered, undelivered elements.
func (q *Bounded[T]) Len() int {
	q.lock()
	defer q.unlock()
	return len(q.items)
}

// Cap reports the configured capacity, or 0 for unbounded.
func (q *Bounded[T]) Cap() int { return q.capacity }

// Enqueue adds v to the queue, blocking while the queue is full. It
// returns ctx.Err() if ctx is done first, or an error if FailWithCause has
// already been called: ErrKilled for cause.OfKill(), the wrapped error for
// cause.OfError(e), and a "queue: closed" error for cause.OfEnd().
func (q *Bounded[T]) Enqueue(ctx context.Context, v T) error {
	for {
		q.lock()
		if q.closed {
			err := causeErr(q.cause)
			q.unlock()
			if err == nil {
				err = errors.New("queue: closed")
			}
			return err
		}
		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, v)
			q.unlock()
			nudge(q.notEmpty)
			return nil
		}
		q.unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.notFull:
		case <-q.closeCh:
		}
	}
}

// Dequeue removes and returns the head element. If the queue is empty and
// not yet failed, it blocks. ok is false once the queue is drained and
// failed: err is nil for a graceful cause.OfEnd(), ErrKilled for
// cause.OfKill(), or the wrapped error for cause.OfError(e).
func (q *Bounded[T]) Dequeue(ctx context.Context) (v T, ok bool, err error) {
	for {
		q.lock()
		if len(q.items) > 0 {
			v = q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.unlock()
			nudge(q.notFull)
			return v, true, nil
		}
		if q.closed {
			c := q.cause
			q.unlock()
			var zero T
			return zero, false, causeErr(c)
		}
		q.unlock()
		select {
		case <-ctx.Done():
			var zero T
			return zero, false, ctx.Err()
		case <-q.notEmpty:
		case <-q.closeCh:
		}
	}
}

// FailWithCause sets the queue's terminal cause. Already-buffered elements
// remain available to Dequeue; once drained, further Dequeue calls report
// c. Enqueue calls after this point fail immediately. Idempotent: only the
// first call's cause is kept.
//
// notEmpty/notFull are one-slot nudge channels: a single send only wakes
// one of potentially many blocked callers. closeCh is closed instead,
// exactly once, so every Enqueue and Dequeue currently parked in a select
// wakes up together and re-checks the closed state rather than some of
// them blocking forever.
func (q *Bounded[T]) FailWithCause(c cause.Cause) {
	q.lock()
	if q.closed {
		q.unlock()
		return
	}
	q.closed = true
	q.cause = c
	close(q.closeCh)
	q.unlock()
}

func causeErr(c cause.Cause) error {
	switch {
	case c.IsError():
		return c.Err()
	case c.IsKill():
		return ErrKilled
	default:
		return nil
	}
}
