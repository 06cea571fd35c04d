// Package signal implements a discrete, cause-failable broadcast boolean:
// NJOIN uses one Bool as its "done" signal so that cancelling the consumer
// stops every running inner stream without the engine having to track a
// per-inner interrupt handle.
//
// Unlike a context.WithCancel broadcast, the broadcast can also carry a
// specific cause (a plain cancelled context can't distinguish "the
// consumer stopped" from "an inner failed"; Bool can).
package signal

import (
	"sync"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/xstream"
)

// Bool is a single boolean value that can be set repeatedly and finally
// failed with a cause. The zero value is not usable; use NewBool.
type Bool struct {
	mu     sync.Mutex
	value  bool
	failed bool
	cause  cause.Cause
	ch     chan struct{}
}

// NewBool returns a Bool initialized to false.
func NewBool() *Bool {
	return &Bool{ch: make(chan struct{})}
}

// Set updates the value. A no-op once FailWithCause has been called.
func (b *Bool) Set(v bool) {
	b.mu.Lock()
	if b.failed || b.value == v {
		b.mu.Unlock()
		return
	}
	b.value = v
	old := b.ch
	b.ch = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// FailWithCause terminates the signal: no further Set calls have effect,
// and every pending and future Watch channel is woken. Idempotent: only
// the first cause is kept.
func (b *Bool) FailWithCause(c cause.Cause) {
	b.mu.Lock()
	if b.failed {
		b.mu.Unlock()
		return
	}
	b.failed = true
	b.cause = c
	old := b.ch
	b.ch = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// Get returns the current value and, once failed, the terminal cause.
func (b *Bool) Get() (value bool, failed bool, c cause.Cause) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value, b.failed, b.cause
}

// Watch returns a channel that closes the next time the value changes or
// the signal is failed.
func (b *Bool) Watch() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ch
}

// AsStream views the signal as a stream of its discrete values: one Emit
// per distinct value starting from the current one, halting with the
// signal's terminal cause once failed. This is how NJOIN interrupts a
// running inner — the inner is raced against this stream inside a wye
// program so that a Set(true) or FailWithCause reaches it at its next
// suspension.
func (b *Bool) AsStream() xstream.Stream[bool] {
	return b.streamFrom(false, false)
}

func (b *Bool) streamFrom(last bool, hasLast bool) xstream.Stream[bool] {
	return func() xstream.Step[bool] {
		for {
			b.mu.Lock()
			val, failed, c := b.value, b.failed, b.cause
			watch := b.ch
			b.mu.Unlock()

			if !hasLast || val != last {
				return xstream.EmitStep([]bool{val}, func(rc cause.Cause) xstream.Stream[bool] {
					if !rc.IsEnd() {
						return xstream.Halt[bool](rc)
					}
					return b.streamFrom(val, true)
				})
			}
			if failed {
				return xstream.HaltStep[bool](c)
			}
			<-watch
		}
	}
}
