// Package xstream implements the pull-based Stream[T] abstraction consumed
// by the merge core (wye, njoin). A Stream is stepped one suspension at a
// time; every step is either a finite chunk of elements plus a
// continuation, or a terminal Halt. This package is the "external
// collaborator" the merge core treats as a black box — it exists so the
// rest of the module has a concrete, steppable stream type to merge.
package xstream

import "github.com/corewye/pipeline/cause"

// Kind discriminates a Step's variant.
type Kind int

const (
	// KindEmit carries a finite, non-empty batch of elements plus a
	// continuation keyed on a cause.
	KindEmit Kind = iota
	// KindHalt is terminal: the stream produces no further elements.
	KindHalt
)

// Step is one suspension of a Stream[T]: either Emit(chunk, next) or
// Halt(cause). Constructed only via EmitStep/HaltStep below so callers can't build
// an inconsistent value (e.g. an Emit with a nil Next).
type Step[T any] struct {
	kind  Kind
	chunk []T
	next  func(cause.Cause) Stream[T]
	cause cause.Cause
}

// Kind reports which variant this step is.
func (s Step[T]) Kind() Kind { return s.kind }

// Chunk returns the emitted batch. Valid only when Kind() == KindEmit.
func (s Step[T]) Chunk() []T { return s.chunk }

// Next returns the continuation from an Emit step. Passing cause.OfEnd()
// continues normally; cause.OfKill() or an Error cause requests abrupt
// cleanup, returning a stream that only runs finalizers. Valid only when
// Kind() == KindEmit.
func (s Step[T]) Next(c cause.Cause) Stream[T] { return s.next(c) }

// Cause returns the terminal cause. Valid only when Kind() == KindHalt.
func (s Step[T]) Cause() cause.Cause { return s.cause }

// Stream is a value that can be stepped to yield one Step[T]. It is a thunk
// rather than an object with a mutable cursor: stepping twice without
// retaining the continuation simply re-runs the same suspension, which is
// always safe because a Stream never mutates shared state on its own — any
// effect happens inside the function body when it's invoked.
type Stream[T any] func() Step[T]

// Step pulls the next suspension from s.
func (s Stream[T]) Step() Step[T] { return s() }

// EmitStep builds an Emit step from a chunk and continuation.
func EmitStep[T any](chunk []T, next func(cause.Cause) Stream[T]) Step[T] {
	return Step[T]{kind: KindEmit, chunk: chunk, next: next}
}

// HaltStep builds a terminal Halt step.
func HaltStep[T any](c cause.Cause) Step[T] {
	return Step[T]{kind: KindHalt, cause: c}
}

// Halt returns a Stream that immediately halts with c.
func Halt[T any](c cause.Cause) Stream[T] {
	return func() Step[T] { return HaltStep[T](c) }
}

// Emit returns a Stream that emits chunk once, then continues as next(c)
// (End to continue normally, anything else to request cleanup).
func Emit[T any](chunk []T, next func(cause.Cause) Stream[T]) Stream[T] {
	return func() Step[T] { return EmitStep(chunk, next) }
}
