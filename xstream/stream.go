package xstream

import (
	"sync"

	"github.com/corewye/pipeline/cause"
)

// Fetch drives a continuation once: invoke next(c) to get the stream it
// resumes as, then step that stream to see whether it emits or halts. Both
// the WYE and NJOIN engines use this as their "ask a side for its next
// chunk" primitive.
func Fetch[T any](next func(cause.Cause) Stream[T], c cause.Cause) Step[T] {
	return next(c).Step()
}

// FromSlice returns a Stream that emits items in chunks of at most
// chunkSize (chunkSize <= 0 means one chunk), halting with End once
// exhausted.
func FromSlice[T any](items []T, chunkSize int) Stream[T] {
	return FromSliceWithFinalizer(items, chunkSize, nil)
}

// FromSliceWithFinalizer is FromSlice plus a finalize callback invoked
// exactly once, with the cause the stream was driven to completion with
// (End if it ran out normally, Kill/Error if a continuation was driven
// abruptly). Used by tests to verify the finalizer-exactly-once invariant.
func FromSliceWithFinalizer[T any](items []T, chunkSize int, finalize func(cause.Cause)) Stream[T] {
	if chunkSize <= 0 {
		chunkSize = len(items)
		if chunkSize == 0 {
			chunkSize = 1
		}
	}
	var once sync.Once
	fire := func(c cause.Cause) {
		if finalize == nil {
			return
		}
		once.Do(func() { finalize(c) })
	}
	return sliceChunks(items, chunkSize, fire)
}

func sliceChunks[T any](items []T, chunkSize int, fire func(cause.Cause)) Stream[T] {
	if len(items) == 0 {
		return func() Step[T] {
			fire(cause.OfEnd())
			return HaltStep[T](cause.OfEnd())
		}
	}
	n := chunkSize
	if n > len(items) {
		n = len(items)
	}
	head := items[:n:n]
	rest := items[n:]
	return Emit(head, func(c cause.Cause) Stream[T] {
		if !c.IsEnd() {
			fire(c)
			return Halt[T](c)
		}
		if len(rest) == 0 {
			fire(cause.OfEnd())
			return Halt[T](cause.OfEnd())
		}
		return sliceChunks(rest, chunkSize, fire)
	})
}

// ErrAfter returns a Stream that emits items one chunk at a time like
// FromSlice, but halts with cause.OfError(err) immediately after the chunk
// at index failAfter (0-based, counting chunks, not elements) instead of
// continuing — used to drive source-fails-mid-stream test scenarios.
func ErrAfter[T any](items []T, chunkSize int, failAfter int, err error) Stream[T] {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	return errChunks(items, chunkSize, failAfter, err)
}

func errChunks[T any](items []T, chunkSize, failAfter int, err error) Stream[T] {
	if failAfter < 0 {
		return Halt[T](cause.OfError(err))
	}
	if len(items) == 0 {
		return Halt[T](cause.OfEnd())
	}
	n := chunkSize
	if n > len(items) {
		n = len(items)
	}
	head := items[:n:n]
	rest := items[n:]
	return Emit(head, func(c cause.Cause) Stream[T] {
		if !c.IsEnd() {
			return Halt[T](c)
		}
		if failAfter == 0 {
			return Halt[T](cause.OfError(err))
		}
		return errChunks(rest, chunkSize, failAfter-1, err)
	})
}

// Drain synchronously runs s to completion by always resuming with End,
// collecting every emitted element. Each step runs on the calling
// goroutine, so a step that blocks (as a wye or njoin output's does while
// it waits on its sources) blocks Drain with it.
func Drain[T any](s Stream[T]) ([]T, cause.Cause) {
	var out []T
	for {
		step := s.Step()
		switch step.Kind() {
		case KindEmit:
			out = append(out, step.Chunk()...)
			s = step.Next(cause.OfEnd())
		case KindHalt:
			return out, step.Cause()
		}
	}
}
