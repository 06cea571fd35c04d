// Package strategy implements pluggable, stack-safe dispatch of
// side-effecting work: fetching a chunk, enqueueing, signaling. Engines
// never call into a source stream's continuation synchronously from
// inside a mailbox handler — they ask a Strategy to run it and post the
// result back as a message.
//
// GoroutinePool is a bare `go func() { ... }()` with a deferred recover()
// that captures a stack trace and turns a panic into an ordinary error
// instead of crashing the process.
package strategy

import (
	"fmt"
	"runtime"

	"github.com/corewye/pipeline/cause"
)

// Strategy dispatches side-effecting work.
type Strategy interface {
	// Go runs fn asynchronously. If fn panics, the panic is recovered and
	// reported to onPanic as an Error cause instead of propagating —
	// engines use onPanic to post the failure back into their own
	// mailbox exactly like any other fetch failure. onPanic may be nil.
	Go(fn func(), onPanic func(cause.Cause))
}

// GoroutinePool is the default Strategy: one goroutine per dispatched
// call. Dispatch never grows the caller's stack, by construction, since
// each call starts a fresh goroutine.
type GoroutinePool struct{}

// NewGoroutinePool returns a Strategy that spawns a goroutine per call.
func NewGoroutinePool() *GoroutinePool { return &GoroutinePool{} }

// Go implements Strategy.
func (p *GoroutinePool) Go(fn func(), onPanic func(cause.Cause)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if onPanic == nil {
					return
				}
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				err := fmt.Errorf("strategy: panic: %v\n%s", r, buf[:n])
				onPanic(cause.OfError(err))
			}
		}()
		fn()
	}()
}
