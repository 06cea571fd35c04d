package wye

import (
	"sync/atomic"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/internal/mailbox"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
)

// nextID hands out a process-wide, monotonically increasing id to every
// Wye instance so its log lines can be correlated without depending on
// any caller-supplied identifier.
var nextID atomic.Int64

// sideKind is the per-side state machine: Idle holds a continuation ready
// to fetch on demand, Running means a fetch is in flight, Done is
// terminal.
type sideKind int

const (
	sideIdle sideKind = iota
	sideRunning
	sideDone
)

type side[T any] struct {
	kind          sideKind
	idleNext      func(cause.Cause) xstream.Stream[T]
	killRequested bool
	doneCause     cause.Cause
}

// result is what a pulled Step from the merged output looks like before
// it's translated into an xstream.Step[O].
type result[O any] struct {
	isHalt bool
	chunk  []O
	cause  cause.Cause
}

// Wye runs a Program[L, R, O] against two live streams, producing one
// merged Stream[O]. All of its mutable state — side states, the pending
// element queues, the output parking slot — is touched only from handlers
// run on its own mailbox, so there is exactly one lock-free logical thread
// of control per Wye regardless of how many goroutines are fetching sides
// concurrently.
type Wye[L, R, O any] struct {
	mb     *mailbox.Mailbox
	strat  strategy.Strategy
	logger telemetry.Logger
	id     int64

	program  Program[L, R, O]
	leftBias bool

	left  side[L]
	right side[R]

	leftPending  []L
	rightPending []R

	parkedChunk []O
	parkedNext  func(cause.Cause) Program[L, R, O]

	pendingGet   func(result[O])
	pendingClose func(cause.Cause)

	terminal    bool
	finalCause  cause.Cause
	programDone bool
}

// Run builds and starts a Wye engine for program over the given left and
// right streams, returning the merged output as a single Stream[O]. The
// engine's mailbox goroutine runs for the lifetime of the returned stream
// and exits once it halts.
func Run[L, R, O any](program Program[L, R, O], left xstream.Stream[L], right xstream.Stream[R], strat strategy.Strategy, logger telemetry.Logger) xstream.Stream[O] {
	w := &Wye[L, R, O]{
		mb:       mailbox.New(),
		strat:    strat,
		logger:   logger.WithModule("wye"),
		id:       nextID.Add(1),
		program:  program,
		leftBias: true,
		left:     side[L]{kind: sideIdle, idleNext: func(cause.Cause) xstream.Stream[L] { return left }},
		right:    side[R]{kind: sideIdle, idleNext: func(cause.Cause) xstream.Stream[R] { return right }},
	}
	go w.mb.Run()
	return w.asStream()
}

func (w *Wye[L, R, O]) asStream() xstream.Stream[O] {
	return func() xstream.Step[O] {
		ch := make(chan result[O], 1)
		w.mb.Post(func() { w.handleGet(func(r result[O]) { ch <- r }) })
		r := <-ch
		if r.isHalt {
			return xstream.HaltStep[O](r.cause)
		}
		chunk := r.chunk
		return xstream.EmitStep(chunk, func(c cause.Cause) xstream.Stream[O] {
			if c.IsEnd() {
				return w.asStream()
			}
			return func() xstream.Step[O] {
				done := make(chan cause.Cause, 1)
				w.mb.Post(func() { w.handleClose(func(fc cause.Cause) { done <- fc }) })
				return xstream.HaltStep[O](<-done)
			}
		})
	}
}

func (w *Wye[L, R, O]) handleGet(cb func(result[O])) {
	if w.terminal {
		cb(result[O]{isHalt: true, cause: w.finalCause})
		w.mb.Close()
		return
	}
	if w.pendingGet != nil {
		panic("wye: concurrent Get on the same output")
	}
	w.pendingGet = cb
	w.advance()
}

func (w *Wye[L, R, O]) handleClose(cb func(cause.Cause)) {
	if w.terminal {
		cb(w.finalCause)
		w.mb.Close()
		return
	}
	w.pendingClose = cb
	c := cause.OfKill()
	if len(w.parkedChunk) > 0 || w.parkedNext != nil {
		// Nobody will ever Get this chunk now; drop it and drive the
		// program's continuation the same way any stream is cancelled.
		next := w.parkedNext
		w.parkedChunk = nil
		w.parkedNext = nil
		w.program = next(c)
	}
	if w.left.kind != sideDone {
		w.program = DisconnectL[L, R, O](w.program, c)
	}
	if w.right.kind != sideDone {
		w.program = DisconnectR[L, R, O](w.program, c)
	}
	w.killSideL()
	w.killSideR()
	w.advance()
}

// advance drives the program forward as far as it can go without blocking:
// delivering or parking output, feeding buffered elements into an awaiting
// program, or dispatching fetches for sides the program needs and isn't
// already pulling from.
func (w *Wye[L, R, O]) advance() {
	for {
		if len(w.parkedChunk) > 0 {
			if w.pendingGet == nil {
				return
			}
			cb := w.pendingGet
			w.pendingGet = nil
			chunk := w.parkedChunk
			next := w.parkedNext
			w.parkedChunk = nil
			w.parkedNext = nil
			w.program = next(cause.OfEnd())
			cb(result[O]{chunk: chunk})
			continue
		}

		step := w.program()
		switch step.Kind() {
		case StepEmit:
			chunk := step.Chunk()
			if len(chunk) == 0 {
				w.program = step.EmitNext(cause.OfEnd())
				continue
			}
			if w.pendingGet != nil {
				cb := w.pendingGet
				w.pendingGet = nil
				w.program = step.EmitNext(cause.OfEnd())
				cb(result[O]{chunk: chunk})
				continue
			}
			w.parkedChunk = chunk
			w.parkedNext = step.EmitNext
			return

		case StepAwaitL:
			if len(w.leftPending) > 0 {
				l := w.leftPending[0]
				w.leftPending = w.leftPending[1:]
				w.program = FeedL[L, R, O](step, l)
				continue
			}
			w.fetchLeft()
			return

		case StepAwaitR:
			if len(w.rightPending) > 0 {
				r := w.rightPending[0]
				w.rightPending = w.rightPending[1:]
				w.program = FeedR[L, R, O](step, r)
				continue
			}
			w.fetchRight()
			return

		case StepAwaitBoth:
			if fed, continued := w.feedPendingBoth(step); fed {
				if continued {
					continue
				}
				return
			}
			if w.leftBias {
				w.fetchLeft()
				w.fetchRight()
			} else {
				w.fetchRight()
				w.fetchLeft()
			}
			w.leftBias = !w.leftBias
			return

		case StepHalt:
			w.programDone = true
			c := step.Cause()
			w.killSideL()
			w.killSideR()
			if w.left.kind == sideDone && w.right.kind == sideDone {
				final := cause.CausedBy(c, cause.CausedBy(w.left.doneCause, w.right.doneCause))
				w.terminal = true
				w.finalCause = final
				if final.IsError() {
					w.logger.Error("wye terminated", telemetry.Int("id", int(w.id)), telemetry.Err(final.Err()))
				} else {
					w.logger.Info("wye terminated", telemetry.Int("id", int(w.id)), telemetry.Bool("killed", final.IsKill()))
				}
				answered := false
				if w.pendingGet != nil {
					cb := w.pendingGet
					w.pendingGet = nil
					cb(result[O]{isHalt: true, cause: final})
					answered = true
				}
				if w.pendingClose != nil {
					cb := w.pendingClose
					w.pendingClose = nil
					cb(final)
					answered = true
				}
				// With no caller waiting, the mailbox stays open so the next
				// Get or close reaches the terminal branch of its handler.
				if answered {
					w.mb.Close()
				}
			}
			return
		}
	}
}

// feedPendingBoth tries to feed one already-buffered element into step,
// honoring the current fairness bias. fed reports whether an element was
// available at all; continued reports whether the caller's loop should
// immediately reprocess the program (it always does when fed is true, but
// the explicit pair keeps the call site free of a magic bool).
func (w *Wye[L, R, O]) feedPendingBoth(step ProgramStep[L, R, O]) (fed, continued bool) {
	tryLeft := func() bool {
		if len(w.leftPending) == 0 {
			return false
		}
		l := w.leftPending[0]
		w.leftPending = w.leftPending[1:]
		w.program = FeedL[L, R, O](step, l)
		return true
	}
	tryRight := func() bool {
		if len(w.rightPending) == 0 {
			return false
		}
		r := w.rightPending[0]
		w.rightPending = w.rightPending[1:]
		w.program = FeedR[L, R, O](step, r)
		return true
	}
	if w.leftBias {
		if tryLeft() {
			return true, true
		}
		if tryRight() {
			return true, true
		}
	} else {
		if tryRight() {
			return true, true
		}
		if tryLeft() {
			return true, true
		}
	}
	return false, false
}

func (w *Wye[L, R, O]) fetchLeft() {
	if w.left.kind != sideIdle {
		return
	}
	next := w.left.idleNext
	w.left.idleNext = nil
	w.left.kind = sideRunning
	w.strat.Go(func() {
		step := xstream.Fetch(next, cause.OfEnd())
		w.mb.Post(func() { w.handleLeftReady(step) })
	}, func(c cause.Cause) {
		w.mb.Post(func() { w.handleLeftReady(xstream.HaltStep[L](c)) })
	})
}

func (w *Wye[L, R, O]) fetchRight() {
	if w.right.kind != sideIdle {
		return
	}
	next := w.right.idleNext
	w.right.idleNext = nil
	w.right.kind = sideRunning
	w.strat.Go(func() {
		step := xstream.Fetch(next, cause.OfEnd())
		w.mb.Post(func() { w.handleRightReady(step) })
	}, func(c cause.Cause) {
		w.mb.Post(func() { w.handleRightReady(xstream.HaltStep[R](c)) })
	})
}

// killSideL asks the left side to stop as soon as possible: an Idle side
// is fetched immediately with Kill instead of End; a Running side is just
// flagged, since its in-flight fetch is already underway and this module's
// streams don't carry their own cancellation channel (cancellation of a
// running fetch is best-effort). Either way, the side's next Ready is
// reinterpreted under the kill request.
func (w *Wye[L, R, O]) killSideL() {
	switch w.left.kind {
	case sideDone:
		return
	case sideIdle:
		next := w.left.idleNext
		w.left.idleNext = nil
		w.left.kind = sideRunning
		w.left.killRequested = true
		w.strat.Go(func() {
			step := xstream.Fetch(next, cause.OfKill())
			w.mb.Post(func() { w.handleLeftReady(step) })
		}, func(c cause.Cause) {
			w.mb.Post(func() { w.handleLeftReady(xstream.HaltStep[L](c)) })
		})
	case sideRunning:
		w.left.killRequested = true
	}
}

func (w *Wye[L, R, O]) killSideR() {
	switch w.right.kind {
	case sideDone:
		return
	case sideIdle:
		next := w.right.idleNext
		w.right.idleNext = nil
		w.right.kind = sideRunning
		w.right.killRequested = true
		w.strat.Go(func() {
			step := xstream.Fetch(next, cause.OfKill())
			w.mb.Post(func() { w.handleRightReady(step) })
		}, func(c cause.Cause) {
			w.mb.Post(func() { w.handleRightReady(xstream.HaltStep[R](c)) })
		})
	case sideRunning:
		w.right.killRequested = true
	}
}

func (w *Wye[L, R, O]) handleLeftReady(step xstream.Step[L]) {
	killed := w.left.killRequested
	w.left.killRequested = false

	w.logger.Debug("left side ready",
		telemetry.Int("id", int(w.id)),
		telemetry.Bool("halt", step.Kind() == xstream.KindHalt),
		telemetry.Bool("killed", killed))

	switch step.Kind() {
	case xstream.KindHalt:
		c := step.Cause()
		if killed {
			c = cause.KillOf(c)
		}
		w.left.kind = sideDone
		w.left.doneCause = c
		w.program = DisconnectL[L, R, O](w.program, c)
		w.advance()
	case xstream.KindEmit:
		if killed {
			// A chunk raced the kill request. It carries data the program
			// never asked to see once cut off, so it's discarded and the
			// continuation is redriven with Kill to force the side to its
			// terminal state.
			next := step.Next
			w.left.kind = sideRunning
			w.strat.Go(func() {
				s2 := xstream.Fetch(next, cause.OfKill())
				w.mb.Post(func() { w.handleLeftReady(s2) })
			}, func(c cause.Cause) {
				w.mb.Post(func() { w.handleLeftReady(xstream.HaltStep[L](c)) })
			})
			return
		}
		w.left.kind = sideIdle
		w.left.idleNext = step.Next
		w.leftPending = append(w.leftPending, step.Chunk()...)
		w.advance()
	}
}

func (w *Wye[L, R, O]) handleRightReady(step xstream.Step[R]) {
	killed := w.right.killRequested
	w.right.killRequested = false

	w.logger.Debug("right side ready",
		telemetry.Int("id", int(w.id)),
		telemetry.Bool("halt", step.Kind() == xstream.KindHalt),
		telemetry.Bool("killed", killed))

	switch step.Kind() {
	case xstream.KindHalt:
		c := step.Cause()
		if killed {
			c = cause.KillOf(c)
		}
		w.right.kind = sideDone
		w.right.doneCause = c
		w.program = DisconnectR[L, R, O](w.program, c)
		w.advance()
	case xstream.KindEmit:
		if killed {
			next := step.Next
			w.right.kind = sideRunning
			w.strat.Go(func() {
				s2 := xstream.Fetch(next, cause.OfKill())
				w.mb.Post(func() { w.handleRightReady(s2) })
			}, func(c cause.Cause) {
				w.mb.Post(func() { w.handleRightReady(xstream.HaltStep[R](c)) })
			})
			return
		}
		w.right.kind = sideIdle
		w.right.idleNext = step.Next
		w.rightPending = append(w.rightPending, step.Chunk()...)
		w.advance()
	}
}
