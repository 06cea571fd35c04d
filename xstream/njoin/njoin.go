// Package njoin implements a dynamic many-stream merge combinator: an
// outer stream produces an unbounded sequence of inner streams, and Njoin
// merges all of their elements into one output stream, bounded by a cap
// on concurrently running inners and a cap on buffered, undelivered
// output.
//
// Each inner runs on its own goroutine and feeds one shared output queue;
// the engine counts running inners so the outer can keep producing new
// ones for the merge's entire lifetime. FanOutStage and graph nodes with
// several incoming edges use it as their fan-in.
package njoin

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/internal/mailbox"
	"github.com/corewye/pipeline/queue"
	"github.com/corewye/pipeline/signal"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/corewye/pipeline/xstream/wye"
)

// nextID hands out a process-wide, monotonically increasing id to every
// Njoin instance so its log lines can be correlated without depending on
// any caller-supplied identifier.
var nextID atomic.Int64

// Options bounds a merge: MaxOpen caps concurrently running inners (0 =
// unlimited) and MaxQueued caps buffered, undelivered output elements (0 =
// unlimited).
type Options struct {
	MaxOpen   int
	MaxQueued int
}

type outerKind int

const (
	// outerStarting is the zero value: constructed but no fetch dispatched
	// yet. Run collapses this straight into outerFetching on entry, so it
	// is never observed by a handler — it replaces a transient
	// idle-before-start state with an explicit one.
	outerStarting outerKind = iota
	outerFetching
	outerBackoff
	outerDone
)

type outerState[A any] struct {
	kind        outerKind
	backoffNext func(cause.Cause) xstream.Stream[xstream.Stream[A]]
	doneCause   cause.Cause
}

// Njoin runs the outer-driving state machine. All mutable state is
// touched only from handlers run on its mailbox; concurrent I/O (outer
// fetches, inner drains) is dispatched through a Strategy and reports back
// as posted handlers.
type Njoin[A any] struct {
	mb     *mailbox.Mailbox
	strat  strategy.Strategy
	logger telemetry.Logger
	id     int64

	maxOpen   int
	outer     outerState[A]
	openCount int

	outerPending []xstream.Stream[A]

	queue    *queue.Bounded[A]
	done     *signal.Bool
	shutdown bool
}

// Run builds and starts a Njoin engine for source, returning the merged
// output as a single Stream[A]. The engine's mailbox goroutine runs for
// the lifetime of the returned stream and exits once it halts.
func Run[A any](opts Options, source xstream.Stream[xstream.Stream[A]], strat strategy.Strategy, logger telemetry.Logger) xstream.Stream[A] {
	n := &Njoin[A]{
		mb:     mailbox.New(),
		strat:  strat,
		logger: logger.WithModule("njoin"),
		id:     nextID.Add(1),

		maxOpen: opts.MaxOpen,
		queue:   queue.NewBounded[A](opts.MaxQueued),
		done:    signal.NewBool(),
	}
	go n.mb.Run()
	n.mb.Post(func() {
		n.offerNext(func(cause.Cause) xstream.Stream[xstream.Stream[A]] { return source })
	})
	return n.asStream()
}

func (n *Njoin[A]) asStream() xstream.Stream[A] {
	return func() xstream.Step[A] {
		v, ok, err := n.queue.Dequeue(context.Background())
		if !ok {
			return xstream.HaltStep[A](dequeueCause(err))
		}
		return xstream.EmitStep([]A{v}, func(c cause.Cause) xstream.Stream[A] {
			if c.IsEnd() {
				return n.asStream()
			}
			return func() xstream.Step[A] {
				done := make(chan cause.Cause, 1)
				n.mb.Post(func() { n.handleFinishedDown(func(fc cause.Cause) { done <- fc }) })
				return xstream.HaltStep[A](<-done)
			}
		})
	}
}

func dequeueCause(err error) cause.Cause {
	switch {
	case err == nil:
		return cause.OfEnd()
	case errors.Is(err, queue.ErrKilled):
		return cause.OfKill()
	default:
		return cause.OfError(err)
	}
}

// offerNext drains any buffered-but-not-yet-launched inners from the last
// outer chunk, launching each until the concurrency cap is hit; once the
// backlog is empty and capacity remains, it dispatches an actual outer
// fetch for more. A no-op once shutdown has been requested — no new inner
// starts after that point.
func (n *Njoin[A]) offerNext(next func(cause.Cause) xstream.Stream[xstream.Stream[A]]) {
	if n.shutdown {
		return
	}
	for {
		if len(n.outerPending) == 0 {
			n.outer.kind = outerFetching
			n.strat.Go(func() {
				step := xstream.Fetch(next, cause.OfEnd())
				n.mb.Post(func() { n.handleOuterReady(step) })
			}, func(c cause.Cause) {
				n.mb.Post(func() { n.handleOuterReady(xstream.HaltStep[xstream.Stream[A]](c)) })
			})
			return
		}
		inner := n.outerPending[0]
		n.outerPending = n.outerPending[1:]
		n.launchInner(inner)
		if n.maxOpen > 0 && n.openCount >= n.maxOpen {
			n.outer.kind = outerBackoff
			n.outer.backoffNext = next
			return
		}
	}
}

func (n *Njoin[A]) handleOuterReady(step xstream.Step[xstream.Stream[A]]) {
	n.logger.Debug("outer offer",
		telemetry.Int("id", int(n.id)),
		telemetry.Bool("halt", step.Kind() == xstream.KindHalt),
		telemetry.Int("open_count", n.openCount))

	switch step.Kind() {
	case xstream.KindHalt:
		n.handleFinishedSource(step.Cause())
	case xstream.KindEmit:
		n.outerPending = append(n.outerPending, step.Chunk()...)
		n.offerNext(step.Next)
	}
}

func (n *Njoin[A]) handleFinishedSource(c cause.Cause) {
	if !c.IsEnd() {
		n.failAll(c)
		return
	}
	if n.openCount > 0 {
		n.outer.kind = outerDone
		n.outer.doneCause = cause.OfEnd()
		return
	}
	n.logger.Info("njoin terminated", telemetry.Int("id", int(n.id)), telemetry.Bool("killed", false))
	n.queue.FailWithCause(cause.OfEnd())
}

// launchInner starts one inner stream: its elements are interrupted by the
// shared done broadcast and piped into the output queue as they arrive,
// entirely on a dedicated goroutine. Completion is reported back as a
// Finished message.
func (n *Njoin[A]) launchInner(inner xstream.Stream[A]) {
	n.openCount++
	merged := wye.Run(wye.Interrupt[A](), n.done.AsStream(), inner, n.strat, n.logger)
	n.strat.Go(func() {
		c := drainInner(n.queue, merged)
		n.mb.Post(func() { n.handleFinished(c) })
	}, func(c cause.Cause) {
		n.mb.Post(func() { n.handleFinished(c) })
	})
}

func drainInner[A any](q *queue.Bounded[A], s xstream.Stream[A]) cause.Cause {
	for {
		step := s.Step()
		if step.Kind() == xstream.KindHalt {
			return step.Cause()
		}
		for _, v := range step.Chunk() {
			if err := q.Enqueue(context.Background(), v); err != nil {
				return drainToHalt(step.Next(cause.OfKill()))
			}
		}
		s = step.Next(cause.OfEnd())
	}
}

func drainToHalt[A any](s xstream.Stream[A]) cause.Cause {
	for {
		step := s.Step()
		if step.Kind() == xstream.KindHalt {
			return step.Cause()
		}
		s = step.Next(cause.OfKill())
	}
}

func (n *Njoin[A]) handleFinished(c cause.Cause) {
	n.openCount--

	n.logger.Debug("inner finished",
		telemetry.Int("id", int(n.id)),
		telemetry.Bool("end", c.IsEnd()),
		telemetry.Bool("killed", c.IsKill()),
		telemetry.Int("open_count", n.openCount))

	if c.IsError() {
		n.failAll(c)
		return
	}
	if c.IsKill() && !n.shutdown {
		n.failAll(c)
		return
	}

	switch {
	case n.outer.kind == outerBackoff && (n.maxOpen == 0 || n.openCount < n.maxOpen):
		next := n.outer.backoffNext
		n.outer.backoffNext = nil
		n.offerNext(next)
	case n.outer.kind == outerDone && n.openCount == 0:
		n.logger.Info("njoin terminated", telemetry.Int("id", int(n.id)), telemetry.Bool("killed", false))
		n.queue.FailWithCause(n.outer.doneCause)
	}
}

func (n *Njoin[A]) handleFinishedDown(cb func(cause.Cause)) {
	if !n.shutdown {
		n.failAll(cause.OfKill())
	}
	cb(cause.OfKill())
}

// failAll is the fatal-cause path: stop every running inner, fail the
// output queue so the downstream stream terminates, and stop the outer
// from ever offering another inner. Idempotent — only the first fatal
// cause drives the cascade.
func (n *Njoin[A]) failAll(c cause.Cause) {
	if n.shutdown {
		return
	}
	n.shutdown = true

	if c.IsError() {
		n.logger.Error("njoin terminated", telemetry.Int("id", int(n.id)), telemetry.Err(c.Err()))
	} else {
		n.logger.Info("njoin terminated", telemetry.Int("id", int(n.id)), telemetry.Bool("killed", c.IsKill()))
	}

	n.done.FailWithCause(c)
	n.queue.FailWithCause(c)

	switch n.outer.kind {
	case outerBackoff:
		next := n.outer.backoffNext
		n.outer.backoffNext = nil
		n.outer.kind = outerDone
		n.outer.doneCause = c
		n.strat.Go(func() {
			_ = xstream.Fetch(next, cause.OfKill())
		}, nil)
	case outerFetching, outerDone, outerStarting:
		// OuterFetching: the in-flight fetch's eventual Ready is handled
		// by handleOuterReady, whose offerNext call is now a no-op.
		// OuterDone/Starting: nothing to kill.
	}
}
