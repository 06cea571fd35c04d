package wye

import "github.com/corewye/pipeline/cause"

// StepKind discriminates a ProgramStep's variant.
type StepKind int

const (
	// StepEmit carries output elements plus a continuation keyed on a cause,
	// mirroring xstream.Step's Emit variant.
	StepEmit StepKind = iota
	// StepAwaitL suspends until the left side delivers or halts.
	StepAwaitL
	// StepAwaitR suspends until the right side delivers or halts.
	StepAwaitR
	// StepAwaitBoth suspends until either side delivers or halts.
	StepAwaitBoth
	// StepHalt is terminal: the program produces no further output and
	// both sides should be stopped if they haven't halted on their own.
	StepHalt
)

// ProgramStep is one suspension of a Program[L, R, O]: an output chunk plus
// continuation, a suspension awaiting one or both sides, or a terminal
// halt. Built only via the constructors in this file.
type ProgramStep[L, R, O any] struct {
	kind      StepKind
	chunk     []O
	emitNext  func(cause.Cause) Program[L, R, O]
	awaitNext func(Delivery[L, R]) Program[L, R, O]
	cause     cause.Cause
}

// Kind reports which variant this step is.
func (s ProgramStep[L, R, O]) Kind() StepKind { return s.kind }

// Chunk returns the emitted batch. Valid only when Kind() == StepEmit.
func (s ProgramStep[L, R, O]) Chunk() []O { return s.chunk }

// EmitNext resumes an Emit step. Valid only when Kind() == StepEmit.
func (s ProgramStep[L, R, O]) EmitNext(c cause.Cause) Program[L, R, O] { return s.emitNext(c) }

// Feed resumes an AwaitL/AwaitR/AwaitBoth step with a delivery. Valid only
// when Kind() is one of those three.
func (s ProgramStep[L, R, O]) Feed(d Delivery[L, R]) Program[L, R, O] { return s.awaitNext(d) }

// Cause returns the terminal cause. Valid only when Kind() == StepHalt.
func (s ProgramStep[L, R, O]) Cause() cause.Cause { return s.cause }

// Program is a merge program: a thunk that, when stepped, yields one
// ProgramStep describing what it wants next. The Wye engine drives a
// Program forward by feeding it side deliveries and collecting its
// emitted output, the same way xstream.Stream is driven forward by a
// single consumer.
type Program[L, R, O any] func() ProgramStep[L, R, O]

// Step pulls the next suspension from p.
func (p Program[L, R, O]) Step() ProgramStep[L, R, O] { return p() }

// Emit returns a Program that emits chunk once, then continues as next(c).
func Emit[L, R, O any](chunk []O, next func(cause.Cause) Program[L, R, O]) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		return ProgramStep[L, R, O]{kind: StepEmit, chunk: chunk, emitNext: next}
	}
}

// AwaitL returns a Program that suspends until the left side delivers an
// element or halts.
func AwaitL[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		return ProgramStep[L, R, O]{kind: StepAwaitL, awaitNext: next}
	}
}

// AwaitR returns a Program that suspends until the right side delivers an
// element or halts.
func AwaitR[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		return ProgramStep[L, R, O]{kind: StepAwaitR, awaitNext: next}
	}
}

// AwaitBoth returns a Program that suspends until either side delivers an
// element or halts, whichever happens first.
func AwaitBoth[L, R, O any](next func(Delivery[L, R]) Program[L, R, O]) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		return ProgramStep[L, R, O]{kind: StepAwaitBoth, awaitNext: next}
	}
}

// Halt returns a Program that immediately and permanently halts with c.
func Halt[L, R, O any](c cause.Cause) Program[L, R, O] {
	return func() ProgramStep[L, R, O] { return ProgramStep[L, R, O]{kind: StepHalt, cause: c} }
}

// FeedL feeds a left element into a step awaiting that side.
func FeedL[L, R, O any](step ProgramStep[L, R, O], l L) Program[L, R, O] {
	return step.Feed(OfLeft[L, R](l))
}

// FeedR feeds a right element into a step awaiting that side.
func FeedR[L, R, O any](step ProgramStep[L, R, O], r R) Program[L, R, O] {
	return step.Feed(OfRight[L, R](r))
}

// DisconnectL rewrites p so that every AwaitL/AwaitBoth suspension it ever
// reaches (directly, or after any number of Emit steps) is immediately
// resolved with HaltLeft(c) instead of actually waiting on the left side.
// The Wye engine applies this the instant the left side reaches Done, so
// a program that has already committed to awaiting a side that will never
// deliver again doesn't stall — it learns about the halt on its very next
// suspension.
func DisconnectL[L, R, O any](p Program[L, R, O], c cause.Cause) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		step := p()
		switch step.kind {
		case StepEmit:
			inner := step.emitNext
			step.emitNext = func(rc cause.Cause) Program[L, R, O] { return DisconnectL(inner(rc), c) }
			return step
		case StepAwaitL, StepAwaitBoth:
			return DisconnectL(step.Feed(OfHaltLeft[L, R](c)), c)()
		case StepAwaitR:
			inner := step.awaitNext
			step.awaitNext = func(d Delivery[L, R]) Program[L, R, O] { return DisconnectL(inner(d), c) }
			return step
		default:
			return step
		}
	}
}

// DisconnectR is DisconnectL's mirror image for the right side.
func DisconnectR[L, R, O any](p Program[L, R, O], c cause.Cause) Program[L, R, O] {
	return func() ProgramStep[L, R, O] {
		step := p()
		switch step.kind {
		case StepEmit:
			inner := step.emitNext
			step.emitNext = func(rc cause.Cause) Program[L, R, O] { return DisconnectR(inner(rc), c) }
			return step
		case StepAwaitR, StepAwaitBoth:
			return DisconnectR(step.Feed(OfHaltRight[L, R](c)), c)()
		case StepAwaitL:
			inner := step.awaitNext
			step.awaitNext = func(d Delivery[L, R]) Program[L, R, O] { return DisconnectR(inner(d), c) }
			return step
		default:
			return step
		}
	}
}
