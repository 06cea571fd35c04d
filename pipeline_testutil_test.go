package pipeline

import (
	"context"

	"github.com/corewye/pipeline/cause"
	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/xstream"
)

// mockStage is a minimal Stage shared by this package's tests: it applies
// transform to every event pulled from its input (nil means passthrough)
// and declares whatever input/output kinds the test configures.
type mockStage struct {
	name      string
	in, out   []EventKind
	transform func(Event) []Event
}

func newMockStage(name string, transform func(Event) []Event) *mockStage {
	return &mockStage{name: name, transform: transform}
}

func (m *mockStage) Name() string { return m.name }

func (m *mockStage) InputKinds() []EventKind {
	if m.in == nil {
		return []EventKind{EventKindWildcard}
	}
	return m.in
}

func (m *mockStage) OutputKinds() []EventKind {
	if m.out == nil {
		return []EventKind{EventKindWildcard}
	}
	return m.out
}

func (m *mockStage) Run(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy) xstream.Stream[Event] {
	transform := m.transform
	if transform == nil {
		transform = func(ev Event) []Event { return []Event{ev} }
	}
	return mapEvents(input, transform)
}

// mapEvents applies f to every element of s, flattening its results, and
// preserves s's halt cause untouched.
func mapEvents(s xstream.Stream[Event], f func(Event) []Event) xstream.Stream[Event] {
	return func() xstream.Step[Event] {
		step := s.Step()
		if step.Kind() == xstream.KindHalt {
			return xstream.HaltStep[Event](step.Cause())
		}

		out := make([]Event, 0, len(step.Chunk()))
		for _, ev := range step.Chunk() {
			out = append(out, f(ev)...)
		}
		next := step.Next
		if len(out) == 0 {
			return mapEvents(next(cause.OfEnd()), f)()
		}
		return xstream.EmitStep(out, func(c cause.Cause) xstream.Stream[Event] {
			return mapEvents(next(c), f)
		})
	}
}

// eventsOf drains s synchronously under cause.OfEnd(), like xstream.Drain,
// returning the collected events and the terminal cause.
func eventsOf(s xstream.Stream[Event]) ([]Event, cause.Cause) {
	return xstream.Drain(s)
}
