package pipeline

import (
	"context"

	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/xstream"
)

// Stage is one node in a pipeline graph. Unlike the channel-based
// Process(ctx, input, output) error shape, a Stage pulls from an input
// Stream and returns an output Stream: composition is just handing one
// stage's output to the next stage's input, with no goroutine or channel
// wiring exposed at the interface boundary. A Stage backed by wye.Run or
// njoin.Run is exactly as valid as one backed by a plain transform.
type Stage interface {
	Name() string
	Run(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy) xstream.Stream[Event]

	// InputKinds returns the event kinds this stage accepts. An empty
	// slice, or a slice containing EventKindWildcard, accepts everything.
	InputKinds() []EventKind

	// OutputKinds returns the event kinds this stage produces.
	OutputKinds() []EventKind
}
