package pipeline

import (
	"context"

	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/corewye/pipeline/xstream/njoin"
)

// Pipeline is a validated, executable pipeline graph. Unlike the
// channel-wired executor this is adapted from, a Pipeline holds no
// goroutines or cancellation state of its own: Execute wires the graph's
// node Streams together lazily and hands the caller's ctx to every
// Stage.Run and tee. The njoin.Run merges it creates take no ctx; they
// stop when their output is driven with a non-End cause.
type Pipeline struct {
	graph *PipelineGraph
}

// NewPipeline creates a new pipeline from a validated graph.
func NewPipeline(graph *PipelineGraph) *Pipeline {
	return &Pipeline{graph: graph}
}

// Execute wires every node's input and output streams according to the
// graph's edges and returns the merged output of all exit nodes as a
// single Stream[Event]. maxQueued bounds every internal fan-out/fan-in
// buffer this wiring introduces (0 means unbounded).
func (p *Pipeline) Execute(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy, logger telemetry.Logger, maxQueued int) xstream.Stream[Event] {
	w := &wiring{
		graph:     p.graph,
		strat:     strat,
		logger:    logger.WithModule("pipeline"),
		ctx:       ctx,
		maxQueued: maxQueued,
		entry:     input,
		rawOutput: make(map[string]xstream.Stream[Event]),
		teed:      make(map[string][]xstream.Stream[Event]),
	}

	exitNodes := p.graph.GetExitNodes()
	exitStreams := make([]xstream.Stream[Event], 0, len(exitNodes))
	for _, n := range exitNodes {
		streams := w.consumerStreams(n)
		exitStreams = append(exitStreams, streams[len(streams)-1])
	}

	if len(exitStreams) == 1 {
		return exitStreams[0]
	}
	outer := xstream.FromSlice(exitStreams, len(exitStreams))
	return njoin.Run(njoin.Options{MaxQueued: maxQueued}, outer, strat, w.logger)
}

// wiring resolves each graph node's input and output streams exactly once,
// memoizing both so a node with several consumers (outgoing edges, or
// direct exit-node pull) shares one run of its Stage rather than re-running
// it per consumer.
type wiring struct {
	graph     *PipelineGraph
	strat     strategy.Strategy
	logger    telemetry.Logger
	ctx       context.Context
	maxQueued int
	entry     xstream.Stream[Event]

	rawOutput map[string]xstream.Stream[Event]
	teed      map[string][]xstream.Stream[Event]
}

// inputFor builds node's input stream: the pipeline's external input if it
// has no incoming edges, the sole upstream's filtered stream if it has one,
// or an njoin.Run merge of every upstream's filtered stream if it has more
// than one — NJOIN is this wiring's only fan-in mechanism, just as tee is
// its only fan-out mechanism.
func (w *wiring) inputFor(node *graphNode) xstream.Stream[Event] {
	edges := node.Inputs()
	switch len(edges) {
	case 0:
		return w.entry
	case 1:
		return w.consumerStreamForEdge(edges[0])
	default:
		inner := make([]xstream.Stream[Event], len(edges))
		for i, e := range edges {
			inner[i] = w.consumerStreamForEdge(e)
		}
		outer := xstream.FromSlice(inner, len(inner))
		return njoin.Run(njoin.Options{MaxQueued: w.maxQueued}, outer, w.strat, w.logger)
	}
}

func (w *wiring) consumerStreamForEdge(e *graphEdge) xstream.Stream[Event] {
	from := e.From()
	streams := w.consumerStreams(from)
	for i, out := range from.Outputs() {
		if out == e {
			return streams[i]
		}
	}
	panic("pipeline: edge not found among its source node's outputs")
}

// consumerStreams returns, for node, one Stream per outgoing edge (in
// node.Outputs() order) plus, if node is an exit node, one more at the end
// for direct pipeline output — all teed from a single run of node's Stage
// when there's more than one consumer, or the raw output stream untouched
// when there's exactly one.
func (w *wiring) consumerStreams(node *graphNode) []xstream.Stream[Event] {
	if streams, ok := w.teed[node.Name()]; ok {
		return streams
	}

	out := w.outputOf(node)
	edges := node.Outputs()
	isExit := w.isExitNode(node.Name())
	n := len(edges)
	if isExit {
		n++
	}

	var streams []xstream.Stream[Event]
	if n <= 1 {
		streams = []xstream.Stream[Event]{out}
	} else {
		filters := make([]func(Event) bool, n)
		for i, e := range edges {
			e := e
			filters[i] = func(ev Event) bool { return e.ShouldForwardEvent(ev.Kind) }
		}
		if isExit {
			filters[n-1] = func(Event) bool { return true }
		}
		streams = tee(w.ctx, w.strat, out, w.maxQueued, filters)
	}

	w.teed[node.Name()] = streams
	return streams
}

func (w *wiring) outputOf(node *graphNode) xstream.Stream[Event] {
	if out, ok := w.rawOutput[node.Name()]; ok {
		return out
	}
	in := w.inputFor(node)
	out := node.Stage().Run(w.ctx, in, w.strat)
	w.rawOutput[node.Name()] = out
	return out
}

func (w *wiring) isExitNode(name string) bool {
	for _, n := range w.graph.GetExitNodes() {
		if n.Name() == name {
			return true
		}
	}
	return false
}
