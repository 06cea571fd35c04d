package pipeline

import (
	"context"
	"testing"

	"github.com/corewye/pipeline/strategy"
	"github.com/corewye/pipeline/telemetry"
	"github.com/corewye/pipeline/xstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagStage(name, tag string) *mockStage {
	return newMockStage(name, func(ev Event) []Event {
		return []Event{NewEvent(EventKind(tag), ev.Payload)}
	})
}

// TestPipelineMergesMultipleIncomingEdgesViaNjoin exercises a diamond graph:
// one node's output is teed to two branches, and a downstream node with two
// incoming edges merges them back via njoin.Run.
func TestPipelineMergesMultipleIncomingEdgesViaNjoin(t *testing.T) {
	g := NewPipelineGraph()
	require.NoError(t, g.AddNode("source", newMockStage("source", nil)))
	require.NoError(t, g.AddNode("b1", tagStage("b1", "left")))
	require.NoError(t, g.AddNode("b2", tagStage("b2", "right")))
	require.NoError(t, g.AddNode("merge", newMockStage("merge", nil)))

	require.NoError(t, g.AddEdge("source", "b1", nil))
	require.NoError(t, g.AddEdge("source", "b2", nil))
	require.NoError(t, g.AddEdge("b1", "merge", nil))
	require.NoError(t, g.AddEdge("b2", "merge", nil))

	require.NoError(t, g.SetEntryNode("source"))
	require.NoError(t, g.AddExitNode("merge"))
	require.NoError(t, ValidateGraph(g))

	p := NewPipeline(g)
	input := xstream.FromSlice([]Event{NewEvent("n", 1)}, 1)
	out := p.Execute(context.Background(), input, strategy.NewGoroutinePool(), telemetry.Nop(), 0)
	events, c := eventsOf(out)

	require.True(t, c.IsEnd())
	require.Len(t, events, 2)

	kinds := map[EventKind]bool{}
	for _, ev := range events {
		kinds[ev.Kind] = true
	}
	assert.True(t, kinds["left"])
	assert.True(t, kinds["right"])
}

// TestPipelineExitNodeWithOutgoingEdgeIsTeedOnce verifies that a node which
// is both an exit node and the source of an outgoing edge gets exactly one
// run of its Stage, shared between the pipeline's direct output and its
// downstream consumer.
func TestPipelineExitNodeWithOutgoingEdgeIsTeedOnce(t *testing.T) {
	countingTagger := &countingStage{mockStage: mockStage{name: "tagger", transform: func(ev Event) []Event {
		return []Event{NewEvent("tagged", ev.Payload)}
	}}}
	consumer := newMockStage("consumer", func(ev Event) []Event {
		return []Event{NewEvent("consumed", ev.Payload)}
	})

	g := NewPipelineGraph()
	require.NoError(t, g.AddNode("tagger", countingTagger))
	require.NoError(t, g.AddNode("consumer", consumer))
	require.NoError(t, g.AddEdge("tagger", "consumer", nil))
	require.NoError(t, g.SetEntryNode("tagger"))
	require.NoError(t, g.AddExitNode("tagger"))
	require.NoError(t, g.AddExitNode("consumer"))

	p := NewPipeline(g)
	input := xstream.FromSlice([]Event{NewEvent("n", 7)}, 1)
	out := p.Execute(context.Background(), input, strategy.NewGoroutinePool(), telemetry.Nop(), 0)
	events, c := eventsOf(out)

	require.True(t, c.IsEnd())
	assert.Equal(t, 1, countingTagger.runCalls, "tagger.Run must be invoked exactly once regardless of fan-out")

	var sawTagged, sawConsumed bool
	for _, ev := range events {
		if ev.Kind == "tagged" {
			sawTagged = true
		}
		if ev.Kind == "consumed" {
			sawConsumed = true
		}
	}
	assert.True(t, sawTagged)
	assert.True(t, sawConsumed)
}

// countingStage wraps mockStage to count how many times Run is invoked,
// independent of how many times the Stream it returns is pulled.
type countingStage struct {
	mockStage
	runCalls int
}

func (c *countingStage) Run(ctx context.Context, input xstream.Stream[Event], strat strategy.Strategy) xstream.Stream[Event] {
	c.runCalls++
	return c.mockStage.Run(ctx, input, strat)
}

func TestPipelineSingleExitNodeReturnsItsStreamDirectly(t *testing.T) {
	g := NewPipelineGraph()
	require.NoError(t, g.AddNode("only", newMockStage("only", nil)))
	require.NoError(t, g.SetEntryNode("only"))
	require.NoError(t, g.AddExitNode("only"))

	p := NewPipeline(g)
	input := xstream.FromSlice([]Event{NewEvent("n", 1), NewEvent("n", 2)}, 1)
	out := p.Execute(context.Background(), input, strategy.NewGoroutinePool(), telemetry.Nop(), 0)
	events, c := eventsOf(out)

	require.True(t, c.IsEnd())
	require.Len(t, events, 2)
}
