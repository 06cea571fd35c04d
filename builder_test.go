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

func TestBuilderRequiresAtLeastOneStage(t *testing.T) {
	_, err := NewBuilder().SetEntryNode("a").Build()
	require.Error(t, err)
}

func TestBuilderRequiresEntryNode(t *testing.T) {
	_, err := NewBuilder().AddStage("a", newMockStage("a", nil)).Build()
	require.Error(t, err)
}

func TestBuilderBuildsAndRunsALinearChain(t *testing.T) {
	upper := newMockStage("upper", func(ev Event) []Event {
		return []Event{NewEvent("upper", ev.Payload.(int)+1)}
	})
	double := newMockStage("double", func(ev Event) []Event {
		return []Event{NewEvent("double", ev.Payload.(int)*2)}
	})

	p, err := NewBuilder().
		AddStage("upper", upper).
		AddStage("double", double).
		Connect("upper", "double").
		SetEntryNode("upper").
		AddExitNode("double").
		Build()
	require.NoError(t, err)

	input := xstream.FromSlice([]Event{NewEvent("n", 1)}, 1)
	out := p.Execute(context.Background(), input, strategy.NewGoroutinePool(), telemetry.Nop(), 0)
	events, c := eventsOf(out)

	require.True(t, c.IsEnd())
	require.Len(t, events, 1)
	assert.Equal(t, 4, events[0].Payload)
}

func TestBuilderAddFanOutAndAddBarrierWireRealStages(t *testing.T) {
	left := newMockStage("left", func(ev Event) []Event {
		return []Event{NewEvent("left", ev.Payload.(int)+1), NewDoneEvent()}
	})
	right := newMockStage("right", func(ev Event) []Event {
		return []Event{NewEvent("right", ev.Payload.(int)+2), NewDoneEvent()}
	})

	p, err := NewBuilder().
		AddFanOut("split", FanOutConfig{
			ErrorPolicy: ErrorPolicyCancelAll,
			Branches: []BranchConfig{
				{Stage: left},
				{Stage: right},
			},
		}, telemetry.Nop()).
		AddBarrier("join", BarrierConfig{UpstreamCount: 2}, telemetry.Nop()).
		Connect("split", "join").
		SetEntryNode("split").
		AddExitNode("join").
		Build()
	require.NoError(t, err)

	input := xstream.FromSlice([]Event{NewEvent("n", 10)}, 1)
	out := p.Execute(context.Background(), input, strategy.NewGoroutinePool(), telemetry.Nop(), 0)
	events, c := eventsOf(out)

	require.True(t, c.IsEnd())
	require.NotEmpty(t, events)
	assert.True(t, events[len(events)-1].IsDone())

	var sawLeft, sawRight bool
	for _, ev := range events {
		if ev.Kind == "left" {
			sawLeft = true
		}
		if ev.Kind == "right" {
			sawRight = true
		}
	}
	assert.True(t, sawLeft)
	assert.True(t, sawRight)
}

func TestBuilderRejectsUnknownConnectEndpoint(t *testing.T) {
	_, err := NewBuilder().
		AddStage("a", newMockStage("a", nil)).
		Connect("a", "missing").
		SetEntryNode("a").
		Build()
	require.Error(t, err)
}
