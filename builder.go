package pipeline

import (
	"fmt"

	"github.com/corewye/pipeline/telemetry"
)

// GraphBuilder constructs pipeline DAGs with a fluent API.
type GraphBuilder struct {
	graph     *PipelineGraph
	stages    map[string]Stage
	edges     []edgeConfig
	entryNode string
	exitNodes []string
}

type edgeConfig struct {
	from        string
	to          string
	eventFilter []EventKind
}

// NewBuilder creates a new graph-based pipeline builder.
func NewBuilder() *GraphBuilder {
	return &GraphBuilder{
		graph:     NewPipelineGraph(),
		stages:    make(map[string]Stage),
		edges:     make([]edgeConfig, 0),
		exitNodes: make([]string, 0),
	}
}

// AddStage adds a stage node to the pipeline.
func (b *GraphBuilder) AddStage(name string, stage Stage) *GraphBuilder {
	b.stages[name] = stage
	return b
}

// AddFanOut adds a FanOutStage node that routes to multiple branches.
func (b *GraphBuilder) AddFanOut(name string, config FanOutConfig, logger telemetry.Logger) *GraphBuilder {
	return b.AddStage(name, NewFanOutStage(name, config, logger))
}

// AddBarrier adds a BarrierStage node that synchronizes multiple branches.
func (b *GraphBuilder) AddBarrier(name string, config BarrierConfig, logger telemetry.Logger) *GraphBuilder {
	return b.AddStage(name, NewBarrierStage(name, config, logger))
}

// Connect creates an edge from one node to another with optional event
// filtering.
func (b *GraphBuilder) Connect(from, to string, eventFilter ...EventKind) *GraphBuilder {
	b.edges = append(b.edges, edgeConfig{
		from:        from,
		to:          to,
		eventFilter: eventFilter,
	})
	return b
}

// SetEntryNode sets the entry point for the pipeline.
func (b *GraphBuilder) SetEntryNode(name string) *GraphBuilder {
	b.entryNode = name
	return b
}

// AddExitNode marks a node as a terminal/exit node.
func (b *GraphBuilder) AddExitNode(name string) *GraphBuilder {
	b.exitNodes = append(b.exitNodes, name)
	return b
}

// Build creates and validates the pipeline graph.
func (b *GraphBuilder) Build() (*Pipeline, error) {
	if len(b.stages) == 0 {
		return nil, fmt.Errorf("pipeline must have at least one stage")
	}

	if b.entryNode == "" {
		return nil, fmt.Errorf("entry node must be set")
	}

	for name, stage := range b.stages {
		if err := b.graph.AddNode(name, stage); err != nil {
			return nil, fmt.Errorf("failed to add node %q: %w", name, err)
		}
	}

	for _, edge := range b.edges {
		if err := b.graph.AddEdge(edge.from, edge.to, edge.eventFilter); err != nil {
			return nil, fmt.Errorf("failed to add edge from %q to %q: %w", edge.from, edge.to, err)
		}
	}

	if err := b.graph.SetEntryNode(b.entryNode); err != nil {
		return nil, fmt.Errorf("failed to set entry node: %w", err)
	}

	for _, exitNode := range b.exitNodes {
		if err := b.graph.AddExitNode(exitNode); err != nil {
			return nil, fmt.Errorf("failed to add exit node %q: %w", exitNode, err)
		}
	}

	if err := ValidateGraph(b.graph); err != nil {
		return nil, fmt.Errorf("graph validation failed: %w", err)
	}

	return &Pipeline{graph: b.graph}, nil
}
