package pipeline

import "fmt"

// PipelineGraph represents the compiled pipeline topology as a directed
// acyclic graph (DAG). Every node carries a real Stage — fan-out and
// barrier nodes are ordinary Stage implementations (FanOutStage,
// BarrierStage), not a separate synthetic node kind.
type PipelineGraph struct {
	nodes map[string]*graphNode

	entryNode string
	exitNodes []string
}

// graphNode is one stage in the pipeline graph.
type graphNode struct {
	name    string
	stage   Stage
	outputs []*graphEdge
	inputs  []*graphEdge
}

// graphEdge is a directed edge in the pipeline graph.
type graphEdge struct {
	from *graphNode
	to   *graphNode

	// eventFilter maps event kinds to whether they should be forwarded.
	// nil means forward all events.
	eventFilter map[EventKind]bool
}

// NewPipelineGraph creates a new empty pipeline graph.
func NewPipelineGraph() *PipelineGraph {
	return &PipelineGraph{
		nodes:     make(map[string]*graphNode),
		exitNodes: make([]string, 0),
	}
}

// AddNode adds a stage node to the graph.
func (pg *PipelineGraph) AddNode(name string, stage Stage) error {
	if _, exists := pg.nodes[name]; exists {
		return fmt.Errorf("node %q already exists in graph", name)
	}

	pg.nodes[name] = &graphNode{
		name:    name,
		stage:   stage,
		outputs: make([]*graphEdge, 0),
		inputs:  make([]*graphEdge, 0),
	}

	return nil
}

// AddEdge adds a directed edge from source to destination with optional
// event filtering.
func (pg *PipelineGraph) AddEdge(fromName, toName string, eventFilter []EventKind) error {
	fromNode, exists := pg.nodes[fromName]
	if !exists {
		return fmt.Errorf("source node %q does not exist", fromName)
	}

	toNode, exists := pg.nodes[toName]
	if !exists {
		return fmt.Errorf("destination node %q does not exist", toName)
	}

	var filterMap map[EventKind]bool
	if len(eventFilter) > 0 {
		filterMap = make(map[EventKind]bool)
		for _, k := range eventFilter {
			filterMap[k] = true
		}
	}

	edge := &graphEdge{
		from:        fromNode,
		to:          toNode,
		eventFilter: filterMap,
	}

	fromNode.outputs = append(fromNode.outputs, edge)
	toNode.inputs = append(toNode.inputs, edge)

	return nil
}

// SetEntryNode sets the entry point for the pipeline.
func (pg *PipelineGraph) SetEntryNode(name string) error {
	if _, exists := pg.nodes[name]; !exists {
		return fmt.Errorf("entry node %q does not exist", name)
	}
	pg.entryNode = name
	return nil
}

// AddExitNode marks a node as a terminal/exit node.
func (pg *PipelineGraph) AddExitNode(name string) error {
	if _, exists := pg.nodes[name]; !exists {
		return fmt.Errorf("exit node %q does not exist", name)
	}
	pg.exitNodes = append(pg.exitNodes, name)
	return nil
}

// GetNode retrieves a node by name.
func (pg *PipelineGraph) GetNode(name string) *graphNode {
	return pg.nodes[name]
}

// GetEntryNode returns the entry node.
func (pg *PipelineGraph) GetEntryNode() *graphNode {
	if pg.entryNode == "" {
		return nil
	}
	return pg.nodes[pg.entryNode]
}

// GetExitNodes returns all exit nodes.
func (pg *PipelineGraph) GetExitNodes() []*graphNode {
	exitNodes := make([]*graphNode, 0, len(pg.exitNodes))
	for _, name := range pg.exitNodes {
		exitNodes = append(exitNodes, pg.nodes[name])
	}
	return exitNodes
}

// AllNodes returns all nodes in the graph.
func (pg *PipelineGraph) AllNodes() []*graphNode {
	nodes := make([]*graphNode, 0, len(pg.nodes))
	for _, node := range pg.nodes {
		nodes = append(nodes, node)
	}
	return nodes
}

func (n *graphNode) Name() string { return n.name }

func (n *graphNode) Stage() Stage { return n.stage }

func (n *graphNode) Outputs() []*graphEdge { return n.outputs }

func (n *graphNode) Inputs() []*graphEdge { return n.inputs }

func (e *graphEdge) From() *graphNode { return e.from }

func (e *graphEdge) To() *graphNode { return e.to }

// ShouldForwardEvent checks if an event kind should be forwarded on this
// edge.
func (e *graphEdge) ShouldForwardEvent(kind EventKind) bool {
	if e.eventFilter == nil {
		return true
	}
	return e.eventFilter[kind]
}

// EventFilter returns the event filter map.
func (e *graphEdge) EventFilter() map[EventKind]bool { return e.eventFilter }
