package pipeline

import "fmt"

// ValidationError represents a validation error with context.
type ValidationError struct {
	Message string
	Details string
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// ValidateGraph performs comprehensive validation on a pipeline graph.
func ValidateGraph(graph *PipelineGraph) error {
	if graph.GetEntryNode() == nil {
		return ValidationError{
			Message: "graph validation failed",
			Details: "no entry node defined",
		}
	}

	if err := detectCycles(graph); err != nil {
		return err
	}

	if err := checkReachability(graph); err != nil {
		return err
	}

	if err := validateTypeCompatibility(graph); err != nil {
		return err
	}

	return nil
}

// detectCycles uses depth-first search to detect cycles in the graph.
func detectCycles(graph *PipelineGraph) error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, node := range graph.AllNodes() {
		if !visited[node.Name()] {
			if hasCycle(node, visited, recStack) {
				return ValidationError{
					Message: "graph validation failed",
					Details: "cycle detected in pipeline graph",
				}
			}
		}
	}

	return nil
}

func hasCycle(node *graphNode, visited, recStack map[string]bool) bool {
	visited[node.Name()] = true
	recStack[node.Name()] = true

	for _, edge := range node.Outputs() {
		neighbor := edge.To()

		if !visited[neighbor.Name()] {
			if hasCycle(neighbor, visited, recStack) {
				return true
			}
		} else if recStack[neighbor.Name()] {
			return true
		}
	}

	recStack[node.Name()] = false
	return false
}

// checkReachability verifies that all nodes are reachable from the entry
// node.
func checkReachability(graph *PipelineGraph) error {
	entryNode := graph.GetEntryNode()
	if entryNode == nil {
		return ValidationError{
			Message: "graph validation failed",
			Details: "no entry node defined",
		}
	}

	reachable := make(map[string]bool)
	dfsReachability(entryNode, reachable)

	for _, node := range graph.AllNodes() {
		if !reachable[node.Name()] {
			return ValidationError{
				Message: "graph validation failed",
				Details: fmt.Sprintf("stage %q is unreachable from entry node", node.Name()),
			}
		}
	}

	return nil
}

func dfsReachability(node *graphNode, reachable map[string]bool) {
	if reachable[node.Name()] {
		return
	}

	reachable[node.Name()] = true

	for _, edge := range node.Outputs() {
		dfsReachability(edge.To(), reachable)
	}
}

// validateTypeCompatibility checks that connected stages have compatible
// declared event kinds.
func validateTypeCompatibility(graph *PipelineGraph) error {
	for _, node := range graph.AllNodes() {
		outputKinds := node.Stage().OutputKinds()

		for _, edge := range node.Outputs() {
			downstreamNode := edge.To()
			downstreamInputKinds := downstreamNode.Stage().InputKinds()

			if acceptsAny(downstreamInputKinds) || acceptsAny(outputKinds) {
				continue
			}

			if !hasCompatibleKind(outputKinds, downstreamInputKinds, edge.EventFilter()) {
				return ValidationError{
					Message: "graph validation failed",
					Details: fmt.Sprintf(
						"incompatible kinds between stage %q (outputs: %v) and stage %q (inputs: %v)",
						node.Name(), outputKinds,
						downstreamNode.Name(), downstreamInputKinds,
					),
				}
			}
		}
	}

	return nil
}

func acceptsAny(kinds []EventKind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == EventKindWildcard {
			return true
		}
	}
	return false
}

// hasCompatibleKind checks if there's at least one compatible kind between
// upstream and downstream, considering the edge filter.
func hasCompatibleKind(upstreamKinds, downstreamKinds []EventKind, filter map[EventKind]bool) bool {
	forwarded := make(map[EventKind]bool)

	if filter == nil {
		for _, k := range upstreamKinds {
			forwarded[k] = true
		}
	} else {
		for _, k := range upstreamKinds {
			if filter[k] {
				forwarded[k] = true
			}
		}
	}

	for _, k := range downstreamKinds {
		if forwarded[k] {
			return true
		}
	}

	return false
}
