package graph

import (
	"fmt"
	"strings"
)

// ValidationKind classifies why a graph was rejected before execution.
type ValidationKind string

const (
	// KindDuplicateNodeID means two nodes share the same id.
	KindDuplicateNodeID ValidationKind = "duplicate_node_id"

	// KindUnresolvedReference means a node's ref does not resolve in the
	// registry for the node's kind.
	KindUnresolvedReference ValidationKind = "unresolved_reference"

	// KindUnknownPort means an edge or binding names a port the referenced
	// definition does not declare.
	KindUnknownPort ValidationKind = "unknown_port"

	// KindPortTypeMismatch means an edge connects ports with incompatible
	// declared types.
	KindPortTypeMismatch ValidationKind = "port_type_mismatch"

	// KindDuplicatePort means a definition or graph declares the same port
	// name twice for the same direction.
	KindDuplicatePort ValidationKind = "duplicate_port"

	// KindCycleDetected means the edge set induces a dependency cycle.
	KindCycleDetected ValidationKind = "cycle_detected"

	// KindMaxDepthExceeded means subgraph nesting exceeds the configured
	// maximum depth.
	KindMaxDepthExceeded ValidationKind = "max_depth_exceeded"
)

// ValidationError rejects a GraphSpec before any node executes. The run is
// aborted and no partial report is produced.
type ValidationError struct {
	// Kind is the machine-readable classification.
	Kind ValidationKind
	// Graph is the id of the graph the violation was found in.
	Graph string
	// Node is the offending node id, when the violation is node-local.
	Node string
	// Nodes holds the full offending id set for cycle errors.
	Nodes []string
	// Detail is the human-readable explanation.
	Detail string
	// Err is the underlying error, if any (registry lookup failures).
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s]", e.Kind)
	if e.Graph != "" {
		fmt.Fprintf(&b, " graph %q", e.Graph)
	}
	if e.Node != "" {
		fmt.Fprintf(&b, " node %q", e.Node)
	}
	if len(e.Nodes) > 0 {
		fmt.Fprintf(&b, " nodes [%s]", strings.Join(e.Nodes, ", "))
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewCycleError builds the CycleDetected validation error. The node ids are
// reported as the exact unconsumed remainder of the topological traversal,
// not a vague "cycle exists" message.
func NewCycleError(graphID string, nodes []string) *ValidationError {
	return &ValidationError{
		Kind:   KindCycleDetected,
		Graph:  graphID,
		Nodes:  nodes,
		Detail: "edge set induces a dependency cycle",
	}
}
