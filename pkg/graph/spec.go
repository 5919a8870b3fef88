// Package graph defines the immutable in-memory model for execution graphs:
// nodes, ports, edges, and the graph-level ports used for subgraph composition.
// A GraphSpec is produced once by an external parser or builder and reused
// across any number of runs; nothing in this package mutates it.
package graph

import (
	"encoding/json"
)

// NodeKind identifies how a node's reference is resolved and executed.
type NodeKind string

const (
	// NodeKindBlock references a registered leaf operation.
	NodeKindBlock NodeKind = "block"

	// NodeKindSubgraph references a nested GraphSpec executed recursively.
	NodeKindSubgraph NodeKind = "subgraph"

	// NodeKindMacro references an expansion template that is rewritten into a
	// node/edge fragment before scheduling.
	NodeKindMacro NodeKind = "macro"
)

// Valid reports whether the kind is one of the closed set of node kinds.
func (k NodeKind) Valid() bool {
	switch k {
	case NodeKindBlock, NodeKindSubgraph, NodeKindMacro:
		return true
	}
	return false
}

// PortDecl declares a named, typed port on a node definition or a graph.
type PortDecl struct {
	// Name is the port name, unique among ports of the same direction.
	Name string `json:"name"`
	// Type is the declared value type ("any", "string", "number", "boolean",
	// "object", "array"). "any" is compatible with every type.
	Type string `json:"type"`
}

// Compatible reports whether a value produced on a port of type src may be
// delivered to a port of type dst.
func Compatible(src, dst string) bool {
	if src == TypeAny || dst == TypeAny {
		return true
	}
	return src == dst
}

// Known port types. The engine does not interpret values beyond routing them,
// so the type system is intentionally a flat set of names plus a wildcard.
const (
	TypeAny     = "any"
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// NodeSpec describes a single node in a graph.
type NodeSpec struct {
	// ID is the node identifier, unique within its GraphSpec.
	ID string `json:"id"`
	// Kind selects which registry namespace Ref resolves in.
	Kind NodeKind `json:"kind"`
	// Ref is the reference id resolved through the registry.
	Ref string `json:"ref"`
	// Config is static, node-local configuration passed verbatim to the
	// resolved definition (block callable, macro template).
	Config json.RawMessage `json:"config,omitempty"`
}

// Endpoint names one side of an edge: a node and one of its ports.
type Endpoint struct {
	Node string `json:"node"`
	Port string `json:"port"`
}

// EdgeSpec is a directed data-flow edge from a source node's output port to a
// destination node's input port.
type EdgeSpec struct {
	From Endpoint `json:"from"`
	To   Endpoint `json:"to"`
}

// PortBinding exposes an inner node's port as a graph-level port. Input
// bindings deliver a graph input value to an inner node's input port; output
// bindings surface an inner node's output as a graph output.
type PortBinding struct {
	// Name is the graph-level port name.
	Name string `json:"name"`
	// Node is the inner node the binding attaches to.
	Node string `json:"node"`
	// Port is the inner node's port name.
	Port string `json:"port"`
	// Type is the declared type of the graph-level port.
	Type string `json:"type"`
}

// GraphSpec is the unit of scheduling: a set of nodes, the edges between
// them, and the declared graph-level ports used when this graph is embedded
// as a subgraph. It is immutable for the duration of a run.
type GraphSpec struct {
	// ID identifies the graph (used in logs and nested error chains).
	ID string `json:"id"`
	// Name is an optional human-readable title.
	Name string `json:"name,omitempty"`

	Nodes []NodeSpec `json:"nodes"`
	Edges []EdgeSpec `json:"edges,omitempty"`

	// Inputs and Outputs declare the graph-level ports for composition.
	Inputs  []PortBinding `json:"inputs,omitempty"`
	Outputs []PortBinding `json:"outputs,omitempty"`
}

// Node returns the node with the given id, or nil if absent.
func (g *GraphSpec) Node(id string) *NodeSpec {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// InputsTo returns the edges terminating at the given node.
func (g *GraphSpec) InputsTo(nodeID string) []EdgeSpec {
	var edges []EdgeSpec
	for _, e := range g.Edges {
		if e.To.Node == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// InputBindingsFor returns the graph input bindings attached to the node.
func (g *GraphSpec) InputBindingsFor(nodeID string) []PortBinding {
	var bindings []PortBinding
	for _, b := range g.Inputs {
		if b.Node == nodeID {
			bindings = append(bindings, b)
		}
	}
	return bindings
}

// PortDecls converts the graph-level bindings into plain port declarations,
// which is how an enclosing graph sees this graph when it is used as a
// subgraph definition.
func (g *GraphSpec) PortDecls() (inputs, outputs []PortDecl) {
	inputs = make([]PortDecl, 0, len(g.Inputs))
	for _, b := range g.Inputs {
		inputs = append(inputs, PortDecl{Name: b.Name, Type: b.Type})
	}
	outputs = make([]PortDecl, 0, len(g.Outputs))
	for _, b := range g.Outputs {
		outputs = append(outputs, PortDecl{Name: b.Name, Type: b.Type})
	}
	return inputs, outputs
}
