package graph

import "fmt"

// PortSet is the port surface of a resolved node definition, as needed for
// structural validation. The full definition (callable, nested body, macro
// template) lives in the registry; validation only needs the declared ports.
type PortSet struct {
	Inputs  []PortDecl
	Outputs []PortDecl
}

// Resolver looks up the declared ports for a node's reference. Implemented by
// the registry adapter. Must be safe for concurrent reads.
type Resolver interface {
	// NodePorts resolves the node's reference and returns its declared port
	// surface. A failed lookup is returned as-is and surfaces as an
	// unresolved-reference validation error.
	NodePorts(node NodeSpec) (PortSet, error)
}

// ValidateStructure checks a GraphSpec against its resolved definitions,
// failing fast on the first violation found: node id uniqueness, then a
// resolve pass over every node, then edge/binding port existence and type
// compatibility, then duplicate declared ports. Cycle detection is performed
// by the scheduler's traversal and composed with these checks by the engine,
// so the algorithm is not duplicated here.
//
// The pass is read-only; the graph is never modified.
func ValidateStructure(g *GraphSpec, resolver Resolver) error {
	// (1) node id uniqueness
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := seen[n.ID]; dup {
			return &ValidationError{
				Kind:   KindDuplicateNodeID,
				Graph:  g.ID,
				Node:   n.ID,
				Detail: "node id declared more than once",
			}
		}
		seen[n.ID] = struct{}{}
	}

	// (2) resolve pass: every reference must resolve before anything runs
	ports := make(map[string]PortSet, len(g.Nodes))
	for _, n := range g.Nodes {
		if !n.Kind.Valid() {
			return &ValidationError{
				Kind:   KindUnresolvedReference,
				Graph:  g.ID,
				Node:   n.ID,
				Detail: fmt.Sprintf("unknown node kind %q", n.Kind),
			}
		}
		ps, err := resolver.NodePorts(n)
		if err != nil {
			return &ValidationError{
				Kind:   KindUnresolvedReference,
				Graph:  g.ID,
				Node:   n.ID,
				Detail: fmt.Sprintf("reference %q did not resolve", n.Ref),
				Err:    err,
			}
		}
		if err := checkPortDecls(g.ID, n.ID, ps); err != nil {
			return err
		}
		ports[n.ID] = ps
	}

	// (3) edges: endpoints exist, ports exist, types are compatible
	for _, e := range g.Edges {
		srcPorts, ok := ports[e.From.Node]
		if !ok {
			return unknownPortErr(g.ID, e.From.Node, e.From.Port, "edge source node does not exist")
		}
		dstPorts, ok := ports[e.To.Node]
		if !ok {
			return unknownPortErr(g.ID, e.To.Node, e.To.Port, "edge destination node does not exist")
		}
		src, ok := findPort(srcPorts.Outputs, e.From.Port)
		if !ok {
			return unknownPortErr(g.ID, e.From.Node, e.From.Port, "edge source port is not a declared output")
		}
		dst, ok := findPort(dstPorts.Inputs, e.To.Port)
		if !ok {
			return unknownPortErr(g.ID, e.To.Node, e.To.Port, "edge destination port is not a declared input")
		}
		if !Compatible(src.Type, dst.Type) {
			return &ValidationError{
				Kind:  KindPortTypeMismatch,
				Graph: g.ID,
				Node:  e.To.Node,
				Detail: fmt.Sprintf("edge %s.%s (%s) -> %s.%s (%s): incompatible types",
					e.From.Node, e.From.Port, src.Type, e.To.Node, e.To.Port, dst.Type),
			}
		}
	}

	// graph-level bindings must attach to existing node ports
	for _, b := range g.Inputs {
		nodePorts, ok := ports[b.Node]
		if !ok {
			return unknownPortErr(g.ID, b.Node, b.Port, "input binding references unknown node")
		}
		if _, ok := findPort(nodePorts.Inputs, b.Port); !ok {
			return unknownPortErr(g.ID, b.Node, b.Port, "input binding references undeclared input port")
		}
	}
	for _, b := range g.Outputs {
		nodePorts, ok := ports[b.Node]
		if !ok {
			return unknownPortErr(g.ID, b.Node, b.Port, "output binding references unknown node")
		}
		if _, ok := findPort(nodePorts.Outputs, b.Port); !ok {
			return unknownPortErr(g.ID, b.Node, b.Port, "output binding references undeclared output port")
		}
	}
	if err := checkBindingNames(g.ID, g.Inputs, "graph input"); err != nil {
		return err
	}
	if err := checkBindingNames(g.ID, g.Outputs, "graph output"); err != nil {
		return err
	}

	return nil
}

// checkPortDecls rejects a definition declaring the same port name twice for
// the same direction. Duplicate declarations have no sensible merge behavior,
// so they fail validation instead of silently shadowing each other.
func checkPortDecls(graphID, nodeID string, ps PortSet) error {
	for dir, decls := range map[string][]PortDecl{"input": ps.Inputs, "output": ps.Outputs} {
		names := make(map[string]struct{}, len(decls))
		for _, d := range decls {
			if _, dup := names[d.Name]; dup {
				return &ValidationError{
					Kind:   KindDuplicatePort,
					Graph:  graphID,
					Node:   nodeID,
					Detail: fmt.Sprintf("definition declares %s port %q twice", dir, d.Name),
				}
			}
			names[d.Name] = struct{}{}
		}
	}
	return nil
}

func checkBindingNames(graphID string, bindings []PortBinding, what string) error {
	names := make(map[string]struct{}, len(bindings))
	for _, b := range bindings {
		if _, dup := names[b.Name]; dup {
			return &ValidationError{
				Kind:   KindDuplicatePort,
				Graph:  graphID,
				Detail: fmt.Sprintf("%s port %q declared twice", what, b.Name),
			}
		}
		names[b.Name] = struct{}{}
	}
	return nil
}

func findPort(decls []PortDecl, name string) (PortDecl, bool) {
	for _, d := range decls {
		if d.Name == name {
			return d, true
		}
	}
	return PortDecl{}, false
}

func unknownPortErr(graphID, node, port, detail string) *ValidationError {
	return &ValidationError{
		Kind:   KindUnknownPort,
		Graph:  graphID,
		Node:   node,
		Detail: fmt.Sprintf("port %q: %s", port, detail),
	}
}
