// Package registry provides the read-only lookup of node definitions used by
// the execution engine: block signatures and callables, subgraph bodies, and
// macro expansion templates, each keyed by a reference id within its kind.
//
// A Registry is populated before any run and is then shared by reference
// across all worker goroutines; Resolve performs no writes during a run.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/graph"
)

// ErrNotFound indicates that a reference id did not resolve. It is a
// validation-time error: the engine surfaces it before any node executes.
var ErrNotFound = errors.New("definition not found")

// BlockFunc is the contract for a leaf operation: given named input values it
// returns named output values or an error. The engine never retries a block,
// so effectful blocks must be safe to run at most once per node per run.
type BlockFunc func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error)

// InputPort declares a block input, optionally with a default value used when
// no edge feeds the port.
type InputPort struct {
	graph.PortDecl
	// Optional marks the port as satisfiable without an incoming edge.
	Optional bool
	// Default is the value delivered when an optional port has no edge.
	Default any
}

// BlockDefinition is a registered leaf operation.
type BlockDefinition struct {
	// Ref is the reference id this definition is registered under.
	Ref string
	// Inputs and Outputs declare the port surface.
	Inputs  []InputPort
	Outputs []graph.PortDecl
	// Run is the callable invoked by the block executor.
	Run BlockFunc
}

// MacroTemplate expands one macro node into an equivalent node/edge fragment.
// Expansion must be deterministic and pure: the same template and the same
// static configuration produce the same fragment every time, with no side
// effects of its own.
type MacroTemplate struct {
	// Ref is the reference id this template is registered under.
	Ref string
	// Inputs and Outputs declare the macro node's port surface. The expanded
	// fragment's graph-level bindings must cover the same names.
	Inputs  []InputPort
	Outputs []graph.PortDecl
	// Expand produces the fragment for the given static configuration.
	Expand func(config json.RawMessage) (*graph.GraphSpec, error)
}

// ResolvedDefinition is the closed tagged union over the three node kinds.
// Exactly one of Block, Graph, Macro is non-nil, matching Kind. Resolving
// once at validation time keeps executor dispatch a plain switch.
type ResolvedDefinition struct {
	Kind  graph.NodeKind
	Block *BlockDefinition
	Graph *graph.GraphSpec
	Macro *MacroTemplate
}

// Ports returns the declared port surface of the definition.
func (d ResolvedDefinition) Ports() graph.PortSet {
	switch d.Kind {
	case graph.NodeKindBlock:
		return graph.PortSet{Inputs: inputDecls(d.Block.Inputs), Outputs: d.Block.Outputs}
	case graph.NodeKindSubgraph:
		in, out := d.Graph.PortDecls()
		return graph.PortSet{Inputs: in, Outputs: out}
	case graph.NodeKindMacro:
		return graph.PortSet{Inputs: inputDecls(d.Macro.Inputs), Outputs: d.Macro.Outputs}
	}
	return graph.PortSet{}
}

// InputPorts returns the kind-specific input declarations, including defaults.
func (d ResolvedDefinition) InputPorts() []InputPort {
	switch d.Kind {
	case graph.NodeKindBlock:
		return d.Block.Inputs
	case graph.NodeKindMacro:
		return d.Macro.Inputs
	case graph.NodeKindSubgraph:
		decls, _ := d.Graph.PortDecls()
		ports := make([]InputPort, 0, len(decls))
		for _, p := range decls {
			ports = append(ports, InputPort{PortDecl: p})
		}
		return ports
	}
	return nil
}

func inputDecls(ports []InputPort) []graph.PortDecl {
	decls := make([]graph.PortDecl, 0, len(ports))
	for _, p := range ports {
		decls = append(decls, p.PortDecl)
	}
	return decls
}

// View is the read surface the engine consumes. It must be safe for
// concurrent reads from multiple worker goroutines.
type View interface {
	graph.Resolver

	// Resolve returns the full definition for a node's reference, looked up
	// within the namespace of the node's kind.
	Resolve(node graph.NodeSpec) (ResolvedDefinition, error)
}

// Registry is an in-memory implementation of View. Registration happens
// during setup; after that the registry is read-only and lock contention is
// limited to the RWMutex read path.
type Registry struct {
	mu     sync.RWMutex
	blocks map[string]*BlockDefinition
	graphs map[string]*graph.GraphSpec
	macros map[string]*MacroTemplate
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		blocks: make(map[string]*BlockDefinition),
		graphs: make(map[string]*graph.GraphSpec),
		macros: make(map[string]*MacroTemplate),
	}
}

// RegisterBlock registers a block definition under def.Ref.
func (r *Registry) RegisterBlock(def *BlockDefinition) error {
	if def == nil || def.Ref == "" {
		return fmt.Errorf("block definition requires a ref")
	}
	if def.Run == nil {
		return fmt.Errorf("block %q requires a callable", def.Ref)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.blocks[def.Ref]; exists {
		return fmt.Errorf("block %q already registered", def.Ref)
	}
	r.blocks[def.Ref] = def
	return nil
}

// RegisterGraph registers a graph spec as a subgraph definition under its ID.
func (r *Registry) RegisterGraph(spec *graph.GraphSpec) error {
	if spec == nil || spec.ID == "" {
		return fmt.Errorf("graph spec requires an id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.graphs[spec.ID]; exists {
		return fmt.Errorf("graph %q already registered", spec.ID)
	}
	r.graphs[spec.ID] = spec
	return nil
}

// RegisterMacro registers a macro template under tpl.Ref.
func (r *Registry) RegisterMacro(tpl *MacroTemplate) error {
	if tpl == nil || tpl.Ref == "" {
		return fmt.Errorf("macro template requires a ref")
	}
	if tpl.Expand == nil {
		return fmt.Errorf("macro %q requires an expand function", tpl.Ref)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.macros[tpl.Ref]; exists {
		return fmt.Errorf("macro %q already registered", tpl.Ref)
	}
	r.macros[tpl.Ref] = tpl
	return nil
}

// Resolve implements View.
func (r *Registry) Resolve(node graph.NodeSpec) (ResolvedDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch node.Kind {
	case graph.NodeKindBlock:
		if def, ok := r.blocks[node.Ref]; ok {
			return ResolvedDefinition{Kind: graph.NodeKindBlock, Block: def}, nil
		}
	case graph.NodeKindSubgraph:
		if spec, ok := r.graphs[node.Ref]; ok {
			return ResolvedDefinition{Kind: graph.NodeKindSubgraph, Graph: spec}, nil
		}
	case graph.NodeKindMacro:
		if tpl, ok := r.macros[node.Ref]; ok {
			return ResolvedDefinition{Kind: graph.NodeKindMacro, Macro: tpl}, nil
		}
	default:
		return ResolvedDefinition{}, fmt.Errorf("unknown node kind %q: %w", node.Kind, ErrNotFound)
	}
	return ResolvedDefinition{}, fmt.Errorf("%s %q: %w", node.Kind, node.Ref, ErrNotFound)
}

// NodePorts implements graph.Resolver.
func (r *Registry) NodePorts(node graph.NodeSpec) (graph.PortSet, error) {
	def, err := r.Resolve(node)
	if err != nil {
		return graph.PortSet{}, err
	}
	return def.Ports(), nil
}

// Graph returns a registered graph spec by id.
func (r *Registry) Graph(id string) (*graph.GraphSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.graphs[id]
	return spec, ok
}

// BlockRefs returns the registered block reference ids, sorted.
func (r *Registry) BlockRefs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]string, 0, len(r.blocks))
	for ref := range r.blocks {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

var _ View = (*Registry)(nil)
