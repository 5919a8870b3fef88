// Package schedule derives execution structure from a graph: the dependency
// relation between nodes and the level plan that drives concurrent execution.
// Both artifacts are ephemeral: rebuilt per run from the immutable GraphSpec
// and discarded when the run completes.
package schedule

import (
	"sort"

	"github.com/wehubfusion/Daedalus/pkg/graph"
)

// DependencyGraph holds the adjacency and in-degree structure for one graph.
// It is owned by a single run and never shared across goroutines while being
// built; the read accessors are safe once construction finishes.
type DependencyGraph struct {
	// nodes is the sorted list of all node ids.
	nodes []string
	// dependents maps a node to the sorted set of nodes consuming its output.
	dependents map[string][]string
	// indegree counts distinct predecessors per node. Parallel edges between
	// the same pair (different ports) count once.
	indegree map[string]int
}

// BuildDependencies derives the dependency structure from a GraphSpec in a
// single pass over the edges. O(|nodes| + |edges|).
func BuildDependencies(spec *graph.GraphSpec) *DependencyGraph {
	d := &DependencyGraph{
		nodes:      make([]string, 0, len(spec.Nodes)),
		dependents: make(map[string][]string, len(spec.Nodes)),
		indegree:   make(map[string]int, len(spec.Nodes)),
	}
	for _, n := range spec.Nodes {
		d.nodes = append(d.nodes, n.ID)
		d.indegree[n.ID] = 0
	}
	sort.Strings(d.nodes)

	// Deduplicate parallel edges so in-degree reflects distinct predecessors.
	type pair struct{ from, to string }
	seen := make(map[pair]struct{}, len(spec.Edges))
	for _, e := range spec.Edges {
		p := pair{from: e.From.Node, to: e.To.Node}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		d.dependents[p.from] = append(d.dependents[p.from], p.to)
		d.indegree[p.to]++
	}
	for id := range d.dependents {
		sort.Strings(d.dependents[id])
	}
	return d
}

// Nodes returns all node ids, sorted.
func (d *DependencyGraph) Nodes() []string {
	return d.nodes
}

// Len returns the number of nodes.
func (d *DependencyGraph) Len() int {
	return len(d.nodes)
}

// Dependents returns the nodes that directly consume the given node's output.
func (d *DependencyGraph) Dependents(id string) []string {
	return d.dependents[id]
}

// TransitiveDependents returns every node reachable from the given node via
// the dependents relation, sorted. Used to eagerly skip downstream work when
// a node fails.
func (d *DependencyGraph) TransitiveDependents(id string) []string {
	visited := make(map[string]struct{})
	stack := append([]string(nil), d.dependents[id]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := visited[cur]; ok {
			continue
		}
		visited[cur] = struct{}{}
		stack = append(stack, d.dependents[cur]...)
	}
	out := make([]string, 0, len(visited))
	for id := range visited {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// EntryPoints returns the nodes with no dependencies, sorted.
func (d *DependencyGraph) EntryPoints() []string {
	var entries []string
	for _, id := range d.nodes {
		if d.indegree[id] == 0 {
			entries = append(entries, id)
		}
	}
	return entries
}

// ExitPoints returns the nodes nothing depends on, sorted.
func (d *DependencyGraph) ExitPoints() []string {
	var exits []string
	for _, id := range d.nodes {
		if len(d.dependents[id]) == 0 {
			exits = append(exits, id)
		}
	}
	return exits
}

// Independent reports whether neither node directly depends on the other.
// Nodes in the same level are always pairwise independent.
func (d *DependencyGraph) Independent(a, b string) bool {
	return !contains(d.dependents[a], b) && !contains(d.dependents[b], a)
}

func contains(sorted []string, id string) bool {
	i := sort.SearchStrings(sorted, id)
	return i < len(sorted) && sorted[i] == id
}
