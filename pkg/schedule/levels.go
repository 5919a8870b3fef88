package schedule

import (
	"fmt"
	"sort"
	"strings"
)

// LevelPlan is an ordered sequence of levels. Every node in level k depends
// only on nodes in levels < k, so all nodes within one level may execute in
// any relative order or concurrently. Consumed by the executor, then
// discarded.
type LevelPlan struct {
	Levels [][]string
}

// NodeCount returns the total number of scheduled nodes.
func (p *LevelPlan) NodeCount() int {
	n := 0
	for _, level := range p.Levels {
		n += len(level)
	}
	return n
}

// LevelOf returns the level index of the given node, or -1 if absent.
func (p *LevelPlan) LevelOf(id string) int {
	for i, level := range p.Levels {
		for _, n := range level {
			if n == id {
				return i
			}
		}
	}
	return -1
}

// CycleError reports the exact set of nodes left unconsumed by the
// topological traversal: the nodes participating in (or downstream of) a
// dependency cycle.
type CycleError struct {
	Nodes []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle among nodes [%s]", strings.Join(e.Nodes, ", "))
}

// BuildLevels assigns every node a level using the breadth-first variant of
// Kahn's algorithm: level 0 contains all nodes with in-degree 0; completing a
// level decrements in-degree of its dependents, and dependents reaching zero
// form the next level. Node ids within a level are sorted lexicographically
// so that logs, error aggregation, and diffs between two runs of the same
// graph are textually reproducible. Execution order within a level carries no
// guarantee beyond the level barrier.
//
// If any node remains with non-zero in-degree after the traversal, the graph
// has a cycle and a *CycleError naming the remainder is returned. The caller
// decides whether that is a user-facing validation failure or an internal
// consistency fault.
//
// O(|nodes| log |nodes| + |edges|), dominated by the per-level sort.
func BuildLevels(d *DependencyGraph) (*LevelPlan, error) {
	indegree := make(map[string]int, len(d.indegree))
	for id, deg := range d.indegree {
		indegree[id] = deg
	}

	current := make([]string, 0)
	for _, id := range d.nodes {
		if indegree[id] == 0 {
			current = append(current, id)
		}
	}

	plan := &LevelPlan{}
	consumed := 0
	for len(current) > 0 {
		sort.Strings(current)
		plan.Levels = append(plan.Levels, current)
		consumed += len(current)

		var next []string
		for _, id := range current {
			for _, dep := range d.dependents[id] {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
	}

	if consumed != len(d.nodes) {
		var remainder []string
		for _, id := range d.nodes {
			if indegree[id] > 0 {
				remainder = append(remainder, id)
			}
		}
		return nil, &CycleError{Nodes: remainder}
	}
	return plan, nil
}
