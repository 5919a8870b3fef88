package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/graph"
)

func edge(from, to string) graph.EdgeSpec {
	return graph.EdgeSpec{
		From: graph.Endpoint{Node: from, Port: "out"},
		To:   graph.Endpoint{Node: to, Port: "in"},
	}
}

func spec(nodeIDs []string, edges ...graph.EdgeSpec) *graph.GraphSpec {
	g := &graph.GraphSpec{ID: "g", Edges: edges}
	for _, id := range nodeIDs {
		g.Nodes = append(g.Nodes, graph.NodeSpec{ID: id, Kind: graph.NodeKindBlock, Ref: "r"})
	}
	return g
}

func TestBuildDependenciesCountsDistinctPredecessors(t *testing.T) {
	// Two edges between the same pair (different ports) count once.
	g := spec([]string{"a", "b"},
		graph.EdgeSpec{From: graph.Endpoint{Node: "a", Port: "x"}, To: graph.Endpoint{Node: "b", Port: "p"}},
		graph.EdgeSpec{From: graph.Endpoint{Node: "a", Port: "y"}, To: graph.Endpoint{Node: "b", Port: "q"}},
	)
	d := BuildDependencies(g)

	require.Equal(t, 2, d.Len())
	require.Equal(t, []string{"b"}, d.Dependents("a"))

	plan, err := BuildLevels(d)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}, {"b"}}, plan.Levels)
}

func TestBuildLevelsDiamond(t *testing.T) {
	d := BuildDependencies(spec([]string{"d", "c", "b", "a"},
		edge("a", "b"), edge("a", "c"), edge("b", "d"), edge("c", "d")))

	plan, err := BuildLevels(d)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, plan.Levels)
	require.Equal(t, 4, plan.NodeCount())
	require.Equal(t, 1, plan.LevelOf("c"))
	require.Equal(t, -1, plan.LevelOf("ghost"))
}

func TestBuildLevelsSortsEachLevelLexicographically(t *testing.T) {
	d := BuildDependencies(spec([]string{"zeta", "mid", "alpha"}))

	plan, err := BuildLevels(d)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"alpha", "mid", "zeta"}}, plan.Levels)
}

func TestBuildLevelsRespectsTopologicalOrder(t *testing.T) {
	d := BuildDependencies(spec([]string{"a", "b", "c", "d", "e"},
		edge("a", "c"), edge("b", "c"), edge("c", "d"), edge("b", "e")))

	plan, err := BuildLevels(d)
	require.NoError(t, err)
	for _, e := range []struct{ from, to string }{
		{"a", "c"}, {"b", "c"}, {"c", "d"}, {"b", "e"},
	} {
		require.Less(t, plan.LevelOf(e.from), plan.LevelOf(e.to),
			"edge %s->%s must cross levels forward", e.from, e.to)
	}
}

func TestBuildLevelsReportsCycleMembers(t *testing.T) {
	d := BuildDependencies(spec([]string{"a", "b", "c"},
		edge("a", "b"), edge("b", "a"), edge("a", "c")))

	_, err := BuildLevels(d)
	var cyc *CycleError
	require.ErrorAs(t, err, &cyc)
	// c depends on the cycle, so it never reaches in-degree zero either.
	require.Equal(t, []string{"a", "b", "c"}, cyc.Nodes)
	require.Contains(t, cyc.Error(), "cycle")
}

func TestTransitiveDependents(t *testing.T) {
	d := BuildDependencies(spec([]string{"a", "b", "c", "d"},
		edge("a", "b"), edge("b", "c"), edge("a", "d")))

	require.Equal(t, []string{"b", "c", "d"}, d.TransitiveDependents("a"))
	require.Equal(t, []string{"c"}, d.TransitiveDependents("b"))
	require.Empty(t, d.TransitiveDependents("c"))
}

func TestEntryAndExitPoints(t *testing.T) {
	d := BuildDependencies(spec([]string{"a", "b", "c", "d"},
		edge("a", "c"), edge("b", "c")))

	require.Equal(t, []string{"a", "b", "d"}, d.EntryPoints())
	require.Equal(t, []string{"c", "d"}, d.ExitPoints())
}

func TestIndependent(t *testing.T) {
	d := BuildDependencies(spec([]string{"a", "b", "c"},
		edge("a", "b")))

	require.False(t, d.Independent("a", "b"))
	require.False(t, d.Independent("b", "a"))
	require.True(t, d.Independent("a", "c"))
	require.True(t, d.Independent("b", "c"))
}
