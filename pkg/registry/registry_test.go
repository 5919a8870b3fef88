package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/graph"
)

func noopRun(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
	return nil, nil
}

func TestRegisterAndResolveBlock(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBlock(&BlockDefinition{
		Ref:     "upper",
		Inputs:  []InputPort{{PortDecl: graph.PortDecl{Name: "text", Type: graph.TypeString}}},
		Outputs: []graph.PortDecl{{Name: "result", Type: graph.TypeString}},
		Run:     noopRun,
	}))

	def, err := r.Resolve(graph.NodeSpec{ID: "n", Kind: graph.NodeKindBlock, Ref: "upper"})
	require.NoError(t, err)
	require.Equal(t, graph.NodeKindBlock, def.Kind)
	require.NotNil(t, def.Block)
	require.Nil(t, def.Graph)
	require.Nil(t, def.Macro)

	ports := def.Ports()
	require.Equal(t, []graph.PortDecl{{Name: "text", Type: graph.TypeString}}, ports.Inputs)
	require.Equal(t, []graph.PortDecl{{Name: "result", Type: graph.TypeString}}, ports.Outputs)
}

func TestRegisterBlockRejectsDuplicatesAndInvalid(t *testing.T) {
	r := New()
	def := &BlockDefinition{Ref: "b", Run: noopRun}
	require.NoError(t, r.RegisterBlock(def))
	require.Error(t, r.RegisterBlock(def))
	require.Error(t, r.RegisterBlock(&BlockDefinition{Run: noopRun}))
	require.Error(t, r.RegisterBlock(&BlockDefinition{Ref: "no-run"}))
	require.Error(t, r.RegisterBlock(nil))
}

func TestResolveNotFound(t *testing.T) {
	r := New()
	_, err := r.Resolve(graph.NodeSpec{ID: "n", Kind: graph.NodeKindBlock, Ref: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(graph.NodeSpec{ID: "n", Kind: "widget", Ref: "x"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestKindsResolveInSeparateNamespaces(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBlock(&BlockDefinition{Ref: "shared", Run: noopRun}))
	require.NoError(t, r.RegisterGraph(&graph.GraphSpec{ID: "shared"}))
	require.NoError(t, r.RegisterMacro(&MacroTemplate{
		Ref:    "shared",
		Expand: func(json.RawMessage) (*graph.GraphSpec, error) { return &graph.GraphSpec{ID: "x"}, nil },
	}))

	block, err := r.Resolve(graph.NodeSpec{Kind: graph.NodeKindBlock, Ref: "shared"})
	require.NoError(t, err)
	require.Equal(t, graph.NodeKindBlock, block.Kind)

	sub, err := r.Resolve(graph.NodeSpec{Kind: graph.NodeKindSubgraph, Ref: "shared"})
	require.NoError(t, err)
	require.Equal(t, graph.NodeKindSubgraph, sub.Kind)

	macro, err := r.Resolve(graph.NodeSpec{Kind: graph.NodeKindMacro, Ref: "shared"})
	require.NoError(t, err)
	require.Equal(t, graph.NodeKindMacro, macro.Kind)
}

func TestSubgraphPortsComeFromBindings(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterGraph(&graph.GraphSpec{
		ID:      "g",
		Inputs:  []graph.PortBinding{{Name: "value", Node: "n", Port: "in", Type: graph.TypeAny}},
		Outputs: []graph.PortBinding{{Name: "result", Node: "n", Port: "out", Type: graph.TypeString}},
	}))

	ps, err := r.NodePorts(graph.NodeSpec{Kind: graph.NodeKindSubgraph, Ref: "g"})
	require.NoError(t, err)
	require.Equal(t, []graph.PortDecl{{Name: "value", Type: graph.TypeAny}}, ps.Inputs)
	require.Equal(t, []graph.PortDecl{{Name: "result", Type: graph.TypeString}}, ps.Outputs)
}

func TestInputPortsCarryDefaults(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterBlock(&BlockDefinition{
		Ref: "opt",
		Inputs: []InputPort{
			{PortDecl: graph.PortDecl{Name: "required", Type: graph.TypeString}},
			{PortDecl: graph.PortDecl{Name: "extra", Type: graph.TypeNumber}, Optional: true, Default: 10},
		},
		Run: noopRun,
	}))

	def, err := r.Resolve(graph.NodeSpec{Kind: graph.NodeKindBlock, Ref: "opt"})
	require.NoError(t, err)
	ports := def.InputPorts()
	require.Len(t, ports, 2)
	require.False(t, ports[0].Optional)
	require.True(t, ports[1].Optional)
	require.Equal(t, 10, ports[1].Default)
}

func TestBlockRefsSorted(t *testing.T) {
	r := New()
	for _, ref := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.RegisterBlock(&BlockDefinition{Ref: ref, Run: noopRun}))
	}
	require.Equal(t, []string{"alpha", "mid", "zeta"}, r.BlockRefs())
}
