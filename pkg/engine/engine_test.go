package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()

	require.NoError(t, r.RegisterBlock(&registry.BlockDefinition{
		Ref:     "emit",
		Outputs: []graph.PortDecl{{Name: "value", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg struct {
				Value any `json:"value"`
			}
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, err
			}
			return map[string]any{"value": cfg.Value}, nil
		},
	}))

	require.NoError(t, r.RegisterBlock(&registry.BlockDefinition{
		Ref:     "echo",
		Inputs:  []registry.InputPort{{PortDecl: graph.PortDecl{Name: "in", Type: graph.TypeAny}}},
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			return map[string]any{"out": inputs["in"]}, nil
		},
	}))

	require.NoError(t, r.RegisterBlock(&registry.BlockDefinition{
		Ref: "add",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "a", Type: graph.TypeAny}},
			{PortDecl: graph.PortDecl{Name: "b", Type: graph.TypeAny}},
		},
		Outputs: []graph.PortDecl{{Name: "sum", Type: graph.TypeNumber}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			a, _ := inputs["a"].(float64)
			b, _ := inputs["b"].(float64)
			return map[string]any{"sum": a + b}, nil
		},
	}))

	require.NoError(t, r.RegisterBlock(&registry.BlockDefinition{
		Ref:     "fail",
		Inputs:  []registry.InputPort{{PortDecl: graph.PortDecl{Name: "in", Type: graph.TypeAny}, Optional: true}},
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			return nil, errors.New("boom")
		},
	}))

	require.NoError(t, r.RegisterBlock(&registry.BlockDefinition{
		Ref:     "slow",
		Inputs:  []registry.InputPort{{PortDecl: graph.PortDecl{Name: "in", Type: graph.TypeAny}, Optional: true}},
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg struct {
				Ms int `json:"ms"`
			}
			if len(config) > 0 {
				if err := json.Unmarshal(config, &cfg); err != nil {
					return nil, err
				}
			}
			select {
			case <-time.After(time.Duration(cfg.Ms) * time.Millisecond):
				return map[string]any{"out": inputs["in"]}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}))

	return r
}

func blockNode(id, ref string, config string) graph.NodeSpec {
	n := graph.NodeSpec{ID: id, Kind: graph.NodeKindBlock, Ref: ref}
	if config != "" {
		n.Config = json.RawMessage(config)
	}
	return n
}

func edge(fromNode, fromPort, toNode, toPort string) graph.EdgeSpec {
	return graph.EdgeSpec{
		From: graph.Endpoint{Node: fromNode, Port: fromPort},
		To:   graph.Endpoint{Node: toNode, Port: toPort},
	}
}

func TestExecuteLinearGraph(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "linear",
		Nodes: []graph.NodeSpec{
			blockNode("a", "emit", `{"value": 5}`),
			blockNode("b", "echo", ""),
			blockNode("c", "echo", ""),
		},
		Edges: []graph.EdgeSpec{
			edge("a", "value", "b", "in"),
			edge("b", "out", "c", "in"),
		},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, report.Status)
	require.Equal(t, 3, report.LevelsCompleted)
	require.NotEmpty(t, report.RunID)

	final, ok := report.Result("c")
	require.True(t, ok)
	require.Equal(t, StatusSucceeded, final.Status)
	require.Equal(t, float64(5), final.Outputs["out"])
}

func TestExecuteDeliversGraphInputs(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID:    "bound",
		Nodes: []graph.NodeSpec{blockNode("a", "echo", "")},
		Inputs: []graph.PortBinding{
			{Name: "value", Node: "a", Port: "in", Type: graph.TypeAny},
		},
		Outputs: []graph.PortBinding{
			{Name: "result", Node: "a", Port: "out", Type: graph.TypeAny},
		},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, map[string]any{"value": "hello"}, Options{})
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, report.Status)

	v, ok := report.OutputValue("a", "out")
	require.True(t, ok)
	require.Equal(t, "hello", v)
}

func TestExecuteIsDeterministic(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "diamond",
		Nodes: []graph.NodeSpec{
			blockNode("src", "emit", `{"value": 2}`),
			blockNode("left", "echo", ""),
			blockNode("right", "echo", ""),
			blockNode("sink", "add", ""),
		},
		Edges: []graph.EdgeSpec{
			edge("src", "value", "left", "in"),
			edge("src", "value", "right", "in"),
			edge("left", "out", "sink", "a"),
			edge("right", "out", "sink", "b"),
		},
	}

	eng := New(nil)
	first, err := eng.Execute(context.Background(), spec, reg, nil, Options{MaxParallelism: 4})
	require.NoError(t, err)
	second, err := eng.Execute(context.Background(), spec, reg, nil, Options{MaxParallelism: 4})
	require.NoError(t, err)

	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.LevelsCompleted, second.LevelsCompleted)
	for id, fr := range first.NodeResults {
		sr, ok := second.NodeResults[id]
		require.True(t, ok)
		require.Equal(t, fr.Status, sr.Status)
		require.Equal(t, fr.Outputs, sr.Outputs)
	}
	require.Equal(t, float64(4), first.NodeResults["sink"].Outputs["sum"])
}

func TestFailureSkipsTransitiveDependents(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "partial",
		Nodes: []graph.NodeSpec{
			blockNode("a", "emit", `{"value": 1}`),
			blockNode("b", "fail", ""),
			blockNode("c", "echo", ""),
			blockNode("d", "echo", ""),
		},
		Edges: []graph.EdgeSpec{
			edge("a", "value", "b", "in"),
			edge("b", "out", "c", "in"),
			edge("a", "value", "d", "in"),
		},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunPartiallyFailed, report.Status)

	require.Equal(t, StatusSucceeded, report.NodeResults["a"].Status)
	require.Equal(t, StatusFailed, report.NodeResults["b"].Status)
	require.Equal(t, StatusSkipped, report.NodeResults["c"].Status)
	require.Equal(t, SkipUpstreamFailed, report.NodeResults["c"].SkipReason)
	require.Equal(t, StatusSucceeded, report.NodeResults["d"].Status)

	var execErr *ExecutionError
	require.ErrorAs(t, report.NodeResults["b"].Err, &execErr)
	require.Equal(t, ErrKindBlockRuntime, execErr.Kind)
	require.Equal(t, "b", execErr.NodeID)
}

func TestFailOutputPortMissingFails(t *testing.T) {
	// The fail block declares no outputs, so an edge from it never validates;
	// instead check that a missing upstream value fails the consumer when the
	// producer omits a declared port.
	reg := registry.New()
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:     "half",
		Outputs: []graph.PortDecl{{Name: "present", Type: graph.TypeAny}, {Name: "absent", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			return map[string]any{"present": 1}, nil
		},
	}))
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:    "need",
		Inputs: []registry.InputPort{{PortDecl: graph.PortDecl{Name: "in", Type: graph.TypeAny}}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			return nil, nil
		},
	}))

	spec := &graph.GraphSpec{
		ID: "missing-value",
		Nodes: []graph.NodeSpec{
			blockNode("p", "half", ""),
			blockNode("q", "need", ""),
		},
		Edges: []graph.EdgeSpec{edge("p", "absent", "q", "in")},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunPartiallyFailed, report.Status)
	require.Equal(t, StatusSucceeded, report.NodeResults["p"].Status)
	require.Equal(t, StatusFailed, report.NodeResults["q"].Status)
	require.Contains(t, report.NodeResults["q"].Error, "produced no value")
}

func TestUndeclaredOutputFailsNode(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:     "rogue",
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			return map[string]any{"other": 1}, nil
		},
	}))

	spec := &graph.GraphSpec{
		ID:    "rogue-output",
		Nodes: []graph.NodeSpec{blockNode("r", "rogue", "")},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunPartiallyFailed, report.Status)
	require.Contains(t, report.NodeResults["r"].Error, "undeclared output port")
}

func TestMissingRequiredInputFailsNode(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "underfed",
		Nodes: []graph.NodeSpec{
			blockNode("src", "emit", `{"value": 1}`),
			blockNode("sum", "add", ""),
		},
		Edges: []graph.EdgeSpec{edge("src", "value", "sum", "a")},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, report.NodeResults["sum"].Status)
	require.Contains(t, report.NodeResults["sum"].Error, "required input")
}

func TestCancellationBeforeFirstLevel(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "cancelled",
		Nodes: []graph.NodeSpec{
			blockNode("a", "emit", `{"value": 1}`),
			blockNode("b", "echo", ""),
		},
		Edges: []graph.EdgeSpec{edge("a", "value", "b", "in")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(nil).Execute(ctx, spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunCancelled, report.Status)
	require.Equal(t, 0, report.LevelsCompleted)
	for _, nr := range report.NodeResults {
		require.Equal(t, StatusSkipped, nr.Status)
		require.Equal(t, SkipCancelled, nr.SkipReason)
	}
}

func TestCancellationStopsAtLevelBoundary(t *testing.T) {
	reg := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())

	// The first node cancels the run; nodes in later levels must be skipped
	// while the completed level keeps its results.
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:     "trigger",
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			cancel()
			return map[string]any{"out": "done"}, nil
		},
	}))

	spec := &graph.GraphSpec{
		ID: "boundary",
		Nodes: []graph.NodeSpec{
			blockNode("a", "trigger", ""),
			blockNode("b", "echo", ""),
		},
		Edges: []graph.EdgeSpec{edge("a", "out", "b", "in")},
	}

	report, err := New(nil).Execute(ctx, spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunCancelled, report.Status)
	require.Equal(t, 1, report.LevelsCompleted)
	require.Equal(t, StatusSucceeded, report.NodeResults["a"].Status)
	require.Equal(t, StatusSkipped, report.NodeResults["b"].Status)
	require.Equal(t, SkipCancelled, report.NodeResults["b"].SkipReason)
}

func TestCancellationDuringFinalLevelKeepsTrueOutcome(t *testing.T) {
	reg := testRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancellation lands while the last level is already running, so every
	// node still reaches a terminal state and the run reports its outcome
	// rather than RunCancelled.
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:     "trigger",
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			cancel()
			return map[string]any{"out": "done"}, nil
		},
	}))

	spec := &graph.GraphSpec{
		ID:    "late-cancel",
		Nodes: []graph.NodeSpec{blockNode("only", "trigger", "")},
	}

	report, err := New(nil).Execute(ctx, spec, reg, nil, Options{})
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, report.Status)
	require.Equal(t, 1, report.LevelsCompleted)
	require.Equal(t, StatusSucceeded, report.NodeResults["only"].Status)
}

func TestRunDeadlineSkipsRemainingLevels(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "deadline",
		Nodes: []graph.NodeSpec{
			blockNode("a", "slow", `{"ms": 60}`),
			blockNode("b", "echo", ""),
		},
		Edges: []graph.EdgeSpec{edge("a", "out", "b", "in")},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{
		RunDeadline: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, RunTimedOut, report.Status)
	require.Equal(t, StatusSucceeded, report.NodeResults["a"].Status)
	require.Equal(t, StatusSkipped, report.NodeResults["b"].Status)
	require.Equal(t, SkipTimedOut, report.NodeResults["b"].SkipReason)
}

func TestNodeTimeoutFailsNode(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID:    "stuck",
		Nodes: []graph.NodeSpec{blockNode("a", "slow", `{"ms": 500}`)},
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{
		NodeTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, RunPartiallyFailed, report.Status)

	var execErr *ExecutionError
	require.ErrorAs(t, report.NodeResults["a"].Err, &execErr)
	require.Equal(t, ErrKindTimeout, execErr.Kind)
}

func TestParallelismIsBounded(t *testing.T) {
	reg := testRegistry(t)

	var active, peak atomic.Int64
	require.NoError(t, reg.RegisterBlock(&registry.BlockDefinition{
		Ref:     "probe",
		Outputs: []graph.PortDecl{{Name: "out", Type: graph.TypeAny}},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			cur := active.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			active.Add(-1)
			return map[string]any{"out": nil}, nil
		},
	}))

	spec := &graph.GraphSpec{ID: "wide"}
	for i := 0; i < 6; i++ {
		spec.Nodes = append(spec.Nodes, blockNode(fmt.Sprintf("n%d", i), "probe", ""))
	}

	report, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{MaxParallelism: 2})
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, report.Status)
	require.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCycleIsRejectedAtValidation(t *testing.T) {
	reg := testRegistry(t)
	spec := &graph.GraphSpec{
		ID: "cyclic",
		Nodes: []graph.NodeSpec{
			blockNode("a", "echo", ""),
			blockNode("b", "echo", ""),
		},
		Edges: []graph.EdgeSpec{
			edge("a", "out", "b", "in"),
			edge("b", "out", "a", "in"),
		},
	}

	_, err := New(nil).Execute(context.Background(), spec, reg, nil, Options{})
	var verr *graph.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, graph.KindCycleDetected, verr.Kind)
	require.Equal(t, []string{"a", "b"}, verr.Nodes)
}
