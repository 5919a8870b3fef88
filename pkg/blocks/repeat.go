package blocks

import (
	"encoding/json"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

type repeatConfig struct {
	// Block is the ref of the block to chain. It must declare a "value"-shaped
	// pipeline: one input and one output with the names configured below.
	Block string `json:"block"`
	Count int    `json:"count"`
	// InputPort and OutputPort default to "text" and "result".
	InputPort  string          `json:"inputPort,omitempty"`
	OutputPort string          `json:"outputPort,omitempty"`
	StepConfig json.RawMessage `json:"stepConfig,omitempty"`
}

// Repeat expands into a linear chain of count instances of a configured
// block, each step's output feeding the next step's input. Expansion is pure:
// the same config always yields the same fragment.
func Repeat() *registry.MacroTemplate {
	return &registry.MacroTemplate{
		Ref: "repeat",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "value", Type: graph.TypeAny}},
		},
		Outputs: []graph.PortDecl{
			{Name: "value", Type: graph.TypeAny},
		},
		Expand: expandRepeat,
	}
}

func expandRepeat(config json.RawMessage) (*graph.GraphSpec, error) {
	var cfg repeatConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid repeat config: %w", err)
	}
	if cfg.Block == "" {
		return nil, fmt.Errorf("repeat config requires a block ref")
	}
	if cfg.Count < 1 {
		return nil, fmt.Errorf("repeat count must be at least 1, got %d", cfg.Count)
	}
	if cfg.InputPort == "" {
		cfg.InputPort = "text"
	}
	if cfg.OutputPort == "" {
		cfg.OutputPort = "result"
	}

	spec := &graph.GraphSpec{
		ID:   fmt.Sprintf("repeat-%s-%d", cfg.Block, cfg.Count),
		Name: fmt.Sprintf("repeat %s x%d", cfg.Block, cfg.Count),
	}
	for i := 0; i < cfg.Count; i++ {
		spec.Nodes = append(spec.Nodes, graph.NodeSpec{
			ID:     fmt.Sprintf("step-%d", i+1),
			Kind:   graph.NodeKindBlock,
			Ref:    cfg.Block,
			Config: cfg.StepConfig,
		})
		if i > 0 {
			spec.Edges = append(spec.Edges, graph.EdgeSpec{
				From: graph.Endpoint{Node: fmt.Sprintf("step-%d", i), Port: cfg.OutputPort},
				To:   graph.Endpoint{Node: fmt.Sprintf("step-%d", i+1), Port: cfg.InputPort},
			})
		}
	}
	spec.Inputs = []graph.PortBinding{
		{Name: "value", Node: "step-1", Port: cfg.InputPort, Type: graph.TypeAny},
	}
	spec.Outputs = []graph.PortBinding{
		{Name: "value", Node: fmt.Sprintf("step-%d", cfg.Count), Port: cfg.OutputPort, Type: graph.TypeAny},
	}
	return spec, nil
}
