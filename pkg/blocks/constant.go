package blocks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

type constantConfig struct {
	Value json.RawMessage `json:"value"`
}

// Constant emits a configured literal on its "value" output. It has no
// inputs, so it always lands in the first level of a plan.
func Constant() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "constant",
		Outputs: []graph.PortDecl{
			{Name: "value", Type: graph.TypeAny},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg constantConfig
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("invalid constant config: %w", err)
			}
			if len(cfg.Value) == 0 {
				return nil, fmt.Errorf("constant config requires a value")
			}
			var v any
			if err := json.Unmarshal(cfg.Value, &v); err != nil {
				return nil, fmt.Errorf("invalid constant value: %w", err)
			}
			return map[string]any{"value": v}, nil
		},
	}
}
