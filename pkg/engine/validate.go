package engine

import (
	"errors"
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
	"github.com/wehubfusion/Daedalus/pkg/schedule"
)

// Validate checks a graph for execution: structural soundness, port and type
// consistency, acyclicity, and recursively the same properties of every
// referenced subgraph, down to maxDepth levels of nesting. Macro fragments
// are not known until expansion and are validated at runtime against the
// depth budget remaining at their node.
//
// Pass maxDepth <= 0 to use DefaultMaxDepth. The first violation found is
// returned as a *graph.ValidationError.
func Validate(spec *graph.GraphSpec, reg registry.View, maxDepth int) error {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return validateGraph(spec, reg, 0, maxDepth)
}

func validateGraph(spec *graph.GraphSpec, reg registry.View, depth, maxDepth int) error {
	if depth >= maxDepth {
		return &graph.ValidationError{
			Kind:   graph.KindMaxDepthExceeded,
			Graph:  spec.ID,
			Detail: fmt.Sprintf("nesting depth %d exceeds limit %d", depth, maxDepth),
		}
	}

	if err := graph.ValidateStructure(spec, reg); err != nil {
		return err
	}

	deps := schedule.BuildDependencies(spec)
	if _, err := schedule.BuildLevels(deps); err != nil {
		var cyc *schedule.CycleError
		if errors.As(err, &cyc) {
			return graph.NewCycleError(spec.ID, cyc.Nodes)
		}
		return err
	}

	for _, node := range spec.Nodes {
		if node.Kind != graph.NodeKindSubgraph {
			continue
		}
		def, err := reg.Resolve(node)
		if err != nil {
			return &graph.ValidationError{
				Kind:  graph.KindUnresolvedReference,
				Graph: spec.ID,
				Node:  node.ID,
				Err:   err,
			}
		}
		if err := validateGraph(def.Graph, reg, depth+1, maxDepth); err != nil {
			return err
		}
	}
	return nil
}
