package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

type compareConfig struct {
	Operator string `json:"operator"`
}

// Compare evaluates its "left" and "right" inputs under a configured operator
// and emits the boolean outcome on "result". Ordering operators coerce both
// sides to float64; equality falls back to deep comparison.
func Compare() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "compare",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "left", Type: graph.TypeAny}},
			{PortDecl: graph.PortDecl{Name: "right", Type: graph.TypeAny}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeBoolean},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			var cfg compareConfig
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, fmt.Errorf("invalid compare config: %w", err)
			}
			left, right := inputs["left"], inputs["right"]
			result, err := compareValues(left, right, cfg.Operator)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": result}, nil
		},
	}
}

func compareValues(left, right any, operator string) (bool, error) {
	switch operator {
	case "eq":
		return valuesEqual(left, right), nil
	case "ne":
		return !valuesEqual(left, right), nil
	case "gt", "gte", "lt", "lte":
		l, err := toFloat64(left)
		if err != nil {
			return false, fmt.Errorf("operator %q: left: %w", operator, err)
		}
		r, err := toFloat64(right)
		if err != nil {
			return false, fmt.Errorf("operator %q: right: %w", operator, err)
		}
		switch operator {
		case "gt":
			return l > r, nil
		case "gte":
			return l >= r, nil
		case "lt":
			return l < r, nil
		default:
			return l <= r, nil
		}
	case "contains":
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q requires string operands", operator)
		}
		return strings.Contains(ls, rs), nil
	}
	return false, fmt.Errorf("unsupported operator %q", operator)
}

func valuesEqual(left, right any) bool {
	lf, lerr := toFloat64(left)
	rf, rerr := toFloat64(right)
	if lerr == nil && rerr == nil {
		return lf == rf
	}
	return reflect.DeepEqual(left, right)
}

func toFloat64(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to number", n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("cannot convert %T to number", v)
}
