package blocks

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

// Add emits the sum of its "a" and "b" inputs on "result".
func Add() *registry.BlockDefinition {
	return arithmetic("math.add", func(a, b float64) (float64, error) {
		return a + b, nil
	})
}

// Subtract emits a minus b on "result".
func Subtract() *registry.BlockDefinition {
	return arithmetic("math.subtract", func(a, b float64) (float64, error) {
		return a - b, nil
	})
}

// Multiply emits the product of its inputs on "result".
func Multiply() *registry.BlockDefinition {
	return arithmetic("math.multiply", func(a, b float64) (float64, error) {
		return a * b, nil
	})
}

// Divide emits a divided by b on "result". Division by zero is an error.
func Divide() *registry.BlockDefinition {
	return arithmetic("math.divide", func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return a / b, nil
	})
}

// Sqrt emits the square root of its "value" input on "result". Negative
// inputs are an error.
func Sqrt() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "math.sqrt",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "value", Type: graph.TypeNumber}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeNumber},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			v, err := toFloat64(inputs["value"])
			if err != nil {
				return nil, fmt.Errorf("value: %w", err)
			}
			if v < 0 {
				return nil, fmt.Errorf("square root of negative number %v", v)
			}
			return map[string]any{"result": math.Sqrt(v)}, nil
		},
	}
}

// Mean emits the arithmetic mean of its "values" array input on "result".
// An empty array is an error.
func Mean() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "math.mean",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "values", Type: graph.TypeArray}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeNumber},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			items, ok := inputs["values"].([]any)
			if !ok {
				return nil, fmt.Errorf("values must be an array, got %T", inputs["values"])
			}
			if len(items) == 0 {
				return nil, fmt.Errorf("mean of empty array")
			}
			var sum float64
			for i, item := range items {
				v, err := toFloat64(item)
				if err != nil {
					return nil, fmt.Errorf("values[%d]: %w", i, err)
				}
				sum += v
			}
			return map[string]any{"result": sum / float64(len(items))}, nil
		},
	}
}

func arithmetic(ref string, apply func(a, b float64) (float64, error)) *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: ref,
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "a", Type: graph.TypeNumber}},
			{PortDecl: graph.PortDecl{Name: "b", Type: graph.TypeNumber}},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeNumber},
		},
		Run: func(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
			a, err := toFloat64(inputs["a"])
			if err != nil {
				return nil, fmt.Errorf("a: %w", err)
			}
			b, err := toFloat64(inputs["b"])
			if err != nil {
				return nil, fmt.Errorf("b: %w", err)
			}
			result, err := apply(a, b)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": result}, nil
		},
	}
}
