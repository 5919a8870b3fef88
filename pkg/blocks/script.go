package blocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/wehubfusion/Daedalus/pkg/graph"
	"github.com/wehubfusion/Daedalus/pkg/registry"
)

type scriptConfig struct {
	Script string `json:"script"`
}

// dangerousGlobals are Node.js-style globals removed from every script VM.
var dangerousGlobals = []string{
	"require",
	"module",
	"exports",
	"process",
	"global",
	"__dirname",
	"__filename",
	"Buffer",
	"setImmediate",
	"clearImmediate",
}

// Script runs a configured JavaScript snippet in a sandboxed VM. The snippet
// sees its "input" value as a global and its completion value becomes the
// "result" output. Context cancellation interrupts the VM.
func Script() *registry.BlockDefinition {
	return &registry.BlockDefinition{
		Ref: "script.js",
		Inputs: []registry.InputPort{
			{PortDecl: graph.PortDecl{Name: "input", Type: graph.TypeAny}, Optional: true},
		},
		Outputs: []graph.PortDecl{
			{Name: "result", Type: graph.TypeAny},
		},
		Run: runScript,
	}
}

func runScript(ctx context.Context, inputs map[string]any, config json.RawMessage) (map[string]any, error) {
	var cfg scriptConfig
	if err := json.Unmarshal(config, &cfg); err != nil {
		return nil, fmt.Errorf("invalid script config: %w", err)
	}
	if cfg.Script == "" {
		return nil, fmt.Errorf("script config requires a script")
	}

	vm := goja.New()
	if err := applySandbox(vm); err != nil {
		return nil, err
	}
	if err := vm.Set("input", inputs["input"]); err != nil {
		return nil, fmt.Errorf("setting script input: %w", err)
	}

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt("execution cancelled")
		case <-watchDone:
		}
	}()

	val, err := vm.RunString("(function(){" + cfg.Script + "})()")
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cerr := ctx.Err(); cerr != nil {
				return nil, cerr
			}
			return nil, fmt.Errorf("script interrupted: %v", interrupted.Value())
		}
		return nil, fmt.Errorf("script failed: %w", err)
	}

	var result any
	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		result = val.Export()
	}
	return map[string]any{"result": result}, nil
}

func applySandbox(vm *goja.Runtime) error {
	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("sandboxing %s: %w", name, err)
		}
	}
	return nil
}

// CompileScript checks a snippet for syntax errors without running it.
func CompileScript(script string) error {
	vm := goja.New()
	_, err := vm.RunString("(function(){" + script + "})")
	if err != nil {
		return fmt.Errorf("script compilation failed: %w", err)
	}
	return nil
}
