// Package blocks provides the builtin block collection: constants, string
// operations, arithmetic, comparisons, and a sandboxed JavaScript block, plus
// the repeat macro. RegisterBuiltins installs all of them into a registry.
package blocks

import (
	"fmt"

	"github.com/wehubfusion/Daedalus/pkg/registry"
)

// RegisterBuiltins registers every builtin block and macro.
func RegisterBuiltins(r *registry.Registry) error {
	defs := []*registry.BlockDefinition{
		Constant(),
		StringTransform(),
		StringConcat(),
		Add(),
		Subtract(),
		Multiply(),
		Divide(),
		Sqrt(),
		Mean(),
		Compare(),
		Script(),
	}
	for _, def := range defs {
		if err := r.RegisterBlock(def); err != nil {
			return fmt.Errorf("registering builtin %q: %w", def.Ref, err)
		}
	}
	if err := r.RegisterMacro(Repeat()); err != nil {
		return fmt.Errorf("registering builtin macro: %w", err)
	}
	return nil
}
