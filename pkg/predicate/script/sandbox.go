package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// Sandbox manages security restrictions for classification scripts.
type Sandbox struct{}

// NewSandbox creates a sandbox with the default restrictions.
func NewSandbox() *Sandbox {
	return &Sandbox{}
}

// Apply applies sandbox restrictions to a VM runtime.
func (s *Sandbox) Apply(vm *goja.Runtime) error {
	if err := s.removeDangerousGlobals(vm); err != nil {
		return fmt.Errorf("failed to remove dangerous globals: %w", err)
	}
	if err := s.restrictEval(vm); err != nil {
		return fmt.Errorf("failed to restrict eval: %w", err)
	}
	return nil
}

// removeDangerousGlobals removes globals that would give a classification
// script access to the host environment.
func (s *Sandbox) removeDangerousGlobals(vm *goja.Runtime) error {
	dangerousGlobals := []string{
		"require",        // Node.js require
		"module",         // Node.js module
		"exports",        // Node.js exports
		"process",        // Node.js process
		"global",         // Node.js global
		"__dirname",      // Node.js __dirname
		"__filename",     // Node.js __filename
		"Buffer",         // Node.js Buffer
		"setImmediate",   // Node.js setImmediate
		"clearImmediate", // Node.js clearImmediate
	}

	for _, name := range dangerousGlobals {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	return nil
}

// restrictEval replaces eval with a function that throws.
// A classification script is a fixed program; dynamic code has no place here.
func (s *Sandbox) restrictEval(vm *goja.Runtime) error {
	restrictedEval := func(call goja.FunctionCall) goja.Value {
		panic(vm.NewTypeError("eval is not allowed in classification scripts"))
	}
	return vm.Set("eval", restrictedEval)
}
