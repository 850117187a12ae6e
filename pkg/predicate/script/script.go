// Package script provides a goja-backed predicate evaluator for
// operator-supplied classification scripts. The script defines a function
// (by default named "stable") that receives the real and imaginary parts of
// a cell value and returns a truthy value for stable points.
//
// Example script:
//
//	function stable(re, im) {
//	    var zr = 0, zi = 0;
//	    for (var i = 0; i < 2000; i++) {
//	        var t = zr*zr - zi*zi + re;
//	        zi = 2*zr*zi + im;
//	        zr = t;
//	    }
//	    return zr*zr + zi*zi <= 4;
//	}
package script

import (
	"fmt"

	"github.com/dop251/goja"
)

// DefaultEntryPoint is the function name looked up in the script.
const DefaultEntryPoint = "stable"

// DefaultPoolSize is the number of VM instances kept for reuse.
const DefaultPoolSize = 4

// Config defines the configuration for a scripted evaluator.
type Config struct {
	// Source is the JavaScript source of the classification script
	Source string

	// EntryPoint is the name of the classification function.
	// Defaults to "stable".
	EntryPoint string

	// PoolSize is the number of VM instances kept for concurrent reuse.
	// Defaults to 4.
	PoolSize int
}

// Evaluator runs a compiled classification script against grid cells.
// VM instances are pooled so concurrent workers never share a runtime;
// a VM that raised a script error is discarded and replaced.
type Evaluator struct {
	program *goja.Program
	entry   string
	sandbox *Sandbox
	vms     chan *goja.Runtime
}

// New compiles the script, validates the entry point, and pre-builds the
// VM pool. Returns an error if the source does not compile or the entry
// point is missing or not a function.
func New(config Config) (*Evaluator, error) {
	if config.Source == "" {
		return nil, fmt.Errorf("script source cannot be empty")
	}
	if config.EntryPoint == "" {
		config.EntryPoint = DefaultEntryPoint
	}
	if config.PoolSize <= 0 {
		config.PoolSize = DefaultPoolSize
	}

	program, err := goja.Compile("predicate", config.Source, true)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classification script: %w", err)
	}

	e := &Evaluator{
		program: program,
		entry:   config.EntryPoint,
		sandbox: NewSandbox(),
		vms:     make(chan *goja.Runtime, config.PoolSize),
	}

	for i := 0; i < config.PoolSize; i++ {
		vm, err := e.newVM()
		if err != nil {
			return nil, err
		}
		e.vms <- vm
	}

	return e, nil
}

// newVM builds a sandboxed VM with the program loaded and the entry
// point verified.
func (e *Evaluator) newVM() (*goja.Runtime, error) {
	vm := goja.New()
	if err := e.sandbox.Apply(vm); err != nil {
		return nil, err
	}
	if _, err := vm.RunProgram(e.program); err != nil {
		return nil, fmt.Errorf("failed to load classification script: %w", err)
	}
	if _, ok := goja.AssertFunction(vm.Get(e.entry)); !ok {
		return nil, fmt.Errorf("script does not define function %q", e.entry)
	}
	return vm, nil
}

// Evaluate runs the classification function for one cell value.
// Script exceptions surface as unit errors; the VM that raised one is
// replaced rather than returned to the pool.
func (e *Evaluator) Evaluate(c complex128) (bool, error) {
	vm := <-e.vms

	fn, ok := goja.AssertFunction(vm.Get(e.entry))
	if !ok {
		e.vms <- vm
		return false, fmt.Errorf("script entry point %q is not a function", e.entry)
	}

	result, err := fn(goja.Undefined(), vm.ToValue(real(c)), vm.ToValue(imag(c)))
	if err != nil {
		// The VM may hold partial script state after an exception.
		replacement, newErr := e.newVM()
		if newErr == nil {
			e.vms <- replacement
		} else {
			e.vms <- vm
		}
		return false, fmt.Errorf("classification script failed: %w", err)
	}

	e.vms <- vm
	return result.ToBoolean(), nil
}
