// Package predicate classifies complex-plane points by bounded iteration.
package predicate

import (
	"fmt"
	"math/cmplx"
)

// DefaultIterations is the standard iteration bound for the Mandelbrot test.
const DefaultIterations = 2000

// StabilityBound is the inclusive magnitude threshold for classification.
const StabilityBound = 2.0

// Evaluator classifies a single complex value as stable or unstable.
// Implementations must be safe to call concurrently from arbitrarily many
// workers without synchronization.
type Evaluator interface {
	Evaluate(c complex128) (bool, error)
}

// Mandelbrot evaluates the classic stability recurrence z = z*z + c.
//
// The recurrence is applied exactly Iterations times with no early exit on
// divergence: the fixed iteration count keeps every evaluation at the same
// cost regardless of how quickly the sequence escapes. Do not replace this
// with an escape-time loop.
type Mandelbrot struct {
	// Iterations is the number of times the recurrence is applied
	Iterations int
}

// NewMandelbrot creates a Mandelbrot evaluator with the given iteration bound.
func NewMandelbrot(iterations int) (Mandelbrot, error) {
	if iterations < 0 {
		return Mandelbrot{}, fmt.Errorf("iterations must be non-negative, got %d", iterations)
	}
	return Mandelbrot{Iterations: iterations}, nil
}

// Evaluate applies z = z*z + c starting from z = 0 and classifies the point
// as stable iff the final magnitude is <= 2.0 (inclusive, Euclidean norm).
// Pure and reentrant; never returns an error.
func (m Mandelbrot) Evaluate(c complex128) (bool, error) {
	var z complex128
	for i := 0; i < m.Iterations; i++ {
		z = z*z + c
	}
	return cmplx.Abs(z) <= StabilityBound, nil
}
