// Package grid generates the complex-plane input domain for a stability run.
// Generation is a pure function of the spec: identical specs always produce
// identical cell values, and corner cells land exactly on the range endpoints.
package grid

import (
	"fmt"
	"math"
)

// Default region of the complex plane, matching the classic Mandelbrot window.
const (
	DefaultRows    = 63
	DefaultCols    = 100
	DefaultRealMin = -2.0
	DefaultRealMax = 0.5
	DefaultImagMin = -1.5
	DefaultImagMax = 1.5
)

// Spec describes a rectangular sampling grid over the complex plane.
type Spec struct {
	// Rows is the number of grid rows (imaginary axis samples)
	Rows int

	// Cols is the number of grid columns (real axis samples)
	Cols int

	// RealMin and RealMax bound the real axis, inclusive on both ends
	RealMin float64
	RealMax float64

	// ImagMin and ImagMax bound the imaginary axis, inclusive on both ends
	ImagMin float64
	ImagMax float64
}

// DefaultSpec returns the standard 63x100 grid over
// real [-2.0, 0.5] and imaginary [-1.5, 1.5].
func DefaultSpec() Spec {
	return Spec{
		Rows:    DefaultRows,
		Cols:    DefaultCols,
		RealMin: DefaultRealMin,
		RealMax: DefaultRealMax,
		ImagMin: DefaultImagMin,
		ImagMax: DefaultImagMax,
	}
}

// Validate checks that the spec describes a usable grid.
// Both dimensions must be at least 2 because step sizes divide by dim-1
// so that the first and last samples sit exactly on the range endpoints.
func (s Spec) Validate() error {
	if s.Rows < 2 {
		return fmt.Errorf("rows must be at least 2, got %d", s.Rows)
	}
	if s.Cols < 2 {
		return fmt.Errorf("cols must be at least 2, got %d", s.Cols)
	}
	if s.Cols > math.MaxInt/s.Rows {
		return fmt.Errorf("grid of %dx%d cells overflows addressable size", s.Rows, s.Cols)
	}
	for _, v := range []float64{s.RealMin, s.RealMax, s.ImagMin, s.ImagMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("grid ranges must be finite")
		}
	}
	// Degenerate (zero-width) ranges are allowed: every sample collapses
	// onto the same value. Inverted ranges are not.
	if s.RealMax < s.RealMin {
		return fmt.Errorf("real range is inverted: [%v, %v]", s.RealMin, s.RealMax)
	}
	if s.ImagMax < s.ImagMin {
		return fmt.Errorf("imaginary range is inverted: [%v, %v]", s.ImagMin, s.ImagMax)
	}
	return nil
}

// Cells returns the total number of grid cells.
func (s Spec) Cells() int {
	return s.Rows * s.Cols
}

// Index maps a (row, col) pair to its row-major position.
func (s Spec) Index(row, col int) int {
	return row*s.Cols + col
}

// Generate produces the full input domain in row-major order: cell (row, col)
// lands at index row*Cols+col. Interior spacing is uniform along each axis and
// the four corner cells equal the declared range endpoints exactly.
func (s Spec) Generate() ([]complex128, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid spec: %w", err)
	}

	realStep := (s.RealMax - s.RealMin) / float64(s.Cols-1)
	imagStep := (s.ImagMax - s.ImagMin) / float64(s.Rows-1)

	cells := make([]complex128, s.Cells())
	for row := 0; row < s.Rows; row++ {
		imagPart := s.ImagMin + float64(row)*imagStep
		if row == s.Rows-1 {
			imagPart = s.ImagMax
		}
		for col := 0; col < s.Cols; col++ {
			realPart := s.RealMin + float64(col)*realStep
			if col == s.Cols-1 {
				realPart = s.RealMax
			}
			cells[s.Index(row, col)] = complex(realPart, imagPart)
		}
	}

	return cells, nil
}
