// Package render turns a completed result buffer into a text chart.
package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"
)

// Default chart glyphs: stable cells print as '.', unstable as a blank.
const (
	DefaultStableGlyph   = '.'
	DefaultUnstableGlyph = ' '
)

// Renderer emits one glyph per grid cell, row by row. Output is exactly
// rows lines of cols glyphs each, terminated by '\n', with no header or
// footer. Purely presentational; the buffer must already be complete.
type Renderer struct {
	stable   rune
	unstable rune
}

// NewRenderer returns a renderer with the default glyph pair.
func NewRenderer() *Renderer {
	return &Renderer{
		stable:   DefaultStableGlyph,
		unstable: DefaultUnstableGlyph,
	}
}

// NewRendererWithGlyphs returns a renderer with a custom glyph pair.
// Both glyphs must occupy a single terminal cell; wide and fullwidth runes
// would break column alignment and are rejected.
func NewRendererWithGlyphs(stable, unstable rune) (*Renderer, error) {
	if err := validateGlyph(stable); err != nil {
		return nil, fmt.Errorf("invalid stable glyph: %w", err)
	}
	if err := validateGlyph(unstable); err != nil {
		return nil, fmt.Errorf("invalid unstable glyph: %w", err)
	}
	return &Renderer{stable: stable, unstable: unstable}, nil
}

// validateGlyph rejects runes that do not render as a single cell.
func validateGlyph(r rune) error {
	if r == '\n' || r == '\r' || r == '\t' {
		return fmt.Errorf("control rune %q cannot be used as a glyph", r)
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return fmt.Errorf("rune %q is wide and would break column alignment", r)
	}
	return nil
}

// Render writes the chart for a rows x cols buffer laid out in row-major
// order. The buffer length must equal rows*cols.
func (r *Renderer) Render(w io.Writer, buffer []bool, rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return fmt.Errorf("invalid chart dimensions %dx%d", rows, cols)
	}
	if len(buffer) != rows*cols {
		return fmt.Errorf("buffer has %d cells, expected %d for a %dx%d chart",
			len(buffer), rows*cols, rows, cols)
	}

	bw := bufio.NewWriter(w)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			glyph := r.unstable
			if buffer[row*cols+col] {
				glyph = r.stable
			}
			if _, err := bw.WriteRune(glyph); err != nil {
				return fmt.Errorf("failed to write chart: %w", err)
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return fmt.Errorf("failed to write chart: %w", err)
		}
	}
	return bw.Flush()
}

// RenderString renders the chart into a string.
func (r *Renderer) RenderString(buffer []bool, rows, cols int) (string, error) {
	var sb strings.Builder
	sb.Grow(rows * (cols + 1))
	if err := r.Render(&sb, buffer, rows, cols); err != nil {
		return "", err
	}
	return sb.String(), nil
}
