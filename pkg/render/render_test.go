package render

import (
	"strings"
	"testing"
)

func TestRenderStringDefaults(t *testing.T) {
	buffer := []bool{
		true, false, true,
		false, true, false,
	}

	chart, err := NewRenderer().RenderString(buffer, 2, 3)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if want := ". .\n . \n"; chart != want {
		t.Fatalf("chart = %q, want %q", chart, want)
	}
}

func TestRenderAllStableAndAllUnstable(t *testing.T) {
	allStable := []bool{true, true, true, true}
	chart, err := NewRenderer().RenderString(allStable, 2, 2)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if want := "..\n..\n"; chart != want {
		t.Fatalf("all-stable chart = %q, want %q", chart, want)
	}

	allUnstable := make([]bool, 4)
	chart, err = NewRenderer().RenderString(allUnstable, 2, 2)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if want := "  \n  \n"; chart != want {
		t.Fatalf("all-unstable chart = %q, want %q", chart, want)
	}
}

func TestRenderCustomGlyphs(t *testing.T) {
	r, err := NewRendererWithGlyphs('#', '-')
	if err != nil {
		t.Fatalf("NewRendererWithGlyphs failed: %v", err)
	}

	chart, err := r.RenderString([]bool{true, false}, 1, 2)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}
	if want := "#-\n"; chart != want {
		t.Fatalf("chart = %q, want %q", chart, want)
	}
}

func TestNewRendererWithGlyphsRejectsBadRunes(t *testing.T) {
	tests := []struct {
		name     string
		stable   rune
		unstable rune
	}{
		{"wide stable glyph", '世', ' '},
		{"fullwidth unstable glyph", '.', '＊'},
		{"newline glyph", '\n', ' '},
		{"tab glyph", '.', '\t'},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRendererWithGlyphs(tt.stable, tt.unstable); err == nil {
				t.Fatalf("accepted glyph pair (%q, %q)", tt.stable, tt.unstable)
			}
		})
	}
}

func TestRenderRejectsDimensionMismatch(t *testing.T) {
	r := NewRenderer()

	if _, err := r.RenderString(make([]bool, 5), 2, 3); err == nil {
		t.Fatal("expected error for short buffer")
	}
	if _, err := r.RenderString(make([]bool, 6), 0, 6); err == nil {
		t.Fatal("expected error for zero rows")
	}
	if _, err := r.RenderString(make([]bool, 6), 6, -1); err == nil {
		t.Fatal("expected error for negative cols")
	}
}

func TestRenderShape(t *testing.T) {
	const rows, cols = 7, 13
	chart, err := NewRenderer().RenderString(make([]bool, rows*cols), rows, cols)
	if err != nil {
		t.Fatalf("RenderString failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(chart, "\n"), "\n")
	if len(lines) != rows {
		t.Fatalf("chart has %d lines, want %d", len(lines), rows)
	}
	for i, line := range lines {
		if len(line) != cols {
			t.Fatalf("line %d has %d glyphs, want %d", i, len(line), cols)
		}
	}
	if !strings.HasSuffix(chart, "\n") {
		t.Fatal("chart must end with a newline")
	}
}
