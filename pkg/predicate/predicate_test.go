package predicate

import (
	"sync"
	"testing"
)

func TestNewMandelbrotRejectsNegativeIterations(t *testing.T) {
	if _, err := NewMandelbrot(-1); err == nil {
		t.Fatal("expected error for negative iteration bound")
	}
}

func TestOriginIsStableForAnyIterationBound(t *testing.T) {
	for _, k := range []int{0, 1, 10, 2000} {
		m, err := NewMandelbrot(k)
		if err != nil {
			t.Fatalf("NewMandelbrot(%d) failed: %v", k, err)
		}
		stable, err := m.Evaluate(complex(0, 0))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}
		if !stable {
			t.Fatalf("origin must be stable at k=%d", k)
		}
	}
}

func TestEvaluateReferenceTable(t *testing.T) {
	tests := []struct {
		name       string
		c          complex128
		iterations int
		stable     bool
	}{
		{"zero iterations leaves z at origin", complex(3, 4), 0, true},
		{"large real point escapes in one step", complex(3, 0), 1, false},
		{"large imaginary point escapes in one step", complex(0, 3), 1, false},
		{"boundary point -2 cycles on the threshold", complex(-2, 0), 2000, true},
		{"interior point 0.25 stays bounded", complex(0.25, 0), 2000, true},
		{"point 1 diverges", complex(1, 0), 50, false},
		{"point i cycles with magnitude 1", complex(0, 1), 2000, true},
		{"point -1 oscillates between 0 and -1", complex(-1, 0), 2000, true},
		{"point -0.1+0.1i stays bounded", complex(-0.1, 0.1), 2000, true},
		{"point 0.5+0.5i diverges", complex(0.5, 0.5), 2000, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMandelbrot(tt.iterations)
			if err != nil {
				t.Fatalf("NewMandelbrot failed: %v", err)
			}
			stable, err := m.Evaluate(tt.c)
			if err != nil {
				t.Fatalf("Evaluate failed: %v", err)
			}
			if stable != tt.stable {
				t.Fatalf("Evaluate(%v, k=%d) = %v, want %v", tt.c, tt.iterations, stable, tt.stable)
			}
		})
	}
}

func TestMagnitudeComparisonIsInclusive(t *testing.T) {
	// One iteration from the origin yields z = c, so classification reduces
	// to |c| <= 2 exactly.
	m, err := NewMandelbrot(1)
	if err != nil {
		t.Fatalf("NewMandelbrot failed: %v", err)
	}

	stable, _ := m.Evaluate(complex(2, 0))
	if !stable {
		t.Fatal("|z| == 2.0 must classify as stable")
	}

	stable, _ = m.Evaluate(complex(2.0000001, 0))
	if stable {
		t.Fatal("|z| just above 2.0 must classify as unstable")
	}
}

func TestEvaluateIsDeterministicUnderConcurrency(t *testing.T) {
	m, err := NewMandelbrot(500)
	if err != nil {
		t.Fatalf("NewMandelbrot failed: %v", err)
	}
	c := complex(-0.75, 0.1)

	want, _ := m.Evaluate(c)

	var wg sync.WaitGroup
	results := make([]bool, 32)
	for i := range results {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			results[slot], _ = m.Evaluate(c)
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		if got != want {
			t.Fatalf("concurrent evaluation %d = %v, want %v", i, got, want)
		}
	}
}
