package script

import (
	"strings"
	"sync"
	"testing"
)

func TestNewRejectsEmptySource(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty script source")
	}
}

func TestNewRejectsInvalidSyntax(t *testing.T) {
	if _, err := New(Config{Source: "function stable(re, im) {"}); err == nil {
		t.Fatal("expected compile error for unterminated function")
	}
}

func TestNewRejectsMissingEntryPoint(t *testing.T) {
	_, err := New(Config{Source: "var x = 1;"})
	if err == nil {
		t.Fatal("expected error when entry point is missing")
	}
	if !strings.Contains(err.Error(), "stable") {
		t.Fatalf("error should name the missing entry point, got: %v", err)
	}
}

func TestEvaluateSimplePredicate(t *testing.T) {
	e, err := New(Config{Source: "function stable(re, im) { return re*re + im*im <= 4; }"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stable, err := e.Evaluate(complex(1, 1))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !stable {
		t.Fatal("point inside the disk must be stable")
	}

	stable, err = e.Evaluate(complex(3, 0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if stable {
		t.Fatal("point outside the disk must be unstable")
	}
}

func TestEvaluateCustomEntryPoint(t *testing.T) {
	e, err := New(Config{
		Source:     "function classify(re, im) { return re > 0; }",
		EntryPoint: "classify",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	stable, err := e.Evaluate(complex(1, 0))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !stable {
		t.Fatal("classify(1, 0) must be truthy")
	}
}

func TestEvaluateSurfacesScriptErrors(t *testing.T) {
	e, err := New(Config{Source: "function stable(re, im) { throw new Error('boom'); }"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := e.Evaluate(complex(0, 0)); err == nil {
		t.Fatal("expected script exception to surface as an error")
	}

	// The pool must still serve after a failure.
	e2, err := New(Config{Source: "function stable(re, im) { if (re < 0) throw new Error('neg'); return true; }", PoolSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := e2.Evaluate(complex(-1, 0)); err == nil {
		t.Fatal("expected error for negative input")
	}
	stable, err := e2.Evaluate(complex(1, 0))
	if err != nil {
		t.Fatalf("Evaluate after failure must succeed: %v", err)
	}
	if !stable {
		t.Fatal("Evaluate after failure returned wrong result")
	}
}

func TestSandboxBlocksHostGlobals(t *testing.T) {
	for _, src := range []string{
		"function stable(re, im) { require('fs'); return true; }",
		"function stable(re, im) { return process.env !== undefined; }",
		"function stable(re, im) { eval('1+1'); return true; }",
	} {
		e, err := New(Config{Source: src, PoolSize: 1})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := e.Evaluate(complex(0, 0)); err == nil {
			t.Fatalf("expected sandboxed script to fail: %s", src)
		}
	}
}

func TestEvaluateConcurrentUse(t *testing.T) {
	e, err := New(Config{
		Source:   "function stable(re, im) { return re*re + im*im <= 4; }",
		PoolSize: 4,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 64)
	for i := range errs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			stable, err := e.Evaluate(complex(0.5, 0.5))
			if err == nil && !stable {
				err = &mismatchError{}
			}
			errs[slot] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("concurrent evaluation %d failed: %v", i, err)
		}
	}
}

type mismatchError struct{}

func (*mismatchError) Error() string { return "unexpected classification" }
