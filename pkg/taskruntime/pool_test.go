package taskruntime

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/wehubfusion/Helios/pkg/concurrency"
	"github.com/wehubfusion/Helios/pkg/errors"
)

// parityCodelet classifies cells by the parity of their destination index,
// giving every slot a predictable expected value.
func parityCodelet() Codelet {
	return CodeletFunc(func(_ context.Context, d Descriptor) (bool, error) {
		return d.Index%2 == 0, nil
	})
}

func newTestPool(t *testing.T, codelet Codelet, workers int) *PoolRuntime {
	t.Helper()
	pool := NewPool(DefaultPoolConfig().WithNumWorkers(workers), codelet, nil, nil)
	pool.Start()
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestPoolExecutesEveryUnitExactlyOnce(t *testing.T) {
	const cells = 500
	pool := newTestPool(t, parityCodelet(), 8)

	buffer := make([]bool, cells)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < cells; i++ {
		if err := pool.Submit(ctx, h, Descriptor{Input: complex(float64(i), 0), Index: i}); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}

	if err := pool.WaitAll(ctx); err != nil {
		t.Fatalf("WaitAll failed: %v", err)
	}

	for i, got := range buffer {
		if want := i%2 == 0; got != want {
			t.Fatalf("buffer[%d] = %v, want %v", i, got, want)
		}
	}

	executed, failed := pool.Stats()
	if executed != cells || failed != 0 {
		t.Fatalf("Stats() = (%d, %d), want (%d, 0)", executed, failed, cells)
	}

	if err := pool.Deregister(h); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
}

func TestPoolWithLimiter(t *testing.T) {
	limiter := concurrency.NewLimiter(2)
	pool := NewPool(DefaultPoolConfig().WithNumWorkers(4), parityCodelet(), limiter, nil)
	pool.Start()
	defer func() { _ = pool.Close() }()

	buffer := make([]bool, 64)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	for i := range buffer {
		if err := pool.Submit(ctx, h, Descriptor{Index: i}); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}
	if err := pool.WaitAll(ctx); err != nil {
		t.Fatalf("WaitAll failed: %v", err)
	}

	metrics := limiter.GetMetrics()
	if metrics.TotalAcquired != 64 {
		t.Fatalf("limiter acquired %d slots, want 64", metrics.TotalAcquired)
	}
	if metrics.PeakConcurrent > 2 {
		t.Fatalf("peak concurrency %d exceeded limit 2", metrics.PeakConcurrent)
	}
}

func TestPoolRegisterValidation(t *testing.T) {
	pool := newTestPool(t, parityCodelet(), 2)

	if _, err := pool.Register(nil, ModeWrite); !stderrors.Is(err, errors.ErrNilBuffer) {
		t.Fatalf("nil buffer: got %v, want ErrNilBuffer", err)
	}
	if _, err := pool.Register(make([]bool, 4), ModeRead); !stderrors.Is(err, errors.ErrInvalidAccessMode) {
		t.Fatalf("read mode: got %v, want ErrInvalidAccessMode", err)
	}

	h, err := pool.Register(make([]bool, 4), ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := pool.Register(make([]bool, 4), ModeWrite); !stderrors.Is(err, errors.ErrAlreadyRegistered) {
		t.Fatalf("second registration: got %v, want ErrAlreadyRegistered", err)
	}
	if err := pool.Deregister(h); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}

	// A new registration is valid once the previous one is released.
	if _, err := pool.Register(make([]bool, 4), ModeWrite); err != nil {
		t.Fatalf("re-registration failed: %v", err)
	}
}

func TestPoolSubmitValidation(t *testing.T) {
	pool := newTestPool(t, parityCodelet(), 2)

	buffer := make([]bool, 4)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	if err := pool.Submit(ctx, h, Descriptor{Index: -1}); !stderrors.Is(err, errors.ErrIndexOutOfRange) {
		t.Fatalf("negative index: got %v, want ErrIndexOutOfRange", err)
	}
	if err := pool.Submit(ctx, h, Descriptor{Index: 4}); !stderrors.Is(err, errors.ErrIndexOutOfRange) {
		t.Fatalf("index past end: got %v, want ErrIndexOutOfRange", err)
	}
	if err := pool.Submit(ctx, nil, Descriptor{Index: 0}); !stderrors.Is(err, errors.ErrUnknownHandle) {
		t.Fatalf("nil handle: got %v, want ErrUnknownHandle", err)
	}

	if err := pool.Deregister(h); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
	if err := pool.Submit(ctx, h, Descriptor{Index: 0}); !stderrors.Is(err, errors.ErrUnknownHandle) {
		t.Fatalf("submit after deregister: got %v, want ErrUnknownHandle", err)
	}
}

func TestPoolSurfacesFirstUnitError(t *testing.T) {
	unitErr := fmt.Errorf("cell 3 exploded")
	codelet := CodeletFunc(func(_ context.Context, d Descriptor) (bool, error) {
		if d.Index == 3 {
			return false, unitErr
		}
		return true, nil
	})
	pool := newTestPool(t, codelet, 4)

	buffer := make([]bool, 8)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	for i := range buffer {
		if err := pool.Submit(ctx, h, Descriptor{Index: i}); err != nil {
			t.Fatalf("Submit(%d) failed: %v", i, err)
		}
	}

	err = pool.WaitAll(ctx)
	if err == nil {
		t.Fatal("WaitAll must surface the unit error")
	}
	if !stderrors.Is(err, unitErr) {
		t.Fatalf("WaitAll error %v does not wrap the unit error", err)
	}

	// Failed unit keeps the zero value; the rest completed normally.
	for i, got := range buffer {
		if want := i != 3; got != want {
			t.Fatalf("buffer[%d] = %v, want %v", i, got, want)
		}
	}

	executed, failed := pool.Stats()
	if executed != 7 || failed != 1 {
		t.Fatalf("Stats() = (%d, %d), want (7, 1)", executed, failed)
	}

	if err := pool.Deregister(h); err != nil {
		t.Fatalf("Deregister failed: %v", err)
	}
}

func TestPoolDeregisterWithUnitsInFlight(t *testing.T) {
	release := make(chan struct{})
	codelet := CodeletFunc(func(_ context.Context, _ Descriptor) (bool, error) {
		<-release
		return true, nil
	})
	pool := newTestPool(t, codelet, 1)

	buffer := make([]bool, 2)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ctx := context.Background()
	if err := pool.Submit(ctx, h, Descriptor{Index: 0}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if err := pool.Deregister(h); !stderrors.Is(err, errors.ErrTasksPending) {
		t.Fatalf("Deregister with units in flight: got %v, want ErrTasksPending", err)
	}

	close(release)
	if err := pool.WaitAll(ctx); err != nil {
		t.Fatalf("WaitAll failed: %v", err)
	}
	if err := pool.Deregister(h); err != nil {
		t.Fatalf("Deregister after barrier failed: %v", err)
	}
}

func TestPoolWaitAllHonorsContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	codelet := CodeletFunc(func(_ context.Context, _ Descriptor) (bool, error) {
		<-release
		return true, nil
	})
	pool := newTestPool(t, codelet, 1)

	buffer := make([]bool, 1)
	h, err := pool.Register(buffer, ModeWrite)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := pool.Submit(context.Background(), h, Descriptor{Index: 0}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.WaitAll(ctx); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitAll with expired context: got %v, want DeadlineExceeded", err)
	}
}

func TestPoolOperationsAfterClose(t *testing.T) {
	pool := NewPool(DefaultPoolConfig().WithNumWorkers(1), parityCodelet(), nil, nil)
	pool.Start()
	if err := pool.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Closing twice is a no-op.
	if err := pool.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := pool.Register(make([]bool, 1), ModeWrite); !stderrors.Is(err, errors.ErrRuntimeClosed) {
		t.Fatalf("Register after Close: got %v, want ErrRuntimeClosed", err)
	}
}
