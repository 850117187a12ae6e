package taskruntime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/errors"
)

// SequentialRuntime executes every unit inline at submission time on the
// caller's goroutine. The barrier is trivially satisfied. It exists as the
// reference implementation for tests and as the 1-worker baseline for the
// determinism property: the rendered chart must be byte-identical whether a
// run used this runtime or a many-worker pool.
type SequentialRuntime struct {
	codelet Codelet
	logger  *zap.Logger

	mu       sync.Mutex
	active   *Handle
	first    error
	executed int64
	failed   int64
	closed   bool
}

// NewSequential creates a sequential runtime around the given codelet.
func NewSequential(codelet Codelet, logger *zap.Logger) *SequentialRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SequentialRuntime{
		codelet: codelet,
		logger:  logger,
	}
}

// Register hands exclusive write access to the buffer to the runtime.
func (s *SequentialRuntime) Register(buffer []bool, mode AccessMode) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.ErrRuntimeClosed
	}
	if s.active != nil {
		return nil, errors.ErrAlreadyRegistered
	}

	h, err := NewHandle(buffer, mode)
	if err != nil {
		return nil, err
	}

	s.active = h
	s.first = nil
	return h, nil
}

// Submit executes the unit immediately and stores its classification.
// A failed unit leaves its slot untouched; the error is surfaced by WaitAll.
func (s *SequentialRuntime) Submit(ctx context.Context, h *Handle, d Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.ErrRuntimeClosed
	}
	if h == nil || s.active != h {
		return errors.ErrUnknownHandle
	}
	if err := h.checkWritable(d.Index); err != nil {
		return err
	}

	stable, err := s.codelet.Execute(ctx, d)
	if err != nil {
		s.failed++
		if s.first == nil {
			s.first = errors.NewError("UNIT_FAILED", "unit execution failed", err)
		}
		s.logger.Warn("unit execution failed",
			zap.Int("index", d.Index),
			zap.Error(err),
		)
		return nil
	}

	h.buffer[d.Index] = stable
	s.executed++
	return nil
}

// WaitAll returns immediately: every submitted unit has already run.
// It reports the first unit error observed, if any.
func (s *SequentialRuntime) WaitAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.first
}

// Deregister releases the runtime's hold on the buffer.
func (s *SequentialRuntime) Deregister(h *Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil || s.active != h {
		return errors.ErrUnknownHandle
	}

	h.Release()
	s.active = nil
	return nil
}

// Close shuts the runtime down.
func (s *SequentialRuntime) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Stats returns the number of successfully executed and failed units.
func (s *SequentialRuntime) Stats() (executed, failed int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executed, s.failed
}
