// Package taskruntime provides asynchronous execution of per-cell evaluation
// units against a registered result buffer, with a completion barrier.
//
// A runtime accepts a single buffer registration at a time, executes each
// submitted descriptor exactly once, and writes the unit's classification
// into the registered buffer at the descriptor's destination index. Because
// the driver submits every index exactly once, write sets are disjoint and
// no per-index locking is needed; the barrier is the only synchronization
// point the caller observes.
package taskruntime

import (
	"context"

	"github.com/wehubfusion/Helios/pkg/errors"
)

// AccessMode declares how the runtime's units access a registered buffer.
type AccessMode int

const (
	// ModeRead grants read-only access.
	ModeRead AccessMode = iota

	// ModeWrite grants write-only access. Result buffers must be
	// registered with this mode.
	ModeWrite
)

// String returns the mode name for logging.
func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// Descriptor pairs one cell input with its destination slot in the result
// buffer. Descriptors are immutable and consumed exactly once.
type Descriptor struct {
	// Input is the cell value to evaluate
	Input complex128

	// Index is the destination slot in the registered buffer
	Index int
}

// Codelet is the executable unit definition, injected into a runtime at
// construction. The runtime stores the returned classification at
// Descriptor.Index; a failed unit leaves its slot untouched (unstable by
// default) and its error is surfaced by the barrier.
type Codelet interface {
	Execute(ctx context.Context, d Descriptor) (bool, error)
}

// CodeletFunc adapts a plain function to the Codelet interface.
type CodeletFunc func(ctx context.Context, d Descriptor) (bool, error)

// Execute implements Codelet.
func (f CodeletFunc) Execute(ctx context.Context, d Descriptor) (bool, error) {
	return f(ctx, d)
}

// EvaluatorCodelet wraps a predicate-style evaluator as a Codelet.
func EvaluatorCodelet(evaluate func(c complex128) (bool, error)) Codelet {
	return CodeletFunc(func(_ context.Context, d Descriptor) (bool, error) {
		return evaluate(d.Input)
	})
}

// Handle identifies an active buffer registration.
// A handle is created by Register and invalidated by Deregister; submits
// against a released handle fail.
type Handle struct {
	buffer   []bool
	mode     AccessMode
	released bool
}

// Len returns the length of the registered buffer.
func (h *Handle) Len() int {
	return len(h.buffer)
}

// Mode returns the declared access mode.
func (h *Handle) Mode() AccessMode {
	return h.mode
}

// checkWritable validates that a unit may write the given index.
func (h *Handle) checkWritable(index int) error {
	if h.released {
		return errors.ErrHandleReleased
	}
	if h.mode != ModeWrite {
		return errors.ErrInvalidAccessMode
	}
	if index < 0 || index >= len(h.buffer) {
		return errors.ErrIndexOutOfRange
	}
	return nil
}

// NewHandle validates the buffer and mode and creates a registration handle.
// Runtime implementations call this from Register; drivers never construct
// handles directly.
func NewHandle(buffer []bool, mode AccessMode) (*Handle, error) {
	if len(buffer) == 0 {
		return nil, errors.ErrNilBuffer
	}
	if mode != ModeWrite {
		return nil, errors.ErrInvalidAccessMode
	}
	return &Handle{buffer: buffer, mode: mode}, nil
}

// Release marks the handle as deregistered. Further submits against it fail
// with ErrHandleReleased.
func (h *Handle) Release() {
	h.released = true
}

// Runtime executes submitted units against a registered result buffer.
//
// The contract is: Register exactly one buffer, Submit any number of
// descriptors (non-blocking with respect to unit execution), WaitAll to
// block until every submitted unit has finished, then Deregister to release
// the buffer for reading. Implementations may run units on any number of
// workers in any order; callers rely only on write-set disjointness and the
// barrier.
type Runtime interface {
	// Register hands exclusive access to the buffer to the runtime.
	// Only one registration may be active at a time.
	Register(buffer []bool, mode AccessMode) (*Handle, error)

	// Submit queues one descriptor for execution against the handle's
	// buffer. It does not wait for the unit to run.
	Submit(ctx context.Context, h *Handle, d Descriptor) error

	// WaitAll blocks until every unit submitted against the active
	// registration has completed, successfully or not. It returns the
	// first unit error observed, if any.
	WaitAll(ctx context.Context) error

	// Deregister releases the runtime's hold on the buffer. It is only
	// legal once no submitted units are in flight; afterwards the buffer
	// is safe for its owner to read.
	Deregister(h *Handle) error

	// Close shuts the runtime down. No operations are valid afterwards.
	Close() error
}
