// Package engine drives a stability run: it owns the result buffer's
// registration with the task runtime, submits one evaluation unit per grid
// cell, and guarantees through the completion barrier that every unit has
// finished before the buffer is handed back to the caller.
package engine

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/errors"
	"github.com/wehubfusion/Helios/pkg/taskruntime"
)

// State tracks the run lifecycle. Transitions are strictly sequential and
// single-pass: uninitialized → buffer-registered → tasks-submitted →
// barrier-complete → buffer-deregistered.
type State int

const (
	StateUninitialized State = iota
	StateBufferRegistered
	StateTasksSubmitted
	StateBarrierComplete
	StateBufferDeregistered
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBufferRegistered:
		return "buffer-registered"
	case StateTasksSubmitted:
		return "tasks-submitted"
	case StateBarrierComplete:
		return "barrier-complete"
	case StateBufferDeregistered:
		return "buffer-deregistered"
	default:
		return "unknown"
	}
}

// Core is the execution core for a single run. It is not safe for concurrent
// use: the driver's control flow is sequential by design, with the barrier
// as its only suspension point. Parallelism lives entirely in the runtime.
type Core struct {
	runtime taskruntime.Runtime
	logger  *zap.Logger

	runID     string
	state     State
	handle    *taskruntime.Handle
	seen      []bool
	submitted int
}

// NewCore creates an execution core bound to a task runtime.
func NewCore(rt taskruntime.Runtime, logger *zap.Logger) (*Core, error) {
	if rt == nil {
		return nil, errors.NewError("ENGINE", "task runtime cannot be nil", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Core{
		runtime: rt,
		logger:  logger,
		runID:   uuid.NewString(),
		state:   StateUninitialized,
	}, nil
}

// RunID returns the unique identifier of this run.
func (c *Core) RunID() string {
	return c.runID
}

// State returns the current lifecycle state.
func (c *Core) State() State {
	return c.state
}

// Submitted returns the number of units submitted so far.
func (c *Core) Submitted() int {
	return c.submitted
}

// invalidState builds a coded state-violation error.
func (c *Core) invalidState(op string) error {
	return errors.NewError("ENGINE_STATE",
		op+" not valid in state "+c.state.String(),
		errors.ErrInvalidState)
}

// Register hands exclusive write ownership of the result buffer to the task
// runtime for the remainder of the run. The buffer must be non-nil and no
// buffer may already be registered.
func (c *Core) Register(buffer []bool) error {
	if c.state != StateUninitialized {
		return c.invalidState("register")
	}
	if len(buffer) == 0 {
		return errors.ErrNilBuffer
	}

	h, err := c.runtime.Register(buffer, taskruntime.ModeWrite)
	if err != nil {
		return err
	}

	c.handle = h
	c.seen = make([]bool, len(buffer))
	c.state = StateBufferRegistered

	c.logger.Debug("result buffer registered",
		zap.String("run_id", c.runID),
		zap.Int("cells", len(buffer)),
	)
	return nil
}

// Submit builds a task descriptor for one cell input and hands it to the
// runtime. Each index in [0, len(buffer)) must be submitted exactly once
// across the run; duplicate or out-of-range indices are rejected. This
// exhaustive, non-overlapping coverage is what makes the runtime's
// unsynchronized concurrent writes safe.
func (c *Core) Submit(ctx context.Context, input complex128, index int) error {
	if c.state != StateBufferRegistered && c.state != StateTasksSubmitted {
		return c.invalidState("submit")
	}
	if index < 0 || index >= len(c.seen) {
		return errors.ErrIndexOutOfRange
	}
	if c.seen[index] {
		return errors.ErrDuplicateIndex
	}

	err := c.runtime.Submit(ctx, c.handle, taskruntime.Descriptor{
		Input: input,
		Index: index,
	})
	if err != nil {
		return err
	}

	c.seen[index] = true
	c.submitted++
	c.state = StateTasksSubmitted
	return nil
}

// Barrier blocks until every submitted unit has completed. It must be called
// exactly once, after all submissions and before any read of the buffer.
// A unit failure does not prevent barrier completion: the failed slot keeps
// its zero value (unstable) and the first unit error is returned for the
// caller to act on.
func (c *Core) Barrier(ctx context.Context) error {
	if c.state != StateBufferRegistered && c.state != StateTasksSubmitted {
		return c.invalidState("barrier")
	}

	err := c.runtime.WaitAll(ctx)
	if err != nil && stderrors.Is(err, ctx.Err()) {
		// The wait itself was interrupted; units may still be in flight.
		return err
	}

	c.state = StateBarrierComplete
	c.logger.Debug("barrier complete",
		zap.String("run_id", c.runID),
		zap.Int("submitted", c.submitted),
	)
	return err
}

// Deregister releases the runtime's hold on the result buffer. It may only
// be called after the barrier; afterwards the buffer is safe to read.
func (c *Core) Deregister() error {
	if c.state != StateBarrierComplete {
		return c.invalidState("deregister")
	}

	if err := c.runtime.Deregister(c.handle); err != nil {
		return err
	}

	c.handle = nil
	c.state = StateBufferDeregistered

	c.logger.Debug("result buffer deregistered", zap.String("run_id", c.runID))
	return nil
}
