// Package natsrt distributes evaluation units over NATS. The driver-side
// Runtime publishes task envelopes to a subject and collects result
// envelopes on a per-registration reply inbox; Workers consume the subject
// as a queue group, so the broker balances units across however many worker
// processes are attached.
package natsrt

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/errors"
	"github.com/wehubfusion/Helios/pkg/taskruntime"
)

// DefaultSubject is the subject tasks are published to.
const DefaultSubject = "helios.tasks"

// DefaultQueue is the queue group workers join.
const DefaultQueue = "helios-workers"

// Runtime is the driver-side NATS task runtime. Each registration gets a
// fresh run ID and reply inbox; results carrying a different run ID are
// dropped as stale.
type Runtime struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger

	mu     sync.Mutex
	active *taskruntime.Handle
	runID  string
	sub    *nats.Subscription
	inbox  string
	seen   []bool

	// idle receives a token whenever inflight drops to zero, waking WaitAll.
	idle chan struct{}

	inflight atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	closed   atomic.Bool

	errMu sync.Mutex
	first error
}

// NewRuntime creates a NATS runtime on an established connection.
// The connection must already be connected; subject defaults to
// DefaultSubject when empty.
func NewRuntime(conn *nats.Conn, subject string, logger *zap.Logger) (*Runtime, error) {
	if conn == nil {
		return nil, errors.NewError("NATS_RUNTIME", "connection cannot be nil", nil)
	}
	if !conn.IsConnected() {
		return nil, errors.NewError("NATS_RUNTIME", "connection is not established", nil)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runtime{
		conn:    conn,
		subject: subject,
		logger:  logger,
		idle:    make(chan struct{}, 1),
	}, nil
}

// Register hands exclusive write access to the buffer to the runtime and
// opens the reply inbox results are collected on.
func (r *Runtime) Register(buffer []bool, mode taskruntime.AccessMode) (*taskruntime.Handle, error) {
	if r.closed.Load() {
		return nil, errors.ErrRuntimeClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, errors.ErrAlreadyRegistered
	}
	if len(buffer) == 0 {
		return nil, errors.ErrNilBuffer
	}
	if mode != taskruntime.ModeWrite {
		return nil, errors.ErrInvalidAccessMode
	}

	inbox := nats.NewInbox()
	sub, err := r.conn.Subscribe(inbox, func(msg *nats.Msg) {
		r.handleResult(buffer, msg)
	})
	if err != nil {
		return nil, errors.NewError("NATS_RUNTIME", "failed to subscribe to result inbox", err)
	}

	h, err := taskruntime.NewHandle(buffer, mode)
	if err != nil {
		if uerr := sub.Unsubscribe(); uerr != nil {
			r.logger.Warn("failed to unsubscribe result inbox", zap.Error(uerr))
		}
		return nil, err
	}
	r.active = h
	r.runID = uuid.NewString()
	r.inbox = inbox
	r.sub = sub
	r.seen = make([]bool, len(buffer))
	r.errMu.Lock()
	r.first = nil
	r.errMu.Unlock()

	r.logger.Debug("buffer registered",
		zap.Int("cells", len(buffer)),
		zap.String("run_id", r.runID),
		zap.String("inbox", inbox),
	)
	return h, nil
}

// handleResult applies one remote result to the registered buffer. Results
// that cannot belong to an outstanding unit are dropped without touching the
// barrier accounting: malformed payloads, stale run IDs, indices outside the
// buffer, and duplicate replies for an index already settled.
func (r *Runtime) handleResult(buffer []bool, msg *nats.Msg) {
	res, err := DecodeResult(msg.Data)
	if err != nil {
		r.logger.Warn("dropping malformed result", zap.Error(err))
		return
	}

	r.mu.Lock()
	if res.RunID != r.runID {
		current := r.runID
		r.mu.Unlock()
		r.logger.Warn("dropping stale result",
			zap.String("run_id", res.RunID),
			zap.String("current_run_id", current),
		)
		return
	}
	if res.Index < 0 || res.Index >= len(buffer) {
		r.mu.Unlock()
		r.logger.Warn("dropping result with out-of-range index", zap.Int("index", res.Index))
		return
	}
	if r.seen[res.Index] {
		r.mu.Unlock()
		r.logger.Warn("dropping duplicate result", zap.Int("index", res.Index))
		return
	}
	r.seen[res.Index] = true
	r.mu.Unlock()

	if res.Error != "" {
		r.recordFailure(res.Index, errors.NewError("UNIT_FAILED", res.Error, nil))
	} else {
		buffer[res.Index] = res.Stable
		r.executed.Add(1)
	}

	r.settleUnit()
}

// settleUnit retires one outstanding unit and wakes WaitAll when none remain.
func (r *Runtime) settleUnit() {
	if r.inflight.Add(-1) == 0 {
		select {
		case r.idle <- struct{}{}:
		default:
		}
	}
}

// recordFailure tracks a unit failure for the barrier to surface.
func (r *Runtime) recordFailure(index int, err error) {
	r.failed.Add(1)
	r.errMu.Lock()
	if r.first == nil {
		r.first = err
	}
	r.errMu.Unlock()
	r.logger.Warn("remote unit failed",
		zap.Int("index", index),
		zap.Error(err),
	)
}

// Submit publishes one descriptor to the task subject with the reply inbox
// attached. It does not wait for a worker to pick the unit up.
func (r *Runtime) Submit(ctx context.Context, h *taskruntime.Handle, d taskruntime.Descriptor) error {
	if r.closed.Load() {
		return errors.ErrRuntimeClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	if h == nil || r.active != h {
		r.mu.Unlock()
		return errors.ErrUnknownHandle
	}
	runID, inbox := r.runID, r.inbox
	r.mu.Unlock()

	if d.Index < 0 || d.Index >= h.Len() {
		return errors.ErrIndexOutOfRange
	}

	data, err := EncodeTask(TaskEnvelope{
		RunID: runID,
		Re:    real(d.Input),
		Im:    imag(d.Input),
		Index: d.Index,
	})
	if err != nil {
		return errors.NewError("NATS_RUNTIME", "failed to encode task", err)
	}

	r.inflight.Add(1)

	if err := r.conn.PublishRequest(r.subject, inbox, data); err != nil {
		r.settleUnit()
		return errors.NewError("NATS_RUNTIME", "failed to publish task", err)
	}
	return nil
}

// WaitAll blocks until a result has arrived for every submitted unit.
// It returns the first unit error observed for the active registration.
// An interrupted wait spawns nothing and leaks nothing; a later WaitAll
// picks the barrier back up.
func (r *Runtime) WaitAll(ctx context.Context) error {
	for r.inflight.Load() != 0 {
		select {
		case <-r.idle:
			// Re-check: the token may predate newer submissions.
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.first
}

// Deregister closes the reply inbox and releases the buffer.
func (r *Runtime) Deregister(h *taskruntime.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil || r.active != h {
		return errors.ErrUnknownHandle
	}
	if r.inflight.Load() != 0 {
		return errors.ErrTasksPending
	}

	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("failed to unsubscribe result inbox", zap.Error(err))
		}
		r.sub = nil
	}

	h.Release()
	r.active = nil
	r.seen = nil

	r.logger.Debug("buffer deregistered", zap.String("run_id", r.runID))
	return nil
}

// Close shuts the runtime down. The NATS connection itself is owned by the
// caller and is left open.
func (r *Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("failed to unsubscribe result inbox", zap.Error(err))
		}
		r.sub = nil
	}
	return nil
}

// Stats returns the number of successfully executed and failed units.
func (r *Runtime) Stats() (executed, failed int64) {
	return r.executed.Load(), r.failed.Load()
}
