package taskruntime

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/concurrency"
	"github.com/wehubfusion/Helios/pkg/errors"
)

// PoolConfig configures the worker-pool runtime.
type PoolConfig struct {
	// NumWorkers is the number of concurrent workers.
	// If 0, it will be determined from the limiter or defaults to runtime.NumCPU().
	NumWorkers int

	// BufferSize is the job channel buffer size.
	// Larger buffers allow more units to be queued before Submit blocks.
	// Default: 100
	BufferSize int

	// UseLimiter determines if the concurrency limiter should gate unit
	// execution. When true, workers acquire/release a limiter slot around
	// each unit.
	// Default: true
	UseLimiter bool
}

// DefaultPoolConfig returns sensible defaults for the pool runtime.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers: 0,    // Determined at runtime
		BufferSize: 100,  // Allow queuing without blocking
		UseLimiter: true, // Use the limiter by default
	}
}

// Validate validates the configuration and applies defaults.
func (c *PoolConfig) Validate() {
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
}

// WithNumWorkers sets the number of workers.
func (c PoolConfig) WithNumWorkers(n int) PoolConfig {
	c.NumWorkers = n
	return c
}

// WithBufferSize sets the job channel buffer size.
func (c PoolConfig) WithBufferSize(n int) PoolConfig {
	c.BufferSize = n
	return c
}

// WithLimiter sets whether to use the limiter.
func (c PoolConfig) WithLimiter(use bool) PoolConfig {
	c.UseLimiter = use
	return c
}

// poolJob carries one descriptor and its submission context to a worker.
type poolJob struct {
	handle *Handle
	desc   Descriptor
	ctx    context.Context
}

// PoolRuntime executes units on a fixed set of worker goroutines fed by a
// job channel. Submission never waits for execution; WaitAll is the only
// blocking operation the driver sees.
type PoolRuntime struct {
	config  PoolConfig
	limiter *concurrency.Limiter
	codelet Codelet
	logger  *zap.Logger

	jobs     chan poolJob
	workerWG sync.WaitGroup
	taskWG   sync.WaitGroup

	mu     sync.Mutex
	active *Handle
	errMu  sync.Mutex
	first  error

	inflight atomic.Int64
	executed atomic.Int64
	failed   atomic.Int64
	closed   atomic.Bool
}

// NewPool creates a pool runtime. The codelet is the unit definition every
// submitted descriptor is executed with. If limiter is nil the pool runs
// ungated regardless of config.UseLimiter.
func NewPool(config PoolConfig, codelet Codelet, limiter *concurrency.Limiter, logger *zap.Logger) *PoolRuntime {
	config.Validate()

	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		if limiter != nil {
			numWorkers = int(limiter.CurrentActive()) + 1
			if numWorkers < 1 {
				numWorkers = runtime.NumCPU()
			}
		} else {
			numWorkers = runtime.NumCPU()
		}
	}
	config.NumWorkers = numWorkers

	if logger == nil {
		logger = zap.NewNop()
	}

	return &PoolRuntime{
		config:  config,
		limiter: limiter,
		codelet: codelet,
		logger:  logger,
		jobs:    make(chan poolJob, config.BufferSize),
	}
}

// Start launches the worker goroutines. Must be called once before Submit.
func (p *PoolRuntime) Start() {
	p.logger.Debug("starting pool runtime",
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("buffer_size", p.config.BufferSize),
	)

	for i := 0; i < p.config.NumWorkers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
}

// worker is a single worker goroutine. Workers run until the job channel is
// closed; per-unit contexts are honored inside processJob so that a queued
// unit is always accounted for at the barrier.
func (p *PoolRuntime) worker(id int) {
	defer p.workerWG.Done()

	p.logger.Debug("worker started", zap.Int("worker_id", id))

	for job := range p.jobs {
		p.processJob(job)
	}

	p.logger.Debug("worker stopping, job channel closed", zap.Int("worker_id", id))
}

// processJob executes a single unit and publishes its result into the
// registered buffer. Failed units leave their slot untouched.
func (p *PoolRuntime) processJob(job poolJob) {
	defer p.taskWG.Done()
	defer p.inflight.Add(-1)

	if err := job.ctx.Err(); err != nil {
		p.recordFailure(job.desc.Index, err)
		return
	}

	if p.config.UseLimiter && p.limiter != nil {
		if err := p.limiter.Acquire(job.ctx); err != nil {
			p.recordFailure(job.desc.Index, err)
			return
		}
		defer p.limiter.Release()
	}

	stable, err := p.codelet.Execute(job.ctx, job.desc)
	if err != nil {
		p.recordFailure(job.desc.Index, err)
		return
	}

	// Disjoint write: this unit is the only writer of this index.
	job.handle.buffer[job.desc.Index] = stable
	p.executed.Add(1)
}

// recordFailure tracks a unit failure for the barrier to surface.
func (p *PoolRuntime) recordFailure(index int, err error) {
	p.failed.Add(1)
	p.errMu.Lock()
	if p.first == nil {
		p.first = errors.NewError("UNIT_FAILED", "unit execution failed", err)
	}
	p.errMu.Unlock()
	p.logger.Warn("unit execution failed",
		zap.Int("index", index),
		zap.Error(err),
	)
}

// Register hands exclusive write access to the buffer to the pool for the
// duration of the run. Only one registration may be active at a time.
func (p *PoolRuntime) Register(buffer []bool, mode AccessMode) (*Handle, error) {
	if p.closed.Load() {
		return nil, errors.ErrRuntimeClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil {
		return nil, errors.ErrAlreadyRegistered
	}

	h, err := NewHandle(buffer, mode)
	if err != nil {
		return nil, err
	}

	p.active = h
	p.errMu.Lock()
	p.first = nil
	p.errMu.Unlock()

	p.logger.Debug("buffer registered",
		zap.Int("cells", h.Len()),
		zap.String("mode", mode.String()),
	)
	return h, nil
}

// Submit queues one descriptor. It returns once the unit is queued, without
// waiting for it to run.
func (p *PoolRuntime) Submit(ctx context.Context, h *Handle, d Descriptor) error {
	if p.closed.Load() {
		return errors.ErrRuntimeClosed
	}
	if h == nil {
		return errors.ErrUnknownHandle
	}

	p.mu.Lock()
	if p.active != h {
		p.mu.Unlock()
		return errors.ErrUnknownHandle
	}
	p.mu.Unlock()

	if err := h.checkWritable(d.Index); err != nil {
		return err
	}

	p.taskWG.Add(1)
	p.inflight.Add(1)

	select {
	case p.jobs <- poolJob{handle: h, desc: d, ctx: ctx}:
		return nil
	case <-ctx.Done():
		p.inflight.Add(-1)
		p.taskWG.Done()
		return ctx.Err()
	}
}

// WaitAll blocks until every submitted unit has completed. It returns the
// first unit error observed for the active registration, if any.
func (p *PoolRuntime) WaitAll(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.taskWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.first
}

// Deregister releases the pool's hold on the buffer. It fails with
// ErrTasksPending if submitted units are still in flight.
func (p *PoolRuntime) Deregister(h *Handle) error {
	if h == nil {
		return errors.ErrUnknownHandle
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != h {
		return errors.ErrUnknownHandle
	}
	if p.inflight.Load() != 0 {
		return errors.ErrTasksPending
	}

	h.Release()
	p.active = nil

	p.logger.Debug("buffer deregistered", zap.Int("cells", h.Len()))
	return nil
}

// Close shuts the pool down: the job channel is closed and all workers are
// joined. No operations are valid afterwards.
func (p *PoolRuntime) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	close(p.jobs)
	p.workerWG.Wait()
	return nil
}

// Stats returns the number of successfully executed and failed units.
func (p *PoolRuntime) Stats() (executed, failed int64) {
	return p.executed.Load(), p.failed.Load()
}
