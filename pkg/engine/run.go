package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/grid"
	"github.com/wehubfusion/Helios/pkg/taskruntime"
)

// Result is the outcome of a completed run.
type Result struct {
	// RunID is the unique identifier of the run
	RunID string

	// Buffer is the completed result buffer, one slot per grid cell in
	// row-major order, safe to read once Run returns
	Buffer []bool
}

// Run executes the whole pipeline for one grid: generate the input domain,
// allocate the result buffer, register it with the runtime, submit one unit
// per cell, wait at the barrier, deregister, and return the buffer.
//
// Unit failures follow the default-unstable policy: the failed slot keeps
// its zero value, the failure is logged and counted, and the run still
// completes. Infrastructure failures (grid validation, registration,
// submission, an interrupted barrier) abort the run with an error and no
// buffer.
func Run(ctx context.Context, spec grid.Spec, rt taskruntime.Runtime, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	tracer := otel.Tracer("helios/engine")
	ctx, span := tracer.Start(ctx, "stability-run")
	defer span.End()

	span.SetAttributes(
		attribute.Int("grid.rows", spec.Rows),
		attribute.Int("grid.cols", spec.Cols),
	)

	cells, err := spec.Generate()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grid generation failed")
		return nil, fmt.Errorf("failed to allocate input grid: %w", err)
	}

	buffer := make([]bool, len(cells))

	core, err := NewCore(rt, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "core construction failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("run.id", core.RunID()))

	logger.Info("starting stability run",
		zap.String("run_id", core.RunID()),
		zap.Int("rows", spec.Rows),
		zap.Int("cols", spec.Cols),
		zap.Int("cells", len(cells)),
	)

	if err := core.Register(buffer); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "buffer registration failed")
		return nil, fmt.Errorf("failed to register result buffer: %w", err)
	}
	span.AddEvent("buffer-registered")

	for i, c := range cells {
		if err := core.Submit(ctx, c, i); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "submission failed")
			return nil, fmt.Errorf("failed to submit unit %d: %w", i, err)
		}
	}
	span.AddEvent("tasks-submitted")

	if err := core.Barrier(ctx); err != nil {
		if core.State() != StateBarrierComplete {
			// Interrupted wait: units may still be writing the buffer.
			span.RecordError(err)
			span.SetStatus(codes.Error, "barrier interrupted")
			return nil, fmt.Errorf("barrier interrupted: %w", err)
		}
		// Default-unstable policy: failed slots stay at their zero value.
		logger.Warn("run completed with failed units",
			zap.String("run_id", core.RunID()),
			zap.Error(err),
		)
		span.RecordError(err)
	}
	span.AddEvent("barrier-complete")

	if err := core.Deregister(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deregistration failed")
		return nil, fmt.Errorf("failed to deregister result buffer: %w", err)
	}

	logger.Info("stability run complete",
		zap.String("run_id", core.RunID()),
		zap.Int("cells", len(buffer)),
	)
	return &Result{RunID: core.RunID(), Buffer: buffer}, nil
}
