// Command helios-worker is the remote evaluation side of the distributed
// task runtime. It joins the task subject as a queue-group member, evaluates
// each delivered cell with the configured predicate, and replies with the
// result. Run as many workers as desired; NATS balances units across them.
//
// Configuration (environment): HELIOS_NATS_URL (required),
// HELIOS_TASK_SUBJECT, HELIOS_TASK_QUEUE, HELIOS_ITERATIONS,
// HELIOS_PREDICATE_SCRIPT.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/Helios/internal/nats"
	"github.com/wehubfusion/Helios/pkg/concurrency"
	"github.com/wehubfusion/Helios/pkg/predicate"
	"github.com/wehubfusion/Helios/pkg/predicate/script"
	"github.com/wehubfusion/Helios/pkg/taskruntime"
	"github.com/wehubfusion/Helios/pkg/taskruntime/natsrt"
)

func main() {
	os.Exit(run())
}

func run() int {
	undo := concurrency.InitializeForKubernetes()
	defer undo()

	logger, err := zap.NewProduction()
	if err != nil {
		return 1
	}
	defer func() { _ = logger.Sync() }()

	url := os.Getenv("HELIOS_NATS_URL")
	if url == "" {
		logger.Error("HELIOS_NATS_URL is required")
		return 1
	}

	evaluator, err := buildEvaluator(logger)
	if err != nil {
		logger.Error("failed to build evaluator", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := natsconn.Connect(ctx, natsconn.DefaultConnectionConfig(url))
	if err != nil {
		logger.Error("failed to connect to NATS", zap.Error(err))
		return 1
	}
	defer func() { _ = natsconn.Close(conn) }()

	worker, err := natsrt.NewWorker(
		conn,
		os.Getenv("HELIOS_TASK_SUBJECT"),
		os.Getenv("HELIOS_TASK_QUEUE"),
		taskruntime.EvaluatorCodelet(evaluator.Evaluate),
		logger,
	)
	if err != nil {
		logger.Error("failed to create worker", zap.Error(err))
		return 1
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker failed", zap.Error(err))
		return 1
	}
	return 0
}

// buildEvaluator mirrors the driver's selection: an inline script when
// configured, otherwise the built-in Mandelbrot test.
func buildEvaluator(logger *zap.Logger) (predicate.Evaluator, error) {
	if src := os.Getenv("HELIOS_PREDICATE_SCRIPT"); src != "" {
		return script.New(script.Config{Source: src})
	}

	iterations := predicate.DefaultIterations
	if value := os.Getenv("HELIOS_ITERATIONS"); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, errors.New("HELIOS_ITERATIONS must be an integer")
		}
		iterations = n
	}

	m, err := predicate.NewMandelbrot(iterations)
	if err != nil {
		return nil, err
	}
	logger.Info("using mandelbrot evaluator", zap.Int("iterations", iterations))
	return m, nil
}
