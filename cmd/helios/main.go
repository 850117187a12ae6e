// Command helios computes a stability chart over a complex-plane grid and
// prints it to stdout: one line per grid row, '.' for stable cells, blank
// for unstable ones. The per-cell evaluations run as independent units on a
// task runtime; the driver itself only submits work and waits once at the
// completion barrier.
//
// The process takes no arguments. See config.go for the HELIOS_* environment
// variables. Exit status is 0 on success and 1 on any fatal failure (grid or
// buffer allocation, runtime initialization); no partial chart is emitted.
package main

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	natsconn "github.com/wehubfusion/Helios/internal/nats"
	"github.com/wehubfusion/Helios/internal/tracing"
	"github.com/wehubfusion/Helios/pkg/concurrency"
	"github.com/wehubfusion/Helios/pkg/engine"
	"github.com/wehubfusion/Helios/pkg/predicate"
	"github.com/wehubfusion/Helios/pkg/predicate/script"
	"github.com/wehubfusion/Helios/pkg/render"
	"github.com/wehubfusion/Helios/pkg/storage"
	"github.com/wehubfusion/Helios/pkg/taskruntime"
	"github.com/wehubfusion/Helios/pkg/taskruntime/natsrt"
)

func main() {
	os.Exit(run(os.Stdout))
}

// run executes the whole driver pipeline, writing the finished chart to out.
// Nothing is written on a fatal failure; the returned value is the process
// exit status.
func run(out io.Writer) int {
	undo := concurrency.InitializeForKubernetes()
	defer undo()

	logger, err := zap.NewProduction()
	if err != nil {
		return 1
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := loadRunConfig()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN}); err != nil {
			logger.Warn("failed to initialize sentry, continuing without it", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx := context.Background()

	if cfg.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("helios")
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		shutdown, err := tracing.Setup(ctx, tcfg, logger)
		if err != nil {
			logger.Warn("failed to setup tracing, continuing without it", zap.Error(err))
		} else {
			defer func() { _ = tracing.Shutdown(shutdown, logger) }()
		}
	}

	evaluator, err := buildEvaluator(cfg)
	if err != nil {
		return fatal(logger, "failed to build evaluator", err)
	}
	codelet := taskruntime.EvaluatorCodelet(evaluator.Evaluate)

	rt, cleanup, err := buildRuntime(ctx, cfg, codelet, logger)
	if err != nil {
		return fatal(logger, "failed to initialize task runtime", err)
	}
	defer cleanup()

	result, err := engine.Run(ctx, cfg.Grid, rt, logger)
	if err != nil {
		return fatal(logger, "stability run failed", err)
	}

	renderer, err := render.NewRendererWithGlyphs(cfg.StableGlyph, cfg.UnstableGlyph)
	if err != nil {
		return fatal(logger, "invalid chart glyphs", err)
	}

	chart, err := renderer.RenderString(result.Buffer, cfg.Grid.Rows, cfg.Grid.Cols)
	if err != nil {
		return fatal(logger, "failed to render chart", err)
	}

	if _, err := io.WriteString(out, chart); err != nil {
		return fatal(logger, "failed to write chart", err)
	}

	archiveChart(ctx, cfg, result.RunID, chart, logger)

	return 0
}

// buildEvaluator selects the scripted evaluator when a script is configured,
// otherwise the built-in fixed-iteration Mandelbrot test.
func buildEvaluator(cfg runConfig) (predicate.Evaluator, error) {
	if cfg.Script != "" {
		return script.New(script.Config{Source: cfg.Script})
	}
	m, err := predicate.NewMandelbrot(cfg.Iterations)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// buildRuntime constructs the task runtime: NATS-distributed when a URL is
// configured, otherwise a local pool or the sequential reference runtime per
// the concurrency config.
func buildRuntime(ctx context.Context, cfg runConfig, codelet taskruntime.Codelet, logger *zap.Logger) (taskruntime.Runtime, func(), error) {
	if cfg.NATSURL != "" {
		conn, err := natsconn.Connect(ctx, natsconn.DefaultConnectionConfig(cfg.NATSURL))
		if err != nil {
			return nil, nil, err
		}
		rt, err := natsrt.NewRuntime(conn, cfg.TaskSubject, logger)
		if err != nil {
			_ = natsconn.Close(conn)
			return nil, nil, err
		}
		cleanup := func() {
			_ = rt.Close()
			_ = natsconn.Close(conn)
		}
		return rt, cleanup, nil
	}

	ccfg := concurrency.LoadConfig()
	logger.Info("concurrency configured", zap.String("config", ccfg.String()))

	if ccfg.RuntimeMode == concurrency.RuntimeModeSequential {
		rt := taskruntime.NewSequential(codelet, logger)
		return rt, func() { _ = rt.Close() }, nil
	}

	limiter := concurrency.NewLimiter(ccfg.MaxConcurrent)
	pool := taskruntime.NewPool(
		taskruntime.DefaultPoolConfig().WithNumWorkers(ccfg.PoolWorkers),
		codelet,
		limiter,
		logger,
	)
	pool.Start()
	return pool, func() { _ = pool.Close() }, nil
}

// archiveChart uploads the rendered chart when a storage connection string
// is configured. Archival failures never fail the run; the chart has
// already been written to stdout.
func archiveChart(ctx context.Context, cfg runConfig, runID, chart string, logger *zap.Logger) {
	if cfg.StorageConnectionString == "" {
		return
	}

	store, err := storage.NewAzureBlobStore(cfg.StorageConnectionString, cfg.StorageContainer, logger)
	if err != nil {
		logger.Warn("failed to create chart store", zap.Error(err))
		return
	}

	metadata := map[string]string{
		"rows": strconv.Itoa(cfg.Grid.Rows),
		"cols": strconv.Itoa(cfg.Grid.Cols),
	}
	if _, err := store.UploadChart(ctx, runID, []byte(chart), metadata); err != nil {
		logger.Warn("failed to archive chart", zap.Error(err))
	}
}

// fatal reports an unrecoverable error and returns the process exit status.
func fatal(logger *zap.Logger, msg string, err error) int {
	logger.Error(msg, zap.Error(err))
	sentry.CaptureException(err)
	return 1
}
