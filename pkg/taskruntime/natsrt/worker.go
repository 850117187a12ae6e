package natsrt

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/wehubfusion/Helios/pkg/taskruntime"
)

// Worker is the remote side of the NATS runtime: it joins the task subject
// as a queue-group member, evaluates each delivered descriptor with its
// codelet, and replies with a result envelope. Run as many worker processes
// as desired; the queue group balances units across them.
type Worker struct {
	conn    *nats.Conn
	subject string
	queue   string
	codelet taskruntime.Codelet
	logger  *zap.Logger
}

// NewWorker creates a worker on an established connection.
// The connection must already be connected. Subject and queue default to
// DefaultSubject and DefaultQueue when empty.
func NewWorker(conn *nats.Conn, subject, queue string, codelet taskruntime.Codelet, logger *zap.Logger) (*Worker, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if !conn.IsConnected() {
		return nil, errors.New("connection is not established")
	}
	if codelet == nil {
		return nil, errors.New("codelet cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if queue == "" {
		queue = DefaultQueue
	}

	return &Worker{
		conn:    conn,
		subject: subject,
		queue:   queue,
		codelet: codelet,
		logger:  logger,
	}, nil
}

// Run subscribes to the task subject and processes units until the context
// is cancelled, then drains the subscription so in-flight replies complete.
func (w *Worker) Run(ctx context.Context) error {
	sub, err := w.conn.QueueSubscribe(w.subject, w.queue, func(msg *nats.Msg) {
		w.handleTask(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.subject, err)
	}

	w.logger.Info("worker started",
		zap.String("subject", w.subject),
		zap.String("queue", w.queue),
	)

	<-ctx.Done()

	w.logger.Info("worker shutting down")
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain subscription: %w", err)
	}
	return nil
}

// handleTask evaluates one descriptor and replies with its result.
func (w *Worker) handleTask(ctx context.Context, msg *nats.Msg) {
	if msg.Reply == "" {
		w.logger.Warn("dropping task without reply subject")
		return
	}

	task, err := DecodeTask(msg.Data)
	if err != nil {
		w.logger.Warn("dropping malformed task", zap.Error(err))
		return
	}

	result := ResultEnvelope{
		RunID: task.RunID,
		Index: task.Index,
	}

	stable, err := w.codelet.Execute(ctx, taskruntime.Descriptor{
		Input: complex(task.Re, task.Im),
		Index: task.Index,
	})
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Stable = stable
	}

	data, err := EncodeResult(result)
	if err != nil {
		w.logger.Error("failed to encode result", zap.Error(err))
		return
	}

	if err := w.conn.Publish(msg.Reply, data); err != nil {
		w.logger.Error("failed to publish result",
			zap.Int("index", task.Index),
			zap.Error(err),
		)
	}
}
