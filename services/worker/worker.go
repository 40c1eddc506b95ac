package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/kafka"
	"github.com/ramiqadoumi/go-content-flow/internal/workflow"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// Batcher runs the article workflow for a list of topics.
type Batcher interface {
	Run(ctx context.Context, topics []domain.TopicRequest) (workflow.BatchResult, error)
}

// Worker consumes article requests from Kafka and runs each as a batch.
type Worker struct {
	consumer kafka.Consumer
	batch    Batcher
	claims   workflow.Locker
	workerID string
	logger   *slog.Logger

	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(l *slog.Logger) Option { return func(w *Worker) { w.logger = l } }

// WithClaims makes the worker claim each request ID before processing it.
// A claim is kept after success, so a redelivered request is skipped while
// the claim lives; it is released on failure so redelivery can retry.
func WithClaims(l workflow.Locker) Option { return func(w *Worker) { w.claims = l } }

// NewWorker constructs a Worker with the given dependencies and options.
func NewWorker(workerID string, consumer kafka.Consumer, batch Batcher, opts ...Option) *Worker {
	w := &Worker{
		workerID: workerID,
		consumer: consumer,
		batch:    batch,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts consuming and processing messages. Blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Subscribe(ctx, w.processMessage)
}

// Wait blocks until all in-flight requests finish. Call after Run returns.
func (w *Worker) Wait() { w.wg.Wait() }

// processMessage is the Kafka HandlerFunc. Malformed requests are returned as
// permanent errors and committed; a batch interrupted by shutdown is left
// uncommitted so it is redelivered.
func (w *Worker) processMessage(consumerCtx context.Context, msg kafka.Message) error {
	req, err := kafka.DecodeArticleRequest(msg)
	if err != nil {
		telemetry.WorkerRequestsTotal.WithLabelValues("malformed").Inc()
		return err
	}

	ctx, span := otel.Tracer("worker").Start(consumerCtx, "worker.process_request")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.Int("request.topics", len(req.Topics)),
		attribute.String("worker.id", w.workerID),
	)

	log := w.logger.With(
		slog.String("request_id", req.RequestID),
		slog.String("worker_id", w.workerID),
	)

	claim := "request:" + req.RequestID
	if w.claims != nil && req.RequestID != "" {
		ok, err := w.claims.Acquire(ctx, claim, w.workerID)
		if err != nil {
			telemetry.FailSpan(span, err, "claim failed")
			return err
		}
		if !ok {
			log.Info("request already claimed, skipping")
			telemetry.WorkerRequestsTotal.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	w.wg.Add(1)
	w.inFlight.Add(1)
	telemetry.WorkerRequestsInFlight.Inc()
	defer func() {
		telemetry.WorkerRequestsInFlight.Dec()
		w.inFlight.Add(-1)
		w.wg.Done()
	}()

	start := time.Now()
	res, err := w.batch.Run(ctx, req.Topics)
	if err != nil {
		log.Warn("batch interrupted, request will be redelivered",
			slog.Int("completed", res.TotalCount),
			slog.Int("total", len(req.Topics)),
			slog.String("error", err.Error()),
		)
		telemetry.FailSpan(span, err, "batch interrupted")
		telemetry.WorkerRequestsTotal.WithLabelValues("interrupted").Inc()
		if w.claims != nil && req.RequestID != "" {
			if rerr := w.claims.Release(context.WithoutCancel(ctx), claim, w.workerID); rerr != nil {
				log.Warn("failed to release request claim", slog.String("error", rerr.Error()))
			}
		}
		return err
	}

	log.Info("article request processed",
		slog.Int("total", res.TotalCount),
		slog.Int("succeeded", res.SuccessCount),
		slog.Int("failed", res.FailureCount),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	telemetry.WorkerRequestsTotal.WithLabelValues("processed").Inc()
	return nil
}
