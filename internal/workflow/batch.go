package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// DefaultBatchDelay is the pause between two topics of a batch.
const DefaultBatchDelay = 2 * time.Second

// ArticleWorkflow runs one article pipeline. Implemented by Orchestrator.
type ArticleWorkflow interface {
	ExecuteArticleWorkflow(ctx context.Context, topic string, tags []string) (*ArticleWorkflowResult, error)
}

// BatchResult aggregates the outcome of a batch, one result per topic in
// input order.
type BatchResult struct {
	Results      []*ArticleWorkflowResult `json:"results"`
	TotalCount   int                      `json:"total_count"`
	SuccessCount int                      `json:"success_count"`
	FailureCount int                      `json:"failure_count"`
}

// BatchRunner runs article workflows for many topics one after another.
type BatchRunner struct {
	workflow ArticleWorkflow
	delay    time.Duration
	logger   *slog.Logger
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

func WithBatchDelay(d time.Duration) BatchOption { return func(b *BatchRunner) { b.delay = d } }
func WithBatchLogger(l *slog.Logger) BatchOption { return func(b *BatchRunner) { b.logger = l } }

func NewBatchRunner(wf ArticleWorkflow, opts ...BatchOption) *BatchRunner {
	b := &BatchRunner{workflow: wf, delay: DefaultBatchDelay, logger: slog.Default()}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Run processes topics strictly in order, waiting the batch delay between two
// topics. Every topic is attempted once; an error from one topic becomes that
// topic's failed result. If ctx is cancelled the batch stops between topics
// and the partial aggregate is returned with ctx.Err().
func (b *BatchRunner) Run(ctx context.Context, topics []domain.TopicRequest) (BatchResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.batch")
	defer span.End()

	out := BatchResult{Results: make([]*ArticleWorkflowResult, 0, len(topics))}
	for i, t := range topics {
		if i > 0 {
			select {
			case <-time.After(b.delay):
			case <-ctx.Done():
				b.logger.Warn("batch cancelled", slog.Int("completed", i), slog.Int("total", len(topics)))
				return out, ctx.Err()
			}
		}

		res, err := b.workflow.ExecuteArticleWorkflow(ctx, t.Topic, t.Tags)
		if err != nil {
			res = &ArticleWorkflowResult{Error: err.Error()}
		}
		out.Results = append(out.Results, res)
		out.TotalCount++
		if res.Success {
			out.SuccessCount++
			telemetry.BatchTopicsTotal.WithLabelValues("success").Inc()
		} else {
			out.FailureCount++
			telemetry.BatchTopicsTotal.WithLabelValues("failure").Inc()
		}
	}

	b.logger.Info("batch finished",
		slog.Int("total", out.TotalCount),
		slog.Int("succeeded", out.SuccessCount),
		slog.Int("failed", out.FailureCount),
	)
	return out, nil
}
