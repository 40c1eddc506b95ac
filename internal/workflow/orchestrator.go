package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

const (
	ResearchPriority = 8
	WritingPriority  = 7
)

// WorkflowSummary describes a successful article workflow.
type WorkflowSummary struct {
	Topic       string   `json:"topic"`
	Tags        []string `json:"tags"`
	SourceCount int      `json:"source_count"`
	WordCount   int      `json:"word_count"`
}

// ArticleWorkflowResult is the outcome of one research-then-write run.
// Capability failures are reported here with Success false; they are not
// Go errors.
type ArticleWorkflowResult struct {
	Success        bool             `json:"success"`
	Error          string           `json:"error,omitempty"`
	ResearchTaskID string           `json:"research_task_id,omitempty"`
	WritingTaskID  string           `json:"writing_task_id,omitempty"`
	ResearchID     string           `json:"research_id,omitempty"`
	ArticleID      string           `json:"article_id,omitempty"`
	Summary        *WorkflowSummary `json:"summary,omitempty"`
}

// Orchestrator runs the two-stage article pipeline.
type Orchestrator struct {
	runner
}

func NewOrchestrator(tasks store.TaskStore, caps Capabilities, opts ...Option) *Orchestrator {
	return &Orchestrator{runner: newRunner(tasks, caps, opts)}
}

// ExecuteArticleWorkflow researches topic and writes an article from the
// research. A research failure stops the run before the writing task is
// created. Store failures and missing capabilities are returned as errors.
func (o *Orchestrator) ExecuteArticleWorkflow(ctx context.Context, topic string, tags []string) (*ArticleWorkflowResult, error) {
	ctx, span := tracer.Start(ctx, "workflow.article")
	defer span.End()
	span.SetAttributes(attribute.String("topic", topic))

	start := time.Now()
	res, err := o.executeArticleWorkflow(ctx, topic, tags)
	telemetry.WorkflowDurationSeconds.Observe(time.Since(start).Seconds())

	log := o.logger.With(slog.String("topic", topic))
	switch {
	case err != nil:
		telemetry.FailSpan(span, err, "workflow error")
		telemetry.WorkflowRunsTotal.WithLabelValues("error").Inc()
		log.Error("workflow error", slog.String("error", err.Error()))
	case !res.Success:
		span.SetAttributes(attribute.String("workflow.error", res.Error))
		telemetry.WorkflowRunsTotal.WithLabelValues("failure").Inc()
		log.Warn("workflow failed", slog.String("error", res.Error))
	default:
		telemetry.WorkflowRunsTotal.WithLabelValues("success").Inc()
		log.Info("workflow completed",
			slog.String("article_id", res.ArticleID),
			slog.Int("word_count", res.Summary.WordCount),
		)
	}
	return res, err
}

func (o *Orchestrator) executeArticleWorkflow(ctx context.Context, topic string, tags []string) (*ArticleWorkflowResult, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, &domain.ValidationError{Field: "topic", Reason: "is required"}
	}
	if tags == nil {
		tags = []string{}
	}
	researcher, err := o.capabilities.Get(domain.TypeResearch)
	if err != nil {
		return nil, err
	}
	writer, err := o.capabilities.Get(domain.TypeGeneration)
	if err != nil {
		return nil, err
	}

	// Stage 1: research.
	researchTask, err := domain.NewTask("Research: "+topic, domain.TypeResearch, ResearchPriority,
		domain.TaskInput{Topic: topic, Tags: tags}, researcher.Name())
	if err != nil {
		return nil, err
	}
	if err := o.create(ctx, researchTask); err != nil {
		return nil, err
	}
	researchRes, err := o.execute(ctx, researchTask, researcher)
	if err != nil {
		return stopped(err, &ArticleWorkflowResult{ResearchTaskID: researchTask.ID})
	}
	if !researchRes.Success() {
		return &ArticleWorkflowResult{Error: "Research failed: " + researchRes.Err, ResearchTaskID: researchTask.ID}, nil
	}
	research, _ := researchRes.Output.(domain.ResearchResult)

	// Stage 2: writing.
	writingTask, err := domain.NewTask("Write: "+topic, domain.TypeGeneration, WritingPriority,
		domain.TaskInput{Topic: topic, Tags: tags, Params: domain.GenerationParams{ResearchID: research.ResearchID}}, writer.Name())
	if err != nil {
		return nil, err
	}
	if err := o.create(ctx, writingTask); err != nil {
		return nil, err
	}
	writingRes, err := o.execute(ctx, writingTask, writer)
	if err != nil {
		return stopped(err, &ArticleWorkflowResult{
			ResearchTaskID: researchTask.ID,
			WritingTaskID:  writingTask.ID,
			ResearchID:     research.ResearchID,
		})
	}
	if !writingRes.Success() {
		return &ArticleWorkflowResult{
			Error:          "Writing failed: " + writingRes.Err,
			ResearchTaskID: researchTask.ID,
			WritingTaskID:  writingTask.ID,
			ResearchID:     research.ResearchID,
		}, nil
	}
	article, _ := writingRes.Output.(domain.ArticleResult)

	return &ArticleWorkflowResult{
		Success:        true,
		ResearchTaskID: researchTask.ID,
		WritingTaskID:  writingTask.ID,
		ResearchID:     research.ResearchID,
		ArticleID:      article.ArticleID,
		Summary: &WorkflowSummary{
			Topic:       topic,
			Tags:        tags,
			SourceCount: research.SourceCount,
			WordCount:   article.WordCount,
		},
	}, nil
}

// stopped reports a task moved out of running by someone else as a failed
// run and passes every other error through.
func stopped(err error, res *ArticleWorkflowResult) (*ArticleWorkflowResult, error) {
	var cancelled *domain.TaskCancelledError
	var superseded *domain.InvalidTransitionError
	if errors.As(err, &cancelled) || errors.As(err, &superseded) {
		res.Error = err.Error()
		return res, nil
	}
	return nil, err
}
