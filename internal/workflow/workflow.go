// Package workflow drives WorkflowTasks through their lifecycle: the
// two-stage article pipeline, sequential batches of it, draining of queued
// tasks of any type, and operator actions (retry, cancel, reap).
//
// Every transition is persisted before the next step starts; the task store
// is the only source of truth for task state.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/ramiqadoumi/go-content-flow/internal/agents"
	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// EventSink receives one event per persisted task transition.
type EventSink interface {
	PublishTaskEvent(ctx context.Context, ev domain.TaskEvent) error
}

// Capabilities looks up the capability for a task type.
type Capabilities interface {
	Get(taskType domain.TaskType) (agents.Capability, error)
}

// Option configures the Orchestrator, Drainer and Admin. Options that do not
// apply to a component are ignored by it.
type Option func(*runner)

func WithLogger(l *slog.Logger) Option      { return func(r *runner) { r.logger = l } }
func WithEvents(s EventSink) Option         { return func(r *runner) { r.events = s } }
func WithClock(now func() time.Time) Option { return func(r *runner) { r.now = now } }

var tracer = otel.Tracer("workflow")

// runner holds what every task mutator needs.
type runner struct {
	tasks        store.TaskStore
	capabilities Capabilities
	events       EventSink
	locker       Locker
	logger       *slog.Logger
	now          func() time.Time
}

func newRunner(tasks store.TaskStore, caps Capabilities, opts []Option) runner {
	r := runner{
		tasks:        tasks,
		capabilities: caps,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(&r)
	}
	return r
}

func (r *runner) clock() time.Time { return r.now().UTC() }

// create persists a new pending task and assigns its ID.
func (r *runner) create(ctx context.Context, task *domain.WorkflowTask) error {
	id, err := r.tasks.Create(ctx, task)
	if err != nil {
		return fmt.Errorf("create %s task: %w", task.Type, err)
	}
	task.ID = id
	r.transitioned(ctx, task, "")
	return nil
}

// save persists task after it moved out of status from.
func (r *runner) save(ctx context.Context, task *domain.WorkflowTask, from domain.Status) error {
	if err := r.tasks.Save(ctx, task); err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	r.transitioned(ctx, task, from)
	return nil
}

func (r *runner) transitioned(ctx context.Context, task *domain.WorkflowTask, from domain.Status) {
	telemetry.TaskTransitionsTotal.WithLabelValues(string(task.Type), string(task.Status)).Inc()
	if r.events == nil {
		return
	}
	ev := domain.TaskEvent{
		TaskID:   task.ID,
		TaskType: task.Type,
		From:     from,
		To:       task.Status,
		At:       task.UpdatedAt,
	}
	if task.Status == domain.StatusFailed {
		ev.Error = task.LastError()
	}
	if err := r.events.PublishTaskEvent(ctx, ev); err != nil {
		r.logger.Warn("failed to publish task event",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
	}
}

// execute runs a pending task once: running is persisted before the
// capability is invoked, and the outcome is persisted after it returns.
//
// The capability call itself is never interrupted. If the task was moved out
// of running meanwhile (cancelled or reaped), the outcome is discarded and
// TaskCancelledError or InvalidTransitionError is returned. Any other error is
// an infrastructure failure.
func (r *runner) execute(ctx context.Context, task *domain.WorkflowTask, c agents.Capability) (domain.AgentResult, error) {
	if err := task.Start(r.clock()); err != nil {
		return domain.AgentResult{}, err
	}
	if err := r.save(ctx, task, domain.StatusPending); err != nil {
		return domain.AgentResult{}, err
	}

	res := r.invoke(ctx, c, task)

	current, err := r.tasks.GetByID(ctx, task.ID)
	if err != nil {
		return res, fmt.Errorf("reload task %s: %w", task.ID, err)
	}
	if current.Status != domain.StatusRunning {
		*task = *current
		if current.Status == domain.StatusCancelled {
			return res, &domain.TaskCancelledError{TaskID: task.ID}
		}
		return res, &domain.InvalidTransitionError{TaskID: task.ID, From: current.Status, To: domain.StatusCompleted}
	}

	now := r.clock()
	if res.Success() {
		if err := task.Complete(res.Output, now); err != nil {
			res = domain.Failed(err.Error())
		}
	}
	if !res.Success() {
		if err := task.Fail(res.Err, now); err != nil {
			return res, err
		}
	}
	if err := r.save(ctx, task, domain.StatusRunning); err != nil {
		return res, err
	}
	return res, nil
}

func (r *runner) invoke(ctx context.Context, c agents.Capability, task *domain.WorkflowTask) domain.AgentResult {
	log := r.logger.With(
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
		slog.String("capability", c.Name()),
	)
	log.Info("executing task")

	start := time.Now()
	res := c.Execute(ctx, task.Input)
	elapsed := time.Since(start)

	outcome := "success"
	if !res.Success() {
		outcome = "failure"
		log.Warn("task failed", slog.String("error", res.Err), slog.Int64("duration_ms", elapsed.Milliseconds()))
	} else {
		log.Info("task completed", slog.Int64("duration_ms", elapsed.Milliseconds()))
	}
	telemetry.CapabilityDurationSeconds.WithLabelValues(c.Name(), outcome).Observe(elapsed.Seconds())
	return res
}
