package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// Locker grants short exclusive leases by name. Implemented by redis.Leaser.
type Locker interface {
	Acquire(ctx context.Context, name, owner string) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

// Drainer executes queued tasks of any type with whatever capability is
// registered for the type.
type Drainer struct {
	runner
	owner string
}

// WithTaskLease makes the drainer take a per-task lease before executing a
// task, so several drainers can share one store.
func WithTaskLease(l Locker) Option { return func(r *runner) { r.locker = l } }

func NewDrainer(tasks store.TaskStore, caps Capabilities, opts ...Option) *Drainer {
	return &Drainer{runner: newRunner(tasks, caps, opts), owner: uuid.NewString()}
}

// ProcessPending takes one snapshot of at most store.PendingBatchSize pending
// tasks, highest priority first, and executes them one at a time. Tasks with
// no registered capability stay pending. It returns the number of tasks
// considered; errors are infrastructure failures and stop the drain.
func (d *Drainer) ProcessPending(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "workflow.drain")
	defer span.End()

	tasks, err := d.tasks.FindPending(ctx, store.PendingBatchSize)
	if err != nil {
		telemetry.FailSpan(span, err, "find pending failed")
		return 0, err
	}

	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := d.drainOne(ctx, task); err != nil {
			telemetry.FailSpan(span, err, "drain failed")
			return i + 1, err
		}
	}
	if len(tasks) > 0 {
		d.logger.Info("drained pending tasks", slog.Int("count", len(tasks)))
	}
	return len(tasks), nil
}

func (d *Drainer) drainOne(ctx context.Context, task *domain.WorkflowTask) error {
	log := d.logger.With(slog.String("task_id", task.ID), slog.String("task_type", string(task.Type)))

	capability, err := d.capabilities.Get(task.Type)
	if err != nil {
		var invalid *domain.InvalidTaskTypeError
		if errors.As(err, &invalid) {
			log.Warn("no capability for task type, leaving pending")
			telemetry.DrainTasksTotal.WithLabelValues("skipped").Inc()
			return nil
		}
		return err
	}

	if d.locker != nil {
		name := "task:" + task.ID
		ok, err := d.locker.Acquire(ctx, name, d.owner)
		if err != nil {
			return err
		}
		if !ok {
			log.Info("task leased by another drainer, skipping")
			telemetry.DrainTasksTotal.WithLabelValues("leased").Inc()
			return nil
		}
		defer func() {
			if err := d.locker.Release(context.WithoutCancel(ctx), name, d.owner); err != nil {
				log.Warn("failed to release task lease", slog.String("error", err.Error()))
			}
		}()
	}

	// The snapshot may be stale: the task can have been cancelled or taken
	// by another drainer since.
	current, err := d.tasks.GetByID(ctx, task.ID)
	if err != nil {
		return err
	}
	if current.Status != domain.StatusPending {
		telemetry.DrainTasksTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	task = current

	res, err := d.execute(ctx, task, capability)
	var cancelled *domain.TaskCancelledError
	var superseded *domain.InvalidTransitionError
	switch {
	case errors.As(err, &cancelled), errors.As(err, &superseded):
		log.Info("task left running state during execution, result discarded", slog.String("status", string(task.Status)))
		telemetry.DrainTasksTotal.WithLabelValues("skipped").Inc()
		return nil
	case err != nil:
		return err
	case res.Success():
		telemetry.DrainTasksTotal.WithLabelValues("completed").Inc()
	default:
		telemetry.DrainTasksTotal.WithLabelValues("failed").Inc()
	}
	return nil
}
