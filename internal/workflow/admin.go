package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
	"github.com/ramiqadoumi/go-content-flow/pkg/telemetry"
)

// ExecutionTimedOut is recorded on running tasks reaped by ReapStale.
const ExecutionTimedOut = "execution timed out"

// Admin implements operator actions on stored tasks.
type Admin struct {
	runner
}

func NewAdmin(tasks store.TaskStore, opts ...Option) *Admin {
	return &Admin{runner: newRunner(tasks, nil, opts)}
}

// Submit queues a standalone task for the drainer.
func (a *Admin) Submit(ctx context.Context, name string, taskType domain.TaskType, priority int, input domain.TaskInput) (*domain.WorkflowTask, error) {
	if name == "" {
		name = string(taskType) + ": " + input.Topic
	}
	task, err := domain.NewTask(name, taskType, priority, input, string(taskType))
	if err != nil {
		return nil, err
	}
	if err := a.create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (a *Admin) Get(ctx context.Context, id string) (*domain.WorkflowTask, error) {
	return a.tasks.GetByID(ctx, id)
}

// List returns matching tasks, newest first, with the total match count
// ignoring Limit and Offset.
func (a *Admin) List(ctx context.Context, f store.TaskFilter) ([]*domain.WorkflowTask, int, error) {
	tasks, err := a.tasks.Find(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	total, err := a.tasks.Count(ctx, store.TaskFilter{Status: f.Status, Type: f.Type, StartedBefore: f.StartedBefore})
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

// Retry returns a failed task to pending with its errors cleared and
// RetryCount incremented. Any other status yields InvalidTransitionError and
// leaves the task untouched.
func (a *Admin) Retry(ctx context.Context, id string) (*domain.WorkflowTask, error) {
	task, err := a.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := task.Status
	if err := task.ResetForRetry(a.clock()); err != nil {
		return nil, err
	}
	if err := a.save(ctx, task, from); err != nil {
		return nil, err
	}
	a.logger.Info("task queued for retry", slog.String("task_id", id), slog.Int("retry_count", task.RetryCount))
	return task, nil
}

// Cancel stops a pending, running or failed task. Completed and cancelled
// tasks yield InvalidTransitionError. A running capability call is not
// interrupted; its result is discarded when it returns.
func (a *Admin) Cancel(ctx context.Context, id string) (*domain.WorkflowTask, error) {
	task, err := a.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := task.Status
	if err := task.Cancel(a.clock()); err != nil {
		return nil, err
	}
	if err := a.save(ctx, task, from); err != nil {
		return nil, err
	}
	a.logger.Info("task cancelled", slog.String("task_id", id), slog.String("from", string(from)))
	return task, nil
}

// ReapStale fails running tasks that started more than olderThan ago, so a
// crash mid-execution never leaves a task running forever. It returns the
// number of tasks reaped.
func (a *Admin) ReapStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := a.clock().Add(-olderThan)
	stale, err := a.tasks.Find(ctx, store.TaskFilter{Status: domain.StatusRunning, StartedBefore: &cutoff})
	if err != nil {
		return 0, fmt.Errorf("find stale tasks: %w", err)
	}

	reaped := 0
	for _, task := range stale {
		if err := task.Fail(ExecutionTimedOut, a.clock()); err != nil {
			return reaped, err
		}
		if err := a.save(ctx, task, domain.StatusRunning); err != nil {
			return reaped, err
		}
		reaped++
		telemetry.StaleTasksReapedTotal.Inc()
		a.logger.Warn("reaped stale task",
			slog.String("task_id", task.ID),
			slog.String("task_type", string(task.Type)),
		)
	}
	return reaped, nil
}
