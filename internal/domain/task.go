package domain

import (
	"strings"
	"time"
)

// TaskType names the kind of work a task represents. Capabilities register per type.
type TaskType string

const (
	TypeResearch   TaskType = "research"
	TypeGeneration TaskType = "generation"
	TypeReview     TaskType = "review"
	TypePublish    TaskType = "publish"
	TypeAggregate  TaskType = "aggregate"
)

// Valid reports whether t is one of the known task types.
func (t TaskType) Valid() bool {
	switch t {
	case TypeResearch, TypeGeneration, TypeReview, TypePublish, TypeAggregate:
		return true
	}
	return false
}

// Status represents the states a task can be in.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if no further state transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsFinished reports whether the task has stopped executing. CompletedAt is
// set exactly for these statuses. A failed task is finished but can still be
// retried, so it is not terminal.
func (s Status) IsFinished() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransitionTo reports whether moving from s to next is legal:
//
//	pending   → running | cancelled
//	running   → completed | failed | cancelled
//	failed    → pending (explicit retry) | cancelled
//	completed, cancelled → nothing
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning || next == StatusCancelled
	case StatusRunning:
		return next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	case StatusFailed:
		return next == StatusPending || next == StatusCancelled
	default:
		return false
	}
}

const (
	MinPriority     = 1
	MaxPriority     = 10
	DefaultPriority = 5
)

// TaskError is one recorded failure of the current attempt.
type TaskError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskInput is what a capability receives.
type TaskInput struct {
	Topic  string   `json:"topic"`
	Tags   []string `json:"tags"`
	Params Params   `json:"-"`
}

// TaskOutput is what a finished task produced.
type TaskOutput struct {
	Result Result `json:"-"`
}

// ArtifactID returns the id of the research record or article the task produced.
func (o *TaskOutput) ArtifactID() string {
	if o == nil || o.Result == nil {
		return ""
	}
	return o.Result.ArtifactID()
}

// WorkflowTask is the core domain entity representing a unit of orchestrated work.
type WorkflowTask struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        TaskType    `json:"type"`
	Status      Status      `json:"status"`
	Priority    int         `json:"priority"`
	Input       TaskInput   `json:"input"`
	Output      *TaskOutput `json:"output,omitempty"`
	Agent       string      `json:"agent,omitempty"`
	Errors      []TaskError `json:"errors"`
	RetryCount  int         `json:"retry_count"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
}

// NewTask builds a pending task. A zero priority means DefaultPriority.
func NewTask(name string, taskType TaskType, priority int, input TaskInput, agent string) (*WorkflowTask, error) {
	if strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Field: "name", Reason: "is required"}
	}
	if !taskType.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown task type " + string(taskType)}
	}
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, &ValidationError{Field: "priority", Reason: "must be between 1 and 10"}
	}
	if input.Params != nil && input.Params.Kind() != taskType {
		return nil, &ValidationError{Field: "input.params", Reason: "params of kind " + string(input.Params.Kind()) + " on a " + string(taskType) + " task"}
	}
	now := time.Now().UTC()
	return &WorkflowTask{
		Name:      name,
		Type:      taskType,
		Status:    StatusPending,
		Priority:  priority,
		Input:     input,
		Agent:     agent,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (t *WorkflowTask) moveTo(next Status, now time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: next}
	}
	t.Status = next
	t.UpdatedAt = now
	return nil
}

// Start moves a pending task to running and stamps StartedAt.
func (t *WorkflowTask) Start(now time.Time) error {
	if err := t.moveTo(StatusRunning, now); err != nil {
		return err
	}
	t.StartedAt = &now
	return nil
}

// Complete records the result of a successful run.
func (t *WorkflowTask) Complete(result Result, now time.Time) error {
	if result != nil && result.Kind() != t.Type {
		return &ValidationError{Field: "output", Reason: "result of kind " + string(result.Kind()) + " on a " + string(t.Type) + " task"}
	}
	if err := t.moveTo(StatusCompleted, now); err != nil {
		return err
	}
	t.CompletedAt = &now
	if result != nil {
		t.Output = &TaskOutput{Result: result}
	}
	return nil
}

// Fail appends msg to the attempt's errors and marks the task failed.
func (t *WorkflowTask) Fail(msg string, now time.Time) error {
	if err := t.moveTo(StatusFailed, now); err != nil {
		return err
	}
	t.CompletedAt = &now
	t.Errors = append(t.Errors, TaskError{Message: msg, Timestamp: now})
	return nil
}

// Cancel marks a non-terminal task cancelled.
func (t *WorkflowTask) Cancel(now time.Time) error {
	if err := t.moveTo(StatusCancelled, now); err != nil {
		return err
	}
	t.CompletedAt = &now
	return nil
}

// ResetForRetry returns a failed task to pending, clearing the previous attempt.
func (t *WorkflowTask) ResetForRetry(now time.Time) error {
	if t.Status != StatusFailed {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: StatusPending}
	}
	if err := t.moveTo(StatusPending, now); err != nil {
		return err
	}
	t.RetryCount++
	t.Errors = nil
	t.StartedAt = nil
	t.CompletedAt = nil
	t.Output = nil
	return nil
}

// LastError returns the most recent recorded error message, or "".
func (t *WorkflowTask) LastError() string {
	if len(t.Errors) == 0 {
		return ""
	}
	return t.Errors[len(t.Errors)-1].Message
}
