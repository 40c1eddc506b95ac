package domain

import "fmt"

// TaskNotFoundError is returned when a task ID does not exist.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// EntityNotFoundError is returned when an article, research record or
// knowledge entry does not exist.
type EntityNotFoundError struct {
	Kind string
	ID   string
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidTransitionError is returned when a status change is not allowed
// from the task's current status. The task is left untouched.
type InvalidTransitionError struct {
	TaskID string
	From   Status
	To     Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// As lets callers match a rejected transition as a *ValidationError on the
// task's status.
func (e *InvalidTransitionError) As(target any) bool {
	v, ok := target.(**ValidationError)
	if !ok {
		return false
	}
	*v = &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", e.From, e.To)}
	return true
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitExceededError is returned when a caller exceeds its rate limit.
type RateLimitExceededError struct {
	Key   string
	Limit int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %q: limit is %d", e.Key, e.Limit)
}

// InvalidTaskTypeError is returned when no capability is registered for a task type.
type InvalidTaskTypeError struct {
	TaskType TaskType
}

func (e *InvalidTaskTypeError) Error() string {
	return fmt.Sprintf("no capability registered for task type %q", e.TaskType)
}

// TaskCancelledError is returned when a task was cancelled while its
// capability was running, so its result was not recorded.
type TaskCancelledError struct {
	TaskID string
}

func (e *TaskCancelledError) Error() string {
	return fmt.Sprintf("task %s was cancelled", e.TaskID)
}
