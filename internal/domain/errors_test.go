package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

func TestTaskNotFoundError(t *testing.T) {
	err := &domain.TaskNotFoundError{TaskID: "abc-123"}
	assert.Contains(t, err.Error(), "abc-123")
}

func TestInvalidTransitionError_MatchesValidationError(t *testing.T) {
	err := fmt.Errorf("retry: %w", &domain.InvalidTransitionError{TaskID: "t-1", From: domain.StatusRunning, To: domain.StatusPending})

	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "status", ve.Field)
	assert.Equal(t, "cannot move from running to pending", ve.Reason)

	var it *domain.InvalidTransitionError
	require.True(t, errors.As(err, &it))
	assert.Equal(t, "t-1", it.TaskID)

	var nf *domain.TaskNotFoundError
	assert.False(t, errors.As(err, &nf))
}

func TestEntityNotFoundError(t *testing.T) {
	err := &domain.EntityNotFoundError{Kind: "article", ID: "a-1"}
	assert.Equal(t, "article not found: a-1", err.Error())
}

func TestInvalidTransitionError(t *testing.T) {
	err := &domain.InvalidTransitionError{TaskID: "t-1", From: domain.StatusCompleted, To: domain.StatusPending}
	msg := err.Error()
	assert.Contains(t, msg, "t-1")
	assert.Contains(t, msg, "completed")
	assert.Contains(t, msg, "pending")
}

func TestRateLimitExceededError(t *testing.T) {
	err := &domain.RateLimitExceededError{Key: "generation", Limit: 100}
	msg := err.Error()
	assert.Contains(t, msg, "generation")
	assert.Contains(t, msg, "100")
}

func TestInvalidTaskTypeError(t *testing.T) {
	err := &domain.InvalidTaskTypeError{TaskType: "unknown-type"}
	assert.Contains(t, err.Error(), "unknown-type")
}

func TestErrorsAs_ThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("load task: %w", &domain.TaskNotFoundError{TaskID: "x"})

	var notFound *domain.TaskNotFoundError
	require.True(t, errors.As(wrapped, &notFound))
	assert.Equal(t, "x", notFound.TaskID)
}

func TestAllErrorTypesImplementError(t *testing.T) {
	var _ error = &domain.TaskNotFoundError{}
	var _ error = &domain.EntityNotFoundError{}
	var _ error = &domain.InvalidTransitionError{}
	var _ error = &domain.ValidationError{}
	var _ error = &domain.RateLimitExceededError{}
	var _ error = &domain.InvalidTaskTypeError{}
	var _ error = &domain.TaskCancelledError{}
}
