package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

func newTask(t *testing.T) *domain.WorkflowTask {
	t.Helper()
	task, err := domain.NewTask("Research: go", domain.TypeResearch, 8,
		domain.TaskInput{Topic: "go", Tags: []string{"lang"}}, "research")
	require.NoError(t, err)
	task.ID = "task-1"
	return task
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status domain.Status
		want   bool
	}{
		{domain.StatusPending, false},
		{domain.StatusRunning, false},
		{domain.StatusFailed, false},
		{domain.StatusCompleted, true},
		{domain.StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	allowed := map[domain.Status][]domain.Status{
		domain.StatusPending:   {domain.StatusRunning, domain.StatusCancelled},
		domain.StatusRunning:   {domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled},
		domain.StatusFailed:    {domain.StatusPending, domain.StatusCancelled},
		domain.StatusCompleted: nil,
		domain.StatusCancelled: nil,
	}
	all := []domain.Status{
		domain.StatusPending, domain.StatusRunning, domain.StatusCompleted,
		domain.StatusFailed, domain.StatusCancelled,
	}
	for from, targets := range allowed {
		for _, to := range all {
			want := false
			for _, a := range targets {
				if a == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestNewTask_Defaults(t *testing.T) {
	task, err := domain.NewTask("x", domain.TypeGeneration, 0, domain.TaskInput{Topic: "t"}, "writer")
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Equal(t, domain.DefaultPriority, task.Priority)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
}

func TestNewTask_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		taskName string
		typ      domain.TaskType
		priority int
		input    domain.TaskInput
		field    string
	}{
		{"empty name", " ", domain.TypeResearch, 5, domain.TaskInput{}, "name"},
		{"unknown type", "x", "sms", 5, domain.TaskInput{}, "type"},
		{"priority too high", "x", domain.TypeResearch, 11, domain.TaskInput{}, "priority"},
		{"priority negative", "x", domain.TypeResearch, -1, domain.TaskInput{}, "priority"},
		{"params mismatch", "x", domain.TypeResearch, 5,
			domain.TaskInput{Params: domain.ReviewParams{ArticleID: "a"}}, "input.params"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewTask(tt.taskName, tt.typ, tt.priority, tt.input, "")
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLifecycle_Success(t *testing.T) {
	task := newTask(t)
	start := time.Now().UTC()

	require.NoError(t, task.Start(start))
	assert.Equal(t, domain.StatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)

	done := start.Add(time.Second)
	require.NoError(t, task.Complete(domain.ResearchResult{ResearchID: "r-1"}, done))
	assert.Equal(t, domain.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	assert.False(t, task.CompletedAt.Before(*task.StartedAt))
	assert.Equal(t, "r-1", task.Output.ArtifactID())
	assert.Empty(t, task.Errors)
}

func TestComplete_RejectsMismatchedResult(t *testing.T) {
	task := newTask(t)
	require.NoError(t, task.Start(time.Now()))

	err := task.Complete(domain.ArticleResult{ArticleID: "a"}, time.Now())
	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, domain.StatusRunning, task.Status)
}

func TestFailThenRetry(t *testing.T) {
	task := newTask(t)
	now := time.Now().UTC()
	require.NoError(t, task.Start(now))
	require.NoError(t, task.Fail("search backend down", now))

	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Equal(t, "search backend down", task.LastError())
	require.NotNil(t, task.CompletedAt)

	require.NoError(t, task.ResetForRetry(now))
	assert.Equal(t, domain.StatusPending, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Empty(t, task.Errors)
	assert.Nil(t, task.StartedAt)
	assert.Nil(t, task.CompletedAt)
	assert.Equal(t, "", task.LastError())
}

func TestResetForRetry_OnlyFromFailed(t *testing.T) {
	for _, setup := range []func(*domain.WorkflowTask){
		func(*domain.WorkflowTask) {},
		func(task *domain.WorkflowTask) { _ = task.Start(time.Now()) },
		func(task *domain.WorkflowTask) {
			_ = task.Start(time.Now())
			_ = task.Complete(domain.ResearchResult{ResearchID: "r"}, time.Now())
		},
		func(task *domain.WorkflowTask) { _ = task.Cancel(time.Now()) },
	} {
		task := newTask(t)
		setup(task)
		before := *task

		err := task.ResetForRetry(time.Now())
		var terr *domain.InvalidTransitionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, before.Status, task.Status)
		assert.Equal(t, before.RetryCount, task.RetryCount)
		assert.Equal(t, before.UpdatedAt, task.UpdatedAt)
	}
}

func TestCancel(t *testing.T) {
	t.Run("from pending", func(t *testing.T) {
		task := newTask(t)
		require.NoError(t, task.Cancel(time.Now()))
		assert.Equal(t, domain.StatusCancelled, task.Status)
		assert.NotNil(t, task.CompletedAt)
	})

	t.Run("from failed", func(t *testing.T) {
		task := newTask(t)
		require.NoError(t, task.Start(time.Now()))
		require.NoError(t, task.Fail("boom", time.Now()))
		require.NoError(t, task.Cancel(time.Now()))
		assert.Equal(t, domain.StatusCancelled, task.Status)
	})

	t.Run("completed is rejected", func(t *testing.T) {
		task := newTask(t)
		require.NoError(t, task.Start(time.Now()))
		require.NoError(t, task.Complete(nil, time.Now()))

		err := task.Cancel(time.Now())
		var terr *domain.InvalidTransitionError
		require.True(t, errors.As(err, &terr))
		assert.Equal(t, domain.StatusCompleted, terr.From)
		assert.Equal(t, domain.StatusCompleted, task.Status)
	})
}

func TestStart_TwiceIsRejected(t *testing.T) {
	task := newTask(t)
	require.NoError(t, task.Start(time.Now()))
	assert.Error(t, task.Start(time.Now()))
}
