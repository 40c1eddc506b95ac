// Package store defines the persistence contracts for workflow tasks and the
// content they produce. Implementations: internal/postgres and internal/sqlite.
package store

import (
	"context"
	"time"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
)

// PendingBatchSize is the maximum number of tasks one drain considers.
const PendingBatchSize = 10

// TaskFilter narrows Find and Count. Zero fields match everything.
type TaskFilter struct {
	Status domain.Status
	Type   domain.TaskType
	// StartedBefore matches tasks whose StartedAt is strictly before it.
	StartedBefore *time.Time
	Limit         int
	Offset        int
}

// TaskStore persists workflow tasks.
type TaskStore interface {
	// Create stores a new task, assigning an ID when empty, and returns the ID.
	Create(ctx context.Context, task *domain.WorkflowTask) (string, error)
	// Save overwrites every mutable field of an existing task.
	// Returns TaskNotFoundError if the task does not exist.
	Save(ctx context.Context, task *domain.WorkflowTask) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowTask, error)
	// FindPending returns up to limit pending tasks, highest priority first,
	// then oldest first.
	FindPending(ctx context.Context, limit int) ([]*domain.WorkflowTask, error)
	// Find returns tasks matching f, newest first.
	Find(ctx context.Context, f TaskFilter) ([]*domain.WorkflowTask, error)
	Count(ctx context.Context, f TaskFilter) (int, error)
}

// ContentStore persists research records, articles and knowledge entries.
// Getters return EntityNotFoundError when the id is unknown.
type ContentStore interface {
	CreateResearch(ctx context.Context, r *domain.ResearchRecord) (string, error)
	GetResearch(ctx context.Context, id string) (*domain.ResearchRecord, error)

	CreateArticle(ctx context.Context, a *domain.Article) (string, error)
	GetArticle(ctx context.Context, id string) (*domain.Article, error)
	MarkArticleReviewed(ctx context.Context, id string) error
	MarkArticlePublished(ctx context.Context, id string, at time.Time) error

	CreateKnowledge(ctx context.Context, k *domain.KnowledgeEntry) (string, error)
	GetKnowledge(ctx context.Context, id string) (*domain.KnowledgeEntry, error)
}

// Store is a backend that provides both contracts.
type Store interface {
	TaskStore
	ContentStore
	Ping(ctx context.Context) error
	Close() error
}
