//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/postgres"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

var testPostgresDSN string

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	pgCtr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("contentflow"),
		tcPostgres.WithUsername("contentflow"),
		tcPostgres.WithPassword("contentflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer pgCtr.Terminate(ctx) //nolint:errcheck

	testPostgresDSN, err = pgCtr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}

	pool, err := postgres.NewPool(ctx, testPostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	if _, err := postgres.NewStore(pool).Migrate(ctx); err != nil {
		log.Fatalf("run migrations: %v", err)
	}
	pool.Close()

	return m.Run()
}

// newStore connects to the test container and truncates every table on cleanup.
func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, testPostgresDSN)
	require.NoError(t, err)
	t.Cleanup(func() {
		pool.Exec(ctx, "TRUNCATE workflow_tasks, research_records, articles, knowledge_entries") //nolint:errcheck
		pool.Close()
	})
	return postgres.NewStore(pool)
}

func makeTask(t *testing.T, priority int, created time.Time) *domain.WorkflowTask {
	t.Helper()
	task, err := domain.NewTask("Research: go", domain.TypeResearch, priority,
		domain.TaskInput{Topic: "go", Tags: []string{"lang"}, Params: domain.ResearchParams{Bucket: "web"}}, "research")
	require.NoError(t, err)
	task.CreatedAt = created
	task.UpdatedAt = created
	return task
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newStore(t)
	applied, err := s.Migrate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestStore_Create_GetByID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	task := makeTask(t, 8, time.Now().UTC())
	id, err := s.Create(ctx, task)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 8, got.Priority)
	assert.Equal(t, domain.ResearchParams{Bucket: "web"}, got.Input.Params)
	assert.Nil(t, got.Output)
	assert.Nil(t, got.StartedAt)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.GetByID(context.Background(), "missing")
	var notFound *domain.TaskNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.TaskID)
}

func TestStore_Save_RoundTripsLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	task := makeTask(t, 5, time.Now().UTC())
	_, err := s.Create(ctx, task)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, task.Start(now))
	require.NoError(t, task.Complete(domain.ResearchResult{ResearchID: "r-1", KeyPoints: []string{"a"}}, now))
	require.NoError(t, s.Save(ctx, task))

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, "r-1", got.Output.ArtifactID())
}

func TestStore_Save_UnknownTask(t *testing.T) {
	s := newStore(t)
	task := makeTask(t, 5, time.Now().UTC())
	task.ID = "ghost"

	err := s.Save(context.Background(), task)
	var notFound *domain.TaskNotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestStore_FindPending_PriorityThenArrival(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	low := makeTask(t, 3, base)
	highLate := makeTask(t, 9, base.Add(2*time.Minute))
	highEarly := makeTask(t, 9, base.Add(time.Minute))
	running := makeTask(t, 10, base)
	require.NoError(t, running.Start(base))
	for _, task := range []*domain.WorkflowTask{low, highLate, highEarly, running} {
		_, err := s.Create(ctx, task)
		require.NoError(t, err)
	}

	got, err := s.FindPending(ctx, store.PendingBatchSize)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, highEarly.ID, got[0].ID)
	assert.Equal(t, highLate.ID, got[1].ID)
	assert.Equal(t, low.ID, got[2].ID)
}

func TestStore_FindAndCount_Filters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	stale := makeTask(t, 5, base)
	require.NoError(t, stale.Start(base))
	fresh := makeTask(t, 5, base)
	require.NoError(t, fresh.Start(time.Now().UTC()))
	pending := makeTask(t, 5, base)
	for _, task := range []*domain.WorkflowTask{stale, fresh, pending} {
		_, err := s.Create(ctx, task)
		require.NoError(t, err)
	}

	cutoff := time.Now().UTC().Add(-30 * time.Minute)
	got, err := s.Find(ctx, store.TaskFilter{Status: domain.StatusRunning, StartedBefore: &cutoff})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, stale.ID, got[0].ID)

	n, err := s.Count(ctx, store.TaskFilter{Type: domain.TypeResearch})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	page, err := s.Find(ctx, store.TaskFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestStore_Content(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	researchID, err := s.CreateResearch(ctx, &domain.ResearchRecord{
		Topic: "go", Summary: "sum", KeyPoints: []string{"k1"},
		Sources: []domain.SourceDocument{{URL: "http://a", SourceType: domain.SourceWeb}},
	})
	require.NoError(t, err)
	r, err := s.GetResearch(ctx, researchID)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, r.KeyPoints)
	assert.Equal(t, []string{}, r.Tags)
	require.Len(t, r.Sources, 1)

	articleID, err := s.CreateArticle(ctx, &domain.Article{Title: "T", Slug: "t", Content: "body", ResearchID: researchID})
	require.NoError(t, err)
	require.NoError(t, s.MarkArticleReviewed(ctx, articleID))
	require.NoError(t, s.MarkArticlePublished(ctx, articleID, time.Now()))
	a, err := s.GetArticle(ctx, articleID)
	require.NoError(t, err)
	assert.True(t, a.Reviewed)
	assert.Equal(t, domain.ArticlePublished, a.Status)
	assert.NotNil(t, a.PublishedAt)

	_, err = s.GetKnowledge(ctx, "nope")
	var notFound *domain.EntityNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "knowledge", notFound.Kind)

	err = s.MarkArticleReviewed(ctx, "nope")
	assert.True(t, errors.As(err, &notFound))
}
