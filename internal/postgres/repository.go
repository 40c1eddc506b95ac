package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/postgres/migrations"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

// Store is the PostgreSQL implementation of store.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

// NewStore wraps a pgxpool with the store contracts.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Migrate applies the embedded schema files not yet recorded in
// schema_migrations, in file name order. It returns the names it applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	done := make(map[string]bool, len(applied))
	for _, name := range applied {
		done[name] = true
	}

	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") && !done[e.Name()] {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(sql)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES ($1, $2)`,
				name, time.Now().UTC())
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("execute migration %s: %w", name, err)
		}
	}
	return names, nil
}

// ── tasks ───────────────────────────────────────────────────────────────────

const taskColumns = `id, name, type, status, priority, input, output, agent, errors,
	retry_count, created_at, updated_at, started_at, completed_at`

func (s *Store) Create(ctx context.Context, task *domain.WorkflowTask) (string, error) {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	cols, err := store.EncodeTask(task)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		task.ID, task.Name, string(task.Type), string(task.Status), task.Priority,
		cols.Input, cols.Output, task.Agent, cols.Errors, task.RetryCount,
		task.CreatedAt, task.UpdatedAt, task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return "", fmt.Errorf("create task %s: %w", task.ID, err)
	}
	return task.ID, nil
}

func (s *Store) Save(ctx context.Context, task *domain.WorkflowTask) error {
	cols, err := store.EncodeTask(task)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_tasks
		SET name = $2, status = $3, priority = $4, input = $5, output = $6, agent = $7,
		    errors = $8, retry_count = $9, updated_at = $10, started_at = $11, completed_at = $12
		WHERE id = $1
	`,
		task.ID, task.Name, string(task.Status), task.Priority, cols.Input, cols.Output,
		task.Agent, cols.Errors, task.RetryCount, task.UpdatedAt, task.StartedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.WorkflowTask, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM workflow_tasks WHERE id = $1`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, err
}

func (s *Store) FindPending(ctx context.Context, limit int) ([]*domain.WorkflowTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM workflow_tasks
		WHERE status = $1
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $2
	`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("find pending tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) Find(ctx context.Context, f store.TaskFilter) ([]*domain.WorkflowTask, error) {
	where, args := filterClause(f)
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks` + where + ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) Count(ctx context.Context, f store.TaskFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM workflow_tasks`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func filterClause(f store.TaskFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, string(f.Type))
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	if f.StartedBefore != nil {
		args = append(args, *f.StartedBefore)
		conds = append(conds, fmt.Sprintf("started_at < $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectTasks(rows pgx.Rows) ([]*domain.WorkflowTask, error) {
	defer rows.Close()
	var tasks []*domain.WorkflowTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// scanTask reads a task row from any pgx row type.
func scanTask(row pgx.Row) (*domain.WorkflowTask, error) {
	var (
		task        domain.WorkflowTask
		taskType    string
		status      string
		cols        store.TaskColumns
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&task.ID, &task.Name, &taskType, &status, &task.Priority,
		&cols.Input, &cols.Output, &task.Agent, &cols.Errors, &task.RetryCount,
		&task.CreatedAt, &task.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.Status(status)
	task.StartedAt = utcPtr(startedAt)
	task.CompletedAt = utcPtr(completedAt)
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	if err := store.DecodeTask(&task, cols); err != nil {
		return nil, err
	}
	return &task, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
