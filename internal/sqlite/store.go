// Package sqlite implements the store contracts on an embedded SQLite
// database for single-node and local deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ramiqadoumi/go-content-flow/internal/domain"
	"github.com/ramiqadoumi/go-content-flow/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite implementation of store.Store. Timestamps are stored
// as Unix nanoseconds so ordering is exact.
type Store struct {
	DB *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path, creating parent directories, and applies
// migrations. Use ":memory:" style DSNs via OpenDSN for tests.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return OpenDSN("file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
}

// OpenDSN opens a database from a raw driver DSN and applies migrations.
func OpenDSN(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{DB: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Migrate applies embedded migrations not yet recorded in schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  name TEXT PRIMARY KEY,
  applied_at INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			_ = rows.Close()
			return err
		}
		applied[name] = true
	}
	_ = rows.Close()

	files, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	var names []string
	for _, f := range files {
		if !f.IsDir() && strings.HasSuffix(f.Name(), ".sql") && !applied[f.Name()] {
			names = append(names, f.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		body, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return err
		}
		if err := s.applyMigration(ctx, name, string(body)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, name, body string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(name, applied_at) VALUES(?, ?)`,
		name, time.Now().Unix()); err != nil {
		return err
	}
	return tx.Commit()
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
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO workflow_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		task.ID, task.Name, string(task.Type), string(task.Status), task.Priority,
		string(cols.Input), nullText(cols.Output), task.Agent, string(cols.Errors), task.RetryCount,
		nanos(task.CreatedAt), nanos(task.UpdatedAt), nullNanos(task.StartedAt), nullNanos(task.CompletedAt),
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
	res, err := s.DB.ExecContext(ctx, `
		UPDATE workflow_tasks
		SET name = ?, status = ?, priority = ?, input = ?, output = ?, agent = ?,
		    errors = ?, retry_count = ?, updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		task.Name, string(task.Status), task.Priority, string(cols.Input), nullText(cols.Output),
		task.Agent, string(cols.Errors), task.RetryCount, nanos(task.UpdatedAt),
		nullNanos(task.StartedAt), nullNanos(task.CompletedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.TaskNotFoundError{TaskID: task.ID}
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.WorkflowTask, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM workflow_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.TaskNotFoundError{TaskID: id}
	}
	return task, err
}

func (s *Store) FindPending(ctx context.Context, limit int) ([]*domain.WorkflowTask, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM workflow_tasks
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT ?
	`, string(domain.StatusPending), limit)
	if err != nil {
		return nil, fmt.Errorf("find pending tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) Find(ctx context.Context, f store.TaskFilter) ([]*domain.WorkflowTask, error) {
	where, args := filterClause(f)
	query := `SELECT ` + taskColumns + ` FROM workflow_tasks` + where + ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 || f.Offset > 0 {
		limit := f.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, f.Offset)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	return collectTasks(rows)
}

func (s *Store) Count(ctx context.Context, f store.TaskFilter) (int, error) {
	where, args := filterClause(f)
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_tasks`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func filterClause(f store.TaskFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.StartedBefore != nil {
		conds = append(conds, "started_at IS NOT NULL AND started_at < ?")
		args = append(args, nanos(*f.StartedBefore))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectTasks(rows *sql.Rows) ([]*domain.WorkflowTask, error) {
	defer func() { _ = rows.Close() }()
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

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*domain.WorkflowTask, error) {
	var (
		task                   domain.WorkflowTask
		taskType, status       string
		input, errs            string
		output                 sql.NullString
		createdAt, updatedAt   int64
		startedAt, completedAt sql.NullInt64
	)
	err := row.Scan(
		&task.ID, &task.Name, &taskType, &status, &task.Priority,
		&input, &output, &task.Agent, &errs, &task.RetryCount,
		&createdAt, &updatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	task.Type = domain.TaskType(taskType)
	task.Status = domain.Status(status)
	task.CreatedAt = fromNanos(createdAt)
	task.UpdatedAt = fromNanos(updatedAt)
	task.StartedAt = fromNullNanos(startedAt)
	task.CompletedAt = fromNullNanos(completedAt)

	cols := store.TaskColumns{Input: []byte(input), Errors: []byte(errs)}
	if output.Valid {
		cols.Output = []byte(output.String)
	}
	if err := store.DecodeTask(&task, cols); err != nil {
		return nil, err
	}
	return &task, nil
}

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
