// Package sqlite implements the service.Service interface on a local SQLite
// file, for offline use and development.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"dcc/internal/backend/livequery"
	"dcc/internal/service"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements service.Service on SQLite.
type Store struct {
	db  *sql.DB
	hub *livequery.Hub
	log *log.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database at dbPath and applies
// migrations. Live queries poll every pollInterval; zero disables polling.
func Open(ctx context.Context, dbPath string, pollInterval time.Duration, logger *log.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps pragmas in effect and serialises writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON;", "PRAGMA busy_timeout = 5000;"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		hub: livequery.NewHub(pollInterval),
		log: logger,
		now: time.Now,
	}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run goose migrations: %w", err)
	}
	return nil
}

// SetClock overrides the creation-time clock (for testing).
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

func scanTask(rows *sql.Rows) (service.Task, error) {
	var (
		t         service.Task
		category  string
		priority  string
		completed int64
		due       sql.NullString
		created   string
	)
	if err := rows.Scan(&t.ID, &t.UserID, &t.Text, &category, &completed, &priority, &due, &t.Position, &created); err != nil {
		return service.Task{}, err
	}
	t.Category = service.Category(category)
	t.Priority = service.Priority(priority)
	t.Completed = completed != 0
	if due.Valid {
		d, err := time.Parse(service.DateLayout, due.String)
		if err != nil {
			return service.Task{}, fmt.Errorf("task %s: invalid due_date %q", t.ID, due.String)
		}
		t.DueDate = &d
	}
	c, err := time.Parse(timeLayout, created)
	if err != nil {
		return service.Task{}, fmt.Errorf("task %s: invalid created_at %q", t.ID, created)
	}
	t.CreatedAt = c
	return t, nil
}

func dueValue(d *time.Time) any {
	if d == nil {
		return nil
	}
	return d.Format(service.DateLayout)
}

// ListTasks returns the tasks selected by q.
func (s *Store) ListTasks(ctx context.Context, q service.Query) ([]service.Task, error) {
	query := `SELECT id, user_id, text, category, completed, priority, due_date, position, created_at
		FROM tasks WHERE user_id = ?`
	args := []any{q.UserID}
	if q.Category != "" && q.Category != service.CategoryAll {
		query += " AND category = ?"
		args = append(args, string(q.Category))
	}
	switch q.Filter {
	case service.FilterActive:
		query += " AND completed = 0"
	case service.FilterCompleted:
		query += " AND completed = 1"
	}
	query += " ORDER BY position, created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	result := []service.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return result, nil
}

// WatchTasks polls ListTasks and refetches right away after local mutations.
func (s *Store) WatchTasks(ctx context.Context, q service.Query, fn service.SnapshotFunc) func() {
	return s.hub.Watch(ctx, func(ctx context.Context) ([]service.Task, error) {
		return s.ListTasks(ctx, q)
	}, fn)
}

// CreateTask inserts a task with a random UUID.
func (s *Store) CreateTask(ctx context.Context, userID string, nt service.NewTask) (service.Task, error) {
	t := service.Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Text:      nt.Text,
		Category:  nt.Category,
		Priority:  nt.Priority,
		DueDate:   nt.DueDate,
		Position:  nt.Position,
		CreatedAt: s.now().UTC(),
	}
	if t.Priority == "" {
		t.Priority = service.DefaultPriority
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return service.Task{}, fmt.Errorf("begin tx for create task: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, text, category, completed, priority, due_date, position, created_at)
		 VALUES (?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.Text, string(t.Category), string(t.Priority), dueValue(t.DueDate), t.Position,
		t.CreatedAt.Format(timeLayout))
	if err != nil {
		return service.Task{}, fmt.Errorf("create task: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return service.Task{}, fmt.Errorf("commit create task: %w", err)
	}

	s.hub.Notify()
	return t, nil
}

// UpdateTask applies the fields set in p to a task owned by userID.
func (s *Store) UpdateTask(ctx context.Context, userID, taskID string, p service.TaskPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Text != nil {
		sets = append(sets, "text = ?")
		args = append(args, *p.Text)
	}
	if p.Completed != nil {
		sets = append(sets, "completed = ?")
		args = append(args, *p.Completed)
	}
	if p.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*p.Priority))
	}
	switch {
	case p.ClearDue:
		sets = append(sets, "due_date = NULL")
	case p.DueDate != nil:
		sets = append(sets, "due_date = ?")
		args = append(args, dueValue(p.DueDate))
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, taskID, userID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for update task: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx,
		"UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update task: %w", err)
	}
	s.hub.Notify()
	return nil
}

// DeleteTask removes a task owned by userID.
func (s *Store) DeleteTask(ctx context.Context, userID, taskID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ? AND user_id = ?", taskID, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	s.hub.Notify()
	return nil
}

// SetPositions rewrites positions in one transaction. An ID not owned by
// userID rolls the whole batch back.
func (s *Store) SetPositions(ctx context.Context, userID string, taskIDs []string) error {
	if len(taskIDs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for set positions: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, "UPDATE tasks SET position = ? WHERE id = ? AND user_id = ?")
	if err != nil {
		return fmt.Errorf("prepare set positions: %w", err)
	}
	defer stmt.Close()

	for i, id := range taskIDs {
		res, err := stmt.ExecContext(ctx, i, id, userID)
		if err != nil {
			return fmt.Errorf("set position of %s: %w", id, err)
		}
		if err := requireRow(res); err != nil {
			return fmt.Errorf("set position of %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit set positions: %w", err)
	}
	s.hub.Notify()
	return nil
}

// GetAPIKey returns the user's AI key.
func (s *Store) GetAPIKey(ctx context.Context, userID string) (string, bool, error) {
	var key string
	err := s.db.QueryRowContext(ctx, "SELECT api_key FROM api_keys WHERE user_id = ?", userID).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get api key: %w", err)
	}
	return key, true, nil
}

// SetAPIKey stores or replaces the user's AI key.
func (s *Store) SetAPIKey(ctx context.Context, userID, key string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_keys (user_id, api_key, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET api_key = excluded.api_key, updated_at = excluded.updated_at`,
		userID, key, s.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("set api key: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the user's AI key if present.
func (s *Store) DeleteAPIKey(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM api_keys WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return service.ErrNotFound
	}
	return nil
}
