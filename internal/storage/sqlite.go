package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remindbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; one connection also serializes sweeps and inserts.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = time.Second
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Warn("sqlite pragma failed", logx.String("pragma", pragma), logx.Err(err))
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Create(ctx context.Context, t Task) (string, error) {
	t = newTask(t)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(id, chat_id, message, exec_at, created_at, attempts, last_error)
		 VALUES(?,?,?,?,?,0,NULL)`,
		t.ID, t.ChatID, t.Message, t.ExecAt.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return "", s.wrap(err)
	}
	return t.ID, nil
}

const taskColumns = `id, chat_id, message, exec_at, created_at, attempts, last_error`

func (s *sqliteStore) FindDueBefore(ctx context.Context, before time.Time) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE exec_at < ? ORDER BY exec_at, id`,
		before.UnixMilli(),
	)
	if err != nil {
		return nil, s.wrap(err)
	}
	return scanTasks(rows)
}

func (s *sqliteStore) List(ctx context.Context) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY exec_at, id`)
	if err != nil {
		return nil, s.wrap(err)
	}
	return scanTasks(rows)
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return s.wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) MarkFailed(ctx context.Context, id string, cause string) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, s.wrap(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		nullStr(cause), id,
	)
	if err != nil {
		return Task{}, s.wrap(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return Task{}, err
	} else if n == 0 {
		return Task{}, ErrNotFound
	}

	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	if err != nil {
		return Task{}, s.wrap(err)
	}
	ts, err := scanTasks(rows)
	if err != nil {
		return Task{}, err
	}
	if len(ts) == 0 {
		return Task{}, ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return Task{}, s.wrap(err)
	}
	return ts[0], nil
}

func (s *sqliteStore) wrap(err error) error {
	if strings.Contains(err.Error(), "database is closed") {
		return ErrClosed
	}
	return err
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	out := make([]Task, 0)
	for rows.Next() {
		var (
			t         Task
			execAt    int64
			createdAt int64
			lastErr   sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.ChatID, &t.Message, &execAt, &createdAt, &t.Attempts, &lastErr); err != nil {
			return nil, err
		}
		t.ExecAt = time.UnixMilli(execAt)
		t.CreatedAt = time.UnixMilli(createdAt)
		t.LastError = lastErr.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
