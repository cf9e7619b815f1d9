// Package storage persists scheduled tasks and the download ledger in SQLite.
//
// One writer connection, WAL journaling. Every logical operation is a single
// statement or transaction, so a crash mid-write cannot corrupt committed rows.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"redmark/pkg/logx"
)

// ErrNotFound is returned when a task id has no persisted row.
var ErrNotFound = errors.New("task not found")

// Config configures the store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Store is the SQLite-backed state store.
type Store struct {
	db   *sql.DB
	path string
	log  logx.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	cron_expression TEXT NOT NULL,
	subreddits TEXT NOT NULL, -- JSON array
	enabled INTEGER NOT NULL DEFAULT 1,
	max_posts_per_subreddit INTEGER NOT NULL DEFAULT 25,
	retry_count INTEGER NOT NULL DEFAULT 3,
	retry_delay_seconds INTEGER NOT NULL DEFAULT 60,
	timeout_seconds INTEGER NOT NULL DEFAULT 3600,
	created_at TEXT NOT NULL,
	last_run TEXT,
	next_run TEXT,
	last_result TEXT, -- JSON
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS download_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id TEXT NOT NULL,
	post_url TEXT NOT NULL,
	subreddit TEXT NOT NULL,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	downloaded_at TEXT NOT NULL,
	file_path TEXT NOT NULL,
	task_id TEXT
);

CREATE INDEX IF NOT EXISTS idx_download_history_post_id
	ON download_history (post_id, subreddit);
CREATE INDEX IF NOT EXISTS idx_download_history_subreddit
	ON download_history (subreddit, downloaded_at);
CREATE INDEX IF NOT EXISTS idx_download_history_task_id
	ON download_history (task_id, downloaded_at);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_next_run
	ON scheduled_tasks (next_run, enabled);
`

// Open opens (and if necessary creates) the database at cfg.Path.
func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("storage path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, path: cfg.Path, log: log}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug("storage opened", logx.String("path", cfg.Path))
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

// formatTime normalizes to UTC before formatting. Timestamps are compared
// lexically in SQL, so they must all carry the same offset.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
