package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"redmark/internal/task"
	"redmark/pkg/logx"
)

// SaveTask upserts a task by id. Name, config, enabled state, run times and
// the serialized last result are all overwritten; identity is preserved.
func (s *Store) SaveTask(ctx context.Context, t *task.Task) error {
	subs, err := json.Marshal(t.Subreddits)
	if err != nil {
		return fmt.Errorf("marshal subreddits: %w", err)
	}
	var lastResult any
	if t.LastResult != nil {
		b, err := json.Marshal(t.LastResult)
		if err != nil {
			return fmt.Errorf("marshal last result: %w", err)
		}
		lastResult = string(b)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks
		 (id, name, cron_expression, subreddits, enabled, max_posts_per_subreddit,
		  retry_count, retry_delay_seconds, timeout_seconds, created_at,
		  last_run, next_run, last_result, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		  name=excluded.name,
		  cron_expression=excluded.cron_expression,
		  subreddits=excluded.subreddits,
		  enabled=excluded.enabled,
		  max_posts_per_subreddit=excluded.max_posts_per_subreddit,
		  retry_count=excluded.retry_count,
		  retry_delay_seconds=excluded.retry_delay_seconds,
		  timeout_seconds=excluded.timeout_seconds,
		  last_run=excluded.last_run,
		  next_run=excluded.next_run,
		  last_result=excluded.last_result,
		  updated_at=excluded.updated_at`,
		t.ID, t.Name, t.CronExpression, string(subs), boolInt(t.Enabled), t.MaxPosts,
		t.RetryCount, int64(t.RetryDelay.Seconds()), int64(t.Timeout.Seconds()),
		formatTime(t.CreatedAt),
		nullTime(t.LastRun), nullTime(t.NextRun), lastResult,
		formatTime(time.Now()),
	)
	if err != nil {
		return err
	}
	s.log.Debug("task saved", logx.String("task", t.Name), logx.String("id", t.ID))
	return nil
}

const taskColumns = `id, name, cron_expression, subreddits, enabled,
	max_posts_per_subreddit, retry_count, retry_delay_seconds, timeout_seconds,
	created_at, last_run, next_run, last_result`

// LoadTask returns the task with the given id, or ErrNotFound.
func (s *Store) LoadTask(ctx context.Context, id string) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// LoadAllTasks returns every persisted task, oldest first.
func (s *Store) LoadAllTasks(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task, reporting whether it existed. Ledger rows keep
// their task_id; history outlives the task.
func (s *Store) DeleteTask(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Debug("task deleted", logx.String("id", id))
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t          task.Task
		subs       string
		enabled    int
		retryDelay int64
		timeout    int64
		createdAt  string
		lastRun    sql.NullString
		nextRun    sql.NullString
		lastResult sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &t.CronExpression, &subs, &enabled,
		&t.MaxPosts, &t.RetryCount, &retryDelay, &timeout,
		&createdAt, &lastRun, &nextRun, &lastResult)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(subs), &t.Subreddits); err != nil {
		return nil, fmt.Errorf("task %s: unmarshal subreddits: %w", t.ID, err)
	}
	t.Enabled = enabled != 0
	t.RetryDelay = time.Duration(retryDelay) * time.Second
	t.Timeout = time.Duration(timeout) * time.Second

	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("task %s: created_at: %w", t.ID, err)
	}
	if lastRun.Valid {
		v, err := parseTime(lastRun.String)
		if err != nil {
			return nil, fmt.Errorf("task %s: last_run: %w", t.ID, err)
		}
		t.LastRun = &v
	}
	if nextRun.Valid {
		v, err := parseTime(nextRun.String)
		if err != nil {
			return nil, fmt.Errorf("task %s: next_run: %w", t.ID, err)
		}
		t.NextRun = &v
	}
	if lastResult.Valid {
		var res task.Result
		if err := json.Unmarshal([]byte(lastResult.String), &res); err != nil {
			return nil, fmt.Errorf("task %s: last_result: %w", t.ID, err)
		}
		t.LastResult = &res
	}
	return &t, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
