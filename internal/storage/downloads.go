package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"redmark/internal/task"
	"redmark/pkg/logx"
)

// RecordDownload appends a row to the download ledger.
// Safe to call concurrently with task saves.
func (s *Store) RecordDownload(ctx context.Context, r task.DownloadRecord) error {
	at := r.DownloadedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO download_history
		 (post_id, post_url, subreddit, title, author, downloaded_at, file_path, task_id)
		 VALUES (?,?,?,?,?,?,?,?)`,
		r.PostID, r.PostURL, r.Subreddit, r.Title, r.Author,
		formatTime(at), r.FilePath, nullStr(r.TaskID),
	)
	if err != nil {
		return err
	}
	s.log.Debug("download recorded",
		logx.String("post", r.PostID), logx.String("subreddit", r.Subreddit))
	return nil
}

// IsDownloaded reports whether the (postID, subreddit) pair is in the ledger.
func (s *Store) IsDownloaded(ctx context.Context, postID, subreddit string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM download_history WHERE post_id = ? AND subreddit = ? LIMIT 1`,
		postID, subreddit).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DownloadedSince returns the post ids fetched from a subreddit within the
// last sinceDays days. Used to build the executor's skip set.
func (s *Store) DownloadedSince(ctx context.Context, subreddit string, sinceDays int) (map[string]struct{}, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -sinceDays))
	rows, err := s.db.QueryContext(ctx,
		`SELECT post_id FROM download_history WHERE subreddit = ? AND downloaded_at >= ?`,
		subreddit, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// HistoryFilter narrows a History query. Zero values mean "no filter".
type HistoryFilter struct {
	TaskID    string
	Subreddit string
	Limit     int
}

// History returns the most recent ledger rows, newest first.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]task.DownloadRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	q := `SELECT post_id, post_url, subreddit, title, author, downloaded_at, file_path, task_id
	 FROM download_history WHERE 1=1`
	args := []any{}
	if f.TaskID != "" {
		q += ` AND task_id = ?`
		args = append(args, f.TaskID)
	}
	if f.Subreddit != "" {
		q += ` AND subreddit = ?`
		args = append(args, f.Subreddit)
	}
	q += ` ORDER BY downloaded_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []task.DownloadRecord
	for rows.Next() {
		var (
			r      task.DownloadRecord
			at     string
			taskID sql.NullString
		)
		if err := rows.Scan(&r.PostID, &r.PostURL, &r.Subreddit, &r.Title,
			&r.Author, &at, &r.FilePath, &taskID); err != nil {
			return nil, err
		}
		if r.DownloadedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		r.TaskID = taskID.String
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// CleanupHistory deletes ledger rows older than daysToKeep days and returns
// how many were removed.
func (s *Store) CleanupHistory(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -daysToKeep))
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM download_history WHERE downloaded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("old download history cleaned up", logx.Int64("deleted", n))
	}
	return n, nil
}
