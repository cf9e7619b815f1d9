package storage

import (
	"context"
	"database/sql"
	"os"
	"time"
)

// Stats is a structured summary of the store's contents.
type Stats struct {
	Tasks     TaskStats     `json:"tasks"`
	Downloads DownloadStats `json:"downloads"`
	Database  DatabaseStats `json:"database"`
}

type TaskStats struct {
	Total         int    `json:"total"`
	Enabled       int    `json:"enabled"`
	OldestCreated string `json:"oldest_task,omitempty"`
	LastExecution string `json:"last_execution,omitempty"`
}

type DownloadStats struct {
	Total            int    `json:"total"`
	UniqueSubreddits int    `json:"unique_subreddits"`
	UniquePosts      int    `json:"unique_posts"`
	FirstDownload    string `json:"first_download,omitempty"`
	LastDownload     string `json:"last_download,omitempty"`
	Recent7Days      int    `json:"recent_7_days"`
}

type DatabaseStats struct {
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

// Stats gathers task counts, ledger counts and database metadata.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	var oldest, lastExec sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN enabled = 1 THEN 1 ELSE 0 END), 0),
		        MIN(created_at), MAX(last_run)
		 FROM scheduled_tasks`).
		Scan(&st.Tasks.Total, &st.Tasks.Enabled, &oldest, &lastExec)
	if err != nil {
		return Stats{}, err
	}
	st.Tasks.OldestCreated = oldest.String
	st.Tasks.LastExecution = lastExec.String

	var first, last sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT subreddit), COUNT(DISTINCT post_id),
		        MIN(downloaded_at), MAX(downloaded_at)
		 FROM download_history`).
		Scan(&st.Downloads.Total, &st.Downloads.UniqueSubreddits,
			&st.Downloads.UniquePosts, &first, &last)
	if err != nil {
		return Stats{}, err
	}
	st.Downloads.FirstDownload = first.String
	st.Downloads.LastDownload = last.String

	recentCutoff := formatTime(time.Now().AddDate(0, 0, -7))
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_history WHERE downloaded_at >= ?`, recentCutoff).
		Scan(&st.Downloads.Recent7Days)
	if err != nil {
		return Stats{}, err
	}

	st.Database.Path = s.path
	if fi, err := os.Stat(s.path); err == nil {
		st.Database.SizeBytes = fi.Size()
	}
	return st, nil
}
