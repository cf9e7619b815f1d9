package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the outcome state of a task execution.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusTimeout
)

var statusNames = [...]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusTimeout:   "timeout",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// Terminal reports whether the status is a final outcome.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown task status %d", int(s))
	}
	return json.Marshal(statusNames[s])
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown task status %q", name)
}

// Result records one execution of a task.
type Result struct {
	TaskID      string     `json:"task_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// DownloadRecord is an immutable ledger fact: one item fetched and saved.
// The (PostID, Subreddit) pair is the dedup key.
type DownloadRecord struct {
	PostID       string    `json:"post_id"`
	PostURL      string    `json:"post_url"`
	Subreddit    string    `json:"subreddit"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	DownloadedAt time.Time `json:"downloaded_at"`
	FilePath     string    `json:"file_path"`
	TaskID       string    `json:"task_id,omitempty"`
}
