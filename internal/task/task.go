// Package task defines the scheduled task model: the task itself, the result
// of one execution, and the download ledger record.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Defaults are process-wide fallbacks applied when a task record omits a
// tunable. They come from configuration.
type Defaults struct {
	MaxPostsPerSubreddit int
	RetryCount           int
	RetryDelay           time.Duration
	Timeout              time.Duration
}

// StandardDefaults mirrors the historical defaults of the tool.
func StandardDefaults() Defaults {
	return Defaults{
		MaxPostsPerSubreddit: 25,
		RetryCount:           3,
		RetryDelay:           60 * time.Second,
		Timeout:              time.Hour,
	}
}

// Task is a scheduled download job.
//
// The cron expression is stored as raw text and validated by the scheduler
// when the task is registered, not at construction. Everything else is
// validated by New.
type Task struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	CronExpression string        `json:"cron_expression"`
	Subreddits     []string      `json:"subreddits"`
	Enabled        bool          `json:"enabled"`
	MaxPosts       int           `json:"max_posts_per_subreddit"`
	RetryCount     int           `json:"retry_count"`
	RetryDelay     time.Duration `json:"retry_delay"`
	Timeout        time.Duration `json:"timeout"`

	CreatedAt  time.Time  `json:"created_at"`
	LastRun    *time.Time `json:"last_run,omitempty"`
	NextRun    *time.Time `json:"next_run,omitempty"`
	LastResult *Result    `json:"last_result,omitempty"`
}

// Spec is the registration record accepted from configuration or the CLI.
// Omitted optional fields fall back to Defaults. Enabled and RetryCount are
// pointers so an explicit false/zero can be told apart from "omitted".
type Spec struct {
	ID             string
	Name           string
	CronExpression string
	Subreddits     []string
	Enabled        *bool
	MaxPosts       int
	RetryCount     *int
	RetryDelay     time.Duration
	Timeout        time.Duration
}

// New builds a Task from a Spec, applying defaults and validating invariants.
// Invalid specs fail immediately; nothing is coerced.
func New(spec Spec, def Defaults) (*Task, error) {
	t := &Task{
		ID:             spec.ID,
		Name:           spec.Name,
		CronExpression: spec.CronExpression,
		Subreddits:     append([]string(nil), spec.Subreddits...),
		Enabled:        true,
		MaxPosts:       spec.MaxPosts,
		RetryCount:     def.RetryCount,
		RetryDelay:     spec.RetryDelay,
		Timeout:        spec.Timeout,
		CreatedAt:      time.Now(),
	}

	if spec.Enabled != nil {
		t.Enabled = *spec.Enabled
	}
	if spec.RetryCount != nil {
		t.RetryCount = *spec.RetryCount
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.MaxPosts == 0 {
		t.MaxPosts = def.MaxPostsPerSubreddit
	}
	if t.RetryDelay == 0 {
		t.RetryDelay = def.RetryDelay
	}
	if t.Timeout == 0 {
		t.Timeout = def.Timeout
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the task's construction invariants.
func (t *Task) Validate() error {
	if t.Name == "" {
		return errors.New("task name cannot be empty")
	}
	if len(t.Subreddits) == 0 {
		return errors.New("task must have at least one subreddit")
	}
	if t.MaxPosts <= 0 {
		return fmt.Errorf("max_posts_per_subreddit must be positive, got %d", t.MaxPosts)
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("retry_count cannot be negative, got %d", t.RetryCount)
	}
	if t.RetryDelay <= 0 {
		return errors.New("retry_delay must be positive")
	}
	if t.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Clone returns a deep copy so snapshots handed to callers cannot race with
// the scheduler's own mutations.
func (t *Task) Clone() *Task {
	cp := *t
	cp.Subreddits = append([]string(nil), t.Subreddits...)
	if t.LastRun != nil {
		lr := *t.LastRun
		cp.LastRun = &lr
	}
	if t.NextRun != nil {
		nr := *t.NextRun
		cp.NextRun = &nr
	}
	if t.LastResult != nil {
		res := *t.LastResult
		cp.LastResult = &res
	}
	return &cp
}
