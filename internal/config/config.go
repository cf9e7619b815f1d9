// Package config loads and watches the process configuration.
//
// Files may be JSON or YAML. YAML is coerced to JSON so both formats share
// one strict decoder: unknown fields and trailing data are rejected.
package config

import (
	"fmt"
	"strings"
	"time"

	"redmark/internal/task"
	"redmark/pkg/logx"
)

type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Tasks are seed task records registered when the daemon starts.
	Tasks []TaskConfig `json:"tasks,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console *bool  `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

func (c LoggingConfig) Logx() logx.Config {
	console := true
	if c.Console != nil {
		console = *c.Console
	}
	return logx.Config{
		Level:   c.Level,
		Console: console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
	}
}

type StorageConfig struct {
	Path string `json:"path,omitempty"`
	// BusyTimeout is a Go duration string (e.g. "5s").
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the polling loop and the task defaults.
// All durations are Go duration strings (e.g. "30s", "1m", "1h").
type SchedulerConfig struct {
	CheckInterval           string `json:"check_interval,omitempty"`
	StopTimeout             string `json:"stop_timeout,omitempty"`
	MaintenanceInterval     string `json:"maintenance_interval,omitempty"`
	RetentionDays           int    `json:"retention_days,omitempty"`
	MaxConcurrentSubreddits int    `json:"max_concurrent_subreddits,omitempty"`

	Defaults TaskDefaultsConfig `json:"defaults,omitempty"`
}

// TaskDefaultsConfig holds process-wide fallbacks for optional task fields.
// RetryCount is a pointer so an explicit zero survives.
type TaskDefaultsConfig struct {
	MaxPostsPerSubreddit int    `json:"max_posts_per_subreddit,omitempty"`
	RetryCount           *int   `json:"retry_count,omitempty"`
	RetryDelay           string `json:"retry_delay,omitempty"`
	Timeout              string `json:"timeout,omitempty"`
}

// TaskDefaults resolves the configured defaults over the standard ones.
func (c TaskDefaultsConfig) TaskDefaults() (task.Defaults, error) {
	def := task.StandardDefaults()
	if c.MaxPostsPerSubreddit > 0 {
		def.MaxPostsPerSubreddit = c.MaxPostsPerSubreddit
	}
	if c.RetryCount != nil {
		def.RetryCount = *c.RetryCount
	}
	var err error
	if def.RetryDelay, err = ParseDurationOrDefault("scheduler.defaults.retry_delay", c.RetryDelay, def.RetryDelay); err != nil {
		return def, err
	}
	if def.Timeout, err = ParseDurationOrDefault("scheduler.defaults.timeout", c.Timeout, def.Timeout); err != nil {
		return def, err
	}
	return def, nil
}

// TaskConfig is one seed task record.
type TaskConfig struct {
	ID             string   `json:"id,omitempty"`
	Name           string   `json:"name"`
	CronExpression string   `json:"cron_expression"`
	Subreddits     []string `json:"subreddits"`
	Enabled        *bool    `json:"enabled,omitempty"`
	MaxPosts       int      `json:"max_posts_per_subreddit,omitempty"`
	RetryCount     *int     `json:"retry_count,omitempty"`
	RetryDelay     string   `json:"retry_delay,omitempty"`
	Timeout        string   `json:"timeout,omitempty"`
}

// Spec converts the record into a task.Spec.
func (c TaskConfig) Spec() (task.Spec, error) {
	spec := task.Spec{
		ID:             c.ID,
		Name:           c.Name,
		CronExpression: c.CronExpression,
		Subreddits:     c.Subreddits,
		Enabled:        c.Enabled,
		MaxPosts:       c.MaxPosts,
		RetryCount:     c.RetryCount,
	}
	var err error
	if spec.RetryDelay, err = ParseDurationField("tasks."+c.Name+".retry_delay", c.RetryDelay); err != nil {
		return spec, err
	}
	if spec.Timeout, err = ParseDurationField("tasks."+c.Name+".timeout", c.Timeout); err != nil {
		return spec, err
	}
	return spec, nil
}

// CheckIntervalOrDefault parses the check interval, defaulting to 30s.
func (c SchedulerConfig) CheckIntervalOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.check_interval", c.CheckInterval, 30*time.Second)
}

// StopTimeoutOrDefault parses the stop timeout, defaulting to 30s.
func (c SchedulerConfig) StopTimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.stop_timeout", c.StopTimeout, 30*time.Second)
}

// MaintenanceIntervalOrDefault parses the maintenance interval, defaulting to 24h.
func (c SchedulerConfig) MaintenanceIntervalOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("scheduler.maintenance_interval", c.MaintenanceInterval, 24*time.Hour)
}

// BusyTimeoutOrDefault parses the sqlite busy timeout, defaulting to 5s.
func (c StorageConfig) BusyTimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("storage.busy_timeout", c.BusyTimeout, 5*time.Second)
}

// ParseDurationField parses a Go duration string from the config field at
// path. An empty value means "not set" and yields zero; negative durations
// are rejected.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: cannot parse %q as a duration: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative duration %q", path, raw)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with a fallback for the
// not-set case.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
