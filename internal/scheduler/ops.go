package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"redmark/internal/cron"
	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

// AddTask registers a task. The cron expression is validated eagerly: an
// invalid expression is rejected here, before anything is stored or
// scheduled. An existing task with the same id is replaced.
func (s *Scheduler) AddTask(ctx context.Context, t *task.Task) error {
	expr, err := cron.Parse(t.CronExpression)
	if err != nil {
		return fmt.Errorf("invalid cron expression for task %q: %w", t.Name, err)
	}
	next, err := expr.Next(time.Now())
	if err != nil {
		return fmt.Errorf("invalid cron expression for task %q: %w", t.Name, err)
	}
	t.NextRun = &next

	s.mu.Lock()
	if _, exists := s.tasks[t.ID]; exists {
		s.log.Warn("task id already exists, replacing", logx.String("id", t.ID))
	}
	s.tasks[t.ID] = t.Clone()
	s.mu.Unlock()

	if err := s.store.SaveTask(ctx, t); err != nil {
		return fmt.Errorf("persist task %q: %w", t.Name, err)
	}
	s.log.Info("task added",
		logx.String("task", t.Name),
		logx.String("id", t.ID),
		logx.String("expr", t.CronExpression),
		logx.Time("next_run", next))
	return nil
}

// RemoveTask deletes a task from the collection and the store. It reports
// whether the task existed in either. A currently running execution is not
// interrupted; it just won't be rescheduled.
func (s *Scheduler) RemoveTask(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	_, inMem := s.tasks[id]
	delete(s.tasks, id)
	s.mu.Unlock()

	persisted, err := s.store.DeleteTask(ctx, id)
	if err != nil {
		return inMem, err
	}
	if inMem || persisted {
		s.log.Info("task removed", logx.String("id", id))
	}
	return inMem || persisted, nil
}

// EnableTask re-enables a task and schedules its next run from now.
// Returns false for an unknown id.
func (s *Scheduler) EnableTask(ctx context.Context, id string) bool {
	return s.setEnabled(ctx, id, true)
}

// DisableTask disables a task and clears its next run.
// Returns false for an unknown id.
func (s *Scheduler) DisableTask(ctx context.Context, id string) bool {
	return s.setEnabled(ctx, id, false)
}

func (s *Scheduler) setEnabled(ctx context.Context, id string, enabled bool) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	t.Enabled = enabled
	if enabled {
		if next, err := s.nextRunLocked(t, time.Now()); err == nil {
			t.NextRun = &next
		} else {
			s.log.Warn("enabled task has invalid schedule",
				logx.String("task", t.Name), logx.Err(err))
			t.NextRun = nil
		}
	} else {
		t.NextRun = nil
	}
	cp := t.Clone()
	s.mu.Unlock()

	if err := s.store.SaveTask(ctx, cp); err != nil {
		s.log.Error("failed to persist task state change",
			logx.String("id", id), logx.Err(err))
	}
	s.log.Info("task state changed", logx.String("id", id), logx.Bool("enabled", enabled))
	return true
}

// GetTask returns a copy of the task, or false for an unknown id.
func (s *Scheduler) GetTask(id string) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all registered tasks, oldest first.
func (s *Scheduler) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// TaskSummary is the per-task slice of a status snapshot.
type TaskSummary struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Enabled        bool       `json:"enabled"`
	CronExpression string     `json:"cron_expression"`
	Subreddits     []string   `json:"subreddits"`
	LastRun        *time.Time `json:"last_run,omitempty"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	LastStatus     string     `json:"last_status,omitempty"`
}

// Status is a read-only snapshot for status reporting.
type Status struct {
	Running       bool          `json:"running"`
	CheckInterval time.Duration `json:"check_interval"`
	TotalTasks    int           `json:"total_tasks"`
	EnabledTasks  int           `json:"enabled_tasks"`
	RunningTasks  int           `json:"running_tasks"`
	Tasks         []TaskSummary `json:"tasks"`

	Store *storage.Stats `json:"store,omitempty"`
}

// Status builds a snapshot of the scheduler and, best-effort, the store.
func (s *Scheduler) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{
		Running:       s.started,
		CheckInterval: s.cfg.CheckInterval,
		TotalTasks:    len(s.tasks),
		RunningTasks:  len(s.running),
	}
	for _, t := range s.tasks {
		if t.Enabled {
			st.EnabledTasks++
		}
		sum := TaskSummary{
			ID:             t.ID,
			Name:           t.Name,
			Enabled:        t.Enabled,
			CronExpression: t.CronExpression,
			Subreddits:     append([]string(nil), t.Subreddits...),
			LastRun:        t.LastRun,
			NextRun:        t.NextRun,
		}
		if t.LastResult != nil {
			sum.LastStatus = t.LastResult.Status.String()
		}
		st.Tasks = append(st.Tasks, sum)
	}
	s.mu.Unlock()

	sort.Slice(st.Tasks, func(i, j int) bool { return st.Tasks[i].Name < st.Tasks[j].Name })

	if stats, err := s.store.Stats(ctx); err == nil {
		st.Store = &stats
	} else {
		s.log.Warn("store statistics unavailable", logx.Err(err))
	}
	return st
}
