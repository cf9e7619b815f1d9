package scheduler

import (
	"context"
	"time"

	"redmark/internal/cron"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

func (s *Scheduler) run(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()
	maint := time.NewTicker(s.cfg.MaintenanceInterval)
	defer maint.Stop()

	// First pass immediately so tasks due while the process was down run
	// without waiting a full interval.
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-maint.C:
			s.maintain(ctx)
		}
	}
}

// tick dispatches every enabled task whose next_run is at or before now.
// The lock is held only to snapshot due tasks; execution happens outside it.
func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()

	s.mu.Lock()
	var due []*task.Task
	for _, t := range s.tasks {
		if !t.Enabled || t.NextRun == nil || t.NextRun.After(now) {
			continue
		}
		if _, busy := s.running[t.ID]; busy {
			continue
		}
		s.running[t.ID] = struct{}{}
		started := now
		t.LastRun = &started
		due = append(due, t.Clone())
	}
	s.mu.Unlock()

	for _, t := range due {
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(ctx, t)
		}()
	}
}

// execute runs one due task and commits the outcome. next_run is recomputed
// from the current time, never from the missed slot, so a task that was due
// during downtime fires once on restart instead of replaying every miss.
func (s *Scheduler) execute(ctx context.Context, snapshot *task.Task) {
	res := s.exec.Execute(ctx, snapshot)
	now := time.Now()

	s.mu.Lock()
	delete(s.running, snapshot.ID)
	t, ok := s.tasks[snapshot.ID]
	if !ok {
		// Removed while running; nothing to commit.
		s.mu.Unlock()
		return
	}
	t.LastResult = &res
	if t.Enabled {
		next, err := s.nextRunLocked(t, now)
		if err != nil {
			s.log.Error("failed to schedule next run, disabling task",
				logx.String("task", t.Name), logx.Err(err))
			t.Enabled = false
			t.NextRun = nil
		} else {
			t.NextRun = &next
		}
	} else {
		t.NextRun = nil
	}
	cp := t.Clone()
	s.mu.Unlock()

	// A transient store failure must not stop scheduling; the in-memory task
	// keeps the fresh next_run and the next save retries the write.
	if err := s.store.SaveTask(ctx, cp); err != nil {
		s.log.Error("failed to persist task after run",
			logx.String("task", cp.Name), logx.Err(err))
	}
}

func (s *Scheduler) nextRunLocked(t *task.Task, from time.Time) (time.Time, error) {
	expr, err := cron.Parse(t.CronExpression)
	if err != nil {
		return time.Time{}, err
	}
	return expr.Next(from)
}

func (s *Scheduler) maintain(ctx context.Context) {
	s.mu.Lock()
	retention := s.cfg.RetentionDays
	s.mu.Unlock()

	n, err := s.store.CleanupHistory(ctx, retention)
	if err != nil {
		s.log.Error("history cleanup failed", logx.Err(err))
		return
	}
	s.log.Debug("history maintenance done",
		logx.Int64("deleted", n), logx.Int("retention_days", retention))
}
