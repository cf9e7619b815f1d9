// Package scheduler owns the task collection and the polling loop that
// dispatches due tasks to the executor.
//
// One mutex guards the collection; it is held only to snapshot due tasks and
// to commit results, never while a task executes. The in-memory collection is
// the source of truth during a run; the store is written through after every
// mutation and re-seeds the collection at startup.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"redmark/internal/cron"
	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

var (
	// ErrNoExecutor is returned by Start when no executor has been provided.
	// Starting without one is a configuration error, not a runtime condition.
	ErrNoExecutor = errors.New("scheduler: executor must be set before start")

	ErrAlreadyRunning = errors.New("scheduler: already running")
)

// Executor runs one task to a terminal result.
type Executor interface {
	Execute(ctx context.Context, t *task.Task) task.Result
}

// Store is the persistence surface the scheduler needs.
type Store interface {
	SaveTask(ctx context.Context, t *task.Task) error
	LoadAllTasks(ctx context.Context) ([]*task.Task, error)
	DeleteTask(ctx context.Context, id string) (bool, error)
	CleanupHistory(ctx context.Context, daysToKeep int) (int64, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

// Config tunes the scheduler loop.
type Config struct {
	// CheckInterval is the polling tick. Default 30s, minimum 1s.
	CheckInterval time.Duration
	// MaintenanceInterval is how often history retention runs. Default 24h.
	MaintenanceInterval time.Duration
	// RetentionDays is the ledger retention window. Default 90.
	RetentionDays int
	// Defaults are applied to task specs registered via configuration.
	Defaults task.Defaults
}

func (c Config) withDefaults() Config {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.CheckInterval < time.Second {
		c.CheckInterval = time.Second
	}
	if c.MaintenanceInterval <= 0 {
		c.MaintenanceInterval = 24 * time.Hour
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 90
	}
	if c.Defaults == (task.Defaults{}) {
		c.Defaults = task.StandardDefaults()
	}
	return c
}

type Scheduler struct {
	cfg   Config
	store Store
	exec  Executor
	log   logx.Logger

	mu      sync.Mutex
	tasks   map[string]*task.Task
	running map[string]struct{} // ids currently executing

	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	wg      sync.WaitGroup // loop + in-flight executions
}

func New(cfg Config, store Store, exec Executor, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		cfg:     cfg.withDefaults(),
		store:   store,
		exec:    exec,
		log:     log,
		tasks:   map[string]*task.Task{},
		running: map[string]struct{}{},
	}
}

// Defaults exposes the process-wide task defaults.
func (s *Scheduler) Defaults() task.Defaults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Defaults
}

// Apply updates the tunables that can change without a restart: the ledger
// retention window and the task defaults. The check interval is fixed at
// start.
func (s *Scheduler) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	s.cfg.RetentionDays = cfg.RetentionDays
	s.cfg.Defaults = cfg.Defaults
	s.mu.Unlock()
}

// Start seeds the collection from the store and launches the polling loop.
// ctx cancellation aborts in-flight task executions; use Stop for a graceful
// shutdown that waits for them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}
	if s.exec == nil {
		return ErrNoExecutor
	}

	persisted, err := s.store.LoadAllTasks(ctx)
	if err != nil {
		return err
	}
	for _, t := range persisted {
		if _, ok := s.tasks[t.ID]; ok {
			continue
		}
		s.seedLocked(t)
	}

	s.started = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh := s.stopCh
	doneCh := s.doneCh

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, stopCh)
	}()
	go func() {
		s.wg.Wait()
		close(doneCh)
	}()

	s.log.Info("scheduler started",
		logx.Duration("check_interval", s.cfg.CheckInterval),
		logx.Int("tasks", len(s.tasks)))
	return nil
}

// seedLocked registers a persisted task, restoring next_run when missing.
func (s *Scheduler) seedLocked(t *task.Task) {
	if t.Enabled && t.NextRun == nil {
		expr, err := cron.Parse(t.CronExpression)
		if err != nil {
			s.log.Warn("persisted task has invalid cron expression, leaving unscheduled",
				logx.String("task", t.Name), logx.String("expr", t.CronExpression), logx.Err(err))
		} else if next, err := expr.Next(time.Now()); err != nil {
			s.log.Warn("persisted task has unsatisfiable schedule",
				logx.String("task", t.Name), logx.String("expr", t.CronExpression), logx.Err(err))
		} else {
			t.NextRun = &next
		}
	}
	s.tasks[t.ID] = t
}

// Stop signals the loop to exit and waits for it and any in-flight task
// executions. A deadline elapsing is surfaced as ctx.Err() but is not fatal:
// the shutdown keeps completing in the background.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	start := time.Now()
	select {
	case <-done:
		s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out with tasks still running")
		return ctx.Err()
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
