// Package app wires configuration, storage, the executor and the scheduler
// into one runnable daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"redmark/internal/config"
	"redmark/internal/executor"
	"redmark/internal/scheduler"
	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

// DefaultStoragePath is used when storage.path is not configured.
const DefaultStoragePath = "data/redmark.db"

// Options configure a daemon instance.
type Options struct {
	ConfigPath string

	// Fetch turns a subreddit into items to archive. The engine treats it as
	// an opaque collaborator supplied by the embedding application; the
	// standalone binary runs with NopFetch.
	Fetch executor.Fetch
}

// NopFetch is a fetch client that returns no items. Scheduling, retries and
// the ledger still run; every execution completes with zero downloads.
func NopFetch(ctx context.Context, t *task.Task, subreddit string, skip map[string]struct{}) ([]executor.Item, error) {
	return nil, nil
}

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	store *storage.Store
	sched *scheduler.Scheduler

	stopTimeout time.Duration

	wg sync.WaitGroup
}

// New loads the configuration and builds the full service graph. Nothing is
// started yet; the store is opened here so configuration and filesystem
// errors surface before the process daemonizes.
func New(opts Options) (*App, error) {
	if opts.Fetch == nil {
		return nil, errors.New("app: fetch client must be set")
	}

	bootLog := logx.NewConsole("info").With(logx.String("comp", "config"))
	cfgm := config.NewManager(opts.ConfigPath, bootLog)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(cfg.Logging.Logx())
	log = log.With(logx.String("comp", "app"))

	fail := func(err error) (*App, error) {
		_ = logs.Close()
		return nil, err
	}

	busy, err := cfg.Storage.BusyTimeoutOrDefault()
	if err != nil {
		return fail(err)
	}
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = DefaultStoragePath
	}
	store, err := storage.Open(storage.Config{Path: dbPath, BusyTimeout: busy},
		logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}

	defaults, err := cfg.Scheduler.Defaults.TaskDefaults()
	if err != nil {
		return fail(err)
	}
	checkInterval, err := cfg.Scheduler.CheckIntervalOrDefault()
	if err != nil {
		return fail(err)
	}
	maintenance, err := cfg.Scheduler.MaintenanceIntervalOrDefault()
	if err != nil {
		return fail(err)
	}
	stopTimeout, err := cfg.Scheduler.StopTimeoutOrDefault()
	if err != nil {
		return fail(err)
	}

	exec := executor.New(executor.Config{
		MaxConcurrentSubreddits: cfg.Scheduler.MaxConcurrentSubreddits,
	}, store, opts.Fetch, logs.Logger().With(logx.String("comp", "executor")))

	sched := scheduler.New(scheduler.Config{
		CheckInterval:       checkInterval,
		MaintenanceInterval: maintenance,
		RetentionDays:       cfg.Scheduler.RetentionDays,
		Defaults:            defaults,
	}, store, exec, logs.Logger().With(logx.String("comp", "scheduler")))

	return &App{
		cfgm:        cfgm,
		logs:        logs,
		log:         log,
		store:       store,
		sched:       sched,
		stopTimeout: stopTimeout,
	}, nil
}

// seedNamespace keys the ids derived for config-declared tasks. The id must
// be stable across restarts so re-seeding updates the existing row instead of
// inserting a sibling on the same schedule.
var seedNamespace = uuid.MustParse("6f9d2c1e-4b3a-5e8f-9c07-d215a8e40c61")

func seedTaskID(name string) string {
	return uuid.NewSHA1(seedNamespace, []byte(name)).String()
}

// Scheduler exposes the scheduler for command handlers.
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }

// Store exposes the underlying store.
func (a *App) Store() *storage.Store { return a.store }

// Start registers the configured seed tasks, starts the scheduler and begins
// watching the config file. An invalid seed task fails startup.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	for _, tc := range cfg.Tasks {
		spec, err := tc.Spec()
		if err != nil {
			return err
		}
		if spec.ID == "" {
			spec.ID = seedTaskID(spec.Name)
		}
		t, err := task.New(spec, a.sched.Defaults())
		if err != nil {
			return fmt.Errorf("seed task %q: %w", tc.Name, err)
		}
		// A previous run may have persisted this task already; its execution
		// history survives the re-seed.
		prev, err := a.store.LoadTask(ctx, t.ID)
		switch {
		case err == nil:
			t.CreatedAt = prev.CreatedAt
			t.LastRun = prev.LastRun
			t.LastResult = prev.LastResult
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("seed task %q: %w", tc.Name, err)
		}
		if err := a.sched.AddTask(ctx, t); err != nil {
			return fmt.Errorf("seed task %q: %w", tc.Name, err)
		}
	}

	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	// Logging, retention and task defaults are applied live; the polling
	// interval and storage settings need a restart.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		err := a.cfgm.Watch(ctx, func(next *config.Config) {
			a.logs.Apply(next.Logging.Logx())
			defaults, err := next.Scheduler.Defaults.TaskDefaults()
			if err != nil {
				a.log.Warn("reloaded task defaults invalid, keeping previous", logx.Err(err))
				return
			}
			a.sched.Apply(scheduler.Config{
				RetentionDays: next.Scheduler.RetentionDays,
				Defaults:      defaults,
			})
			a.log.Info("configuration reloaded")
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("daemon started")
	return nil
}

// Stop shuts the scheduler down, bounded by the configured stop timeout, then
// closes the store and the log sinks.
func (a *App) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, a.stopTimeout)
	defer cancel()
	if err := a.sched.Stop(stopCtx); err != nil {
		a.log.Warn("scheduler did not stop cleanly", logx.Err(err))
	}
	a.wg.Wait()

	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", logx.Err(err))
	}
	a.log.Info("daemon stopped")
	return a.logs.Close()
}
