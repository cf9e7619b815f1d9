package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"redmark/internal/app"
	"redmark/internal/config"
	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

// loadConfig parses the configured file. Management commands only warn on
// the console so table output stays clean.
func loadConfig(c *cli.Context) (*config.Config, error) {
	m := config.NewManager(c.GlobalString("config"), logx.NewConsole("warn"))
	return m.Load()
}

// openStore loads the config and opens the task store. Management commands
// share the database with a running daemon; WAL mode plus the busy timeout
// keeps the short reads and writes here from colliding with it.
func openStore(c *cli.Context) (*storage.Store, *config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	busy, err := cfg.Storage.BusyTimeoutOrDefault()
	if err != nil {
		return nil, nil, err
	}
	path := cfg.Storage.Path
	if path == "" {
		path = app.DefaultStoragePath
	}
	st, err := storage.Open(storage.Config{Path: path, BusyTimeout: busy},
		logx.NewConsole("warn").With(logx.String("comp", "storage")))
	if err != nil {
		return nil, nil, err
	}
	return st, cfg, nil
}

func loadTaskArg(c *cli.Context, st *storage.Store) (*task.Task, error) {
	id := c.Args().First()
	if id == "" {
		return nil, fmt.Errorf("task id required")
	}
	t, err := st.LoadTask(context.Background(), id)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	return t, nil
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
