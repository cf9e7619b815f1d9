package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

func writeConfig(t *testing.T, dir, dbPath string) string {
	t.Helper()
	cfg := fmt.Sprintf(`logging:
  level: error
  console: false
storage:
  path: %q
scheduler:
  check_interval: 1h
tasks:
  - name: seeded
    cron_expression: "0 0 1 1 *"
    subreddits: ["golang"]
`, dbPath)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCycle(t *testing.T, cfgPath string) {
	t.Helper()
	a, err := New(Options{ConfigPath: cfgPath, Fetch: NopFetch})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := a.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func openTestStore(t *testing.T, dbPath string) *storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: dbPath, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStartSeedsTasksOnceAcrossRestarts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	cfgPath := writeConfig(t, dir, dbPath)

	runCycle(t, cfgPath)
	runCycle(t, cfgPath)

	st := openTestStore(t, dbPath)
	tasks, err := st.LoadAllTasks(context.Background())
	if err != nil {
		t.Fatalf("LoadAllTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("persisted %d tasks after two restarts, want 1", len(tasks))
	}
	if got, want := tasks[0].ID, seedTaskID("seeded"); got != want {
		t.Fatalf("seed task id = %q, want %q", got, want)
	}
}

func TestStartPreservesSeedTaskHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "state.db")
	cfgPath := writeConfig(t, dir, dbPath)
	ctx := context.Background()

	runCycle(t, cfgPath)

	// Simulate a completed run persisted by a previous daemon lifetime.
	st := openTestStore(t, dbPath)
	id := seedTaskID("seeded")
	seeded, err := st.LoadTask(ctx, id)
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	ran := time.Now().Add(-time.Hour).Truncate(time.Second)
	seeded.LastRun = &ran
	seeded.LastResult = &task.Result{TaskID: id, Status: task.StatusCompleted, StartedAt: ran}
	if err := st.SaveTask(ctx, seeded); err != nil {
		t.Fatalf("SaveTask: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	runCycle(t, cfgPath)

	st2 := openTestStore(t, dbPath)
	got, err := st2.LoadTask(ctx, id)
	if err != nil {
		t.Fatalf("LoadTask: %v", err)
	}
	if got.LastRun == nil || !got.LastRun.Equal(ran) {
		t.Fatalf("LastRun = %v, want %v", got.LastRun, ran)
	}
	if got.LastResult == nil || got.LastResult.Status != task.StatusCompleted {
		t.Fatalf("LastResult = %+v, want completed result", got.LastResult)
	}
}
