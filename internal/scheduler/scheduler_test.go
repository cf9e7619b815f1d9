package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"redmark/internal/storage"
	"redmark/internal/task"
	"redmark/pkg/logx"
)

type fakeStore struct {
	mu    sync.Mutex
	saved map[string]*task.Task
	seed  []*task.Task

	saveErr      error
	cleanupCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{saved: map[string]*task.Task{}}
}

func (f *fakeStore) SaveTask(ctx context.Context, t *task.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved[t.ID] = t.Clone()
	return nil
}

func (f *fakeStore) LoadAllTasks(ctx context.Context) ([]*task.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*task.Task, 0, len(f.seed))
	for _, t := range f.seed {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.saved[id]
	delete(f.saved, id)
	return ok, nil
}

func (f *fakeStore) CleanupHistory(ctx context.Context, daysToKeep int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	return 0, nil
}

func (f *fakeStore) Stats(ctx context.Context) (storage.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.Stats{Tasks: storage.TaskStats{Total: len(f.saved)}}, nil
}

func (f *fakeStore) savedTask(id string) *task.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[id]
}

type fakeExec struct {
	mu       sync.Mutex
	executed []string

	notify chan string
	block  chan struct{}
}

func (f *fakeExec) Execute(ctx context.Context, t *task.Task) task.Result {
	f.mu.Lock()
	f.executed = append(f.executed, t.ID)
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- t.ID
	}
	if f.block != nil {
		<-f.block
	}
	done := time.Now()
	return task.Result{
		TaskID:      t.ID,
		Status:      task.StatusCompleted,
		StartedAt:   done,
		CompletedAt: &done,
	}
}

func (f *fakeExec) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.executed)
}

func newSchedTask(t *testing.T, name, expr string) *task.Task {
	t.Helper()
	tk, err := task.New(task.Spec{
		Name:           name,
		CronExpression: expr,
		Subreddits:     []string{"r/golang"},
	}, task.StandardDefaults())
	if err != nil {
		t.Fatalf("task.New error: %v", err)
	}
	return tk
}

func testConfig() Config {
	return Config{CheckInterval: time.Second, MaintenanceInterval: time.Hour}
}

func TestAddTaskRejectsInvalidCron(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	tk := newSchedTask(t, "broken", "not a cron")
	err := s.AddTask(context.Background(), tk)
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
	if !strings.Contains(err.Error(), "invalid cron expression") {
		t.Fatalf("error = %q", err)
	}
	if store.savedTask(tk.ID) != nil {
		t.Fatal("invalid task must not be persisted")
	}
	if _, ok := s.GetTask(tk.ID); ok {
		t.Fatal("invalid task must not be registered")
	}
}

func TestAddTaskSchedulesAndPersists(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	tk := newSchedTask(t, "good", "0 12 * * *")
	if err := s.AddTask(context.Background(), tk); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	got, ok := s.GetTask(tk.ID)
	if !ok {
		t.Fatal("task not registered")
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want a future time", got.NextRun)
	}
	if store.savedTask(tk.ID) == nil {
		t.Fatal("task not persisted")
	}
}

func TestStartDispatchesDueTask(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	exec := &fakeExec{notify: make(chan string, 1)}
	s := New(testConfig(), store, exec, logx.Nop())

	due := newSchedTask(t, "due", "* * * * *")
	past := time.Now().Add(-time.Minute)
	due.NextRun = &past
	store.seed = []*task.Task{due}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	select {
	case id := <-exec.notify:
		if id != due.ID {
			t.Fatalf("executed %s, want %s", id, due.ID)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("due task was not dispatched")
	}

	// The commit happens after Execute returns; poll for it.
	deadline := time.Now().Add(2 * time.Second)
	for {
		got, ok := s.GetTask(due.ID)
		if !ok {
			t.Fatal("task vanished")
		}
		if got.LastResult != nil {
			if got.LastResult.Status != task.StatusCompleted {
				t.Fatalf("LastResult.Status = %v", got.LastResult.Status)
			}
			if got.NextRun == nil || !got.NextRun.After(time.Now()) {
				t.Fatalf("NextRun = %v, want future reschedule", got.NextRun)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("result never committed")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRestoresMissingNextRun(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	seeded := newSchedTask(t, "no-next-run", "0 12 * * *")
	seeded.NextRun = nil
	store.seed = []*task.Task{seeded}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	got, ok := s.GetTask(seeded.ID)
	if !ok {
		t.Fatal("seeded task not registered")
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want restored future time", got.NextRun)
	}
}

func TestStartGuards(t *testing.T) {
	t.Parallel()
	store := newFakeStore()

	s := New(testConfig(), store, nil, logx.Nop())
	if err := s.Start(context.Background()); !errors.Is(err, ErrNoExecutor) {
		t.Fatalf("err = %v, want ErrNoExecutor", err)
	}

	s = New(testConfig(), store, &fakeExec{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())
	if err := s.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

func TestRemoveTask(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	tk := newSchedTask(t, "removable", "0 12 * * *")
	if err := s.AddTask(context.Background(), tk); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	removed, err := s.RemoveTask(context.Background(), tk.ID)
	if err != nil || !removed {
		t.Fatalf("RemoveTask = %t, %v; want true, nil", removed, err)
	}
	if _, ok := s.GetTask(tk.ID); ok {
		t.Fatal("task still registered after removal")
	}

	removed, err = s.RemoveTask(context.Background(), "no-such-id")
	if err != nil || removed {
		t.Fatalf("RemoveTask(unknown) = %t, %v; want false, nil", removed, err)
	}
}

func TestEnableDisable(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	tk := newSchedTask(t, "toggle", "0 12 * * *")
	if err := s.AddTask(context.Background(), tk); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}

	if !s.DisableTask(context.Background(), tk.ID) {
		t.Fatal("DisableTask returned false for known id")
	}
	got, _ := s.GetTask(tk.ID)
	if got.Enabled || got.NextRun != nil {
		t.Fatalf("after disable: enabled=%t next=%v", got.Enabled, got.NextRun)
	}

	if !s.EnableTask(context.Background(), tk.ID) {
		t.Fatal("EnableTask returned false for known id")
	}
	got, _ = s.GetTask(tk.ID)
	if !got.Enabled || got.NextRun == nil {
		t.Fatalf("after enable: enabled=%t next=%v", got.Enabled, got.NextRun)
	}

	if s.EnableTask(context.Background(), "no-such-id") {
		t.Fatal("EnableTask returned true for unknown id")
	}
	if s.DisableTask(context.Background(), "no-such-id") {
		t.Fatal("DisableTask returned true for unknown id")
	}
}

func TestStopWaitsForInFlightTask(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	exec := &fakeExec{notify: make(chan string, 1), block: make(chan struct{})}
	s := New(testConfig(), store, exec, logx.Nop())

	due := newSchedTask(t, "slow", "* * * * *")
	past := time.Now().Add(-time.Minute)
	due.NextRun = &past
	store.seed = []*task.Task{due}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	<-exec.notify

	// With the execution still blocked, a short deadline must surface.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	if err := s.Stop(shortCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop = %v, want deadline exceeded", err)
	}

	close(exec.block)

	// The shutdown keeps completing in the background; wait for the commit.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if saved := store.savedTask(due.ID); saved != nil && saved.LastResult != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("in-flight result never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if s.Running() {
		t.Fatal("scheduler still reports running after stop")
	}
}

func TestDisabledTaskNotDispatched(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	exec := &fakeExec{}
	s := New(testConfig(), store, exec, logx.Nop())

	off := newSchedTask(t, "off", "* * * * *")
	off.Enabled = false
	past := time.Now().Add(-time.Minute)
	off.NextRun = &past
	store.seed = []*task.Task{off}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop(context.Background())

	time.Sleep(100 * time.Millisecond)
	if exec.count() != 0 {
		t.Fatal("disabled task was dispatched")
	}
}

func TestApplyUpdatesTunables(t *testing.T) {
	t.Parallel()
	s := New(testConfig(), newFakeStore(), &fakeExec{}, logx.Nop())

	def := task.StandardDefaults()
	def.MaxPostsPerSubreddit = 99
	s.Apply(Config{RetentionDays: 7, Defaults: def})

	if got := s.Defaults().MaxPostsPerSubreddit; got != 99 {
		t.Fatalf("MaxPostsPerSubreddit = %d, want 99", got)
	}
}

func TestStatusSnapshot(t *testing.T) {
	t.Parallel()
	store := newFakeStore()
	s := New(testConfig(), store, &fakeExec{}, logx.Nop())

	ctx := context.Background()
	for _, name := range []string{"bravo", "alpha"} {
		if err := s.AddTask(ctx, newSchedTask(t, name, "0 12 * * *")); err != nil {
			t.Fatalf("AddTask error: %v", err)
		}
	}
	tk := newSchedTask(t, "charlie", "0 12 * * *")
	if err := s.AddTask(ctx, tk); err != nil {
		t.Fatalf("AddTask error: %v", err)
	}
	s.DisableTask(ctx, tk.ID)

	st := s.Status(ctx)
	if st.Running {
		t.Fatal("Running = true before Start")
	}
	if st.TotalTasks != 3 || st.EnabledTasks != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", st.TotalTasks, st.EnabledTasks)
	}
	if len(st.Tasks) != 3 || st.Tasks[0].Name != "alpha" {
		t.Fatalf("tasks not sorted by name: %+v", st.Tasks)
	}
	if st.Store == nil || st.Store.Tasks.Total != 3 {
		t.Fatalf("store stats = %+v", st.Store)
	}
}
