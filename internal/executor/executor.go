// Package executor runs one scheduled task under the retry/timeout policy.
//
// The actual fetching is an injected callback; the executor owns dedup
// against the download ledger, ledger writes for new items, per-subreddit
// fan-out and retry/timeout bookkeeping.
package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"redmark/internal/task"
	"redmark/pkg/logx"
)

// Item is one fetched-and-saved post as reported by the callback.
type Item struct {
	PostID    string
	URL       string
	Subreddit string
	Title     string
	Author    string
	FilePath  string
}

// Fetch is the injected work callback. It fetches up to t.MaxPosts items
// from one subreddit, may skip ids present in skip, and must honor ctx.
type Fetch func(ctx context.Context, t *task.Task, subreddit string, skip map[string]struct{}) ([]Item, error)

// Ledger is the slice of the state store the executor needs.
type Ledger interface {
	DownloadedSince(ctx context.Context, subreddit string, sinceDays int) (map[string]struct{}, error)
	IsDownloaded(ctx context.Context, postID, subreddit string) (bool, error)
	RecordDownload(ctx context.Context, r task.DownloadRecord) error
}

// Config tunes the executor.
type Config struct {
	// MaxConcurrentSubreddits bounds the per-task fan-out. Default 3.
	MaxConcurrentSubreddits int
	// DedupWindowDays is how far back the skip set looks. Default 30.
	DedupWindowDays int
	// ItemsPerSecond paces ledger writes between items. Default 10.
	ItemsPerSecond float64
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentSubreddits <= 0 {
		c.MaxConcurrentSubreddits = 3
	}
	if c.DedupWindowDays <= 0 {
		c.DedupWindowDays = 30
	}
	if c.ItemsPerSecond <= 0 {
		c.ItemsPerSecond = 10
	}
	return c
}

type Executor struct {
	cfg    Config
	ledger Ledger
	fetch  Fetch
	log    logx.Logger
	pacer  *rate.Limiter
}

func New(cfg Config, ledger Ledger, fetch Fetch, log logx.Logger) *Executor {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Executor{
		cfg:    cfg,
		ledger: ledger,
		fetch:  fetch,
		log:    log,
		pacer:  rate.NewLimiter(rate.Limit(cfg.ItemsPerSecond), 1),
	}
}

// Execute runs the task once per attempt, retrying up to t.RetryCount
// additional times with t.RetryDelay between attempts. Each attempt gets its
// own t.Timeout deadline. The returned result is always terminal.
func (e *Executor) Execute(ctx context.Context, t *task.Task) task.Result {
	start := time.Now()
	res := task.Result{TaskID: t.ID, Status: task.StatusRunning, StartedAt: start}
	log := e.log.With(logx.String("task", t.Name), logx.String("id", t.ID))

	maxAttempts := 1 + t.RetryCount
	var (
		lastErr  error
		timedOut bool
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		runCtx, cancel := context.WithTimeout(ctx, t.Timeout)
		sum, err := e.runOnce(runCtx, t)
		timedOut = errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		cancel()

		if err == nil {
			done := time.Now()
			res.Status = task.StatusCompleted
			res.CompletedAt = &done
			res.Output = sum.output()
			if len(sum.errs) > 0 {
				// Partial success: something was fetched, some subreddits failed.
				res.Error = strings.Join(sum.errs[:min(3, len(sum.errs))], "; ")
			}
			log.Info("task completed",
				logx.Int("downloaded", sum.downloaded),
				logx.Int("skipped", sum.skipped),
				logx.Int("attempts", attempt),
				logx.Duration("dur", done.Sub(start)))
			return res
		}
		lastErr = err

		if attempt >= maxAttempts {
			break
		}
		log.Warn("task attempt failed, retrying",
			logx.Int("attempt", attempt),
			logx.Duration("delay", t.RetryDelay),
			logx.Err(err))
		if !sleepCtx(ctx, t.RetryDelay) {
			lastErr = ctx.Err()
			break
		}
	}

	done := time.Now()
	res.CompletedAt = &done
	if timedOut {
		res.Status = task.StatusTimeout
		res.Error = fmt.Sprintf("task execution timed out after %s", t.Timeout)
	} else {
		res.Status = task.StatusFailed
		if lastErr != nil {
			res.Error = lastErr.Error()
		}
	}
	log.Warn("task failed",
		logx.String("status", res.Status.String()),
		logx.Duration("dur", done.Sub(start)),
		logx.Err(lastErr))
	return res
}

type runSummary struct {
	downloaded int
	skipped    int
	subreddits int
	errs       []string
}

func (s runSummary) output() string {
	lines := []string{
		fmt.Sprintf("downloaded: %d posts", s.downloaded),
		fmt.Sprintf("skipped: %d posts", s.skipped),
		fmt.Sprintf("subreddits processed: %d", s.subreddits),
	}
	if len(s.errs) > 0 {
		lines = append(lines, fmt.Sprintf("errors: %d", len(s.errs)))
	}
	return strings.Join(lines, "\n")
}

// runOnce performs a single attempt: fan out over subreddits, fetch through
// the callback with a skip set, record each new item in the ledger.
// A run where every subreddit failed and nothing was fetched is an error;
// partial failures are reported in the summary.
func (e *Executor) runOnce(ctx context.Context, t *task.Task) (runSummary, error) {
	sum := runSummary{subreddits: len(t.Subreddits)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrentSubreddits)

	for _, subreddit := range t.Subreddits {
		subreddit := subreddit
		g.Go(func() error {
			downloaded, skipped, err := e.fetchSubreddit(gctx, t, subreddit)
			mu.Lock()
			sum.downloaded += downloaded
			sum.skipped += skipped
			if err != nil {
				sum.errs = append(sum.errs, fmt.Sprintf("%s: %v", subreddit, err))
			}
			mu.Unlock()
			// Subreddit failures don't cancel sibling fetches; only context
			// cancellation (timeout/stop) aborts the whole attempt.
			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return sum, err
	}

	if len(sum.errs) > 0 && sum.downloaded == 0 {
		return sum, fmt.Errorf("all subreddits failed: %s", strings.Join(sum.errs[:min(3, len(sum.errs))], "; "))
	}
	return sum, nil
}

func (e *Executor) fetchSubreddit(ctx context.Context, t *task.Task, subreddit string) (downloaded, skipped int, err error) {
	skip, err := e.ledger.DownloadedSince(ctx, subreddit, e.cfg.DedupWindowDays)
	if err != nil {
		return 0, 0, fmt.Errorf("load dedup set: %w", err)
	}

	items, err := e.fetch(ctx, t, subreddit, skip)
	if err != nil {
		return 0, 0, err
	}

	for _, it := range items {
		if _, seen := skip[it.PostID]; seen {
			skipped++
			continue
		}
		// The skip set is bounded by the dedup window; double-check the
		// full ledger so old posts are never re-recorded.
		dup, err := e.ledger.IsDownloaded(ctx, it.PostID, subreddit)
		if err != nil {
			return downloaded, skipped, fmt.Errorf("dedup check: %w", err)
		}
		if dup {
			skipped++
			continue
		}

		if err := e.pacer.Wait(ctx); err != nil {
			return downloaded, skipped, err
		}
		rec := task.DownloadRecord{
			PostID:       it.PostID,
			PostURL:      it.URL,
			Subreddit:    subreddit,
			Title:        it.Title,
			Author:       it.Author,
			DownloadedAt: time.Now(),
			FilePath:     it.FilePath,
			TaskID:       t.ID,
		}
		if err := e.ledger.RecordDownload(ctx, rec); err != nil {
			return downloaded, skipped, fmt.Errorf("record download: %w", err)
		}
		downloaded++
	}
	return downloaded, skipped, nil
}

// sleepCtx sleeps for d, returning false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-tmr.C:
		return true
	}
}
