package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"redmark/internal/app"
	"redmark/internal/cron"
	"redmark/internal/executor"
	"redmark/pkg/logx"
)

func validateExpr(c *cli.Context) error {
	text := c.Args().First()
	if text == "" {
		return fmt.Errorf("usage: validate <expression>")
	}
	expr, err := cron.Parse(text)
	if err != nil {
		return err
	}

	fmt.Printf("%q is valid\n", text)
	from := time.Now()
	for i := 0; i < 3; i++ {
		next, err := expr.Next(from)
		if err != nil {
			return err
		}
		fmt.Printf("  run %d: %s\n", i+1, next.Local().Format("2006-01-02 15:04"))
		from = next
	}
	return nil
}

// testTask executes one task immediately, bypassing its schedule, and prints
// the result. The standalone binary fetches nothing, so this checks the
// task's configuration and the execution path rather than actual downloads.
func testTask(c *cli.Context) error {
	st, cfg, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := loadTaskArg(c, st)
	if err != nil {
		return err
	}

	exec := executor.New(executor.Config{
		MaxConcurrentSubreddits: cfg.Scheduler.MaxConcurrentSubreddits,
	}, st, app.NopFetch, logx.NewConsole("info").With(logx.String("comp", "executor")))

	fmt.Printf("executing task %q...\n", t.Name)
	res := exec.Execute(context.Background(), t)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	now := time.Now()
	t.LastRun = &now
	t.LastResult = &res
	return st.SaveTask(context.Background(), t)
}
