package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"redmark/internal/config"
	"redmark/internal/cron"
	"redmark/internal/task"
)

func addTask(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("usage: add <name> <cron> <subreddits>")
	}
	name, expr, subs := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)

	var subreddits []string
	for _, s := range strings.Split(subs, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subreddits = append(subreddits, s)
		}
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	defaults, err := cfg.Scheduler.Defaults.TaskDefaults()
	if err != nil {
		return err
	}

	spec := task.Spec{
		ID:             c.String("id"),
		Name:           name,
		CronExpression: expr,
		Subreddits:     subreddits,
		MaxPosts:       c.Int("max-posts"),
	}
	if c.Bool("disabled") {
		enabled := false
		spec.Enabled = &enabled
	}
	if rc := c.Int("retry-count"); rc >= 0 {
		spec.RetryCount = &rc
	}
	if spec.RetryDelay, err = config.ParseDurationField("retry-delay", c.String("retry-delay")); err != nil {
		return err
	}
	if spec.Timeout, err = config.ParseDurationField("timeout", c.String("timeout")); err != nil {
		return err
	}

	t, err := task.New(spec, defaults)
	if err != nil {
		return err
	}

	parsed, err := cron.Parse(t.CronExpression)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", t.CronExpression, err)
	}
	if t.Enabled {
		next, err := parsed.Next(time.Now())
		if err != nil {
			return err
		}
		t.NextRun = &next
	}

	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SaveTask(context.Background(), t); err != nil {
		return err
	}
	fmt.Printf("added task %s (%s)\n", t.ID, t.Name)
	if t.NextRun != nil {
		fmt.Printf("next run: %s\n", formatTimePtr(t.NextRun))
	}
	return nil
}

func listTasks(c *cli.Context) error {
	filter := c.String("status")
	switch filter {
	case "all", "enabled", "disabled":
	default:
		return fmt.Errorf("invalid --status %q (want all, enabled or disabled)", filter)
	}

	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	tasks, err := st.LoadAllTasks(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCHEDULE\tSUBREDDITS\tENABLED\tLAST RUN\tNEXT RUN\tLAST STATUS")
	shown := 0
	for _, t := range tasks {
		if filter == "enabled" && !t.Enabled {
			continue
		}
		if filter == "disabled" && t.Enabled {
			continue
		}
		shown++
		status := "-"
		if t.LastResult != nil {
			status = t.LastResult.Status.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\t%s\n",
			t.ID, t.Name, t.CronExpression, strings.Join(t.Subreddits, ","),
			t.Enabled, formatTimePtr(t.LastRun), formatTimePtr(t.NextRun), status)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if shown == 0 {
		fmt.Println("no tasks")
	}
	return nil
}

func showTask(c *cli.Context) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := loadTaskArg(c, st)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func removeTask(c *cli.Context) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := loadTaskArg(c, st)
	if err != nil {
		return err
	}

	if !c.Bool("force") {
		fmt.Printf("remove task %q (%s)? [y/N] ", t.Name, t.ID)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if ans := strings.ToLower(strings.TrimSpace(line)); ans != "y" && ans != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	deleted, err := st.DeleteTask(context.Background(), t.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("task %s not found", t.ID)
	}
	fmt.Printf("removed task %s\n", t.ID)
	return nil
}

func enableTask(c *cli.Context) error { return setTaskEnabled(c, true) }

func disableTask(c *cli.Context) error { return setTaskEnabled(c, false) }

// setTaskEnabled mirrors the scheduler's own toggle semantics: enabling
// schedules the next run from now, disabling clears it.
func setTaskEnabled(c *cli.Context, enabled bool) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := loadTaskArg(c, st)
	if err != nil {
		return err
	}

	t.Enabled = enabled
	t.NextRun = nil
	if enabled {
		expr, err := cron.Parse(t.CronExpression)
		if err != nil {
			return fmt.Errorf("task %s has an invalid cron expression: %w", t.ID, err)
		}
		next, err := expr.Next(time.Now())
		if err != nil {
			return err
		}
		t.NextRun = &next
	}

	if err := st.SaveTask(context.Background(), t); err != nil {
		return err
	}
	if enabled {
		fmt.Printf("enabled task %s, next run %s\n", t.ID, formatTimePtr(t.NextRun))
	} else {
		fmt.Printf("disabled task %s\n", t.ID)
	}
	return nil
}
