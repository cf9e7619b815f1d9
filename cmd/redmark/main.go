package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

func main() {
	app := cli.NewApp()
	app.Name = "redmark"
	app.HelpName = "redmark"
	app.Usage = "cron-driven reddit archiving scheduler"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: "config.yaml",
			Usage: "path to the configuration file (YAML or JSON)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run the scheduler daemon",
			Action: runDaemon,
		},
		{
			Name:      "add",
			Usage:     "add a scheduled task",
			ArgsUsage: "<name> <cron> <subreddits>",
			Description: "Registers a task. Subreddits are comma-separated\n" +
				"   (e.g. 'r/golang,r/programming'). The cron expression uses the\n" +
				"   standard five fields: minute hour day month weekday.",
			Action: addTask,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "id", Usage: "explicit task id (default: random uuid)"},
				cli.IntFlag{Name: "max-posts", Usage: "maximum posts per subreddit"},
				cli.IntFlag{Name: "retry-count", Value: -1, Usage: "retries after a failed attempt"},
				cli.StringFlag{Name: "retry-delay", Usage: "delay between retries (e.g. 60s)"},
				cli.StringFlag{Name: "timeout", Usage: "per-attempt timeout (e.g. 1h)"},
				cli.BoolFlag{Name: "disabled", Usage: "register the task disabled"},
			},
		},
		{
			Name:   "list",
			Usage:  "list scheduled tasks",
			Action: listTasks,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "status", Value: "all", Usage: "filter: all, enabled or disabled"},
			},
		},
		{
			Name:      "show",
			Usage:     "show one task as JSON",
			ArgsUsage: "<task-id>",
			Action:    showTask,
		},
		{
			Name:      "remove",
			Usage:     "remove a task",
			ArgsUsage: "<task-id>",
			Action:    removeTask,
			Flags: []cli.Flag{
				cli.BoolFlag{Name: "force, f", Usage: "skip the confirmation prompt"},
			},
		},
		{
			Name:      "enable",
			Usage:     "enable a task",
			ArgsUsage: "<task-id>",
			Action:    enableTask,
		},
		{
			Name:      "disable",
			Usage:     "disable a task",
			ArgsUsage: "<task-id>",
			Action:    disableTask,
		},
		{
			Name:   "status",
			Usage:  "show task and download statistics",
			Action: showStatus,
		},
		{
			Name:   "history",
			Usage:  "show the download history",
			Action: showHistory,
			Flags: []cli.Flag{
				cli.StringFlag{Name: "task-id", Usage: "filter by task id"},
				cli.StringFlag{Name: "subreddit", Usage: "filter by subreddit"},
				cli.IntFlag{Name: "limit", Value: 50, Usage: "number of records to show"},
			},
		},
		{
			Name:   "cleanup",
			Usage:  "delete old download history",
			Action: cleanupHistory,
			Flags: []cli.Flag{
				cli.IntFlag{Name: "days", Value: 90, Usage: "keep records newer than this many days"},
			},
		},
		{
			Name:      "validate",
			Usage:     "validate a cron expression",
			ArgsUsage: "<expression>",
			Action:    validateExpr,
		},
		{
			Name:      "test",
			Usage:     "execute a task once, outside the schedule",
			ArgsUsage: "<task-id>",
			Action:    testTask,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "redmark: %s\n", err)
		os.Exit(1)
	}
}
