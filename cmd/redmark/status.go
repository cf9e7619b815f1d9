package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli"

	"redmark/internal/storage"
)

func showStatus(c *cli.Context) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func showHistory(c *cli.Context) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.History(context.Background(), storage.HistoryFilter{
		TaskID:    c.String("task-id"),
		Subreddit: c.String("subreddit"),
		Limit:     c.Int("limit"),
	})
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no downloads")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "DOWNLOADED\tSUBREDDIT\tPOST\tTITLE\tTASK")
	for _, r := range recs {
		title := r.Title
		if len(title) > 60 {
			title = title[:57] + "..."
		}
		taskID := r.TaskID
		if taskID == "" {
			taskID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.DownloadedAt.Local().Format("2006-01-02 15:04"),
			r.Subreddit, r.PostID, title, taskID)
	}
	return w.Flush()
}

func cleanupHistory(c *cli.Context) error {
	st, _, err := openStore(c)
	if err != nil {
		return err
	}
	defer st.Close()

	days := c.Int("days")
	if days <= 0 {
		return fmt.Errorf("--days must be positive")
	}
	deleted, err := st.CleanupHistory(context.Background(), days)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d history records older than %d days\n", deleted, days)
	return nil
}
