package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"
	"github.com/urfave/cli"

	"redmark/internal/app"
)

// runDaemon runs the scheduler until SIGINT or SIGTERM. Under systemd the
// readiness and stopping states are reported via sd_notify (Type=notify).
func runDaemon(c *cli.Context) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath: c.GlobalString("config"),
		Fetch:      app.NopFetch,
	})
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}
	_, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyReady)

	<-ctx.Done()

	_, _ = sdnotify.SdNotify(false, sdnotify.SdNotifyStopping)
	return a.Stop(context.Background())
}
