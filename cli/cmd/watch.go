package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/autoqa/internal/cache"
	"github.com/xiaot623/gogo/autoqa/internal/config"
	"github.com/xiaot623/gogo/autoqa/internal/session"
	"github.com/xiaot623/gogo/autoqa/internal/snapshot"
	"github.com/xiaot623/gogo/autoqa/internal/watcher"
)

var flagWatchExitOnFinish bool

var watchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Follow a test run in real time",
	Long:  "Follow a test run in real time: status changes, test case updates and log lines.\n\n" +
		"Log lines are not deduplicated. A line that arrives on the event stream before the\n" +
		"stored log has loaded is printed again when the stored copy arrives.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watchRun(ctx, cmd.OutOrStdout(), cfg, args[0], flagWatchExitOnFinish)
	},
}

func init() {
	watchCmd.Flags().BoolVar(&flagWatchExitOnFinish, "exit-on-finish", false, "Exit once the run completes or fails")
}

// watchRun prints the progress of runID until ctx is done or, with
// exitOnFinish, the run reaches a terminal status.
func watchRun(ctx context.Context, out io.Writer, cfg config.ClientConfig, runID string, exitOnFinish bool) error {
	c := cache.New()
	r := newRenderer(out, c, runID)
	unsubscribe := c.Subscribe(r.OnChange)
	defer unsubscribe()

	var opts []session.Option
	if d := cfg.ReconnectDelay(); d > 0 {
		opts = append(opts, session.WithReconnectDelay(d))
	}

	w, err := watcher.Watch(ctx, runID, c, newClient(cfg), watcher.Config{
		BaseURL:        cfg.ServerURL,
		Credentials:    credentials(cfg),
		SessionOptions: opts,
	})
	if w == nil {
		return err
	}
	defer w.Close()
	if err != nil {
		fmt.Fprintf(out, "warning: %v; showing live events only\n", err)
		go retrySnapshot(ctx, w, cfg.ReconnectDelay())
	}

	if exitOnFinish {
		select {
		case <-r.Finished():
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

// retrySnapshot reloads the snapshot until it succeeds or ctx is done.
// Missing runs and rejected credentials are not retried.
func retrySnapshot(ctx context.Context, w *watcher.Watcher, delay time.Duration) {
	if delay <= 0 {
		delay = session.DefaultReconnectDelay
	}
	for {
		if err := w.Err(); errors.Is(err, snapshot.ErrNotFound) || errors.Is(err, snapshot.ErrUnauthorized) || errors.Is(err, snapshot.ErrForbidden) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := w.Reload(ctx); err == nil {
			return
		}
	}
}
