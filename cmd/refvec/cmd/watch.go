package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/refvec/internal/output"
	"github.com/Aman-CERP/refvec/internal/watcher"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Vectorize, then keep the index in step with the directory",
		Long: `Run vectorize once, then watch the directory and run it again whenever
documents are added, changed or removed. Bursts of changes are debounced
into a single run.

The run lock is held for the whole session, so other writers are refused
until watch exits. Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, opts, Invocation{Command: CommandWatch, Debounce: debounce})
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", 0, "Quiet period before a run (default watch.debounce)")

	return cmd
}

func runWatch(ctx context.Context, s *session, inv Invocation) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	release, err := s.orch.Hold()
	if err != nil {
		return err
	}
	defer release()

	debounce := inv.Debounce
	if debounce <= 0 {
		debounce = s.cfg.Watch.Debounce
	}

	if err := watchRun(ctx, s); err != nil {
		return quiet(ctx, err)
	}

	w, err := watcher.New(s.cfg.Paths.Root, watcher.Options{
		Debounce: debounce,
		Filter:   s.orch.Accepts,
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	output.New(s.out).Statusf("👀", "Watching %s (%s). Press Ctrl+C to stop.", s.cfg.Paths.Root, w.Mode())

	events, errs := w.Events(), w.Errors()
	for events != nil {
		select {
		case batch, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			slog.Info("watch_batch",
				slog.Int("events", len(batch)),
				slog.String("first", batch[0].Path))
			if err := watchRun(ctx, s); err != nil {
				_ = w.Stop()
				<-done
				return quiet(ctx, err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		}
	}

	return quiet(ctx, <-done)
}

// watchRun performs one vectorize run. Failed documents are reported and
// retried on the next change; only errors that stop the run end watch.
func watchRun(ctx context.Context, s *session) error {
	run, err := s.orch.Vectorize(ctx)
	if err != nil {
		return err
	}
	_ = reportFailures(s, run)
	return nil
}

// quiet treats the end of the session via Ctrl+C as success.
func quiet(ctx context.Context, err error) error {
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		return nil
	}
	return err
}
