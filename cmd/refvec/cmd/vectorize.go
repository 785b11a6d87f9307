package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/refvec/internal/output"
	"github.com/Aman-CERP/refvec/internal/pipeline"
)

func newVectorizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "vectorize",
		Short: "Index new, changed and previously failed documents",
		Long: `Scan the directory and bring the index up to date. Documents whose
fingerprint is unchanged are skipped; documents removed from the directory
are removed from the index.

A document that cannot be extracted or embedded is recorded as failed and
retried on the next run. The run continues past it and exits non-zero.
Interrupting with Ctrl+C keeps every document completed so far.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, opts, Invocation{Command: CommandVectorize})
		},
	}
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-process every document regardless of fingerprint",
		Long: `Like vectorize, but every document is extracted and embedded again.
Use it after changing chunking settings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, opts, Invocation{Command: CommandRefresh})
		},
	}
}

func runVectorize(ctx context.Context, s *session, inv Invocation) error {
	// Ctrl+C cancels the run between documents.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}

	var (
		run *pipeline.Run
		err error
	)
	if inv.Command == CommandRefresh {
		run, err = s.orch.Refresh(ctx)
	} else {
		run, err = s.orch.Vectorize(ctx)
	}
	_ = s.renderer.Stop()
	if err != nil {
		return err
	}

	return reportFailures(s, run)
}

// reportFailures lists the documents a finished run could not process.
func reportFailures(s *session, run *pipeline.Run) error {
	if run.Succeeded() {
		return nil
	}

	out := output.New(s.out)
	out.Newline()
	out.Errorf("Failed documents:")
	for _, f := range run.Failures {
		out.Itemf("✗", "%s (%s): %s", filepath.Base(f.Path), f.Kind, f.Message)
	}
	return &failedFilesError{count: len(run.Failures)}
}
