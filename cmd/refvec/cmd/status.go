package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/ui"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which documents are indexed, pending or failed",
		Long: `Compare the directory with the metadata store and report, per document,
whether it is up to date, needs processing, or failed on its last attempt.

status only reads. It never creates the data directory, and it always
exits 0; problems are printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := dispatch(cmd, opts, Invocation{Command: CommandStatus, JSON: jsonOutput})
			if err != nil {
				_, _ = fmt.Fprint(cmd.ErrOrStderr(), rverrors.FormatForCLI(err))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output status as JSON")

	return cmd
}

func runStatus(ctx context.Context, s *session, inv Invocation) error {
	report, err := s.orch.Status(ctx)
	if err != nil {
		return err
	}

	r := ui.NewStatusRenderer(s.out, s.noColor)
	if inv.JSON {
		return r.RenderJSON(report.StatusInfo())
	}
	return r.Render(report.StatusInfo())
}
