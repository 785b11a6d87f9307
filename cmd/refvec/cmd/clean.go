package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/refvec/internal/output"
	"github.com/Aman-CERP/refvec/internal/pipeline"
)

func newCleanCmd(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Delete the index and all fingerprint records",
		Long: `Remove every index entry and fingerprint record, so the next vectorize
processes all documents from scratch. The documents themselves are never
touched.

Asks for confirmation unless --force is given. clean also works when the
metadata store is too damaged to open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return dispatch(cmd, opts, Invocation{Command: CommandClean, Force: force})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip the confirmation prompt")

	return cmd
}

func runClean(ctx context.Context, s *session, inv Invocation) error {
	out := output.New(s.out)
	confirm := func(records, entries int) bool {
		return out.Confirm(s.in, fmt.Sprintf("This deletes %d records and %d index entries in %s.\nContinue?",
			records, entries, s.cfg.Paths.DataDir))
	}

	res, err := s.orch.Clean(ctx, pipeline.CleanOptions{Force: inv.Force, Confirm: confirm})
	if err != nil {
		return err
	}

	if res.Aborted {
		out.Warningf("Aborted; nothing was removed.")
		return nil
	}
	out.Successf("Removed %d records and %d index entries from %s", res.Records, res.Entries, s.cfg.Paths.DataDir)
	return nil
}
