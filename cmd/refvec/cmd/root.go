// Package cmd provides the CLI commands for refvec.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/pkg/version"
)

// PathEnv names the reference directory when --path is not given.
const PathEnv = "REFVEC_PATH"

// Exit codes returned by Execute.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitInterrupted = 130
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	path       string
	configFile string
	verbose    bool
	noColor    bool
}

// root resolves the reference directory: --path, then $REFVEC_PATH, then
// the working directory.
func (o *rootOptions) root() string {
	if o.path != "" {
		return o.path
	}
	if env := os.Getenv(PathEnv); env != "" {
		return env
	}
	return "."
}

// NewRootCmd creates the root command for the refvec CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "refvec",
		Short: "Keep a searchable vector index of a reference-document directory",
		Long: `refvec extracts text from the PDF, Word, Excel, Markdown and plain-text
documents placed directly in a directory, embeds it, and keeps a local
vector index in step with the directory.

Runs are incremental: only new, changed or previously failed documents are
processed, and documents removed from the directory are removed from the
index. A failed document never stops the run.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("refvec version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.path, "path", "p", "", "Reference document directory (default $"+PathEnv+" or the current directory)")
	pf.StringVar(&opts.configFile, "config", "", "Config file (default <path>/.refvec.yaml)")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level and mirror all of it to stderr (warnings are always mirrored)")
	pf.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newVectorizeCmd(opts))
	cmd.AddCommand(newRefreshCmd(opts))
	cmd.AddCommand(newCleanCmd(opts))
	cmd.AddCommand(newTestCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	err := root.Execute()
	return report(root.ErrOrStderr(), err)
}

// failedFilesError ends a run that completed but left documents failed.
// The failures have already been listed, so only the count is reported.
type failedFilesError struct {
	count int
}

func (e *failedFilesError) Error() string {
	return fmt.Sprintf("%d document(s) failed", e.count)
}

// report prints err for the terminal and maps it to an exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return ExitOK
	}

	var failed *failedFilesError
	switch {
	case errors.As(err, &failed):
		_, _ = fmt.Fprintf(w, "%s; run 'refvec status' for details.\n", failed.Error())
		return ExitFailure
	case errors.Is(err, context.Canceled):
		_, _ = fmt.Fprintln(w, "Interrupted. Completed documents are saved; rerun to resume.")
		return ExitInterrupted
	}

	if _, ok := rverrors.As(err); ok {
		_, _ = fmt.Fprint(w, rverrors.FormatForCLI(err))
	} else {
		_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	}
	return ExitFailure
}
