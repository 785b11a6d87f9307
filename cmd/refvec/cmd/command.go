package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/refvec/internal/config"
	"github.com/Aman-CERP/refvec/internal/embed"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/logging"
	"github.com/Aman-CERP/refvec/internal/pipeline"
	"github.com/Aman-CERP/refvec/internal/ui"
)

// Command is one refvec operation.
type Command int

const (
	CommandStatus Command = iota
	CommandVectorize
	CommandRefresh
	CommandClean
	CommandTest
	CommandWatch
)

func (c Command) String() string {
	switch c {
	case CommandStatus:
		return "status"
	case CommandVectorize:
		return "vectorize"
	case CommandRefresh:
		return "refresh"
	case CommandClean:
		return "clean"
	case CommandTest:
		return "test"
	case CommandWatch:
		return "watch"
	default:
		return "unknown"
	}
}

// Builds reports whether the command creates the data directory when it
// does not exist yet.
func (c Command) Builds() bool {
	switch c {
	case CommandVectorize, CommandRefresh, CommandWatch:
		return true
	}
	return false
}

// Embeds reports whether the command needs a working embedder. The
// others get a placeholder so they run with Ollama down.
func (c Command) Embeds() bool {
	switch c {
	case CommandVectorize, CommandRefresh, CommandTest, CommandWatch:
		return true
	}
	return false
}

// Invocation carries the per-command flags to a handler.
type Invocation struct {
	Command    Command
	JSON       bool
	Force      bool
	Query      string
	QueryGiven bool // false falls back to index.test_query
	K          int
	Debounce   time.Duration
}

// session is what a handler works with once configuration, logging and
// the embedder are set up.
type session struct {
	cfg      *config.Config
	orch     *pipeline.Orchestrator
	renderer ui.Renderer
	out      io.Writer
	errOut   io.Writer
	in       io.Reader
	noColor  bool
}

type handler func(ctx context.Context, s *session, inv Invocation) error

var handlers = map[Command]handler{
	CommandStatus:    runStatus,
	CommandVectorize: runVectorize,
	CommandRefresh:   runVectorize,
	CommandClean:     runClean,
	CommandTest:      runTest,
	CommandWatch:     runWatch,
}

// dispatch builds a session for inv and runs its handler.
func dispatch(cmd *cobra.Command, opts *rootOptions, inv Invocation) error {
	h, ok := handlers[inv.Command]
	if !ok {
		return rverrors.New(rverrors.ErrCodeInternal, fmt.Sprintf("no handler for command %q", inv.Command), nil)
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(opts.root(), opts.configFile)
	if err != nil {
		return err
	}

	logger, cleanup, err := logging.Setup(loggingConfig(cfg, opts, inv.Command, cmd.ErrOrStderr()))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	prev := slog.Default()
	slog.SetDefault(logger)
	defer func() {
		slog.SetDefault(prev)
		cleanup()
	}()

	slog.Debug("command_start",
		slog.String("command", inv.Command.String()),
		slog.String("path", cfg.Paths.Root),
		slog.String("data_dir", cfg.Paths.DataDir))

	var embedder embed.Embedder
	if inv.Command.Embeds() {
		embedder, err = embed.NewEmbedder(ctx, cfg.Embeddings)
		if err != nil {
			return err
		}
	} else {
		embedder = embed.NewStaticEmbedder(0)
	}
	defer func() { _ = embedder.Close() }()

	s := &session{
		cfg:     cfg,
		out:     cmd.OutOrStdout(),
		errOut:  cmd.ErrOrStderr(),
		in:      cmd.InOrStdin(),
		noColor: opts.noColor,
	}
	s.renderer = newRenderer(s, inv.Command)

	s.orch, err = pipeline.New(cfg, embedder, pipeline.WithRenderer(s.renderer))
	if err != nil {
		return err
	}
	return h(ctx, s, inv)
}

// loggingConfig writes the log file under the data directory and mirrors
// warnings to stderr. The file is skipped unless the data directory exists
// or the command builds it inside an existing reference directory, so a
// refused or declined command leaves nothing behind.
func loggingConfig(cfg *config.Config, opts *rootOptions, c Command, stderr io.Writer) logging.Config {
	lc := logging.DefaultConfig(cfg.Paths.DataDir, stderr)
	lc.FilePath = cfg.LogPath()
	lc.Level = cfg.Logging.Level
	lc.MaxSizeMB = cfg.Logging.MaxSizeMB
	lc.MaxFiles = cfg.Logging.MaxFiles

	if !isDir(cfg.Paths.DataDir) && !(c.Builds() && isDir(cfg.Paths.Root)) {
		lc.FilePath = ""
	}
	if opts.verbose {
		lc = lc.Verbose()
	}
	return lc
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// newRenderer picks the progress display. Watch prints one plain block per
// run; the TUI owns the terminal for a single run only.
func newRenderer(s *session, c Command) ui.Renderer {
	switch c {
	case CommandVectorize, CommandRefresh:
		return ui.NewRenderer(ui.NewConfig(s.out,
			ui.WithNoColor(s.noColor || ui.DetectNoColor()),
			ui.WithTitle(s.cfg.Paths.Root)))
	case CommandWatch:
		return ui.NewPlainRenderer(ui.NewConfig(s.out, ui.WithNoColor(true)))
	default:
		return ui.Discard()
	}
}
