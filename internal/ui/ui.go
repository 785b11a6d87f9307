// Package ui renders pipeline progress and index status in the terminal.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage is a phase of a vectorize run.
type Stage int

const (
	// StageScanning lists and fingerprints the reference directory.
	StageScanning Stage = iota
	// StageCleanup removes entries of deleted files.
	StageCleanup
	// StageExtracting turns a document into chunks.
	StageExtracting
	// StageIndexing embeds chunks and writes them to the index.
	StageIndexing
	// StageComplete means the run finished.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageCleanup:
		return "Cleanup"
	case StageExtracting:
		return "Extracting"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageCleanup:
		return "CLEAN"
	case StageExtracting:
		return "EXTRACT"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent reports movement within a stage. Current and Total count
// files; Total is 0 when unknown.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent reports a failed file, or a warning when IsWarn is set.
type ErrorEvent struct {
	File   string
	Kind   string // error kind, e.g. "extraction_error"
	Err    error
	IsWarn bool
}

// StageTimings is the time spent per stage over a run.
type StageTimings struct {
	Scan    time.Duration
	Extract time.Duration
	Index   time.Duration
}

// EmbedderInfo describes the embedding backend used by a run.
type EmbedderInfo struct {
	Backend    string // "ollama" or "static"
	Model      string
	Dimensions int
}

// CompletionStats summarizes a finished run.
type CompletionStats struct {
	Mode      string // "vectorize" or "refresh"
	Scanned   int
	Processed int
	Skipped   int
	Failed    int
	Deleted   int
	Chunks    int
	Duration  time.Duration
	Stages    StageTimings
	Embedder  EmbedderInfo
}

// Renderer displays the progress of a run.
type Renderer interface {
	Start(ctx context.Context) error
	UpdateProgress(event ProgressEvent)
	AddError(event ErrorEvent)
	Complete(stats CompletionStats)
	Stop() error
}

// Config configures renderer selection.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
	Title      string // shown in the TUI header, usually the reference directory
}

// ConfigOption modifies a Config.
type ConfigOption func(*Config)

// WithForcePlain forces plain text output.
func WithForcePlain(force bool) ConfigOption {
	return func(c *Config) {
		c.ForcePlain = force
	}
}

// WithNoColor disables color output.
func WithNoColor(noColor bool) ConfigOption {
	return func(c *Config) {
		c.NoColor = noColor
	}
}

// WithTitle sets the TUI header text.
func WithTitle(title string) ConfigOption {
	return func(c *Config) {
		c.Title = title
	}
}

// NewConfig creates a Config writing to output.
func NewConfig(output io.Writer, opts ...ConfigOption) Config {
	cfg := Config{Output: output}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRenderer returns a TUI renderer for interactive terminals and a plain
// renderer for pipes, CI, or when plain output is forced.
func NewRenderer(cfg Config) Renderer {
	if cfg.ForcePlain || !IsTTY(cfg.Output) || DetectCI() {
		return NewPlainRenderer(cfg)
	}

	tui, err := NewTUIRenderer(cfg)
	if err != nil {
		return NewPlainRenderer(cfg)
	}
	return tui
}

// Discard returns a renderer that prints nothing.
func Discard() Renderer {
	return NewPlainRenderer(NewConfig(io.Discard))
}

// IsTTY checks if w is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	for _, v := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"} {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}
