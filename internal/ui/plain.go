package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI logs and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.Kind != "" {
		prefix += " (" + event.Kind + ")"
	}

	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	mode := stats.Mode
	if mode == "" {
		mode = "vectorize"
	}
	_, _ = fmt.Fprintf(r.out, "Complete (%s): %d processed, %d skipped, %d failed, %d deleted; %d chunks indexed in %s\n",
		mode, stats.Processed, stats.Skipped, stats.Failed, stats.Deleted, stats.Chunks,
		stats.Duration.Round(100*time.Millisecond))

	if stats.Stages.Extract > 0 || stats.Stages.Index > 0 {
		_, _ = fmt.Fprintf(r.out, "  scan %s, extract %s, index %s\n",
			stats.Stages.Scan.Round(time.Millisecond),
			stats.Stages.Extract.Round(time.Millisecond),
			stats.Stages.Index.Round(time.Millisecond))
	}

	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintf(r.out, "  embedder: %s (%s, %d dims)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

// Errors returns the error events seen so far.
func (r *PlainRenderer) Errors() []ErrorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ErrorEvent, len(r.errors))
	copy(out, r.errors)
	return out
}

var _ Renderer = (*PlainRenderer)(nil)
