// Package watcher reports changes to the documents of one reference
// directory.
//
// fsnotify is used where the platform supports it; otherwise the directory
// is polled. Either way events are debounced, so a document being copied
// in or saved several times produces one batch:
//
//	w, err := watcher.New(root, watcher.Options{Filter: sc.Accepts})
//	if err != nil {
//	    return err
//	}
//	go func() { _ = w.Run(ctx) }()
//	for batch := range w.Events() {
//	    // re-run vectorize
//	}
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Operation is the kind of change observed on a document.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change.
type FileEvent struct {
	Path      string // absolute path
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// Debounce is how long the directory must be quiet before a batch is
	// emitted. Default 2s.
	Debounce time.Duration
	// PollInterval is the rescan interval when fsnotify is unavailable.
	// Default 5s.
	PollInterval time.Duration
	// Filter selects the file names worth reporting. nil accepts all.
	Filter func(name string) bool
	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// WithDefaults fills zero values.
func (o Options) WithDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 2 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Watcher watches the files directly inside one directory.
type Watcher struct {
	root      string
	opts      Options
	fs        *fsnotify.Watcher
	debouncer *Debouncer
	events    chan []FileEvent
	errors    chan error

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New creates a watcher for root. It falls back to polling when fsnotify
// cannot be initialized.
func New(root string, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path is not a directory: %s", abs)
	}

	opts = opts.WithDefaults()
	w := &Watcher{
		root:      abs,
		opts:      opts,
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, 16),
		errors:    make(chan error, 8),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			if err = fsw.Add(abs); err == nil {
				w.fs = fsw
			} else {
				_ = fsw.Close()
			}
		}
		if err != nil {
			slog.Warn("watch_fsnotify_unavailable",
				slog.String("path", abs),
				slog.String("error", err.Error()))
		}
	}
	return w, nil
}

// Mode reports "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fs != nil {
		return "fsnotify"
	}
	return "polling"
}

// Events delivers debounced batches, sorted by path. Closed when Run
// returns.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors delivers non-fatal watch errors. Closed when Run returns.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Run watches until ctx is done or Stop is called, then stops the
// watcher. It returns ctx.Err() when the context ended it.
func (w *Watcher) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.forward(ctx)
	}()

	slog.Info("watch_started", slog.String("path", w.root), slog.String("mode", w.Mode()))

	var err error
	if w.fs != nil {
		err = w.runFsnotify(ctx)
	} else {
		err = w.runPolling(ctx)
	}
	_ = w.Stop()
	<-done
	close(w.events)
	close(w.errors)
	return err
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

// handle converts an fsnotify event. Only regular files directly in the
// root that pass the filter are reported.
func (w *Watcher) handle(ev fsnotify.Event) {
	if filepath.Dir(ev.Name) != w.root || !w.accepts(filepath.Base(ev.Name)) {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}
	if op == OpCreate || op == OpModify {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return
		}
	}
	w.debouncer.Add(FileEvent{Path: ev.Name, Operation: op, Timestamp: time.Now()})
}

type snapshot struct {
	size    int64
	modTime time.Time
}

func (w *Watcher) runPolling(ctx context.Context) error {
	prev := w.snapshot()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case <-ticker.C:
			cur := w.snapshot()
			for _, ev := range diffSnapshots(prev, cur) {
				w.debouncer.Add(ev)
			}
			prev = cur
		}
	}
}

func (w *Watcher) snapshot() map[string]snapshot {
	out := make(map[string]snapshot)
	entries, err := os.ReadDir(w.root)
	if err != nil {
		w.emitError(fmt.Errorf("failed to read watch directory: %w", err))
		return out
	}
	for _, e := range entries {
		if e.IsDir() || !w.accepts(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out[filepath.Join(w.root, e.Name())] = snapshot{size: info.Size(), modTime: info.ModTime()}
	}
	return out
}

// diffSnapshots derives the events between two polls.
func diffSnapshots(prev, cur map[string]snapshot) []FileEvent {
	now := time.Now()
	var events []FileEvent
	for path, s := range cur {
		old, ok := prev[path]
		switch {
		case !ok:
			events = append(events, FileEvent{Path: path, Operation: OpCreate, Timestamp: now})
		case old != s:
			events = append(events, FileEvent{Path: path, Operation: OpModify, Timestamp: now})
		}
	}
	for path := range prev {
		if _, ok := cur[path]; !ok {
			events = append(events, FileEvent{Path: path, Operation: OpDelete, Timestamp: now})
		}
	}
	return events
}

func (w *Watcher) accepts(name string) bool {
	return w.opts.Filter == nil || w.opts.Filter(name)
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			select {
			case w.events <- batch:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
		slog.Warn("watch_error_dropped", slog.String("error", err.Error()))
	}
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fs != nil {
		_ = w.fs.Close()
	}
	return nil
}
