package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces events per path and emits them as one batch once no
// new event arrived for the window. Per path:
//   - CREATE then MODIFY stays CREATE
//   - CREATE then DELETE cancels out
//   - DELETE then CREATE becomes MODIFY (the file was replaced)
//   - anything else keeps the latest operation
type Debouncer struct {
	window time.Duration
	out    chan []FileEvent

	mu      sync.Mutex
	pending map[string]FileEvent
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:  window,
		out:     make(chan []FileEvent, 4),
		pending: make(map[string]FileEvent),
	}
}

// Add records an event and restarts the window.
func (d *Debouncer) Add(ev FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if prev, ok := d.pending[ev.Path]; ok {
		op, keep := coalesce(prev.Operation, ev.Operation)
		if !keep {
			delete(d.pending, ev.Path)
		} else {
			ev.Operation = op
			d.pending[ev.Path] = ev
		}
	} else {
		d.pending[ev.Path] = ev
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func coalesce(prev, next Operation) (Operation, bool) {
	switch {
	case prev == OpCreate && next == OpModify:
		return OpCreate, true
	case prev == OpCreate && next == OpDelete:
		return 0, false
	case prev == OpDelete && next == OpCreate:
		return OpModify, true
	default:
		return next, true
	}
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}

	batch := make([]FileEvent, 0, len(d.pending))
	for _, ev := range d.pending {
		batch = append(batch, ev)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].Path < batch[j].Path })
	d.pending = make(map[string]FileEvent)

	select {
	case d.out <- batch:
	default:
		// A batch is already waiting; its run rescans the whole directory
		// and picks these changes up too.
		slog.Debug("watch_batch_merged", slog.Int("events", len(batch)))
	}
}

// Output delivers the batches. Closed by Stop.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.out
}

// Stop discards pending events and closes Output. Safe to call more than
// once.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = nil
	close(d.out)
}
