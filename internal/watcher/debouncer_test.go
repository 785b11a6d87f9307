package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "/docs/a.pdf", Operation: OpCreate, Timestamp: time.Now()})

	// Then: it comes out after the window
	batch := receive(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "/docs/a.pdf", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_RepeatedWritesCoalesce(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	for range 5 {
		d.Add(FileEvent{Path: "/docs/a.pdf", Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	batch := receive(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_BatchIsSortedByPath(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "/docs/c.pdf", Operation: OpCreate})
	d.Add(FileEvent{Path: "/docs/a.pdf", Operation: OpDelete})
	d.Add(FileEvent{Path: "/docs/b.pdf", Operation: OpModify})

	batch := receive(t, d, time.Second)
	require.Len(t, batch, 3)
	assert.Equal(t, "/docs/a.pdf", batch[0].Path)
	assert.Equal(t, "/docs/b.pdf", batch[1].Path)
	assert.Equal(t, "/docs/c.pdf", batch[2].Path)
}

func TestDebouncer_CreateThenDeleteCancels(t *testing.T) {
	// Given: a temporary file created and removed within the window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()
	d.Add(FileEvent{Path: "/docs/~lock.docx", Operation: OpCreate})
	d.Add(FileEvent{Path: "/docs/~lock.docx", Operation: OpDelete})

	// Then: nothing is emitted
	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch: %v", batch)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestCoalesce(t *testing.T) {
	tests := []struct {
		prev, next Operation
		want       Operation
		keep       bool
	}{
		{OpCreate, OpModify, OpCreate, true},
		{OpCreate, OpDelete, 0, false},
		{OpDelete, OpCreate, OpModify, true},
		{OpModify, OpDelete, OpDelete, true},
		{OpModify, OpModify, OpModify, true},
		{OpRename, OpCreate, OpCreate, true},
	}
	for _, tt := range tests {
		t.Run(tt.prev.String()+"+"+tt.next.String(), func(t *testing.T) {
			op, keep := coalesce(tt.prev, tt.next)
			assert.Equal(t, tt.keep, keep)
			if keep {
				assert.Equal(t, tt.want, op)
			}
		})
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/docs/a.pdf", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "/docs/b.pdf", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
