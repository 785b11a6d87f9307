package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries(path string, n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{
			ChunkID:    filepath.Base(path) + "-" + string(rune('a'+i)),
			SourcePath: path,
			ChunkIndex: i,
			Page:       1,
			Text:       "chunk text",
			Vector:     []float32{float32(i), 0.5, -1},
		}
	}
	return out
}

// TS01: ReplacePath swaps a path's entries and reports the old IDs
func TestEntryStore_ReplacePath(t *testing.T) {
	// Given: a store with three entries for a.pdf
	s, err := OpenEntryStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	old, err := s.ReplacePath(ctx, "/a.pdf", testEntries("/a.pdf", 3))
	require.NoError(t, err)
	assert.Empty(t, old)

	// When: replacing them with two
	old, err = s.ReplacePath(ctx, "/a.pdf", testEntries("/a.pdf", 2))
	require.NoError(t, err)

	// Then: the three previous IDs are returned and two entries remain
	assert.Equal(t, []string{"a.pdf-a", "a.pdf-b", "a.pdf-c"}, old)
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEntryStore_ReplacePathRejectsForeignEntries(t *testing.T) {
	s, err := OpenEntryStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, err = s.ReplacePath(context.Background(), "/a.pdf", testEntries("/b.pdf", 1))

	assert.Error(t, err)
}

// TS02: Every mutation bumps the generation; no-ops do not
func TestEntryStore_Generation(t *testing.T) {
	s, err := OpenEntryStore("")
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	_, err = s.ReplacePath(ctx, "/a.pdf", testEntries("/a.pdf", 1))
	require.NoError(t, err)
	_, err = s.DeletePath(ctx, "/missing.pdf")
	require.NoError(t, err)

	gen, err = s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	ids, err := s.DeletePath(ctx, "/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf-a"}, ids)

	gen, err = s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)
}

// TS04: Get, ForEach and PathCounts read back what was written
func TestEntryStore_Reads(t *testing.T) {
	s, err := OpenEntryStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	_, err = s.ReplacePath(ctx, "/b.pdf", testEntries("/b.pdf", 1))
	require.NoError(t, err)
	_, err = s.ReplacePath(ctx, "/a.pdf", testEntries("/a.pdf", 2))
	require.NoError(t, err)

	got, err := s.Get(ctx, []string{"a.pdf-b", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []float32{1, 0.5, -1}, got["a.pdf-b"].Vector)
	assert.Equal(t, 1, got["a.pdf-b"].ChunkIndex)

	var order []string
	require.NoError(t, s.ForEach(ctx, func(e Entry) error {
		order = append(order, e.ChunkID)
		return nil
	}))
	assert.Equal(t, []string{"a.pdf-a", "a.pdf-b", "b.pdf-a"}, order)

	counts, err := s.PathCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/a.pdf": 2, "/b.pdf": 1}, counts)
}

func TestEntryStore_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	s, err := OpenEntryStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	_, err = s.ReplacePath(ctx, "/a.pdf", testEntries("/a.pdf", 2))
	require.NoError(t, err)
	require.NoError(t, s.SetMeta(ctx, MetaDimensions, "3"))
	require.NoError(t, s.Close())

	reopened, err := OpenEntryStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	v, ok, err := reopened.GetMeta(ctx, MetaDimensions)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestDecodeVector_RejectsTruncatedBlob(t *testing.T) {
	blob := EncodeVector([]float32{1.5, -2})
	require.Len(t, blob, 8)

	v, err := DecodeVector(blob)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5, -2}, v)

	_, err = DecodeVector(blob[:7])
	assert.Error(t, err)
}
