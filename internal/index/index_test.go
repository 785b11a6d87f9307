package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/refvec/internal/embed"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/extract"
	"github.com/Aman-CERP/refvec/internal/store"
)

// flakyEmbedder fails its first failures calls with err, then delegates to
// a static embedder.
type flakyEmbedder struct {
	*embed.StaticEmbedder
	failures int64
	err      error
	calls    atomic.Int64
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.calls.Add(1) <= f.failures {
		return nil, f.err
	}
	return f.StaticEmbedder.EmbedBatch(ctx, texts)
}

func fastRetry(retries int) rverrors.RetryConfig {
	return rverrors.RetryConfig{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func chunks(path string, texts ...string) []extract.Chunk {
	out := make([]extract.Chunk, len(texts))
	for i, t := range texts {
		out[i] = extract.Chunk{SourcePath: path, Index: i, Page: 1, Text: t}
	}
	return out
}

func openTest(t *testing.T, dir string, e embed.Embedder, opts ...Option) *Indexer {
	t.Helper()
	ix, err := Open(context.Background(), dir, e, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })
	return ix
}

// crash drops the indexer without flushing its derived indexes.
func crash(ix *Indexer) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.closeDerived()
	_ = ix.entries.Close()
	ix.closed = true
}

func TestChunkID_StableAndDistinct(t *testing.T) {
	a := ChunkID("/docs/a.pdf", 0)

	assert.Len(t, a, 32)
	assert.Equal(t, a, ChunkID("/docs/a.pdf", 0))
	assert.NotEqual(t, a, ChunkID("/docs/a.pdf", 1))
	assert.NotEqual(t, a, ChunkID("/docs/b.pdf", 0))
}

// TS01: Upsert then search
func TestIndexer_UpsertAndSearch(t *testing.T) {
	// Given: an index with two documents
	ix := openTest(t, t.TempDir(), embed.NewStaticEmbedder(0))
	ctx := context.Background()

	n, err := ix.Upsert(ctx, "/docs/pumps.txt", chunks("/docs/pumps.txt",
		"Centrifugal pumps need impeller inspection every quarter.",
		"Seal leaks on pumps are logged in the maintenance register."))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = ix.Upsert(ctx, "/docs/crude.txt", chunks("/docs/crude.txt",
		"Crude oil assay results for the northern field."))
	require.NoError(t, err)

	// When: searching for a term only one document has
	results, err := ix.Search(ctx, "impeller inspection", 2)

	// Then: the matching chunk ranks first with full provenance
	require.NoError(t, err)
	require.NotEmpty(t, results)
	top := results[0]
	assert.Equal(t, "/docs/pumps.txt", top.SourcePath)
	assert.Equal(t, 0, top.ChunkIndex)
	assert.Equal(t, 1, top.Page)
	assert.Equal(t, ChunkID("/docs/pumps.txt", 0), top.ChunkID)
	assert.InDelta(t, 1.0, top.Score, 1e-9)
	assert.Contains(t, top.MatchedTerms, "impeller")

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	paths, err := ix.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/docs/pumps.txt": 2, "/docs/crude.txt": 1}, paths)
}

// TS02: Re-upserting a path replaces its entries, never duplicates them
func TestIndexer_UpsertReplaces(t *testing.T) {
	ix := openTest(t, t.TempDir(), embed.NewStaticEmbedder(64))
	ctx := context.Background()

	_, err := ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha one", "alpha two", "alpha three"))
	require.NoError(t, err)

	// When: the file shrinks to one chunk with new text
	_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "bravo replacement"))
	require.NoError(t, err)

	// Then: one entry remains and the old text is gone
	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := ix.Search(ctx, "alpha", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bravo replacement", results[0].Text)
	assert.Equal(t, 1, ix.keyword.Stats().DocumentCount)
	assert.Equal(t, 1, ix.vector.Count())
}

// TS03: Retry exhaustion is an index_error carrying the attempt count
func TestIndexer_RetryExhaustion(t *testing.T) {
	// Given: an embedder that always fails transiently, and 2 retries
	fe := &flakyEmbedder{
		StaticEmbedder: embed.NewStaticEmbedder(32),
		failures:       100,
		err:            rverrors.New(rverrors.ErrCodeEmbeddingFailed, "busy", nil),
	}
	ix := openTest(t, t.TempDir(), fe, WithRetryPolicy(fastRetry(2)))
	ctx := context.Background()

	// When: upserting
	_, err := ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "some text"))

	// Then: three attempts, an index_error, nothing committed
	require.Error(t, err)
	assert.Equal(t, int64(3), fe.calls.Load())
	assert.Equal(t, rverrors.KindIndex, rverrors.KindOf(err))
	re, ok := rverrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "3", re.Details["attempts"])
	assert.Equal(t, "/a.txt", re.Details["path"])

	count, err := ix.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestIndexer_TransientFailureRecovers(t *testing.T) {
	fe := &flakyEmbedder{
		StaticEmbedder: embed.NewStaticEmbedder(32),
		failures:       2,
		err:            errors.New("connection reset"),
	}
	ix := openTest(t, t.TempDir(), fe, WithRetryPolicy(fastRetry(3)))

	n, err := ix.Upsert(context.Background(), "/a.txt", chunks("/a.txt", "some text"))

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int64(3), fe.calls.Load())
}

func TestIndexer_PermanentFailureIsNotRetried(t *testing.T) {
	fe := &flakyEmbedder{
		StaticEmbedder: embed.NewStaticEmbedder(32),
		failures:       100,
		err:            rverrors.New(rverrors.ErrCodeDimensionMismatch, "wrong size", nil),
	}
	ix := openTest(t, t.TempDir(), fe, WithRetryPolicy(fastRetry(3)))

	_, err := ix.Upsert(context.Background(), "/a.txt", chunks("/a.txt", "some text"))

	require.Error(t, err)
	assert.Equal(t, int64(1), fe.calls.Load())
}

func TestIndexer_FailedUpsertKeepsPreviousEntries(t *testing.T) {
	// Given: a committed file
	fe := &flakyEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32)}
	ix := openTest(t, t.TempDir(), fe, WithRetryPolicy(fastRetry(0)))
	ctx := context.Background()
	_, err := ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "first", "second"))
	require.NoError(t, err)

	// When: the next upsert of it fails
	fe.failures = fe.calls.Load() + 1
	fe.err = errors.New("down")
	_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "replacement"))
	require.Error(t, err)

	// Then: the earlier entries are untouched
	paths, err := ix.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"/a.txt": 2}, paths)
}

// TS04: Delete removes only that path
func TestIndexer_Delete(t *testing.T) {
	ix := openTest(t, t.TempDir(), embed.NewStaticEmbedder(32))
	ctx := context.Background()
	_, err := ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha", "alpha again"))
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, "/b.txt", chunks("/b.txt", "bravo"))
	require.NoError(t, err)

	n, err := ix.Delete(ctx, "/a.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = ix.Delete(ctx, "/missing.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	results, err := ix.Search(ctx, "alpha", 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "/b.txt", r.SourcePath)
	}
}

// TS05: Derived indexes lost before a flush are rebuilt from entries
func TestIndexer_RebuildsAfterLostFlush(t *testing.T) {
	for _, tc := range []struct {
		vector  VectorBackend
		keyword store.BM25Backend
	}{
		{VectorBackendHNSW, store.BM25BackendSQLite},
		{VectorBackendChromem, store.BM25BackendBleve},
	} {
		t.Run(fmt.Sprintf("%s+%s", tc.vector, tc.keyword), func(t *testing.T) {
			// Given: a flushed file, then a second file committed without a flush
			dir := t.TempDir()
			opts := []Option{WithVectorBackend(tc.vector), WithKeywordBackend(tc.keyword)}
			ctx := context.Background()

			ix, err := Open(ctx, dir, embed.NewStaticEmbedder(32), opts...)
			require.NoError(t, err)
			_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha reactor notes"))
			require.NoError(t, err)
			require.NoError(t, ix.Flush(ctx))
			_, err = ix.Upsert(ctx, "/b.txt", chunks("/b.txt", "zeppelin hangar survey"))
			require.NoError(t, err)
			crash(ix)

			// When: reopening
			reopened := openTest(t, dir, embed.NewStaticEmbedder(32), opts...)

			// Then: both files are searchable and the derived indexes match entries
			results, err := reopened.Search(ctx, "zeppelin", 1)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "/b.txt", results[0].SourcePath)
			assert.Equal(t, 2, reopened.keyword.Stats().DocumentCount)
			assert.Equal(t, 2, reopened.vector.Count())
		})
	}
}

func TestIndexer_ReopenUsesFlushedIndexes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ix, err := Open(ctx, dir, embed.NewStaticEmbedder(32))
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha reactor notes"))
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	reopened := openTest(t, dir, embed.NewStaticEmbedder(32))

	assert.False(t, reopened.dirty, "current indexes are opened, not rebuilt")
	results, err := reopened.Search(ctx, "reactor", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

// TS06: A different model is a configuration error
func TestOpen_ModelMismatch(t *testing.T) {
	// Given: an index built with a 32-dimension model
	dir := t.TempDir()
	ctx := context.Background()
	ix, err := Open(ctx, dir, embed.NewStaticEmbedder(32))
	require.NoError(t, err)
	_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha"))
	require.NoError(t, err)
	require.NoError(t, ix.Close())

	// When: opening it with a 64-dimension model
	_, err = Open(ctx, dir, embed.NewStaticEmbedder(64))

	// Then: refused with a hint to clean
	require.Error(t, err)
	assert.Equal(t, rverrors.ErrCodeModelMismatch, rverrors.GetCode(err))
	assert.Equal(t, rverrors.KindConfiguration, rverrors.KindOf(err))
	re, _ := rverrors.As(err)
	assert.Contains(t, re.Suggestion, "clean --force")
}

// TS07: Read-only opens never write
func TestOpen_ReadOnly(t *testing.T) {
	t.Run("missing index creates nothing", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "index")
		ix := openTest(t, dir, embed.NewStaticEmbedder(32), WithReadOnly())

		count, err := ix.Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, count)
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))

		_, err = ix.Upsert(context.Background(), "/a.txt", chunks("/a.txt", "x"))
		assert.Error(t, err)
	})

	t.Run("stale index is rebuilt in memory only", func(t *testing.T) {
		// Given: an index whose last upsert was never flushed
		dir := t.TempDir()
		ctx := context.Background()
		ix, err := Open(ctx, dir, embed.NewStaticEmbedder(32))
		require.NoError(t, err)
		_, err = ix.Upsert(ctx, "/a.txt", chunks("/a.txt", "alpha reactor notes"))
		require.NoError(t, err)
		crash(ix)

		// When: opening it read-only and searching
		ro := openTest(t, dir, embed.NewStaticEmbedder(32), WithReadOnly())
		results, err := ro.Search(ctx, "reactor", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		require.NoError(t, ro.Close())

		// Then: the on-disk markers are still stale
		es, err := store.OpenEntryStore(filepath.Join(dir, entriesFile))
		require.NoError(t, err)
		defer func() { _ = es.Close() }()
		_, ok, err := es.GetMeta(ctx, vectorGenKey(VectorBackendHNSW))
		require.NoError(t, err)
		assert.False(t, ok)
		_, err = os.Stat(filepath.Join(dir, hnswFile))
		assert.True(t, os.IsNotExist(err))
	})
}

func TestIndexer_SearchValidation(t *testing.T) {
	ix := openTest(t, t.TempDir(), embed.NewStaticEmbedder(32))
	ctx := context.Background()

	_, err := ix.Search(ctx, "  ", 3)
	assert.Equal(t, rverrors.ErrCodeQueryEmpty, rverrors.GetCode(err))

	_, err = ix.Search(ctx, "anything", 3)
	assert.Equal(t, rverrors.ErrCodeIndexEmpty, rverrors.GetCode(err))
}

func TestIndexer_FlushCompactsOrphanedGraph(t *testing.T) {
	// Given: one path rewritten until lazily deleted nodes dominate
	ix := openTest(t, t.TempDir(), embed.NewStaticEmbedder(32))
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := ix.Upsert(ctx, "/a.txt", chunks("/a.txt", fmt.Sprintf("revision %d", i)))
		require.NoError(t, err)
	}
	h := ix.vector.(*store.HNSWStore)
	require.Equal(t, 3, h.Stats().Orphans)

	// When: flushing
	require.NoError(t, ix.Flush(ctx))

	// Then: the graph holds only live nodes
	h = ix.vector.(*store.HNSWStore)
	assert.Zero(t, h.Stats().Orphans)
	assert.Equal(t, 1, h.Count())
}
