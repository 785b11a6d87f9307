package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// keywordBackends returns an in-memory index of every backend.
func keywordBackends(t *testing.T) map[BM25Backend]BM25Index {
	t.Helper()
	out := make(map[BM25Backend]BM25Index)
	for _, b := range []BM25Backend{BM25BackendSQLite, BM25BackendBleve} {
		idx, err := NewBM25IndexWithBackend("", DefaultBM25Config(), b)
		require.NoError(t, err)
		t.Cleanup(func() { _ = idx.Close() })
		out[b] = idx
	}
	return out
}

var proseDocs = []*Document{
	{ID: "1", Content: "The refinery report covers crude throughput for the quarter."},
	{ID: "2", Content: "Quarterly maintenance schedules for pumps and valves."},
	{ID: "3", Content: "Crude oil pricing and throughput forecasts."},
}

// TS01: Index and search prose
func TestBM25Index_IndexAndSearch(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			// Given: three prose documents
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))

			// When: searching a term two of them share
			results, err := idx.Search(ctx, "throughput", 10)
			require.NoError(t, err)

			// Then: exactly those two are returned
			ids := make([]string, 0, len(results))
			for _, r := range results {
				ids = append(ids, r.DocID)
			}
			assert.ElementsMatch(t, []string{"1", "3"}, ids)
			assert.Equal(t, 3, idx.Stats().DocumentCount)
		})
	}
}

// TS02: Any query term is enough to match
func TestBM25Index_SearchMatchesAnyTerm(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))

			results, err := idx.Search(ctx, "pumps throughput", 10)
			require.NoError(t, err)

			assert.Len(t, results, 3)
		})
	}
}

func TestBM25Index_SearchIgnoresCase(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))

			results, err := idx.Search(ctx, "VALVES", 10)
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.Equal(t, "2", results[0].DocID)
		})
	}
}

func TestBM25Index_EmptyAndStopWordQueries(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))

			results, err := idx.Search(ctx, "   ", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "the and of", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

// TS03: Reindexing an ID replaces its content
func TestBM25Index_ReindexReplaces(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))
			require.NoError(t, idx.Index(ctx, []*Document{{ID: "2", Content: "compressor overhaul"}}))

			results, err := idx.Search(ctx, "valves", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			results, err = idx.Search(ctx, "compressor", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, 3, idx.Stats().DocumentCount)
		})
	}
}

// TS04: Delete removes documents from results and counts
func TestBM25Index_Delete(t *testing.T) {
	for name, idx := range keywordBackends(t) {
		t.Run(string(name), func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, proseDocs))

			require.NoError(t, idx.Delete(ctx, []string{"1", "missing"}))

			results, err := idx.Search(ctx, "refinery", 10)
			require.NoError(t, err)
			assert.Empty(t, results)

			assert.Equal(t, 2, idx.Stats().DocumentCount)
		})
	}
}

// TS05: On-disk indexes survive reopen
func TestBM25Index_Persistence(t *testing.T) {
	for _, backend := range []BM25Backend{BM25BackendSQLite, BM25BackendBleve} {
		t.Run(string(backend), func(t *testing.T) {
			dir := t.TempDir()
			base := filepath.Join(dir, "bm25")
			idx, err := NewBM25IndexWithBackend(base, DefaultBM25Config(), backend)
			require.NoError(t, err)
			require.NoError(t, idx.Index(context.Background(), proseDocs))
			require.NoError(t, idx.Save())
			require.NoError(t, idx.Close())

			reopened, err := NewBM25IndexWithBackend(base, DefaultBM25Config(), backend)
			require.NoError(t, err)

			results, err := reopened.Search(context.Background(), "pricing", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "3", results[0].DocID)
			require.NoError(t, reopened.Close())

			require.NoError(t, RemoveBM25Indexes(dir))
			assert.NoFileExists(t, GetBM25IndexPath(dir, BM25BackendSQLite))
			assert.NoDirExists(t, GetBM25IndexPath(dir, BM25BackendBleve))
		})
	}
}

func TestNewBM25IndexWithBackend_Unknown(t *testing.T) {
	_, err := NewBM25IndexWithBackend("", DefaultBM25Config(), "lucene")
	assert.Error(t, err)
}
