package index

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/store"
)

// rebuildBatch is how many entries are pushed into a derived index at once
// during a rebuild.
const rebuildBatch = 256

func (ix *Indexer) hnswPath() string    { return filepath.Join(ix.dir, hnswFile) }
func (ix *Indexer) chromemPath() string { return filepath.Join(ix.dir, chromemDir) }
func (ix *Indexer) keywordPath() string { return filepath.Join(ix.dir, keywordBase) }

// openDerived opens the keyword and (when the dimension is known) vector
// indexes, rebuilding any that are stale relative to the entries.
func (ix *Indexer) openDerived(ctx context.Context) error {
	gen, err := ix.entries.Generation(ctx)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to read index generation", err)
	}
	count, err := ix.entries.Count(ctx)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to count index entries", err)
	}

	if err := ix.openKeyword(ctx, gen, count); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to open keyword index", err)
	}
	if ix.dims > 0 {
		if err := ix.openVector(ctx, gen, count); err != nil {
			return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to open vector index", err)
		}
	}
	return nil
}

// isCurrent reports whether the derived index recorded under key was
// flushed at generation gen.
func (ix *Indexer) isCurrent(ctx context.Context, key string, gen int64) bool {
	v, ok, err := ix.entries.GetMeta(ctx, key)
	if err != nil || !ok {
		return false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return err == nil && n == gen
}

func (ix *Indexer) openKeyword(ctx context.Context, gen int64, count int) error {
	cfg := store.DefaultBM25Config()
	onDisk := store.GetBM25IndexPath(ix.dir, ix.keywordBackend)

	// Bleve holds an exclusive file lock, so readers never open it.
	canOpen := !ix.readOnly || ix.keywordBackend == store.BM25BackendSQLite
	if canOpen && fileExists(onDisk) && ix.isCurrent(ctx, keywordGenKey(ix.keywordBackend), gen) {
		idx, err := store.NewBM25IndexWithBackend(ix.keywordPath(), cfg, ix.keywordBackend)
		if err != nil {
			return err
		}
		issue := checkCount("keyword", count, idx.Stats().DocumentCount)
		if issue == nil {
			ix.keyword = idx
			return nil
		}
		issue.log()
		_ = idx.Close()
	}

	base := ""
	if !ix.readOnly {
		if err := store.RemoveBM25Indexes(ix.dir); err != nil {
			return err
		}
		base = ix.keywordPath()
	}
	idx, err := store.NewBM25IndexWithBackend(base, cfg, ix.keywordBackend)
	if err != nil {
		return err
	}
	ix.keyword = idx
	return ix.rebuildKeyword(ctx, count)
}

func (ix *Indexer) openVector(ctx context.Context, gen int64, count int) error {
	current := ix.isCurrent(ctx, vectorGenKey(ix.vectorBackend), gen)

	switch ix.vectorBackend {
	case VectorBackendHNSW:
		if current && fileExists(ix.hnswPath()) {
			vs, err := store.OpenHNSWStore(ix.hnswPath())
			if err == nil {
				issue := checkCount("vector", count, vs.Count())
				if issue == nil {
					ix.vector = vs
					return nil
				}
				issue.log()
				_ = vs.Close()
			} else {
				slog.Warn("vector_index_unreadable",
					slog.String("path", ix.hnswPath()),
					slog.String("error", err.Error()))
			}
		}
	case VectorBackendChromem:
		if current && fileExists(ix.chromemPath()) {
			vs, err := store.NewChromemStore(ix.chromemPath(), store.DefaultVectorStoreConfig(ix.dims))
			if err == nil {
				issue := checkCount("vector", count, vs.Count())
				if issue == nil {
					ix.vector = vs
					return nil
				}
				issue.log()
				_ = vs.Close()
			} else {
				slog.Warn("vector_index_unreadable",
					slog.String("path", ix.chromemPath()),
					slog.String("error", err.Error()))
			}
		}
	}

	if err := ix.createVector(ix.dims); err != nil {
		return err
	}
	return ix.rebuildVector(ctx, count)
}

// createVector replaces the vector index with an empty one. Read-only
// indexers keep it in memory.
func (ix *Indexer) createVector(dims int) error {
	if ix.vector != nil {
		_ = ix.vector.Close()
		ix.vector = nil
	}
	cfg := store.DefaultVectorStoreConfig(dims)

	hnswPath, chromemPath := "", ""
	if !ix.readOnly {
		hnswPath, chromemPath = ix.hnswPath(), ix.chromemPath()
		if err := store.RemoveHNSWStore(hnswPath); err != nil {
			return err
		}
		if err := store.RemoveChromemStore(chromemPath); err != nil {
			return err
		}
	}

	switch ix.vectorBackend {
	case VectorBackendChromem:
		vs, err := store.NewChromemStore(chromemPath, cfg)
		if err != nil {
			return err
		}
		ix.vector = vs
	default:
		vs, err := store.NewHNSWStore(hnswPath, cfg)
		if err != nil {
			return err
		}
		ix.vector = vs
	}
	return nil
}

func (ix *Indexer) rebuildVector(ctx context.Context, count int) error {
	if count == 0 {
		return nil
	}
	start := time.Now()

	ids := make([]string, 0, rebuildBatch)
	vecs := make([][]float32, 0, rebuildBatch)
	flush := func() error {
		if len(ids) == 0 {
			return nil
		}
		err := ix.vector.Add(ctx, ids, vecs)
		ids, vecs = ids[:0], vecs[:0]
		return err
	}

	err := ix.entries.ForEach(ctx, func(e store.Entry) error {
		ids = append(ids, e.ChunkID)
		vecs = append(vecs, e.Vector)
		if len(ids) == rebuildBatch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return fmt.Errorf("failed to rebuild vector index: %w", err)
	}

	ix.dirty = true
	slog.Info("derived_index_rebuilt",
		slog.String("index", "vector"),
		slog.String("backend", string(ix.vectorBackend)),
		slog.Int("entries", count),
		slog.Bool("in_memory", ix.readOnly),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (ix *Indexer) rebuildKeyword(ctx context.Context, count int) error {
	if count == 0 {
		return nil
	}
	start := time.Now()

	docs := make([]*store.Document, 0, rebuildBatch)
	flush := func() error {
		if len(docs) == 0 {
			return nil
		}
		err := ix.keyword.Index(ctx, docs)
		docs = docs[:0]
		return err
	}

	err := ix.entries.ForEach(ctx, func(e store.Entry) error {
		docs = append(docs, &store.Document{ID: e.ChunkID, Content: e.Text})
		if len(docs) == rebuildBatch {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		return fmt.Errorf("failed to rebuild keyword index: %w", err)
	}

	ix.dirty = true
	slog.Info("derived_index_rebuilt",
		slog.String("index", "keyword"),
		slog.String("backend", string(ix.keywordBackend)),
		slog.Int("entries", count),
		slog.Bool("in_memory", ix.readOnly),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// compactVector rebuilds the HNSW graph once lazily deleted nodes
// outnumber live ones.
func (ix *Indexer) compactVector(ctx context.Context) error {
	h, ok := ix.vector.(*store.HNSWStore)
	if !ok {
		return nil
	}
	stats := h.Stats()
	if stats.Orphans == 0 || stats.Orphans <= stats.ValidIDs {
		return nil
	}

	count, err := ix.entries.Count(ctx)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to count index entries", err)
	}
	if err := ix.createVector(ix.dims); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to compact vector index", err)
	}
	if err := ix.rebuildVector(ctx, count); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to compact vector index", err)
	}
	slog.Info("vector_index_compacted",
		slog.Int("orphans", stats.Orphans),
		slog.Int("live", stats.ValidIDs))
	return nil
}

func (ix *Indexer) closeDerived() {
	if ix.vector != nil {
		_ = ix.vector.Close()
		ix.vector = nil
	}
	if ix.keyword != nil {
		_ = ix.keyword.Close()
		ix.keyword = nil
	}
}
