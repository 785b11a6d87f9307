package index

import (
	"context"
	"log/slog"
	"strings"
	"time"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// minCandidates is the smallest candidate list taken from each index
// before fusion.
const minCandidates = 20

// Search returns up to k chunks ranked by fused vector and keyword
// relevance to query.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, rverrors.New(rverrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if k <= 0 {
		return nil, rverrors.New(rverrors.ErrCodeInvalidInput, "result count must be positive", nil)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil, errClosed
	}

	count, err := ix.entries.Count(ctx)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "failed to read index", err)
	}
	if count == 0 {
		return nil, rverrors.New(rverrors.ErrCodeIndexEmpty, "index is empty", nil).
			WithSuggestion("run 'refvec vectorize' first")
	}

	start := time.Now()
	candidates := max(k*3, minCandidates)

	keywordHits, err := ix.keyword.Search(ctx, query, candidates)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "keyword search failed", err)
	}

	if ix.vector == nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "vector index is not available", nil)
	}
	qvec, err := rverrors.RetryWithResult(ctx, ix.retry, func() ([]float32, error) {
		return ix.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "failed to embed query", err)
	}
	vectorHits, err := ix.vector.Search(ctx, qvec, candidates)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "vector search failed", err)
	}

	fused := ix.fusion.Fuse(keywordHits, vectorHits, ix.weights)
	if len(fused) > k {
		fused = fused[:k]
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.ChunkID
	}
	found, err := ix.entries.Get(ctx, ids)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeSearchFailed, "failed to load results", err)
	}

	results := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		e, ok := found[f.ChunkID]
		if !ok {
			// Derived index ahead of entries; skip rather than fail.
			continue
		}
		results = append(results, SearchResult{
			ChunkID:      e.ChunkID,
			SourcePath:   e.SourcePath,
			ChunkIndex:   e.ChunkIndex,
			Page:         e.Page,
			Text:         e.Text,
			Score:        f.RRFScore,
			VectorScore:  f.VectorScore,
			KeywordScore: f.KeywordScore,
			MatchedTerms: f.MatchedTerms,
		})
	}

	slog.Debug("search_done",
		slog.String("query", query),
		slog.Int("keyword_hits", len(keywordHits)),
		slog.Int("vector_hits", len(vectorHits)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}
