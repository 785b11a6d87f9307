package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/refvec/internal/index"
)

// Test runs a read-only search against the index. k <= 0 uses the
// configured search limit. An empty or missing index is an error.
func (o *Orchestrator) Test(ctx context.Context, query string, k int) ([]index.SearchResult, error) {
	if k <= 0 {
		k = o.cfg.Index.SearchLimit
	}

	ix, err := o.openIndex(ctx, true)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ix.Close() }()

	start := time.Now()
	results, err := ix.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	slog.Info("test_query",
		slog.String("query", query),
		slog.Int("k", k),
		slog.Int("results", len(results)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return results, nil
}
