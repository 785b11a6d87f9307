// Package index stores embedded chunks and answers similarity queries.
//
// The entries table in index.db is the source of truth. The vector and
// keyword indexes are derived from it: each records the entries generation
// it was last flushed at, and a stale one is rebuilt on open.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Aman-CERP/refvec/internal/embed"
	rverrors "github.com/Aman-CERP/refvec/internal/errors"
	"github.com/Aman-CERP/refvec/internal/extract"
	"github.com/Aman-CERP/refvec/internal/store"
)

// VectorBackend selects the derived vector index.
type VectorBackend string

const (
	// VectorBackendHNSW is a coder/hnsw graph saved as a snapshot (default).
	VectorBackendHNSW VectorBackend = "hnsw"
	// VectorBackendChromem is a chromem-go collection persisted per document.
	VectorBackendChromem VectorBackend = "chromem"
)

// File names inside the index directory.
const (
	entriesFile = "index.db"
	hnswFile    = "vectors.hnsw"
	chromemDir  = "chromem"
	keywordBase = "bm25"
)

// Meta keys recording the generation each derived index was flushed at.
// The backend is part of the key so switching backends forces a rebuild.
func vectorGenKey(b VectorBackend) string     { return "vector_generation:" + string(b) }
func keywordGenKey(b store.BM25Backend) string { return "keyword_generation:" + string(b) }

// SearchResult is one ranked chunk returned by Search.
type SearchResult struct {
	ChunkID      string
	SourcePath   string
	ChunkIndex   int
	Page         int
	Text         string
	Score        float64 // fused score, best result is 1.0
	VectorScore  float64
	KeywordScore float64
	MatchedTerms []string
}

// ChunkID derives the stable identifier of chunk index of path, so
// re-processing a file overwrites its entries instead of duplicating them.
func ChunkID(path string, index int) string {
	sum := sha256.Sum256([]byte(path + "#" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:])[:32]
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithRetryPolicy sets the bounded retry policy for embedding calls.
func WithRetryPolicy(p rverrors.RetryConfig) Option {
	return func(ix *Indexer) {
		ix.retry = p
	}
}

// WithBatchSize sets how many chunk texts go to the embedder per call.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) {
		if n > 0 {
			ix.batchSize = min(n, embed.MaxBatchSize)
		}
	}
}

// WithVectorBackend selects the vector index backend.
func WithVectorBackend(b VectorBackend) Option {
	return func(ix *Indexer) {
		if b != "" {
			ix.vectorBackend = b
		}
	}
}

// WithKeywordBackend selects the keyword index backend.
func WithKeywordBackend(b store.BM25Backend) Option {
	return func(ix *Indexer) {
		if b != "" {
			ix.keywordBackend = b
		}
	}
}

// WithReadOnly opens the index for queries only. Nothing on disk is
// modified; stale derived indexes are rebuilt in memory.
func WithReadOnly() Option {
	return func(ix *Indexer) {
		ix.readOnly = true
	}
}

// WithSearchWeights sets the fusion weights and RRF constant.
func WithSearchWeights(w Weights, rrfK int) Option {
	return func(ix *Indexer) {
		ix.weights = w
		ix.fusion = newRRFFusion(rrfK)
	}
}

// Indexer owns the entries store and the derived indexes in one directory.
// Methods are safe for concurrent use but serialize on one lock.
type Indexer struct {
	mu sync.Mutex

	dir      string
	embedder embed.Embedder
	entries  *store.EntryStore
	vector   store.VectorStore // nil until the dimension is known
	keyword  store.BM25Index

	retry          rverrors.RetryConfig
	batchSize      int
	vectorBackend  VectorBackend
	keywordBackend store.BM25Backend
	readOnly       bool
	weights        Weights
	fusion         *rrfFusion

	dims int

	// dirty means derived indexes changed since the last flush. stale
	// means a derived update failed, so they must not be marked current.
	dirty  bool
	stale  bool
	closed bool
}

// Open opens or creates the index in dir for embedder. An existing index
// built with a different model or dimension is a configuration error.
func Open(ctx context.Context, dir string, embedder embed.Embedder, opts ...Option) (*Indexer, error) {
	if embedder == nil {
		return nil, rverrors.New(rverrors.ErrCodeEmbedderMissing, "embedder is required", nil)
	}

	ix := &Indexer{
		dir:            dir,
		embedder:       embedder,
		retry:          rverrors.DefaultRetryConfig(),
		batchSize:      embed.DefaultBatchSize,
		vectorBackend:  VectorBackendHNSW,
		keywordBackend: store.BM25BackendSQLite,
		weights:        DefaultWeights(),
		fusion:         newRRFFusion(DefaultRRFConstant),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.retry.ShouldRetry == nil {
		ix.retry.ShouldRetry = transient
	}

	switch ix.vectorBackend {
	case VectorBackendHNSW, VectorBackendChromem:
	default:
		return nil, rverrors.ConfigurationError(fmt.Sprintf("unknown vector backend %q", ix.vectorBackend), nil)
	}
	switch ix.keywordBackend {
	case store.BM25BackendSQLite, store.BM25BackendBleve:
	default:
		return nil, rverrors.ConfigurationError(fmt.Sprintf("unknown keyword backend %q", ix.keywordBackend), nil)
	}

	entriesPath := filepath.Join(dir, entriesFile)
	if ix.readOnly && !fileExists(entriesPath) {
		entriesPath = ""
	}
	entries, err := store.OpenEntryStore(entriesPath)
	if err != nil {
		return nil, rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", filepath.Join(dir, entriesFile)).
			WithSuggestion("reset the index with 'refvec clean --force'")
	}
	ix.entries = entries

	if err := ix.checkModel(ctx); err != nil {
		_ = entries.Close()
		return nil, err
	}

	if err := ix.openDerived(ctx); err != nil {
		ix.closeDerived()
		_ = entries.Close()
		return nil, err
	}

	return ix, nil
}

// checkModel compares the embedder with the model recorded in the index.
func (ix *Indexer) checkModel(ctx context.Context) error {
	ix.dims = ix.embedder.Dimensions()

	model, hasModel, err := ix.entries.GetMeta(ctx, store.MetaModel)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to read index metadata", err)
	}
	dimsText, hasDims, err := ix.entries.GetMeta(ctx, store.MetaDimensions)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to read index metadata", err)
	}

	if hasModel && model != ix.embedder.ModelName() {
		return modelMismatch(fmt.Sprintf("index was built with model %q, embedder is %q", model, ix.embedder.ModelName()))
	}
	if hasDims {
		stored, err := strconv.Atoi(dimsText)
		if err != nil {
			return rverrors.New(rverrors.ErrCodeCorruptIndex, "invalid dimensions in index metadata", err)
		}
		if ix.dims != 0 && ix.dims != stored {
			return modelMismatch(fmt.Sprintf("index has %d dimensions, embedder produces %d", stored, ix.dims))
		}
		ix.dims = stored
	}
	return nil
}

func modelMismatch(msg string) error {
	return rverrors.New(rverrors.ErrCodeModelMismatch, msg, nil).
		WithSuggestion("run 'refvec clean --force' and vectorize again, or configure the original model")
}

// ensureMeta records the model and dimension on the first write and
// creates the vector index once the dimension is known.
func (ix *Indexer) ensureMeta(ctx context.Context, dims int) error {
	if ix.dims != 0 && ix.dims != dims {
		return rverrors.New(rverrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("embedder returned %d dimensions, index has %d", dims, ix.dims), nil)
	}

	_, ok, err := ix.entries.GetMeta(ctx, store.MetaModel)
	if err != nil {
		return err
	}
	if !ok {
		if err := ix.entries.SetMeta(ctx, store.MetaModel, ix.embedder.ModelName()); err != nil {
			return err
		}
		if err := ix.entries.SetMeta(ctx, store.MetaDimensions, strconv.Itoa(dims)); err != nil {
			return err
		}
	}

	ix.dims = dims
	if ix.vector == nil {
		return ix.createVector(dims)
	}
	return nil
}

// Upsert embeds chunks and replaces every entry of path with them. The
// entries change in one transaction, so a failure leaves the previous
// entries intact. Errors are index_error and carry the attempt count.
func (ix *Indexer) Upsert(ctx context.Context, path string, chunks []extract.Chunk) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.writable(); err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := ix.embedAll(ctx, texts)
	if err != nil {
		return 0, ix.indexError(path, err)
	}

	entries := make([]store.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = store.Entry{
			ChunkID:    ChunkID(path, c.Index),
			SourcePath: path,
			ChunkIndex: c.Index,
			Page:       c.Page,
			Text:       c.Text,
			Vector:     vectors[i],
		}
	}

	if len(vectors) > 0 {
		if err := ix.ensureMeta(ctx, len(vectors[0])); err != nil {
			return 0, ix.indexError(path, err)
		}
	}

	old, err := ix.entries.ReplacePath(ctx, path, entries)
	if err != nil {
		return 0, ix.indexError(path, err)
	}

	ix.applyDerived(ctx, old, entries)
	return len(entries), nil
}

// Delete removes every entry of path and returns how many there were.
func (ix *Indexer) Delete(ctx context.Context, path string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := ix.writable(); err != nil {
		return 0, err
	}

	old, err := ix.entries.DeletePath(ctx, path)
	if err != nil {
		return 0, ix.indexError(path, err)
	}
	ix.applyDerived(ctx, old, nil)
	return len(old), nil
}

// applyDerived mirrors an entries change into the derived indexes. A
// failure here is logged and leaves them stale, to be rebuilt from entries
// on the next open; the entries change itself stands.
func (ix *Indexer) applyDerived(ctx context.Context, removed []string, added []store.Entry) {
	if len(removed) == 0 && len(added) == 0 {
		return
	}
	ix.dirty = true

	ids := make([]string, len(added))
	vecs := make([][]float32, len(added))
	docs := make([]*store.Document, len(added))
	for i, e := range added {
		ids[i] = e.ChunkID
		vecs[i] = e.Vector
		docs[i] = &store.Document{ID: e.ChunkID, Content: e.Text}
	}

	fail := func(what string, err error) {
		ix.stale = true
		slog.Warn("derived_index_update_failed",
			slog.String("index", what),
			slog.String("error", err.Error()))
	}

	if ix.vector != nil {
		if err := ix.vector.Delete(ctx, removed); err != nil {
			fail("vector", err)
		} else if err := ix.vector.Add(ctx, ids, vecs); err != nil {
			fail("vector", err)
		}
	}
	if err := ix.keyword.Delete(ctx, removed); err != nil {
		fail("keyword", err)
	} else if err := ix.keyword.Index(ctx, docs); err != nil {
		fail("keyword", err)
	}
}

// embedAll embeds texts in batches, each batch under the retry policy.
func (ix *Indexer) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ix.batchSize {
		end := min(start+ix.batchSize, len(texts))
		batch := texts[start:end]

		vecs, err := rverrors.RetryWithResult(ctx, ix.retry, func() ([][]float32, error) {
			return ix.embedder.EmbedBatch(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// indexError wraps a per-file failure. Cancellation passes through
// untouched so the caller can stop the run instead of recording it.
func (ix *Indexer) indexError(path string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return rverrors.IndexError(path, err).
		WithDetail("attempts", strconv.Itoa(ix.retry.Attempts()))
}

// transient decides retries when the policy leaves it open: structured
// errors say for themselves, anything else is assumed transient.
func transient(err error) bool {
	if re, ok := rverrors.As(err); ok {
		return re.Retryable
	}
	return true
}

// Count returns the number of stored chunks.
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return 0, errClosed
	}
	return ix.entries.Count(ctx)
}

// Paths returns the number of chunks stored per source path.
func (ix *Indexer) Paths(ctx context.Context) (map[string]int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil, errClosed
	}
	return ix.entries.PathCounts(ctx)
}

// Model returns the embedding model the index is bound to.
func (ix *Indexer) Model() string {
	return ix.embedder.ModelName()
}

// Flush makes the derived indexes durable and marks them current.
func (ix *Indexer) Flush(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return errClosed
	}
	return ix.flushLocked(ctx)
}

func (ix *Indexer) flushLocked(ctx context.Context) error {
	if ix.readOnly || !ix.dirty {
		return nil
	}
	if ix.stale {
		slog.Warn("derived_index_left_stale", slog.String("dir", ix.dir))
		return nil
	}

	if err := ix.compactVector(ctx); err != nil {
		return err
	}

	gen, err := ix.entries.Generation(ctx)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to read index generation", err)
	}

	if ix.vector != nil {
		if err := ix.vector.Save(); err != nil {
			return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to save vector index", err)
		}
		if err := ix.entries.SetMeta(ctx, vectorGenKey(ix.vectorBackend), strconv.FormatInt(gen, 10)); err != nil {
			return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to record vector index generation", err)
		}
	}
	if err := ix.keyword.Save(); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to save keyword index", err)
	}
	if err := ix.entries.SetMeta(ctx, keywordGenKey(ix.keywordBackend), strconv.FormatInt(gen, 10)); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to record keyword index generation", err)
	}

	ix.dirty = false
	slog.Debug("index_flushed", slog.Int64("generation", gen))
	return nil
}

// Close flushes pending changes and releases every store. Idempotent.
func (ix *Indexer) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.closed {
		return nil
	}

	flushErr := ix.flushLocked(context.Background())
	ix.closed = true
	ix.closeDerived()
	if err := ix.entries.Close(); err != nil && flushErr == nil {
		flushErr = err
	}
	return flushErr
}

func (ix *Indexer) writable() error {
	if ix.closed {
		return errClosed
	}
	if ix.readOnly {
		return rverrors.New(rverrors.ErrCodeIndexUnavailable, "index is open read-only", nil)
	}
	return nil
}

var errClosed = rverrors.New(rverrors.ErrCodeIndexUnavailable, "index is closed", nil)

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stats summarizes an index without opening its derived indexes.
type Stats struct {
	Entries    int
	Paths      int
	Model      string
	Dimensions int

	// PathEntries is the number of entries stored per source path.
	PathEntries map[string]int
}

// ReadStats reads the entries table in dir. A directory without an index
// yields zero Stats and no error.
func ReadStats(ctx context.Context, dir string) (Stats, error) {
	path := filepath.Join(dir, entriesFile)
	if !fileExists(path) {
		return Stats{}, nil
	}
	es, err := store.OpenEntryStore(path)
	if err != nil {
		return Stats{}, rverrors.New(rverrors.ErrCodeCorruptIndex, "failed to open index", err).
			WithDetail("path", path)
	}
	defer func() { _ = es.Close() }()

	var st Stats
	if st.Entries, err = es.Count(ctx); err != nil {
		return Stats{}, err
	}
	paths, err := es.PathCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	st.Paths = len(paths)
	st.PathEntries = paths
	if st.Model, _, err = es.GetMeta(ctx, store.MetaModel); err != nil {
		return Stats{}, err
	}
	dims, ok, err := es.GetMeta(ctx, store.MetaDimensions)
	if err != nil {
		return Stats{}, err
	}
	if ok {
		st.Dimensions, _ = strconv.Atoi(dims)
	}
	return st, nil
}

// Remove deletes every index file in dir.
func Remove(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return rverrors.New(rverrors.ErrCodeIndexFailed, "failed to remove index", err).WithDetail("path", dir)
	}
	return nil
}
