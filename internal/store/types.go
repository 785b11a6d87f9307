// Package store provides the persistence layer: the fingerprint metadata
// store and the chunk entries (SQLite), the vector stores (HNSW, chromem)
// and the keyword indexes (SQLite FTS5, Bleve).
package store

import (
	"context"
	"fmt"
	"time"
)

// RecordStatus is the outcome of the last attempt to process a file.
type RecordStatus string

const (
	// StatusSuccess means the file's chunks are committed to the index.
	StatusSuccess RecordStatus = "success"
	// StatusFailed means the last attempt failed; the file has no entries.
	StatusFailed RecordStatus = "failed"
)

// FingerprintRecord is what the metadata store remembers about one file.
type FingerprintRecord struct {
	Path          string // Absolute source path, the key
	Fingerprint   string // "sha256:<hex>" or "stat:<size>-<mtime>"
	Size          int64
	ModTime       time.Time
	LastIndexedAt time.Time
	ChunkCount    int
	Status        RecordStatus
	ErrorKind     string // Failure kind when Status is failed
	Error         string // Failure message when Status is failed
}

// Failed reports whether the last attempt on this file failed.
func (r *FingerprintRecord) Failed() bool {
	return r.Status == StatusFailed
}

// MetadataStore persists one FingerprintRecord per source path.
type MetadataStore interface {
	// Get returns the record for path, or (nil, nil) when there is none.
	Get(ctx context.Context, path string) (*FingerprintRecord, error)

	// Put inserts or replaces the record for rec.Path atomically.
	Put(ctx context.Context, rec *FingerprintRecord) error

	// Delete removes the record for path. Deleting a missing record is not an error.
	Delete(ctx context.Context, path string) error

	// All returns every record ordered by path.
	All(ctx context.Context) ([]*FingerprintRecord, error)

	Close() error
}

// Entry is one stored chunk: the unit of retrieval.
type Entry struct {
	ChunkID    string
	SourcePath string
	ChunkIndex int
	Page       int
	Text       string
	Vector     []float32
}

// Document represents a document to be indexed in BM25.
type Document struct {
	ID      string // Chunk ID
	Content string // Text content
}

// BM25Result represents a single BM25 search result.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index provides keyword search using BM25 algorithm.
type BM25Index interface {
	// Index adds documents to the index, replacing existing IDs
	Index(ctx context.Context, docs []*Document) error

	// Search returns documents matching query, scored by BM25
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes documents from index
	Delete(ctx context.Context, docIDs []string) error

	// Stats returns index statistics
	Stats() *IndexStats

	// Save makes pending changes durable
	Save() error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	// StopWords is a list of words to filter out during tokenization
	StopWords []string

	// MinTokenLength is minimum token length to index (default: 2)
	MinTokenLength int
}

// DefaultBM25Config returns default BM25 configuration.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords are English function words that only add noise to
// keyword matching over prose.
var DefaultStopWords = []string{
	"an", "and", "are", "as", "at", "be", "by", "for", "from", "has",
	"in", "is", "it", "its", "of", "on", "or", "that", "the", "this",
	"to", "was", "were", "with",
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // Chunk ID
	Distance float32 // Lower is more similar (0-2 for cosine)
	Score    float32 // Normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean) (default: "cos")
	Metric string

	// M is HNSW max connections per layer (default: 16)
	M int

	// EfSearch is HNSW query-time search width (default: 64)
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides nearest-neighbour search over chunk vectors.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns number of vectors.
	Count() int

	// Save makes the store durable at its path. In-memory stores ignore it.
	Save() error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'refvec clean --force')", e.Expected, e.Got)
}
