package store

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
)

// chromemCollection is the single collection holding chunk vectors.
const chromemCollection = "chunks"

// ChromemStore implements VectorStore on a chromem-go collection. Search is
// exhaustive, which stays exact at reference-collection sizes. Persistent
// stores write every change through to dir, so Save has nothing to do.
type ChromemStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	dims       int
	dir        string
	closed     bool
}

// Verify interface implementation at compile time
var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore opens or creates a chromem collection under dir. An empty
// dir keeps the store in memory.
func NewChromemStore(dir string, cfg VectorStoreConfig) (*ChromemStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", cfg.Dimensions)
	}

	var (
		db  *chromem.DB
		err error
	)
	if dir == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem database: %w", err)
		}
	}

	// Vectors are always supplied, so no embedding func is needed.
	c, err := db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	return &ChromemStore{db: db, collection: c, dims: cfg.Dimensions, dir: dir}, nil
}

// RemoveChromemStore deletes the persistent store at dir.
func RemoveChromemStore(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove vector store: %w", err)
	}
	return nil
}

// Add inserts vectors, replacing existing IDs.
func (s *ChromemStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	docs := make([]chromem.Document, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(vectors[i])}
		}
		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		docs[i] = chromem.Document{ID: id, Embedding: vec}
	}

	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}
	return nil
}

// Search returns the k most similar vectors by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}

	// chromem rejects nResults above the collection size
	n := min(k, s.collection.Count())
	if n <= 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	hits, err := s.collection.QueryEmbedding(ctx, q, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*VectorResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, &VectorResult{
			ID:       h.ID,
			Distance: 1 - h.Similarity,
			Score:    (h.Similarity + 1) / 2,
		})
	}
	return results, nil
}

// Delete removes vectors by ID. Unknown IDs are ignored.
func (s *ChromemStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	present := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := s.collection.GetByID(ctx, id); err == nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return nil
	}

	if err := s.collection.Delete(ctx, nil, nil, present...); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.collection.Count()
}

// Save is a no-op: persistent collections are written on every change.
func (s *ChromemStore) Save() error {
	return nil
}

// Close releases the store. Idempotent.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
