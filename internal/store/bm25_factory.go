package store

import (
	"fmt"
	"path/filepath"
)

// BM25Backend represents the keyword index backend type.
type BM25Backend string

const (
	// BM25BackendSQLite uses SQLite FTS5 for BM25 search (default).
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve uses Bleve v2. Its BoltDB file lock admits a single
	// process, so read-only callers build it in memory instead.
	BM25BackendBleve BM25Backend = "bleve"
)

// NewBM25IndexWithBackend creates a BM25Index using the specified backend.
// The path should be the base path without extension - the extension will be
// added based on the backend type (.db for SQLite, .bleve for Bleve).
//
// If basePath is empty, creates an in-memory index.
func NewBM25IndexWithBackend(basePath string, config BM25Config, backend BM25Backend) (BM25Index, error) {
	switch backend {
	case BM25BackendSQLite, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteBM25Index(path, config)

	case BM25BackendBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown keyword backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// GetBM25IndexPath returns the full path to the keyword index file or
// directory for backend under dataDir.
func GetBM25IndexPath(dataDir string, backend BM25Backend) string {
	basePath := filepath.Join(dataDir, "bm25")
	switch backend {
	case BM25BackendBleve:
		return basePath + ".bleve"
	default:
		return basePath + ".db"
	}
}

// RemoveBM25Indexes deletes the keyword index of every backend under dataDir.
func RemoveBM25Indexes(dataDir string) error {
	if err := removeSQLiteFiles(GetBM25IndexPath(dataDir, BM25BackendSQLite)); err != nil {
		return fmt.Errorf("failed to remove keyword index: %w", err)
	}
	return RemoveBleveIndex(GetBM25IndexPath(dataDir, BM25BackendBleve))
}
