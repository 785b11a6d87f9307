package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// SQLiteBM25Index implements BM25Index using SQLite FTS5.
// It is a derived index: on corruption it is cleared and rebuilt from the
// entries table rather than repaired.
type SQLiteBM25Index struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    BM25Config
	closed    bool
	stopWords map[string]struct{}
}

// Verify interface implementation at compile time
var _ BM25Index = (*SQLiteBM25Index)(nil)

// validateFTSSchema checks that an opened keyword database is intact and
// carries the fts_content table.
func validateFTSSchema(db *sql.DB) error {
	if err := checkIntegrity(db); err != nil {
		return err
	}

	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='fts_content'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}
	return nil
}

// NewSQLiteBM25Index opens or creates a SQLite FTS5 keyword index.
// An empty path creates an in-memory index.
func NewSQLiteBM25Index(path string, config BM25Config) (*SQLiteBM25Index, error) {
	existed := path != "" && fileExists(path)

	db, err := openSQLite(path)
	if err == nil && existed {
		if validErr := validateFTSSchema(db); validErr != nil {
			_ = db.Close()
			err = validErr
		}
	}
	if err != nil {
		if path == "" {
			return nil, err
		}
		slog.Warn("keyword_index_corrupted",
			slog.String("path", path),
			slog.String("error", err.Error()))

		if removeErr := removeSQLiteFiles(path); removeErr != nil {
			return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, err)
		}
		slog.Info("keyword_index_cleared",
			slog.String("path", path),
			slog.String("reason", "corruption detected, rebuilding from entries"))

		if db, err = openSQLite(path); err != nil {
			return nil, err
		}
	}

	if _, err := db.Exec("PRAGMA cache_size = -65536"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set pragma: %w", err)
	}

	idx := &SQLiteBM25Index{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return idx, nil
}

// initSchema creates the FTS5 virtual table and supporting tables.
func (s *SQLiteBM25Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- doc_id is stored but not searchable; content holds pre-tokenized text
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteBM25Index) analyze(text string) []string {
	return FilterStopWords(Tokenize(text, s.config.MinTokenLength), s.stopWords)
}

// Index adds documents to the index. Existing IDs are replaced.
func (s *SQLiteBM25Index) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables don't support REPLACE, so we delete first
	deleteStmt, err := tx.PrepareContext(ctx, `DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete statement: %w", err)
	}
	defer deleteStmt.Close()

	insertStmt, err := tx.PrepareContext(ctx, `INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare FTS statement: %w", err)
	}
	defer insertStmt.Close()

	idStmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ID statement: %w", err)
	}
	defer idStmt.Close()

	for _, doc := range docs {
		processed := strings.Join(s.analyze(doc.Content), " ")

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID, processed); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to track document ID %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns documents matching any query term, best BM25 score first.
func (s *SQLiteBM25Index) Search(ctx context.Context, queryStr string, limit int) ([]*BM25Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if limit <= 0 || strings.TrimSpace(queryStr) == "" {
		return []*BM25Result{}, nil
	}

	tokens := uniqueTokens(s.analyze(queryStr))
	if len(tokens) == 0 {
		return []*BM25Result{}, nil
	}

	// Quoted terms joined with OR: prose queries are phrased loosely, so
	// any shared term is a candidate and BM25 ranks the overlap.
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	match := strings.Join(quoted, " OR ")

	// bm25() is negative; lower is better
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY score
		LIMIT ?`, match, limit)
	if err != nil {
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*BM25Result{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	results := []*BM25Result{}
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, &BM25Result{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}

	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *SQLiteBM25Index) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	ftsQuery := fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", inClause)
	if _, err := tx.ExecContext(ctx, ftsQuery, args...); err != nil {
		return fmt.Errorf("failed to delete from FTS: %w", err)
	}

	idsQuery := fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", inClause)
	if _, err := tx.ExecContext(ctx, idsQuery, args...); err != nil {
		return fmt.Errorf("failed to delete from doc_ids: %w", err)
	}

	return tx.Commit()
}

// Stats returns index statistics.
func (s *SQLiteBM25Index) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return &IndexStats{}
	}
	return &IndexStats{DocumentCount: count}
}

// Save forces a WAL checkpoint so all changes are in the main database.
func (s *SQLiteBM25Index) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}
	if s.path == "" {
		return nil
	}

	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

// Close checkpoints and closes the index. Idempotent.
func (s *SQLiteBM25Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}
