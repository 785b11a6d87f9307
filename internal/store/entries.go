package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Meta keys of the entries store.
const (
	MetaModel      = "model"
	MetaDimensions = "dimensions"
	// MetaGeneration counts committed mutations of the entries table.
	MetaGeneration = "generation"
)

// EntryStore is the authoritative table of chunk entries. Vector and
// keyword indexes are derived from it and can always be rebuilt from it.
//
// Each mutation of a path's entries happens in one transaction that also
// bumps the generation counter, so a reader can tell whether a derived
// index saved at generation N is still current.
type EntryStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// OpenEntryStore opens or creates the entries database at path. An empty
// path opens an in-memory store.
func OpenEntryStore(path string) (*EntryStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := checkIntegrity(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	s := &EntryStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *EntryStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		chunk_id    TEXT PRIMARY KEY,
		source_path TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		page        INTEGER NOT NULL DEFAULT 0,
		text        TEXT NOT NULL,
		vector      BLOB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source_path ON entries(source_path);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ReplacePath deletes every entry of path and inserts entries in their
// place, in one transaction. It returns the chunk IDs that existed before.
func (s *EntryStore) ReplacePath(ctx context.Context, path string, entries []Entry) ([]string, error) {
	for _, e := range entries {
		if e.SourcePath != path {
			return nil, fmt.Errorf("entry %s belongs to %s, not %s", e.ChunkID, e.SourcePath, path)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := idsForPath(ctx, tx, path)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE source_path = ?`, path); err != nil {
		return nil, fmt.Errorf("failed to delete entries: %w", err)
	}

	if len(entries) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO entries (chunk_id, source_path, chunk_index, page, text, vector)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, e := range entries {
			if _, err := stmt.ExecContext(ctx, e.ChunkID, e.SourcePath, e.ChunkIndex, e.Page, e.Text, EncodeVector(e.Vector)); err != nil {
				return nil, fmt.Errorf("failed to insert entry %s: %w", e.ChunkID, err)
			}
		}
	}

	if len(old) > 0 || len(entries) > 0 {
		if err := bumpGeneration(ctx, tx); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return old, nil
}

// DeletePath removes every entry of path and returns their chunk IDs.
func (s *EntryStore) DeletePath(ctx context.Context, path string) ([]string, error) {
	return s.ReplacePath(ctx, path, nil)
}

// Get returns the entries for ids that exist, keyed by chunk ID.
func (s *EntryStore) Get(ctx context.Context, ids []string) (map[string]Entry, error) {
	out := make(map[string]Entry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT chunk_id, source_path, chunk_index, page, text, vector
		FROM entries WHERE chunk_id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out[e.ChunkID] = e
	}
	return out, rows.Err()
}

// ForEach calls fn for every entry in (source_path, chunk_index) order.
func (s *EntryStore) ForEach(ctx context.Context, fn func(Entry) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, source_path, chunk_index, page, text, vector
		FROM entries ORDER BY source_path, chunk_index`)
	if err != nil {
		return fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of entries.
func (s *EntryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errStoreClosed
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// PathCounts returns the number of entries per source path.
func (s *EntryStore) PathCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source_path, COUNT(*) FROM entries GROUP BY source_path`)
	if err != nil {
		return nil, fmt.Errorf("failed to query paths: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var path string
		var n int
		if err := rows.Scan(&path, &n); err != nil {
			return nil, err
		}
		out[path] = n
	}
	return out, rows.Err()
}

// GetMeta returns the value of key and whether it was set.
func (s *EntryStore) GetMeta(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", false, errStoreClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read meta %s: %w", key, err)
	}
	return value, true, nil
}

// SetMeta stores value under key.
func (s *EntryStore) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write meta %s: %w", key, err)
	}
	return nil
}

// Generation returns the mutation counter (0 for a fresh store).
func (s *EntryStore) Generation(ctx context.Context) (int64, error) {
	v, ok, err := s.GetMeta(ctx, MetaGeneration)
	if err != nil || !ok {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *EntryStore) Close() error {
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

func idsForPath(ctx context.Context, tx *sql.Tx, path string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT chunk_id FROM entries WHERE source_path = ? ORDER BY chunk_index`, path)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func bumpGeneration(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, '1')
		ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(value AS INTEGER) + 1 AS TEXT)`, MetaGeneration)
	if err != nil {
		return fmt.Errorf("failed to bump generation: %w", err)
	}
	return nil
}

func scanEntry(row rowScanner) (Entry, error) {
	var e Entry
	var blob []byte
	if err := row.Scan(&e.ChunkID, &e.SourcePath, &e.ChunkIndex, &e.Page, &e.Text, &blob); err != nil {
		return Entry{}, fmt.Errorf("failed to scan entry: %w", err)
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %s: %w", e.ChunkID, err)
	}
	e.Vector = vec
	return e, nil
}

// EncodeVector packs a vector as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
