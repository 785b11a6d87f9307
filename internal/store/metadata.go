package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// MetadataSchemaVersion is the schema version this build writes.
const MetadataSchemaVersion = 1

// SQLiteMetadataStore implements MetadataStore on modernc.org/sqlite.
type SQLiteMetadataStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Verify interface implementation at compile time
var _ MetadataStore = (*SQLiteMetadataStore)(nil)

// OpenMetadataStore opens or creates the metadata store at path. An
// unreadable, corrupt or newer-schema store is a fatal MetadataStoreError:
// the store is never silently re-created, since the skip decisions of
// every later run depend on it.
func OpenMetadataStore(path string) (*SQLiteMetadataStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, rverrors.MetadataStoreError("failed to open metadata store", err).WithDetail("path", path)
	}

	if err := checkIntegrity(db); err != nil {
		_ = db.Close()
		return nil, rverrors.MetadataStoreError("metadata store is corrupt", err).WithDetail("path", path)
	}

	s := &SQLiteMetadataStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, rverrors.MetadataStoreError("failed to initialize metadata store", err).WithDetail("path", path)
	}

	return s, nil
}

// MetadataStoreExists reports whether a store file is present at path.
func MetadataStoreExists(path string) bool {
	return fileExists(path)
}

// RemoveMetadataStore deletes the store at path, including WAL files. It
// works on a store too damaged to open.
func RemoveMetadataStore(path string) error {
	if err := removeSQLiteFiles(path); err != nil {
		return rverrors.New(rverrors.ErrCodeMetadataWrite, "failed to remove metadata store", err).WithDetail("path", path)
	}
	return nil
}

func (s *SQLiteMetadataStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS records (
		path            TEXT PRIMARY KEY,
		fingerprint     TEXT NOT NULL,
		size            INTEGER NOT NULL DEFAULT 0,
		mod_time        INTEGER NOT NULL DEFAULT 0,
		last_indexed_at INTEGER NOT NULL DEFAULT 0,
		chunk_count     INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL,
		error_kind      TEXT NOT NULL DEFAULT '',
		error           TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var version sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if !version.Valid {
		_, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, MetadataSchemaVersion)
		return err
	}
	if version.Int64 > MetadataSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version.Int64, MetadataSchemaVersion)
	}
	return nil
}

// Get returns the record for path, or (nil, nil) when there is none.
func (s *SQLiteMetadataStore) Get(ctx context.Context, path string) (*FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT path, fingerprint, size, mod_time, last_indexed_at, chunk_count, status, error_kind, error
		FROM records WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, rverrors.MetadataStoreError("failed to read record", err).WithDetail("path", path)
	}
	return rec, nil
}

// Put inserts or replaces the record for rec.Path in one statement.
func (s *SQLiteMetadataStore) Put(ctx context.Context, rec *FingerprintRecord) error {
	if rec == nil || rec.Path == "" {
		return rverrors.New(rverrors.ErrCodeInvalidInput, "record path is required", nil)
	}
	status := rec.Status
	if status == "" {
		status = StatusSuccess
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (path, fingerprint, size, mod_time, last_indexed_at, chunk_count, status, error_kind, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			size = excluded.size,
			mod_time = excluded.mod_time,
			last_indexed_at = excluded.last_indexed_at,
			chunk_count = excluded.chunk_count,
			status = excluded.status,
			error_kind = excluded.error_kind,
			error = excluded.error`,
		rec.Path, rec.Fingerprint, rec.Size, unixNano(rec.ModTime), unixNano(rec.LastIndexedAt),
		rec.ChunkCount, string(status), rec.ErrorKind, rec.Error)
	if err != nil {
		return rverrors.New(rverrors.ErrCodeMetadataWrite, "failed to write record", err).WithDetail("path", rec.Path)
	}
	return nil
}

// Delete removes the record for path.
func (s *SQLiteMetadataStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path); err != nil {
		return rverrors.New(rverrors.ErrCodeMetadataWrite, "failed to delete record", err).WithDetail("path", path)
	}
	return nil
}

// All returns every record ordered by path.
func (s *SQLiteMetadataStore) All(ctx context.Context) ([]*FingerprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, fingerprint, size, mod_time, last_indexed_at, chunk_count, status, error_kind, error
		FROM records ORDER BY path`)
	if err != nil {
		return nil, rverrors.MetadataStoreError("failed to list records", err)
	}
	defer rows.Close()

	var records []*FingerprintRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, rverrors.MetadataStoreError("failed to read record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, rverrors.MetadataStoreError("failed to list records", err)
	}
	return records, nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteMetadataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FingerprintRecord, error) {
	var (
		rec       FingerprintRecord
		modTime   int64
		indexedAt int64
		status    string
	)
	if err := row.Scan(&rec.Path, &rec.Fingerprint, &rec.Size, &modTime, &indexedAt,
		&rec.ChunkCount, &status, &rec.ErrorKind, &rec.Error); err != nil {
		return nil, err
	}
	rec.ModTime = fromUnixNano(modTime)
	rec.LastIndexedAt = fromUnixNano(indexedAt)
	rec.Status = RecordStatus(status)
	return &rec, nil
}

var errStoreClosed = errors.New("store is closed")

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
