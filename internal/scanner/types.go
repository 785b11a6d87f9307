// Package scanner discovers reference documents placed directly in a
// directory and fingerprints each one.
package scanner

import (
	"time"
)

// SourceFile is an immutable snapshot of one eligible document, taken
// during a single scan.
type SourceFile struct {
	Path        string    // Absolute path, the file's identity
	Name        string    // Base name, for display
	Size        int64     // File size in bytes
	ModTime     time.Time // Last modification time
	Fingerprint string    // Change fingerprint, see FingerprintMode

	// Err is set when the file exists but could not be read. Such a file
	// has no Fingerprint and is recorded as failed rather than dropped.
	Err error
}

// FingerprintMode selects how change fingerprints are derived.
type FingerprintMode string

const (
	// FingerprintContent hashes file bytes with SHA-256. Immune to
	// unreliable mtimes (copies, syncs, restores).
	FingerprintContent FingerprintMode = "content"
	// FingerprintStat combines size and modification time. Cheap, but
	// misses edits that preserve both.
	FingerprintStat FingerprintMode = "stat"
)

// DefaultExtensions are the document formats refvec can extract.
var DefaultExtensions = []string{".pdf", ".txt", ".md", ".docx", ".xlsx"}
