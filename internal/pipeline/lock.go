package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

// RunLock is the cross-process writer lock of one data directory. Only one
// vectorize, refresh, clean or watch may hold it; readers never take it.
type RunLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewRunLock creates the lock at path. Nothing is acquired yet.
func NewRunLock(path string) *RunLock {
	return &RunLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held by another
// process is a configuration error naming the lock file.
func (l *RunLock) TryLock() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return rverrors.ConfigurationError("failed to create data directory", err).
			WithDetail("path", filepath.Dir(l.path))
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		return rverrors.New(rverrors.ErrCodeRunInProgress, "another refvec run holds the lock", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the other run to finish")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *RunLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}

// Locked reports whether this RunLock holds the lock.
func (l *RunLock) Locked() bool {
	return l.locked
}
