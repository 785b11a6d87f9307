package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rverrors "github.com/Aman-CERP/refvec/internal/errors"
)

func TestRunLock_Exclusive(t *testing.T) {
	// Given: a lock held in a data directory that does not exist yet
	path := filepath.Join(t.TempDir(), "data", "run.lock")
	first := NewRunLock(path)
	require.NoError(t, first.TryLock())
	assert.True(t, first.Locked())
	assert.FileExists(t, path)

	// When: a second lock on the same file is attempted
	second := NewRunLock(path)
	err := second.TryLock()

	// Then: it is refused with the lock path attached
	require.Error(t, err)
	assert.Equal(t, rverrors.ErrCodeRunInProgress, rverrors.GetCode(err))
	re, ok := rverrors.As(err)
	require.True(t, ok)
	assert.Equal(t, path, re.Details["lock"])
	assert.False(t, second.Locked())

	// And: it succeeds once released
	require.NoError(t, first.Unlock())
	require.NoError(t, second.TryLock())
	require.NoError(t, second.Unlock())
}

func TestRunLock_Reentrant(t *testing.T) {
	l := NewRunLock(filepath.Join(t.TempDir(), "run.lock"))

	require.NoError(t, l.TryLock())
	require.NoError(t, l.TryLock())
	require.NoError(t, l.Unlock())
	require.NoError(t, l.Unlock(), "unlocking twice is harmless")
	assert.False(t, l.Locked())
}
