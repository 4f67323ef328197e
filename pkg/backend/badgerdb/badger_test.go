package badgerdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/pkg/backend"
	backendtesting "github.com/marmos91/dsftp/pkg/backend/testing"
	"github.com/marmos91/dsftp/pkg/vpath"
)

func newTestBackend(t *testing.T) *BadgerBackend {
	t.Helper()

	b, err := NewBadgerBackend(context.Background(), BadgerBackendConfig{
		DBPath: t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, b.Close())
	})
	return b
}

// TestBadgerBackend_Contract runs the shared backend contract suite
// against a fresh database per subtest.
func TestBadgerBackend_Contract(t *testing.T) {
	suite := &backendtesting.Suite{
		NewBackend: func(t *testing.T) backend.Backend {
			return newTestBackend(t)
		},
	}
	suite.Run(t)
}

// TestBadgerBackend_Persistence verifies that data survives a close and
// reopen of the database, which is the point of this backend.
func TestBadgerBackend_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := t.TempDir()
	path, err := vpath.Normalize("/docs/report.txt")
	require.NoError(t, err)
	content := []byte("survives restarts")

	// ========================================================================
	// Write, then close
	// ========================================================================

	first, err := NewBadgerBackend(ctx, BadgerBackendConfig{DBPath: dbPath})
	require.NoError(t, err)
	require.NoError(t, first.WriteFile(ctx, path, content))
	require.NoError(t, first.MakeDir(ctx, mustPath(t, "/empty")))
	require.NoError(t, first.Close())

	// ========================================================================
	// Reopen and verify
	// ========================================================================

	second, err := NewBadgerBackend(ctx, BadgerBackendConfig{DBPath: dbPath})
	require.NoError(t, err)
	defer second.Close()

	got, err := second.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := second.FileInfo(ctx, mustPath(t, "/empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir)
}

// TestBadgerBackend_RecordTimestamps verifies that a file's modification
// time is recorded at write and carried through rename.
func TestBadgerBackend_RecordTimestamps(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	before := time.Now().Add(-time.Second)
	require.NoError(t, b.WriteFile(ctx, mustPath(t, "/a.txt"), []byte("x")))

	info, err := b.FileInfo(ctx, mustPath(t, "/a.txt"))
	require.NoError(t, err)
	require.True(t, info.HasModTime)
	assert.True(t, info.ModTime.After(before))

	require.NoError(t, b.Rename(ctx, mustPath(t, "/a.txt"), mustPath(t, "/b.txt")))

	moved, err := b.FileInfo(ctx, mustPath(t, "/b.txt"))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime, moved.ModTime)
}

func mustPath(t *testing.T, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.Normalize(raw)
	require.NoError(t, err)
	return p
}
