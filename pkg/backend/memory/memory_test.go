package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/pkg/backend"
	backendtesting "github.com/marmos91/dsftp/pkg/backend/testing"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// TestMemoryBackendContract runs the shared Backend contract suite
// against the in-memory implementation.
func TestMemoryBackendContract(t *testing.T) {
	suite := &backendtesting.Suite{
		NewBackend: func(t *testing.T) backend.Backend {
			return NewMemoryBackend(MemoryBackendConfig{})
		},
	}
	suite.Run(t)
}

func TestMemoryBackendSeed(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendConfig{
		Seed: map[string][]byte{
			"readme.txt":     []byte("hi"),
			"docs/guide.txt": []byte("guide"),
		},
	})
	ctx := context.Background()

	got, err := b.ReadFile(ctx, vpath.Path("/readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), got)

	info, err := b.FileInfo(ctx, vpath.Path("/docs"))
	require.NoError(t, err)
	assert.True(t, info.IsDir)
}

func TestMemoryBackendDirectoryRename(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendConfig{})
	ctx := context.Background()

	require.NoError(t, b.WriteFile(ctx, vpath.Path("/a/one.txt"), []byte("1")))
	require.NoError(t, b.WriteFile(ctx, vpath.Path("/a/sub/two.txt"), []byte("2")))

	require.NoError(t, b.Rename(ctx, vpath.Path("/a"), vpath.Path("/b")))

	got, err := b.ReadFile(ctx, vpath.Path("/b/sub/two.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)

	_, err = b.FileInfo(ctx, vpath.Path("/a"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestMemoryBackendListingIsSorted(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendConfig{})
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, b.WriteFile(ctx, vpath.Root.Join(name), []byte("x")))
	}

	entries, err := b.ListDir(ctx, vpath.Root)
	require.NoError(t, err)
	require.Len(t, entries, 5) // ".", ".." plus three files
	assert.Equal(t, "alpha", entries[2].Name)
	assert.Equal(t, "mid", entries[3].Name)
	assert.Equal(t, "zeta", entries[4].Name)
}

func TestMemoryBackendWriteOntoDirectory(t *testing.T) {
	b := NewMemoryBackend(MemoryBackendConfig{})
	ctx := context.Background()

	require.NoError(t, b.MakeDir(ctx, vpath.Path("/dir")))
	assert.ErrorIs(t, b.WriteFile(ctx, vpath.Path("/dir"), []byte("x")), backend.ErrIsADirectory)
}
