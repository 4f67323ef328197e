// Package testing provides a reusable contract test suite that every
// backend.Backend implementation must pass.
//
// Usage:
//
//	func TestMemoryBackend(t *testing.T) {
//	    suite := &backendtesting.Suite{
//	        NewBackend: func(t *testing.T) backend.Backend {
//	            return memory.NewMemoryBackend(memory.MemoryBackendConfig{})
//	        },
//	    }
//	    suite.Run(t)
//	}
package testing

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// Suite exercises the behavioral guarantees of the Backend contract
// against an arbitrary implementation.
type Suite struct {
	// NewBackend returns a fresh, empty backend for each subtest.
	NewBackend func(t *testing.T) backend.Backend
}

// Run executes the full contract suite.
func (s *Suite) Run(t *testing.T) {
	t.Run("WriteReadRoundTrip", s.testWriteReadRoundTrip)
	t.Run("ReadMissingFile", s.testReadMissingFile)
	t.Run("RootAlwaysExists", s.testRootAlwaysExists)
	t.Run("ListDirIncludesDotEntries", s.testListDirIncludesDotEntries)
	t.Run("ListMissingDirectory", s.testListMissingDirectory)
	t.Run("ListFileAsDirectory", s.testListFileAsDirectory)
	t.Run("MakeDirTwice", s.testMakeDirTwice)
	t.Run("MakeDirVisibleInListing", s.testMakeDirVisibleInListing)
	t.Run("DelDirNonEmpty", s.testDelDirNonEmpty)
	t.Run("DelDirRemoves", s.testDelDirRemoves)
	t.Run("DeleteFile", s.testDeleteFile)
	t.Run("DeleteDirectoryAsFile", s.testDeleteDirectoryAsFile)
	t.Run("RenamePreservesContent", s.testRenamePreservesContent)
	t.Run("RenameOntoOccupiedDestination", s.testRenameOntoOccupiedDestination)
	t.Run("RenameMissingSource", s.testRenameMissingSource)
	t.Run("OverwritePreservesLatest", s.testOverwritePreservesLatest)
	t.Run("ConcurrentWriters", s.testConcurrentWriters)
}

func mustPath(t *testing.T, raw string) vpath.Path {
	t.Helper()
	p, err := vpath.Normalize(raw)
	require.NoError(t, err)
	return p
}

func (s *Suite) testWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/docs/report.txt")
	content := []byte("quarterly numbers\n")

	require.NoError(t, b.WriteFile(ctx, path, content))

	got, err := b.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	info, err := b.FileInfo(ctx, path)
	require.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, uint64(len(content)), info.Size)
}

func (s *Suite) testReadMissingFile(t *testing.T) {
	b := s.NewBackend(t)
	_, err := b.ReadFile(context.Background(), mustPath(t, "/nope.txt"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func (s *Suite) testRootAlwaysExists(t *testing.T) {
	b := s.NewBackend(t)
	info, err := b.FileInfo(context.Background(), vpath.Root)
	require.NoError(t, err)
	assert.True(t, info.IsDir)
}

func (s *Suite) testListDirIncludesDotEntries(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	require.NoError(t, b.WriteFile(ctx, mustPath(t, "/a.txt"), []byte("a")))

	entries, err := b.ListDir(ctx, vpath.Root)
	require.NoError(t, err)

	names := entryNames(entries)
	assert.Contains(t, names, ".")
	assert.Contains(t, names, "..")
	assert.Contains(t, names, "a.txt")
}

func (s *Suite) testListMissingDirectory(t *testing.T) {
	b := s.NewBackend(t)
	_, err := b.ListDir(context.Background(), mustPath(t, "/missing"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func (s *Suite) testListFileAsDirectory(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/plain.txt")
	require.NoError(t, b.WriteFile(ctx, path, []byte("x")))

	_, err := b.ListDir(ctx, path)
	assert.ErrorIs(t, err, backend.ErrNotADirectory)
}

func (s *Suite) testMakeDirTwice(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/a")

	require.NoError(t, b.MakeDir(ctx, path))
	assert.ErrorIs(t, b.MakeDir(ctx, path), backend.ErrAlreadyExists)
}

func (s *Suite) testMakeDirVisibleInListing(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	require.NoError(t, b.MakeDir(ctx, mustPath(t, "/projects")))

	info, err := b.FileInfo(ctx, mustPath(t, "/projects"))
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	entries, err := b.ListDir(ctx, vpath.Root)
	require.NoError(t, err)
	assert.Contains(t, entryNames(entries), "projects")

	// The marker object that backs an empty directory stays hidden.
	assert.NotContains(t, entryNames(entries), backend.KeepMarker)
}

func (s *Suite) testDelDirNonEmpty(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	require.NoError(t, b.WriteFile(ctx, mustPath(t, "/dir/file.txt"), []byte("x")))

	assert.ErrorIs(t, b.DelDir(ctx, mustPath(t, "/dir")), backend.ErrNotEmpty)
}

func (s *Suite) testDelDirRemoves(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/tmp")

	require.NoError(t, b.MakeDir(ctx, path))
	require.NoError(t, b.DelDir(ctx, path))

	_, err := b.FileInfo(ctx, path)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	assert.ErrorIs(t, b.DelDir(ctx, path), backend.ErrNotFound)
}

func (s *Suite) testDeleteFile(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/junk.bin")

	require.NoError(t, b.WriteFile(ctx, path, []byte{1, 2, 3}))
	require.NoError(t, b.Delete(ctx, path))

	_, err := b.ReadFile(ctx, path)
	assert.ErrorIs(t, err, backend.ErrNotFound)

	assert.ErrorIs(t, b.Delete(ctx, path), backend.ErrNotFound)
}

func (s *Suite) testDeleteDirectoryAsFile(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	require.NoError(t, b.WriteFile(ctx, mustPath(t, "/d/child"), []byte("x")))

	assert.ErrorIs(t, b.Delete(ctx, mustPath(t, "/d")), backend.ErrIsADirectory)
}

func (s *Suite) testRenamePreservesContent(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	src := mustPath(t, "/old.txt")
	dst := mustPath(t, "/new.txt")
	content := []byte("payload")

	require.NoError(t, b.WriteFile(ctx, src, content))
	require.NoError(t, b.Rename(ctx, src, dst))

	got, err := b.ReadFile(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = b.ReadFile(ctx, src)
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func (s *Suite) testRenameOntoOccupiedDestination(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	src := mustPath(t, "/src.txt")
	dst := mustPath(t, "/dst.txt")

	require.NoError(t, b.WriteFile(ctx, src, []byte("source")))
	require.NoError(t, b.WriteFile(ctx, dst, []byte("destination")))

	assert.ErrorIs(t, b.Rename(ctx, src, dst), backend.ErrAlreadyExists)

	// Source must be untouched after the failed rename.
	got, err := b.ReadFile(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []byte("source"), got)

	got, err = b.ReadFile(ctx, dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("destination"), got)
}

func (s *Suite) testRenameMissingSource(t *testing.T) {
	b := s.NewBackend(t)
	err := b.Rename(context.Background(), mustPath(t, "/ghost"), mustPath(t, "/anywhere"))
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func (s *Suite) testOverwritePreservesLatest(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)
	path := mustPath(t, "/file.txt")

	require.NoError(t, b.WriteFile(ctx, path, []byte("first")))
	require.NoError(t, b.WriteFile(ctx, path, []byte("second")))

	got, err := b.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func (s *Suite) testConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	b := s.NewBackend(t)

	const writers = 32
	paths := make([]vpath.Path, writers)
	for i := range writers {
		paths[i] = mustPath(t, fmt.Sprintf("/concurrent/file-%02d", i))
	}

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = b.WriteFile(ctx, paths[i], []byte{byte(i)})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "writer %d", i)
	}
	for i := range writers {
		got, err := b.ReadFile(ctx, paths[i])
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, got)
	}
}

func entryNames(entries []backend.DirEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}
