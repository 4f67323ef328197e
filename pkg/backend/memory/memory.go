// Package memory implements an in-memory storage backend.
//
// Files live in a flat map keyed by their slash-separated path relative to
// the root. Directories are implicit: a directory exists when at least one
// object lives under its prefix, and MakeDir materializes an empty
// directory by inserting a zero-length ".keep" marker object (the same
// discipline the S3 backend uses, so both behave identically from the
// client's perspective).
//
// Documented policies:
//   - MakeDir does not require the parent directory to exist.
//   - Rename onto an occupied destination fails with ErrAlreadyExists.
//
// Intended for tests and development; everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// fileData is the stored representation of a single file.
type fileData struct {
	content []byte
	modTime time.Time
}

// MemoryBackend is an in-memory implementation of backend.Backend.
//
// Thread safety: all operations take the store-wide RWMutex, which makes
// same-path operations linearizable and different-path operations safe.
type MemoryBackend struct {
	mu    sync.RWMutex
	files map[string]fileData
}

// MemoryBackendConfig configures a MemoryBackend.
type MemoryBackendConfig struct {
	// Seed pre-populates the store. Keys are slash-separated paths
	// relative to the root (no leading slash).
	Seed map[string][]byte `mapstructure:"seed"`
}

// NewMemoryBackend creates an in-memory backend, optionally pre-populated
// from cfg.Seed.
func NewMemoryBackend(cfg MemoryBackendConfig) *MemoryBackend {
	files := make(map[string]fileData, len(cfg.Seed))
	now := time.Now()
	for key, content := range cfg.Seed {
		files[key] = fileData{content: append([]byte(nil), content...), modTime: now}
	}
	return &MemoryBackend{files: files}
}

// childPrefix returns the map-key prefix under which the children of path
// live ("" for the root).
func childPrefix(path vpath.Path) string {
	if path.IsRoot() {
		return ""
	}
	return path.Key() + "/"
}

// dirExistsLocked reports whether any object lives under the directory
// prefix. Caller holds at least the read lock.
func (m *MemoryBackend) dirExistsLocked(path vpath.Path) bool {
	if path.IsRoot() {
		return true
	}
	prefix := childPrefix(path)
	for key := range m.files {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (m *MemoryBackend) ListDir(ctx context.Context, path vpath.Path) ([]backend.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, isFile := m.files[path.Key()]; isFile && !path.IsRoot() {
		return nil, backend.ErrNotADirectory
	}
	if !m.dirExistsLocked(path) {
		return nil, backend.ErrNotFound
	}

	prefix := childPrefix(path)
	now := time.Now()
	entries := []backend.DirEntry{
		{Name: ".", Info: backend.DirectoryInfo(now)},
		{Name: "..", Info: backend.DirectoryInfo(now)},
	}

	seen := make(map[string]bool)
	for key, data := range m.files {
		relative, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		name, _, isDir := strings.Cut(relative, "/")
		if name == "" || name == backend.KeepMarker || seen[name] {
			continue
		}
		seen[name] = true

		var info backend.FileInfo
		if isDir {
			info = backend.DirectoryInfo(data.modTime)
		} else {
			info = backend.RegularInfo(uint64(len(data.content)), data.modTime)
		}
		entries = append(entries, backend.DirEntry{Name: name, Info: info})
	}

	// Map iteration order is random; keep listings stable for clients.
	sort.Slice(entries[2:], func(i, j int) bool {
		return entries[i+2].Name < entries[j+2].Name
	})

	return entries, nil
}

func (m *MemoryBackend) FileInfo(ctx context.Context, path vpath.Path) (backend.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return backend.FileInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if path.IsRoot() {
		return backend.DirectoryInfo(time.Time{}), nil
	}
	if data, ok := m.files[path.Key()]; ok {
		return backend.RegularInfo(uint64(len(data.content)), data.modTime), nil
	}
	if m.dirExistsLocked(path) {
		return backend.DirectoryInfo(time.Time{}), nil
	}
	return backend.FileInfo{}, backend.ErrNotFound
}

func (m *MemoryBackend) MakeDir(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, isFile := m.files[path.Key()]; isFile {
		return backend.ErrAlreadyExists
	}
	if m.dirExistsLocked(path) {
		return backend.ErrAlreadyExists
	}

	marker := childPrefix(path) + backend.KeepMarker
	m.files[marker] = fileData{modTime: time.Now()}
	return nil
}

func (m *MemoryBackend) DelDir(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if path.IsRoot() {
		return backend.ErrPermissionDenied
	}
	if _, isFile := m.files[path.Key()]; isFile {
		return backend.ErrNotADirectory
	}
	if !m.dirExistsLocked(path) {
		return backend.ErrNotFound
	}

	prefix := childPrefix(path)
	marker := prefix + backend.KeepMarker
	for key := range m.files {
		if strings.HasPrefix(key, prefix) && key != marker {
			return backend.ErrNotEmpty
		}
	}

	delete(m.files, marker)
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, path vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[path.Key()]; !ok {
		if m.dirExistsLocked(path) {
			return backend.ErrIsADirectory
		}
		return backend.ErrNotFound
	}

	delete(m.files, path.Key())
	return nil
}

func (m *MemoryBackend) Rename(ctx context.Context, src, dst vpath.Path) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, occupied := m.files[dst.Key()]; occupied || m.dirExistsLocked(dst) {
		return backend.ErrAlreadyExists
	}

	// File rename: move the single object.
	if data, ok := m.files[src.Key()]; ok {
		delete(m.files, src.Key())
		m.files[dst.Key()] = data
		return nil
	}

	// Directory rename: move every object under the prefix.
	if !m.dirExistsLocked(src) {
		return backend.ErrNotFound
	}
	srcPrefix, dstPrefix := childPrefix(src), childPrefix(dst)
	moved := make(map[string]fileData)
	for key, data := range m.files {
		if rest, ok := strings.CutPrefix(key, srcPrefix); ok {
			moved[dstPrefix+rest] = data
			delete(m.files, key)
		}
	}
	for key, data := range moved {
		m.files[key] = data
	}
	return nil
}

func (m *MemoryBackend) ReadFile(ctx context.Context, path vpath.Path) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.files[path.Key()]
	if !ok {
		if m.dirExistsLocked(path) {
			return nil, backend.ErrIsADirectory
		}
		return nil, backend.ErrNotFound
	}

	// Hand out a copy so callers cannot mutate the stored content.
	return append([]byte(nil), data.content...), nil
}

func (m *MemoryBackend) WriteFile(ctx context.Context, path vpath.Path, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if path.IsRoot() || m.dirExistsLocked(path) {
		return backend.ErrIsADirectory
	}

	m.files[path.Key()] = fileData{
		content: append([]byte(nil), data...),
		modTime: time.Now(),
	}
	return nil
}
