// Package handle tracks the open files and open directory listings of a
// single connection as opaque numeric tokens.
//
// One Manager exists per connection. Ids are allocated monotonically and
// never reused for the lifetime of the connection, so a stale id from a
// reordered client message can never alias a newer resource. Entries form
// a tagged union over three resource kinds: a read handle carrying the
// file content loaded at open time, a write handle accumulating a buffer,
// and a directory handle draining a listing in batches.
//
// Write visibility: writes are buffered and flushed to the backend as one
// complete file on Close. Other sessions never observe a partially
// written file; a connection that dies before Close loses its buffered
// data (Abandon), it is not silently committed.
package handle

import (
	"context"
	"errors"
	"sync"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/vpath"
)

var (
	// ErrInvalidHandle indicates an id that is not (or no longer) in the
	// table.
	ErrInvalidHandle = errors.New("invalid handle")

	// ErrWrongHandleType indicates an operation against a handle of the
	// other kind, e.g. Read on a directory handle.
	ErrWrongHandleType = errors.New("wrong handle type")

	// ErrEOF signals end of file or end of listing. It is a signal, not a
	// failure: the protocol layer translates it to the EOF status.
	ErrEOF = errors.New("end of file")
)

type entryKind int

const (
	kindRead entryKind = iota
	kindWrite
	kindDir
)

// entry is the tagged union stored per handle id.
type entry struct {
	kind entryKind
	path vpath.Path

	// Read handles.
	content []byte
	cursor  uint64

	// Write handles.
	buffer []byte

	// Directory handles.
	pending   []backend.DirEntry
	fetched   bool
	exhausted bool
}

// Manager owns the handle table of one connection.
//
// Thread safety: all methods are safe for concurrent use. The protocol
// engine dispatches one connection's requests sequentially, so operations
// on the same handle are applied in the order the client issued them.
type Manager struct {
	mu      sync.Mutex
	backend backend.Backend
	entries map[uint64]*entry
	nextID  uint64
}

// NewManager creates an empty handle table backed by b.
func NewManager(b backend.Backend) *Manager {
	return &Manager{
		backend: b,
		entries: make(map[uint64]*entry),
		nextID:  1,
	}
}

func (m *Manager) allocate(e *entry) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	m.entries[id] = e
	return id
}

// OpenRead registers a read handle over content previously loaded from
// the backend. Never fails; the caller validates existence first.
func (m *Manager) OpenRead(path vpath.Path, content []byte) uint64 {
	return m.allocate(&entry{kind: kindRead, path: path, content: content})
}

// OpenWrite registers a write handle with an empty buffer.
func (m *Manager) OpenWrite(path vpath.Path) uint64 {
	return m.allocate(&entry{kind: kindWrite, path: path})
}

// OpenDir registers a directory handle. The listing is fetched lazily on
// the first ReadDir call.
func (m *Manager) OpenDir(path vpath.Path) uint64 {
	return m.allocate(&entry{kind: kindDir, path: path})
}

// Read returns up to length bytes of the content behind a read handle,
// starting at offset. A short read happens only at end of content; an
// offset at or past the end returns ErrEOF.
func (m *Manager) Read(id uint64, offset uint64, length uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, ErrInvalidHandle
	}
	if e.kind != kindRead {
		return nil, ErrWrongHandleType
	}

	if offset >= uint64(len(e.content)) {
		return nil, ErrEOF
	}

	end := offset + uint64(length)
	if end > uint64(len(e.content)) {
		end = uint64(len(e.content))
	}
	e.cursor = end
	return e.content[offset:end], nil
}

// Write stores data at offset in the buffer behind a write handle.
// Offsets past the current buffer end are zero-filled, matching sparse
// write semantics. Nothing reaches the backend until Close.
func (m *Manager) Write(id uint64, offset uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrInvalidHandle
	}
	if e.kind != kindWrite {
		return ErrWrongHandleType
	}

	end := offset + uint64(len(data))
	if end > uint64(len(e.buffer)) {
		grown := make([]byte, end)
		copy(grown, e.buffer)
		e.buffer = grown
	}
	copy(e.buffer[offset:end], data)
	return nil
}

// ReadDir drains up to max entries of the listing behind a directory
// handle. The first call fetches the listing from the backend; once the
// listing is drained every further call returns ErrEOF until Close.
func (m *Manager) ReadDir(ctx context.Context, id uint64, max int) ([]backend.DirEntry, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrInvalidHandle
	}
	if e.kind != kindDir {
		m.mu.Unlock()
		return nil, ErrWrongHandleType
	}

	if e.exhausted {
		m.mu.Unlock()
		return nil, ErrEOF
	}

	if !e.fetched {
		// Fetch outside the lock; the backend call may suspend on I/O.
		path := e.path
		m.mu.Unlock()

		entries, err := m.backend.ListDir(ctx, path)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		// Re-check: the handle may have been closed while listing.
		e, ok = m.entries[id]
		if !ok {
			m.mu.Unlock()
			return nil, ErrInvalidHandle
		}
		if !e.fetched {
			e.pending = entries
			e.fetched = true
		}
	}

	if len(e.pending) == 0 {
		// Empty listing: signal end immediately.
		e.exhausted = true
		m.mu.Unlock()
		return nil, ErrEOF
	}

	n := min(len(e.pending), max)
	batch := e.pending[:n]
	e.pending = e.pending[n:]
	if len(e.pending) == 0 {
		e.exhausted = true
	}
	m.mu.Unlock()
	return batch, nil
}

// Stat reports the path, current size, and kind of an open handle, used
// to answer FSTAT without touching the backend for buffered state.
func (m *Manager) Stat(id uint64) (vpath.Path, uint64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return "", 0, false, ErrInvalidHandle
	}

	switch e.kind {
	case kindRead:
		return e.path, uint64(len(e.content)), false, nil
	case kindWrite:
		return e.path, uint64(len(e.buffer)), false, nil
	default:
		return e.path, 0, true, nil
	}
}

// Close removes a handle from the table. For write handles the buffered
// content is flushed to the backend as a single complete file first; a
// flush failure leaves the handle closed (the buffer is not retried) and
// the error is reported to the client.
func (m *Manager) Close(ctx context.Context, id uint64) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok {
		m.mu.Unlock()
		return ErrInvalidHandle
	}
	delete(m.entries, id)
	m.mu.Unlock()

	if e.kind == kindWrite {
		return m.backend.WriteFile(ctx, e.path, e.buffer)
	}
	return nil
}

// Abandon drops every handle without flushing. Called on connection
// teardown: buffered writes are discarded, not committed.
func (m *Manager) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}

// Len returns the number of live handles. Used by tests and teardown
// logging.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
