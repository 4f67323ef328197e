// Package backend defines the storage contract the SFTP protocol engine
// is written against.
//
// A Backend is a capability set: any storage system able to satisfy the
// nine operations below can serve as the filesystem behind the protocol.
// The engine depends only on this interface; the concrete backend (memory,
// S3, BadgerDB, or a custom implementation) is selected at startup by the
// configuration layer.
//
// All operations take normalized paths (vpath.Path) and report failures
// through the sentinel errors in errors.go so that protocol handlers can
// translate them to status codes with errors.Is.
package backend

import (
	"context"
	"time"

	"github.com/marmos91/dsftp/pkg/vpath"
)

// FileInfo describes a file or directory.
//
// Fields a backend cannot provide are left at their zero value and masked
// out via the Has* presence flags; the attribute encoder only puts fields
// on the wire when their flag is set.
type FileInfo struct {
	// Size is the file size in bytes. Directories report 4096.
	Size uint64

	// IsDir distinguishes directories from regular files. The virtual
	// filesystem has no other node kinds.
	IsDir bool

	// Mode holds Unix permission bits (e.g. 0644). Only meaningful when
	// HasMode is set.
	Mode uint32

	// ModTime is the last modification time. Only meaningful when
	// HasModTime is set; object backends derive it from object metadata.
	ModTime time.Time

	// UID and GID are the owning user and group. Only meaningful when
	// HasOwner is set.
	UID uint32
	GID uint32

	// Presence flags. Absence is explicit, not zero: a backend that does
	// not track permissions leaves HasMode false rather than reporting 0.
	HasMode    bool
	HasModTime bool
	HasOwner   bool
}

// DirectoryInfo returns the synthetic FileInfo used for directories on
// backends that do not store directory metadata of their own.
func DirectoryInfo(modTime time.Time) FileInfo {
	return FileInfo{
		Size:       4096,
		IsDir:      true,
		Mode:       0755,
		ModTime:    modTime,
		UID:        defaultUID,
		GID:        defaultGID,
		HasMode:    true,
		HasModTime: !modTime.IsZero(),
		HasOwner:   true,
	}
}

// RegularInfo returns the synthetic FileInfo used for regular files on
// backends that track only size and modification time.
func RegularInfo(size uint64, modTime time.Time) FileInfo {
	return FileInfo{
		Size:       size,
		IsDir:      false,
		Mode:       0644,
		ModTime:    modTime,
		UID:        defaultUID,
		GID:        defaultGID,
		HasMode:    true,
		HasModTime: !modTime.IsZero(),
		HasOwner:   true,
	}
}

const (
	defaultUID = 1000
	defaultGID = 1000
)

// DirEntry is a single directory listing entry. Name is a bare path
// segment, never a full path.
type DirEntry struct {
	Name string
	Info FileInfo
}

// Backend is the storage contract.
//
// Behavioral guarantees every implementation must honor:
//
//   - Operations are safe to invoke concurrently for different paths.
//     Concurrent operations on the same path are linearizable; they must
//     never corrupt backend-internal bookkeeping.
//   - Ordinary failures (not found, exists, permission) are reported via
//     the sentinel errors, never via panic. Only unrecoverable faults
//     (lost storage connectivity) may surface as other error values,
//     typically wrapping ErrUnavailable.
//   - The root path always exists and is a directory.
//   - Backend-specific policies (whether MakeDir requires the parent to
//     exist, whether Rename overwrites) must be consistent and documented
//     on the implementation. All backends shipped in this repo reject
//     Rename onto an occupied destination with ErrAlreadyExists.
type Backend interface {
	// ListDir returns the entries of the directory at path, including the
	// "." and ".." entries. Fails with ErrNotFound if the path does not
	// exist and ErrNotADirectory if it names a file.
	ListDir(ctx context.Context, path vpath.Path) ([]DirEntry, error)

	// FileInfo returns the attributes of the file or directory at path.
	// Fails with ErrNotFound. The root always succeeds.
	FileInfo(ctx context.Context, path vpath.Path) (FileInfo, error)

	// MakeDir creates the directory at path. Fails with ErrAlreadyExists
	// if the path is occupied. Whether a missing parent is an error is a
	// documented per-backend policy.
	MakeDir(ctx context.Context, path vpath.Path) error

	// DelDir removes the directory at path. Fails with ErrNotFound and,
	// when the directory still has children, ErrNotEmpty.
	DelDir(ctx context.Context, path vpath.Path) error

	// Delete removes the file at path. Fails with ErrNotFound and with
	// ErrIsADirectory when the path names a directory.
	Delete(ctx context.Context, path vpath.Path) error

	// Rename moves src to dst. Atomic from the client's observable
	// perspective: there is no intermediate state in which neither src
	// nor dst resolves validly. Fails with ErrNotFound (src absent) and
	// ErrAlreadyExists (dst occupied).
	Rename(ctx context.Context, src, dst vpath.Path) error

	// ReadFile returns the full contents of the file at path. Fails with
	// ErrNotFound and ErrIsADirectory.
	ReadFile(ctx context.Context, path vpath.Path) ([]byte, error)

	// WriteFile replaces or creates the file at path with data. Fails
	// with ErrIsADirectory when the path names an existing directory.
	WriteFile(ctx context.Context, path vpath.Path, data []byte) error
}

// KeepMarker is the zero-length object flat-namespace backends materialize
// to make an empty directory observable.
const KeepMarker = ".keep"
