package backend

import "errors"

// Sentinel errors reported by Backend implementations.
//
// Implementations wrap these with context:
//
//	return fmt.Errorf("head object %q: %w", key, backend.ErrNotFound)
//
// Protocol handlers check them with errors.Is and translate each one to
// its SFTP status code; none of them is ever fatal to a connection.
var (
	// ErrNotFound indicates the path does not exist.
	ErrNotFound = errors.New("file or directory not found")

	// ErrAlreadyExists indicates the destination path is occupied.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrNotADirectory indicates a directory operation hit a file.
	ErrNotADirectory = errors.New("not a directory")

	// ErrIsADirectory indicates a file operation hit a directory.
	ErrIsADirectory = errors.New("is a directory")

	// ErrNotEmpty indicates a directory removal on a non-empty directory.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrPermissionDenied indicates the storage system denied access.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable indicates the storage system itself failed (lost
	// connectivity, corrupted store). Per-request it maps to a generic
	// failure status; the surrounding server may escalate repeated
	// occurrences.
	ErrUnavailable = errors.New("backend unavailable")
)
