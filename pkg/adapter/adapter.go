package adapter

import (
	"context"

	"github.com/marmos91/dsftp/pkg/backend"
)

// Adapter represents a protocol-specific server adapter managed by the
// composition root in pkg/server.
//
// Each adapter exposes the shared storage backend over one file-transfer
// protocol and provides a unified interface for lifecycle management.
//
// Lifecycle:
//  1. Creation: Adapter is created with protocol-specific configuration
//  2. Backend injection: SetBackend() provides shared storage access
//  3. Startup: Serve() starts the protocol server and blocks until shutdown
//  4. Shutdown: Stop() initiates graceful shutdown with timeout
//
// Thread safety:
// Implementations must be safe for concurrent use. SetBackend() is called
// once before Serve(), but Stop() may be called concurrently with Serve().
type Adapter interface {
	// Serve starts the protocol server and blocks until the context is
	// cancelled or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must initiate graceful shutdown:
	//   - Stop accepting new connections
	//   - Wait for active sessions to complete (with timeout)
	//   - Clean up resources
	//   - Return context.Canceled or nil
	//
	// If Serve returns before context cancellation, the server treats it
	// as a fatal error and stops all other adapters.
	Serve(ctx context.Context) error

	// SetBackend injects the shared storage backend.
	//
	// Called exactly once before Serve(), so no synchronization is needed.
	// Every session the adapter spawns operates against this backend.
	SetBackend(store backend.Backend)

	// Stop initiates graceful shutdown of the protocol server.
	//
	// This method may be called concurrently with Serve(). Implementations
	// must:
	//   - Be safe to call multiple times (idempotent)
	//   - Respect the context timeout for shutdown operations
	//   - Clean up all resources (listeners, connections, goroutines)
	Stop(ctx context.Context) error

	// Protocol returns the human-readable protocol name for logging.
	//
	// Examples: "SFTP", "FTP", "WebDAV"
	Protocol() string

	// Port returns the TCP port the adapter is listening on.
	//
	// Returns 0 if the adapter has not yet started or uses dynamic port
	// allocation.
	Port() int
}
