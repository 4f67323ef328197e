package handlers

import (
	"fmt"
	"strconv"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// SFTPHandler defines the per-operation entry points of the protocol
// engine. Each method receives the request context, the storage backend,
// the connection's handle table, and the decoded request, and returns
// the reply to send.
//
// The error return is reserved for context cancellation and catastrophic
// internal failures; protocol-level failures are reported to the client
// through a StatusReply.
type SFTPHandler interface {
	// Open opens a file for reading or writing and allocates a handle.
	// draft-ietf-secsh-filexfer-02 Section 6.3
	Open(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *OpenRequest) (Reply, error)

	// Close releases a handle, flushing buffered writes.
	// draft-ietf-secsh-filexfer-02 Section 6.3
	Close(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *CloseRequest) (Reply, error)

	// Read returns data from an open file handle.
	// draft-ietf-secsh-filexfer-02 Section 6.4
	Read(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *ReadRequest) (Reply, error)

	// Write stores data into an open file handle.
	// draft-ietf-secsh-filexfer-02 Section 6.4
	Write(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *WriteRequest) (Reply, error)

	// Stat returns the attributes of a path. Serves both STAT and LSTAT;
	// the backends expose no symbolic links, so the two coincide.
	// draft-ietf-secsh-filexfer-02 Section 6.8
	Stat(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *StatRequest) (Reply, error)

	// Fstat returns the attributes of an open handle.
	// draft-ietf-secsh-filexfer-02 Section 6.8
	Fstat(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *FstatRequest) (Reply, error)

	// Setstat acknowledges an attribute change on a path.
	// draft-ietf-secsh-filexfer-02 Section 6.9
	Setstat(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *SetstatRequest) (Reply, error)

	// Fsetstat acknowledges an attribute change on an open handle.
	// draft-ietf-secsh-filexfer-02 Section 6.9
	Fsetstat(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *FsetstatRequest) (Reply, error)

	// Opendir opens a directory listing and allocates a handle.
	// draft-ietf-secsh-filexfer-02 Section 6.7
	Opendir(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *OpendirRequest) (Reply, error)

	// Readdir returns the next batch of directory entries.
	// draft-ietf-secsh-filexfer-02 Section 6.7
	Readdir(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *ReaddirRequest) (Reply, error)

	// Remove deletes a file.
	// draft-ietf-secsh-filexfer-02 Section 6.5
	Remove(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *RemoveRequest) (Reply, error)

	// Mkdir creates a directory.
	// draft-ietf-secsh-filexfer-02 Section 6.6
	Mkdir(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *MkdirRequest) (Reply, error)

	// Rmdir removes an empty directory.
	// draft-ietf-secsh-filexfer-02 Section 6.6
	Rmdir(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *RmdirRequest) (Reply, error)

	// Realpath canonicalizes a client-supplied path.
	// draft-ietf-secsh-filexfer-02 Section 6.10
	Realpath(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *RealpathRequest) (Reply, error)

	// Rename moves a file or directory to a new path.
	// draft-ietf-secsh-filexfer-02 Section 6.5
	Rename(ctx *RequestContext, store backend.Backend, handles *handle.Manager, req *RenameRequest) (Reply, error)
}

// DefaultSFTPHandler is the standard implementation of SFTPHandler.
// It is stateless; all per-connection state lives in the handle.Manager
// passed to each call.
type DefaultSFTPHandler struct{}

// NewSFTPHandler creates the default protocol handler.
func NewSFTPHandler() *DefaultSFTPHandler {
	return &DefaultSFTPHandler{}
}

// formatHandle renders a handle identifier as its wire representation.
// Handles travel as opaque strings; this server uses the decimal form
// of the numeric identifier.
func formatHandle(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// parseHandle recovers the numeric identifier from a wire handle string.
// Anything that is not a decimal number was never issued by this server.
func parseHandle(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed handle %q", raw)
	}
	return id, nil
}
