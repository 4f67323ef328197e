package handlers

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// ============================================================================
// Request Structure
// ============================================================================

// OpenRequest represents an OPEN request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.3:
//
//	uint32 id
//	string filename
//	uint32 pflags
//	ATTRS  attrs
//
// The pflags field selects the access mode (read, write, append) and
// creation behavior (create, truncate, exclusive). The attribute block
// suggests initial attributes for created files.
type OpenRequest struct {
	// Filename is the client-supplied path of the file to open.
	Filename string

	// Pflags is the bitmask of types.OpenFlag* values.
	Pflags uint32

	// Attr carries the requested initial attributes. Object-storage
	// backends have nowhere to persist them, so they are accepted and
	// ignored.
	Attr *wire.FileAttr
}

// DecodeOpenRequest decodes an OPEN request payload.
func DecodeOpenRequest(data []byte) (*OpenRequest, error) {
	reader := bytes.NewReader(data)
	req := &OpenRequest{}

	var err error
	if req.Filename, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode filename: %w", err)
	}
	if req.Pflags, err = wire.DecodeUint32(reader); err != nil {
		return nil, fmt.Errorf("decode pflags: %w", err)
	}
	if req.Attr, err = wire.DecodeAttrs(reader); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}

	return req, nil
}

// ============================================================================
// Protocol Handler
// ============================================================================

// Open opens a file and allocates a handle for it.
//
// **Access modes:**
//
// Write access (SSH_FXF_WRITE or SSH_FXF_APPEND) allocates a write
// handle. Written data accumulates in the handle's buffer and reaches
// the backend as one object when the handle is closed; the file is not
// visible at its path until then. SSH_FXF_EXCL fails the open when the
// path already exists.
//
// Read access loads the entire object at open time and serves READ
// requests from the in-memory copy. Object stores have no partial-read
// primitive that is cheaper than a full fetch for typical transfer
// sizes, so the whole object is fetched once and sliced per request.
//
// Opens with neither read nor write access are rejected.
//
// **Parameters:**
//   - ctx: Request context with cancellation and client address
//   - store: Storage backend
//   - handles: The connection's handle table
//   - req: Decoded OPEN request
//
// **Returns:**
//   - Reply: HandleReply on success, StatusReply on failure
//   - error: Context cancellation only
func (h *DefaultSFTPHandler) Open(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *OpenRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		logger.Debug("OPEN cancelled before processing: path='%s' client=%s", req.Filename, ctx.ClientAddr)
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("OPEN: path='%s' pflags=0x%x client=%s", req.Filename, req.Pflags, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Filename)
	if err != nil {
		logger.Warn("OPEN failed: invalid path '%s' client=%s error=%v", req.Filename, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	wantWrite := req.Pflags&(types.OpenFlagWrite|types.OpenFlagAppend) != 0
	wantRead := req.Pflags&types.OpenFlagRead != 0

	switch {
	case wantWrite:
		if req.Pflags&types.OpenFlagExcl != 0 {
			switch _, err := store.FileInfo(ctx.Context, path); {
			case err == nil:
				logger.Warn("OPEN failed: exclusive create but '%s' exists client=%s", path, ctx.ClientAddr)
				return statusFromError(backend.ErrAlreadyExists), nil
			case !errors.Is(err, backend.ErrNotFound):
				// Only a confirmed absence lets the exclusive create
				// proceed. A backend fault here must not be read as
				// "does not exist".
				logger.Warn("OPEN failed: exclusive check for '%s' client=%s error=%v", path, ctx.ClientAddr, err)
				return statusFromError(err), nil
			}
		}

		id := handles.OpenWrite(path)
		logger.Debug("OPEN: write handle %d for '%s'", id, path)
		return &HandleReply{Handle: formatHandle(id)}, nil

	case wantRead:
		content, err := store.ReadFile(ctx.Context, path)
		if err != nil {
			if ctx.Context.Err() != nil {
				return statusFromError(ctx.Context.Err()), ctx.Context.Err()
			}
			logger.Warn("OPEN failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
			return statusFromError(err), nil
		}

		id := handles.OpenRead(path, content)
		logger.Debug("OPEN: read handle %d for '%s' (%d bytes)", id, path, len(content))
		return &HandleReply{Handle: formatHandle(id)}, nil

	default:
		logger.Warn("OPEN failed: no access mode in pflags=0x%x client=%s", req.Pflags, ctx.ClientAddr)
		return &StatusReply{Code: types.StatusFailure, Message: "open requires read or write access"}, nil
	}
}
