package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// CloseRequest represents a CLOSE request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.3:
//
//	uint32 id
//	string handle
type CloseRequest struct {
	// Handle is the opaque handle string to release.
	Handle string
}

// DecodeCloseRequest decodes a CLOSE request payload.
func DecodeCloseRequest(data []byte) (*CloseRequest, error) {
	reader := bytes.NewReader(data)
	req := &CloseRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}

	return req, nil
}

// Close releases a handle.
//
// For write handles this is the commit point: the buffered content is
// written to the backend as one object, and only a successful flush
// yields an OK status. Read and directory handles release their state
// with no backend traffic.
//
// A flush failure still removes the handle; the buffered data is gone
// and the client learns it from the error status.
func (h *DefaultSFTPHandler) Close(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *CloseRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Debug("CLOSE: handle=%s client=%s", req.Handle, ctx.ClientAddr)

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("CLOSE failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	if err := handles.Close(ctx.Context, id); err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Warn("CLOSE failed: handle=%d client=%s error=%v", id, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return OK(), nil
}
