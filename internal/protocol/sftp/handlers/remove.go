package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// RemoveRequest represents a REMOVE request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.5:
//
//	uint32 id
//	string filename
type RemoveRequest struct {
	// Filename is the client-supplied path of the file to delete.
	Filename string
}

// DecodeRemoveRequest decodes a REMOVE request payload.
func DecodeRemoveRequest(data []byte) (*RemoveRequest, error) {
	reader := bytes.NewReader(data)
	req := &RemoveRequest{}

	var err error
	if req.Filename, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode filename: %w", err)
	}

	return req, nil
}

// Remove deletes a file. Directories are refused; RMDIR is the only
// way to remove them.
func (h *DefaultSFTPHandler) Remove(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *RemoveRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("REMOVE: path='%s' client=%s", req.Filename, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Filename)
	if err != nil {
		logger.Warn("REMOVE failed: invalid path '%s' client=%s error=%v", req.Filename, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	if err := store.Delete(ctx.Context, path); err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Warn("REMOVE failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return OK(), nil
}
