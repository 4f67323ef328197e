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

// RenameRequest represents a RENAME request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.5:
//
//	uint32 id
//	string oldpath
//	string newpath
type RenameRequest struct {
	// OldPath is the current path of the file or directory.
	OldPath string

	// NewPath is the destination path.
	NewPath string
}

// DecodeRenameRequest decodes a RENAME request payload.
func DecodeRenameRequest(data []byte) (*RenameRequest, error) {
	reader := bytes.NewReader(data)
	req := &RenameRequest{}

	var err error
	if req.OldPath, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode oldpath: %w", err)
	}
	if req.NewPath, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode newpath: %w", err)
	}

	return req, nil
}

// Rename moves a file or directory to a new path.
//
// Renaming onto an occupied destination fails and leaves the source in
// place, per draft-ietf-secsh-filexfer-02 Section 6.5. Directory
// renames move the whole subtree.
func (h *DefaultSFTPHandler) Rename(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *RenameRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("RENAME: '%s' -> '%s' client=%s", req.OldPath, req.NewPath, ctx.ClientAddr)

	src, err := vpath.Normalize(req.OldPath)
	if err != nil {
		logger.Warn("RENAME failed: invalid source '%s' client=%s error=%v", req.OldPath, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	dst, err := vpath.Normalize(req.NewPath)
	if err != nil {
		logger.Warn("RENAME failed: invalid destination '%s' client=%s error=%v", req.NewPath, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	if err := store.Rename(ctx.Context, src, dst); err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Warn("RENAME failed: '%s' -> '%s' client=%s error=%v", src, dst, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return OK(), nil
}
