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

// RmdirRequest represents an RMDIR request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.6:
//
//	uint32 id
//	string path
type RmdirRequest struct {
	// Path is the client-supplied path of the directory to remove.
	Path string
}

// DecodeRmdirRequest decodes an RMDIR request payload.
func DecodeRmdirRequest(data []byte) (*RmdirRequest, error) {
	reader := bytes.NewReader(data)
	req := &RmdirRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}

	return req, nil
}

// Rmdir removes an empty directory. Non-empty directories and the root
// are refused.
func (h *DefaultSFTPHandler) Rmdir(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *RmdirRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("RMDIR: path='%s' client=%s", req.Path, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("RMDIR failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	if err := store.DelDir(ctx.Context, path); err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Warn("RMDIR failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return OK(), nil
}
