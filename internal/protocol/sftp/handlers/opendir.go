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

// OpendirRequest represents an OPENDIR request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.7:
//
//	uint32 id
//	string path
type OpendirRequest struct {
	// Path is the client-supplied directory path to list.
	Path string
}

// DecodeOpendirRequest decodes an OPENDIR request payload.
func DecodeOpendirRequest(data []byte) (*OpendirRequest, error) {
	reader := bytes.NewReader(data)
	req := &OpendirRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}

	return req, nil
}

// Opendir opens a directory for listing and allocates a handle.
//
// The directory must exist and be a directory; listing happens lazily
// on the first READDIR against the returned handle. Validating here
// rather than at READDIR time means a typo'd path fails at OPENDIR with
// a precise status instead of surfacing as an empty listing.
func (h *DefaultSFTPHandler) Opendir(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *OpendirRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("OPENDIR: path='%s' client=%s", req.Path, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("OPENDIR failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	if !path.IsRoot() {
		info, err := store.FileInfo(ctx.Context, path)
		if err != nil {
			if ctx.Context.Err() != nil {
				return statusFromError(ctx.Context.Err()), ctx.Context.Err()
			}
			logger.Warn("OPENDIR failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
			return statusFromError(err), nil
		}
		if !info.IsDir {
			logger.Warn("OPENDIR failed: '%s' is not a directory client=%s", path, ctx.ClientAddr)
			return statusFromError(backend.ErrNotADirectory), nil
		}
	}

	id := handles.OpenDir(path)
	logger.Debug("OPENDIR: directory handle %d for '%s'", id, path)

	return &HandleReply{Handle: formatHandle(id)}, nil
}
