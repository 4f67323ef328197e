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

// StatRequest represents a STAT or LSTAT request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.8:
//
//	uint32 id
//	string path
type StatRequest struct {
	// Path is the client-supplied path to inspect.
	Path string
}

// DecodeStatRequest decodes a STAT or LSTAT request payload.
func DecodeStatRequest(data []byte) (*StatRequest, error) {
	reader := bytes.NewReader(data)
	req := &StatRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}

	return req, nil
}

// Stat returns the attributes of a path.
//
// STAT and LSTAT both land here: the backends expose no symbolic links,
// so following links and not following them give the same answer. The
// root directory always stats successfully even on an empty backend.
func (h *DefaultSFTPHandler) Stat(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *StatRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Debug("STAT: path='%s' client=%s", req.Path, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("STAT failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	info, err := store.FileInfo(ctx.Context, path)
	if err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Debug("STAT failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return &AttrsReply{Attr: wire.AttrFromInfo(info)}, nil
}
