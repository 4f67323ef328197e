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

// MkdirRequest represents a MKDIR request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.6:
//
//	uint32 id
//	string path
//	ATTRS  attrs
type MkdirRequest struct {
	// Path is the client-supplied path of the directory to create.
	Path string

	// Attr carries the requested initial attributes. Accepted and
	// ignored; backends apply their own defaults.
	Attr *wire.FileAttr
}

// DecodeMkdirRequest decodes a MKDIR request payload.
func DecodeMkdirRequest(data []byte) (*MkdirRequest, error) {
	reader := bytes.NewReader(data)
	req := &MkdirRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	if req.Attr, err = wire.DecodeAttrs(reader); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}

	return req, nil
}

// Mkdir creates a directory. Creating a path that already exists fails,
// as does creating the root.
func (h *DefaultSFTPHandler) Mkdir(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *MkdirRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	logger.Info("MKDIR: path='%s' client=%s", req.Path, ctx.ClientAddr)

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("MKDIR failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	if path.IsRoot() {
		logger.Warn("MKDIR failed: refusing to create root client=%s", ctx.ClientAddr)
		return statusFromError(backend.ErrAlreadyExists), nil
	}

	if err := store.MakeDir(ctx.Context, path); err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		logger.Warn("MKDIR failed: path='%s' client=%s error=%v", path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	return OK(), nil
}
