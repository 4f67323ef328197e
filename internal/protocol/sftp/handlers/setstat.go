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

// SetstatRequest represents a SETSTAT request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.9:
//
//	uint32 id
//	string path
//	ATTRS  attrs
type SetstatRequest struct {
	// Path is the client-supplied path whose attributes should change.
	Path string

	// Attr is the requested attribute change.
	Attr *wire.FileAttr
}

// DecodeSetstatRequest decodes a SETSTAT request payload.
func DecodeSetstatRequest(data []byte) (*SetstatRequest, error) {
	reader := bytes.NewReader(data)
	req := &SetstatRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}
	if req.Attr, err = wire.DecodeAttrs(reader); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}

	return req, nil
}

// Setstat acknowledges an attribute change on a path.
//
// The backends are object stores with no persistent mode, ownership or
// timestamp fields, so there is nothing to apply. The request still
// validates its path and succeeds, which keeps clients that chmod after
// upload (rsync, sshfs, most GUI clients) working against this server.
func (h *DefaultSFTPHandler) Setstat(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *SetstatRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("SETSTAT failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	logger.Debug("SETSTAT: path='%s' flags=0x%x client=%s (acknowledged, attributes not persisted)",
		path, req.Attr.Flags, ctx.ClientAddr)

	return OK(), nil
}
