package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// FsetstatRequest represents an FSETSTAT request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.9:
//
//	uint32 id
//	string handle
//	ATTRS  attrs
type FsetstatRequest struct {
	// Handle is the open handle whose attributes should change.
	Handle string

	// Attr is the requested attribute change.
	Attr *wire.FileAttr
}

// DecodeFsetstatRequest decodes an FSETSTAT request payload.
func DecodeFsetstatRequest(data []byte) (*FsetstatRequest, error) {
	reader := bytes.NewReader(data)
	req := &FsetstatRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}
	if req.Attr, err = wire.DecodeAttrs(reader); err != nil {
		return nil, fmt.Errorf("decode attrs: %w", err)
	}

	return req, nil
}

// Fsetstat acknowledges an attribute change on an open handle.
//
// Like Setstat, there is no attribute store to apply the change to.
// The handle is still validated so stale handles fail loudly.
func (h *DefaultSFTPHandler) Fsetstat(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *FsetstatRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("FSETSTAT failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	if _, _, _, err := handles.Stat(id); err != nil {
		logger.Warn("FSETSTAT failed: handle=%d client=%s error=%v", id, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	logger.Debug("FSETSTAT: handle=%d flags=0x%x client=%s (acknowledged, attributes not persisted)",
		id, req.Attr.Flags, ctx.ClientAddr)

	return OK(), nil
}
