package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// FstatRequest represents an FSTAT request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.8:
//
//	uint32 id
//	string handle
type FstatRequest struct {
	// Handle is the open handle to inspect.
	Handle string
}

// DecodeFstatRequest decodes an FSTAT request payload.
func DecodeFstatRequest(data []byte) (*FstatRequest, error) {
	reader := bytes.NewReader(data)
	req := &FstatRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}

	return req, nil
}

// Fstat returns the attributes of an open handle.
//
// The answer reflects the handle's own view: a write handle reports the
// size of its uncommitted buffer, a read handle the size of the content
// loaded at open time. The backend is not consulted.
func (h *DefaultSFTPHandler) Fstat(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *FstatRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("FSTAT failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	_, size, isDir, err := handles.Stat(id)
	if err != nil {
		logger.Warn("FSTAT failed: handle=%d client=%s error=%v", id, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	var info backend.FileInfo
	if isDir {
		info = backend.DirectoryInfo(time.Time{})
	} else {
		info = backend.RegularInfo(size, time.Now())
	}

	logger.Debug("FSTAT: handle=%d size=%d dir=%t client=%s", id, size, isDir, ctx.ClientAddr)

	return &AttrsReply{Attr: wire.AttrFromInfo(info)}, nil
}
