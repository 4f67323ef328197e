package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// WriteRequest represents a WRITE request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.4:
//
//	uint32 id
//	string handle
//	uint64 offset
//	string data
type WriteRequest struct {
	// Handle is the write handle to store data into.
	Handle string

	// Offset is the absolute byte offset of this chunk. Chunks may
	// arrive out of order; the buffer grows and zero-fills as needed.
	Offset uint64

	// Data is the chunk payload.
	Data []byte
}

// DecodeWriteRequest decodes a WRITE request payload.
func DecodeWriteRequest(data []byte) (*WriteRequest, error) {
	reader := bytes.NewReader(data)
	req := &WriteRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}
	if req.Offset, err = wire.DecodeUint64(reader); err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}
	if req.Data, err = wire.DecodeBytes(reader); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}

	return req, nil
}

// Write stores a chunk into an open write handle's buffer.
//
// Nothing reaches the backend here; the accumulated buffer is committed
// as one object when the handle is closed. This makes each WRITE cheap
// and gives object-storage backends a single atomic upload instead of a
// stream of partial updates.
func (h *DefaultSFTPHandler) Write(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *WriteRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("WRITE failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	if err := handles.Write(id, req.Offset, req.Data); err != nil {
		logger.Warn("WRITE failed: handle=%d offset=%d client=%s error=%v",
			id, req.Offset, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	logger.Debug("WRITE: handle=%d offset=%d len=%d client=%s",
		id, req.Offset, len(req.Data), ctx.ClientAddr)

	return OK(), nil
}
