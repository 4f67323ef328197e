package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// ReadRequest represents a READ request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.4:
//
//	uint32 id
//	string handle
//	uint64 offset
//	uint32 len
type ReadRequest struct {
	// Handle is the read handle to pull data from.
	Handle string

	// Offset is the absolute byte offset to read at. Clients may read
	// out of order; each request carries its own offset.
	Offset uint64

	// Length is the maximum number of bytes to return.
	Length uint32
}

// DecodeReadRequest decodes a READ request payload.
func DecodeReadRequest(data []byte) (*ReadRequest, error) {
	reader := bytes.NewReader(data)
	req := &ReadRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}
	if req.Offset, err = wire.DecodeUint64(reader); err != nil {
		return nil, fmt.Errorf("decode offset: %w", err)
	}
	if req.Length, err = wire.DecodeUint32(reader); err != nil {
		return nil, fmt.Errorf("decode length: %w", err)
	}

	return req, nil
}

// maxReadLength caps the data returned by a single READ so the framed
// DATA reply always fits under wire.MaxPacketSize. The margin covers the
// frame header, type byte, request id and the payload length prefix.
const maxReadLength = wire.MaxPacketSize - 1024

// Read returns a chunk of file data from an open read handle.
//
// The handle holds the full object content, so this is a bounds-checked
// slice with no backend traffic. A read at or past end of file produces
// an EOF status, which is how clients detect the end of a download. A
// short read near the end returns the remaining bytes with an OK data
// reply; the EOF arrives on the next request.
//
// Requests larger than maxReadLength are served as short reads. The
// protocol lets the server return fewer bytes than asked for, so a
// client asking for more than one reply can carry simply issues a
// follow-up READ at the advanced offset.
func (h *DefaultSFTPHandler) Read(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *ReadRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("READ failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	length := req.Length
	if length > maxReadLength {
		length = maxReadLength
	}

	data, err := handles.Read(id, req.Offset, length)
	if err != nil {
		if err != handle.ErrEOF {
			logger.Warn("READ failed: handle=%d offset=%d client=%s error=%v",
				id, req.Offset, ctx.ClientAddr, err)
		}
		return statusFromError(err), nil
	}

	logger.Debug("READ: handle=%d offset=%d len=%d returned=%d client=%s",
		id, req.Offset, req.Length, len(data), ctx.ClientAddr)

	return &DataReply{Data: data}, nil
}
