package handlers

import (
	"bytes"
	"fmt"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// ReaddirRequest represents a READDIR request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.7:
//
//	uint32 id
//	string handle
type ReaddirRequest struct {
	// Handle is the directory handle to pull entries from.
	Handle string
}

// DecodeReaddirRequest decodes a READDIR request payload.
func DecodeReaddirRequest(data []byte) (*ReaddirRequest, error) {
	reader := bytes.NewReader(data)
	req := &ReaddirRequest{}

	var err error
	if req.Handle, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode handle: %w", err)
	}

	return req, nil
}

// Readdir returns the next batch of directory entries.
//
// The first call against a handle triggers the backend listing; the
// result is cached in the handle and drained in batches of
// types.ReadDirBatchSize across subsequent calls. Clients keep calling
// until the EOF status arrives, which is the protocol's end-of-listing
// signal, not an error.
//
// Each entry carries the bare filename, an ls -l style longname, and
// the attribute block clients use to distinguish files from
// subdirectories.
func (h *DefaultSFTPHandler) Readdir(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *ReaddirRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	id, err := parseHandle(req.Handle)
	if err != nil {
		logger.Warn("READDIR failed: %v client=%s", err, ctx.ClientAddr)
		return statusFromError(handle.ErrInvalidHandle), nil
	}

	entries, err := handles.ReadDir(ctx.Context, id, types.ReadDirBatchSize)
	if err != nil {
		if ctx.Context.Err() != nil {
			return statusFromError(ctx.Context.Err()), ctx.Context.Err()
		}
		if err != handle.ErrEOF {
			logger.Warn("READDIR failed: handle=%d client=%s error=%v", id, ctx.ClientAddr, err)
		}
		return statusFromError(err), nil
	}

	reply := &NameReply{Entries: make([]NameEntry, 0, len(entries))}
	for _, entry := range entries {
		attr := wire.AttrFromInfo(entry.Info)
		reply.Entries = append(reply.Entries, NameEntry{
			Filename: entry.Name,
			Longname: FormatLongname(entry.Name, attr),
			Attr:     attr,
		})
	}

	logger.Debug("READDIR: handle=%d returned %d entries client=%s", id, len(entries), ctx.ClientAddr)

	return reply, nil
}
