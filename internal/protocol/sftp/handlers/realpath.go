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

// RealpathRequest represents a REALPATH request from a client.
//
// Per draft-ietf-secsh-filexfer-02 Section 6.10:
//
//	uint32 id
//	string path
type RealpathRequest struct {
	// Path is the client-supplied path to canonicalize.
	Path string
}

// DecodeRealpathRequest decodes a REALPATH request payload.
func DecodeRealpathRequest(data []byte) (*RealpathRequest, error) {
	reader := bytes.NewReader(data)
	req := &RealpathRequest{}

	var err error
	if req.Path, err = wire.DecodeString(reader); err != nil {
		return nil, fmt.Errorf("decode path: %w", err)
	}

	return req, nil
}

// Realpath canonicalizes a path without touching the backend.
//
// Clients send "." immediately after version negotiation to learn their
// starting directory, and resolve relative paths through this call. The
// answer is purely syntactic; the path does not need to exist. The
// reply is a single NAME entry whose filename is the canonical form,
// with an empty attribute block as clients expect.
func (h *DefaultSFTPHandler) Realpath(
	ctx *RequestContext,
	store backend.Backend,
	handles *handle.Manager,
	req *RealpathRequest,
) (Reply, error) {
	select {
	case <-ctx.Context.Done():
		return statusFromError(ctx.Context.Err()), ctx.Context.Err()
	default:
	}

	path, err := vpath.Normalize(req.Path)
	if err != nil {
		logger.Warn("REALPATH failed: invalid path '%s' client=%s error=%v", req.Path, ctx.ClientAddr, err)
		return statusFromError(err), nil
	}

	logger.Debug("REALPATH: '%s' -> '%s' client=%s", req.Path, path, ctx.ClientAddr)

	resolved := path.String()
	return &NameReply{Entries: []NameEntry{{
		Filename: resolved,
		Longname: resolved,
		Attr:     &wire.FileAttr{},
	}}}, nil
}
