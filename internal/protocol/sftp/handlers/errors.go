package handlers

import (
	"context"
	"errors"

	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// statusFromError maps backend, handle and path errors to a STATUS reply.
//
// The mapping follows draft-ietf-secsh-filexfer-02 Section 7: missing
// paths and invalid names become SSH_FX_NO_SUCH_FILE, refused access
// becomes SSH_FX_PERMISSION_DENIED, end-of-data signals become
// SSH_FX_EOF, and everything else collapses into SSH_FX_FAILURE with
// the underlying message preserved for the client.
func statusFromError(err error) *StatusReply {
	switch {
	case errors.Is(err, handle.ErrEOF):
		return EOF()

	case errors.Is(err, backend.ErrNotFound):
		return &StatusReply{Code: types.StatusNoSuchFile, Message: "No such file"}

	case errors.Is(err, vpath.ErrInvalidPath):
		return &StatusReply{Code: types.StatusNoSuchFile, Message: err.Error()}

	case errors.Is(err, backend.ErrPermissionDenied):
		return &StatusReply{Code: types.StatusPermissionDenied, Message: "Permission denied"}

	case errors.Is(err, backend.ErrAlreadyExists):
		return &StatusReply{Code: types.StatusFailure, Message: "File already exists"}

	case errors.Is(err, backend.ErrNotEmpty):
		return &StatusReply{Code: types.StatusFailure, Message: "Directory not empty"}

	case errors.Is(err, backend.ErrNotADirectory):
		return &StatusReply{Code: types.StatusFailure, Message: "Not a directory"}

	case errors.Is(err, backend.ErrIsADirectory):
		return &StatusReply{Code: types.StatusFailure, Message: "Is a directory"}

	case errors.Is(err, backend.ErrUnavailable):
		return &StatusReply{Code: types.StatusFailure, Message: "Storage unavailable"}

	case errors.Is(err, handle.ErrInvalidHandle),
		errors.Is(err, handle.ErrWrongHandleType):
		return &StatusReply{Code: types.StatusFailure, Message: "Invalid handle"}

	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return &StatusReply{Code: types.StatusFailure, Message: "Operation cancelled"}

	default:
		return &StatusReply{Code: types.StatusFailure, Message: err.Error()}
	}
}
