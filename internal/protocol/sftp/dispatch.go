package sftp

import (
	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/handlers"
	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// ============================================================================
// Procedure Dispatch Table
// ============================================================================

// procedureHandler defines the signature for per-operation dispatch
// functions. Each receives the request context, the protocol handler,
// the backend, the connection's handle table, and the raw request
// payload (everything after the request identifier), and returns the
// reply to send.
type procedureHandler func(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error)

// procedureInfo contains metadata about one request type for dispatch.
type procedureInfo struct {
	// Name is the procedure name for logging (e.g., "OPEN", "READDIR")
	Name string

	// Handler is the function that processes this procedure
	Handler procedureHandler
}

// dispatchTable maps request packet types to their procedures.
// This replaces a single large switch over packet types.
//
// The table is initialized once at package init time. Request types
// absent from the table (READLINK, SYMLINK, EXTENDED, and anything a
// future protocol version might add) are answered with
// SSH_FX_OP_UNSUPPORTED by the session loop.
var dispatchTable map[byte]*procedureInfo

func init() {
	initDispatchTable()
}

func initDispatchTable() {
	dispatchTable = map[byte]*procedureInfo{
		types.PacketOpen: {
			Name:    "OPEN",
			Handler: dispatchOpen,
		},
		types.PacketClose: {
			Name:    "CLOSE",
			Handler: dispatchClose,
		},
		types.PacketRead: {
			Name:    "READ",
			Handler: dispatchRead,
		},
		types.PacketWrite: {
			Name:    "WRITE",
			Handler: dispatchWrite,
		},
		types.PacketLstat: {
			Name:    "LSTAT",
			Handler: dispatchStat,
		},
		types.PacketFstat: {
			Name:    "FSTAT",
			Handler: dispatchFstat,
		},
		types.PacketSetstat: {
			Name:    "SETSTAT",
			Handler: dispatchSetstat,
		},
		types.PacketFsetstat: {
			Name:    "FSETSTAT",
			Handler: dispatchFsetstat,
		},
		types.PacketOpendir: {
			Name:    "OPENDIR",
			Handler: dispatchOpendir,
		},
		types.PacketReaddir: {
			Name:    "READDIR",
			Handler: dispatchReaddir,
		},
		types.PacketRemove: {
			Name:    "REMOVE",
			Handler: dispatchRemove,
		},
		types.PacketMkdir: {
			Name:    "MKDIR",
			Handler: dispatchMkdir,
		},
		types.PacketRmdir: {
			Name:    "RMDIR",
			Handler: dispatchRmdir,
		},
		types.PacketRealpath: {
			Name:    "REALPATH",
			Handler: dispatchRealpath,
		},
		types.PacketStat: {
			Name:    "STAT",
			Handler: dispatchStat,
		},
		types.PacketRename: {
			Name:    "RENAME",
			Handler: dispatchRename,
		},
	}
}

// ============================================================================
// Dispatch Functions
// ============================================================================
//
// Each dispatch function decodes its request type and forwards to the
// protocol handler. Malformed payloads never reach the handler; they
// are answered with SSH_FX_BAD_MESSAGE here.

// dispatchRequest decodes the payload and invokes the handler, turning
// decode failures into BAD_MESSAGE status replies.
func dispatchRequest[Req any](
	data []byte,
	procedure string,
	decode func([]byte) (*Req, error),
	call func(*Req) (handlers.Reply, error),
) (handlers.Reply, error) {
	req, err := decode(data)
	if err != nil {
		logger.Warn("%s: malformed request: %v", procedure, err)
		return &handlers.StatusReply{Code: types.StatusBadMessage, Message: err.Error()}, nil
	}
	return call(req)
}

func dispatchOpen(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "OPEN", handlers.DecodeOpenRequest,
		func(req *handlers.OpenRequest) (handlers.Reply, error) {
			return handler.Open(ctx, store, handleTable, req)
		})
}

func dispatchClose(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "CLOSE", handlers.DecodeCloseRequest,
		func(req *handlers.CloseRequest) (handlers.Reply, error) {
			return handler.Close(ctx, store, handleTable, req)
		})
}

func dispatchRead(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "READ", handlers.DecodeReadRequest,
		func(req *handlers.ReadRequest) (handlers.Reply, error) {
			return handler.Read(ctx, store, handleTable, req)
		})
}

func dispatchWrite(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "WRITE", handlers.DecodeWriteRequest,
		func(req *handlers.WriteRequest) (handlers.Reply, error) {
			return handler.Write(ctx, store, handleTable, req)
		})
}

func dispatchStat(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "STAT", handlers.DecodeStatRequest,
		func(req *handlers.StatRequest) (handlers.Reply, error) {
			return handler.Stat(ctx, store, handleTable, req)
		})
}

func dispatchFstat(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "FSTAT", handlers.DecodeFstatRequest,
		func(req *handlers.FstatRequest) (handlers.Reply, error) {
			return handler.Fstat(ctx, store, handleTable, req)
		})
}

func dispatchSetstat(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "SETSTAT", handlers.DecodeSetstatRequest,
		func(req *handlers.SetstatRequest) (handlers.Reply, error) {
			return handler.Setstat(ctx, store, handleTable, req)
		})
}

func dispatchFsetstat(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "FSETSTAT", handlers.DecodeFsetstatRequest,
		func(req *handlers.FsetstatRequest) (handlers.Reply, error) {
			return handler.Fsetstat(ctx, store, handleTable, req)
		})
}

func dispatchOpendir(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "OPENDIR", handlers.DecodeOpendirRequest,
		func(req *handlers.OpendirRequest) (handlers.Reply, error) {
			return handler.Opendir(ctx, store, handleTable, req)
		})
}

func dispatchReaddir(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "READDIR", handlers.DecodeReaddirRequest,
		func(req *handlers.ReaddirRequest) (handlers.Reply, error) {
			return handler.Readdir(ctx, store, handleTable, req)
		})
}

func dispatchRemove(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "REMOVE", handlers.DecodeRemoveRequest,
		func(req *handlers.RemoveRequest) (handlers.Reply, error) {
			return handler.Remove(ctx, store, handleTable, req)
		})
}

func dispatchMkdir(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "MKDIR", handlers.DecodeMkdirRequest,
		func(req *handlers.MkdirRequest) (handlers.Reply, error) {
			return handler.Mkdir(ctx, store, handleTable, req)
		})
}

func dispatchRmdir(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "RMDIR", handlers.DecodeRmdirRequest,
		func(req *handlers.RmdirRequest) (handlers.Reply, error) {
			return handler.Rmdir(ctx, store, handleTable, req)
		})
}

func dispatchRealpath(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "REALPATH", handlers.DecodeRealpathRequest,
		func(req *handlers.RealpathRequest) (handlers.Reply, error) {
			return handler.Realpath(ctx, store, handleTable, req)
		})
}

func dispatchRename(
	ctx *handlers.RequestContext,
	handler handlers.SFTPHandler,
	store backend.Backend,
	handleTable *handle.Manager,
	data []byte,
) (handlers.Reply, error) {
	return dispatchRequest(data, "RENAME", handlers.DecodeRenameRequest,
		func(req *handlers.RenameRequest) (handlers.Reply, error) {
			return handler.Rename(ctx, store, handleTable, req)
		})
}
