package types

import "fmt"

// StatusToString converts an SFTP status code to its canonical name.
// Unknown codes come back as "UNKNOWN_<code>".
func StatusToString(status uint32) string {
	switch status {
	case StatusOK:
		return "SSH_FX_OK"
	case StatusEOF:
		return "SSH_FX_EOF"
	case StatusNoSuchFile:
		return "SSH_FX_NO_SUCH_FILE"
	case StatusPermissionDenied:
		return "SSH_FX_PERMISSION_DENIED"
	case StatusFailure:
		return "SSH_FX_FAILURE"
	case StatusBadMessage:
		return "SSH_FX_BAD_MESSAGE"
	case StatusNoConnection:
		return "SSH_FX_NO_CONNECTION"
	case StatusConnectionLost:
		return "SSH_FX_CONNECTION_LOST"
	case StatusOpUnsupported:
		return "SSH_FX_OP_UNSUPPORTED"
	default:
		return fmt.Sprintf("UNKNOWN_%d", status)
	}
}

// PacketTypeToString converts a packet type to its canonical name for
// logging. Unknown types come back as "UNKNOWN_<type>".
func PacketTypeToString(packetType uint8) string {
	switch packetType {
	case PacketInit:
		return "SSH_FXP_INIT"
	case PacketVersion:
		return "SSH_FXP_VERSION"
	case PacketOpen:
		return "SSH_FXP_OPEN"
	case PacketClose:
		return "SSH_FXP_CLOSE"
	case PacketRead:
		return "SSH_FXP_READ"
	case PacketWrite:
		return "SSH_FXP_WRITE"
	case PacketLstat:
		return "SSH_FXP_LSTAT"
	case PacketFstat:
		return "SSH_FXP_FSTAT"
	case PacketSetstat:
		return "SSH_FXP_SETSTAT"
	case PacketFsetstat:
		return "SSH_FXP_FSETSTAT"
	case PacketOpendir:
		return "SSH_FXP_OPENDIR"
	case PacketReaddir:
		return "SSH_FXP_READDIR"
	case PacketRemove:
		return "SSH_FXP_REMOVE"
	case PacketMkdir:
		return "SSH_FXP_MKDIR"
	case PacketRmdir:
		return "SSH_FXP_RMDIR"
	case PacketRealpath:
		return "SSH_FXP_REALPATH"
	case PacketStat:
		return "SSH_FXP_STAT"
	case PacketRename:
		return "SSH_FXP_RENAME"
	case PacketReadlink:
		return "SSH_FXP_READLINK"
	case PacketSymlink:
		return "SSH_FXP_SYMLINK"
	case PacketExtended:
		return "SSH_FXP_EXTENDED"
	case PacketStatus:
		return "SSH_FXP_STATUS"
	case PacketHandle:
		return "SSH_FXP_HANDLE"
	case PacketData:
		return "SSH_FXP_DATA"
	case PacketName:
		return "SSH_FXP_NAME"
	case PacketAttrs:
		return "SSH_FXP_ATTRS"
	default:
		return fmt.Sprintf("UNKNOWN_%d", packetType)
	}
}
