package types

// Protocol version implemented by this server. Version negotiation picks
// min(client, ProtocolVersion); version 3 is the baseline every client
// speaks (draft-ietf-secsh-filexfer-02).
const ProtocolVersion = 3

// SFTP Packet Types
// Client-to-server request types as defined in
// draft-ietf-secsh-filexfer-02 Section 3.
const (
	// PacketInit - Version negotiation, first packet on the wire
	PacketInit = 1

	// PacketVersion - Server's negotiation reply
	PacketVersion = 2

	// PacketOpen - Open a file, returns a handle
	PacketOpen = 3

	// PacketClose - Close a file or directory handle
	PacketClose = 4

	// PacketRead - Read from an open file handle
	PacketRead = 5

	// PacketWrite - Write to an open file handle
	PacketWrite = 6

	// PacketLstat - Get attributes without following symlinks
	PacketLstat = 7

	// PacketFstat - Get attributes of an open handle
	PacketFstat = 8

	// PacketSetstat - Set attributes by path
	PacketSetstat = 9

	// PacketFsetstat - Set attributes of an open handle
	PacketFsetstat = 10

	// PacketOpendir - Open a directory listing, returns a handle
	PacketOpendir = 11

	// PacketReaddir - Read a batch of directory entries
	PacketReaddir = 12

	// PacketRemove - Delete a file
	PacketRemove = 13

	// PacketMkdir - Create a directory
	PacketMkdir = 14

	// PacketRmdir - Remove an empty directory
	PacketRmdir = 15

	// PacketRealpath - Canonicalize a path
	PacketRealpath = 16

	// PacketStat - Get attributes by path
	PacketStat = 17

	// PacketRename - Rename a file or directory
	PacketRename = 18

	// PacketReadlink - Read a symbolic link (unsupported)
	PacketReadlink = 19

	// PacketSymlink - Create a symbolic link (unsupported)
	PacketSymlink = 20

	// PacketExtended - Vendor extension request
	PacketExtended = 200
)

// Server-to-client response types.
const (
	// PacketStatus - Operation result (status code + message)
	PacketStatus = 101

	// PacketHandle - Reply carrying a newly allocated handle
	PacketHandle = 102

	// PacketData - Reply carrying file data
	PacketData = 103

	// PacketName - Reply carrying directory entries or a resolved path
	PacketName = 104

	// PacketAttrs - Reply carrying file attributes
	PacketAttrs = 105
)

// SFTP Status Codes
// Returned in STATUS replies, draft-ietf-secsh-filexfer-02 Section 7.
const (
	// StatusOK - Success
	StatusOK = 0

	// StatusEOF - End of file or end of directory listing (a signal,
	// not a failure)
	StatusEOF = 1

	// StatusNoSuchFile - Path does not exist
	StatusNoSuchFile = 2

	// StatusPermissionDenied - Access refused
	StatusPermissionDenied = 3

	// StatusFailure - Generic failure
	StatusFailure = 4

	// StatusBadMessage - Malformed packet
	StatusBadMessage = 5

	// StatusNoConnection - No connection (client-side only)
	StatusNoConnection = 6

	// StatusConnectionLost - Connection lost (client-side only)
	StatusConnectionLost = 7

	// StatusOpUnsupported - Operation not implemented by this server
	StatusOpUnsupported = 8
)

// Open flags carried by OPEN requests (pflags field).
const (
	OpenFlagRead   = 0x00000001
	OpenFlagWrite  = 0x00000002
	OpenFlagAppend = 0x00000004
	OpenFlagCreat  = 0x00000008
	OpenFlagTrunc  = 0x00000010
	OpenFlagExcl   = 0x00000020
)

// ReadDirBatchSize is the number of entries returned per READDIR reply.
const ReadDirBatchSize = 100
