package handlers

import (
	"bytes"
	"fmt"
	"time"

	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
)

// ============================================================================
// Reply Types
// ============================================================================

// Reply is the server's answer to a single request. Every reply knows its
// packet type and how to encode its payload; the request identifier is
// supplied at encode time so replies stay decoupled from correlation.
type Reply interface {
	// PacketType returns the response packet type byte.
	PacketType() byte

	// Encode serializes the reply payload, starting with the echoed
	// request identifier.
	Encode(requestID uint32) ([]byte, error)
}

// StatusReply reports the outcome of an operation that produces no data.
// It also carries error outcomes for every other operation.
type StatusReply struct {
	// Code is the status code (types.StatusOK, types.StatusEOF, ...).
	Code uint32

	// Message is a human-readable description. Empty messages are
	// filled from the standard description of the code.
	Message string
}

// OK is the canonical success reply.
func OK() *StatusReply {
	return &StatusReply{Code: types.StatusOK, Message: "Success"}
}

// EOF signals end of file or end of directory listing.
func EOF() *StatusReply {
	return &StatusReply{Code: types.StatusEOF, Message: "End of file"}
}

func (r *StatusReply) PacketType() byte { return types.PacketStatus }

func (r *StatusReply) Encode(requestID uint32) ([]byte, error) {
	message := r.Message
	if message == "" {
		message = types.StatusToString(r.Code)
	}

	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, requestID); err != nil {
		return nil, err
	}
	if err := wire.EncodeUint32(buf, r.Code); err != nil {
		return nil, fmt.Errorf("encode status code: %w", err)
	}
	if err := wire.EncodeString(buf, message); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	// Language tag, always empty
	if err := wire.EncodeString(buf, ""); err != nil {
		return nil, fmt.Errorf("encode language tag: %w", err)
	}
	return buf.Bytes(), nil
}

// HandleReply carries a freshly allocated file or directory handle.
type HandleReply struct {
	// Handle is the opaque handle string issued to the client.
	Handle string
}

func (r *HandleReply) PacketType() byte { return types.PacketHandle }

func (r *HandleReply) Encode(requestID uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, requestID); err != nil {
		return nil, err
	}
	if err := wire.EncodeString(buf, r.Handle); err != nil {
		return nil, fmt.Errorf("encode handle: %w", err)
	}
	return buf.Bytes(), nil
}

// DataReply carries file content for a READ request.
type DataReply struct {
	// Data is the chunk read from the file. Never empty; a read at or
	// past end of file produces an EOF status instead.
	Data []byte
}

func (r *DataReply) PacketType() byte { return types.PacketData }

func (r *DataReply) Encode(requestID uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, requestID); err != nil {
		return nil, err
	}
	if err := wire.EncodeBytes(buf, r.Data); err != nil {
		return nil, fmt.Errorf("encode data: %w", err)
	}
	return buf.Bytes(), nil
}

// NameEntry is one element of a NAME reply.
type NameEntry struct {
	// Filename is the bare entry name (READDIR) or the resolved
	// absolute path (REALPATH).
	Filename string

	// Longname is the ls -l style presentation line shown by clients
	// in long listings.
	Longname string

	// Attr carries the entry's attributes. Never nil; REALPATH uses an
	// empty attribute block.
	Attr *wire.FileAttr
}

// NameReply carries directory entries or a resolved path.
type NameReply struct {
	Entries []NameEntry
}

func (r *NameReply) PacketType() byte { return types.PacketName }

func (r *NameReply) Encode(requestID uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, requestID); err != nil {
		return nil, err
	}
	if err := wire.EncodeUint32(buf, uint32(len(r.Entries))); err != nil {
		return nil, fmt.Errorf("encode count: %w", err)
	}
	for i, entry := range r.Entries {
		if err := wire.EncodeString(buf, entry.Filename); err != nil {
			return nil, fmt.Errorf("encode filename %d: %w", i, err)
		}
		if err := wire.EncodeString(buf, entry.Longname); err != nil {
			return nil, fmt.Errorf("encode longname %d: %w", i, err)
		}
		if err := wire.EncodeAttrs(buf, entry.Attr); err != nil {
			return nil, fmt.Errorf("encode attrs %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// AttrsReply carries the attributes of a file or directory.
type AttrsReply struct {
	Attr *wire.FileAttr
}

func (r *AttrsReply) PacketType() byte { return types.PacketAttrs }

func (r *AttrsReply) Encode(requestID uint32) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, requestID); err != nil {
		return nil, err
	}
	if err := wire.EncodeAttrs(buf, r.Attr); err != nil {
		return nil, fmt.Errorf("encode attrs: %w", err)
	}
	return buf.Bytes(), nil
}

// ============================================================================
// Longname Formatting
// ============================================================================

// FormatLongname builds the ls -l style presentation line clients show
// in long listings. The format is conventional rather than specified;
// this mirrors what OpenSSH emits.
//
// Example: "drwxr-xr-x    1 1000     1000         4096 Jan  2 15:04 docs"
func FormatLongname(name string, attr *wire.FileAttr) string {
	when := time.Unix(int64(attr.Mtime), 0).UTC()
	return fmt.Sprintf("%s %4d %-8d %-8d %12d %s %s",
		permString(attr.Permissions),
		1,
		attr.UID,
		attr.GID,
		attr.Size,
		when.Format("Jan _2 15:04"),
		name,
	)
}

// permString renders POSIX mode bits as the familiar ten-character
// "drwxr-xr-x" form.
func permString(perm uint32) string {
	var b [10]byte

	b[0] = '-'
	if perm&wire.ModeDirectory == wire.ModeDirectory {
		b[0] = 'd'
	}

	chars := []byte("rwxrwxrwx")
	for i := range 9 {
		if perm&(1<<uint(8-i)) != 0 {
			b[i+1] = chars[i]
		} else {
			b[i+1] = '-'
		}
	}

	return string(b[:])
}
