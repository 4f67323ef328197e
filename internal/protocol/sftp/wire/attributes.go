package wire

import (
	"bytes"
	"fmt"
	"io"

	"github.com/marmos91/dsftp/pkg/backend"
)

// Attribute presence flags. Each flag announces that the corresponding
// fields follow in the attribute block, in flag order.
const (
	AttrFlagSize        = 0x00000001
	AttrFlagUIDGID      = 0x00000002
	AttrFlagPermissions = 0x00000004
	AttrFlagACModTime   = 0x00000008
	AttrFlagExtended    = 0x80000000
)

// File type bits carried in the permissions field, POSIX st_mode style.
const (
	ModeDirectory = 0o040000
	ModeRegular   = 0o100000
)

// FileAttr is the wire-level attribute block attached to name listings,
// attribute responses and open/setstat requests.
//
// Per draft-ietf-secsh-filexfer-02 Section 5 (File Attributes):
//
//	uint32 flags
//	uint64 size          // if ATTR_SIZE
//	uint32 uid, gid      // if ATTR_UIDGID
//	uint32 permissions   // if ATTR_PERMISSIONS
//	uint32 atime, mtime  // if ATTR_ACMODTIME
//
// Only fields whose flag is set are present on the wire; absent fields
// are zero here and must not be trusted unless the flag is set.
type FileAttr struct {
	Flags       uint32
	Size        uint64
	UID         uint32
	GID         uint32
	Permissions uint32
	Atime       uint32
	Mtime       uint32
}

// AttrFromInfo converts backend file metadata to a wire attribute block.
//
// This conversion:
// - Always reports size and the permissions field, since the file type
//   travels in the permissions type bits
// - Falls back to 0755 (directories) or 0644 (files) when the backend
//   carries no mode of its own
// - Marks ownership and timestamps present only when the backend tracked
//   them: a field whose presence flag is missing from FileInfo stays off
//   the wire instead of being sent as zero
//
// Parameters:
//   - info: Backend file metadata
//
// Returns:
//   - *FileAttr: Attribute block ready for encoding
func AttrFromInfo(info backend.FileInfo) *FileAttr {
	mode := info.Mode
	if !info.HasMode {
		if info.IsDir {
			mode = 0o755
		} else {
			mode = 0o644
		}
	}

	typeBits := uint32(ModeRegular)
	if info.IsDir {
		typeBits = ModeDirectory
	}

	attr := &FileAttr{
		Flags:       AttrFlagSize | AttrFlagPermissions,
		Size:        info.Size,
		Permissions: typeBits | (mode & 0o7777),
	}

	if info.HasOwner {
		attr.Flags |= AttrFlagUIDGID
		attr.UID = info.UID
		attr.GID = info.GID
	}

	if info.HasModTime {
		mtime := uint32(info.ModTime.Unix())
		attr.Flags |= AttrFlagACModTime
		attr.Atime = mtime // Access times are not tracked; report mtime
		attr.Mtime = mtime
	}

	return attr
}

// DecodeAttrs decodes a file attribute block from the stream.
//
// Fields are read in flag order. Extended attribute pairs are consumed
// and discarded so the stream stays aligned for whatever follows.
//
// Parameters:
//   - reader: Input stream positioned at the flags field
//
// Returns:
//   - *FileAttr: Decoded attributes
//   - error: Decoding error
func DecodeAttrs(reader io.Reader) (*FileAttr, error) {
	flags, err := DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read flags: %w", err)
	}

	attr := &FileAttr{Flags: flags}

	if flags&AttrFlagSize != 0 {
		if attr.Size, err = DecodeUint64(reader); err != nil {
			return nil, fmt.Errorf("read size: %w", err)
		}
	}

	if flags&AttrFlagUIDGID != 0 {
		if attr.UID, err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read uid: %w", err)
		}
		if attr.GID, err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read gid: %w", err)
		}
	}

	if flags&AttrFlagPermissions != 0 {
		if attr.Permissions, err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read permissions: %w", err)
		}
	}

	if flags&AttrFlagACModTime != 0 {
		if attr.Atime, err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read atime: %w", err)
		}
		if attr.Mtime, err = DecodeUint32(reader); err != nil {
			return nil, fmt.Errorf("read mtime: %w", err)
		}
	}

	if flags&AttrFlagExtended != 0 {
		count, err := DecodeUint32(reader)
		if err != nil {
			return nil, fmt.Errorf("read extended count: %w", err)
		}
		for i := uint32(0); i < count; i++ {
			if _, err := DecodeBytes(reader); err != nil {
				return nil, fmt.Errorf("read extended type: %w", err)
			}
			if _, err := DecodeBytes(reader); err != nil {
				return nil, fmt.Errorf("read extended data: %w", err)
			}
		}
	}

	return attr, nil
}

// EncodeAttrs encodes a file attribute block into the buffer.
//
// Only fields whose flag is set in attr.Flags are written; extended
// attributes are never emitted.
//
// Parameters:
//   - buf: Output buffer for encoded data
//   - attr: Attributes to encode
//
// Returns:
//   - error: Encoding error
func EncodeAttrs(buf *bytes.Buffer, attr *FileAttr) error {
	flags := attr.Flags &^ uint32(AttrFlagExtended)

	if err := EncodeUint32(buf, flags); err != nil {
		return fmt.Errorf("write flags: %w", err)
	}

	if flags&AttrFlagSize != 0 {
		if err := EncodeUint64(buf, attr.Size); err != nil {
			return fmt.Errorf("write size: %w", err)
		}
	}

	if flags&AttrFlagUIDGID != 0 {
		if err := EncodeUint32(buf, attr.UID); err != nil {
			return fmt.Errorf("write uid: %w", err)
		}
		if err := EncodeUint32(buf, attr.GID); err != nil {
			return fmt.Errorf("write gid: %w", err)
		}
	}

	if flags&AttrFlagPermissions != 0 {
		if err := EncodeUint32(buf, attr.Permissions); err != nil {
			return fmt.Errorf("write permissions: %w", err)
		}
	}

	if flags&AttrFlagACModTime != 0 {
		if err := EncodeUint32(buf, attr.Atime); err != nil {
			return fmt.Errorf("write atime: %w", err)
		}
		if err := EncodeUint32(buf, attr.Mtime); err != nil {
			return fmt.Errorf("write mtime: %w", err)
		}
	}

	return nil
}
