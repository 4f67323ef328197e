package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// ============================================================================
// Wire Encoding Helpers - Go Values → Wire Format
// ============================================================================

// EncodeUint32 writes a big-endian uint32 to the buffer.
func EncodeUint32(buf *bytes.Buffer, value uint32) error {
	if err := binary.Write(buf, binary.BigEndian, value); err != nil {
		return fmt.Errorf("write uint32: %w", err)
	}
	return nil
}

// EncodeUint64 writes a big-endian uint64 to the buffer.
func EncodeUint64(buf *bytes.Buffer, value uint64) error {
	if err := binary.Write(buf, binary.BigEndian, value); err != nil {
		return fmt.Errorf("write uint64: %w", err)
	}
	return nil
}

// EncodeBytes writes a length-prefixed byte string to the buffer.
//
// Format: [length:uint32][data:length bytes], no padding.
func EncodeBytes(buf *bytes.Buffer, data []byte) error {
	if err := EncodeUint32(buf, uint32(len(data))); err != nil {
		return fmt.Errorf("write length: %w", err)
	}
	if _, err := buf.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

// EncodeString writes a length-prefixed UTF-8 string to the buffer.
func EncodeString(buf *bytes.Buffer, value string) error {
	return EncodeBytes(buf, []byte(value))
}
