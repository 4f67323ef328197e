package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ============================================================================
// Wire Decoding Helpers - Wire Format → Go Values
// ============================================================================

// DecodeUint32 decodes a big-endian uint32 from the stream.
//
// Per draft-ietf-secsh-filexfer-02 Section 3 (General Packet Format):
// all multi-byte integers are transmitted in network byte order.
//
// Parameters:
//   - reader: Input stream positioned at start of value
//
// Returns:
//   - uint32: Decoded value
//   - error: Decoding error (EOF, short read, etc.)
func DecodeUint32(reader io.Reader) (uint32, error) {
	var value uint32
	if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
		return 0, fmt.Errorf("read uint32: %w", err)
	}
	return value, nil
}

// DecodeUint64 decodes a big-endian uint64 from the stream.
//
// Used for file offsets and sizes, which the protocol carries as 64-bit
// quantities even when the transfer itself is small.
//
// Parameters:
//   - reader: Input stream positioned at start of value
//
// Returns:
//   - uint64: Decoded value
//   - error: Decoding error
func DecodeUint64(reader io.Reader) (uint64, error) {
	var value uint64
	if err := binary.Read(reader, binary.BigEndian, &value); err != nil {
		return 0, fmt.Errorf("read uint64: %w", err)
	}
	return value, nil
}

// DecodeBytes decodes a length-prefixed byte string.
//
// Per draft-ietf-secsh-filexfer-02 Section 3:
// Format: [length:uint32][data:length bytes]
// Unlike XDR there is no padding; fields are packed back to back.
//
// Parameters:
//   - reader: Input stream positioned at start of string
//
// Returns:
//   - []byte: Decoded data
//   - error: Decoding error
func DecodeBytes(reader io.Reader) ([]byte, error) {
	length, err := DecodeUint32(reader)
	if err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	// Validate reasonable length (protect against malicious input).
	// String fields never legitimately approach the packet size limit.
	const maxStringLength = 1024 * 1024 // 1 MB
	if length > maxStringLength {
		return nil, fmt.Errorf("string length %d exceeds maximum %d", length, maxStringLength)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}

	return data, nil
}

// DecodeString decodes a length-prefixed string.
//
// Strings use the same encoding as byte strings but are interpreted
// as UTF-8 text (file names, paths, error messages).
//
// Parameters:
//   - reader: Input stream positioned at start of string
//
// Returns:
//   - string: Decoded string (UTF-8)
//   - error: Decoding error
func DecodeString(reader io.Reader) (string, error) {
	data, err := DecodeBytes(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
