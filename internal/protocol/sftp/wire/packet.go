package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPacketSize caps the length field of a single framed packet.
// Frames claiming more than this are rejected before any allocation,
// protecting the server from hostile length prefixes.
const MaxPacketSize = 1 << 20 // 1 MB

// ReadPacket reads one framed packet from the stream.
//
// Per draft-ietf-secsh-filexfer-02 Section 3 (General Packet Format):
//
//	uint32 length  // number of bytes that follow, including the type byte
//	byte   type
//	byte[length-1] payload
//
// The length prefix itself is not counted. A length of zero is malformed
// since every packet carries at least the type byte.
//
// Parameters:
//   - reader: Input stream positioned at a packet boundary
//
// Returns:
//   - byte: Packet type
//   - []byte: Packet payload (everything after the type byte)
//   - error: io.EOF on clean end of stream, framing errors otherwise
func ReadPacket(reader io.Reader) (byte, []byte, error) {
	var length uint32
	if err := binary.Read(reader, binary.BigEndian, &length); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("read packet length: %w", err)
	}

	if length == 0 {
		return 0, nil, fmt.Errorf("packet length is zero")
	}
	if length > MaxPacketSize {
		return 0, nil, fmt.Errorf("packet length %d exceeds maximum %d", length, MaxPacketSize)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return 0, nil, fmt.Errorf("read packet body: %w", err)
	}

	return body[0], body[1:], nil
}

// WritePacket writes one framed packet to the stream.
//
// The length prefix covers the type byte plus the payload. The frame is
// assembled in memory first so the connection never sees a torn packet.
//
// Parameters:
//   - writer: Output stream
//   - packetType: Packet type byte
//   - payload: Packet payload (may be empty)
//
// Returns:
//   - error: Framing or write error
func WritePacket(writer io.Writer, packetType byte, payload []byte) error {
	length := uint32(len(payload) + 1)
	if length > MaxPacketSize {
		return fmt.Errorf("packet length %d exceeds maximum %d", length, MaxPacketSize)
	}

	frame := bytes.NewBuffer(make([]byte, 0, 4+length))
	if err := binary.Write(frame, binary.BigEndian, length); err != nil {
		return fmt.Errorf("write packet length: %w", err)
	}
	frame.WriteByte(packetType)
	frame.Write(payload)

	if _, err := writer.Write(frame.Bytes()); err != nil {
		return fmt.Errorf("write packet: %w", err)
	}

	return nil
}
