package wire

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/pkg/backend"
)

// ============================================================================
// String Encoding Tests
// ============================================================================

func TestEncodeString(t *testing.T) {
	t.Run("EncodesWithLengthPrefix", func(t *testing.T) {
		buf := new(bytes.Buffer)
		err := EncodeString(buf, "abc")
		require.NoError(t, err)

		expected := []byte{
			0, 0, 0, 3, // length
			'a', 'b', 'c', // data, no padding
		}
		assert.Equal(t, expected, buf.Bytes())
	})

	t.Run("EncodesEmptyAsBareLength", func(t *testing.T) {
		buf := new(bytes.Buffer)
		err := EncodeString(buf, "")
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())
	})
}

func TestDecodeString(t *testing.T) {
	t.Run("RoundTrips", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeString(buf, "/home/alice/file.txt"))

		decoded, err := DecodeString(buf)
		require.NoError(t, err)
		assert.Equal(t, "/home/alice/file.txt", decoded)
	})

	t.Run("RejectsOversizedLength", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUint32(buf, 2*1024*1024))

		_, err := DecodeString(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})

	t.Run("FailsOnTruncatedData", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUint32(buf, 10))
		buf.WriteString("short")

		_, err := DecodeString(buf)
		require.Error(t, err)
	})
}

// ============================================================================
// Integer Encoding Tests
// ============================================================================

func TestIntegerRoundTrip(t *testing.T) {
	t.Run("Uint32", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUint32(buf, 0xDEADBEEF))
		assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, buf.Bytes())

		value, err := DecodeUint32(buf)
		require.NoError(t, err)
		assert.Equal(t, uint32(0xDEADBEEF), value)
	})

	t.Run("Uint64", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUint64(buf, 1<<40))

		value, err := DecodeUint64(buf)
		require.NoError(t, err)
		assert.Equal(t, uint64(1<<40), value)
	})
}

// ============================================================================
// Attribute Block Tests
// ============================================================================

func TestAttrFromInfo(t *testing.T) {
	t.Run("RegularFile", func(t *testing.T) {
		now := time.Now()
		info := backend.RegularInfo(1024, now)

		attr := AttrFromInfo(info)
		assert.Equal(t, uint64(1024), attr.Size)
		assert.Equal(t, uint32(ModeRegular|0o644), attr.Permissions)
		assert.Equal(t, uint32(now.Unix()), attr.Mtime)
		assert.EqualValues(t, AttrFlagSize|AttrFlagUIDGID|AttrFlagPermissions|AttrFlagACModTime, attr.Flags)
	})

	t.Run("Directory", func(t *testing.T) {
		attr := AttrFromInfo(backend.DirectoryInfo(time.Time{}))
		assert.Equal(t, uint32(ModeDirectory|0o755), attr.Permissions)
		assert.Equal(t, uint64(4096), attr.Size)
	})

	t.Run("OmitsUntrackedModTime", func(t *testing.T) {
		// A backend with no modification time leaves the field off the
		// wire entirely rather than reporting the epoch.
		attr := AttrFromInfo(backend.DirectoryInfo(time.Time{}))
		assert.Zero(t, attr.Flags&AttrFlagACModTime)
		assert.EqualValues(t, AttrFlagSize|AttrFlagUIDGID|AttrFlagPermissions, attr.Flags)
	})

	t.Run("OmitsUntrackedOwner", func(t *testing.T) {
		info := backend.FileInfo{Size: 12, HasModTime: true, ModTime: time.Unix(1700000000, 0)}

		attr := AttrFromInfo(info)
		assert.Zero(t, attr.Flags&AttrFlagUIDGID)
		assert.NotZero(t, attr.Flags&AttrFlagACModTime)
		assert.Equal(t, uint32(1700000000), attr.Mtime)
		assert.Equal(t, uint32(ModeRegular|0o644), attr.Permissions, "mode falls back when untracked")
	})
}

func TestAttrsRoundTrip(t *testing.T) {
	t.Run("FullAttributeBlock", func(t *testing.T) {
		original := &FileAttr{
			Flags:       AttrFlagSize | AttrFlagUIDGID | AttrFlagPermissions | AttrFlagACModTime,
			Size:        4096,
			UID:         1000,
			GID:         1000,
			Permissions: ModeRegular | 0o644,
			Atime:       1700000000,
			Mtime:       1700000001,
		}

		buf := new(bytes.Buffer)
		require.NoError(t, EncodeAttrs(buf, original))

		decoded, err := DecodeAttrs(buf)
		require.NoError(t, err)
		assert.Equal(t, original, decoded)
		assert.Zero(t, buf.Len(), "decoder must consume the whole block")
	})

	t.Run("EmptyAttributeBlock", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeAttrs(buf, &FileAttr{}))
		assert.Equal(t, []byte{0, 0, 0, 0}, buf.Bytes())

		decoded, err := DecodeAttrs(buf)
		require.NoError(t, err)
		assert.Zero(t, decoded.Flags)
	})

	t.Run("SkipsExtendedPairs", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeUint32(buf, AttrFlagSize|AttrFlagExtended))
		require.NoError(t, EncodeUint64(buf, 99))
		require.NoError(t, EncodeUint32(buf, 1)) // one extended pair
		require.NoError(t, EncodeString(buf, "vendor@example"))
		require.NoError(t, EncodeString(buf, "payload"))

		decoded, err := DecodeAttrs(buf)
		require.NoError(t, err)
		assert.Equal(t, uint64(99), decoded.Size)
		assert.Zero(t, buf.Len(), "extended pairs must be consumed")
	})

	t.Run("NeverEmitsExtendedFlag", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, EncodeAttrs(buf, &FileAttr{Flags: AttrFlagExtended}))

		flags, err := DecodeUint32(buf)
		require.NoError(t, err)
		assert.Zero(t, flags)
	})
}

// ============================================================================
// Packet Framing Tests
// ============================================================================

func TestPacketFraming(t *testing.T) {
	t.Run("RoundTrips", func(t *testing.T) {
		buf := new(bytes.Buffer)
		payload := []byte{0, 0, 0, 3} // version number
		require.NoError(t, WritePacket(buf, 1, payload))

		// length counts the type byte plus the payload
		assert.Equal(t, []byte{0, 0, 0, 5, 1, 0, 0, 0, 3}, buf.Bytes())

		packetType, decoded, err := ReadPacket(buf)
		require.NoError(t, err)
		assert.Equal(t, byte(1), packetType)
		assert.Equal(t, payload, decoded)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		buf := new(bytes.Buffer)
		require.NoError(t, WritePacket(buf, 200, nil))

		packetType, payload, err := ReadPacket(buf)
		require.NoError(t, err)
		assert.Equal(t, byte(200), packetType)
		assert.Empty(t, payload)
	})

	t.Run("RejectsZeroLength", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0, 0, 0, 0})
		_, _, err := ReadPacket(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zero")
	})

	t.Run("RejectsOversizedFrame", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0xFF, 0xFF, 0xFF, 0xFF})
		_, _, err := ReadPacket(buf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds maximum")
	})

	t.Run("CleanEOFAtBoundary", func(t *testing.T) {
		_, _, err := ReadPacket(bytes.NewBuffer(nil))
		assert.ErrorIs(t, err, io.EOF)
	})

	t.Run("FailsOnTruncatedBody", func(t *testing.T) {
		buf := bytes.NewBuffer([]byte{0, 0, 0, 10, 5})
		_, _, err := ReadPacket(buf)
		require.Error(t, err)
		assert.NotErrorIs(t, err, io.EOF)
	})
}
