package sftp

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/backend/memory"
	"github.com/marmos91/dsftp/pkg/vpath"
)

// ============================================================================
// Test Helpers
// ============================================================================

// scriptedConn feeds a pre-built request stream to the session and
// captures everything the session writes back.
type scriptedConn struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func newScriptedConn() *scriptedConn {
	return &scriptedConn{in: new(bytes.Buffer), out: new(bytes.Buffer)}
}

func (c *scriptedConn) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *scriptedConn) Write(p []byte) (int, error) { return c.out.Write(p) }

// send frames one request packet into the connection's input.
func (c *scriptedConn) send(t *testing.T, packetType byte, fields ...any) {
	t.Helper()
	buf := new(bytes.Buffer)
	for _, field := range fields {
		var err error
		switch v := field.(type) {
		case uint32:
			err = wire.EncodeUint32(buf, v)
		case uint64:
			err = wire.EncodeUint64(buf, v)
		case string:
			err = wire.EncodeString(buf, v)
		case []byte:
			err = wire.EncodeBytes(buf, v)
		default:
			t.Fatalf("unsupported field type %T", field)
		}
		require.NoError(t, err)
	}
	require.NoError(t, wire.WritePacket(c.in, packetType, buf.Bytes()))
}

// reply reads the next framed reply from the captured output.
func (c *scriptedConn) reply(t *testing.T) (byte, *bytes.Reader) {
	t.Helper()
	packetType, payload, err := wire.ReadPacket(c.out)
	require.NoError(t, err)
	return packetType, bytes.NewReader(payload)
}

func requireStatus(t *testing.T, conn *scriptedConn, wantID, wantCode uint32) {
	t.Helper()
	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketStatus, packetType)

	id, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.Equal(t, wantID, id)

	code, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.Equal(t, wantCode, code, "status %s", types.StatusToString(code))
}

func requireHandle(t *testing.T, conn *scriptedConn, wantID uint32) string {
	t.Helper()
	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketHandle, packetType)

	id, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.Equal(t, wantID, id)

	h, err := wire.DecodeString(payload)
	require.NoError(t, err)
	require.NotEmpty(t, h)
	return h
}

func requireVersion(t *testing.T, conn *scriptedConn, want uint32) {
	t.Helper()
	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketVersion, packetType)

	version, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.Equal(t, want, version)
}

func serve(t *testing.T, conn *scriptedConn) (*Session, error) {
	t.Helper()
	store := memory.NewMemoryBackend(memory.MemoryBackendConfig{})
	session := NewSession(conn, "test:1", store)
	return session, session.Serve(context.Background())
}

// ============================================================================
// Version Negotiation
// ============================================================================

func TestSessionVersionNegotiation(t *testing.T) {
	t.Run("CapsAtServerVersion", func(t *testing.T) {
		conn := newScriptedConn()
		conn.send(t, types.PacketInit, uint32(6))

		_, err := serve(t, conn)
		require.NoError(t, err)
		requireVersion(t, conn, 3)
	})

	t.Run("FollowsOlderClient", func(t *testing.T) {
		conn := newScriptedConn()
		conn.send(t, types.PacketInit, uint32(2))

		_, err := serve(t, conn)
		require.NoError(t, err)
		requireVersion(t, conn, 2)
	})

	t.Run("RejectsRequestBeforeInit", func(t *testing.T) {
		conn := newScriptedConn()
		conn.send(t, types.PacketStat, uint32(1), "/")

		_, err := serve(t, conn)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "before version negotiation")
	})

	t.Run("RejectsRepeatedInit", func(t *testing.T) {
		conn := newScriptedConn()
		conn.send(t, types.PacketInit, uint32(3))
		conn.send(t, types.PacketInit, uint32(3))

		_, err := serve(t, conn)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "INIT after version negotiation")
	})
}

// ============================================================================
// Request Handling
// ============================================================================

func TestSessionUnsupportedOperation(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketReadlink, uint32(42), "/link")
	conn.send(t, types.PacketSymlink, uint32(43), "/link", "/target")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 42, types.StatusOpUnsupported)
	requireStatus(t, conn, 43, types.StatusOpUnsupported)
}

func TestSessionEchoesArbitraryRequestIDs(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketMkdir, uint32(0xFFFFFFFF), "/a", uint32(0))
	conn.send(t, types.PacketStat, uint32(7), "/missing")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 0xFFFFFFFF, types.StatusOK)
	requireStatus(t, conn, 7, types.StatusNoSuchFile)
}

func TestSessionRealpath(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketRealpath, uint32(1), ".")
	conn.send(t, types.PacketRealpath, uint32(2), "/a/b/../c/./d")

	_, err := serve(t, conn)
	require.NoError(t, err)
	requireVersion(t, conn, 3)

	expected := []struct {
		id   uint32
		want string
	}{
		{1, "/"},
		{2, "/a/c/d"},
	}
	for _, tc := range expected {
		id, want := tc.id, tc.want
		packetType, payload := conn.reply(t)
		require.EqualValues(t, types.PacketName, packetType)

		gotID, err := wire.DecodeUint32(payload)
		require.NoError(t, err)
		assert.Equal(t, id, gotID)

		count, err := wire.DecodeUint32(payload)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)

		resolved, err := wire.DecodeString(payload)
		require.NoError(t, err)
		assert.Equal(t, want, resolved)
	}
}

func TestSessionRejectsRootEscape(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketStat, uint32(1), "/../../etc/passwd")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 1, types.StatusNoSuchFile)
}

// ============================================================================
// File Round Trip
// ============================================================================

func TestSessionFileRoundTrip(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")

	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))

	// Upload
	conn.send(t, types.PacketOpen, uint32(1), "/up.txt",
		uint32(types.OpenFlagWrite|types.OpenFlagCreat), uint32(0))
	// Handles are allocated from 1 per connection; the upload gets "1".
	conn.send(t, types.PacketWrite, uint32(2), "1", uint64(0), content)
	conn.send(t, types.PacketClose, uint32(3), "1")

	// Stat the committed file
	conn.send(t, types.PacketStat, uint32(4), "/up.txt")

	// Download
	conn.send(t, types.PacketOpen, uint32(5), "/up.txt", uint32(types.OpenFlagRead), uint32(0))
	conn.send(t, types.PacketRead, uint32(6), "2", uint64(0), uint32(1024))
	conn.send(t, types.PacketRead, uint32(7), "2", uint64(len(content)), uint32(1024))
	conn.send(t, types.PacketClose, uint32(8), "2")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireHandle(t, conn, 1)
	requireStatus(t, conn, 2, types.StatusOK)
	requireStatus(t, conn, 3, types.StatusOK)

	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketAttrs, packetType)
	id, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 4, id)
	attr, err := wire.DecodeAttrs(payload)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), attr.Size)
	assert.Zero(t, attr.Permissions&wire.ModeDirectory)

	requireHandle(t, conn, 5)

	packetType, payload = conn.reply(t)
	require.EqualValues(t, types.PacketData, packetType)
	id, err = wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 6, id)
	data, err := wire.DecodeBytes(payload)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	requireStatus(t, conn, 7, types.StatusEOF)
	requireStatus(t, conn, 8, types.StatusOK)
}

func TestSessionOversizedReadReturnsShortData(t *testing.T) {
	// A READ may legally ask for more bytes than one reply frame can
	// carry. The server answers with a short read instead of failing
	// the frame and tearing down the session.
	content := bytes.Repeat([]byte{0xA5}, wire.MaxPacketSize)
	store := memory.NewMemoryBackend(memory.MemoryBackendConfig{
		Seed: map[string][]byte{"big.bin": content},
	})

	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketOpen, uint32(1), "/big.bin", uint32(types.OpenFlagRead), uint32(0))
	conn.send(t, types.PacketRead, uint32(2), "1", uint64(0), uint32(wire.MaxPacketSize))

	session := NewSession(conn, "test:1", store)
	require.NoError(t, session.Serve(context.Background()))

	requireVersion(t, conn, 3)
	requireHandle(t, conn, 1)

	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketData, packetType)
	id, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 2, id)

	data, err := wire.DecodeBytes(payload)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Less(t, len(data), wire.MaxPacketSize)
	assert.Equal(t, content[:len(data)], data)
}

func TestSessionWriteInvisibleBeforeClose(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketOpen, uint32(1), "/pending.txt",
		uint32(types.OpenFlagWrite|types.OpenFlagCreat), uint32(0))
	conn.send(t, types.PacketWrite, uint32(2), "1", uint64(0), []byte("partial"))
	conn.send(t, types.PacketStat, uint32(3), "/pending.txt")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireHandle(t, conn, 1)
	requireStatus(t, conn, 2, types.StatusOK)
	// Buffered content is not visible at the path before CLOSE
	requireStatus(t, conn, 3, types.StatusNoSuchFile)
}

// statUnavailableBackend simulates a storage outage on stat while the
// rest of the backend keeps working.
type statUnavailableBackend struct {
	*memory.MemoryBackend
}

func (b *statUnavailableBackend) FileInfo(ctx context.Context, path vpath.Path) (backend.FileInfo, error) {
	return backend.FileInfo{}, fmt.Errorf("head object: %w", backend.ErrUnavailable)
}

func TestSessionExclusiveOpenDuringBackendOutage(t *testing.T) {
	// When the existence check itself fails, the exclusive create must
	// not proceed as if the path were free.
	store := &statUnavailableBackend{memory.NewMemoryBackend(memory.MemoryBackendConfig{})}

	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketOpen, uint32(1), "/claim.lock",
		uint32(types.OpenFlagWrite|types.OpenFlagCreat|types.OpenFlagExcl), uint32(0))

	session := NewSession(conn, "test:1", store)
	require.NoError(t, session.Serve(context.Background()))

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 1, types.StatusFailure)
	assert.Zero(t, session.handles.Len(), "no handle may be allocated on a failed exclusive open")
}

func TestSessionAbandonsBufferedWritesOnTeardown(t *testing.T) {
	store := memory.NewMemoryBackend(memory.MemoryBackendConfig{})

	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketOpen, uint32(1), "/orphan.txt",
		uint32(types.OpenFlagWrite|types.OpenFlagCreat), uint32(0))
	conn.send(t, types.PacketWrite, uint32(2), "1", uint64(0), []byte("never committed"))
	// No CLOSE; the stream ends here.

	session := NewSession(conn, "test:1", store)
	require.NoError(t, session.Serve(context.Background()))

	_, err := store.ReadFile(context.Background(), "/orphan.txt")
	require.Error(t, err, "abandoned write must not reach the backend")
	assert.Zero(t, session.handles.Len())
}

// ============================================================================
// Directory Operations
// ============================================================================

func TestSessionDirectoryListing(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketMkdir, uint32(1), "/docs", uint32(0))
	conn.send(t, types.PacketOpendir, uint32(2), "/docs")
	conn.send(t, types.PacketReaddir, uint32(3), "1")
	conn.send(t, types.PacketReaddir, uint32(4), "1")
	conn.send(t, types.PacketClose, uint32(5), "1")
	conn.send(t, types.PacketRmdir, uint32(6), "/docs")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 1, types.StatusOK)
	requireHandle(t, conn, 2)

	packetType, payload := conn.reply(t)
	require.EqualValues(t, types.PacketName, packetType)
	id, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	assert.EqualValues(t, 3, id)

	count, err := wire.DecodeUint32(payload)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	var names []string
	for range count {
		name, err := wire.DecodeString(payload)
		require.NoError(t, err)
		longname, err := wire.DecodeString(payload)
		require.NoError(t, err)
		assert.Contains(t, longname, name)
		attr, err := wire.DecodeAttrs(payload)
		require.NoError(t, err)
		assert.NotZero(t, attr.Permissions&wire.ModeDirectory)
		names = append(names, name)
	}
	assert.Equal(t, []string{".", ".."}, names)

	requireStatus(t, conn, 4, types.StatusEOF)
	requireStatus(t, conn, 5, types.StatusOK)
	requireStatus(t, conn, 6, types.StatusOK)
}

func TestSessionOpendirMissingDirectory(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	conn.send(t, types.PacketOpendir, uint32(1), "/nope")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 1, types.StatusNoSuchFile)
}

// ============================================================================
// Malformed Input
// ============================================================================

func TestSessionMalformedRequestPayload(t *testing.T) {
	conn := newScriptedConn()
	conn.send(t, types.PacketInit, uint32(3))
	// OPEN with a filename but no pflags or attrs
	conn.send(t, types.PacketOpen, uint32(9), "/file")

	_, err := serve(t, conn)
	require.NoError(t, err)

	requireVersion(t, conn, 3)
	requireStatus(t, conn, 9, types.StatusBadMessage)
}
