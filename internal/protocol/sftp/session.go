package sftp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/internal/protocol/sftp/handlers"
	"github.com/marmos91/dsftp/internal/protocol/sftp/types"
	"github.com/marmos91/dsftp/internal/protocol/sftp/wire"
	"github.com/marmos91/dsftp/internal/ratelimiter"
	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/handle"
)

// sessionState tracks where a session is in its lifecycle.
type sessionState int

const (
	// stateAwaitingVersion - no INIT seen yet; only INIT is legal
	stateAwaitingVersion sessionState = iota

	// stateNegotiated - version agreed; operational requests are legal
	stateNegotiated

	// stateClosed - session torn down; no further packets are processed
	stateClosed
)

// Session drives the protocol for one connection.
//
// A session owns the connection's handle table and processes packets
// strictly in arrival order: the reply to each request is written before
// the next request is read. Request identifiers are echoed, never
// interpreted, so ordered processing satisfies every client-side
// pipelining strategy.
//
// **Lifecycle:**
//
// The first packet must be INIT; the session answers VERSION with
// min(client version, 3) and moves to the negotiated state. Any other
// packet before negotiation is a protocol error that terminates the
// session. After negotiation, known requests are dispatched, unknown
// ones are answered with SSH_FX_OP_UNSUPPORTED, and a second INIT is
// fatal.
//
// Teardown abandons all open handles: buffered writes that were never
// closed are discarded, not flushed. A half-uploaded file never becomes
// a half-complete object.
type Session struct {
	reader     *bufio.Reader
	writer     io.Writer
	clientAddr string

	handler handlers.SFTPHandler
	store   backend.Backend
	handles *handle.Manager

	// limiter throttles request processing when set; nil means no limit
	limiter *ratelimiter.RateLimiter

	state sessionState
}

// NewSession creates a session over the given transport. The transport
// is typically an SSH "sftp" subsystem channel, but anything that moves
// bytes both ways works, which is what the tests rely on.
func NewSession(transport io.ReadWriter, clientAddr string, store backend.Backend) *Session {
	return &Session{
		reader:     bufio.NewReader(transport),
		writer:     transport,
		clientAddr: clientAddr,
		handler:    handlers.NewSFTPHandler(),
		store:      store,
		handles:    handle.NewManager(store),
		state:      stateAwaitingVersion,
	}
}

// SetRateLimiter installs a request rate limiter. Must be called before
// Serve. When the session's token bucket runs dry, request processing
// waits for the next token instead of failing the request.
func (s *Session) SetRateLimiter(limiter *ratelimiter.RateLimiter) {
	s.limiter = limiter
}

// Serve processes packets until the client disconnects, the context is
// cancelled, or a protocol error occurs. It always tears the session
// down before returning; a nil error means the client closed cleanly.
func (s *Session) Serve(ctx context.Context) error {
	defer s.teardown()

	logger.Info("Session started: client=%s", s.clientAddr)

	for {
		if err := ctx.Err(); err != nil {
			logger.Debug("Session cancelled: client=%s error=%v", s.clientAddr, err)
			return err
		}

		packetType, payload, err := wire.ReadPacket(s.reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("Session ended: client=%s", s.clientAddr)
				return nil
			}
			logger.Warn("Session read error: client=%s error=%v", s.clientAddr, err)
			return fmt.Errorf("read packet: %w", err)
		}

		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				logger.Debug("Session throttle interrupted: client=%s error=%v", s.clientAddr, err)
				return err
			}
		}

		if err := s.handlePacket(ctx, packetType, payload); err != nil {
			return err
		}
	}
}

// handlePacket routes one packet according to the session state.
func (s *Session) handlePacket(ctx context.Context, packetType byte, payload []byte) error {
	switch s.state {
	case stateAwaitingVersion:
		if packetType != types.PacketInit {
			logger.Warn("Session protocol error: %s before INIT client=%s",
				types.PacketTypeToString(packetType), s.clientAddr)
			return fmt.Errorf("protocol error: %s before version negotiation",
				types.PacketTypeToString(packetType))
		}
		return s.handleInit(payload)

	case stateNegotiated:
		if packetType == types.PacketInit {
			logger.Warn("Session protocol error: repeated INIT client=%s", s.clientAddr)
			return errors.New("protocol error: INIT after version negotiation")
		}
		return s.handleRequest(ctx, packetType, payload)

	default:
		return errors.New("session closed")
	}
}

// handleInit performs version negotiation.
//
// The INIT payload carries the client's highest supported version; the
// answer is min(client, 3). Clients below version 3 are ancient enough
// that the low versions' quirks are not worth carrying, so the session
// still answers with the computed minimum and lets the client decide
// whether to proceed.
func (s *Session) handleInit(payload []byte) error {
	clientVersion, err := wire.DecodeUint32(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decode INIT: %w", err)
	}

	version := uint32(types.ProtocolVersion)
	if clientVersion < version {
		version = clientVersion
	}

	logger.Info("Session negotiated: client=%s clientVersion=%d version=%d",
		s.clientAddr, clientVersion, version)

	buf := new(bytes.Buffer)
	if err := wire.EncodeUint32(buf, version); err != nil {
		return fmt.Errorf("encode VERSION: %w", err)
	}
	if err := wire.WritePacket(s.writer, types.PacketVersion, buf.Bytes()); err != nil {
		return fmt.Errorf("write VERSION: %w", err)
	}

	s.state = stateNegotiated
	return nil
}

// handleRequest dispatches one operational request and writes its reply.
func (s *Session) handleRequest(ctx context.Context, packetType byte, payload []byte) error {
	requestID, err := wire.DecodeUint32(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("decode request id: %w", err)
	}
	data := payload[4:]

	reqCtx := &handlers.RequestContext{
		Context:    ctx,
		ClientAddr: s.clientAddr,
		RequestID:  requestID,
	}

	var reply handlers.Reply
	var handlerErr error

	procedure, known := dispatchTable[packetType]
	if !known {
		logger.Debug("Session: unsupported request %s id=%d client=%s",
			types.PacketTypeToString(packetType), requestID, s.clientAddr)
		reply = &handlers.StatusReply{
			Code:    types.StatusOpUnsupported,
			Message: fmt.Sprintf("%s not supported", types.PacketTypeToString(packetType)),
		}
	} else {
		reply, handlerErr = procedure.Handler(reqCtx, s.handler, s.store, s.handles, data)
	}

	if reply != nil {
		if err := s.writeReply(requestID, reply); err != nil {
			return err
		}
	}

	// Cancellation surfaces after the reply attempt so the client gets
	// a status for the request that was in flight.
	return handlerErr
}

// writeReply encodes and frames one reply.
func (s *Session) writeReply(requestID uint32, reply handlers.Reply) error {
	payload, err := reply.Encode(requestID)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if err := wire.WritePacket(s.writer, reply.PacketType(), payload); err != nil {
		return fmt.Errorf("write reply: %w", err)
	}
	return nil
}

// teardown abandons all open handles and closes the session.
func (s *Session) teardown() {
	if s.state == stateClosed {
		return
	}
	s.state = stateClosed

	if open := s.handles.Len(); open > 0 {
		logger.Debug("Session teardown: discarding %d open handles client=%s", open, s.clientAddr)
	}
	s.handles.Abandon()
}
