package sftp

import (
	"context"
	"errors"
	"io"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/marmos91/dsftp/internal/logger"
	protocol "github.com/marmos91/dsftp/internal/protocol/sftp"
	"github.com/marmos91/dsftp/internal/ratelimiter"
)

// connection handles a single client TCP connection: the SSH handshake,
// channel multiplexing, and one protocol session per "sftp" subsystem
// request.
//
// SSH permits several session channels on one connection, and some
// clients open more than one for parallel transfers. Each channel gets
// its own session with its own handle table, so transfers on different
// channels never interfere.
type connection struct {
	adapter *SFTPAdapter
	tcpConn net.Conn
}

// newConnection wraps an accepted TCP connection.
func newConnection(adapter *SFTPAdapter, tcpConn net.Conn) *connection {
	return &connection{
		adapter: adapter,
		tcpConn: tcpConn,
	}
}

// serve runs the SSH handshake and serves channels until the client
// disconnects or the context is cancelled. The caller owns connection
// accounting; serve only has to close the transport.
func (c *connection) serve(ctx context.Context) {
	sshConn, chans, globalReqs, err := ssh.NewServerConn(c.tcpConn, c.adapter.sshConfig)
	if err != nil {
		// Port scanners and TCP health checks land here constantly, so
		// keep the noise at debug level.
		logger.Debug("SSH handshake failed from %s: %v", c.tcpConn.RemoteAddr(), err)
		_ = c.tcpConn.Close()
		return
	}
	defer sshConn.Close()

	clientAddr := sshConn.RemoteAddr().String()
	logger.Info("SSH connection established from %s user=%q client=%q",
		clientAddr, sshConn.User(), sshConn.ClientVersion())

	// Unblock the channel loop when shutdown is initiated.
	handshakeDone := make(chan struct{})
	defer close(handshakeDone)
	go func() {
		select {
		case <-ctx.Done():
			_ = sshConn.Close()
		case <-handshakeDone:
		}
	}()

	// Keepalives and other global requests are irrelevant here.
	go ssh.DiscardRequests(globalReqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			logger.Debug("Rejecting channel type %q from %s", newChannel.ChannelType(), clientAddr)
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			logger.Warn("Failed to accept session channel from %s: %v", clientAddr, err)
			continue
		}

		go c.serveChannel(ctx, clientAddr, channel, requests)
	}

	logger.Debug("SSH connection from %s closed", clientAddr)
}

// serveChannel waits for the "sftp" subsystem request on a session
// channel, then hands the channel to the protocol engine.
func (c *connection) serveChannel(ctx context.Context, clientAddr string, channel ssh.Channel, requests <-chan *ssh.Request) {
	defer channel.Close()

	for req := range requests {
		switch req.Type {
		case "subsystem":
			if subsystemName(req.Payload) != "sftp" {
				logger.Debug("Rejecting subsystem %q from %s", subsystemName(req.Payload), clientAddr)
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)

			session := protocol.NewSession(channel, clientAddr, c.adapter.store)
			if limit := c.adapter.config.MaxRequestsPerSecond; limit > 0 {
				session.SetRateLimiter(ratelimiter.New(limit, c.adapter.config.RequestBurst))
			}
			if err := session.Serve(ctx); err != nil && !errors.Is(err, io.EOF) {
				logger.Warn("SFTP session from %s ended with error: %v", clientAddr, err)
			}
			return

		default:
			// Shell, exec and pty requests have no meaning on a
			// transfer-only server.
			logger.Debug("Rejecting request type %q from %s", req.Type, clientAddr)
			_ = req.Reply(false, nil)
		}
	}
}

// subsystemName extracts the subsystem name from an SSH request payload
// (a single length-prefixed string).
func subsystemName(payload []byte) string {
	if len(payload) < 4 {
		return ""
	}
	length := uint32(payload[0])<<24 | uint32(payload[1])<<16 | uint32(payload[2])<<8 | uint32(payload[3])
	if uint32(len(payload)-4) < length {
		return ""
	}
	return string(payload[4 : 4+length])
}
