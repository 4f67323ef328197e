// Package sftp provides the SFTP protocol adapter: a TCP listener with
// an SSH transport on top, spawning one protocol session per "sftp"
// subsystem channel.
package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/pkg/backend"
)

// SFTPAdapter implements the adapter.Adapter interface for the SFTP
// protocol over SSH.
//
// The adapter manages the TCP listener and connection lifecycle. Each
// accepted connection goes through the SSH handshake and then serves
// one protocol session per "sftp" subsystem channel. Graceful shutdown
// is coordinated across all active connections using context
// cancellation and wait groups.
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. shutdownCtx cancelled (signals in-flight sessions to abort)
//  4. Wait for active connections to complete (up to ShutdownTimeout)
//  5. Force-close any remaining connections after timeout
type SFTPAdapter struct {
	// config holds the server configuration (port, auth, timeouts, limits)
	config SFTPConfig

	// listener is the TCP listener for accepting SSH connections.
	// Closed during shutdown to stop accepting new connections.
	listener net.Listener

	// sshConfig is the SSH server configuration (host key, auth callbacks)
	sshConfig *ssh.ServerConfig

	// store is the shared storage backend injected via SetBackend
	store backend.Backend

	// activeConns tracks active connections for graceful shutdown
	activeConns sync.WaitGroup

	// shutdownOnce ensures shutdown is only initiated once
	shutdownOnce sync.Once

	// shutdown signals that graceful shutdown has been initiated
	shutdown chan struct{}

	// connCount tracks the current number of active connections
	connCount atomic.Int32

	// connSemaphore limits concurrent connections when MaxConnections > 0.
	// nil if MaxConnections is 0 (unlimited).
	connSemaphore chan struct{}

	// shutdownCtx is cancelled during shutdown to abort in-flight sessions
	shutdownCtx context.Context

	// cancelRequests cancels shutdownCtx during shutdown
	cancelRequests context.CancelFunc

	// activeConnections maps remote address to net.Conn for forced closure
	activeConnections sync.Map
}

// SFTPConfig holds configuration parameters for the SFTP server.
//
// All timeout values are optional. Zero values are replaced with
// defaults by applyDefaults.
type SFTPConfig struct {
	// Enabled controls whether the SFTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Port is the TCP port to listen on for SSH connections.
	// If 0, defaults to 2022 (unprivileged alternative to 22).
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// HostKeyPath is the path to a PEM-encoded SSH host private key.
	// If empty, an ephemeral Ed25519 key is generated at startup, which
	// means clients see a new host identity after every restart.
	HostKeyPath string `mapstructure:"host_key_path"`

	// Users maps usernames to plaintext passwords for password
	// authentication. Ignored when AllowAnonymous is set.
	Users map[string]string `mapstructure:"users"`

	// AllowAnonymous disables client authentication entirely.
	// Intended for local development and testing only.
	AllowAnonymous bool `mapstructure:"allow_anonymous"`

	// MaxConnections limits concurrent client connections.
	// 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// MaxRequestsPerSecond throttles each session to this sustained
	// request rate. 0 means unlimited.
	MaxRequestsPerSecond uint `mapstructure:"max_requests_per_second"`

	// RequestBurst is the per-session burst capacity when throttling is
	// enabled. Defaults to twice MaxRequestsPerSecond.
	RequestBurst uint `mapstructure:"request_burst"`

	// ShutdownTimeout is the maximum duration to wait for active
	// connections to complete during graceful shutdown. After this
	// timeout, remaining connections are forcibly closed.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *SFTPConfig) applyDefaults() {
	if c.Port <= 0 {
		c.Port = 2022
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.MaxRequestsPerSecond > 0 && c.RequestBurst == 0 {
		c.RequestBurst = 2 * c.MaxRequestsPerSecond
	}
}

// validate checks that the configuration is usable.
func (c *SFTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	if !c.AllowAnonymous && len(c.Users) == 0 {
		return fmt.Errorf("no users configured and anonymous access disabled")
	}
	return nil
}

// New creates a new SFTPAdapter with the specified configuration.
//
// The adapter is created in a stopped state. Call SetBackend() to
// inject the storage backend, then Serve() to start accepting
// connections. Host key loading happens here so a bad key path fails
// fast instead of at first connection.
func New(config SFTPConfig) (*SFTPAdapter, error) {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid SFTP config: %w", err)
	}

	sshConfig, err := buildSSHConfig(config)
	if err != nil {
		return nil, err
	}

	var connSemaphore chan struct{}
	if config.MaxConnections > 0 {
		connSemaphore = make(chan struct{}, config.MaxConnections)
		logger.Debug("SFTP connection limit: %d", config.MaxConnections)
	} else {
		logger.Debug("SFTP connection limit: unlimited")
	}

	shutdownCtx, cancelRequests := context.WithCancel(context.Background())

	return &SFTPAdapter{
		config:         config,
		sshConfig:      sshConfig,
		shutdown:       make(chan struct{}),
		connSemaphore:  connSemaphore,
		shutdownCtx:    shutdownCtx,
		cancelRequests: cancelRequests,
	}, nil
}

// buildSSHConfig assembles the SSH server configuration from the
// adapter config: authentication policy and host key.
func buildSSHConfig(config SFTPConfig) (*ssh.ServerConfig, error) {
	sshConfig := &ssh.ServerConfig{}

	if config.AllowAnonymous {
		sshConfig.NoClientAuth = true
		logger.Warn("SFTP anonymous access enabled: all clients accepted without credentials")
	} else {
		users := config.Users
		sshConfig.PasswordCallback = func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			expected, ok := users[meta.User()]
			// Compare even for unknown users to keep timing uniform.
			match := subtle.ConstantTimeCompare([]byte(expected), password) == 1
			if !ok || !match {
				logger.Warn("SFTP authentication failed for user %q from %s", meta.User(), meta.RemoteAddr())
				return nil, fmt.Errorf("authentication failed")
			}
			logger.Debug("SFTP user %q authenticated from %s", meta.User(), meta.RemoteAddr())
			return nil, nil
		}
	}

	signer, err := loadHostKey(config.HostKeyPath)
	if err != nil {
		return nil, err
	}
	sshConfig.AddHostKey(signer)

	return sshConfig, nil
}

// loadHostKey loads the host key from disk, or generates an ephemeral
// Ed25519 key when no path is configured.
func loadHostKey(path string) (ssh.Signer, error) {
	if path == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate host key: %w", err)
		}
		signer, err := ssh.NewSignerFromKey(priv)
		if err != nil {
			return nil, fmt.Errorf("failed to build signer from generated key: %w", err)
		}
		logger.Warn("SFTP host key not configured: using ephemeral key (fingerprint %s)",
			ssh.FingerprintSHA256(signer.PublicKey()))
		return signer, nil
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read host key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("failed to parse host key %s: %w", path, err)
	}
	return signer, nil
}

// SetBackend injects the shared storage backend.
//
// Called by the server before Serve(), so no synchronization is needed.
func (s *SFTPAdapter) SetBackend(store backend.Backend) {
	s.store = store
	logger.Debug("SFTP backend configured")
}

// Serve starts the SFTP server and blocks until the context is
// cancelled or an unrecoverable error occurs.
//
// Serve accepts incoming TCP connections on the configured port and
// spawns a goroutine per connection. The connection handler performs
// the SSH handshake and serves protocol sessions on "sftp" subsystem
// channels.
//
// When the context is cancelled, Serve initiates graceful shutdown:
//  1. Stops accepting new connections (listener closed)
//  2. Cancels all in-flight session contexts (shutdownCtx cancelled)
//  3. Waits for active connections to complete (up to ShutdownTimeout)
//  4. Forcibly closes any remaining connections after timeout
func (s *SFTPAdapter) Serve(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("SFTP adapter started without a backend")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create SFTP listener on port %d: %w", s.config.Port, err)
	}

	s.listener = listener
	logger.Info("SFTP server listening on port %d", s.config.Port)
	logger.Debug("SFTP config: max_connections=%d shutdown_timeout=%v anonymous=%v",
		s.config.MaxConnections, s.config.ShutdownTimeout, s.config.AllowAnonymous)

	// Monitor context cancellation in a separate goroutine so the main
	// loop can focus on accepting connections.
	go func() {
		<-ctx.Done()
		logger.Info("SFTP shutdown signal received: %v", ctx.Err())
		s.initiateShutdown()
	}()

	for {
		// Acquire a semaphore slot if connection limiting is enabled.
		// This blocks at MaxConnections until a connection closes.
		if s.connSemaphore != nil {
			select {
			case s.connSemaphore <- struct{}{}:
			case <-s.shutdown:
				return s.gracefulShutdown()
			}
		}

		tcpConn, err := s.listener.Accept()
		if err != nil {
			if s.connSemaphore != nil {
				<-s.connSemaphore
			}

			select {
			case <-s.shutdown:
				// Expected error during shutdown (listener was closed)
				return s.gracefulShutdown()
			default:
				logger.Debug("Error accepting SFTP connection: %v", err)
				continue
			}
		}

		s.activeConns.Add(1)
		s.connCount.Add(1)

		connAddr := tcpConn.RemoteAddr().String()
		s.activeConnections.Store(connAddr, tcpConn)

		logger.Debug("SFTP connection accepted from %s (active: %d)",
			tcpConn.RemoteAddr(), s.connCount.Load())

		conn := newConnection(s, tcpConn)
		go func(addr string, tcp net.Conn) {
			defer func() {
				s.activeConnections.Delete(addr)
				s.activeConns.Done()
				s.connCount.Add(-1)
				if s.connSemaphore != nil {
					<-s.connSemaphore
				}
				logger.Debug("SFTP connection closed from %s (active: %d)",
					tcp.RemoteAddr(), s.connCount.Load())
			}()

			conn.serve(s.shutdownCtx)
		}(connAddr, tcpConn)
	}
}

// initiateShutdown signals the server to begin graceful shutdown.
//
// Safe to call multiple times and from multiple goroutines. Uses
// sync.Once so the shutdown logic only runs once.
func (s *SFTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("SFTP shutdown initiated")

		close(s.shutdown)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil {
				logger.Debug("Error closing SFTP listener: %v", err)
			}
		}

		// Cancelling shutdownCtx makes in-flight sessions abort between
		// requests, discarding any uncommitted write buffers.
		s.cancelRequests()
		logger.Debug("SFTP cancellation signal sent to all in-flight sessions")
	})
}

// gracefulShutdown waits for active connections to complete or timeout.
//
// Returns nil if all connections completed gracefully, or an error if
// the shutdown timeout was exceeded and connections were force-closed.
func (s *SFTPAdapter) gracefulShutdown() error {
	activeCount := s.connCount.Load()
	logger.Info("SFTP graceful shutdown: waiting for %d active connection(s) (timeout: %v)",
		activeCount, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("SFTP graceful shutdown complete: all connections closed")
		return nil

	case <-time.After(s.config.ShutdownTimeout):
		remaining := s.connCount.Load()
		logger.Warn("SFTP shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			remaining, s.config.ShutdownTimeout)

		s.forceCloseConnections()

		return fmt.Errorf("SFTP shutdown timeout: %d connections force-closed", remaining)
	}
}

// forceCloseConnections closes all active TCP connections to accelerate
// shutdown after the graceful timeout expires. Clients see the transport
// drop; uncommitted write buffers were already discarded by session
// teardown.
func (s *SFTPAdapter) forceCloseConnections() {
	logger.Info("Force-closing active SFTP connections")

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		addr := key.(string)
		conn := value.(net.Conn)

		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection to %s: %v", addr, err)
		} else {
			closedCount++
			logger.Debug("Force-closed connection to %s", addr)
		}
		return true
	})

	if closedCount == 0 {
		logger.Debug("No connections to force-close")
	} else {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown of the SFTP server.
//
// Safe to call multiple times and concurrently with Serve(). The
// context allows the caller to bound the wait; if ctx is nil, the
// configured ShutdownTimeout applies.
func (s *SFTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if ctx == nil {
		return s.gracefulShutdown()
	}

	activeCount := s.connCount.Load()
	logger.Info("SFTP graceful shutdown: waiting for %d active connection(s) (context timeout)",
		activeCount)

	done := make(chan struct{})
	go func() {
		s.activeConns.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("SFTP graceful shutdown complete: all connections closed")
		return nil

	case <-ctx.Done():
		remaining := s.connCount.Load()
		logger.Warn("SFTP shutdown context cancelled: %d connection(s) still active: %v",
			remaining, ctx.Err())
		return ctx.Err()
	}
}

// GetActiveConnections returns the current number of active connections.
// Primarily used for testing and monitoring.
func (s *SFTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Port returns the TCP port the SFTP server is listening on.
func (s *SFTPAdapter) Port() int {
	return s.config.Port
}

// Protocol returns "SFTP" as the protocol identifier.
func (s *SFTPAdapter) Protocol() string {
	return "SFTP"
}
