// Package server contains the composition root: it wires the shared
// storage backend into one or more protocol adapters and manages their
// lifecycle as a unit.
package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/dsftp/internal/logger"
	"github.com/marmos91/dsftp/pkg/adapter"
	"github.com/marmos91/dsftp/pkg/backend"
)

// Server manages the lifecycle of protocol adapters that share a common
// storage backend.
//
// All adapters operate against the same backend, providing a unified
// view of the stored files regardless of which protocol is used to
// access them.
//
// Lifecycle:
//  1. Creation: New() with the backend
//  2. Registration: AddAdapter() for each protocol
//  3. Startup: Serve() starts all adapters concurrently
//  4. Shutdown: Context cancellation triggers graceful shutdown
//
// Thread safety:
// AddAdapter() may be called concurrently before Serve(). Serve() must
// only be called once per server instance.
//
// Example usage:
//
//	srv := server.New(store)
//	srv.AddAdapter(sftpAdapter)
//
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer cancel()
//
//	if err := srv.Serve(ctx); err != nil && err != context.Canceled {
//	    log.Fatal(err)
//	}
type Server struct {
	// store is the shared storage backend for all adapters
	store backend.Backend

	// adapters contains all registered protocol adapters
	adapters []adapter.Adapter

	// mu protects the adapters slice and serving flag
	mu sync.RWMutex

	// served indicates whether Serve() has been called
	served bool
}

// New creates a new Server with the provided backend.
//
// The backend is shared across all adapters added to this server. Call
// AddAdapter() to register protocols, then Serve() to start.
//
// Panics if the backend is nil (indicates programmer error).
func New(store backend.Backend) *Server {
	if store == nil {
		panic("backend cannot be nil")
	}

	return &Server{
		store:    store,
		adapters: make([]adapter.Adapter, 0, 2),
	}
}

// AddAdapter registers a new protocol adapter with the server.
//
// This injects the shared backend into the adapter and adds it to the
// list of adapters started by Serve(). Duplicate protocols and port
// conflicts are rejected.
//
// Panics if the adapter is nil or if Serve() has already been called.
func (s *Server) AddAdapter(a adapter.Adapter) error {
	if a == nil {
		panic("adapter cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.served {
		panic("cannot add adapter after Serve() has been called")
	}

	protocol := a.Protocol()
	port := a.Port()

	for _, existing := range s.adapters {
		if existing.Protocol() == protocol {
			return fmt.Errorf("adapter for protocol %s already registered", protocol)
		}
		if existing.Port() == port {
			return fmt.Errorf("port %d already in use by %s adapter",
				port, existing.Protocol())
		}
	}

	a.SetBackend(s.store)
	s.adapters = append(s.adapters, a)

	logger.Info("Registered %s adapter on port %d", protocol, port)

	return nil
}

// Serve starts all registered adapters and blocks until the context is
// cancelled or an adapter fails.
//
// Shutdown behavior:
// When the context is cancelled or an adapter fails, all adapters
// receive Stop() calls in reverse registration order, then Serve()
// waits for every adapter goroutine to complete before returning.
//
// Returns:
//   - context.Canceled if shutdown was triggered by context cancellation
//   - an error if startup failed or an adapter encountered an error
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.served {
		s.mu.Unlock()
		panic("Serve() has already been called on this server instance")
	}
	s.served = true

	if len(s.adapters) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("no adapters registered; call AddAdapter() before Serve()")
	}
	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	s.mu.Unlock()

	logger.Info("Starting server with %d adapter(s)", len(adapters))

	// Buffered so every failing adapter can report without leaking its
	// goroutine.
	errChan := make(chan adapterError, len(adapters))

	var wg sync.WaitGroup

	for _, adp := range adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()

			protocol := a.Protocol()
			logger.Info("Starting %s adapter on port %d", protocol, a.Port())

			if err := a.Serve(ctx); err != nil {
				// context.Canceled is expected during shutdown.
				if err != context.Canceled && ctx.Err() == nil {
					logger.Error("%s adapter failed: %v", protocol, err)
					errChan <- adapterError{protocol: protocol, err: err}
				} else {
					logger.Debug("%s adapter stopped gracefully", protocol)
				}
			} else {
				logger.Info("%s adapter stopped", protocol)
			}
		}(adp)
	}

	var shutdownErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
		s.stopAllAdapters(adapters)
		shutdownErr = ctx.Err()

	case adapterErr := <-errChan:
		logger.Error("Adapter %s failed: %v - initiating shutdown of all adapters",
			adapterErr.protocol, adapterErr.err)
		s.stopAllAdapters(adapters)
		shutdownErr = fmt.Errorf("%s adapter error: %w", adapterErr.protocol, adapterErr.err)
	}

	logger.Debug("Waiting for all adapters to complete shutdown")
	wg.Wait()

	logger.Info("Server stopped gracefully")

	return shutdownErr
}

// adapterError pairs an adapter protocol name with its error.
type adapterError struct {
	protocol string
	err      error
}

// stopAllAdapters initiates graceful shutdown of all adapters in
// reverse registration order, each bounded by a shared timeout so one
// misbehaving adapter cannot block shutdown indefinitely.
func (s *Server) stopAllAdapters(adapters []adapter.Adapter) {
	const stopTimeout = 30 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	logger.Info("Initiating graceful shutdown of %d adapter(s)", len(adapters))

	for i := len(adapters) - 1; i >= 0; i-- {
		adp := adapters[i]
		protocol := adp.Protocol()

		logger.Debug("Stopping %s adapter (port %d)", protocol, adp.Port())

		if err := adp.Stop(ctx); err != nil && err != context.Canceled {
			logger.Error("Error stopping %s adapter: %v", protocol, err)
		} else {
			logger.Debug("%s adapter stop signal sent", protocol)
		}
	}
}

// Adapters returns a snapshot of currently registered adapters. The
// returned slice is a copy and safe to iterate without holding locks.
func (s *Server) Adapters() []adapter.Adapter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	adapters := make([]adapter.Adapter, len(s.adapters))
	copy(adapters, s.adapters)
	return adapters
}
