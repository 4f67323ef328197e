package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dsftp/pkg/backend"
	"github.com/marmos91/dsftp/pkg/backend/memory"
)

// fakeAdapter is a controllable adapter.Adapter for lifecycle tests.
// Like a real adapter, Stop() unblocks a running Serve().
type fakeAdapter struct {
	protocol string
	port     int

	serveErr error
	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  atomic.Bool
	gotStore backend.Backend
}

func newFakeAdapter(protocol string, port int) *fakeAdapter {
	return &fakeAdapter{protocol: protocol, port: port, stopCh: make(chan struct{})}
}

func (f *fakeAdapter) Serve(ctx context.Context) error {
	if f.serveErr != nil {
		return f.serveErr
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.stopCh:
		return nil
	}
}

func (f *fakeAdapter) SetBackend(store backend.Backend) { f.gotStore = store }

func (f *fakeAdapter) Stop(ctx context.Context) error {
	f.stopped.Store(true)
	f.stopOnce.Do(func() { close(f.stopCh) })
	return nil
}

func (f *fakeAdapter) Protocol() string { return f.protocol }
func (f *fakeAdapter) Port() int        { return f.port }

func newTestServer() (*Server, backend.Backend) {
	store := memory.NewMemoryBackend(memory.MemoryBackendConfig{})
	return New(store), store
}

func TestAddAdapterInjectsBackend(t *testing.T) {
	srv, store := newTestServer()
	fake := newFakeAdapter("SFTP", 2022)

	require.NoError(t, srv.AddAdapter(fake))
	assert.Same(t, store, fake.gotStore)
	assert.Len(t, srv.Adapters(), 1)
}

func TestAddAdapterRejectsConflicts(t *testing.T) {
	srv, _ := newTestServer()
	require.NoError(t, srv.AddAdapter(newFakeAdapter("SFTP", 2022)))

	err := srv.AddAdapter(newFakeAdapter("SFTP", 2023))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = srv.AddAdapter(newFakeAdapter("FTP", 2022))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in use")
}

func TestServeWithoutAdapters(t *testing.T) {
	srv, _ := newTestServer()
	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no adapters registered")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer()
	fake := newFakeAdapter("SFTP", 2022)
	require.NoError(t, srv.AddAdapter(fake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
	assert.True(t, fake.stopped.Load())
}

func TestServeStopsAllOnAdapterFailure(t *testing.T) {
	srv, _ := newTestServer()
	healthy := newFakeAdapter("SFTP", 2022)
	failing := newFakeAdapter("FTP", 2121)
	failing.serveErr = errors.New("bind failed")
	require.NoError(t, srv.AddAdapter(healthy))
	require.NoError(t, srv.AddAdapter(failing))

	err := srv.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind failed")
	assert.True(t, healthy.stopped.Load())
}
