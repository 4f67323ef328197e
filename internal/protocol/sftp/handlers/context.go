package handlers

import "context"

// RequestContext carries the per-request information every handler needs.
//
// **Context Cancellation:**
//
// The Context field enables cancellation propagation throughout the
// request processing pipeline:
//   - Server shutdown triggers context cancellation
//   - Client disconnects can trigger cancellation
//   - Long-running operations (READ, WRITE, READDIR) can be interrupted
//
// Handlers check this context before expensive backend operations.
type RequestContext struct {
	// Context carries cancellation signals and deadlines. It is derived
	// from the connection's context and is cancelled when the server
	// shuts down or the client disconnects.
	Context context.Context

	// ClientAddr is the remote address of the client connection.
	// Format: "IP:port" for TCP connections.
	ClientAddr string

	// RequestID is the client-chosen identifier for this request.
	// It is echoed verbatim in whatever reply the handler produces;
	// the server attaches no meaning to it beyond correlation.
	RequestID uint32
}
