// Package chat provides the chat domain shared by the client and the gateway:
// the transport-agnostic connection, the message store and inbound frame ingestion.
package chat

import "context"

// Conn abstracts a bidirectional message connection.
// The client dials one with gobwas/ws; the gateway accepts one with coder/websocket.
type Conn interface {
	// Read reads a single message frame (JSON bytes).
	// Returns an error once the connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single message frame (JSON bytes).
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
