// Package transport abstracts the framed bidirectional byte transport the
// session layer runs on, so the state machine can be exercised against an
// in-memory fake and shipped against WebSocket.
package transport

import "context"

// Conn is a single established transport connection. Read and Write carry
// whole frames; a Conn is safe for one concurrent reader and one concurrent
// writer.
type Conn interface {
	// Read blocks until the next inbound frame. raw is true for frames that
	// intentionally bypass the envelope codec (binary frames).
	Read() (data []byte, raw bool, err error)
	// Write sends one outbound frame.
	Write(data []byte) error
	// Close tears the connection down. Any blocked Read unblocks with an
	// error. Close is idempotent.
	Close() error
}

// Dialer establishes transport connections. The auth token is treated as
// opaque and attached as a connection credential.
type Dialer interface {
	Dial(ctx context.Context, endpoint, authToken string) (Conn, error)
}
