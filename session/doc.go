// Package session implements the connection state machine at the heart of
// the transport: one persistent connection per logical peer, with automatic
// reconnection, outbound buffering during outages, and keepalive-based
// failure detection.
//
// All state transitions for a Connection happen on a single event-loop
// goroutine. Public methods post events and return immediately; completion
// and failure are signaled through the Observer, never thrown across the
// call boundary asynchronously.
package session
