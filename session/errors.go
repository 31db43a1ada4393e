package session

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// ErrClosed is returned by operations on a disposed Connection.
	ErrClosed = errors.New("session: connection closed")

	// ErrInvalidState is returned by Connect from a state other than
	// disconnected or failed.
	ErrInvalidState = errors.New("session: connect is only valid when disconnected or failed")

	// ErrKeepaliveTimeout marks a transport declared dead because a
	// liveness probe went unacknowledged.
	ErrKeepaliveTimeout = errors.New("session: keepalive probe unacknowledged")

	// ErrRetriesExhausted marks a terminal failure after the configured
	// reconnection ceiling.
	ErrRetriesExhausted = errors.New("session: reconnection attempts exhausted")
)

// ConnectionError carries context about a transport-level failure.
type ConnectionError struct {
	Op        string    // Operation that failed
	Endpoint  string    // Endpoint (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Reconnection attempts made so far
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("session: %s %s failed after %d attempts: %v", e.Op, e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("session: %s %s failed: %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SanitizeEndpoint strips the credential query parameter from an endpoint
// for logging.
func SanitizeEndpoint(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "***"
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
