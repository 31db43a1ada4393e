package session

// ConnectionState is the lifecycle state of a Connection.
type ConnectionState int32

const (
	// StateDisconnected is the initial state, also reached by explicit
	// Disconnect from any state.
	StateDisconnected ConnectionState = iota
	// StateConnecting means the transport is being established or the
	// verification ping is outstanding.
	StateConnecting
	// StateConnected means the transport is up and verified.
	StateConnected
	// StateReconnecting means the transport was lost and retries are
	// scheduled.
	StateReconnecting
	// StateFailed means retries were exhausted. Terminal until an explicit
	// Connect.
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
