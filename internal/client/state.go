package client

// State is the lifecycle state of the managed connection.
type State int

const (
	// StateDisconnected means no attempt is active and none is scheduled by
	// the transport (initial state, after teardown, or after a login redirect).
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateOpen means the connection is established and may carry outbound traffic.
	StateOpen

	// StateClosed means the last connection ended and a retry is scheduled.
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// active reports whether s counts as the single allowed attempt.
func (s State) active() bool {
	return s == StateConnecting || s == StateOpen
}
