package connection

// State is the lifecycle state of the logical connection.
type State int

const (
	// StateDisconnected means no socket is open. A retry may be pending.
	StateDisconnected State = iota

	// StateConnecting means a dial is in flight.
	StateConnecting

	// StateConnected means the socket is open and Send may be used.
	StateConnected
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// StateEvent is published on every state transition.
type StateEvent struct {
	Old State
	New State
	// Attempt is the retry count at the time of the transition.
	Attempt int
	// Exhausted is set once the manager has given up reconnecting.
	Exhausted bool
	// Err is the error that closed the connection, if any.
	Err error
}
