package remote

// State represents the connection state.
type State uint8

const (
	// StateDisconnected indicates no active connection. It is the initial state.
	StateDisconnected State = iota

	// StateConnecting indicates a connect attempt (dial + authenticate) is in progress.
	StateConnecting

	// StateConnected indicates an authenticated connection.
	StateConnected
)

// String returns a human-readable state name.
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
