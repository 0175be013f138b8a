// Package session implements the per-server connection lifecycle: dial,
// key handshake, login, card-data exchange, the running read loop, and
// the reconnect backoff policy. Grounded on the teacher's
// infrastructure/routing/client_routing/routing/tcp_chacha20 worker/router
// pair for the reader/writer goroutine split, and on
// application/network/rekey.Controller for the mutex-guarded explicit-state
// FSM discipline.
package session

// State is one stage of a server session's lifecycle.
type State int

const (
	StateDisabled State = iota
	StateConnecting
	StateHandshake
	StateRunning
	StateBackoff
	StateDestroying
)

func (s State) String() string {
	switch s {
	case StateDisabled:
		return "DISABLED"
	case StateConnecting:
		return "CONNECTING"
	case StateHandshake:
		return "HANDSHAKE"
	case StateRunning:
		return "RUNNING"
	case StateBackoff:
		return "BACKOFF"
	case StateDestroying:
		return "DESTROYING"
	default:
		return "UNKNOWN"
	}
}
