// Package binding implements the per-(server,service) descrambler binding:
// ECM send-and-wait with deduplication, and batched packet descrambling
// through an opaque block-descrambler key context.
package binding

// KeyState tracks whether a binding's control words are usable.
type KeyState int

const (
	// StateUnknown is the initial state and the state entered whenever
	// the owning session is not connected when a fresh ECM arrives.
	StateUnknown KeyState = iota
	// StateResolved means a full-length ECM reply was received and its
	// non-zero control words were applied to the key context.
	StateResolved
	// StateForbidden is sticky for the life of the binding: the card
	// denied access to this service.
	StateForbidden
)

func (s KeyState) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateResolved:
		return "RESOLVED"
	case StateForbidden:
		return "FORBIDDEN"
	default:
		return "INVALID"
	}
}
