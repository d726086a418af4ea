package call

// State is the lifecycle position of a negotiation session. Transitions only
// move forward; Closed and Errored are terminal.
type State int32

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateConnecting
	StateNegotiating
	StateConnected
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring media"
	case StateConnecting:
		return "connecting"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Role is the negotiation role the broker assigned to this side.
type Role int

const (
	RoleUnknown Role = iota
	RoleInitiator
	RoleResponder
)

func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return "unknown"
	}
}
