package client

// State is the lifecycle state of a Session. States only move forward,
// except that a rejected login leaves the session in StateConnected.
type State int

const (
	StateUninitialized State = iota
	StateConfigured
	StateConnected
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateConnected:
		return "connected"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// online reports whether the transport is open.
func (s State) online() bool {
	return s == StateConnected || s == StateAuthenticated
}
