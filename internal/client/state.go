package client

// State is the session's current phase. Exactly one state is active per
// connection.
type State int

const (
	StateAuthenticating State = iota
	StateHeartbeat
	StateReadJob
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateHeartbeat:
		return "heartbeat"
	case StateReadJob:
		return "read_job"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}
