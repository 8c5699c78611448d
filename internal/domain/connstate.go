package domain

// ConnState 上游连接状态机的状态
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateAuthenticated
	StateStreaming
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateStreaming:
		return "STREAMING"
	case StateReconnecting:
		return "RECONNECTING"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// legal transitions; Reconnecting 与 Streaming 互斥（同一连接）
var connTransitions = map[ConnState][]ConnState{
	StateDisconnected:  {StateConnecting},
	StateConnecting:    {StateAuthenticated, StateReconnecting, StateFailed, StateDisconnected},
	StateAuthenticated: {StateStreaming, StateReconnecting, StateFailed, StateDisconnected},
	StateStreaming:     {StateReconnecting, StateFailed, StateDisconnected},
	StateReconnecting:  {StateConnecting, StateFailed, StateDisconnected},
	StateFailed:        {StateConnecting},
}

// CanTransition reports whether from -> to is a legal state machine move.
func CanTransition(from, to ConnState) bool {
	for _, next := range connTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
