// Package domain contains plain session values and the error taxonomy, no I/O.
package domain

type State int32

const (
	StateIdle State = iota
	StateAuthenticating
	StateNegotiating
	StateStarting
	StateConnecting
	StateLive
	StateClosing
	StateClosed
	StateFailed
)

var stateNames = [...]string{
	StateIdle:           "idle",
	StateAuthenticating: "authenticating",
	StateNegotiating:    "negotiating",
	StateStarting:       "starting",
	StateConnecting:     "connecting",
	StateLive:           "live",
	StateClosing:        "closing",
	StateClosed:         "closed",
	StateFailed:         "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether a new open() is required to leave s.
func (s State) Terminal() bool {
	return s == StateClosed || s == StateFailed
}

// Status is the externally visible view of the controller.
type Status struct {
	State      State  `json:"state"`
	Diagnostic string `json:"diagnostic"`
	SessionID  string `json:"session_id,omitempty"`
}

// TransportState is what the local media endpoint reports about its transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (t TransportState) String() string {
	switch t {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}
