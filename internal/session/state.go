package session

import "github.com/darkhz/btkbd/internal/bluetooth"

// State describes the state of the keyboard session.
type State uint8

// The different session states.
const (
	StateIdle      State = iota // No sockets are open.
	StateListening              // Waiting for a host to connect both channels.
	StateConnected              // Both channels are connected, reports can be sent.
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateListening: "listening",
	StateConnected: "connected",
}

// String returns the name of the state.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return "unknown"
}

// Event is published on every session state change.
type Event struct {
	State State             `json:"state"`
	Peer  bluetooth.Address `json:"peer"`
	ID    string            `json:"id,omitempty"`
}
