package bluetooth

// EventID represents a unique event ID.
type EventID byte

// The different types of event IDs.
const (
	EventNone    EventID = iota // The zero value for this type.
	EventError                  // Asynchronous errors.
	EventSession                // Keyboard session state changes.
	EventDevice                 // Remote device property changes.
)

var eventNames = map[EventID]string{
	EventNone:    "",
	EventError:   "error_event",
	EventSession: "session_event",
	EventDevice:  "device_event",
}

// String returns the name of the event ID.
func (e EventID) String() string {
	return eventNames[e]
}

// Value returns the event ID.
func (e EventID) Value() uint {
	return uint(e)
}
