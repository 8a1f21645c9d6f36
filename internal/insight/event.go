package insight

// EventType tags one element of a result stream.
type EventType string

const (
	EventPartial  EventType = "partial"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one element of a result stream: any number of partial snapshots
// followed by exactly one complete or error event.
type Event struct {
	Type   EventType
	Result Result
	Err    error
}

// Terminal reports whether no further events follow e.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
