package types

// Event represents a typed event emitted during state transitions.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// EventType satisfies events.Event.
func (e *Event) EventType() string {
	if e == nil {
		return ""
	}
	return e.Type
}

// EventAttributes exposes the attribute map to generic event sinks.
func (e *Event) EventAttributes() map[string]string {
	if e == nil {
		return nil
	}
	return e.Attributes
}
