package events

// Event is a record of a committed ledger change, such as an offer being
// made or taken.
type Event interface {
	EventType() string
}

// Emitter receives events once the transaction that produced them commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops every event. The runtime uses it until an emitter is set.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}
