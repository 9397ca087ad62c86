package events

// Event represents a structured state change emitted by the engine.
type Event interface {
	EventType() string
	// Attributes renders the payload as string key/value pairs for
	// downstream consumers (RPC subscribers, log sinks, indexers).
	Attributes() map[string]string
}

// Emitter broadcasts events to downstream subscribers.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies the Emitter interface while discarding all events. It
// is the default wiring when a component does not care about notifications.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Capture retains emitted events in order. Test helper.
type Capture struct {
	Events []Event
}

// Emit implements the Emitter interface.
func (c *Capture) Emit(evt Event) {
	c.Events = append(c.Events, evt)
}
