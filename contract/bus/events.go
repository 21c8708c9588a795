package bus

// Event is a marker interface for integration events: immutable facts distributed through the broker.
// The short type name of an event is its routing key and queue name, so it must be unique per bus.
// Only exported fields travel on the wire.
type Event interface{}
