package bus

import "context"

// EventBus is the non-generic surface of the event bus exposed to application code.
//
// Subscriptions are typed and therefore live in generic helper functions of the eventbus package
// (eventbus.Subscribe, eventbus.SubscribeWith). This interface is intended for consumers that only
// send commands and publish events.
type EventBus interface {
	// SendCommand routes a command in-process to its single handler.
	SendCommand(ctx context.Context, cmd Command) error

	// Publish serializes the event and hands it to the broker, keyed by the event's type name.
	Publish(ctx context.Context, event Event) error

	// Close stops every consumer loop owned by the bus.
	Close() error
}

// CommandDispatcher routes commands to their in-process handler.
// Implementations return errors.ErrNoCommandHandler when nothing is bound for the command type.
type CommandDispatcher interface {
	Send(ctx context.Context, cmd Command) error
}

// Serializer converts events to and from their wire text.
// The encoded form carries the event's fields only; no type name is embedded.
type Serializer interface {
	Serialize(v any) ([]byte, error)
	Deserialize(data []byte, ptr any) error
}
