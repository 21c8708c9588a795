package bus

import "context"

// Delivery is one inbound message as handed over by a Broker.
type Delivery struct {
	// RoutingKey carries the event name the message was published with.
	RoutingKey string
	Body       []byte
}

// Broker abstracts the message transport used for event distribution.
// Library users provide an implementation that maps to RabbitMQ, NATS, Kafka, or memory.
//
// Publish and Consume address the same queue by name, which is always the event name.
type Broker interface {
	// Publish declares the queue if needed and sends body to it.
	// It returns errors.ErrBrokerUnavailable when no connection or channel can be obtained.
	Publish(ctx context.Context, queue string, body []byte) error

	// Consume declares the queue and starts receiving from it with acknowledgement on receipt.
	// The returned channel is closed when ctx is done or the transport ends the subscription.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)

	// Close releases the transport's resources.
	Close() error
}
