package memory

import (
	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/next-trace/scg-event-bus/mediator"
)

// Bus is an event bus over the in-memory broker, with a mediator serving its commands.
type Bus struct {
	*eventbus.Bus

	Mediator *mediator.Mediator
	Broker   *inmemory.Broker
}

// New constructs an event bus backed by the in-memory broker along with a cleanup
// function that closes the bus and then the broker.
func New(opts ...eventbus.Option) (*Bus, func()) {
	m := mediator.New()
	broker := inmemory.New()

	opts = append([]eventbus.Option{eventbus.WithCommandDispatcher(m)}, opts...)
	b := eventbus.New(broker, eventbus.NewRegistry(), opts...)

	cleanup := func() {
		_ = b.Close()
		_ = broker.Close()
	}

	return &Bus{Bus: b, Mediator: m, Broker: broker}, cleanup
}
