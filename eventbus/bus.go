package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/next-trace/scg-event-bus/codec"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Bus publishes events through a Broker, consumes the queues of subscribed events, and forwards
// commands to an in-process CommandDispatcher.
//
// Bus contains no global state: its subscriptions live in the Registry passed to New.
// The Broker stays owned by the caller; Close only stops the bus's consumer loops.
type Bus struct {
	registry   *Registry
	broker     cbus.Broker
	commands   cbus.CommandDispatcher
	serializer cbus.Serializer
	observer   Observer
	logger     zerolog.Logger
	failFast   bool

	mu     sync.Mutex
	loops  map[string]*ConsumerLoop
	closed bool

	// lifetime of every consumer loop
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
}

var _ cbus.EventBus = (*Bus)(nil)

// New constructs a Bus over broker. A nil registry is replaced by an empty one.
func New(broker cbus.Broker, registry *Registry, opts ...Option) *Bus {
	if registry == nil {
		registry = NewRegistry()
	}

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		registry:   registry,
		broker:     broker,
		serializer: codec.JSON{},
		observer:   NopObserver{},
		logger:     zerolog.Nop(),
		loops:      make(map[string]*ConsumerLoop),
		ctx:        ctx,
		cancel:     cancel,
	}

	for _, opt := range opts {
		opt(b)
	}

	b.logger = b.logger.With().Str("component", "event_bus").Logger()

	return b
}

// Registry exposes the subscriptions of the bus.
func (b *Bus) Registry() *Registry { return b.registry }

// SendCommand forwards cmd to the configured CommandDispatcher and returns the handler's result.
func (b *Bus) SendCommand(ctx context.Context, cmd cbus.Command) error {
	if b.commands == nil {
		return fmt.Errorf("send command %T: %w", cmd, berr.ErrCommandsNotConfigured)
	}

	return b.commands.Send(ctx, cmd)
}

// Publish serializes event and sends it to the queue named after its type.
// Publishing an event nobody subscribed to is not an error.
func (b *Bus) Publish(ctx context.Context, event cbus.Event) error {
	if event == nil {
		return fmt.Errorf("publish: nil event: %w", berr.ErrSerializationFailed)
	}

	name := EventName(event)

	if b.isClosed() {
		return fmt.Errorf("publish %s: %w", name, berr.ErrBusClosed)
	}

	body, err := b.serializer.Serialize(event)
	if err != nil {
		return fmt.Errorf("publish %s serialize: %w", name, errors.Join(berr.ErrSerializationFailed, err))
	}

	if err := b.broker.Publish(ctx, name, body); err != nil {
		b.logger.Error().Err(err).Str("event", name).Msg("Publish failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("publish %s: %w", name, err)
	}

	b.observer.Published(name)
	b.logger.Debug().Str("event", name).Int("bytes", len(body)).Msg("Event published")

	return nil
}

// subscribe records reg and makes sure a consumer loop runs for name.
// A loop that cannot start rolls the registration back.
func (b *Bus) subscribe(name string, et eventType, reg registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("subscribe %s to %s: %w", reg.handlerName, name, berr.ErrBusClosed)
	}

	undo, err := b.registry.add(name, et, reg)
	if err != nil {
		return err
	}

	if loop, ok := b.loops[name]; ok && loop.State() != StateClosed {
		b.logger.Info().Str("event", name).Str("handler", reg.handlerName).Msg("Handler subscribed")
		return nil
	}

	loop := newConsumerLoop(name, b.broker, b.deliver, b.logger)
	if err := loop.start(b.ctx); err != nil {
		undo()
		b.logger.Error().Err(err).Str("event", name).Msg("Consumer loop failed to start")

		return fmt.Errorf("subscribe %s to %s: %w", reg.handlerName, name, err)
	}

	b.loops[name] = loop
	b.logger.Info().Str("event", name).Str("handler", reg.handlerName).Msg("Handler subscribed, consumer loop started")

	return nil
}

// Loop returns the consumer loop bound to an event name.
func (b *Bus) Loop(name string) (*ConsumerLoop, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.loops[name]

	return l, ok
}

// Loops returns the queue names that have a consumer loop, sorted.
func (b *Bus) Loops() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.loops))
	for name := range b.loops {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Close stops every consumer loop and waits for in-flight deliveries. It is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}

	b.closed = true

	loops := make([]*ConsumerLoop, 0, len(b.loops))
	for _, l := range b.loops {
		loops = append(loops, l)
	}
	b.mu.Unlock()

	b.cancel()

	for _, l := range loops {
		l.stop()
	}

	b.logger.Info().Int("loops", len(loops)).Msg("Event bus closed")

	return nil
}

func (b *Bus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}
