package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Broker publishes to and consumes from plain RabbitMQ queues named after events.
// Queues are declared non-durable, non-exclusive, and not auto-deleted; consumption auto-acks.
type Broker struct {
	source     ChannelSource
	logger     zerolog.Logger
	ownsSource bool
}

var _ cbus.Broker = (*Broker)(nil)

// New builds a Broker over an existing channel source. Close leaves the source open.
func New(source ChannelSource, logger zerolog.Logger) *Broker {
	return &Broker{source: source, logger: logger.With().Str("component", "rabbitmq").Logger()}
}

// NewWithAMQPConn dials RabbitMQ with auto-reconnect and returns a Broker owning the connection.
func NewWithAMQPConn(cfg Config, logger zerolog.Logger) (*Broker, error) {
	conn, err := Dial(cfg, logger)
	if err != nil {
		return nil, err
	}

	b := New(conn, logger)
	b.ownsSource = true

	return b, nil
}

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return Execute(ctx, b.source, func(ch Channel) error {
		if err := declare(ch, queue); err != nil {
			return fmt.Errorf("rabbitmq publish %s: %w", queue, errors.Join(berr.ErrPublishFailed, err))
		}

		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{Body: body})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}

			return fmt.Errorf("rabbitmq publish %s: %w", queue, errors.Join(berr.ErrPublishFailed, err))
		}

		// nil unless the channel is in confirm mode
		if dc == nil {
			return nil
		}

		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return err
		}

		if !acked {
			return fmt.Errorf("rabbitmq publish %s: nacked by broker: %w", queue, berr.ErrPublishFailed)
		}

		return nil
	})
}

// Consume opens a dedicated channel for queue and forwards its deliveries until ctx is done
// or the channel closes.
func (b *Broker) Consume(ctx context.Context, queue string) (<-chan cbus.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ch, err := b.source.Open(ctx)
	if err != nil {
		return nil, err
	}

	if err := declare(ch, queue); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq consume %s: %w", queue, errors.Join(berr.ErrConsumeFailed, err))
	}

	deliveries, err := ch.Consume(queue, consumerTag(queue), true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq consume %s: %w", queue, errors.Join(berr.ErrConsumeFailed, err))
	}

	out := make(chan cbus.Delivery)

	go func() {
		defer close(out)
		defer func() { _ = ch.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					b.logger.Warn().Str("queue", queue).Msg("Delivery channel closed by server")
					return
				}

				rk := d.RoutingKey
				if rk == "" {
					rk = queue
				}

				select {
				case out <- cbus.Delivery{RoutingKey: rk, Body: d.Body}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close closes the connection when the broker dialed it itself.
func (b *Broker) Close() error {
	if !b.ownsSource {
		return nil
	}

	return b.source.Close()
}

// Execute checks a channel out of src, runs fn with it, and releases it on every path.
func Execute(ctx context.Context, src ChannelSource, fn func(ch Channel) error) error {
	ch, err := src.Acquire(ctx)
	if err != nil {
		return err
	}
	defer src.Release(ch)

	return fn(ch)
}

func declare(ch Channel, queue string) error {
	_, err := ch.QueueDeclare(queue, false, false, false, false, nil)
	return err
}

func consumerTag(queue string) string { return queue + "." + uuid.NewString() }
