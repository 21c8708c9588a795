package nats

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Client is a minimal NATS-like interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject.
	Publish(subject string, data []byte) error
	// QueueSubscribe joins the queue group on subject; each message reaches one member of the group.
	QueueSubscribe(subject, queue string, cb func(subject string, data []byte)) (unsubscribe func() error, err error)
}

// Broker implements cbus.Broker on NATS subjects. Every event name is both the subject and
// the queue group, so subscribers of one event compete for its messages.
type Broker struct {
	Client Client

	closeFn func()

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

// Ensure Broker implements the transport contract.
var _ cbus.Broker = (*Broker)(nil)

// New creates a new NATS broker with the provided client.
func New(c Client) *Broker { return &Broker{Client: c, done: make(chan struct{})} }

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if err := b.ready(ctx, "publish", queue); err != nil {
		return err
	}

	if err := b.Client.Publish(queue, body); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats publish %s: %w", queue, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (b *Broker) Consume(ctx context.Context, queue string) (<-chan cbus.Delivery, error) {
	if err := b.ready(ctx, "consume", queue); err != nil {
		return nil, err
	}

	out := make(chan cbus.Delivery)

	// guards out against a late callback after close
	var sendMu sync.RWMutex

	stop := make(chan struct{})

	unsubscribe, err := b.Client.QueueSubscribe(queue, queue, func(subject string, data []byte) {
		sendMu.RLock()
		defer sendMu.RUnlock()

		select {
		case out <- cbus.Delivery{RoutingKey: subject, Body: data}:
		case <-stop:
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats consume %s: %w", queue, errors.Join(berr.ErrConsumeFailed, err))
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-b.done:
		}

		close(stop)

		if unsubscribe != nil {
			_ = unsubscribe()
		}

		sendMu.Lock()
		close(out)
		sendMu.Unlock()
	}()

	return out, nil
}

// Close ends every consumption and, for brokers built by NewWithNATS, drains the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	close(b.done)

	if b.closeFn != nil {
		b.closeFn()
	}

	return nil
}

func (b *Broker) ready(ctx context.Context, label, queue string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return fmt.Errorf("nats %s %s: %w", label, queue, errors.Join(berr.ErrBrokerUnavailable, berr.ErrBrokerClosed))
	}

	if b.Client == nil {
		return fmt.Errorf("nats %s %s: %w", label, queue, berr.ErrBrokerUnavailable)
	}

	return nil
}
