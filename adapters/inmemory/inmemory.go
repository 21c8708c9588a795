package inmemory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

const defaultBuffer = 256

var errClosed = errors.Join(berr.ErrBrokerUnavailable, berr.ErrBrokerClosed)

// Message records one publish for inspection in tests and examples.
type Message struct {
	Queue string
	Body  []byte
}

// Broker is a thread-safe in-process implementation of cbus.Broker.
// Each queue is a buffered channel; consumers of the same queue compete for messages,
// and a message handed to a consumer is considered acknowledged.
type Broker struct {
	mu        sync.Mutex
	queues    map[string]chan cbus.Delivery
	published []Message
	buffer    int
	done      chan struct{}
	closed    bool
}

// Ensure Broker implements the transport contract.
var _ cbus.Broker = (*Broker)(nil)

// New creates a new in-memory broker with the default queue buffer.
func New() *Broker { return NewWithBuffer(defaultBuffer) }

// NewWithBuffer creates a broker whose queues hold up to n undelivered messages.
// Publish blocks while a queue is full.
func NewWithBuffer(n int) *Broker {
	if n < 1 {
		n = 1
	}

	return &Broker{
		queues: make(map[string]chan cbus.Delivery),
		buffer: n,
		done:   make(chan struct{}),
	}
}

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("inmemory publish %s: %w", queue, errClosed)
	}

	q := b.declare(queue)
	b.published = append(b.published, Message{Queue: queue, Body: slices.Clone(body)})
	b.mu.Unlock()

	select {
	case q <- cbus.Delivery{RoutingKey: queue, Body: slices.Clone(body)}:
		return nil
	case <-b.done:
		return fmt.Errorf("inmemory publish %s: %w", queue, errClosed)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) Consume(ctx context.Context, queue string) (<-chan cbus.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("inmemory consume %s: %w", queue, errClosed)
	}

	q := b.declare(queue)
	b.mu.Unlock()

	out := make(chan cbus.Delivery)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case d := <-q:
				select {
				case out <- d:
				case <-ctx.Done():
					return
				case <-b.done:
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends every consumption and rejects further traffic.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	close(b.done)

	return nil
}

// Published returns a copy of every message accepted so far, in publish order.
func (b *Broker) Published() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.published)
}

// Queues returns the names of all declared queues.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Depth reports how many messages wait undelivered in a queue.
func (b *Broker) Depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.queues[queue])
}

// declare must be called with b.mu held.
func (b *Broker) declare(queue string) chan cbus.Delivery {
	q, ok := b.queues[queue]
	if !ok {
		q = make(chan cbus.Delivery, b.buffer)
		b.queues[queue] = q
	}

	return q
}
