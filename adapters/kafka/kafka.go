package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

const defaultPollBackoff = time.Second

// Record is one consumed Kafka record.
type Record struct {
	Topic string
	Value []byte
}

// Writer is a minimal Kafka-like writer interface.
// Users can adapt segmentio/kafka-go or any other client to this.
type Writer interface {
	Write(ctx context.Context, topic string, value []byte) error
}

// Reader polls the records of one topic on behalf of a consumer group.
type Reader interface {
	Poll(ctx context.Context) ([]Record, error)
	Close()
}

// ReaderFactory opens a Reader for topic. Every topic gets its own consumer group named
// after it, so readers of the same event share its partitions.
type ReaderFactory func(topic string) (Reader, error)

// Broker implements cbus.Broker with one Kafka topic per event name.
type Broker struct {
	Writer    Writer
	NewReader ReaderFactory

	// PollBackoff is the pause after a poll that returned only an error.
	PollBackoff time.Duration

	logger  zerolog.Logger
	closeFn func()

	mu     sync.Mutex
	done   chan struct{}
	closed bool
}

var _ cbus.Broker = (*Broker)(nil)

// New creates a new Kafka broker with the provided writer and reader factory.
func New(w Writer, r ReaderFactory, logger zerolog.Logger) *Broker {
	return &Broker{
		Writer:      w,
		NewReader:   r,
		PollBackoff: defaultPollBackoff,
		logger:      logger.With().Str("component", "kafka").Logger(),
		done:        make(chan struct{}),
	}
}

func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if b.isClosed() {
		return fmt.Errorf("kafka publish %s: %w", queue, errors.Join(berr.ErrBrokerUnavailable, berr.ErrBrokerClosed))
	}

	if b.Writer == nil {
		return fmt.Errorf("kafka publish %s: %w", queue, berr.ErrBrokerUnavailable)
	}

	if err := b.Writer.Write(ctx, queue, body); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// separate return from preceding multi-line block (wsl)
		return fmt.Errorf("kafka publish %s: %w", queue, errors.Join(berr.ErrPublishFailed, err))
	}

	return nil
}

func (b *Broker) Consume(ctx context.Context, queue string) (<-chan cbus.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if b.isClosed() {
		return nil, fmt.Errorf("kafka consume %s: %w", queue, errors.Join(berr.ErrBrokerUnavailable, berr.ErrBrokerClosed))
	}

	if b.NewReader == nil {
		return nil, fmt.Errorf("kafka consume %s: %w", queue, berr.ErrBrokerUnavailable)
	}

	r, err := b.NewReader(queue)
	if err != nil {
		return nil, fmt.Errorf("kafka consume %s: %w", queue, errors.Join(berr.ErrConsumeFailed, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan cbus.Delivery)

	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	go func() {
		defer close(out)
		defer r.Close()
		defer cancel()

		for {
			records, err := r.Poll(ctx)
			if ctx.Err() != nil {
				return
			}

			if errors.Is(err, ErrClientClosed) {
				b.logger.Warn().Str("topic", queue).Msg("Kafka reader closed")
				return
			}

			if err != nil {
				b.logger.Error().Err(err).Str("topic", queue).Msg("Kafka poll failed")

				if len(records) == 0 && !b.pause(ctx) {
					return
				}
			}

			for _, rec := range records {
				select {
				case out <- cbus.Delivery{RoutingKey: rec.Topic, Body: rec.Value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close ends every consumption and closes clients built by NewWithKgo.
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

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.closed
}

// pause waits PollBackoff and reports false when ctx ended first.
func (b *Broker) pause(ctx context.Context) bool {
	if b.PollBackoff <= 0 {
		return true
	}

	t := time.NewTimer(b.PollBackoff)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
