package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

const (
	resumeMinBackoff = 200 * time.Millisecond
	resumeMaxBackoff = 30 * time.Second
)

// LoopState is the lifecycle state of a ConsumerLoop.
type LoopState int32

const (
	StateIdle LoopState = iota
	StateConnecting
	StateListening
	StateProcessing
	StateClosed
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConsumerLoop receives the deliveries of one queue for the lifetime of its Bus.
// Every delivery is dispatched on its own goroutine; acknowledgement happened at receipt.
// A delivery stream that ends while the bus is open is consumed again once the broker recovers.
type ConsumerLoop struct {
	queue  string
	broker cbus.Broker
	handle func(ctx context.Context, d cbus.Delivery)
	logger zerolog.Logger

	minBackoff time.Duration
	maxBackoff time.Duration

	state    atomic.Int32
	received atomic.Int64
	restarts atomic.Int64
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

func newConsumerLoop(
	queue string,
	broker cbus.Broker,
	handle func(ctx context.Context, d cbus.Delivery),
	logger zerolog.Logger,
) *ConsumerLoop {
	return &ConsumerLoop{
		queue:  queue,
		broker: broker,
		handle: handle,
		logger: logger.With().Str("queue", queue).Logger(),
		done:   make(chan struct{}),

		minBackoff: resumeMinBackoff,
		maxBackoff: resumeMaxBackoff,
	}
}

// Queue returns the queue the loop is bound to.
func (l *ConsumerLoop) Queue() string { return l.queue }

// State returns the current lifecycle state.
func (l *ConsumerLoop) State() LoopState { return LoopState(l.state.Load()) }

// Received returns how many deliveries the loop has taken off the queue.
func (l *ConsumerLoop) Received() int64 { return l.received.Load() }

// Restarts returns how many times consumption was re-opened after the stream ended.
func (l *ConsumerLoop) Restarts() int64 { return l.restarts.Load() }

// Done is closed once the loop reached StateClosed.
func (l *ConsumerLoop) Done() <-chan struct{} { return l.done }

func (l *ConsumerLoop) setState(s LoopState) { l.state.Store(int32(s)) }

// start opens the consumption synchronously and then listens in the background.
func (l *ConsumerLoop) start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)

	l.setState(StateConnecting)

	deliveries, err := l.broker.Consume(ctx, l.queue)
	if err != nil {
		cancel()
		l.setState(StateClosed)
		close(l.done)

		return err
	}

	l.cancel = cancel
	l.setState(StateListening)

	go l.run(ctx, deliveries)

	return nil
}

func (l *ConsumerLoop) run(ctx context.Context, deliveries <-chan cbus.Delivery) {
	defer close(l.done)

	for {
		started := time.Now()
		l.drain(ctx, deliveries)

		if ctx.Err() != nil {
			break
		}

		// a stream that ends right away must not spin
		if time.Since(started) < l.minBackoff && !l.sleep(ctx, l.minBackoff) {
			break
		}

		l.logger.Warn().Msg("Delivery stream ended, consuming again")

		next, err := l.resume(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.Error().Err(err).Msg("Consumer loop closed")
			}

			break
		}

		deliveries = next
	}

	l.setState(StateClosed)
	l.logger.Info().Int64("received", l.received.Load()).Msg("Consumer loop stopped")
}

func (l *ConsumerLoop) drain(ctx context.Context, deliveries <-chan cbus.Delivery) {
	for d := range deliveries {
		l.setState(StateProcessing)
		l.received.Add(1)

		if d.RoutingKey == "" {
			d.RoutingKey = l.queue
		}

		l.inflight.Add(1)

		go func(d cbus.Delivery) {
			defer l.inflight.Done()

			l.handle(ctx, d)
		}(d)

		l.setState(StateListening)
	}
}

// resume re-opens consumption with exponential backoff. It gives up only when ctx ends or the
// broker reports ErrBrokerClosed.
func (l *ConsumerLoop) resume(ctx context.Context) (<-chan cbus.Delivery, error) {
	backoff := l.minBackoff

	for {
		l.setState(StateConnecting)

		deliveries, err := l.broker.Consume(ctx, l.queue)
		if err == nil {
			l.restarts.Add(1)
			l.setState(StateListening)
			l.logger.Info().Msg("Consumption resumed")

			return deliveries, nil
		}

		if ctx.Err() != nil || errors.Is(err, berr.ErrBrokerClosed) {
			return nil, err
		}

		l.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Consume failed, retrying")

		if !l.sleep(ctx, backoff) {
			return nil, ctx.Err()
		}

		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *ConsumerLoop) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// stop cancels consumption and waits for the loop and its in-flight deliveries.
func (l *ConsumerLoop) stop() {
	if l.cancel != nil {
		l.cancel()
	}

	<-l.done
	l.inflight.Wait()
}
