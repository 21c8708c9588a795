package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

const (
	defaultPoolSize       = 8
	defaultAcquireTimeout = 5 * time.Second
	maxBackoff            = 30 * time.Second
)

// Config describes the RabbitMQ connection.
type Config struct {
	URL         string
	ConnTimeout time.Duration
	// PoolSize caps the channels checked out for publishing at the same time.
	PoolSize int
	// AcquireTimeout bounds the wait for a pooled channel or a reconnect.
	AcquireTimeout time.Duration
	// Confirm puts publishing channels into confirm mode; Publish then waits for the broker ack.
	Confirm bool
}

func (c Config) withDefaults() Config {
	if c.PoolSize < 1 {
		c.PoolSize = defaultPoolSize
	}

	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}

	return c
}

// Channel is the subset of *amqp.Channel the broker relies on.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithDeferredConfirmWithContext(
		ctx context.Context,
		exchange, key string,
		mandatory, immediate bool,
		msg amqp.Publishing,
	) (*amqp.DeferredConfirmation, error)
	Consume(
		queue, consumer string,
		autoAck, exclusive, noLocal, noWait bool,
		args amqp.Table,
	) (<-chan amqp.Delivery, error)
	Close() error
	IsClosed() bool
}

var _ Channel = (*amqp.Channel)(nil)

// ChannelSource hands out channels of one long-lived connection.
type ChannelSource interface {
	// Acquire checks a channel out of the pool; it must be handed back with Release.
	Acquire(ctx context.Context) (Channel, error)
	Release(ch Channel)
	// Open creates a dedicated channel outside the pool; the caller closes it.
	Open(ctx context.Context) (Channel, error)
	Close() error
}

// Conn is a reconnecting AMQP connection with a bounded channel pool.
type Conn struct {
	cfg    Config
	logger zerolog.Logger
	open   func(ctx context.Context) (Channel, error)

	mu    sync.RWMutex
	conn  *amqp.Connection
	ready chan struct{} // closed while a connection is up

	idle   chan Channel
	slots  chan struct{} // one token per live pooled channel
	closed chan struct{}
	once   sync.Once
}

var _ ChannelSource = (*Conn)(nil)

// Dial connects synchronously and keeps the connection alive until Close.
// It fails with ErrBrokerUnavailable when the first connection attempt fails.
func Dial(cfg Config, logger zerolog.Logger) (*Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq dial: url required: %w", berr.ErrBrokerUnavailable)
	}

	c := newConn(cfg, logger, nil)
	c.open = c.openAMQP

	conn, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", errors.Join(berr.ErrBrokerUnavailable, err))
	}

	c.setConnection(conn)
	c.logger.Info().Msg("Connected to RabbitMQ")

	go c.watch(conn)

	return c, nil
}

func newConn(cfg Config, logger zerolog.Logger, open func(ctx context.Context) (Channel, error)) *Conn {
	cfg = cfg.withDefaults()

	return &Conn{
		cfg:    cfg,
		logger: logger.With().Str("component", "rabbitmq").Logger(),
		open:   open,
		ready:  make(chan struct{}),
		idle:   make(chan Channel, cfg.PoolSize),
		slots:  make(chan struct{}, cfg.PoolSize),
		closed: make(chan struct{}),
	}
}

func (c *Conn) dial() (*amqp.Connection, error) {
	return amqp.DialConfig(c.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-event-bus"},
		Dial:       amqp.DefaultDial(c.cfg.ConnTimeout),
	})
}

func (c *Conn) setConnection(conn *amqp.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn = conn
	close(c.ready)
}

// Acquire returns an idle pooled channel or opens a new one while the pool has room.
// It waits at most AcquireTimeout before failing with ErrBrokerUnavailable.
func (c *Conn) Acquire(ctx context.Context) (Channel, error) {
	wait, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	defer cancel()

	for {
		// idle channels first
		select {
		case ch := <-c.idle:
			if ch.IsClosed() {
				c.freeSlot()
				continue
			}

			return ch, nil
		default:
		}

		select {
		case ch := <-c.idle:
			if ch.IsClosed() {
				c.freeSlot()
				continue
			}

			return ch, nil
		case c.slots <- struct{}{}:
			ch, err := c.open(wait)
			if err != nil {
				c.freeSlot()
				return nil, c.acquireErr(ctx, err)
			}

			return ch, nil
		case <-wait.Done():
			return nil, c.acquireErr(ctx, wait.Err())
		case <-c.closed:
			return nil, fmt.Errorf("rabbitmq acquire: %w", errors.Join(berr.ErrBrokerUnavailable, berr.ErrBrokerClosed))
		}
	}
}

func (c *Conn) acquireErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return fmt.Errorf("rabbitmq acquire: %w", errors.Join(berr.ErrBrokerUnavailable, err))
}

// Release hands a channel back to the pool. Closed channels are discarded.
func (c *Conn) Release(ch Channel) {
	if ch == nil {
		return
	}

	if ch.IsClosed() || c.isClosed() {
		_ = ch.Close()
		c.freeSlot()

		return
	}

	select {
	case c.idle <- ch:
	default:
		_ = ch.Close()
		c.freeSlot()
	}
}

// Open returns a dedicated channel that does not count against the pool.
func (c *Conn) Open(ctx context.Context) (Channel, error) {
	wait, cancel := context.WithTimeout(ctx, c.cfg.AcquireTimeout)
	defer cancel()

	ch, err := c.open(wait)
	if err != nil {
		return nil, c.acquireErr(ctx, err)
	}

	return ch, nil
}

func (c *Conn) freeSlot() {
	select {
	case <-c.slots:
	default:
	}
}

// openAMQP opens a channel on the current connection, waiting for a reconnect if needed.
func (c *Conn) openAMQP(ctx context.Context) (Channel, error) {
	conn, err := c.connection(ctx)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	if c.cfg.Confirm {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return nil, err
		}
	}

	return ch, nil
}

func (c *Conn) connection(ctx context.Context) (*amqp.Connection, error) {
	for {
		c.mu.RLock()
		conn, ready := c.conn, c.ready
		c.mu.RUnlock()

		if conn != nil {
			return conn, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closed:
			return nil, berr.ErrBrokerClosed
		}
	}
}

// watch reconnects with jittered exponential backoff whenever the connection drops.
func (c *Conn) watch(conn *amqp.Connection) {
	// #nosec G404 -- non-crypto RNG is acceptable for backoff jitter
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // backoff jitter only

	for {
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))

		select {
		case <-c.closed:
			return
		case amqpErr := <-notify:
			ev := c.logger.Warn()
			if amqpErr != nil {
				ev = ev.Int("code", amqpErr.Code).Str("reason", amqpErr.Reason)
			}

			ev.Msg("RabbitMQ connection lost, reconnecting")
		}

		c.mu.Lock()
		c.conn = nil
		c.ready = make(chan struct{})
		c.mu.Unlock()

		c.drainIdle()

		next, ok := c.reconnect(rng)
		if !ok {
			return
		}

		c.setConnection(next)
		c.logger.Info().Msg("Reconnected to RabbitMQ")

		conn = next
	}
}

func (c *Conn) reconnect(rng *rand.Rand) (*amqp.Connection, bool) {
	backoff := time.Second

	for {
		conn, err := c.dial()
		if err == nil {
			if c.isClosed() {
				_ = conn.Close()
				return nil, false
			}

			return conn, true
		}

		// exponential backoff with jitter
		jitter := time.Duration(rng.Int63n(int64(backoff / 2)))

		sleep := backoff + jitter/2
		if sleep > maxBackoff {
			sleep = maxBackoff
		}

		c.logger.Debug().Err(err).Dur("retry_in", sleep).Msg("RabbitMQ reconnect failed")

		t := time.NewTimer(sleep)
		select {
		case <-c.closed:
			t.Stop()
			return nil, false
		case <-t.C:
		}

		if backoff < maxBackoff {
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

func (c *Conn) drainIdle() {
	for {
		select {
		case ch := <-c.idle:
			_ = ch.Close()
			c.freeSlot()
		default:
			return
		}
	}
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close closes pooled channels and the connection. It is idempotent.
func (c *Conn) Close() error {
	var err error

	c.once.Do(func() {
		close(c.closed)
		c.drainIdle()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			err = c.conn.Close()
			c.conn = nil
		}
	})

	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}

	return err
}
