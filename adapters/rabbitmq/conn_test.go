package rabbitmq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

type stubChannel struct {
	Channel

	closed atomic.Bool
}

func (s *stubChannel) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *stubChannel) IsClosed() bool { return s.closed.Load() }

func (s *stubChannel) QueueDeclare(string, bool, bool, bool, bool, amqp.Table) (amqp.Queue, error) {
	return amqp.Queue{}, nil
}

func newTestConn(size int) (*Conn, *atomic.Int32) {
	var opened atomic.Int32

	c := newConn(Config{PoolSize: size, AcquireTimeout: 50 * time.Millisecond}, zerolog.Nop(),
		func(ctx context.Context) (Channel, error) {
			opened.Add(1)
			return &stubChannel{}, nil
		})

	return c, &opened
}

func TestConn_ReusesReleasedChannels(t *testing.T) {
	c, opened := newTestConn(2)

	ch, err := c.Acquire(t.Context())
	require.NoError(t, err)
	c.Release(ch)

	again, err := c.Acquire(t.Context())
	require.NoError(t, err)
	assert.Same(t, ch, again)
	assert.Equal(t, int32(1), opened.Load())
}

func TestConn_PoolExhaustion(t *testing.T) {
	c, _ := newTestConn(1)

	held, err := c.Acquire(t.Context())
	require.NoError(t, err)

	_, err = c.Acquire(t.Context())
	require.ErrorIs(t, err, berr.ErrBrokerUnavailable)

	c.Release(held)

	_, err = c.Acquire(t.Context())
	require.NoError(t, err)
}

func TestConn_DiscardsClosedChannels(t *testing.T) {
	c, opened := newTestConn(1)

	ch, err := c.Acquire(t.Context())
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	c.Release(ch)

	fresh, err := c.Acquire(t.Context())
	require.NoError(t, err)
	assert.NotSame(t, ch, fresh)
	assert.Equal(t, int32(2), opened.Load())
}

func TestConn_OpenBypassesPool(t *testing.T) {
	c, _ := newTestConn(1)

	_, err := c.Acquire(t.Context())
	require.NoError(t, err)

	_, err = c.Open(t.Context())
	require.NoError(t, err)
}

func TestConn_CloseRejectsAcquire(t *testing.T) {
	c, _ := newTestConn(2)

	ch, err := c.Acquire(t.Context())
	require.NoError(t, err)
	c.Release(ch)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, ch.IsClosed())

	// fill the pool so only the closed case can fire
	c.slots <- struct{}{}
	c.slots <- struct{}{}

	_, err = c.Acquire(t.Context())
	require.ErrorIs(t, err, berr.ErrBrokerUnavailable)
	require.ErrorIs(t, err, berr.ErrBrokerClosed)
}

func TestConn_CanceledContext(t *testing.T) {
	c, _ := newTestConn(1)

	_, err := c.Acquire(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err = c.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
