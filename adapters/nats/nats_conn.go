package nats

import (
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	berr "github.com/next-trace/scg-event-bus/contract/errors"
)

// Concrete NATS connection-backed Client and constructor.

type Config struct {
	URL           string
	Name          string
	ConnTimeout   time.Duration
	MaxReconnects int
}

type natsClient struct{ nc *nats.Conn }

func (c natsClient) Publish(subject string, data []byte) error {
	if err := c.nc.Publish(subject, data); err != nil {
		return err
	}

	return c.nc.Flush()
}

func (c natsClient) QueueSubscribe(subject, queue string, cb func(subject string, data []byte)) (func() error, error) {
	sub, err := c.nc.QueueSubscribe(subject, queue, func(m *nats.Msg) { cb(m.Subject, m.Data) })
	if err != nil {
		return nil, err
	}

	return sub.Unsubscribe, nil
}

// NewWithNATS creates a real NATS connection and returns a Broker owning it.
func NewWithNATS(cfg Config, logger zerolog.Logger) (*Broker, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats connect: url required: %w", berr.ErrBrokerUnavailable)
	}

	log := logger.With().Str("component", "nats").Logger()

	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("NATS reconnected")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", errors.Join(berr.ErrBrokerUnavailable, err))
	}

	b := New(natsClient{nc: nc})
	b.closeFn = func() {
		if nc != nil && !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
			nc.Close()
		}
	}

	return b, nil
}
