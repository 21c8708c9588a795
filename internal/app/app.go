// Package app wires the event bus runtime shared by the service binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	"github.com/next-trace/scg-event-bus/adapters/kafka"
	"github.com/next-trace/scg-event-bus/adapters/nats"
	"github.com/next-trace/scg-event-bus/adapters/rabbitmq"
	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/next-trace/scg-event-bus/internal/config"
	"github.com/next-trace/scg-event-bus/mediator"
	"github.com/next-trace/scg-event-bus/metrics"
)

// OpenBroker constructs the transport selected by cfg.Broker. The caller closes it.
func OpenBroker(cfg *config.Config, log zerolog.Logger) (cbus.Broker, error) {
	var (
		broker cbus.Broker
		err    error
	)

	switch cfg.Broker {
	case config.BrokerRabbitMQ:
		broker, err = rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:            cfg.RabbitMQ.URL,
			ConnTimeout:    cfg.RabbitMQ.ConnTimeout,
			PoolSize:       cfg.RabbitMQ.PoolSize,
			AcquireTimeout: cfg.RabbitMQ.AcquireTimeout,
			Confirm:        cfg.RabbitMQ.Confirm,
		}, log)
	case config.BrokerNATS:
		broker, err = nats.NewWithNATS(nats.Config{URL: cfg.NATS.URL, Name: cfg.NATS.Name}, log)
	case config.BrokerKafka:
		broker, err = kafka.NewWithKgo(kafka.Config{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID}, log)
	case config.BrokerMemory:
		broker = inmemory.New()
	default:
		err = fmt.Errorf("unknown broker kind %q", cfg.Broker)
	}

	if err != nil {
		return nil, err
	}

	log.Info().Str("broker", cfg.Broker).Msg("Broker opened")

	return broker, nil
}

// Runtime is an event bus with its mediator, broker, and metrics registry.
type Runtime struct {
	Bus      *eventbus.Bus
	Mediator *mediator.Mediator
	Broker   cbus.Broker
	Registry *prometheus.Registry
}

// New opens the broker and builds the bus with metrics and command logging.
func New(cfg *config.Config, log zerolog.Logger) (*Runtime, error) {
	broker, err := OpenBroker(cfg, log)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()

	collector, err := metrics.NewCollector(reg)
	if err != nil {
		_ = broker.Close()
		return nil, err
	}

	m := mediator.New(
		mediator.WithLogger(log),
		mediator.WithCommandMiddleware(mediator.LoggingMiddleware(log)),
	)

	opts := []eventbus.Option{
		eventbus.WithCommandDispatcher(m),
		eventbus.WithLogger(log),
		eventbus.WithObserver(collector),
	}
	if cfg.FailFast {
		opts = append(opts, eventbus.WithFailFast())
	}

	return &Runtime{
		Bus:      eventbus.New(broker, eventbus.NewRegistry(), opts...),
		Mediator: m,
		Broker:   broker,
		Registry: reg,
	}, nil
}

// Close stops the bus and then the broker.
func (r *Runtime) Close() error {
	return errors.Join(r.Bus.Close(), r.Broker.Close())
}

// ServeMetrics serves /metrics on addr until ctx is done. An empty addr disables it.
func (r *Runtime) ServeMetrics(ctx context.Context, addr string, log zerolog.Logger) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(r.Registry))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("Serving metrics")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
