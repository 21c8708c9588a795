package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-event-bus/adapters/inmemory"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/internal/config"
)

func TestOpenBroker(t *testing.T) {
	b, err := OpenBroker(&config.Config{Broker: config.BrokerMemory}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &inmemory.Broker{}, b)
	require.NoError(t, b.Close())

	_, err = OpenBroker(&config.Config{Broker: "sqs"}, zerolog.Nop())
	require.Error(t, err)

	_, err = OpenBroker(&config.Config{Broker: config.BrokerRabbitMQ}, zerolog.Nop())
	require.ErrorIs(t, err, berr.ErrBrokerUnavailable)

	_, err = OpenBroker(&config.Config{Broker: config.BrokerKafka}, zerolog.Nop())
	require.ErrorIs(t, err, berr.ErrBrokerUnavailable)
}

func TestRuntime_ServeMetrics(t *testing.T) {
	rt, err := New(&config.Config{Broker: config.BrokerMemory}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() { done <- rt.ServeMetrics(ctx, addr, zerolog.Nop()) }()

	require.NoError(t, rt.Bus.Publish(t.Context(), struct{ ID string }{ID: "x"}))

	var body string

	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		data, _ := io.ReadAll(resp.Body)
		body = string(data)

		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	assert.Contains(t, body, "scg_event_bus_events_published_total")

	cancel()
	require.NoError(t, <-done)
}
