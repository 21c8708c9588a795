package banking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	"github.com/next-trace/scg-event-bus/internal/banking"
	"github.com/next-trace/scg-event-bus/mediator"
	"github.com/next-trace/scg-event-bus/memory"
)

type fakeBus struct {
	commands []cbus.Command
	events   []cbus.Event
	err      error
}

func (f *fakeBus) SendCommand(ctx context.Context, cmd cbus.Command) error {
	f.commands = append(f.commands, cmd)
	return f.err
}

func (f *fakeBus) Publish(ctx context.Context, e cbus.Event) error {
	f.events = append(f.events, e)
	return f.err
}

func (f *fakeBus) Close() error { return nil }

func TestService_TransferSendsCommand(t *testing.T) {
	bus := &fakeBus{}
	svc := banking.NewService(bus)

	require.NoError(t, svc.Transfer(t.Context(), banking.AccountTransfer{FromAccount: "A", ToAccount: "B", TransferAmount: 100}))
	assert.Equal(t, []cbus.Command{banking.CreateTransferCommand{From: "A", To: "B", Amount: 100}}, bus.commands)
}

func TestService_TransferValidation(t *testing.T) {
	svc := banking.NewService(&fakeBus{})

	for _, tr := range []banking.AccountTransfer{
		{ToAccount: "B", TransferAmount: 1},
		{FromAccount: "A", TransferAmount: 1},
		{FromAccount: "A", ToAccount: "A", TransferAmount: 1},
		{FromAccount: "A", ToAccount: "B"},
		{FromAccount: "A", ToAccount: "B", TransferAmount: -5},
	} {
		require.ErrorIs(t, svc.Transfer(t.Context(), tr), banking.ErrInvalidTransfer, "%+v", tr)
	}
}

func TestTransferCommandHandler_Publishes(t *testing.T) {
	bus := &fakeBus{}
	h := banking.TransferCommandHandler{Bus: bus, Log: zerolog.Nop()}

	require.NoError(t, h.Handle(t.Context(), banking.CreateTransferCommand{From: "A", To: "B", Amount: 100}))
	assert.Equal(t, []cbus.Event{banking.TransferCreatedEvent{From: "A", To: "B", Amount: 100}}, bus.events)

	bus.err = errors.New("broker down")
	require.Error(t, h.Handle(t.Context(), banking.CreateTransferCommand{}))
}

func TestRegister_OnMemoryBus(t *testing.T) {
	b, cleanup := memory.New()
	defer cleanup()

	require.NoError(t, banking.Register(b.Mediator, b, zerolog.Nop()))
	require.NoError(t, banking.NewService(b).Transfer(t.Context(), banking.AccountTransfer{
		FromAccount: "A", ToAccount: "B", TransferAmount: 100,
	}))

	published := b.Broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "TransferCreatedEvent", published[0].Queue)
	assert.JSONEq(t, `{"From":"A","To":"B","Amount":100}`, string(published[0].Body))

	err := mediator.BindCommand[banking.CreateTransferCommand](b.Mediator, banking.TransferCommandHandler{Bus: b})
	assert.Error(t, err)
}
