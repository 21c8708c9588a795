// Package banking is the publishing side of the transfer flow: it turns transfer requests into
// commands and announces accepted transfers as TransferCreatedEvent.
package banking

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	cbus "github.com/next-trace/scg-event-bus/contract/bus"
	berr "github.com/next-trace/scg-event-bus/contract/errors"
	"github.com/next-trace/scg-event-bus/mediator"
)

// ErrInvalidTransfer is returned for transfer requests that fail validation.
var ErrInvalidTransfer = berr.Code("banking.invalid_transfer")

// AccountTransfer is a transfer request between two accounts. Amounts are in minor units.
type AccountTransfer struct {
	FromAccount    string
	ToAccount      string
	TransferAmount int64
}

// CreateTransferCommand asks for a transfer to be carried out.
type CreateTransferCommand struct {
	From   string
	To     string
	Amount int64
}

// TransferCreatedEvent announces an accepted transfer.
type TransferCreatedEvent struct {
	From   string
	To     string
	Amount int64
}

// TransferCommandHandler publishes a TransferCreatedEvent for every command.
type TransferCommandHandler struct {
	Bus cbus.EventBus
	Log zerolog.Logger
}

func (h TransferCommandHandler) Handle(ctx context.Context, c CreateTransferCommand) error {
	if err := h.Bus.Publish(ctx, TransferCreatedEvent(c)); err != nil {
		return err
	}

	h.Log.Info().Str("from", c.From).Str("to", c.To).Int64("amount", c.Amount).Msg("Transfer created")

	return nil
}

// Register binds the banking command handlers on m.
func Register(m *mediator.Mediator, bus cbus.EventBus, log zerolog.Logger) error {
	h := TransferCommandHandler{Bus: bus, Log: log.With().Str("component", "banking").Logger()}

	return mediator.BindCommand[CreateTransferCommand](m, h)
}

// Service is the application entry point for transfers.
type Service struct {
	bus cbus.EventBus
}

func NewService(bus cbus.EventBus) *Service { return &Service{bus: bus} }

// Transfer validates t and sends it as a CreateTransferCommand.
func (s *Service) Transfer(ctx context.Context, t AccountTransfer) error {
	switch {
	case t.FromAccount == "" || t.ToAccount == "":
		return fmt.Errorf("transfer: both accounts are required: %w", ErrInvalidTransfer)
	case t.FromAccount == t.ToAccount:
		return fmt.Errorf("transfer %s: source and target are the same: %w", t.FromAccount, ErrInvalidTransfer)
	case t.TransferAmount <= 0:
		return fmt.Errorf("transfer %s: amount must be positive: %w", t.FromAccount, ErrInvalidTransfer)
	}

	return s.bus.SendCommand(ctx, CreateTransferCommand{
		From:   t.FromAccount,
		To:     t.ToAccount,
		Amount: t.TransferAmount,
	})
}
