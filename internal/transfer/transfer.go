// Package transfer is the consuming side of the transfer flow: it records every
// TransferCreatedEvent as a TransferLog and answers queries over the stored logs.
package transfer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/next-trace/scg-event-bus/eventbus"
	"github.com/next-trace/scg-event-bus/mediator"
)

// TransferCreatedEvent mirrors the banking event; only the name and fields have to match.
type TransferCreatedEvent struct {
	From   string
	To     string
	Amount int64
}

// TransferLog is one recorded transfer.
type TransferLog struct {
	ID             uuid.UUID
	FromAccount    string
	ToAccount      string
	TransferAmount int64
	CreatedAt      time.Time
}

// Repository stores transfer logs.
type Repository interface {
	Add(ctx context.Context, l TransferLog) error
	List(ctx context.Context) ([]TransferLog, error)
}

// TransferEventHandler stores a TransferLog for every TransferCreatedEvent.
type TransferEventHandler struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewTransferEventHandler(repo Repository, log zerolog.Logger) *TransferEventHandler {
	return &TransferEventHandler{repo: repo, log: log, now: time.Now}
}

func (h *TransferEventHandler) Handle(ctx context.Context, e TransferCreatedEvent) error {
	entry := TransferLog{
		ID:             uuid.New(),
		FromAccount:    e.From,
		ToAccount:      e.To,
		TransferAmount: e.Amount,
		CreatedAt:      h.now().UTC(),
	}

	if err := h.repo.Add(ctx, entry); err != nil {
		return err
	}

	h.log.Info().Stringer("id", entry.ID).Str("from", e.From).Str("to", e.To).Int64("amount", e.Amount).
		Msg("Transfer logged")

	return nil
}

// GetTransferLogsQuery returns every stored TransferLog.
type GetTransferLogsQuery struct{}

type GetTransferLogsHandler struct{ Repo Repository }

func (h GetTransferLogsHandler) Handle(ctx context.Context, _ GetTransferLogsQuery) ([]TransferLog, error) {
	return h.Repo.List(ctx)
}

// Register subscribes TransferEventHandler on b and binds GetTransferLogsQuery on m.
func Register(b *eventbus.Bus, m *mediator.Mediator, repo Repository, log zerolog.Logger) error {
	log = log.With().Str("component", "transfer").Logger()

	if err := mediator.BindQuery[GetTransferLogsQuery, []TransferLog](m, GetTransferLogsHandler{Repo: repo}); err != nil {
		return err
	}

	return eventbus.SubscribeWith[TransferCreatedEvent](b, func() *TransferEventHandler {
		return NewTransferEventHandler(repo, log)
	})
}
