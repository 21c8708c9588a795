package transfer

import (
	"context"
	"slices"
	"sync"
)

// MemoryRepository keeps transfer logs in process memory.
type MemoryRepository struct {
	mu   sync.RWMutex
	logs []TransferLog
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (r *MemoryRepository) Add(ctx context.Context, l TransferLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logs = append(r.logs, l)

	return nil
}

// List returns the logs in insertion order.
func (r *MemoryRepository) List(ctx context.Context) ([]TransferLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.logs), nil
}
