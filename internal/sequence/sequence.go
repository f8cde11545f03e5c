// Package sequence reserves bill sequence numbers per token and organisation.
package sequence

import (
	"context"
	"fmt"

	"expensehub/internal/core"
)

// Store is the subset of the repository used by the sequencers.
type Store interface {
	NextBillSequence(ctx context.Context, tokenID, orgID int64) (int64, error)
	CountBilledExpenses(ctx context.Context, tokenID, orgID int64) (int64, error)
}

// StoreSequencer reserves numbers with a single upsert statement against the
// SQLite store.
type StoreSequencer struct {
	store Store
}

var _ core.BillSequencer = (*StoreSequencer)(nil)

func NewStoreSequencer(store Store) *StoreSequencer {
	return &StoreSequencer{store: store}
}

func (s *StoreSequencer) Next(ctx context.Context, tokenID, orgID int64) (int64, error) {
	n, err := s.store.NextBillSequence(ctx, tokenID, orgID)
	if err != nil {
		return 0, fmt.Errorf("next bill sequence: %w", err)
	}
	return n, nil
}
