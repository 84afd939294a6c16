package repository

import (
	"context"
	"fmt"
)

// SeatCounterRepository exposes the per-year seat sequence.
type SeatCounterRepository struct {
	store KVStore
	keys  Keys
}

// NewSeatCounterRepository constructs a SeatCounterRepository.
func NewSeatCounterRepository(store KVStore, keys Keys) *SeatCounterRepository {
	return &SeatCounterRepository{store: store, keys: keys}
}

// Next increments the counter for year, seeding it with baseline when absent.
func (r *SeatCounterRepository) Next(ctx context.Context, year string, baseline int64) (int64, error) {
	n, err := r.store.Increment(ctx, r.keys.SeatSequence(year), baseline)
	if err != nil {
		return 0, fmt.Errorf("next seat for %s: %w", year, err)
	}
	return n, nil
}
