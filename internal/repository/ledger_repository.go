package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// LedgerRepository persists the registrations collection as one snapshot, next to the
// quarantined seat collisions and the set of issued referral codes.
type LedgerRepository struct {
	store KVStore
	keys  Keys
}

// NewLedgerRepository constructs a LedgerRepository.
func NewLedgerRepository(store KVStore, keys Keys) *LedgerRepository {
	return &LedgerRepository{store: store, keys: keys}
}

// LoadAll returns every stored record in insertion order. A missing snapshot is an empty ledger.
func (r *LedgerRepository) LoadAll(ctx context.Context) ([]models.StudentRecord, error) {
	records, err := loadList[models.StudentRecord](ctx, r.store, r.keys.Registrations())
	if err != nil {
		return nil, fmt.Errorf("registrations: %w", err)
	}
	return records, nil
}

// ReplaceAll overwrites the stored snapshot with records.
func (r *LedgerRepository) ReplaceAll(ctx context.Context, records []models.StudentRecord) error {
	if err := storeList(ctx, r.store, r.keys.Registrations(), records); err != nil {
		return fmt.Errorf("registrations: %w", err)
	}
	return nil
}

// LoadConflicts returns the registrations quarantined after a seat collision.
func (r *LedgerRepository) LoadConflicts(ctx context.Context) ([]models.StudentRecord, error) {
	records, err := loadList[models.StudentRecord](ctx, r.store, r.keys.Conflicts())
	if err != nil {
		return nil, fmt.Errorf("registration conflicts: %w", err)
	}
	return records, nil
}

// ReplaceConflicts overwrites the quarantined registrations.
func (r *LedgerRepository) ReplaceConflicts(ctx context.Context, records []models.StudentRecord) error {
	if err := storeList(ctx, r.store, r.keys.Conflicts(), records); err != nil {
		return fmt.Errorf("registration conflicts: %w", err)
	}
	return nil
}

// LoadIssuedCodes returns every own referral code recorded so far.
func (r *LedgerRepository) LoadIssuedCodes(ctx context.Context) ([]string, error) {
	codes, err := loadList[string](ctx, r.store, r.keys.IssuedCodes())
	if err != nil {
		return nil, fmt.Errorf("issued codes: %w", err)
	}
	return codes, nil
}

// ReplaceIssuedCodes overwrites the issued referral code set.
func (r *LedgerRepository) ReplaceIssuedCodes(ctx context.Context, codes []string) error {
	if err := storeList(ctx, r.store, r.keys.IssuedCodes(), codes); err != nil {
		return fmt.Errorf("issued codes: %w", err)
	}
	return nil
}

func loadList[T any](ctx context.Context, store KVStore, key string) ([]T, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return []T{}, nil
		}
		return nil, fmt.Errorf("load: %w", err)
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func storeList[T any](ctx context.Context, store KVStore, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	if err := store.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return nil
}
