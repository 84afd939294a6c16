package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// DraftRepository stores the single draft slot of each session.
type DraftRepository struct {
	store KVStore
	keys  Keys
}

// NewDraftRepository constructs a DraftRepository.
func NewDraftRepository(store KVStore, keys Keys) *DraftRepository {
	return &DraftRepository{store: store, keys: keys}
}

// Get returns the session draft, or nil when none is stored.
func (r *DraftRepository) Get(ctx context.Context, session string) (*models.Draft, error) {
	raw, err := r.store.Get(ctx, r.keys.Draft(session))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}
	var draft models.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, fmt.Errorf("decode draft: %w", err)
	}
	return &draft, nil
}

// Put replaces the session draft.
func (r *DraftRepository) Put(ctx context.Context, session string, draft models.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := r.store.Put(ctx, r.keys.Draft(session), payload); err != nil {
		return fmt.Errorf("store draft: %w", err)
	}
	return nil
}

// Delete clears the session draft.
func (r *DraftRepository) Delete(ctx context.Context, session string) error {
	if err := r.store.Delete(ctx, r.keys.Draft(session)); err != nil {
		return fmt.Errorf("clear draft: %w", err)
	}
	return nil
}
