package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// UpdateExportJobParams lists the mutable job fields; nil leaves a field untouched.
type UpdateExportJobParams struct {
	Status       *models.ExportStatus
	Rows         *int
	ResultURL    *string
	ErrorMessage *string
	FinishedAt   *time.Time
	ExpiresAt    *time.Time
}

type storedExportJob struct {
	models.ExportJob
	Filter models.LedgerFilter `json:"filter"`
	Sort   models.LedgerSort   `json:"sort"`
}

// ExportJobRepository keeps export job metadata in the ledger key space.
type ExportJobRepository struct {
	store KVStore
	keys  Keys
}

// NewExportJobRepository constructs an ExportJobRepository.
func NewExportJobRepository(store KVStore, keys Keys) *ExportJobRepository {
	return &ExportJobRepository{store: store, keys: keys}
}

// Create stores a new job.
func (r *ExportJobRepository) Create(ctx context.Context, job *models.ExportJob) error {
	if job == nil || job.ID == "" {
		return fmt.Errorf("export job id required")
	}
	return r.put(ctx, job)
}

// GetByID loads a job. A missing job yields sql.ErrNoRows.
func (r *ExportJobRepository) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	raw, err := r.store.Get(ctx, r.keys.ExportJob(id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("load export job %s: %w", id, err)
	}
	var stored storedExportJob
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode export job %s: %w", id, err)
	}
	job := stored.ExportJob
	job.Filter = stored.Filter
	job.Sort = stored.Sort
	return &job, nil
}

// Update applies params to the stored job.
func (r *ExportJobRepository) Update(ctx context.Context, id string, params UpdateExportJobParams) error {
	job, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Rows != nil {
		job.Rows = *params.Rows
	}
	if params.ResultURL != nil {
		job.ResultURL = *params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = *params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	if params.ExpiresAt != nil {
		job.ExpiresAt = params.ExpiresAt
	}
	return r.put(ctx, job)
}

func (r *ExportJobRepository) put(ctx context.Context, job *models.ExportJob) error {
	payload, err := json.Marshal(storedExportJob{ExportJob: *job, Filter: job.Filter, Sort: job.Sort})
	if err != nil {
		return fmt.Errorf("encode export job: %w", err)
	}
	if err := r.store.Put(ctx, r.keys.ExportJob(job.ID), payload); err != nil {
		return fmt.Errorf("store export job %s: %w", job.ID, err)
	}
	return nil
}
