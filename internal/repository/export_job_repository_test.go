package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/models"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

func TestExportJobRepositoryLifecycle(t *testing.T) {
	store := NewMemoryStore()
	repo := NewExportJobRepository(store, Keys{Prefix: "scc"})
	ctx := context.Background()

	job := &models.ExportJob{
		ID:        "job-1",
		Format:    models.ExportFormatCSV,
		Filter:    models.LedgerFilter{Search: "asha", Attendance: models.AttendancePresent},
		Sort:      models.LedgerSort{Field: "fullName", Order: models.SortDesc},
		Status:    models.ExportStatusQueued,
		CreatedBy: "admin",
		CreatedAt: time.Date(2025, 11, 2, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.Create(ctx, job))

	_, err := store.Get(ctx, "scc:export_job:job-1")
	require.NoError(t, err)

	loaded, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, job.Filter, loaded.Filter)
	assert.Equal(t, job.Sort, loaded.Sort)

	status := models.ExportStatusFinished
	rows := 12
	url := "/api/v1/exports/token"
	finished := time.Date(2025, 11, 2, 10, 1, 0, 0, time.UTC)
	require.NoError(t, repo.Update(ctx, "job-1", UpdateExportJobParams{Status: &status, Rows: &rows, ResultURL: &url, FinishedAt: &finished}))

	loaded, err = repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, loaded.Status)
	assert.Equal(t, 12, loaded.Rows)
	assert.Equal(t, url, loaded.ResultURL)
	assert.Equal(t, "asha", loaded.Filter.Search)
	require.NotNil(t, loaded.FinishedAt)
	assert.True(t, finished.Equal(*loaded.FinishedAt))
	assert.Nil(t, loaded.ExpiresAt)
}

func TestExportJobRepositoryMissing(t *testing.T) {
	repo := NewExportJobRepository(NewMemoryStore(), Keys{})

	_, err := repo.GetByID(context.Background(), "nope")
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	status := models.ExportStatusFailed
	err = repo.Update(context.Background(), "nope", UpdateExportJobParams{Status: &status})
	assert.True(t, errors.Is(err, sql.ErrNoRows))

	assert.Error(t, repo.Create(context.Background(), &models.ExportJob{}))
}

func TestCacheRepositoryWithoutClientAlwaysMisses(t *testing.T) {
	repo := NewCacheRepository(nil, Keys{Prefix: "scc"})
	var dest map[string]int
	err := repo.Get(context.Background(), "stats", &dest)
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}
