package handler

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/middleware"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

type fakeExportJobs struct {
	created     dto.ExportRequest
	actor       string
	createErr   error
	status      *dto.ExportJobResponse
	download    *service.ExportDownload
	downloadErr error
}

func (f *fakeExportJobs) CreateJob(_ context.Context, req dto.ExportRequest, actor string) (*dto.ExportJobResponse, error) {
	f.created = req
	f.actor = actor
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &dto.ExportJobResponse{ID: "job-1", Format: req.Format, Status: models.ExportStatusQueued}, nil
}

func (f *fakeExportJobs) GetStatus(_ context.Context, id string) (*dto.ExportJobResponse, error) {
	if f.status == nil || f.status.ID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
	}
	return f.status, nil
}

func (f *fakeExportJobs) ResolveDownload(context.Context, string) (*service.ExportDownload, error) {
	return f.download, f.downloadErr
}

func newExportRouter(jobs *fakeExportJobs) http.Handler {
	h := NewExportHandler(jobs)
	router := newTestRouter()
	admin := router.Group("/admin", func(c *gin.Context) {
		c.Set(middleware.ContextUserKey, &models.JWTClaims{Username: "admin", Role: models.RoleAdmin})
		c.Next()
	})
	admin.POST("/exports", h.Create)
	admin.GET("/exports/:id", h.Status)
	router.GET("/exports/:token", h.Download)
	return router
}

func TestExportHandlerCreateAndStatus(t *testing.T) {
	jobs := &fakeExportJobs{status: &dto.ExportJobResponse{ID: "job-1", Status: models.ExportStatusFinished, Rows: 4}}
	router := newExportRouter(jobs)

	rec := perform(t, router, http.MethodPost, "/admin/exports", dto.ExportRequest{Format: models.ExportFormatPDF, Search: "asha"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "admin", jobs.actor)
	assert.Equal(t, "asha", jobs.created.Search)

	rec = perform(t, router, http.MethodGet, "/admin/exports/job-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status dto.ExportJobResponse
	decodeEnvelope(t, rec, &status)
	assert.Equal(t, 4, status.Rows)

	rec = perform(t, router, http.MethodGet, "/admin/exports/job-2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	jobs.createErr = appErrors.Clone(appErrors.ErrValidation, "unsupported sort field")
	rec = perform(t, router, http.MethodPost, "/admin/exports", dto.ExportRequest{Format: models.ExportFormatCSV, Sort: "password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportHandlerDownload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "SCC_Registrations_2025-11-02.csv")
	require.NoError(t, os.WriteFile(path, []byte("Seat Number,Name\nSCC-2025-1285,Asha"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	jobs := &fakeExportJobs{download: &service.ExportDownload{
		File:      file,
		Filename:  filepath.Base(path),
		Format:    models.ExportFormatCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	router := newExportRouter(jobs)

	rec := perform(t, router, http.MethodGet, "/exports/signed-token", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="SCC_Registrations_2025-11-02.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Seat Number,Name\nSCC-2025-1285,Asha", rec.Body.String())

	jobs.download = nil
	jobs.downloadErr = appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	rec = perform(t, router, http.MethodGet, "/exports/bad", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
