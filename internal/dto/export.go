package dto

import (
	"time"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

// ExportRequest captures POST /admin/exports payload.
type ExportRequest struct {
	Format     models.ExportFormat     `json:"format" validate:"required,oneof=csv pdf"`
	Search     string                  `json:"search" validate:"max=120"`
	Attendance models.AttendanceStatus `json:"attendance" validate:"omitempty,oneof=All Pending Present Absent Late"`
	Sort       string                  `json:"sort"`
	Order      models.SortOrder        `json:"order" validate:"omitempty,oneof=asc desc"`
}

// ExportJobResponse exposes export job progress.
type ExportJobResponse struct {
	ID        string              `json:"id"`
	Format    models.ExportFormat `json:"format"`
	Status    models.ExportStatus `json:"status"`
	Rows      int                 `json:"rows"`
	ResultURL string              `json:"resultUrl,omitempty"`
	Error     string              `json:"error,omitempty"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
}
