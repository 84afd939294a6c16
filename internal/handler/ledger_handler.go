package handler

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
	"github.com/noah-isme/scc-sat-api/pkg/response"
)

type ledgerService interface {
	List(filter models.LedgerFilter, order models.LedgerSort) iter.Seq[models.StudentRecord]
	UpdateAttendance(ctx context.Context, seat string, status models.AttendanceStatus) (models.MutationResult, error)
	Delete(ctx context.Context, seat string) (models.MutationResult, error)
	ResolveReferrer(code string) string
	Stats(ctx context.Context) (*models.LedgerStats, error)
	Conflicts() []models.StudentRecord
}

type adminRegistrationService interface {
	WhatsAppLink(seat string) (*dto.WhatsAppLinkResponse, error)
	IssueManualSeat(ctx context.Context, req dto.ManualSeatRequest) (models.SeatIssuance, error)
}

type csvExporter interface {
	CSV(filter models.LedgerFilter, order models.LedgerSort) ([]byte, int, error)
	Filename(format models.ExportFormat) string
}

// LedgerHandler serves the admin view of the registration ledger.
type LedgerHandler struct {
	ledger        ledgerService
	registrations adminRegistrationService
	exporter      csvExporter
}

// NewLedgerHandler constructs the handler.
func NewLedgerHandler(ledger ledgerService, registrations adminRegistrationService, exporter csvExporter) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, registrations: registrations, exporter: exporter}
}

// List godoc
// @Summary List registrations
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param search query string false "Name, seat number or mobile"
// @Param attendance query string false "All, Pending, Present, Absent or Late"
// @Param sort query string false "Field to sort by"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/registrations [get]
func (h *LedgerHandler) List(c *gin.Context) {
	filter, order, err := ledgerQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	records := slices.Collect(h.ledger.List(filter, order))
	if records == nil {
		records = []models.StudentRecord{}
	}
	response.JSON(c, http.StatusOK, records, map[string]interface{}{"total": len(records)})
}

// Conflicts godoc
// @Summary List quarantined registrations
// @Description Registrations whose seat number was already taken when the ledger recovered from a storage outage
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/conflicts [get]
func (h *LedgerHandler) Conflicts(c *gin.Context) {
	conflicts := h.ledger.Conflicts()
	if conflicts == nil {
		conflicts = []models.StudentRecord{}
	}
	response.JSON(c, http.StatusOK, conflicts, map[string]interface{}{"total": len(conflicts)})
}

// UpdateAttendance godoc
// @Summary Mark attendance
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param seat path string true "Seat number"
// @Param payload body dto.AttendanceUpdateRequest true "Attendance"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/registrations/{seat}/attendance [patch]
func (h *LedgerHandler) UpdateAttendance(c *gin.Context) {
	var req dto.AttendanceUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid attendance payload"))
		return
	}
	seat := c.Param("seat")
	result, err := h.ledger.UpdateAttendance(c.Request.Context(), seat, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MutationResponse{SeatNumber: seat, Found: result.Found, Durable: result.Durable}, mutationMeta(result))
}

// Delete godoc
// @Summary Delete a registration
// @Description Idempotent; deleting an unknown seat reports found=false
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param seat path string true "Seat number"
// @Success 200 {object} response.Envelope
// @Router /admin/registrations/{seat} [delete]
func (h *LedgerHandler) Delete(c *gin.Context) {
	seat := c.Param("seat")
	result, err := h.ledger.Delete(c.Request.Context(), seat)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.MutationResponse{SeatNumber: seat, Found: result.Found, Durable: result.Durable}, mutationMeta(result))
}

// WhatsApp godoc
// @Summary WhatsApp confirmation link
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param seat path string true "Seat number"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/registrations/{seat}/whatsapp [get]
func (h *LedgerHandler) WhatsApp(c *gin.Context) {
	link, err := h.registrations.WhatsAppLink(c.Param("seat"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Referrer godoc
// @Summary Resolve a referral code to the referring student
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param code path string true "Own referral code"
// @Success 200 {object} response.Envelope
// @Router /admin/referrers/{code} [get]
func (h *LedgerHandler) Referrer(c *gin.Context) {
	code := service.NormalizeReferralCode(c.Param("code"))
	response.JSON(c, http.StatusOK, dto.ReferrerResponse{Code: code, Name: h.ledger.ResolveReferrer(code)})
}

// Stats godoc
// @Summary Registration statistics
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /admin/stats [get]
func (h *LedgerHandler) Stats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats)
}

// IssueSeat godoc
// @Summary Issue a seat number without a registration
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ManualSeatRequest false "Exam year"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/seats [post]
func (h *LedgerHandler) IssueSeat(c *gin.Context) {
	var req dto.ManualSeatRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid seat payload"))
		return
	}
	seat, err := h.registrations.IssueManualSeat(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	var meta map[string]interface{}
	if !seat.Guaranteed() {
		meta = map[string]interface{}{"seat_warning": "seat counter unavailable, seat number is not guaranteed unique"}
	}
	response.Created(c, seat, meta)
}

// ExportCSV godoc
// @Summary Download the filtered ledger as CSV
// @Tags Admin
// @Produce text/csv
// @Security BearerAuth
// @Param search query string false "Name, seat number or mobile"
// @Param attendance query string false "All, Pending, Present, Absent or Late"
// @Param sort query string false "Field to sort by"
// @Param order query string false "asc or desc"
// @Success 200 {string} string
// @Router /admin/export.csv [get]
func (h *LedgerHandler) ExportCSV(c *gin.Context) {
	filter, order, err := ledgerQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	payload, rows, err := h.exporter.CSV(filter, order)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export"))
		return
	}
	filename := h.exporter.Filename(models.ExportFormatCSV)
	c.Header("Content-Disposition", `attachment; filename="`+strings.ReplaceAll(filename, `"`, "")+`"`)
	c.Header("X-Export-Rows", strconv.Itoa(rows))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/csv; charset=utf-8", payload)
}
