package handler

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/repository"
	"github.com/noah-isme/scc-sat-api/internal/service"
)

func newLedgerRouter(t *testing.T) (http.Handler, *service.LedgerService) {
	t.Helper()
	store := repository.NewMemoryStore()
	keys := repository.Keys{}
	ledger := service.NewLedgerService(repository.NewLedgerRepository(store, keys), nil, nil, nil)
	require.NoError(t, ledger.Load(context.Background()))
	seats := service.NewSequenceService(repository.NewSeatCounterRepository(store, keys), service.DefaultSeatBaseline, nil, nil)
	registrations := service.NewRegistrationService(seats, service.NewReferralService(nil, ledger, nil), ledger, nil, nil, nil, nil, nil, nil,
		service.RegistrationConfig{ExamYear: "2025", ExamDate: "Sunday, 14th December 2025"})
	exporter := service.NewExportService(ledger, nil, nil, service.ExportConfig{}, nil, nil, nil)

	for _, r := range []models.StudentRecord{
		{FullName: "Asha Patil", Mobile: "98765 43210", SeatNumber: "SCC-2025-1285", OwnReferralCode: "REF-ASH4821", Location: models.CenterSatpur, CreatedAt: time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)},
		{FullName: "Rahul More", Mobile: "91234 56789", SeatNumber: "SCC-2025-1286", OwnReferralCode: "REF-RAH1234", ReferralCode: "REF-ASH4821", Location: models.CenterMeri, CreatedAt: time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)},
	} {
		_, err := ledger.Insert(context.Background(), r)
		require.NoError(t, err)
	}

	h := NewLedgerHandler(ledger, registrations, exporter)
	router := newTestRouter()
	router.GET("/admin/registrations", h.List)
	router.PATCH("/admin/registrations/:seat/attendance", h.UpdateAttendance)
	router.DELETE("/admin/registrations/:seat", h.Delete)
	router.GET("/admin/registrations/:seat/whatsapp", h.WhatsApp)
	router.GET("/admin/referrers/:code", h.Referrer)
	router.GET("/admin/stats", h.Stats)
	router.GET("/admin/conflicts", h.Conflicts)
	router.POST("/admin/seats", h.IssueSeat)
	router.GET("/admin/export.csv", h.ExportCSV)
	return router, ledger
}

func TestLedgerHandlerList(t *testing.T) {
	router, _ := newLedgerRouter(t)

	rec := perform(t, router, http.MethodGet, "/admin/registrations?sort=fullName&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var records []models.StudentRecord
	envelope := decodeEnvelope(t, rec, &records)
	require.Len(t, records, 2)
	assert.Equal(t, "Rahul More", records[0].FullName)
	assert.EqualValues(t, 2, envelope.Meta["total"])

	rec = perform(t, router, http.MethodGet, "/admin/registrations?search=asha", nil)
	decodeEnvelope(t, rec, &records)
	require.Len(t, records, 1)

	rec = perform(t, router, http.MethodGet, "/admin/registrations?attendance=Present", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
}

func TestLedgerHandlerConflictsEmpty(t *testing.T) {
	router, _ := newLedgerRouter(t)

	rec := perform(t, router, http.MethodGet, "/admin/conflicts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":[]`)
	envelope := decodeEnvelope(t, rec, nil)
	assert.EqualValues(t, 0, envelope.Meta["total"])
}

func TestLedgerHandlerListRejectsBadQuery(t *testing.T) {
	router, _ := newLedgerRouter(t)

	for _, query := range []string{"sort=password", "order=sideways", "attendance=Sleeping"} {
		rec := perform(t, router, http.MethodGet, "/admin/registrations?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestLedgerHandlerAttendanceAndDelete(t *testing.T) {
	router, ledger := newLedgerRouter(t)

	rec := perform(t, router, http.MethodPatch, "/admin/registrations/SCC-2025-1285/attendance", dto.AttendanceUpdateRequest{Status: models.AttendancePresent})
	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.MutationResponse
	decodeEnvelope(t, rec, &result)
	assert.True(t, result.Found)
	record, _ := ledger.Get("SCC-2025-1285")
	assert.Equal(t, models.AttendancePresent, record.Attendance)

	rec = perform(t, router, http.MethodPatch, "/admin/registrations/SCC-2025-9999/attendance", dto.AttendanceUpdateRequest{Status: models.AttendanceLate})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &result)
	assert.False(t, result.Found)

	rec = perform(t, router, http.MethodPatch, "/admin/registrations/SCC-2025-1285/attendance", dto.AttendanceUpdateRequest{Status: "Asleep"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(t, router, http.MethodDelete, "/admin/registrations/SCC-2025-1286", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &result)
	assert.True(t, result.Found)
	rec = perform(t, router, http.MethodDelete, "/admin/registrations/SCC-2025-1286", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeEnvelope(t, rec, &result)
	assert.False(t, result.Found)
	assert.Equal(t, 1, ledger.Len())
}

func TestLedgerHandlerLookups(t *testing.T) {
	router, _ := newLedgerRouter(t)

	rec := perform(t, router, http.MethodGet, "/admin/referrers/ref-ash4821", nil)
	var referrer dto.ReferrerResponse
	decodeEnvelope(t, rec, &referrer)
	assert.Equal(t, "Asha Patil", referrer.Name)

	rec = perform(t, router, http.MethodGet, "/admin/referrers/REF-ZZZ0000", nil)
	decodeEnvelope(t, rec, &referrer)
	assert.Equal(t, models.UnknownReferrer, referrer.Name)

	rec = perform(t, router, http.MethodGet, "/admin/registrations/SCC-2025-1286/whatsapp", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var link dto.WhatsAppLinkResponse
	decodeEnvelope(t, rec, &link)
	assert.Equal(t, "919123456789", link.Phone)

	rec = perform(t, router, http.MethodGet, "/admin/registrations/SCC-2025-0001/whatsapp", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(t, router, http.MethodGet, "/admin/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats models.LedgerStats
	decodeEnvelope(t, rec, &stats)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Referred)
	assert.Equal(t, 1, stats.ByCenter[models.CenterMeri])
}

func TestLedgerHandlerIssueSeat(t *testing.T) {
	router, ledger := newLedgerRouter(t)

	rec := perform(t, router, http.MethodPost, "/admin/seats", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var seat models.SeatIssuance
	envelope := decodeEnvelope(t, rec, &seat)
	assert.Equal(t, "SCC-2025-1285", seat.SeatNumber)
	assert.Empty(t, envelope.Meta)

	rec = perform(t, router, http.MethodPost, "/admin/seats", dto.ManualSeatRequest{Year: "2026"})
	require.Equal(t, http.StatusCreated, rec.Code)
	decodeEnvelope(t, rec, &seat)
	assert.Equal(t, "SCC-2026-1285", seat.SeatNumber)
	assert.Equal(t, 2, ledger.Len())

	rec = perform(t, router, http.MethodPost, "/admin/seats", dto.ManualSeatRequest{Year: "next"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLedgerHandlerExportCSV(t *testing.T) {
	router, _ := newLedgerRouter(t)

	rec := perform(t, router, http.MethodGet, "/admin/export.csv?sort=seatNumber&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="SCC_Registrations_`)
	assert.Equal(t, "2", rec.Header().Get("X-Export-Rows"))

	lines := strings.Split(rec.Body.String(), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Seat Number,Name,Mobile"))
	assert.True(t, strings.HasPrefix(lines[1], "SCC-2025-1286,Rahul More"))
	assert.Contains(t, lines[1], "REF-ASH4821,Asha Patil,Pending")
}
