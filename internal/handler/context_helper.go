package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scc-sat-api/internal/middleware"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
)

// SessionHeader carries the browser session id used to key drafts.
const SessionHeader = "X-Session-ID"

// ledgerQuery reads the shared search/attendance/sort/order listing parameters.
func ledgerQuery(c *gin.Context) (models.LedgerFilter, models.LedgerSort, error) {
	filter := models.LedgerFilter{
		Search:     strings.TrimSpace(c.Query("search")),
		Attendance: models.AttendanceStatus(strings.TrimSpace(c.Query("attendance"))),
	}
	if filter.Attendance != "" && filter.Attendance != models.AttendanceAll && !filter.Attendance.Valid() {
		return filter, models.LedgerSort{}, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{
			"attendance": "must be one of All Pending Present Absent Late",
		})
	}

	order := models.LedgerSort{
		Field: strings.TrimSpace(c.Query("sort")),
		Order: models.SortOrder(strings.ToLower(strings.TrimSpace(c.Query("order")))),
	}
	if order.Field != "" && !service.ValidSortField(order.Field) {
		return filter, order, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{
			"sort": "unsupported sort field",
		})
	}
	switch order.Order {
	case "", models.SortAsc, models.SortDesc:
	default:
		return filter, order, appErrors.WithDetails(appErrors.ErrValidation, map[string]string{
			"order": "must be asc or desc",
		})
	}
	return filter, order, nil
}

// mutationMeta adds the storage warning when a write only reached memory.
func mutationMeta(result models.MutationResult) map[string]interface{} {
	if result.Durable {
		return nil
	}
	return map[string]interface{}{
		"storage_warning": appErrors.ErrStorage.Message,
	}
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
