package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scc-sat-api/internal/dto"
	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
	"github.com/noah-isme/scc-sat-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, req dto.RegistrationRequest) (*dto.RegistrationResponse, models.MutationResult, error)
}

type referralValidator interface {
	Validate(ctx context.Context, code string) models.ReferralStatus
}

// RegistrationHandler serves the public registration form.
type RegistrationHandler struct {
	registrations registrationService
	referrals     referralValidator
}

// NewRegistrationHandler constructs the handler.
func NewRegistrationHandler(registrations registrationService, referrals referralValidator) *RegistrationHandler {
	return &RegistrationHandler{registrations: registrations, referrals: referrals}
}

// Register godoc
// @Summary Submit a registration
// @Description Validates the form, issues a seat number and own referral code, and records the student
// @Tags Registrations
// @Accept json
// @Produce json
// @Param X-Session-ID header string false "Draft session to clear on success"
// @Param payload body dto.RegistrationRequest true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /registrations [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = c.GetHeader(SessionHeader)
	}

	res, mutation, err := h.registrations.Register(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := mutationMeta(mutation)
	if res.SeatKind == models.IssuanceFallback {
		if meta == nil {
			meta = map[string]interface{}{}
		}
		meta["seat_warning"] = "seat counter unavailable, seat number is not guaranteed unique"
	}
	response.Created(c, res, meta)
}

// ValidateReferral godoc
// @Summary Check a referral code
// @Tags Referrals
// @Produce json
// @Param code query string false "Referral code"
// @Success 200 {object} response.Envelope
// @Router /referrals/validate [get]
func (h *RegistrationHandler) ValidateReferral(c *gin.Context) {
	code := service.NormalizeReferralCode(c.Query("code"))
	status := h.referrals.Validate(c.Request.Context(), code)
	response.JSON(c, http.StatusOK, dto.ReferralValidationResponse{Code: code, Status: status})
}

func sessionParam(c *gin.Context) string {
	if session := strings.TrimSpace(c.Param("session")); session != "" {
		return session
	}
	return strings.TrimSpace(c.GetHeader(SessionHeader))
}
