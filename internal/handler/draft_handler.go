package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/scc-sat-api/internal/models"
	"github.com/noah-isme/scc-sat-api/internal/service"
	appErrors "github.com/noah-isme/scc-sat-api/pkg/errors"
	"github.com/noah-isme/scc-sat-api/pkg/response"
)

type draftService interface {
	Save(ctx context.Context, session string, draft models.Draft) (*models.Draft, error)
	Load(ctx context.Context, session string) (*models.Draft, error)
	Clear(ctx context.Context, session string) error
}

type draftStager interface {
	Stage(session string, draft models.Draft)
	Cancel(session string)
}

// DraftHandler exposes per-session form drafts.
type DraftHandler struct {
	drafts   draftService
	autosave draftStager
}

// NewDraftHandler constructs the handler. autosave may be nil, in which case staged saves are written immediately.
func NewDraftHandler(drafts draftService, autosave draftStager) *DraftHandler {
	return &DraftHandler{drafts: drafts, autosave: autosave}
}

// Get godoc
// @Summary Restore a draft
// @Tags Drafts
// @Produce json
// @Param session path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /drafts/{session} [get]
func (h *DraftHandler) Get(c *gin.Context) {
	draft, err := h.drafts.Load(c.Request.Context(), sessionParam(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if draft == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "no draft saved for this session"))
		return
	}
	response.JSON(c, http.StatusOK, draft)
}

// Put godoc
// @Summary Save a draft
// @Description Saves immediately, or stages the draft for the next autosave tick when autosave=true
// @Tags Drafts
// @Accept json
// @Produce json
// @Param session path string true "Session ID"
// @Param autosave query bool false "Stage for periodic autosave"
// @Param payload body models.Draft true "Draft"
// @Success 200 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /drafts/{session} [put]
func (h *DraftHandler) Put(c *gin.Context) {
	session := sessionParam(c)
	var draft models.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid draft payload"))
		return
	}

	staged, _ := strconv.ParseBool(c.Query("autosave"))
	if staged && h.autosave != nil {
		if err := service.ValidateSession(session); err != nil {
			response.Error(c, err)
			return
		}
		h.autosave.Stage(session, draft)
		response.JSON(c, http.StatusAccepted, gin.H{"staged": true})
		return
	}

	saved, err := h.drafts.Save(c.Request.Context(), session, draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, saved)
}

// Delete godoc
// @Summary Discard a draft
// @Tags Drafts
// @Param session path string true "Session ID"
// @Success 204
// @Router /drafts/{session} [delete]
func (h *DraftHandler) Delete(c *gin.Context) {
	session := sessionParam(c)
	if err := h.drafts.Clear(c.Request.Context(), session); err != nil {
		response.Error(c, err)
		return
	}
	if h.autosave != nil {
		h.autosave.Cancel(session)
	}
	response.NoContent(c)
}
