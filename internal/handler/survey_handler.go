package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

// SurveyHandler handles the program interest survey.
type SurveyHandler struct {
	surveys *service.SurveyService
}

// NewSurveyHandler constructs a SurveyHandler.
func NewSurveyHandler(surveys *service.SurveyService) *SurveyHandler {
	return &SurveyHandler{surveys: surveys}
}

// Programs handles GET /v1/survey/programs
func (h *SurveyHandler) Programs(c *gin.Context) {
	utils.Success(c, http.StatusOK, "Programs retrieved", h.surveys.Programs())
}

// Submit handles POST /v1/survey
func (h *SurveyHandler) Submit(c *gin.Context) {
	var in models.SurveyInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.Error(c, http.StatusBadRequest, service.ErrCodeValidation, "Invalid request body")
		return
	}

	resp, err := h.surveys.Submit(c.Request.Context(), actorFrom(c).AccountID, &in)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Survey submitted", resp)
}

// Mine handles GET /v1/survey/me
func (h *SurveyHandler) Mine(c *gin.Context) {
	resp, err := h.surveys.Latest(c.Request.Context(), actorFrom(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Survey retrieved", resp)
}

// List handles GET /v1/admin/surveys
func (h *SurveyHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	responses, total, err := h.surveys.List(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Surveys retrieved", responses, page, limit, total)
}
