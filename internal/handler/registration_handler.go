package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

// RegistrationHandler handles resident registration endpoints.
type RegistrationHandler struct {
	svc *service.RegistrationService
}

// NewRegistrationHandler constructs a RegistrationHandler.
func NewRegistrationHandler(svc *service.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// Submit handles POST /v1/registrations
func (h *RegistrationHandler) Submit(c *gin.Context) {
	var in models.RegistrationInput
	if err := c.ShouldBindJSON(&in); err != nil {
		utils.Error(c, http.StatusBadRequest, service.ErrCodeValidation, "Invalid request body")
		return
	}

	result, err := h.svc.SubmitRegistration(c.Request.Context(), actorFrom(c), &in)
	if err != nil {
		respondError(c, err)
		return
	}

	message := "Registration submitted"
	if result.DuplicateFlag {
		message = "Registration submitted and flagged for duplicate review"
	}
	utils.Success(c, http.StatusCreated, message, result)
}

// Me handles GET /v1/registrations/me
func (h *RegistrationHandler) Me(c *gin.Context) {
	view, err := h.svc.GetMyRegistration(c.Request.Context(), actorFrom(c).AccountID)
	var re *service.RegistrationError
	if errors.As(err, &re) && re.Code == service.ErrCodeNotFound {
		utils.Success(c, http.StatusOK, "No registration yet", gin.H{"hasRegistration": false})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Registration retrieved", gin.H{
		"hasRegistration": true,
		"registration":    view,
	})
}
