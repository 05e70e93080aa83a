package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

// AdminRegistrationHandler handles the admin review console endpoints.
type AdminRegistrationHandler struct {
	review *service.ReviewService
}

// NewAdminRegistrationHandler constructs an AdminRegistrationHandler.
func NewAdminRegistrationHandler(review *service.ReviewService) *AdminRegistrationHandler {
	return &AdminRegistrationHandler{review: review}
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type resolveDuplicateRequest struct {
	Action string `json:"action"`
	Note   string `json:"note"`
}

// List handles GET /v1/admin/registrations
// Query params: status, flagged, barangay, search, startDate, endDate, includeDeleted, page, limit
func (h *AdminRegistrationHandler) List(c *gin.Context) {
	page, limit := pageParams(c)
	filter := &repository.RegistrationFilter{Page: page, Limit: limit}

	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("flagged"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "flagged", "flagged must be true or false")
			return
		}
		filter.DuplicateFlag = &flagged
	}
	if v := c.Query("barangay"); v != "" {
		filter.Barangay = &v
	}
	if v := strings.TrimSpace(c.Query("search")); v != "" {
		filter.Search = &v
	}
	if v := c.Query("startDate"); v != "" {
		filter.StartDate = &v
	}
	if v := c.Query("endDate"); v != "" {
		filter.EndDate = &v
	}
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"

	result, err := h.review.ListRegistrations(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Registrations retrieved", result.Registrations, result.Page, result.Limit, result.TotalItems)
}

// Get handles GET /v1/admin/registrations/:id
func (h *AdminRegistrationHandler) Get(c *gin.Context) {
	reg, err := h.review.GetRegistration(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Registration retrieved", reg)
}

// UpdateStatus handles PATCH /v1/admin/registrations/:id/status
func (h *AdminRegistrationHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "status", "status is required")
		return
	}

	reg, err := h.review.UpdateStatus(c.Request.Context(), actorFrom(c), c.Param("id"), models.RegistrationStatus(req.Status), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Status updated", reg)
}

// UpdateData handles PATCH /v1/admin/registrations/:id
func (h *AdminRegistrationHandler) UpdateData(c *gin.Context) {
	var upd models.RegistrationUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		utils.Error(c, http.StatusBadRequest, service.ErrCodeValidation, "Invalid request body")
		return
	}

	reg, err := h.review.UpdateRegistrationData(c.Request.Context(), actorFrom(c), c.Param("id"), &upd)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Registration updated", reg)
}

// Delete handles DELETE /v1/admin/registrations/:id
func (h *AdminRegistrationHandler) Delete(c *gin.Context) {
	if err := h.review.DeleteRegistration(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Registration deleted", gin.H{"id": c.Param("id")})
}

// History handles GET /v1/admin/registrations/:id/history
func (h *AdminRegistrationHandler) History(c *gin.Context) {
	page, limit := pageParams(c)
	entries, total, err := h.review.StatusHistory(c.Request.Context(), c.Param("id"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Status history retrieved", entries, page, limit, total)
}

// Flagged handles GET /v1/admin/duplicates
func (h *AdminRegistrationHandler) Flagged(c *gin.Context) {
	page, limit := pageParams(c)
	result, err := h.review.FlaggedDuplicates(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessWithPagination(c, http.StatusOK, "Flagged registrations retrieved", result.Registrations, result.Page, result.Limit, result.TotalItems)
}

// Stats handles GET /v1/admin/duplicates/stats
func (h *AdminRegistrationHandler) Stats(c *gin.Context) {
	stats, err := h.review.DuplicateStatistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Duplicate statistics retrieved", stats)
}

// Resolve handles POST /v1/admin/duplicates/:id/resolve
func (h *AdminRegistrationHandler) Resolve(c *gin.Context) {
	var req resolveDuplicateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Action == "" {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "action", "action is required")
		return
	}

	reg, err := h.review.ResolveDuplicateFlag(c.Request.Context(), actorFrom(c), c.Param("id"), models.ResolveAction(req.Action), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Duplicate flag resolved", reg)
}
