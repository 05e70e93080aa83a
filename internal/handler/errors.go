package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/middleware"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

var errorStatus = map[string]int{
	service.ErrCodeValidation:          http.StatusBadRequest,
	service.ErrCodeNotFound:            http.StatusNotFound,
	service.ErrCodeAlreadyRegistered:   http.StatusConflict,
	service.ErrCodeOutsideServiceArea:  http.StatusUnprocessableEntity,
	service.ErrCodeInvalidTransition:   http.StatusConflict,
	service.ErrCodeAllocationFailed:    http.StatusServiceUnavailable,
	service.ErrCodePersistenceConflict: http.StatusConflict,
	service.ErrCodeStoreUnavailable:    http.StatusServiceUnavailable,
	service.ErrCodeForbidden:           http.StatusForbidden,
	service.ErrCodeUnsupportedFile:     http.StatusUnsupportedMediaType,
	service.ErrCodeFileTooLarge:        http.StatusRequestEntityTooLarge,
	service.ErrCodeStorageUnavailable:  http.StatusServiceUnavailable,
}

// respondError writes err using the standard envelope. Registration errors
// keep their code, field and retry hint; anything else is a 500.
func respondError(c *gin.Context, err error) {
	var re *service.RegistrationError
	if !errors.As(err, &re) {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Unhandled error")
		utils.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
		return
	}

	status, ok := errorStatus[re.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	if status >= 500 {
		log.Error().Err(re).Str("path", c.FullPath()).Msg("Request failed")
	}

	switch {
	case re.Retryable:
		utils.RetryableError(c, status, re.Code, re.Message)
	case re.Field != "":
		utils.ErrorWithField(c, status, re.Code, re.Field, re.Message)
	default:
		utils.Error(c, status, re.Code, re.Message)
	}
}

// actorFrom returns the authenticated caller set by the JWT middleware.
func actorFrom(c *gin.Context) models.Actor {
	return models.Actor{
		AccountID: c.GetString(middleware.ContextAccountID),
		Email:     c.GetString(middleware.ContextEmail),
		Role:      c.GetString(middleware.ContextRole),
	}
}

// pageParams reads page and limit query parameters.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
