package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/registry_api/internal/service"
	"github.com/GTDGit/registry_api/internal/utils"
)

// DocumentHandler handles supporting document uploads.
type DocumentHandler struct {
	docs *service.DocumentService
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(docs *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docs: docs}
}

// Upload handles POST /v1/documents (multipart field "file")
func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "file", "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		utils.ErrorWithField(c, http.StatusBadRequest, service.ErrCodeValidation, "file", "Unable to read uploaded file")
		return
	}
	defer f.Close()

	doc, err := h.docs.Upload(c.Request.Context(), actorFrom(c).AccountID, fh.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusCreated, "Document uploaded", doc)
}

// List handles GET /v1/documents
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docs.List(c.Request.Context(), actorFrom(c).AccountID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Documents retrieved", docs)
}

// Delete handles DELETE /v1/documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), actorFrom(c).AccountID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	utils.Success(c, http.StatusOK, "Document deleted", gin.H{"id": c.Param("id")})
}
