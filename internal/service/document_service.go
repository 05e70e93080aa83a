package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/models"
)

// DocumentStore persists document metadata.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	GetByID(ctx context.Context, id, accountID string) (*models.Document, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.Document, error)
	SoftDelete(ctx context.Context, id, accountID string, at time.Time) error
}

// DocumentUploader stores document bytes.
type DocumentUploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// FaceCounter counts faces on an image.
type FaceCounter interface {
	CountFaces(ctx context.Context, image []byte) (int, error)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DocumentService handles supporting document uploads.
type DocumentService struct {
	repo     DocumentStore
	storage  DocumentUploader
	faces    FaceCounter
	maxBytes int64
	now      func() time.Time
}

// NewDocumentService creates a new DocumentService. storage may be nil, in
// which case uploads fail with STORAGE_UNAVAILABLE; faces may be nil to skip
// the face check.
func NewDocumentService(repo DocumentStore, storage DocumentUploader, faces FaceCounter, maxBytes int64) *DocumentService {
	return &DocumentService{repo: repo, storage: storage, faces: faces, maxBytes: maxBytes, now: time.Now}
}

// Upload validates and stores a document for accountID.
func (s *DocumentService) Upload(ctx context.Context, accountID, fileName string, r io.Reader) (*models.Document, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, &RegistrationError{
			Code:    ErrCodeFileTooLarge,
			Field:   "file",
			Message: fmt.Sprintf("File exceeds the %d MB limit", s.maxBytes/(1<<20)),
		}
	}
	if len(data) == 0 {
		return nil, validationError("file", "File is empty")
	}

	contentType := detectDocumentType(data)
	if contentType == "" {
		return nil, &RegistrationError{
			Code:    ErrCodeUnsupportedFile,
			Field:   "file",
			Message: "Only JPEG, PNG and PDF files are accepted",
		}
	}

	if s.storage == nil {
		return nil, &RegistrationError{Code: ErrCodeStorageUnavailable, Message: "Document storage is not configured", Retryable: true}
	}

	now := s.now().UTC()
	key := fmt.Sprintf("registration-docs/%s/%d-%s", accountID, now.UnixMilli(), sanitizeFileName(fileName))
	if _, err := s.storage.Upload(ctx, key, data, contentType); err != nil {
		return nil, &RegistrationError{Code: ErrCodeStorageUnavailable, Message: "Document could not be stored, please try again", Retryable: true, Err: err}
	}

	doc := &models.Document{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   int64(len(data)),
		StorageKey:  key,
		CreatedAt:   now,
	}

	if s.faces != nil && strings.HasPrefix(contentType, "image/") {
		n, err := s.faces.CountFaces(ctx, data)
		if err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Msg("Face check failed, storing document without it")
		} else {
			doc.FaceCount = &n
		}
	}

	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, storeUnavailable(err)
	}

	log.Info().Str("document_id", doc.ID).Str("account_id", accountID).Str("content_type", contentType).Msg("Document uploaded")
	return doc, nil
}

// List returns the account's documents.
func (s *DocumentService) List(ctx context.Context, accountID string) ([]models.Document, error) {
	docs, err := s.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return docs, nil
}

// Delete soft-deletes a document owned by accountID.
func (s *DocumentService) Delete(ctx context.Context, accountID, id string) error {
	err := s.repo.SoftDelete(ctx, id, accountID, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return notFoundError("Document not found")
	}
	if err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// VerifyOwnership checks that documentID is an active document of accountID.
func (s *DocumentService) VerifyOwnership(ctx context.Context, documentID, accountID string) error {
	_, err := s.repo.GetByID(ctx, documentID, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return validationError("documentId", "Document not found for this account")
	}
	if err != nil {
		return storeUnavailable(err)
	}
	return nil
}

// detectDocumentType sniffs data and returns its MIME type if it is accepted.
func detectDocumentType(data []byte) string {
	mt := mimetype.Detect(data)
	for t := range models.AllowedDocumentTypes {
		if mt.Is(t) {
			return t
		}
	}
	return ""
}

func sanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(filepath.Base(name), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "document"
	}
	return name
}
