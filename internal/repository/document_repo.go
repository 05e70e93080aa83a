package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/registry_api/internal/models"
)

// DocumentRepository handles database operations for uploaded documents
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository creates a new DocumentRepository
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Create inserts document metadata after the file is stored.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	const query = `
		INSERT INTO documents (id, account_id, file_name, content_type, size_bytes, storage_key, face_count, created_at)
		VALUES (:id, :account_id, :file_name, :content_type, :size_bytes, :storage_key, :face_count, :created_at)`

	_, err := r.db.NamedExecContext(ctx, query, doc)
	return err
}

// GetByID returns a non-deleted document owned by accountID.
func (r *DocumentRepository) GetByID(ctx context.Context, id, accountID string) (*models.Document, error) {
	const query = `
		SELECT id, account_id, file_name, content_type, size_bytes, storage_key, face_count, created_at, deleted_at
		FROM documents
		WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`

	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id, accountID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByAccount returns the account's documents, newest first.
func (r *DocumentRepository) ListByAccount(ctx context.Context, accountID string) ([]models.Document, error) {
	const query = `
		SELECT id, account_id, file_name, content_type, size_bytes, storage_key, face_count, created_at, deleted_at
		FROM documents
		WHERE account_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`

	docs := []models.Document{}
	if err := r.db.SelectContext(ctx, &docs, query, accountID); err != nil {
		return nil, err
	}
	return docs, nil
}

// SoftDelete marks a document deleted. The stored object is kept for audit.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id, accountID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = $3 WHERE id = $1 AND account_id = $2 AND deleted_at IS NULL`,
		id, accountID, at)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}
