package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/GTDGit/registry_api/internal/models"
)

// SurveyRepository handles database operations for livelihood survey responses
type SurveyRepository struct {
	db *sqlx.DB
}

// NewSurveyRepository creates a new SurveyRepository
func NewSurveyRepository(db *sqlx.DB) *SurveyRepository {
	return &SurveyRepository{db: db}
}

// Create stores a survey response.
func (r *SurveyRepository) Create(ctx context.Context, resp *models.SurveyResponse) error {
	const query = `
		INSERT INTO survey_responses
			(id, account_id, registration_id, selected_programs, program_notes, favorite_programs, survey_version, submitted_at)
		VALUES
			(:id, :account_id, :registration_id, :selected_programs, :program_notes, :favorite_programs, :survey_version, :submitted_at)`

	_, err := r.db.NamedExecContext(ctx, query, resp)
	return err
}

// GetLatestByAccount returns the account's most recent response.
func (r *SurveyRepository) GetLatestByAccount(ctx context.Context, accountID string) (*models.SurveyResponse, error) {
	const query = `
		SELECT id, account_id, registration_id, selected_programs, program_notes, favorite_programs, survey_version, submitted_at
		FROM survey_responses
		WHERE account_id = $1
		ORDER BY submitted_at DESC
		LIMIT 1`

	var resp models.SurveyResponse
	if err := r.db.GetContext(ctx, &resp, query, accountID); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns survey responses newest first with the total count.
func (r *SurveyRepository) List(ctx context.Context, page, limit int) ([]models.SurveyResponse, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM survey_responses`); err != nil {
		return nil, 0, fmt.Errorf("count survey responses: %w", err)
	}

	const query = `
		SELECT id, account_id, registration_id, selected_programs, program_notes, favorite_programs, survey_version, submitted_at
		FROM survey_responses
		ORDER BY submitted_at DESC
		LIMIT $1 OFFSET $2`

	responses := []models.SurveyResponse{}
	if err := r.db.SelectContext(ctx, &responses, query, limit, (page-1)*limit); err != nil {
		return nil, 0, fmt.Errorf("list survey responses: %w", err)
	}
	return responses, total, nil
}
