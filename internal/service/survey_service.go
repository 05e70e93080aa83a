package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/models"
)

// SurveyStore persists livelihood survey responses.
type SurveyStore interface {
	Create(ctx context.Context, resp *models.SurveyResponse) error
	GetLatestByAccount(ctx context.Context, accountID string) (*models.SurveyResponse, error)
	List(ctx context.Context, page, limit int) ([]models.SurveyResponse, int, error)
}

// RegistrationLookup finds an account's active registration.
type RegistrationLookup interface {
	GetActiveByAccountID(ctx context.Context, accountID string) (*models.Registration, error)
}

// SurveyService handles the livelihood program survey.
type SurveyService struct {
	repo          SurveyStore
	registrations RegistrationLookup
	now           func() time.Time
}

// NewSurveyService creates a new SurveyService.
func NewSurveyService(repo SurveyStore, registrations RegistrationLookup) *SurveyService {
	return &SurveyService{repo: repo, registrations: registrations, now: time.Now}
}

// Programs returns the program catalog.
func (s *SurveyService) Programs() []models.ProgramCategory {
	return models.ProgramCatalog
}

// Submit stores a survey response. At least one known program must be
// selected; favorites must be among the selected programs.
func (s *SurveyService) Submit(ctx context.Context, accountID string, in *models.SurveyInput) (*models.SurveyResponse, error) {
	if in == nil {
		return nil, validationError("selectedPrograms", "Select at least one program")
	}

	selected := make(map[string]bool)
	categories := make([]string, 0, len(in.SelectedPrograms))
	for cat := range in.SelectedPrograms {
		categories = append(categories, cat)
	}
	sort.Strings(categories)
	for _, cat := range categories {
		for _, p := range in.SelectedPrograms[cat] {
			if !models.FindProgram(cat, p) {
				return nil, validationError("selectedPrograms", fmt.Sprintf("Unknown program %s/%s", cat, p))
			}
			selected[p] = true
		}
	}
	if len(selected) == 0 {
		return nil, validationError("selectedPrograms", "Select at least one program")
	}
	for _, f := range in.FavoritePrograms {
		if !selected[f] {
			return nil, validationError("favoritePrograms", "Favorite program "+f+" is not selected")
		}
	}

	resp := &models.SurveyResponse{
		ID:            uuid.New().String(),
		AccountID:     accountID,
		SurveyVersion: models.SurveyVersion,
		SubmittedAt:   s.now().UTC(),
	}
	var err error
	if resp.SelectedPrograms, err = json.Marshal(in.SelectedPrograms); err != nil {
		return nil, fmt.Errorf("marshal selected programs: %w", err)
	}
	notes := in.ProgramNotes
	if notes == nil {
		notes = map[string]string{}
	}
	if resp.ProgramNotes, err = json.Marshal(notes); err != nil {
		return nil, fmt.Errorf("marshal program notes: %w", err)
	}
	favorites := in.FavoritePrograms
	if favorites == nil {
		favorites = []string{}
	}
	if resp.FavoritePrograms, err = json.Marshal(favorites); err != nil {
		return nil, fmt.Errorf("marshal favorite programs: %w", err)
	}

	if s.registrations != nil {
		reg, err := s.registrations.GetActiveByAccountID(ctx, accountID)
		switch {
		case err == nil:
			resp.RegistrationID = &reg.ID
		case !errors.Is(err, sql.ErrNoRows):
			log.Warn().Err(err).Str("account_id", accountID).Msg("Could not link survey to registration")
		}
	}

	if err := s.repo.Create(ctx, resp); err != nil {
		return nil, storeUnavailable(err)
	}
	log.Info().Str("survey_id", resp.ID).Str("account_id", accountID).Int("programs", len(selected)).Msg("Survey submitted")
	return resp, nil
}

// Latest returns the account's latest response.
func (s *SurveyService) Latest(ctx context.Context, accountID string) (*models.SurveyResponse, error) {
	resp, err := s.repo.GetLatestByAccount(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("No survey response found")
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return resp, nil
}

// List returns survey responses for admins.
func (s *SurveyService) List(ctx context.Context, page, limit int) ([]models.SurveyResponse, int, error) {
	items, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, storeUnavailable(err)
	}
	return items, total, nil
}
