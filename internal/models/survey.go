package models

import "time"

// SurveyVersion is stamped on every stored response.
const SurveyVersion = "2.0"

// ProgramCategory groups livelihood programs offered to residents.
type ProgramCategory struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Programs []Program `json:"programs"`
}

// Program is one selectable livelihood program.
type Program struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ProgramCatalog is the livelihood survey catalog.
var ProgramCatalog = []ProgramCategory{
	{ID: "kabuhayan", Title: "Kabuhayan Program", Programs: []Program{
		{ID: "micro-business", Title: "Micro-business Development"},
		{ID: "cooperative-dev", Title: "Cooperative Development"},
		{ID: "agri-enterprise", Title: "Agri-enterprise Support"},
		{ID: "skills-training", Title: "Skills Training"},
	}},
	{ID: "dole-integrated", Title: "DOLE Integrated Livelihood Program", Programs: []Program{
		{ID: "tupad", Title: "TUPAD Emergency Employment"},
		{ID: "kabalikat", Title: "Kabalikat sa Kabuhayan"},
		{ID: "camp", Title: "COVID-19 Adjustment Measures Program"},
		{ID: "special-program", Title: "Special Program for Employment of Students"},
	}},
	{ID: "dswd-slp", Title: "DSWD Sustainable Livelihood Program", Programs: []Program{
		{ID: "microenterprise-dev", Title: "Microenterprise Development"},
		{ID: "employment-facilitation", Title: "Employment Facilitation"},
		{ID: "capacity-building", Title: "Capacity Building"},
		{ID: "resource-augmentation", Title: "Resource Augmentation"},
	}},
	{ID: "employment-facilitation", Title: "Employment Facilitation Services", Programs: []Program{
		{ID: "job-matching", Title: "Job Matching"},
		{ID: "career-counseling", Title: "Career Counseling"},
		{ID: "job-fairs", Title: "Job Fairs"},
		{ID: "skills-assessment", Title: "Skills Assessment"},
	}},
	{ID: "pantawid-addons", Title: "Pantawid Pamilya Add-ons", Programs: []Program{
		{ID: "family-dev-sessions", Title: "Family Development Sessions"},
		{ID: "savings-groups", Title: "Savings Groups"},
		{ID: "livelihood-grants", Title: "Livelihood Grants"},
		{ID: "health-nutrition", Title: "Health and Nutrition"},
	}},
}

// FindProgram reports whether programID exists under categoryID.
func FindProgram(categoryID, programID string) bool {
	for _, cat := range ProgramCatalog {
		if cat.ID != categoryID {
			continue
		}
		for _, p := range cat.Programs {
			if p.ID == programID {
				return true
			}
		}
	}
	return false
}

// SurveyInput is the resident's livelihood survey submission. Keys of
// SelectedPrograms are category ids; values are program ids.
type SurveyInput struct {
	SelectedPrograms map[string][]string `json:"selectedPrograms" validate:"required"`
	ProgramNotes     map[string]string   `json:"programNotes"`
	FavoritePrograms []string            `json:"favoritePrograms"`
}

// SurveyResponse is a stored survey submission.
type SurveyResponse struct {
	ID               string    `db:"id" json:"id"`
	AccountID        string    `db:"account_id" json:"accountId"`
	RegistrationID   *string   `db:"registration_id" json:"registrationId,omitempty"`
	SelectedPrograms JSONB     `db:"selected_programs" json:"selectedPrograms"`
	ProgramNotes     JSONB     `db:"program_notes" json:"programNotes"`
	FavoritePrograms JSONB     `db:"favorite_programs" json:"favoritePrograms"`
	SurveyVersion    string    `db:"survey_version" json:"surveyVersion"`
	SubmittedAt      time.Time `db:"submitted_at" json:"submittedAt"`
}
