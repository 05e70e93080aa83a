package repository

import (
	"context"
	"errors"
	"time"

	"github.com/GTDGit/registry_api/internal/models"
)

// ErrConflict is returned when a write violates a uniqueness constraint
// (Community ID, reference number, or a second active registration for the
// same account).
var ErrConflict = errors.New("unique constraint violation")

// AllocationStore is the counter surface the Community ID allocator runs
// against. Every method must be called inside a transaction that holds the
// address lock.
type AllocationStore interface {
	// LockAddress serializes allocations for one address until the transaction ends.
	LockAddress(ctx context.Context, zipCode, addressKey string) error
	GetAddress(ctx context.Context, zipCode, addressKey string) (*models.AddressIndex, error)
	// NextAddressSeq atomically increments and returns the zip code's address counter.
	NextAddressSeq(ctx context.Context, zipCode string) (int, error)
	CreateAddress(ctx context.Context, addr *models.AddressIndex) error
	GetLatestHousehold(ctx context.Context, zipCode string, addressSeq int) (*models.HouseholdIndex, error)
	NextHouseholdSeq(ctx context.Context, zipCode string, addressSeq int) (int, error)
	CreateHousehold(ctx context.Context, hh *models.HouseholdIndex) error
	NextIndividualSeq(ctx context.Context, zipCode string, addressSeq, householdSeq int) (int, error)
}

// RegistrationTx is the unit of work for one submission or review action.
type RegistrationTx interface {
	AllocationStore
	InsertRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistrationForUpdate(ctx context.Context, id string) (*models.Registration, error)
	UpdateRegistrationReview(ctx context.Context, reg *models.Registration) error
	UpdateRegistrationData(ctx context.Context, reg *models.Registration) error
	SoftDeleteRegistration(ctx context.Context, id, actor string, at time.Time) error
	AppendStatusHistory(ctx context.Context, entry *models.StatusHistoryEntry) error
	LastStatusHistory(ctx context.Context, registrationID string) (*models.StatusHistoryEntry, error)
	InsertDuplicateMatches(ctx context.Context, matches []models.DuplicateMatch) error
}

// DuplicateFinder runs one detection rule and returns matching registration ids.
type DuplicateFinder interface {
	FindDuplicates(ctx context.Context, rule models.MatchReason, c models.DuplicateCriteria) ([]string, error)
}

// RegistrationStore is the registration persistence boundary.
type RegistrationStore interface {
	DuplicateFinder
	RunInTx(ctx context.Context, fn func(tx RegistrationTx) error) error
	GetByID(ctx context.Context, id string) (*models.Registration, error)
	GetActiveByAccountID(ctx context.Context, accountID string) (*models.Registration, error)
	List(ctx context.Context, filter *RegistrationFilter) (*RegistrationPage, error)
	DuplicateStats(ctx context.Context) (*models.DuplicateStats, error)
	ListDuplicateMatches(ctx context.Context, registrationID string) ([]models.DuplicateMatch, error)
	ListStatusHistory(ctx context.Context, registrationID string) ([]models.StatusHistoryEntry, error)
}

// RegistrationFilter narrows admin registration listings.
type RegistrationFilter struct {
	Status         *string
	DuplicateFlag  *bool
	Barangay       *string
	Search         *string // matches name, reference number, or Community ID
	StartDate      *string // YYYY-MM-DD, inclusive
	EndDate        *string // YYYY-MM-DD, inclusive
	IncludeDeleted bool
	Page           int
	Limit          int
}

// normalize applies the default and maximum page size.
func (f *RegistrationFilter) normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 50
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// RegistrationPage is one page of registrations.
type RegistrationPage struct {
	Registrations []models.Registration `json:"registrations"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	TotalItems    int                   `json:"totalItems"`
	TotalPages    int                   `json:"totalPages"`
}
