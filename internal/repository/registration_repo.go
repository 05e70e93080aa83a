package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/GTDGit/registry_api/internal/database"
	"github.com/GTDGit/registry_api/internal/models"
)

const registrationColumns = `
	id, account_id, reference_number, first_name, middle_name, last_name, name_extension,
	birth_date, email, phone, present_street, present_house_number, present_barangay,
	present_city, present_region, zip_code, street_key, last_name_key, document_id, profile,
	community_id, status, duplicate_flag, duplicate_reasons, duplicate_resolved_at,
	duplicate_resolved_by, deleted, deleted_at, deleted_by, submitted_at, updated_at`

// Postgres error codes mapped by mapPQError.
const (
	pqUniqueViolation = "23505"
	pqCheckViolation  = "23514"
)

// duplicateRuleWhere holds the match predicate for each detection rule.
// $1 street key, $2 barangay, $3 birth date, $4 email, $5 last name key.
var duplicateRuleWhere = map[models.MatchReason]string{
	models.MatchSameAddressBirthDate: `street_key = $1 AND present_barangay = $2 AND birth_date = $3`,
	models.MatchSameAddressEmailBirthDate: `street_key = $1 AND present_barangay = $2 AND birth_date = $3
		AND email = $4`,
	models.MatchSameBirthDateLastName: `birth_date = $3 AND last_name_key = $5
		AND NOT (street_key = $1 AND present_barangay = $2)`,
	models.MatchSameBirthDateEmail: `birth_date = $3 AND email = $4
		AND NOT (street_key = $1 AND present_barangay = $2)`,
}

// RegistrationRepository is the PostgreSQL RegistrationStore.
type RegistrationRepository struct {
	db *sqlx.DB
}

// NewRegistrationRepository creates a new RegistrationRepository
func NewRegistrationRepository(db *sqlx.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

// RunInTx executes fn in a single database transaction.
func (r *RegistrationRepository) RunInTx(ctx context.Context, fn func(tx RegistrationTx) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(&registrationTx{tx: tx})
	})
}

// FindDuplicates returns the ids of active registrations, other than the
// applicant's own, that satisfy the given rule. Ids are sorted ascending.
func (r *RegistrationRepository) FindDuplicates(ctx context.Context, rule models.MatchReason, c models.DuplicateCriteria) ([]string, error) {
	where, ok := duplicateRuleWhere[rule]
	if !ok {
		return nil, fmt.Errorf("unknown duplicate rule %q", rule)
	}
	query := `SELECT id FROM registrations
		WHERE NOT deleted AND account_id <> $6 AND ` + where + `
		ORDER BY id`

	var ids []string
	err := r.db.SelectContext(ctx, &ids, query,
		c.StreetKey, c.Barangay, c.BirthDate, c.Email, c.LastNameKey, c.ExcludeAccountID)
	if err != nil {
		return nil, fmt.Errorf("find duplicates (%s): %w", rule, err)
	}
	return ids, nil
}

// GetByID returns a registration by id, including soft-deleted ones.
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	if err := r.db.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetActiveByAccountID returns the account's non-deleted registration.
func (r *RegistrationRepository) GetActiveByAccountID(ctx context.Context, accountID string) (*models.Registration, error) {
	var reg models.Registration
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE account_id = $1 AND NOT deleted`
	if err := r.db.GetContext(ctx, &reg, query, accountID); err != nil {
		return nil, err
	}
	return &reg, nil
}

// List returns registrations matching the filter, newest first.
func (r *RegistrationRepository) List(ctx context.Context, filter *RegistrationFilter) (*RegistrationPage, error) {
	if filter == nil {
		filter = &RegistrationFilter{}
	}
	filter.normalize()

	baseQ := ` FROM registrations WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if !filter.IncludeDeleted {
		baseQ += " AND NOT deleted"
	}
	if filter.Status != nil && *filter.Status != "" {
		baseQ += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *filter.Status)
		argIdx++
	}
	if filter.DuplicateFlag != nil {
		baseQ += fmt.Sprintf(" AND duplicate_flag = $%d", argIdx)
		args = append(args, *filter.DuplicateFlag)
		argIdx++
	}
	if filter.Barangay != nil && *filter.Barangay != "" {
		baseQ += fmt.Sprintf(" AND present_barangay = $%d", argIdx)
		args = append(args, *filter.Barangay)
		argIdx++
	}
	if filter.Search != nil && *filter.Search != "" {
		baseQ += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d
			OR reference_number ILIKE $%d OR community_id ILIKE $%d)`, argIdx, argIdx, argIdx, argIdx)
		args = append(args, "%"+*filter.Search+"%")
		argIdx++
	}
	if filter.StartDate != nil && *filter.StartDate != "" {
		baseQ += fmt.Sprintf(" AND submitted_at >= $%d::date", argIdx)
		args = append(args, *filter.StartDate)
		argIdx++
	}
	if filter.EndDate != nil && *filter.EndDate != "" {
		baseQ += fmt.Sprintf(" AND submitted_at < ($%d::date + interval '1 day')", argIdx)
		args = append(args, *filter.EndDate)
		argIdx++
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*)"+baseQ, args...); err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}

	offset := (filter.Page - 1) * filter.Limit
	selectQ := fmt.Sprintf(`SELECT %s%s ORDER BY submitted_at DESC, id LIMIT $%d OFFSET $%d`,
		registrationColumns, baseQ, argIdx, argIdx+1)
	args = append(args, filter.Limit, offset)

	regs := []models.Registration{}
	if err := r.db.SelectContext(ctx, &regs, selectQ, args...); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	return &RegistrationPage{
		Registrations: regs,
		Page:          filter.Page,
		Limit:         filter.Limit,
		TotalItems:    total,
		TotalPages:    (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

// DuplicateStats counts registrations that were ever flagged, those whose
// flag was resolved, and those still awaiting resolution.
func (r *RegistrationRepository) DuplicateStats(ctx context.Context) (*models.DuplicateStats, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE duplicate_flag OR duplicate_resolved_at IS NOT NULL) AS total_flagged,
			COUNT(*) FILTER (WHERE duplicate_resolved_at IS NOT NULL) AS total_resolved,
			COUNT(*) FILTER (WHERE duplicate_flag) AS pending_review
		FROM registrations
		WHERE NOT deleted`

	var stats models.DuplicateStats
	if err := r.db.GetContext(ctx, &stats, query); err != nil {
		return nil, fmt.Errorf("duplicate stats: %w", err)
	}
	return &stats, nil
}

// ListDuplicateMatches returns the matches recorded for a registration.
func (r *RegistrationRepository) ListDuplicateMatches(ctx context.Context, registrationID string) ([]models.DuplicateMatch, error) {
	const query = `
		SELECT registration_id, matched_registration_id, reason, created_at
		FROM duplicate_matches
		WHERE registration_id = $1
		ORDER BY matched_registration_id, reason`

	matches := []models.DuplicateMatch{}
	if err := r.db.SelectContext(ctx, &matches, query, registrationID); err != nil {
		return nil, err
	}
	return matches, nil
}

// ListStatusHistory returns the full status history, oldest first.
func (r *RegistrationRepository) ListStatusHistory(ctx context.Context, registrationID string) ([]models.StatusHistoryEntry, error) {
	const query = `
		SELECT id, registration_id, status, previous_status, note, actor, resolved_duplicate_flag, created_at
		FROM registration_status_history
		WHERE registration_id = $1
		ORDER BY created_at`

	entries := []models.StatusHistoryEntry{}
	if err := r.db.SelectContext(ctx, &entries, query, registrationID); err != nil {
		return nil, err
	}
	return entries, nil
}

// registrationTx implements RegistrationTx over a *sqlx.Tx.
type registrationTx struct {
	tx *sqlx.Tx
}

func (t *registrationTx) LockAddress(ctx context.Context, zipCode, addressKey string) error {
	_, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, zipCode+"|"+addressKey)
	if err != nil {
		return fmt.Errorf("lock address: %w", err)
	}
	return nil
}

func (t *registrationTx) GetAddress(ctx context.Context, zipCode, addressKey string) (*models.AddressIndex, error) {
	const query = `
		SELECT zip_code, address_seq, address_key, street, barangay, city, region, last_household_seq, created_at
		FROM addresses
		WHERE zip_code = $1 AND address_key = $2`

	var addr models.AddressIndex
	if err := t.tx.GetContext(ctx, &addr, query, zipCode, addressKey); err != nil {
		return nil, err
	}
	return &addr, nil
}

func (t *registrationTx) NextAddressSeq(ctx context.Context, zipCode string) (int, error) {
	const query = `
		INSERT INTO address_counters (zip_code, last_address_seq) VALUES ($1, 1)
		ON CONFLICT (zip_code) DO UPDATE SET last_address_seq = address_counters.last_address_seq + 1
		RETURNING last_address_seq`

	var seq int
	if err := t.tx.GetContext(ctx, &seq, query, zipCode); err != nil {
		return 0, mapCounterError(fmt.Errorf("next address sequence: %w", err))
	}
	return seq, nil
}

func (t *registrationTx) CreateAddress(ctx context.Context, addr *models.AddressIndex) error {
	const query = `
		INSERT INTO addresses (zip_code, address_seq, address_key, street, barangay, city, region, last_household_seq, created_at)
		VALUES (:zip_code, :address_seq, :address_key, :street, :barangay, :city, :region, :last_household_seq, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, addr); err != nil {
		return mapPQError(fmt.Errorf("create address: %w", err))
	}
	return nil
}

func (t *registrationTx) GetLatestHousehold(ctx context.Context, zipCode string, addressSeq int) (*models.HouseholdIndex, error) {
	const query = `
		SELECT zip_code, address_seq, household_seq, head_of_family, last_individual_seq, created_at
		FROM households
		WHERE zip_code = $1 AND address_seq = $2
		ORDER BY household_seq DESC
		LIMIT 1`

	var hh models.HouseholdIndex
	if err := t.tx.GetContext(ctx, &hh, query, zipCode, addressSeq); err != nil {
		return nil, err
	}
	return &hh, nil
}

func (t *registrationTx) NextHouseholdSeq(ctx context.Context, zipCode string, addressSeq int) (int, error) {
	const query = `
		UPDATE addresses SET last_household_seq = last_household_seq + 1
		WHERE zip_code = $1 AND address_seq = $2
		RETURNING last_household_seq`

	var seq int
	if err := t.tx.GetContext(ctx, &seq, query, zipCode, addressSeq); err != nil {
		return 0, mapCounterError(fmt.Errorf("next household sequence: %w", err))
	}
	return seq, nil
}

func (t *registrationTx) CreateHousehold(ctx context.Context, hh *models.HouseholdIndex) error {
	const query = `
		INSERT INTO households (zip_code, address_seq, household_seq, head_of_family, last_individual_seq, created_at)
		VALUES (:zip_code, :address_seq, :household_seq, :head_of_family, :last_individual_seq, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, query, hh); err != nil {
		return mapPQError(fmt.Errorf("create household: %w", err))
	}
	return nil
}

func (t *registrationTx) NextIndividualSeq(ctx context.Context, zipCode string, addressSeq, householdSeq int) (int, error) {
	const query = `
		UPDATE households SET last_individual_seq = last_individual_seq + 1
		WHERE zip_code = $1 AND address_seq = $2 AND household_seq = $3
		RETURNING last_individual_seq`

	var seq int
	if err := t.tx.GetContext(ctx, &seq, query, zipCode, addressSeq, householdSeq); err != nil {
		return 0, mapCounterError(fmt.Errorf("next individual sequence: %w", err))
	}
	return seq, nil
}

func (t *registrationTx) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	cols := strings.Split(strings.Join(strings.Fields(registrationColumns), ""), ",")
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	query := fmt.Sprintf(`INSERT INTO registrations (%s) VALUES (%s)`,
		strings.Join(cols, ", "), strings.Join(named, ", "))

	if _, err := t.tx.NamedExecContext(ctx, query, reg); err != nil {
		return mapPQError(fmt.Errorf("insert registration: %w", err))
	}
	return nil
}

func (t *registrationTx) GetRegistrationForUpdate(ctx context.Context, id string) (*models.Registration, error) {
	var reg models.Registration
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1 FOR UPDATE`
	if err := t.tx.GetContext(ctx, &reg, query, id); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (t *registrationTx) UpdateRegistrationReview(ctx context.Context, reg *models.Registration) error {
	const query = `
		UPDATE registrations SET
			status = $2, duplicate_flag = $3, duplicate_reasons = $4,
			duplicate_resolved_at = $5, duplicate_resolved_by = $6, updated_at = $7
		WHERE id = $1`

	res, err := t.tx.ExecContext(ctx, query, reg.ID, reg.Status, reg.DuplicateFlag, reg.DuplicateReasons,
		reg.DuplicateResolvedAt, reg.DuplicateResolvedBy, reg.UpdatedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("update registration review: %w", err))
	}
	return expectOneRow(res)
}

func (t *registrationTx) UpdateRegistrationData(ctx context.Context, reg *models.Registration) error {
	const query = `
		UPDATE registrations SET
			middle_name = $2, name_extension = $3, phone = $4, present_house_number = $5,
			profile = $6, status = $7, updated_at = $8
		WHERE id = $1`

	res, err := t.tx.ExecContext(ctx, query, reg.ID, reg.MiddleName, reg.NameExtension, reg.Phone,
		reg.PresentHouseNumber, reg.Profile, reg.Status, reg.UpdatedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("update registration data: %w", err))
	}
	return expectOneRow(res)
}

func (t *registrationTx) SoftDeleteRegistration(ctx context.Context, id, actor string, at time.Time) error {
	const query = `
		UPDATE registrations SET deleted = TRUE, deleted_at = $2, deleted_by = $3, updated_at = $2
		WHERE id = $1 AND NOT deleted`

	res, err := t.tx.ExecContext(ctx, query, id, at, actor)
	if err != nil {
		return fmt.Errorf("soft delete registration: %w", err)
	}
	return expectOneRow(res)
}

func (t *registrationTx) AppendStatusHistory(ctx context.Context, entry *models.StatusHistoryEntry) error {
	const query = `
		INSERT INTO registration_status_history
			(registration_id, status, previous_status, note, actor, resolved_duplicate_flag, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	err := t.tx.GetContext(ctx, &entry.ID, query, entry.RegistrationID, entry.Status, entry.PreviousStatus,
		entry.Note, entry.Actor, entry.ResolvedDuplicateFlag, entry.CreatedAt)
	if err != nil {
		return mapPQError(fmt.Errorf("append status history: %w", err))
	}
	return nil
}

func (t *registrationTx) LastStatusHistory(ctx context.Context, registrationID string) (*models.StatusHistoryEntry, error) {
	const query = `
		SELECT id, registration_id, status, previous_status, note, actor, resolved_duplicate_flag, created_at
		FROM registration_status_history
		WHERE registration_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	var entry models.StatusHistoryEntry
	if err := t.tx.GetContext(ctx, &entry, query, registrationID); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (t *registrationTx) InsertDuplicateMatches(ctx context.Context, matches []models.DuplicateMatch) error {
	const query = `
		INSERT INTO duplicate_matches (registration_id, matched_registration_id, reason, created_at)
		VALUES (:registration_id, :matched_registration_id, :reason, :created_at)
		ON CONFLICT DO NOTHING`

	for i := range matches {
		if _, err := t.tx.NamedExecContext(ctx, query, &matches[i]); err != nil {
			return mapPQError(fmt.Errorf("insert duplicate match: %w", err))
		}
	}
	return nil
}

// mapPQError translates unique violations into ErrConflict while keeping the
// original error in the chain.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
		return fmt.Errorf("%w: %s: %w", ErrConflict, pqErr.Constraint, err)
	}
	return err
}

// mapCounterError reports a counter that ran past its range check as an
// exhausted sequence.
func mapCounterError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqCheckViolation {
		return fmt.Errorf("%w: %w", models.ErrSequenceExhausted, err)
	}
	return mapPQError(err)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
