package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/cache"
	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
	"github.com/GTDGit/registry_api/internal/sse"
	"github.com/GTDGit/registry_api/internal/utils"
)

// AreaResolver decides whether an address is served and which zip it gets.
type AreaResolver interface {
	IsServiceArea(ctx context.Context, barangayCode, cityCode string) (bool, error)
	ResolveZip(ctx context.Context, barangayCode, submitted string) (string, error)
}

// DocumentVerifier confirms an uploaded document belongs to an account.
type DocumentVerifier interface {
	VerifyOwnership(ctx context.Context, documentID, accountID string) error
}

// RegistrationCacher caches resident status views and duplicate statistics.
type RegistrationCacher interface {
	GetStatus(ctx context.Context, accountID string) (*models.RegistrationStatusView, error)
	SetStatus(ctx context.Context, accountID string, view *models.RegistrationStatusView) error
	InvalidateStatus(ctx context.Context, accountID string) error
	GetDuplicateStats(ctx context.Context) (*models.DuplicateStats, error)
	SetDuplicateStats(ctx context.Context, stats *models.DuplicateStats) error
}

// NotificationQueue accepts outbound notifications for later delivery.
type NotificationQueue interface {
	Enqueue(ctx context.Context, n *models.Notification) error
}

// RegistrationService handles resident registration intake.
type RegistrationService struct {
	store        repository.RegistrationStore
	detector     *DuplicateDetector
	allocator    *IdentityAllocator
	area         AreaResolver
	documents    DocumentVerifier
	cache        RegistrationCacher
	queue        NotificationQueue
	notifier     sse.RegistrationNotifier
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

// RegistrationServiceDeps groups the collaborators of RegistrationService.
// Documents, Cache, Queue and Notifier are optional.
type RegistrationServiceDeps struct {
	Store        repository.RegistrationStore
	Detector     *DuplicateDetector
	Allocator    *IdentityAllocator
	Area         AreaResolver
	Documents    DocumentVerifier
	Cache        RegistrationCacher
	Queue        NotificationQueue
	Notifier     sse.RegistrationNotifier
	Metrics      *metrics.Metrics
	StoreTimeout time.Duration
}

// NewRegistrationService creates a new RegistrationService.
func NewRegistrationService(d RegistrationServiceDeps) *RegistrationService {
	notifier := d.Notifier
	if notifier == nil {
		notifier = &sse.NopNotifier{}
	}
	return &RegistrationService{
		store:        d.Store,
		detector:     d.Detector,
		allocator:    d.Allocator,
		area:         d.Area,
		documents:    d.Documents,
		cache:        d.Cache,
		queue:        d.Queue,
		notifier:     notifier,
		metrics:      d.Metrics,
		storeTimeout: d.StoreTimeout,
		now:          time.Now,
	}
}

func (s *RegistrationService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// SubmitRegistration validates the input, checks it against existing records,
// allocates a Community ID and persists the registration in one transaction.
// Possible duplicates are stored flagged for admin review, never rejected.
func (s *RegistrationService) SubmitRegistration(ctx context.Context, actor models.Actor, in *models.RegistrationInput) (*models.SubmissionResult, error) {
	reg, err := s.submit(ctx, actor, in)
	if err != nil {
		code := ErrorCode(err)
		if code == "" {
			code = "internal"
		}
		s.metrics.IncSubmission(strings.ToLower(code))
		return nil, err
	}

	if reg.DuplicateFlag {
		s.metrics.IncSubmission("flagged")
	} else {
		s.metrics.IncSubmission("pending_review")
	}
	s.afterCommit(ctx, reg)

	return &models.SubmissionResult{
		RegistrationID:   reg.ID,
		ReferenceNumber:  reg.ReferenceNumber,
		CommunityID:      reg.CommunityID,
		Status:           reg.Status,
		StatusLabel:      reg.Status.Label(),
		DuplicateFlag:    reg.DuplicateFlag,
		DuplicateReasons: reg.DuplicateReasons,
		SubmittedAt:      reg.SubmittedAt,
	}, nil
}

func (s *RegistrationService) submit(ctx context.Context, actor models.Actor, in *models.RegistrationInput) (*models.Registration, error) {
	if in == nil {
		return nil, validationError("", "Registration data is required")
	}
	in.Normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	now := s.now()
	if dob, _ := time.Parse("2006-01-02", in.BirthDate); dob.After(now) {
		return nil, validationError("birthDate", "birthDate cannot be in the future")
	}

	zip, err := s.checkEligibility(ctx, actor, in)
	if err != nil {
		return nil, err
	}

	matches := s.detector.Detect(ctx, in, actor.AccountID)
	reasons := models.Reasons(matches)

	ref, err := utils.GenerateReferenceNumber(now)
	if err != nil {
		return nil, fmt.Errorf("generate reference number: %w", err)
	}

	reg := newRegistration(actor, in, zip, ref, reasons, now)

	txCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	err = s.store.RunInTx(txCtx, func(tx repository.RegistrationTx) error {
		cid, err := s.allocator.Allocate(txCtx, tx, AllocationRequest{
			ZipCode:      zip,
			AddressKey:   in.AddressKey(),
			Street:       in.PresentStreet,
			Barangay:     in.PresentBarangay,
			City:         in.PresentCity,
			Region:       in.PresentRegion,
			HeadOfFamily: in.HeadOfFamily(),
		})
		if err != nil {
			return err
		}
		reg.CommunityID = cid.String()

		if err := tx.InsertRegistration(txCtx, reg); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return persistenceConflict(err)
			}
			return storeUnavailable(err)
		}

		entry := &models.StatusHistoryEntry{
			RegistrationID: reg.ID,
			Status:         reg.Status,
			Note:           submissionNote(reasons),
			Actor:          actor.AccountID,
			CreatedAt:      models.NextHistoryTimestamp(nil, now),
		}
		if err := tx.AppendStatusHistory(txCtx, entry); err != nil {
			return storeUnavailable(err)
		}

		for i := range matches {
			matches[i].RegistrationID = reg.ID
			matches[i].CreatedAt = reg.SubmittedAt
		}
		if err := tx.InsertDuplicateMatches(txCtx, matches); err != nil {
			return storeUnavailable(err)
		}
		return nil
	})
	if err != nil {
		var re *RegistrationError
		if !errors.As(err, &re) {
			err = storeUnavailable(err)
		}
		log.Error().Err(err).
			Str("account_id", actor.AccountID).
			Str("zip", zip).
			Msg("Registration submission failed")
		return nil, err
	}

	reg.Matches = matches
	log.Info().
		Str("registration_id", reg.ID).
		Str("community_id", reg.CommunityID).
		Bool("duplicate_flag", reg.DuplicateFlag).
		Msg("Registration submitted")
	return reg, nil
}

// checkEligibility rejects a second registration from the same account and
// addresses outside the service area. A reused email is not rejected here;
// detection flags it for review, and returns the zip code to allocate under.
func (s *RegistrationService) checkEligibility(ctx context.Context, actor models.Actor, in *models.RegistrationInput) (string, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	_, err := s.store.GetActiveByAccountID(ctx, actor.AccountID)
	switch {
	case err == nil:
		return "", &RegistrationError{Code: ErrCodeAlreadyRegistered, Message: "This account already has a registration"}
	case !errors.Is(err, sql.ErrNoRows):
		return "", storeUnavailable(err)
	}

	if in.DocumentID != nil && s.documents != nil {
		if err := s.documents.VerifyOwnership(ctx, *in.DocumentID, actor.AccountID); err != nil {
			return "", err
		}
	}

	ok, err := s.area.IsServiceArea(ctx, in.PresentBarangay, in.PresentCity)
	if err != nil {
		return "", storeUnavailable(err)
	}
	if !ok {
		return "", &RegistrationError{
			Code:    ErrCodeOutsideServiceArea,
			Field:   "presentBarangay",
			Message: "Registrations are only accepted from barangays in the service area",
		}
	}

	zip, err := s.area.ResolveZip(ctx, in.PresentBarangay, in.ZipCode)
	if err != nil {
		return "", storeUnavailable(err)
	}
	return zip, nil
}

func newRegistration(actor models.Actor, in *models.RegistrationInput, zip, ref string, reasons models.MatchReasons, now time.Time) *models.Registration {
	status := models.StatusPendingReview
	if len(reasons) > 0 {
		status = models.StatusFlaggedDuplicate
	}
	submitted := now.UTC().Truncate(time.Microsecond)
	return &models.Registration{
		ID:                 uuid.New().String(),
		AccountID:          actor.AccountID,
		ReferenceNumber:    ref,
		FirstName:          in.FirstName,
		MiddleName:         in.MiddleName,
		LastName:           in.LastName,
		NameExtension:      in.NameExtension,
		BirthDate:          in.BirthDate,
		Email:              in.Email,
		Phone:              in.Phone,
		PresentStreet:      in.PresentStreet,
		PresentHouseNumber: in.PresentHouseNumber,
		PresentBarangay:    in.PresentBarangay,
		PresentCity:        in.PresentCity,
		PresentRegion:      in.PresentRegion,
		ZipCode:            zip,
		StreetKey:          models.NormalizeText(in.PresentStreet),
		LastNameKey:        models.NormalizeText(in.LastName),
		DocumentID:         in.DocumentID,
		Profile:            in.Profile,
		Status:             status,
		DuplicateFlag:      len(reasons) > 0,
		DuplicateReasons:   reasons,
		SubmittedAt:        submitted,
		UpdatedAt:          submitted,
	}
}

func submissionNote(reasons models.MatchReasons) string {
	if len(reasons) == 0 {
		return "Registration submitted"
	}
	return "Registration flagged as potential duplicate: " + strings.Join(reasons.Labels(), ", ")
}

// afterCommit runs the side effects of a stored submission. Their failures
// are logged and never undo the registration.
func (s *RegistrationService) afterCommit(ctx context.Context, reg *models.Registration) {
	if s.cache != nil {
		if err := s.cache.InvalidateStatus(ctx, reg.AccountID); err != nil {
			log.Warn().Err(err).Str("account_id", reg.AccountID).Msg("Failed to invalidate registration status cache")
		}
	}
	if s.queue != nil {
		n := &models.Notification{
			RegistrationID: reg.ID,
			Recipient:      reg.Email,
			Subject:        "Registration Received - CID: " + reg.CommunityID,
			Body: fmt.Sprintf("Hello %s, your registration %s was received and is now %s. Your Community ID is %s.",
				reg.FirstName, reg.ReferenceNumber, reg.Status.Label(), reg.CommunityID),
		}
		if err := s.queue.Enqueue(ctx, n); err != nil {
			log.Warn().Err(err).Str("registration_id", reg.ID).Msg("Failed to queue submission notification")
		}
	}
	s.notifier.NotifyRegistrationSubmitted(reg)
}

// GetMyRegistration returns the resident's own registration summary.
func (s *RegistrationService) GetMyRegistration(ctx context.Context, accountID string) (*models.RegistrationStatusView, error) {
	if s.cache != nil {
		view, err := s.cache.GetStatus(ctx, accountID)
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Str("account_id", accountID).Msg("Registration status cache read failed")
		}
	}

	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	reg, err := s.store.GetActiveByAccountID(ctx, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("No registration found for this account")
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	history, err := s.store.ListStatusHistory(ctx, reg.ID)
	if err != nil {
		return nil, storeUnavailable(err)
	}

	view := &models.RegistrationStatusView{
		RegistrationID:  reg.ID,
		ReferenceNumber: reg.ReferenceNumber,
		CommunityID:     reg.CommunityID,
		FullName:        reg.FullName(),
		Status:          reg.Status,
		StatusLabel:     reg.Status.Label(),
		SubmittedAt:     reg.SubmittedAt,
		UpdatedAt:       reg.UpdatedAt,
		History:         history,
	}
	if s.cache != nil {
		if err := s.cache.SetStatus(ctx, accountID, view); err != nil {
			log.Warn().Err(err).Str("account_id", accountID).Msg("Failed to cache registration status")
		}
	}
	return view, nil
}
