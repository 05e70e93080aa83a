package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/registry_api/internal/cache"
	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
	"github.com/GTDGit/registry_api/internal/sse"
)

// manualTargets are the statuses an admin may set directly. FlaggedDuplicate
// is only ever set by submission.
var manualTargets = map[models.RegistrationStatus]bool{
	models.StatusPendingReview: true,
	models.StatusInReview:      true,
	models.StatusApproved:      true,
	models.StatusRejected:      true,
}

// ReviewService handles admin review of registrations.
type ReviewService struct {
	store        repository.RegistrationStore
	cache        RegistrationCacher
	queue        NotificationQueue
	notifier     sse.RegistrationNotifier
	metrics      *metrics.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

// NewReviewService creates a new ReviewService. cache, queue and notifier may be nil.
func NewReviewService(
	store repository.RegistrationStore,
	cache RegistrationCacher,
	queue NotificationQueue,
	notifier sse.RegistrationNotifier,
	m *metrics.Metrics,
	storeTimeout time.Duration,
) *ReviewService {
	if notifier == nil {
		notifier = &sse.NopNotifier{}
	}
	return &ReviewService{
		store:        store,
		cache:        cache,
		queue:        queue,
		notifier:     notifier,
		metrics:      m,
		storeTimeout: storeTimeout,
		now:          time.Now,
	}
}

func (s *ReviewService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// ListRegistrations returns one page of registrations matching filter.
func (s *ReviewService) ListRegistrations(ctx context.Context, filter *repository.RegistrationFilter) (*repository.RegistrationPage, error) {
	if filter != nil && filter.Status != nil && *filter.Status != "" && !models.RegistrationStatus(*filter.Status).Valid() {
		return nil, validationError("status", "Unknown status "+*filter.Status)
	}
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	page, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	return page, nil
}

// GetRegistration returns a registration with the records it was matched against.
func (s *ReviewService) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	reg, err := s.store.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFoundError("Registration not found")
	}
	if err != nil {
		return nil, storeUnavailable(err)
	}
	matches, err := s.store.ListDuplicateMatches(ctx, id)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	reg.Matches = matches
	return reg, nil
}

// UpdateStatus moves a registration to status and records the change.
func (s *ReviewService) UpdateStatus(ctx context.Context, actor models.Actor, id string, status models.RegistrationStatus, note string) (*models.Registration, error) {
	if !status.Valid() {
		return nil, validationError("status", "Unknown status "+string(status))
	}
	if !manualTargets[status] {
		return nil, transitionError("Status " + status.Label() + " cannot be set manually")
	}

	reg, err := s.mutate(ctx, id, func(reg *models.Registration) (*models.StatusHistoryEntry, error) {
		if reg.Status == status {
			return nil, transitionError("Registration is already " + status.Label())
		}
		if reg.DuplicateFlag && status == models.StatusApproved {
			return nil, transitionError("Resolve the duplicate flag before approving this registration")
		}
		prev := reg.Status
		reg.Status = status
		if note == "" {
			note = "Status changed to " + status.Label()
		}
		return &models.StatusHistoryEntry{
			Status:         status,
			PreviousStatus: &prev,
			Note:           note,
			Actor:          actor.AccountID,
		}, nil
	}, (repository.RegistrationTx).UpdateRegistrationReview)
	if err != nil {
		return nil, err
	}

	s.metrics.IncReviewAction("status_" + strings.ToLower(string(status)))
	s.afterChange(ctx, reg, actor, note)
	return reg, nil
}

// ResolveDuplicateFlag clears a registration's duplicate flag and sets the
// status the admin chose. Match records are kept for audit.
func (s *ReviewService) ResolveDuplicateFlag(ctx context.Context, actor models.Actor, id string, action models.ResolveAction, note string) (*models.Registration, error) {
	target, ok := action.TargetStatus()
	if !ok {
		return nil, validationError("action", "action must be one of approve, reject, pending")
	}

	historyNote := fmt.Sprintf("Duplicate flag resolved - %s by admin", action.Verb())
	if note = strings.TrimSpace(note); note != "" {
		historyNote += ": " + note
	}

	reg, err := s.mutate(ctx, id, func(reg *models.Registration) (*models.StatusHistoryEntry, error) {
		if !reg.DuplicateFlag {
			return nil, transitionError("Registration is not flagged as a duplicate")
		}
		prev := reg.Status
		at := s.now().UTC().Truncate(time.Microsecond)
		by := actor.AccountID
		reg.Status = target
		reg.DuplicateFlag = false
		reg.DuplicateReasons = models.MatchReasons{}
		reg.DuplicateResolvedAt = &at
		reg.DuplicateResolvedBy = &by
		return &models.StatusHistoryEntry{
			Status:                target,
			PreviousStatus:        &prev,
			Note:                  historyNote,
			Actor:                 actor.AccountID,
			ResolvedDuplicateFlag: true,
		}, nil
	}, (repository.RegistrationTx).UpdateRegistrationReview)
	if err != nil {
		return nil, err
	}

	s.metrics.IncReviewAction("resolve_" + string(action))
	s.afterChange(ctx, reg, actor, historyNote)
	return reg, nil
}

// UpdateRegistrationData applies contact and profile corrections. The
// registration goes back to InReview; its Community ID and address are unchanged.
func (s *ReviewService) UpdateRegistrationData(ctx context.Context, actor models.Actor, id string, upd *models.RegistrationUpdate) (*models.Registration, error) {
	if upd == nil || upd.Empty() {
		return nil, validationError("", "No changes supplied")
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}

	const note = "Data updated - requires re-review"
	reg, err := s.mutate(ctx, id, func(reg *models.Registration) (*models.StatusHistoryEntry, error) {
		prev := reg.Status
		upd.Apply(reg)
		reg.Status = models.StatusInReview
		return &models.StatusHistoryEntry{
			Status:         models.StatusInReview,
			PreviousStatus: &prev,
			Note:           note,
			Actor:          actor.AccountID,
		}, nil
	}, (repository.RegistrationTx).UpdateRegistrationData)
	if err != nil {
		return nil, err
	}

	s.metrics.IncReviewAction("update_data")
	s.afterChange(ctx, reg, actor, note)
	return reg, nil
}

// mutate loads a registration under a row lock, applies change and persists
// it with write, appending the returned history entry in the same transaction.
func (s *ReviewService) mutate(
	ctx context.Context,
	id string,
	change func(reg *models.Registration) (*models.StatusHistoryEntry, error),
	write func(tx repository.RegistrationTx, ctx context.Context, reg *models.Registration) error,
) (*models.Registration, error) {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	var out *models.Registration
	err := s.store.RunInTx(ctx, func(tx repository.RegistrationTx) error {
		reg, err := tx.GetRegistrationForUpdate(ctx, id)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && reg.Deleted) {
			return notFoundError("Registration not found")
		}
		if err != nil {
			return storeUnavailable(err)
		}

		entry, err := change(reg)
		if err != nil {
			return err
		}

		var lastAt *time.Time
		last, err := tx.LastStatusHistory(ctx, id)
		switch {
		case err == nil:
			lastAt = &last.CreatedAt
		case !errors.Is(err, sql.ErrNoRows):
			return storeUnavailable(err)
		}

		now := s.now()
		entry.RegistrationID = id
		entry.CreatedAt = models.NextHistoryTimestamp(lastAt, now)
		reg.UpdatedAt = entry.CreatedAt

		if err := write(tx, ctx, reg); err != nil {
			return storeUnavailable(err)
		}
		if err := tx.AppendStatusHistory(ctx, entry); err != nil {
			return storeUnavailable(err)
		}
		out = reg
		return nil
	})
	if err != nil {
		var re *RegistrationError
		if !errors.As(err, &re) {
			err = storeUnavailable(err)
		}
		return nil, err
	}
	return out, nil
}

// afterChange runs the side effects of a committed review action.
func (s *ReviewService) afterChange(ctx context.Context, reg *models.Registration, actor models.Actor, note string) {
	log.Info().
		Str("registration_id", reg.ID).
		Str("status", string(reg.Status)).
		Str("actor", actor.AccountID).
		Msg("Registration status changed")

	s.invalidate(ctx, reg.AccountID)
	if s.queue != nil {
		n := &models.Notification{
			RegistrationID: reg.ID,
			Recipient:      reg.Email,
			Subject:        "Registration Status Update - CID: " + reg.CommunityID,
			Body: fmt.Sprintf("Hello %s, the status of your registration %s is now %s.\n\n%s",
				reg.FirstName, reg.ReferenceNumber, reg.Status.Label(), note),
		}
		if err := s.queue.Enqueue(ctx, n); err != nil {
			log.Warn().Err(err).Str("registration_id", reg.ID).Msg("Failed to queue status notification")
		}
	}
	s.notifier.NotifyRegistrationStatusChanged(reg, actor.AccountID)
}

func (s *ReviewService) invalidate(ctx context.Context, accountID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateStatus(ctx, accountID); err != nil {
		log.Warn().Err(err).Str("account_id", accountID).Msg("Failed to invalidate registration status cache")
	}
}

// FlaggedDuplicates lists registrations awaiting duplicate review.
func (s *ReviewService) FlaggedDuplicates(ctx context.Context, page, limit int) (*repository.RegistrationPage, error) {
	flagged := true
	return s.ListRegistrations(ctx, &repository.RegistrationFilter{DuplicateFlag: &flagged, Page: page, Limit: limit})
}

// DuplicateStatistics summarises the duplicate review queue.
func (s *ReviewService) DuplicateStatistics(ctx context.Context) (*models.DuplicateStats, error) {
	if s.cache != nil {
		stats, err := s.cache.GetDuplicateStats(ctx)
		if err == nil {
			return stats, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warn().Err(err).Msg("Duplicate statistics cache read failed")
		}
	}

	sctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	stats, err := s.store.DuplicateStats(sctx)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	if s.cache != nil {
		if err := s.cache.SetDuplicateStats(ctx, stats); err != nil {
			log.Warn().Err(err).Msg("Failed to cache duplicate statistics")
		}
	}
	return stats, nil
}

// StatusHistory returns one page of a registration's history, oldest first.
func (s *ReviewService) StatusHistory(ctx context.Context, id string, page, limit int) ([]models.StatusHistoryEntry, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	if _, err := s.store.GetByID(ctx, id); errors.Is(err, sql.ErrNoRows) {
		return nil, 0, notFoundError("Registration not found")
	} else if err != nil {
		return nil, 0, storeUnavailable(err)
	}
	entries, err := s.store.ListStatusHistory(ctx, id)
	if err != nil {
		return nil, 0, storeUnavailable(err)
	}

	total := len(entries)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return append([]models.StatusHistoryEntry{}, entries[start:end]...), total, nil
}

// DeleteRegistration soft-deletes a registration. Its Community ID stays
// reserved and its address and household entries are kept.
func (s *ReviewService) DeleteRegistration(ctx context.Context, actor models.Actor, id string) error {
	ctx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	var accountID string
	err := s.store.RunInTx(ctx, func(tx repository.RegistrationTx) error {
		reg, err := tx.GetRegistrationForUpdate(ctx, id)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && reg.Deleted) {
			return notFoundError("Registration not found")
		}
		if err != nil {
			return storeUnavailable(err)
		}
		accountID = reg.AccountID
		if err := tx.SoftDeleteRegistration(ctx, id, actor.AccountID, s.now().UTC()); err != nil {
			return storeUnavailable(err)
		}
		return nil
	})
	if err != nil {
		var re *RegistrationError
		if !errors.As(err, &re) {
			err = storeUnavailable(err)
		}
		return err
	}

	log.Info().Str("registration_id", id).Str("actor", actor.AccountID).Msg("Registration deleted")
	s.metrics.IncReviewAction("delete")
	s.invalidate(ctx, accountID)
	return nil
}
