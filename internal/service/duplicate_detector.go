package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
)

// DuplicateDetector compares a candidate registration against existing
// records using the fixed set of match rules.
type DuplicateDetector struct {
	store   repository.DuplicateFinder
	timeout time.Duration
	metrics *metrics.Metrics
}

// NewDuplicateDetector creates a detector. timeout bounds the whole fan-out.
func NewDuplicateDetector(store repository.DuplicateFinder, timeout time.Duration, m *metrics.Metrics) *DuplicateDetector {
	return &DuplicateDetector{store: store, timeout: timeout, metrics: m}
}

// Detect runs every rule concurrently and returns the matches in rule order,
// then by matched record id. A record matched by several rules appears once
// per rule.
//
// Detection never blocks a submission: if any rule fails or the deadline
// passes, the failure is logged and counted and an empty result is returned.
func (d *DuplicateDetector) Detect(ctx context.Context, in *models.RegistrationInput, excludeAccountID string) []models.DuplicateMatch {
	start := time.Now()
	defer func() { d.metrics.ObserveDetection(time.Since(start)) }()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	criteria := in.Criteria(excludeAccountID)
	results := make([][]string, len(models.MatchRules))

	g, gctx := errgroup.WithContext(ctx)
	for i, rule := range models.MatchRules {
		g.Go(func() error {
			ids, err := d.store.FindDuplicates(gctx, rule, criteria)
			if err != nil {
				return &RegistrationError{
					Code:    ErrCodeDetectionUnavail,
					Message: "duplicate rule " + string(rule) + " failed",
					Err:     err,
				}
			}
			sort.Strings(ids)
			results[i] = ids
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).
			Str("account_id", excludeAccountID).
			Str("barangay", criteria.Barangay).
			Msg("Duplicate detection unavailable, submission continues unflagged")
		d.metrics.IncDetectionUnavailable()
		return nil
	}

	var matches []models.DuplicateMatch
	for i, rule := range models.MatchRules {
		for _, id := range results[i] {
			matches = append(matches, models.DuplicateMatch{MatchedRecordID: id, Reason: rule})
			d.metrics.IncDuplicateMatch(string(rule))
		}
	}
	return matches
}
