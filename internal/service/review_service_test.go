package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/models"
)

// flaggedPair submits A and a B that duplicates A, returning B's id.
func flaggedPair(t *testing.T, f *serviceFixture) (string, string) {
	t.Helper()
	a := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	b := f.submit(t, "acct-b", validInput("Pedro", "Reyes", "pedro@example.ph", "12 Mapayapa St"))
	require.True(t, b.DuplicateFlag)
	return a.RegistrationID, b.RegistrationID
}

func TestResolveDuplicateFlag_ApproveClearsFlagAndKeepsMatches(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	aID, bID := flaggedPair(t, f)

	reg, err := f.review.ResolveDuplicateFlag(ctx, admin(), bID, models.ResolveApprove, "Different person, verified by barangay")
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, reg.Status)
	assert.False(t, reg.DuplicateFlag)
	assert.Empty(t, reg.DuplicateReasons)
	require.NotNil(t, reg.DuplicateResolvedBy)
	assert.Equal(t, "admin-1", *reg.DuplicateResolvedBy)

	got, err := f.review.GetRegistration(ctx, bID)
	require.NoError(t, err)
	assert.False(t, got.DuplicateFlag)
	require.Len(t, got.Matches, 1)
	assert.Equal(t, aID, got.Matches[0].MatchedRecordID)

	history, total, err := f.review.StatusHistory(ctx, bID, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 2, total)
	last := history[1]
	assert.Equal(t, "Duplicate flag resolved - Approved by admin: Different person, verified by barangay", last.Note)
	assert.True(t, last.ResolvedDuplicateFlag)
	require.NotNil(t, last.PreviousStatus)
	assert.Equal(t, models.StatusFlaggedDuplicate, *last.PreviousStatus)

	stats, err := f.review.DuplicateStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.DuplicateStats{TotalFlagged: 1, TotalResolved: 1, PendingReview: 0}, *stats)

	assert.Contains(t, f.queue.subjects(), "Registration Status Update - CID: "+reg.CommunityID)
}

func TestResolveDuplicateFlag_Rejections(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	aID, bID := flaggedPair(t, f)

	_, err := f.review.ResolveDuplicateFlag(ctx, admin(), aID, models.ResolveApprove, "")
	requireCode(t, err, ErrCodeInvalidTransition)

	_, err = f.review.ResolveDuplicateFlag(ctx, admin(), bID, models.ResolveAction("merge"), "")
	requireCode(t, err, ErrCodeValidation)

	_, err = f.review.ResolveDuplicateFlag(ctx, admin(), "missing", models.ResolveReject, "")
	requireCode(t, err, ErrCodeNotFound)
}

func TestResolveDuplicateFlag_PendingReturnsToQueue(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	_, bID := flaggedPair(t, f)

	reg, err := f.review.ResolveDuplicateFlag(context.Background(), admin(), bID, models.ResolvePending, "")
	require.NoError(t, err)

	assert.Equal(t, models.StatusPendingReview, reg.Status)
	history, _, err := f.review.StatusHistory(context.Background(), bID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, "Duplicate flag resolved - Returned to pending review by admin", history[len(history)-1].Note)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	aID, bID := flaggedPair(t, f)

	_, err := f.review.UpdateStatus(ctx, admin(), bID, models.StatusApproved, "")
	requireCode(t, err, ErrCodeInvalidTransition)

	_, err = f.review.UpdateStatus(ctx, admin(), aID, models.StatusFlaggedDuplicate, "")
	requireCode(t, err, ErrCodeInvalidTransition)

	_, err = f.review.UpdateStatus(ctx, admin(), aID, models.StatusPendingReview, "")
	requireCode(t, err, ErrCodeInvalidTransition)

	_, err = f.review.UpdateStatus(ctx, admin(), aID, models.RegistrationStatus("Archived"), "")
	requireCode(t, err, ErrCodeValidation)

	reg, err := f.review.UpdateStatus(ctx, admin(), aID, models.StatusApproved, "Documents complete")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, reg.Status)
	assert.Equal(t, "1121-00001-01-01", reg.CommunityID)
}

func TestUpdateStatus_HistoryTimestampsStrictlyIncrease(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	frozen := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.register.now = func() time.Time { return frozen }
	f.review.now = func() time.Time { return frozen }

	a := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	for _, st := range []models.RegistrationStatus{models.StatusInReview, models.StatusRejected, models.StatusInReview} {
		_, err := f.review.UpdateStatus(ctx, admin(), a.RegistrationID, st, "")
		require.NoError(t, err)
	}

	history, total, err := f.review.StatusHistory(ctx, a.RegistrationID, 1, 50)
	require.NoError(t, err)
	require.Equal(t, 4, total)
	for i := 1; i < len(history); i++ {
		assert.True(t, history[i].CreatedAt.After(history[i-1].CreatedAt), "entry %d", i)
	}
}

func TestUpdateRegistrationData_ResetsToInReview(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	a := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	_, err := f.review.UpdateStatus(ctx, admin(), a.RegistrationID, models.StatusApproved, "")
	require.NoError(t, err)

	phone := "09998887777"
	reg, err := f.review.UpdateRegistrationData(ctx, admin(), a.RegistrationID, &models.RegistrationUpdate{Phone: &phone})
	require.NoError(t, err)

	assert.Equal(t, models.StatusInReview, reg.Status)
	assert.Equal(t, phone, reg.Phone)
	assert.Equal(t, a.CommunityID, reg.CommunityID)

	history, _, err := f.review.StatusHistory(ctx, a.RegistrationID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, "Data updated - requires re-review", history[len(history)-1].Note)

	_, err = f.review.UpdateRegistrationData(ctx, admin(), a.RegistrationID, &models.RegistrationUpdate{})
	requireCode(t, err, ErrCodeValidation)

	bad := "12345"
	_, err = f.review.UpdateRegistrationData(ctx, admin(), a.RegistrationID, &models.RegistrationUpdate{Phone: &bad})
	re := requireCode(t, err, ErrCodeValidation)
	assert.Equal(t, "phone", re.Field)
}

func TestDeleteRegistration(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	aID, _ := flaggedPair(t, f)

	require.NoError(t, f.review.DeleteRegistration(ctx, admin(), aID))
	requireCode(t, f.review.DeleteRegistration(ctx, admin(), aID), ErrCodeNotFound)

	_, err := f.review.UpdateStatus(ctx, admin(), aID, models.StatusApproved, "")
	requireCode(t, err, ErrCodeNotFound)

	reg, err := f.review.GetRegistration(ctx, aID)
	require.NoError(t, err)
	assert.True(t, reg.Deleted)

	page, err := f.review.ListRegistrations(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)
}

func TestFlaggedDuplicatesAndListFilters(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	_, bID := flaggedPair(t, f)

	page, err := f.review.FlaggedDuplicates(ctx, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Registrations, 1)
	assert.Equal(t, bID, page.Registrations[0].ID)

	bogus := "Archived"
	_, err = f.review.ListRegistrations(ctx, nil)
	require.NoError(t, err)
	_, err = f.review.ListRegistrations(ctx, repositoryFilterWithStatus(bogus))
	requireCode(t, err, ErrCodeValidation)
}
