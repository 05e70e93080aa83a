package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/cache"
	"github.com/GTDGit/registry_api/internal/config"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
)

func TestSubmitRegistration_DuplicateIsFlaggedNotRejected(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()

	a := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	assert.Equal(t, models.StatusPendingReview, a.Status)
	assert.False(t, a.DuplicateFlag)
	assert.Empty(t, a.DuplicateReasons)
	assert.Equal(t, "1121-00001-01-01", a.CommunityID)

	b := f.submit(t, "acct-b", validInput("Pedro", "Reyes", "pedro@example.ph", "12 Mapayapa St"))
	assert.Equal(t, models.StatusFlaggedDuplicate, b.Status)
	assert.True(t, b.DuplicateFlag)
	assert.Equal(t, models.MatchReasons{models.MatchSameAddressBirthDate}, b.DuplicateReasons)
	assert.Equal(t, "1121-00001-02-01", b.CommunityID)
	assert.Regexp(t, `^REG-\d{8}-[0-9A-F]{8}$`, b.ReferenceNumber)

	matches, err := f.store.ListDuplicateMatches(ctx, b.RegistrationID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, a.RegistrationID, matches[0].MatchedRecordID)

	history, err := f.store.ListStatusHistory(ctx, b.RegistrationID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Registration flagged as potential duplicate: Same address and birth date", history[0].Note)
	assert.Equal(t, models.StatusFlaggedDuplicate, history[0].Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("flagged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("pending_review")))
	assert.Equal(t, []string{
		"Registration Received - CID: 1121-00001-01-01",
		"Registration Received - CID: 1121-00001-02-01",
	}, f.queue.subjects())
}

func TestSubmitRegistration_FlagMatchesReasons(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	f.submit(t, "acct-b", validInput("Pedro", "Reyes", "pedro@example.ph", "12 Mapayapa St"))
	f.submit(t, "acct-c", validInput("Ana", "Lim", "ana@example.ph", "3 Sampaguita St"))

	page, err := f.store.List(context.Background(), &repository.RegistrationFilter{})
	require.NoError(t, err)
	require.Len(t, page.Registrations, 3)
	for _, r := range page.Registrations {
		assert.Equal(t, len(r.DuplicateReasons) > 0, r.DuplicateFlag, r.ID)
	}
}

func TestSubmitRegistration_Validation(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(in *models.RegistrationInput)
		field  string
	}{
		{"missing first name", func(in *models.RegistrationInput) { in.FirstName = "  " }, "firstName"},
		{"bad email", func(in *models.RegistrationInput) { in.Email = "not-an-email" }, "email"},
		{"bad phone", func(in *models.RegistrationInput) { in.Phone = "9171234567" }, "phone"},
		{"bad birth date", func(in *models.RegistrationInput) { in.BirthDate = "14/05/1990" }, "birthDate"},
		{"future birth date", func(in *models.RegistrationInput) { in.BirthDate = "2999-01-01" }, "birthDate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St")
			tc.mutate(in)

			_, err := f.register.SubmitRegistration(ctx, actor("acct-a"), in)

			re := requireCode(t, err, ErrCodeValidation)
			assert.Equal(t, tc.field, re.Field)
			assert.False(t, re.Retryable)
		})
	}

	_, err := f.store.GetActiveByAccountID(ctx, "acct-a")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSubmitRegistration_AlreadyRegistered(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

	_, err := f.register.SubmitRegistration(ctx, actor("acct-a"),
		validInput("Juan", "Dela Cruz", "other@example.ph", "7 Maginhawa St"))
	re := requireCode(t, err, ErrCodeAlreadyRegistered)
	assert.Empty(t, re.Field)
}

func TestSubmitRegistration_ReusedEmailIsFlagged(t *testing.T) {
	cases := []struct {
		name    string
		street  string
		reasons models.MatchReasons
	}{
		{
			name:    "same address",
			street:  "12 Mapayapa St",
			reasons: models.MatchReasons{models.MatchSameAddressBirthDate, models.MatchSameAddressEmailBirthDate},
		},
		{
			name:    "different address",
			street:  "7 Maginhawa St",
			reasons: models.MatchReasons{models.MatchSameBirthDateEmail},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, HouseholdPolicyNew)
			ctx := context.Background()
			a := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

			b := f.submit(t, "acct-b", validInput("Pedro", "Reyes", "Juan@Example.ph", tc.street))

			assert.True(t, b.DuplicateFlag)
			assert.Equal(t, models.StatusFlaggedDuplicate, b.Status)
			assert.Equal(t, tc.reasons, b.DuplicateReasons)

			matches, err := f.store.ListDuplicateMatches(ctx, b.RegistrationID)
			require.NoError(t, err)
			require.Len(t, matches, len(tc.reasons))
			for _, m := range matches {
				assert.Equal(t, a.RegistrationID, m.MatchedRecordID)
			}

			stored, err := f.store.GetActiveByAccountID(ctx, "acct-b")
			require.NoError(t, err)
			assert.Equal(t, "juan@example.ph", stored.Email)
		})
	}
}

func TestSubmitRegistration_OutsideServiceArea(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	in := validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St")
	in.PresentCity = "133900000"

	_, err := f.register.SubmitRegistration(context.Background(), actor("acct-a"), in)

	re := requireCode(t, err, ErrCodeOutsideServiceArea)
	assert.Equal(t, "presentBarangay", re.Field)
}

func TestSubmitRegistration_AllocationFailurePersistsNothing(t *testing.T) {
	mem := repository.NewMemoryRegistrationStore()
	store := &failingStore{MemoryRegistrationStore: mem, counterErr: errors.New("deadline exceeded")}
	f := newFixtureWithStore(t, store, mem, HouseholdPolicyNew)
	ctx := context.Background()

	_, err := f.register.SubmitRegistration(ctx, actor("acct-a"),
		validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

	re := requireCode(t, err, ErrCodeAllocationFailed)
	assert.True(t, re.Retryable)

	_, err = mem.GetActiveByAccountID(ctx, "acct-a")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	page, err := mem.List(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)
	assert.Empty(t, f.queue.subjects())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Submissions.WithLabelValues("allocation_failed")))
}

func TestSubmitRegistration_DetectionOutageStillRegisters(t *testing.T) {
	mem := repository.NewMemoryRegistrationStore()
	healthy := newFixtureWithStore(t, mem, mem, HouseholdPolicyNew)
	healthy.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

	store := &failingStore{MemoryRegistrationStore: mem, findErr: errors.New("too many connections")}
	f := newFixtureWithStore(t, store, mem, HouseholdPolicyNew)

	res := f.submit(t, "acct-b", validInput("Pedro", "Reyes", "pedro@example.ph", "12 Mapayapa St"))

	assert.False(t, res.DuplicateFlag)
	assert.Equal(t, models.StatusPendingReview, res.Status)
	assert.Equal(t, "1121-00001-02-01", res.CommunityID)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DetectionFailures))
}

func TestSubmitRegistration_ResubmitAfterDeleteGetsNewCID(t *testing.T) {
	f := newFixture(t, HouseholdPolicyNew)
	ctx := context.Background()
	first := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))
	require.NoError(t, f.review.DeleteRegistration(ctx, admin(), first.RegistrationID))

	second := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

	assert.False(t, second.DuplicateFlag)
	assert.NotEqual(t, first.CommunityID, second.CommunityID)
}

func TestGetMyRegistration_CachesStatusView(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rc, err := cache.NewRedisClient(&config.RedisConfig{Host: mr.Host(), Port: mr.Port()})
	require.NoError(t, err)
	defer rc.Close()
	regCache := cache.NewRegistrationCache(rc, time.Minute, time.Minute)

	f := newFixture(t, HouseholdPolicyNew)
	f.register.cache = regCache
	f.review.cache = regCache
	ctx := context.Background()

	_, err = f.register.GetMyRegistration(ctx, "acct-a")
	requireCode(t, err, ErrCodeNotFound)

	res := f.submit(t, "acct-a", validInput("Juan", "Dela Cruz", "juan@example.ph", "12 Mapayapa St"))

	view, err := f.register.GetMyRegistration(ctx, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, res.CommunityID, view.CommunityID)
	assert.Equal(t, "Juan Dela Cruz", view.FullName)
	assert.Equal(t, "Pending Review", view.StatusLabel)
	assert.True(t, mr.Exists("registry:status:acct-a"))

	_, err = f.review.UpdateStatus(ctx, admin(), res.RegistrationID, models.StatusInReview, "")
	require.NoError(t, err)
	assert.False(t, mr.Exists("registry:status:acct-a"))

	view, err = f.register.GetMyRegistration(ctx, "acct-a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInReview, view.Status)
	assert.Len(t, view.History, 2)
}
