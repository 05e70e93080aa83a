package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
)

const (
	commonwealthCity   = "137404000"
	commonwealthBrgy   = "137404101"
	ncrRegion          = "130000000"
	commonwealthPostal = "1121"
)

// fakeArea serves one city and resolves every barangay to zip.
type fakeArea struct {
	city string
	zip  string
	err  error
}

func (f *fakeArea) IsServiceArea(ctx context.Context, barangayCode, cityCode string) (bool, error) {
	return cityCode == f.city, f.err
}

func (f *fakeArea) ResolveZip(ctx context.Context, barangayCode, submitted string) (string, error) {
	return f.zip, f.err
}

// failingStore wraps the memory store and fails selected operations.
type failingStore struct {
	*repository.MemoryRegistrationStore
	findErr    error
	counterErr error
}

func (s *failingStore) FindDuplicates(ctx context.Context, rule models.MatchReason, c models.DuplicateCriteria) ([]string, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.MemoryRegistrationStore.FindDuplicates(ctx, rule, c)
}

func (s *failingStore) RunInTx(ctx context.Context, fn func(tx repository.RegistrationTx) error) error {
	return s.MemoryRegistrationStore.RunInTx(ctx, func(tx repository.RegistrationTx) error {
		return fn(&failingTx{RegistrationTx: tx, counterErr: s.counterErr})
	})
}

type failingTx struct {
	repository.RegistrationTx
	counterErr error
}

func (t *failingTx) NextAddressSeq(ctx context.Context, zipCode string) (int, error) {
	if t.counterErr != nil {
		return 0, t.counterErr
	}
	return t.RegistrationTx.NextAddressSeq(ctx, zipCode)
}

// recordingQueue captures queued notifications.
type recordingQueue struct {
	mu    sync.Mutex
	items []models.Notification
}

func (q *recordingQueue) Enqueue(ctx context.Context, n *models.Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, *n)
	return nil
}

func (q *recordingQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.items))
	for i, n := range q.items {
		out[i] = n.Subject
	}
	return out
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func validInput(first, last, email, street string) *models.RegistrationInput {
	return &models.RegistrationInput{
		FirstName:       first,
		LastName:        last,
		BirthDate:       "1990-05-14",
		Email:           email,
		Phone:           "09171234567",
		PresentStreet:   street,
		PresentBarangay: commonwealthBrgy,
		PresentCity:     commonwealthCity,
		PresentRegion:   ncrRegion,
	}
}

func actor(id string) models.Actor {
	return models.Actor{AccountID: id, Email: id + "@example.ph", Role: "resident"}
}

func admin() models.Actor {
	return models.Actor{AccountID: "admin-1", Email: "admin@example.ph", Role: "admin"}
}

type serviceFixture struct {
	store    repository.RegistrationStore
	memory   *repository.MemoryRegistrationStore
	metrics  *metrics.Metrics
	queue    *recordingQueue
	register *RegistrationService
	review   *ReviewService
}

func newFixture(t *testing.T, policy HouseholdPolicy) *serviceFixture {
	t.Helper()
	mem := repository.NewMemoryRegistrationStore()
	return newFixtureWithStore(t, mem, mem, policy)
}

func newFixtureWithStore(t *testing.T, store repository.RegistrationStore, mem *repository.MemoryRegistrationStore, policy HouseholdPolicy) *serviceFixture {
	t.Helper()
	m := testMetrics()
	q := &recordingQueue{}
	reg := NewRegistrationService(RegistrationServiceDeps{
		Store:        store,
		Detector:     NewDuplicateDetector(store, time.Second, m),
		Allocator:    NewIdentityAllocator(policy, m),
		Area:         &fakeArea{city: commonwealthCity, zip: commonwealthPostal},
		Queue:        q,
		Metrics:      m,
		StoreTimeout: time.Second,
	})
	rev := NewReviewService(store, nil, q, nil, m, time.Second)
	return &serviceFixture{store: store, memory: mem, metrics: m, queue: q, register: reg, review: rev}
}

func (f *serviceFixture) submit(t *testing.T, account string, in *models.RegistrationInput) *models.SubmissionResult {
	t.Helper()
	res, err := f.register.SubmitRegistration(context.Background(), actor(account), in)
	require.NoError(t, err)
	return res
}

func requireCode(t *testing.T, err error, code string) *RegistrationError {
	t.Helper()
	require.Error(t, err)
	var re *RegistrationError
	require.True(t, errors.As(err, &re), "expected RegistrationError, got %v", err)
	require.Equal(t, code, re.Code)
	return re
}

func repositoryFilterWithStatus(status string) *repository.RegistrationFilter {
	return &repository.RegistrationFilter{Status: &status}
}
