package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
)

var cidPattern = regexp.MustCompile(`^\d{4}-\d{5}-\d{2}-\d{2}$`)

func allocRequest(street string) AllocationRequest {
	return AllocationRequest{
		ZipCode:      commonwealthPostal,
		AddressKey:   models.AddressKey(street, commonwealthBrgy, commonwealthCity, ncrRegion),
		Street:       street,
		Barangay:     commonwealthBrgy,
		City:         commonwealthCity,
		Region:       ncrRegion,
		HeadOfFamily: "Juan Dela Cruz",
	}
}

func allocate(t *testing.T, store *repository.MemoryRegistrationStore, a *IdentityAllocator, req AllocationRequest) string {
	t.Helper()
	var cid models.CommunityID
	err := store.RunInTx(context.Background(), func(tx repository.RegistrationTx) error {
		var err error
		cid, err = a.Allocate(context.Background(), tx, req)
		return err
	})
	require.NoError(t, err)
	return cid.String()
}

func TestAllocate_NewHouseholdPolicy(t *testing.T) {
	store := repository.NewMemoryRegistrationStore()
	a := NewIdentityAllocator(HouseholdPolicyNew, nil)

	got := []string{
		allocate(t, store, a, allocRequest("12 Mapayapa St")),
		allocate(t, store, a, allocRequest("12 mapayapa st")),
		allocate(t, store, a, allocRequest("12 Mapayapa St")),
		allocate(t, store, a, allocRequest("40 Ilang-Ilang St")),
	}

	assert.Equal(t, []string{
		"1121-00001-01-01",
		"1121-00001-02-01",
		"1121-00001-03-01",
		"1121-00002-01-01",
	}, got)
}

func TestAllocate_SharedHouseholdPolicy(t *testing.T) {
	store := repository.NewMemoryRegistrationStore()
	a := NewIdentityAllocator(HouseholdPolicyShared, nil)

	got := []string{
		allocate(t, store, a, allocRequest("12 Mapayapa St")),
		allocate(t, store, a, allocRequest("12 Mapayapa St")),
		allocate(t, store, a, allocRequest("12 Mapayapa St")),
	}

	assert.Equal(t, []string{"1121-00001-01-01", "1121-00001-01-02", "1121-00001-01-03"}, got)
}

func TestAllocate_ConcurrentAllocationsAreDistinct(t *testing.T) {
	store := repository.NewMemoryRegistrationStore()
	a := NewIdentityAllocator(HouseholdPolicyShared, nil)

	const workers = 60
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool)
		errs []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Three addresses so workers contend on the same lock and on the zip counter.
			req := allocRequest(fmt.Sprintf("%d Mapayapa St", i%3))
			err := store.RunInTx(context.Background(), func(tx repository.RegistrationTx) error {
				cid, err := a.Allocate(context.Background(), tx, req)
				if err != nil {
					return err
				}
				mu.Lock()
				defer mu.Unlock()
				if seen[cid.String()] {
					return fmt.Errorf("duplicate community id %s", cid)
				}
				seen[cid.String()] = true
				return nil
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, seen, workers)
	for cid := range seen {
		assert.Regexp(t, cidPattern, cid)
	}
}

func TestAllocate_StoreFailureIsRetryable(t *testing.T) {
	mem := repository.NewMemoryRegistrationStore()
	store := &failingStore{MemoryRegistrationStore: mem, counterErr: errors.New("i/o timeout")}
	m := testMetrics()
	a := NewIdentityAllocator(HouseholdPolicyNew, m)

	err := store.RunInTx(context.Background(), func(tx repository.RegistrationTx) error {
		_, err := a.Allocate(context.Background(), tx, allocRequest("12 Mapayapa St"))
		return err
	})

	re := requireCode(t, err, ErrCodeAllocationFailed)
	assert.True(t, re.Retryable)
	assert.ErrorContains(t, err, "i/o timeout")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AllocationFailures.WithLabelValues("store")))
}

func TestAllocate_HouseholdRangeExhausted(t *testing.T) {
	store := repository.NewMemoryRegistrationStore()
	a := NewIdentityAllocator(HouseholdPolicyNew, nil)
	req := allocRequest("12 Mapayapa St")

	for i := 0; i < models.MaxHouseholdSeq; i++ {
		allocate(t, store, a, req)
	}
	err := store.RunInTx(context.Background(), func(tx repository.RegistrationTx) error {
		_, err := a.Allocate(context.Background(), tx, req)
		return err
	})

	requireCode(t, err, ErrCodeAllocationFailed)
	assert.ErrorIs(t, err, models.ErrSequenceExhausted)
}

func TestParseHouseholdPolicy(t *testing.T) {
	p, err := ParseHouseholdPolicy("")
	require.NoError(t, err)
	assert.Equal(t, HouseholdPolicyNew, p)

	p, err = ParseHouseholdPolicy("shared")
	require.NoError(t, err)
	assert.Equal(t, HouseholdPolicyShared, p)

	_, err = ParseHouseholdPolicy("family")
	assert.Error(t, err)
}
