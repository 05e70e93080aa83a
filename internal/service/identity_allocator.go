package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GTDGit/registry_api/internal/metrics"
	"github.com/GTDGit/registry_api/internal/models"
	"github.com/GTDGit/registry_api/internal/repository"
)

// HouseholdPolicy decides which household a new registrant joins.
type HouseholdPolicy string

const (
	// HouseholdPolicyNew opens a new household for every registrant.
	HouseholdPolicyNew HouseholdPolicy = "new"
	// HouseholdPolicyShared adds registrants at an address to its latest household.
	HouseholdPolicyShared HouseholdPolicy = "shared"
)

// ParseHouseholdPolicy maps a configuration value to a policy. Empty means new.
func ParseHouseholdPolicy(s string) (HouseholdPolicy, error) {
	switch HouseholdPolicy(s) {
	case "", HouseholdPolicyNew:
		return HouseholdPolicyNew, nil
	case HouseholdPolicyShared:
		return HouseholdPolicyShared, nil
	}
	return "", fmt.Errorf("unknown household policy %q", s)
}

// AllocationRequest carries the address details a Community ID is issued for.
type AllocationRequest struct {
	ZipCode      string
	AddressKey   string
	Street       string
	Barangay     string
	City         string
	Region       string
	HeadOfFamily string
}

// IdentityAllocator issues Community IDs from the zip, address and household
// counters. It must run inside the transaction that persists the registration.
type IdentityAllocator struct {
	policy  HouseholdPolicy
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewIdentityAllocator creates an allocator using the given household policy.
func NewIdentityAllocator(policy HouseholdPolicy, m *metrics.Metrics) *IdentityAllocator {
	if policy == "" {
		policy = HouseholdPolicyNew
	}
	return &IdentityAllocator{policy: policy, metrics: m, now: time.Now}
}

// Allocate issues the next Community ID for req. Any failure is returned as a
// retryable ALLOCATION_FAILED error; the caller's transaction must then roll back.
func (a *IdentityAllocator) Allocate(ctx context.Context, tx repository.AllocationStore, req AllocationRequest) (models.CommunityID, error) {
	start := time.Now()
	defer func() { a.metrics.ObserveAllocation(time.Since(start)) }()

	cid, err := a.allocate(ctx, tx, req)
	if err != nil {
		code := "store"
		if errors.Is(err, models.ErrSequenceExhausted) {
			code = "exhausted"
		}
		a.metrics.IncAllocationFailure(code)
		return models.CommunityID{}, allocationFailed(err)
	}
	return cid, nil
}

func (a *IdentityAllocator) allocate(ctx context.Context, tx repository.AllocationStore, req AllocationRequest) (models.CommunityID, error) {
	if err := tx.LockAddress(ctx, req.ZipCode, req.AddressKey); err != nil {
		return models.CommunityID{}, err
	}

	addr, err := a.resolveAddress(ctx, tx, req)
	if err != nil {
		return models.CommunityID{}, err
	}

	hh, err := a.resolveHousehold(ctx, tx, addr, req.HeadOfFamily)
	if err != nil {
		return models.CommunityID{}, err
	}

	ind, err := tx.NextIndividualSeq(ctx, req.ZipCode, addr.AddressSeq, hh.HouseholdSeq)
	if err != nil {
		return models.CommunityID{}, err
	}

	cid := models.CommunityID{
		Zip:        req.ZipCode,
		Address:    addr.AddressSeq,
		Household:  hh.HouseholdSeq,
		Individual: ind,
	}
	if err := cid.Validate(); err != nil {
		return models.CommunityID{}, err
	}
	return cid, nil
}

func (a *IdentityAllocator) resolveAddress(ctx context.Context, tx repository.AllocationStore, req AllocationRequest) (*models.AddressIndex, error) {
	addr, err := tx.GetAddress(ctx, req.ZipCode, req.AddressKey)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get address: %w", err)
	}

	seq, err := tx.NextAddressSeq(ctx, req.ZipCode)
	if err != nil {
		return nil, err
	}
	addr = &models.AddressIndex{
		ZipCode:    req.ZipCode,
		AddressSeq: seq,
		AddressKey: req.AddressKey,
		Street:     req.Street,
		Barangay:   req.Barangay,
		City:       req.City,
		Region:     req.Region,
		CreatedAt:  a.now().UTC(),
	}
	if err := tx.CreateAddress(ctx, addr); err != nil {
		return nil, err
	}
	return addr, nil
}

func (a *IdentityAllocator) resolveHousehold(ctx context.Context, tx repository.AllocationStore, addr *models.AddressIndex, head string) (*models.HouseholdIndex, error) {
	if a.policy == HouseholdPolicyShared {
		hh, err := tx.GetLatestHousehold(ctx, addr.ZipCode, addr.AddressSeq)
		if err == nil {
			return hh, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("get household: %w", err)
		}
	}

	seq, err := tx.NextHouseholdSeq(ctx, addr.ZipCode, addr.AddressSeq)
	if err != nil {
		return nil, err
	}
	hh := &models.HouseholdIndex{
		ZipCode:      addr.ZipCode,
		AddressSeq:   addr.AddressSeq,
		HouseholdSeq: seq,
		HeadOfFamily: head,
		CreatedAt:    a.now().UTC(),
	}
	if err := tx.CreateHousehold(ctx, hh); err != nil {
		return nil, err
	}
	return hh, nil
}
