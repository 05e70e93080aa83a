package repository

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GTDGit/registry_api/internal/models"
)

// numLockShards is the number of lock shards used by MemoryRegistrationStore
// for address and row locks.
const numLockShards = 64

// MemoryRegistrationStore is an in-process RegistrationStore used by service
// and handler tests; the API binary always runs on PostgreSQL. Address and
// row locks are sharded semaphores held until the transaction ends. Counters
// behave like database sequences and are not rolled back, so an aborted
// transaction can leave a gap but never a reused value.
type MemoryRegistrationStore struct {
	mu     sync.RWMutex
	shards [numLockShards]chan struct{}

	registrations   map[string]*models.Registration
	addressCounters map[string]int
	addresses       map[string]*models.AddressIndex
	households      map[string]*models.HouseholdIndex
	history         map[string][]models.StatusHistoryEntry
	matches         map[string][]models.DuplicateMatch
	historySeq      int64
}

// NewMemoryRegistrationStore creates an empty store.
func NewMemoryRegistrationStore() *MemoryRegistrationStore {
	s := &MemoryRegistrationStore{
		registrations:   make(map[string]*models.Registration),
		addressCounters: make(map[string]int),
		addresses:       make(map[string]*models.AddressIndex),
		households:      make(map[string]*models.HouseholdIndex),
		history:         make(map[string][]models.StatusHistoryEntry),
		matches:         make(map[string][]models.DuplicateMatch),
	}
	for i := range s.shards {
		s.shards[i] = make(chan struct{}, 1)
	}
	return s
}

// RunInTx runs fn and undoes its row writes if fn returns an error. Writes are
// visible to other readers as soon as they are made, not at commit; only the
// address and row locks isolate concurrent transactions.
func (s *MemoryRegistrationStore) RunInTx(ctx context.Context, fn func(tx RegistrationTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	tx := &memoryTx{store: s, held: make(map[int]bool)}
	defer tx.release()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// FindDuplicates evaluates one rule against active registrations.
func (s *MemoryRegistrationStore) FindDuplicates(ctx context.Context, rule models.MatchReason, c models.DuplicateCriteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !rule.Valid() {
		return nil, fmt.Errorf("unknown duplicate rule %q", rule)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, r := range s.registrations {
		if r.Deleted || r.AccountID == c.ExcludeAccountID || r.BirthDate != c.BirthDate {
			continue
		}
		sameAddress := r.StreetKey == c.StreetKey && r.PresentBarangay == c.Barangay
		var hit bool
		switch rule {
		case models.MatchSameAddressBirthDate:
			hit = sameAddress
		case models.MatchSameAddressEmailBirthDate:
			hit = sameAddress && r.Email == c.Email
		case models.MatchSameBirthDateLastName:
			hit = !sameAddress && r.LastNameKey == c.LastNameKey
		case models.MatchSameBirthDateEmail:
			hit = !sameAddress && r.Email == c.Email
		}
		if hit {
			ids = append(ids, r.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryRegistrationStore) GetByID(ctx context.Context, id string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneRegistration(r), nil
}

func (s *MemoryRegistrationStore) GetActiveByAccountID(ctx context.Context, accountID string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.registrations {
		if !r.Deleted && r.AccountID == accountID {
			return cloneRegistration(r), nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *MemoryRegistrationStore) List(ctx context.Context, filter *RegistrationFilter) (*RegistrationPage, error) {
	if filter == nil {
		filter = &RegistrationFilter{}
	}
	filter.normalize()

	s.mu.RLock()
	var all []models.Registration
	for _, r := range s.registrations {
		if filter.matches(r) {
			all = append(all, *cloneRegistration(r))
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].SubmittedAt.Equal(all[j].SubmittedAt) {
			return all[i].SubmittedAt.After(all[j].SubmittedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	start := (filter.Page - 1) * filter.Limit
	end := start + filter.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	page := append([]models.Registration{}, all[start:end]...)

	return &RegistrationPage{
		Registrations: page,
		Page:          filter.Page,
		Limit:         filter.Limit,
		TotalItems:    total,
		TotalPages:    (total + filter.Limit - 1) / filter.Limit,
	}, nil
}

func (f *RegistrationFilter) matches(r *models.Registration) bool {
	if r.Deleted && !f.IncludeDeleted {
		return false
	}
	if f.Status != nil && *f.Status != "" && string(r.Status) != *f.Status {
		return false
	}
	if f.DuplicateFlag != nil && r.DuplicateFlag != *f.DuplicateFlag {
		return false
	}
	if f.Barangay != nil && *f.Barangay != "" && r.PresentBarangay != *f.Barangay {
		return false
	}
	if f.Search != nil && *f.Search != "" {
		q := strings.ToLower(*f.Search)
		hay := strings.ToLower(strings.Join([]string{r.FirstName, r.LastName, r.ReferenceNumber, r.CommunityID}, " "))
		if !strings.Contains(hay, q) {
			return false
		}
	}
	day := r.SubmittedAt.UTC().Format("2006-01-02")
	if f.StartDate != nil && *f.StartDate != "" && day < *f.StartDate {
		return false
	}
	if f.EndDate != nil && *f.EndDate != "" && day > *f.EndDate {
		return false
	}
	return true
}

func (s *MemoryRegistrationStore) DuplicateStats(ctx context.Context) (*models.DuplicateStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats models.DuplicateStats
	for _, r := range s.registrations {
		if r.Deleted {
			continue
		}
		resolved := r.DuplicateResolvedAt != nil
		if r.DuplicateFlag || resolved {
			stats.TotalFlagged++
		}
		if resolved {
			stats.TotalResolved++
		}
		if r.DuplicateFlag {
			stats.PendingReview++
		}
	}
	return &stats, nil
}

func (s *MemoryRegistrationStore) ListDuplicateMatches(ctx context.Context, registrationID string) ([]models.DuplicateMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.DuplicateMatch{}, s.matches[registrationID]...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchedRecordID != out[j].MatchedRecordID {
			return out[i].MatchedRecordID < out[j].MatchedRecordID
		}
		return out[i].Reason < out[j].Reason
	})
	return out, nil
}

func (s *MemoryRegistrationStore) ListStatusHistory(ctx context.Context, registrationID string) ([]models.StatusHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.StatusHistoryEntry{}, s.history[registrationID]...), nil
}

// memoryTx records undo steps for row writes made inside RunInTx.
type memoryTx struct {
	store *MemoryRegistrationStore
	held  map[int]bool
	undo  []func()
}

func (t *memoryTx) lock(ctx context.Context, key string) error {
	shard := int(hashLockKey(key) % numLockShards)
	if t.held[shard] {
		return nil
	}
	select {
	case t.store.shards[shard] <- struct{}{}:
		t.held[shard] = true
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquire lock: %w", ctx.Err())
	}
}

func (t *memoryTx) release() {
	for shard := range t.held {
		<-t.store.shards[shard]
	}
	t.held = nil
}

func (t *memoryTx) rollback() {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryTx) LockAddress(ctx context.Context, zipCode, addressKey string) error {
	return t.lock(ctx, "addr|"+zipCode+"|"+addressKey)
}

func (t *memoryTx) GetAddress(ctx context.Context, zipCode, addressKey string) (*models.AddressIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.addresses[zipCode+"|"+addressKey]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (t *memoryTx) NextAddressSeq(ctx context.Context, zipCode string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	next := t.store.addressCounters[zipCode] + 1
	if next > models.MaxAddressSeq {
		return 0, fmt.Errorf("%w: zip %s", models.ErrSequenceExhausted, zipCode)
	}
	t.store.addressCounters[zipCode] = next
	return next, nil
}

func (t *memoryTx) CreateAddress(ctx context.Context, addr *models.AddressIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := addr.ZipCode + "|" + addr.AddressKey
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, exists := t.store.addresses[key]; exists {
		return fmt.Errorf("%w: address %s", ErrConflict, key)
	}
	cp := *addr
	t.store.addresses[key] = &cp
	t.undo = append(t.undo, func() { delete(t.store.addresses, key) })
	return nil
}

func (t *memoryTx) findAddressBySeq(zipCode string, addressSeq int) *models.AddressIndex {
	for _, a := range t.store.addresses {
		if a.ZipCode == zipCode && a.AddressSeq == addressSeq {
			return a
		}
	}
	return nil
}

func (t *memoryTx) GetLatestHousehold(ctx context.Context, zipCode string, addressSeq int) (*models.HouseholdIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	var latest *models.HouseholdIndex
	for _, h := range t.store.households {
		if h.ZipCode == zipCode && h.AddressSeq == addressSeq && (latest == nil || h.HouseholdSeq > latest.HouseholdSeq) {
			latest = h
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	cp := *latest
	return &cp, nil
}

func (t *memoryTx) NextHouseholdSeq(ctx context.Context, zipCode string, addressSeq int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	a := t.findAddressBySeq(zipCode, addressSeq)
	if a == nil {
		return 0, sql.ErrNoRows
	}
	if a.LastHouseholdSeq >= models.MaxHouseholdSeq {
		return 0, fmt.Errorf("%w: address %s-%05d", models.ErrSequenceExhausted, zipCode, addressSeq)
	}
	a.LastHouseholdSeq++
	return a.LastHouseholdSeq, nil
}

func (t *memoryTx) CreateHousehold(ctx context.Context, hh *models.HouseholdIndex) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := fmt.Sprintf("%s|%d|%d", hh.ZipCode, hh.AddressSeq, hh.HouseholdSeq)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, exists := t.store.households[key]; exists {
		return fmt.Errorf("%w: household %s", ErrConflict, key)
	}
	cp := *hh
	t.store.households[key] = &cp
	t.undo = append(t.undo, func() { delete(t.store.households, key) })
	return nil
}

func (t *memoryTx) NextIndividualSeq(ctx context.Context, zipCode string, addressSeq, householdSeq int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := fmt.Sprintf("%s|%d|%d", zipCode, addressSeq, householdSeq)
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	h, ok := t.store.households[key]
	if !ok {
		return 0, sql.ErrNoRows
	}
	if h.LastIndividualSeq >= models.MaxIndividualSeq {
		return 0, fmt.Errorf("%w: household %s", models.ErrSequenceExhausted, key)
	}
	h.LastIndividualSeq++
	return h.LastIndividualSeq, nil
}

func (t *memoryTx) InsertRegistration(ctx context.Context, reg *models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if _, exists := t.store.registrations[reg.ID]; exists {
		return fmt.Errorf("%w: registration id %s", ErrConflict, reg.ID)
	}
	for _, r := range t.store.registrations {
		switch {
		case r.CommunityID == reg.CommunityID:
			return fmt.Errorf("%w: community id %s", ErrConflict, reg.CommunityID)
		case r.ReferenceNumber == reg.ReferenceNumber:
			return fmt.Errorf("%w: reference number %s", ErrConflict, reg.ReferenceNumber)
		case !r.Deleted && r.AccountID == reg.AccountID:
			return fmt.Errorf("%w: account %s", ErrConflict, reg.AccountID)
		}
	}
	id := reg.ID
	t.store.registrations[id] = cloneRegistration(reg)
	t.undo = append(t.undo, func() { delete(t.store.registrations, id) })
	return nil
}

func (t *memoryTx) GetRegistrationForUpdate(ctx context.Context, id string) (*models.Registration, error) {
	if err := t.lock(ctx, "reg|"+id); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.registrations[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneRegistration(r), nil
}

// replaceRegistration swaps the stored row, remembering the previous version.
func (t *memoryTx) replaceRegistration(id string, mutate func(r *models.Registration)) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	prev, ok := t.store.registrations[id]
	if !ok {
		return sql.ErrNoRows
	}
	next := cloneRegistration(prev)
	mutate(next)
	t.store.registrations[id] = next
	t.undo = append(t.undo, func() { t.store.registrations[id] = prev })
	return nil
}

func (t *memoryTx) UpdateRegistrationReview(ctx context.Context, reg *models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.replaceRegistration(reg.ID, func(r *models.Registration) {
		r.Status = reg.Status
		r.DuplicateFlag = reg.DuplicateFlag
		r.DuplicateReasons = append(models.MatchReasons{}, reg.DuplicateReasons...)
		r.DuplicateResolvedAt = reg.DuplicateResolvedAt
		r.DuplicateResolvedBy = reg.DuplicateResolvedBy
		r.UpdatedAt = reg.UpdatedAt
	})
}

func (t *memoryTx) UpdateRegistrationData(ctx context.Context, reg *models.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.replaceRegistration(reg.ID, func(r *models.Registration) {
		r.MiddleName = reg.MiddleName
		r.NameExtension = reg.NameExtension
		r.Phone = reg.Phone
		r.PresentHouseNumber = reg.PresentHouseNumber
		r.Profile = append(models.JSONB(nil), reg.Profile...)
		r.Status = reg.Status
		r.UpdatedAt = reg.UpdatedAt
	})
}

func (t *memoryTx) SoftDeleteRegistration(ctx context.Context, id, actor string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.RLock()
	r, ok := t.store.registrations[id]
	deleted := ok && r.Deleted
	t.store.mu.RUnlock()
	if !ok || deleted {
		return sql.ErrNoRows
	}
	return t.replaceRegistration(id, func(r *models.Registration) {
		r.Deleted = true
		r.DeletedAt = &at
		r.DeletedBy = &actor
		r.UpdatedAt = at
	})
}

func (t *memoryTx) AppendStatusHistory(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, e := range t.store.history[entry.RegistrationID] {
		if e.CreatedAt.Equal(entry.CreatedAt) {
			return fmt.Errorf("%w: history timestamp %s", ErrConflict, entry.CreatedAt)
		}
	}
	t.store.historySeq++
	entry.ID = t.store.historySeq
	id := entry.RegistrationID
	prev := t.store.history[id]
	t.store.history[id] = append(append([]models.StatusHistoryEntry{}, prev...), *entry)
	t.undo = append(t.undo, func() {
		if prev == nil {
			delete(t.store.history, id)
			return
		}
		t.store.history[id] = prev
	})
	return nil
}

func (t *memoryTx) LastStatusHistory(ctx context.Context, registrationID string) (*models.StatusHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	entries := t.store.history[registrationID]
	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}
	last := entries[len(entries)-1]
	return &last, nil
}

func (t *memoryTx) InsertDuplicateMatches(ctx context.Context, matches []models.DuplicateMatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(matches) == 0 {
		return nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, m := range matches {
		id := m.RegistrationID
		prev := t.store.matches[id]
		t.store.matches[id] = append(append([]models.DuplicateMatch{}, prev...), m)
		t.undo = append(t.undo, func() {
			if prev == nil {
				delete(t.store.matches, id)
				return
			}
			t.store.matches[id] = prev
		})
	}
	return nil
}

func cloneRegistration(r *models.Registration) *models.Registration {
	cp := *r
	cp.DuplicateReasons = append(models.MatchReasons{}, r.DuplicateReasons...)
	cp.Profile = append(models.JSONB(nil), r.Profile...)
	cp.Matches = nil
	return &cp
}

func hashLockKey(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
