package models

import "time"

// StatusHistoryEntry is one append-only record of a status change.
type StatusHistoryEntry struct {
	ID                    int64               `db:"id" json:"id"`
	RegistrationID        string              `db:"registration_id" json:"-"`
	Status                RegistrationStatus  `db:"status" json:"status"`
	PreviousStatus        *RegistrationStatus `db:"previous_status" json:"previousStatus,omitempty"`
	Note                  string              `db:"note" json:"note"`
	Actor                 string              `db:"actor" json:"updatedBy"`
	ResolvedDuplicateFlag bool                `db:"resolved_duplicate_flag" json:"resolvedDuplicateFlag,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"timestamp"`
}

// NextHistoryTimestamp returns a timestamp strictly after last. Entries are
// stored with microsecond precision, so ties are broken by one microsecond.
func NextHistoryTimestamp(last *time.Time, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Microsecond)
	if last == nil || now.After(*last) {
		return now
	}
	return last.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
}
