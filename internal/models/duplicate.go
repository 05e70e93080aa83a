package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// MatchReason names the rule under which two registrations were matched.
type MatchReason string

const (
	MatchSameAddressBirthDate      MatchReason = "SAME_ADDRESS_BIRTH_DATE"
	MatchSameAddressEmailBirthDate MatchReason = "SAME_ADDRESS_EMAIL_BIRTH_DATE"
	MatchSameBirthDateLastName     MatchReason = "SAME_BIRTH_DATE_LAST_NAME"
	MatchSameBirthDateEmail        MatchReason = "SAME_BIRTH_DATE_EMAIL"
)

// MatchRules lists the detection rules in evaluation order.
var MatchRules = []MatchReason{
	MatchSameAddressBirthDate,
	MatchSameAddressEmailBirthDate,
	MatchSameBirthDateLastName,
	MatchSameBirthDateEmail,
}

var matchLabels = map[MatchReason]string{
	MatchSameAddressBirthDate:      "Same address and birth date",
	MatchSameAddressEmailBirthDate: "Same address, email, and birth date",
	MatchSameBirthDateLastName:     "Same birth date and last name",
	MatchSameBirthDateEmail:        "Same birth date and email",
}

func (r MatchReason) Valid() bool {
	_, ok := matchLabels[r]
	return ok
}

// Label is the human-readable wording shown to admins.
func (r MatchReason) Label() string {
	if l, ok := matchLabels[r]; ok {
		return l
	}
	return string(r)
}

// MatchReasons is stored as a text[] of reason codes.
type MatchReasons []MatchReason

// Labels returns the display wording for every reason.
func (rs MatchReasons) Labels() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Label()
	}
	return out
}

func (rs MatchReasons) Value() (driver.Value, error) {
	arr := make(pq.StringArray, len(rs))
	for i, r := range rs {
		arr[i] = string(r)
	}
	return arr.Value()
}

func (rs *MatchReasons) Scan(src interface{}) error {
	var arr pq.StringArray
	if err := arr.Scan(src); err != nil {
		return fmt.Errorf("scan match reasons: %w", err)
	}
	out := make(MatchReasons, len(arr))
	for i, s := range arr {
		out[i] = MatchReason(s)
	}
	*rs = out
	return nil
}

type reasonJSON struct {
	Code  MatchReason `json:"code"`
	Label string      `json:"label"`
}

func (rs MatchReasons) MarshalJSON() ([]byte, error) {
	out := make([]reasonJSON, len(rs))
	for i, r := range rs {
		out[i] = reasonJSON{Code: r, Label: r.Label()}
	}
	return json.Marshal(out)
}

func (rs *MatchReasons) UnmarshalJSON(data []byte) error {
	var items []reasonJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	out := make(MatchReasons, len(items))
	for i, it := range items {
		out[i] = it.Code
	}
	*rs = out
	return nil
}

// DuplicateMatch links a registration to an earlier record it resembles.
type DuplicateMatch struct {
	RegistrationID  string      `db:"registration_id" json:"-"`
	MatchedRecordID string      `db:"matched_registration_id" json:"matchedRecordId"`
	Reason          MatchReason `db:"reason" json:"reason"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
}

// MarshalJSON adds the reason label so admin clients need no lookup table.
func (m DuplicateMatch) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		MatchedRecordID string      `json:"matchedRecordId"`
		Reason          MatchReason `json:"reason"`
		Label           string      `json:"label"`
	}{m.MatchedRecordID, m.Reason, m.Reason.Label()})
}

// Reasons returns the distinct reasons across matches, in rule order.
func Reasons(matches []DuplicateMatch) MatchReasons {
	seen := make(map[MatchReason]bool, len(matches))
	for _, m := range matches {
		seen[m.Reason] = true
	}
	out := MatchReasons{}
	for _, r := range MatchRules {
		if seen[r] {
			out = append(out, r)
		}
	}
	return out
}

// DuplicateCriteria are the normalized keys a candidate is compared on.
type DuplicateCriteria struct {
	StreetKey        string
	Barangay         string
	BirthDate        string
	Email            string
	LastNameKey      string
	ExcludeAccountID string
}

// DuplicateStats summarises the duplicate review queue.
type DuplicateStats struct {
	TotalFlagged  int `db:"total_flagged" json:"totalFlagged"`
	TotalResolved int `db:"total_resolved" json:"totalResolved"`
	PendingReview int `db:"pending_review" json:"pendingReview"`
}

// ResolveAction is the outcome an admin picks when clearing a duplicate flag.
type ResolveAction string

const (
	ResolveApprove ResolveAction = "approve"
	ResolveReject  ResolveAction = "reject"
	ResolvePending ResolveAction = "pending"
)

// TargetStatus maps the action to the registration status it produces.
func (a ResolveAction) TargetStatus() (RegistrationStatus, bool) {
	switch a {
	case ResolveApprove:
		return StatusApproved, true
	case ResolveReject:
		return StatusRejected, true
	case ResolvePending:
		return StatusPendingReview, true
	}
	return "", false
}

// Verb is used in the status history note.
func (a ResolveAction) Verb() string {
	switch a {
	case ResolveApprove:
		return "Approved"
	case ResolveReject:
		return "Rejected"
	}
	return "Returned to pending review"
}
