package models

import (
	"strings"
	"time"
)

// RegistrationStatus is the lifecycle state of a registration.
type RegistrationStatus string

const (
	StatusPendingReview    RegistrationStatus = "PendingReview"
	StatusFlaggedDuplicate RegistrationStatus = "FlaggedDuplicate"
	StatusApproved         RegistrationStatus = "Approved"
	StatusRejected         RegistrationStatus = "Rejected"
	StatusInReview         RegistrationStatus = "InReview"
)

var statusLabels = map[RegistrationStatus]string{
	StatusPendingReview:    "Pending Review",
	StatusFlaggedDuplicate: "Flagged - Duplicate",
	StatusApproved:         "Approved",
	StatusRejected:         "Rejected",
	StatusInReview:         "In Review",
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the wording shown to residents and admins.
func (s RegistrationStatus) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// Registration is a resident's submitted benefits registration.
type Registration struct {
	ID              string `db:"id" json:"id"`
	AccountID       string `db:"account_id" json:"accountId"`
	ReferenceNumber string `db:"reference_number" json:"referenceNumber"`

	FirstName     string `db:"first_name" json:"firstName"`
	MiddleName    string `db:"middle_name" json:"middleName,omitempty"`
	LastName      string `db:"last_name" json:"lastName"`
	NameExtension string `db:"name_extension" json:"nameExtension,omitempty"`
	BirthDate     string `db:"birth_date" json:"birthDate"`
	Email         string `db:"email" json:"email"`
	Phone         string `db:"phone" json:"phone"`

	PresentStreet      string `db:"present_street" json:"presentStreet"`
	PresentHouseNumber string `db:"present_house_number" json:"presentHouseNumber,omitempty"`
	PresentBarangay    string `db:"present_barangay" json:"presentBarangay"`
	PresentCity        string `db:"present_city" json:"presentCity"`
	PresentRegion      string `db:"present_region" json:"presentRegion"`
	ZipCode            string `db:"zip_code" json:"zipCode"`

	// Normalized comparison keys used by duplicate detection.
	StreetKey   string `db:"street_key" json:"-"`
	LastNameKey string `db:"last_name_key" json:"-"`

	DocumentID  *string `db:"document_id" json:"documentId,omitempty"`
	Profile     JSONB   `db:"profile" json:"profile,omitempty"`
	CommunityID string  `db:"community_id" json:"communityId"`

	Status              RegistrationStatus `db:"status" json:"status"`
	DuplicateFlag       bool               `db:"duplicate_flag" json:"duplicateFlag"`
	DuplicateReasons    MatchReasons       `db:"duplicate_reasons" json:"duplicateReasons"`
	DuplicateResolvedAt *time.Time         `db:"duplicate_resolved_at" json:"duplicateResolvedAt,omitempty"`
	DuplicateResolvedBy *string            `db:"duplicate_resolved_by" json:"duplicateResolvedBy,omitempty"`

	Deleted   bool       `db:"deleted" json:"deleted"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy *string    `db:"deleted_by" json:"deletedBy,omitempty"`

	SubmittedAt time.Time `db:"submitted_at" json:"submittedAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`

	Matches []DuplicateMatch `db:"-" json:"matches,omitempty"`
}

// FullName joins the name parts the way they are printed on the registry card.
func (r *Registration) FullName() string {
	parts := []string{r.FirstName}
	if r.MiddleName != "" {
		parts = append(parts, r.MiddleName)
	}
	parts = append(parts, r.LastName)
	if r.NameExtension != "" {
		parts = append(parts, r.NameExtension)
	}
	return strings.Join(parts, " ")
}

// RegistrationInput is the payload a resident submits.
type RegistrationInput struct {
	FirstName     string `json:"firstName" validate:"required,max=100"`
	MiddleName    string `json:"middleName" validate:"max=100"`
	LastName      string `json:"lastName" validate:"required,max=100"`
	NameExtension string `json:"nameExtension" validate:"max=10"`
	BirthDate     string `json:"birthDate" validate:"required,datetime=2006-01-02"`
	Email         string `json:"email" validate:"required,email,max=254"`
	Phone         string `json:"phone" validate:"required,numeric,len=11,startswith=09"`

	PresentStreet      string `json:"presentStreet" validate:"required,max=200"`
	PresentHouseNumber string `json:"presentHouseNumber" validate:"max=50"`
	PresentBarangay    string `json:"presentBarangay" validate:"required,max=20"`
	PresentCity        string `json:"presentCity" validate:"required,max=20"`
	PresentRegion      string `json:"presentRegion" validate:"required,max=20"`
	ZipCode            string `json:"zipCode" validate:"omitempty,numeric,len=4"`

	DocumentID *string `json:"documentId" validate:"omitempty,uuid"`
	Profile    JSONB   `json:"profile"`
}

// Normalize trims surrounding whitespace and lowercases the email in place.
func (in *RegistrationInput) Normalize() {
	for _, f := range []*string{
		&in.FirstName, &in.MiddleName, &in.LastName, &in.NameExtension, &in.BirthDate,
		&in.Phone, &in.PresentStreet, &in.PresentHouseNumber, &in.PresentBarangay,
		&in.PresentCity, &in.PresentRegion, &in.ZipCode,
	} {
		*f = strings.TrimSpace(*f)
	}
	in.Email = NormalizeEmail(in.Email)
}

// AddressKey identifies a physical address for allocation purposes.
func (in *RegistrationInput) AddressKey() string {
	return AddressKey(in.PresentStreet, in.PresentBarangay, in.PresentCity, in.PresentRegion)
}

// HeadOfFamily is the name recorded on a household created for this registrant.
func (in *RegistrationInput) HeadOfFamily() string {
	return strings.TrimSpace(in.FirstName + " " + in.LastName)
}

// Criteria builds the duplicate detection keys for the input.
func (in *RegistrationInput) Criteria(excludeAccountID string) DuplicateCriteria {
	return DuplicateCriteria{
		StreetKey:        NormalizeText(in.PresentStreet),
		Barangay:         in.PresentBarangay,
		BirthDate:        in.BirthDate,
		Email:            NormalizeEmail(in.Email),
		LastNameKey:      NormalizeText(in.LastName),
		ExcludeAccountID: excludeAccountID,
	}
}

// RegistrationUpdate holds the fields an admin may correct after submission.
type RegistrationUpdate struct {
	MiddleName         *string `json:"middleName" validate:"omitempty,max=100"`
	NameExtension      *string `json:"nameExtension" validate:"omitempty,max=10"`
	Phone              *string `json:"phone" validate:"omitempty,numeric,len=11,startswith=09"`
	PresentHouseNumber *string `json:"presentHouseNumber" validate:"omitempty,max=50"`
	Profile            JSONB   `json:"profile"`
}

// Empty reports whether the update carries no changes.
func (u *RegistrationUpdate) Empty() bool {
	return u.MiddleName == nil && u.NameExtension == nil && u.Phone == nil &&
		u.PresentHouseNumber == nil && len(u.Profile) == 0
}

// Apply copies the set fields onto r.
func (u *RegistrationUpdate) Apply(r *Registration) {
	if u.MiddleName != nil {
		r.MiddleName = strings.TrimSpace(*u.MiddleName)
	}
	if u.NameExtension != nil {
		r.NameExtension = strings.TrimSpace(*u.NameExtension)
	}
	if u.Phone != nil {
		r.Phone = strings.TrimSpace(*u.Phone)
	}
	if u.PresentHouseNumber != nil {
		r.PresentHouseNumber = strings.TrimSpace(*u.PresentHouseNumber)
	}
	if len(u.Profile) > 0 {
		r.Profile = u.Profile
	}
}

// SubmissionResult is returned to the resident after a successful submission.
type SubmissionResult struct {
	RegistrationID   string             `json:"registrationId"`
	ReferenceNumber  string             `json:"referenceNumber"`
	CommunityID      string             `json:"communityId"`
	Status           RegistrationStatus `json:"status"`
	StatusLabel      string             `json:"statusLabel"`
	DuplicateFlag    bool               `json:"duplicateFlag"`
	DuplicateReasons MatchReasons       `json:"duplicateReasons"`
	SubmittedAt      time.Time          `json:"submittedAt"`
}

// RegistrationStatusView is the resident-facing summary of their registration.
type RegistrationStatusView struct {
	RegistrationID  string               `json:"registrationId"`
	ReferenceNumber string               `json:"referenceNumber"`
	CommunityID     string               `json:"communityId"`
	FullName        string               `json:"fullName"`
	Status          RegistrationStatus   `json:"status"`
	StatusLabel     string               `json:"statusLabel"`
	SubmittedAt     time.Time            `json:"submittedAt"`
	UpdatedAt       time.Time            `json:"updatedAt"`
	History         []StatusHistoryEntry `json:"history"`
}

// Actor identifies who performs an operation.
type Actor struct {
	AccountID string
	Email     string
	Role      string
}

// NormalizeText lowercases and collapses internal whitespace.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AddressKey is the normalized identity of a physical address.
func AddressKey(street, barangay, city, region string) string {
	return strings.Join([]string{
		NormalizeText(street),
		strings.TrimSpace(barangay),
		strings.TrimSpace(city),
		strings.TrimSpace(region),
	}, "|")
}
