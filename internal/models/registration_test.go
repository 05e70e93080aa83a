package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressKeyNormalizesStreet(t *testing.T) {
	a := AddressKey("  Mabini   St ", "137404028", "137404000", "130000000")
	b := AddressKey("mabini st", "137404028", "137404000", "130000000")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, AddressKey("Mabini St", "137404029", "137404000", "130000000"))
}

func TestRegistrationInputNormalizeAndCriteria(t *testing.T) {
	in := &RegistrationInput{
		FirstName:       " Juan ",
		LastName:        " Dela  Cruz",
		BirthDate:       "1990-01-01 ",
		Email:           " Juan@Example.PH ",
		PresentStreet:   "Mabini  St",
		PresentBarangay: "137404028",
	}
	in.Normalize()

	assert.Equal(t, "Juan", in.FirstName)
	assert.Equal(t, "juan@example.ph", in.Email)
	assert.Equal(t, "Juan Dela  Cruz", in.HeadOfFamily())

	c := in.Criteria("acct-1")
	assert.Equal(t, "mabini st", c.StreetKey)
	assert.Equal(t, "dela cruz", c.LastNameKey)
	assert.Equal(t, "1990-01-01", c.BirthDate)
	assert.Equal(t, "acct-1", c.ExcludeAccountID)
}

func TestStatusLabels(t *testing.T) {
	assert.Equal(t, "Flagged - Duplicate", StatusFlaggedDuplicate.Label())
	assert.Equal(t, "Pending Review", StatusPendingReview.Label())
	assert.False(t, RegistrationStatus("Deleted").Valid())
}

func TestReasonsDeduplicatesInRuleOrder(t *testing.T) {
	matches := []DuplicateMatch{
		{MatchedRecordID: "b", Reason: MatchSameBirthDateEmail},
		{MatchedRecordID: "a", Reason: MatchSameAddressBirthDate},
		{MatchedRecordID: "c", Reason: MatchSameBirthDateEmail},
	}
	assert.Equal(t, MatchReasons{MatchSameAddressBirthDate, MatchSameBirthDateEmail}, Reasons(matches))
	assert.Equal(t, MatchReasons{}, Reasons(nil))
}

func TestMatchReasonsJSONCarriesLabels(t *testing.T) {
	raw, err := json.Marshal(MatchReasons{MatchSameBirthDateLastName})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"code":"SAME_BIRTH_DATE_LAST_NAME","label":"Same birth date and last name"}]`, string(raw))

	var back MatchReasons
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, MatchReasons{MatchSameBirthDateLastName}, back)
}

func TestNextHistoryTimestampIsStrictlyIncreasing(t *testing.T) {
	last := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, last.Add(time.Microsecond), NextHistoryTimestamp(&last, last))
	assert.Equal(t, last.Add(time.Microsecond), NextHistoryTimestamp(&last, last.Add(-time.Hour)))

	later := last.Add(time.Second)
	assert.Equal(t, later, NextHistoryTimestamp(&last, later))
	assert.Equal(t, later, NextHistoryTimestamp(nil, later))
}
