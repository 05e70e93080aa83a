package models

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Upper bounds of each Community ID segment.
const (
	MaxAddressSeq    = 99999
	MaxHouseholdSeq  = 99
	MaxIndividualSeq = 99
)

var (
	communityIDPattern = regexp.MustCompile(`^\d{4}-\d{5}-\d{2}-\d{2}$`)

	ErrInvalidCommunityID = errors.New("invalid community id")
	ErrSequenceExhausted  = errors.New("community id sequence exhausted")
)

// CommunityID is the hierarchical resident identifier
// ZZZZ-AAAAA-HH-II (zip, address, household, individual).
type CommunityID struct {
	Zip        string
	Address    int
	Household  int
	Individual int
}

// String renders the zero-padded form.
func (c CommunityID) String() string {
	return fmt.Sprintf("%s-%05d-%02d-%02d", c.Zip, c.Address, c.Household, c.Individual)
}

// Validate checks every segment is within range.
func (c CommunityID) Validate() error {
	switch {
	case len(c.Zip) != 4 || strings.Trim(c.Zip, "0123456789") != "":
		return fmt.Errorf("%w: zip %q", ErrInvalidCommunityID, c.Zip)
	case c.Address < 1 || c.Address > MaxAddressSeq:
		return fmt.Errorf("%w: address sequence %d", ErrSequenceExhausted, c.Address)
	case c.Household < 1 || c.Household > MaxHouseholdSeq:
		return fmt.Errorf("%w: household sequence %d", ErrSequenceExhausted, c.Household)
	case c.Individual < 1 || c.Individual > MaxIndividualSeq:
		return fmt.Errorf("%w: individual sequence %d", ErrSequenceExhausted, c.Individual)
	}
	return nil
}

// ParseCommunityID parses the ZZZZ-AAAAA-HH-II form.
func ParseCommunityID(s string) (CommunityID, error) {
	if !communityIDPattern.MatchString(s) {
		return CommunityID{}, fmt.Errorf("%w: %q", ErrInvalidCommunityID, s)
	}
	parts := strings.Split(s, "-")
	addr, _ := strconv.Atoi(parts[1])
	hh, _ := strconv.Atoi(parts[2])
	ind, _ := strconv.Atoi(parts[3])
	c := CommunityID{Zip: parts[0], Address: addr, Household: hh, Individual: ind}
	if err := c.Validate(); err != nil {
		return CommunityID{}, err
	}
	return c, nil
}

// IsCommunityID reports whether s has the Community ID shape.
func IsCommunityID(s string) bool {
	return communityIDPattern.MatchString(s)
}
