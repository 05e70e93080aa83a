package models

import "time"

// AddressIndex is one distinct physical address inside a zip code.
type AddressIndex struct {
	ZipCode          string    `db:"zip_code" json:"zipCode"`
	AddressSeq       int       `db:"address_seq" json:"addressSequence"`
	AddressKey       string    `db:"address_key" json:"-"`
	Street           string    `db:"street" json:"street"`
	Barangay         string    `db:"barangay" json:"barangay"`
	City             string    `db:"city" json:"city"`
	Region           string    `db:"region" json:"region"`
	LastHouseholdSeq int       `db:"last_household_seq" json:"lastHouseholdSequence"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

// HouseholdIndex is one household at an address.
type HouseholdIndex struct {
	ZipCode           string    `db:"zip_code" json:"zipCode"`
	AddressSeq        int       `db:"address_seq" json:"addressSequence"`
	HouseholdSeq      int       `db:"household_seq" json:"householdSequence"`
	HeadOfFamily      string    `db:"head_of_family" json:"headOfFamily"`
	LastIndividualSeq int       `db:"last_individual_seq" json:"lastIndividualSequence"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
}
