package models

// Region represents a Philippine region (PSGC).
type Region struct {
	Code string `json:"code" db:"code"`
	Name string `json:"name" db:"name"`
}

// City represents a city or municipality.
type City struct {
	Code       string `json:"code" db:"code"`
	RegionCode string `json:"regionCode" db:"region_code"`
	Name       string `json:"name" db:"name"`
}

// Barangay represents the smallest administrative division.
type Barangay struct {
	Code        string `json:"code" db:"code"`
	CityCode    string `json:"cityCode" db:"city_code"`
	Name        string `json:"name" db:"name"`
	ServiceArea bool   `json:"serviceArea" db:"service_area"`
}

// PostalCode maps a barangay to its four-digit zip code.
type PostalCode struct {
	BarangayCode string `json:"barangayCode" db:"barangay_code"`
	PostalCode   string `json:"postalCode" db:"postal_code"`
}

// ServiceArea describes where registrations are accepted.
type ServiceArea struct {
	City      City       `json:"city"`
	Barangays []Barangay `json:"barangays"`
}
