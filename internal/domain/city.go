package domain

import "time"

// CityStatus enumerates the enrichment lifecycle of a city.
type CityStatus string

const (
	// StatusInactive marks a freshly ingested city waiting for enrichment.
	StatusInactive CityStatus = "inactive"
	// StatusActive marks a city with a description, visible through the read API.
	StatusActive CityStatus = "active"
	// StatusInvalid marks a city whose name was rejected or had no description.
	StatusInvalid CityStatus = "invalid"
)

// City is the persisted entity merged from pollution and description sources.
type City struct {
	ID          int64
	CityName    string
	CountryName string
	Pollution   *float64
	Description *string
	Status      CityStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewCity carries the fields required to insert a city.
type NewCity struct {
	CityName    string
	CountryName string
	Pollution   *float64
	Status      CityStatus
}

// CityUpdate is a partial update; nil fields are left untouched.
type CityUpdate struct {
	CityName    *string
	Pollution   *float64
	Description *string
	Status      *CityStatus
}

// Empty reports whether the update would not change any column.
func (u CityUpdate) Empty() bool {
	return u.CityName == nil && u.Pollution == nil && u.Description == nil && u.Status == nil
}

// CityListing is the read-model row returned for active cities.
type CityListing struct {
	Name        string
	Pollution   *float64
	Description *string
	Country     string
}

// CityPage is one page of active cities plus the total match count.
type CityPage struct {
	Total int
	Rows  []CityListing
}

// RawCity is a single record as returned by the pollution API.
type RawCity struct {
	Name      string   `json:"name"`
	Pollution *float64 `json:"pollution"`
}

// PageMeta describes pagination of a pollution API response.
type PageMeta struct {
	TotalPages int `json:"totalPages"`
}

// PollutionPage is one page of the pollution API.
type PollutionPage struct {
	Results []RawCity `json:"results"`
	Meta    PageMeta  `json:"meta"`
}
