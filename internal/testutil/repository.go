// Package testutil provides in-memory fakes of the ports for package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"PollutionSync/internal/domain"
	"PollutionSync/internal/ports"
)

// UpdateCall records one UpdateByName invocation.
type UpdateCall struct {
	CityName string
	Update   domain.CityUpdate
}

// CityStore is an in-memory ports.CityRepository keyed by city name.
type CityStore struct {
	mu      sync.Mutex
	cities  map[string]domain.City
	nextID  int64
	updates []UpdateCall
	now     func() time.Time

	// UpsertErr and UpdateErr fail calls for the named cities.
	UpsertErr map[string]error
	UpdateErr map[string]error
	// ListErr fails both list queries when set.
	ListErr error
}

var _ ports.CityRepository = (*CityStore)(nil)

// NewCityStore returns an empty store.
func NewCityStore() *CityStore {
	return &CityStore{
		cities:    map[string]domain.City{},
		UpsertErr: map[string]error{},
		UpdateErr: map[string]error{},
		now:       time.Now,
	}
}

// Seed stores cities as-is, assigning IDs and timestamps where missing.
// Later seeds get later updated_at values.
func (s *CityStore) Seed(cities ...domain.City) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, c := range cities {
		s.nextID++
		if c.ID == 0 {
			c.ID = s.nextID
		}
		if c.Status == "" {
			c.Status = domain.StatusInactive
		}
		if c.UpdatedAt.IsZero() {
			c.UpdatedAt = base.Add(time.Duration(s.nextID) * time.Second)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = c.UpdatedAt
		}
		s.cities[c.CityName] = c
	}
}

// Get returns the stored city by exact name.
func (s *CityStore) Get(name string) (domain.City, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cities[name]
	return c, ok
}

// All returns every stored city ordered by ID.
func (s *CityStore) All() []domain.City {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.City, 0, len(s.cities))
	for _, c := range s.cities {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Updates returns the recorded UpdateByName calls in call order.
func (s *CityStore) Updates() []UpdateCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]UpdateCall(nil), s.updates...)
}

func (s *CityStore) Exists(_ context.Context, cityName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cities[cityName]
	return ok, nil
}

func (s *CityStore) Create(_ context.Context, city domain.NewCity) (domain.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cities[city.CityName]; ok {
		return domain.City{}, fmt.Errorf("%w: insert city %q: %w", domain.ErrPersistence, city.CityName, domain.ErrDuplicateCity)
	}
	status := city.Status
	if status == "" {
		status = domain.StatusInactive
	}
	s.nextID++
	now := s.now()
	created := domain.City{
		ID:          s.nextID,
		CityName:    city.CityName,
		CountryName: city.CountryName,
		Pollution:   city.Pollution,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.cities[city.CityName] = created
	return created, nil
}

// UpdateByName rejects renames onto a stored name like the unique index does.
func (s *CityStore) UpdateByName(_ context.Context, cityName string, update domain.CityUpdate) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates = append(s.updates, UpdateCall{CityName: cityName, Update: update})
	if err := s.UpdateErr[cityName]; err != nil {
		return 0, fmt.Errorf("%w: update city: %w", domain.ErrPersistence, err)
	}

	c, ok := s.cities[cityName]
	if !ok || update.Empty() {
		return 0, nil
	}
	if update.CityName != nil && *update.CityName != cityName {
		if _, taken := s.cities[*update.CityName]; taken {
			return 0, fmt.Errorf("%w: rename city %q: %w", domain.ErrPersistence, cityName, domain.ErrDuplicateCity)
		}
		delete(s.cities, cityName)
		c.CityName = *update.CityName
	}
	if update.Pollution != nil {
		p := *update.Pollution
		c.Pollution = &p
	}
	if update.Description != nil {
		d := *update.Description
		c.Description = &d
	}
	if update.Status != nil {
		c.Status = *update.Status
	}
	c.UpdatedAt = s.now()
	s.cities[c.CityName] = c
	return 1, nil
}

func (s *CityStore) UpsertPollution(_ context.Context, cityName, countryName string, pollution *float64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.UpsertErr[cityName]; err != nil {
		return false, fmt.Errorf("%w: upsert city: %w", domain.ErrPersistence, err)
	}

	now := s.now()
	if c, ok := s.cities[cityName]; ok {
		c.Pollution = pollution
		c.UpdatedAt = now
		s.cities[cityName] = c
		return false, nil
	}

	s.nextID++
	s.cities[cityName] = domain.City{
		ID:          s.nextID,
		CityName:    cityName,
		CountryName: countryName,
		Pollution:   pollution,
		Status:      domain.StatusInactive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return true, nil
}

func (s *CityStore) ListActiveByCountry(_ context.Context, countryName string, page, limit int) (domain.CityPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return domain.CityPage{}, fmt.Errorf("%w: list active: %w", domain.ErrPersistence, s.ListErr)
	}

	matches := make([]domain.City, 0)
	for _, c := range s.cities {
		if c.CountryName == countryName && c.Status == domain.StatusActive {
			matches = append(matches, c)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i].Pollution, matches[j].Pollution
		switch {
		case a == nil && b == nil:
			return matches[i].CityName < matches[j].CityName
		case a == nil:
			return false
		case b == nil:
			return true
		case *a != *b:
			return *a > *b
		default:
			return matches[i].CityName < matches[j].CityName
		}
	})

	result := domain.CityPage{Total: len(matches), Rows: []domain.CityListing{}}
	start := (page - 1) * limit
	if start < 0 || start >= len(matches) {
		return result, nil
	}
	end := min(start+limit, len(matches))
	for _, c := range matches[start:end] {
		result.Rows = append(result.Rows, domain.CityListing{
			Name:        c.CityName,
			Pollution:   c.Pollution,
			Description: c.Description,
			Country:     c.CountryName,
		})
	}
	return result, nil
}

func (s *CityStore) ListInactiveWithoutDescription(_ context.Context, limit int) ([]domain.City, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ListErr != nil {
		return nil, fmt.Errorf("%w: list candidates: %w", domain.ErrPersistence, s.ListErr)
	}

	out := make([]domain.City, 0)
	for _, c := range s.cities {
		if c.Status == domain.StatusInactive && c.Description == nil {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
