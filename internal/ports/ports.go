package ports

import (
	"context"
	"time"

	"PollutionSync/internal/domain"
)

// PollutionSource pulls paginated pollution measurements from the upstream API.
type PollutionSource interface {
	FetchPage(ctx context.Context, country string, page, limit int) (domain.PollutionPage, error)
}

// CityRepository persists cities and answers the status-aware queries of both jobs and the read API.
type CityRepository interface {
	Exists(ctx context.Context, cityName string) (bool, error)
	Create(ctx context.Context, city domain.NewCity) (domain.City, error)
	UpdateByName(ctx context.Context, cityName string, update domain.CityUpdate) (int64, error)
	UpsertPollution(ctx context.Context, cityName, countryName string, pollution *float64) (bool, error)
	ListActiveByCountry(ctx context.Context, countryName string, page, limit int) (domain.CityPage, error)
	ListInactiveWithoutDescription(ctx context.Context, limit int) ([]domain.City, error)
}

// DescriptionSource fetches a short free-text summary for a place name.
// found is false when the source has nothing for the name.
type DescriptionSource interface {
	Describe(ctx context.Context, name string) (description string, found bool, err error)
}

// CachedPage is a pollution page captured at a point in time.
type CachedPage struct {
	Page       domain.PollutionPage
	CapturedAt time.Time
}

// ResponseCache stores raw pollution pages; freshness is decided by the caller.
type ResponseCache interface {
	Get(ctx context.Context, key string) (CachedPage, bool, error)
	Set(ctx context.Context, key string, entry CachedPage) error
	Delete(ctx context.Context, key string) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
