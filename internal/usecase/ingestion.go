package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PollutionSync/internal/cityname"
	"PollutionSync/internal/domain"
	"PollutionSync/internal/logging"
	"PollutionSync/internal/metrics"
	"PollutionSync/internal/ports"
)

// DefaultPageLimit is the page size requested from the pollution API.
const DefaultPageLimit = 50

// IngestionDeps wires the driven adapters into the ingestion job.
type IngestionDeps struct {
	Source     ports.PollutionSource
	Repository ports.CityRepository
	Countries  []domain.Country
	PageLimit  int
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// IngestionReport summarizes one ingestion run.
type IngestionReport struct {
	Processed       int
	Created         int
	Updated         int
	Failed          int
	FailedCountries []string
}

// IngestionJob pulls every page of pollution data per country and reconciles
// it into the city store.
type IngestionJob struct {
	source     ports.PollutionSource
	repository ports.CityRepository
	countries  []domain.Country
	pageLimit  int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewIngestionJob constructs the job; countries default to the supported set.
func NewIngestionJob(deps IngestionDeps) *IngestionJob {
	countries := deps.Countries
	if len(countries) == 0 {
		countries = domain.SupportedCountries()
	}
	limit := deps.PageLimit
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	return &IngestionJob{
		source:     deps.Source,
		repository: deps.Repository,
		countries:  countries,
		pageLimit:  limit,
		logger:     logging.OrDiscard(deps.Logger),
		metrics:    deps.Metrics,
	}
}

// Run ingests all countries in order. A country whose pages cannot be fetched
// is skipped. An authentication failure aborts the run only while no page has
// been fetched yet; later ones skip the country and the next fetch logs in again.
func (j *IngestionJob) Run(ctx context.Context) (IngestionReport, error) {
	var report IngestionReport
	if j.source == nil || j.repository == nil {
		return report, errors.New("ingestion job is not configured")
	}

	var fetchedAny bool

	started := time.Now()
	j.logger.Info("starting pollution data ingestion", "countries", len(j.countries))

	for _, country := range j.countries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		records, pages, err := j.fetchCountry(ctx, country)
		fetchedAny = fetchedAny || pages > 0
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if !fetchedAny && errors.Is(err, domain.ErrAuthentication) && !errors.Is(err, domain.ErrRetryExhausted) {
				j.logger.Error("authentication failed, aborting ingestion", "country", country.Code, "error", err)
				return report, fmt.Errorf("ingest %s: %w", country.Code, err)
			}
			j.logger.Error("failed to fetch country, skipping", "country", country.Code, "error", err)
			report.FailedCountries = append(report.FailedCountries, country.Code)
			continue
		}

		j.reconcile(ctx, country, records, &report)
	}

	j.logger.Info("pollution data ingestion finished",
		"processed", report.Processed,
		"created", report.Created,
		"updated", report.Updated,
		"failed", report.Failed,
		"failed_countries", report.FailedCountries,
		"duration", time.Since(started),
	)

	return report, nil
}

// fetchCountry reads page 1 and then every remaining page reported by its meta.
// pages counts the pages fetched successfully, also when err is set.
func (j *IngestionJob) fetchCountry(ctx context.Context, country domain.Country) (records []domain.RawCity, pages int, err error) {
	j.logger.Info("fetching country", "country", country.Code)

	first, err := j.source.FetchPage(ctx, country.Code, 1, j.pageLimit)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch page 1: %w", err)
	}
	pages = 1

	records = append(records, first.Results...)
	for page := 2; page <= first.Meta.TotalPages; page++ {
		next, err := j.source.FetchPage(ctx, country.Code, page, j.pageLimit)
		if err != nil {
			return nil, pages, fmt.Errorf("fetch page %d: %w", page, err)
		}
		pages++
		records = append(records, next.Results...)
	}

	j.logger.Info("country fetched", "country", country.Code, "pages", pages, "records", len(records))
	return records, pages, nil
}

func (j *IngestionJob) reconcile(ctx context.Context, country domain.Country, records []domain.RawCity, report *IngestionReport) {
	for _, record := range records {
		report.Processed++

		name := strings.ToValidUTF8(record.Name, "")
		if cityname.Normalize(name) == "" {
			report.Failed++
			j.metrics.IngestedCity(country.Code, metrics.ResultFailed)
			j.logger.Warn("skipping record without a name", "country", country.Code)
			continue
		}

		created, err := j.repository.UpsertPollution(ctx, name, country.Name, record.Pollution)
		if err != nil {
			report.Failed++
			j.metrics.IngestedCity(country.Code, metrics.ResultFailed)
			j.logger.Error("failed to store city", "country", country.Code, "city", name, "error", err)
			continue
		}

		if created {
			report.Created++
			j.metrics.IngestedCity(country.Code, metrics.ResultCreated)
			j.logger.Debug("created city", "country", country.Code, "city", name)
		} else {
			report.Updated++
			j.metrics.IngestedCity(country.Code, metrics.ResultUpdated)
			j.logger.Debug("updated city pollution", "country", country.Code, "city", name)
		}
	}
}
