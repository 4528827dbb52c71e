package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"PollutionSync/internal/cityname"
	"PollutionSync/internal/domain"
	"PollutionSync/internal/logging"
	"PollutionSync/internal/metrics"
	"PollutionSync/internal/ports"
)

// Enrichment defaults.
const (
	DefaultBatchSize      = 5
	DefaultCandidateLimit = 200
	DefaultBatchPause     = 2 * time.Second
)

// EnrichmentDeps wires the driven adapters into the enrichment job.
type EnrichmentDeps struct {
	Repository     ports.CityRepository
	Describer      ports.DescriptionSource
	BatchSize      int
	CandidateLimit int
	BatchPause     time.Duration
	// Sleep waits between batches; it must return early with ctx.Err() on cancellation.
	Sleep   func(ctx context.Context, d time.Duration) error
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// EnrichmentReport summarizes one enrichment run.
type EnrichmentReport struct {
	Candidates  int
	Batches     int
	Activated   int
	Invalidated int
	Failed      int
}

// EnrichmentJob attaches descriptions to inactive cities in rate-limited batches.
// Each city ends up active with a description, or invalid.
type EnrichmentJob struct {
	repository     ports.CityRepository
	describer      ports.DescriptionSource
	batchSize      int
	candidateLimit int
	pause          time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewEnrichmentJob constructs the job with defaults for unset limits.
func NewEnrichmentJob(deps EnrichmentDeps) *EnrichmentJob {
	job := &EnrichmentJob{
		repository:     deps.Repository,
		describer:      deps.Describer,
		batchSize:      deps.BatchSize,
		candidateLimit: deps.CandidateLimit,
		pause:          deps.BatchPause,
		sleep:          deps.Sleep,
		logger:         logging.OrDiscard(deps.Logger),
		metrics:        deps.Metrics,
	}
	if job.batchSize <= 0 {
		job.batchSize = DefaultBatchSize
	}
	if job.candidateLimit <= 0 {
		job.candidateLimit = DefaultCandidateLimit
	}
	if job.pause < 0 {
		job.pause = 0
	}
	if job.sleep == nil {
		job.sleep = sleepContext
	}
	return job
}

// Run processes up to the candidate limit of inactive cities. A nil error
// means the run completed; per-city failures are only counted in the report.
func (j *EnrichmentJob) Run(ctx context.Context) (EnrichmentReport, error) {
	var report EnrichmentReport
	if j.repository == nil || j.describer == nil {
		return report, errors.New("enrichment job is not configured")
	}

	candidates, err := j.repository.ListInactiveWithoutDescription(ctx, j.candidateLimit)
	if err != nil {
		j.logger.Error("failed to list enrichment candidates", "error", err)
		return report, fmt.Errorf("%w: %w", domain.ErrCandidateFetch, err)
	}

	report.Candidates = len(candidates)
	if len(candidates) == 0 {
		j.logger.Info("no cities to enrich")
		return report, nil
	}

	started := time.Now()
	batches := chunk(candidates, j.batchSize)
	j.logger.Info("starting city enrichment", "candidates", len(candidates), "batches", len(batches))

	for i, batch := range batches {
		outcomes, err := j.processBatch(ctx, batch)
		report.add(outcomes)
		if err != nil {
			j.logger.Warn("enrichment interrupted", "batch", i+1, "error", err)
			return report, err
		}
		report.Batches++

		j.logger.Info("batch processed", "batch", i+1, "of", len(batches), "size", len(batch))

		if i < len(batches)-1 && j.pause > 0 {
			if err := j.sleep(ctx, j.pause); err != nil {
				return report, err
			}
		}
	}

	j.logger.Info("city enrichment finished",
		"activated", report.Activated,
		"invalidated", report.Invalidated,
		"failed", report.Failed,
		"duration", time.Since(started),
	)
	return report, nil
}

// processBatch enriches every city of the batch concurrently. The returned
// error is non-nil only when ctx ends.
func (j *EnrichmentJob) processBatch(ctx context.Context, batch []domain.City) ([]string, error) {
	outcomes := make([]string, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(batch))
	for i, city := range batch {
		g.Go(func() error {
			outcome, err := j.enrichCity(gctx, city)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}

	err := g.Wait()
	return outcomes, err
}

func (j *EnrichmentJob) enrichCity(ctx context.Context, city domain.City) (string, error) {
	trimmed := cityname.Normalize(city.CityName)

	var (
		description string
		found       bool
	)
	if cityname.IsValid(city.CityName) {
		text, ok, err := j.describer.Describe(ctx, trimmed)
		switch {
		case err != nil && ctx.Err() != nil:
			return "", ctx.Err()
		case err != nil:
			j.logger.Warn("description lookup failed", "city", trimmed, "error", err)
		default:
			description, found = text, ok
		}
	} else {
		j.logger.Debug("invalid city name, skipping lookup", "city", city.CityName)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	update := domain.CityUpdate{CityName: &trimmed}
	status := domain.StatusInvalid
	outcome := metrics.ResultInvalid
	if found {
		status = domain.StatusActive
		outcome = metrics.ResultActive
		update.Description = &description
	}
	update.Status = &status

	_, err := j.repository.UpdateByName(ctx, city.CityName, update)
	if errors.Is(err, domain.ErrDuplicateCity) && ctx.Err() == nil {
		// Another row already holds the trimmed name; settle this one under its stored name.
		j.logger.Warn("trimmed name already stored, keeping original name", "city", city.CityName, "trimmed", trimmed)
		update.CityName = nil
		_, err = j.repository.UpdateByName(ctx, city.CityName, update)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		j.logger.Error("failed to update city", "city", city.CityName, "status", status, "error", err)
		j.metrics.EnrichedCity(metrics.ResultFailed)
		return metrics.ResultFailed, nil
	}

	j.metrics.EnrichedCity(outcome)
	j.logger.Debug("city enriched", "city", trimmed, "status", status)
	return outcome, nil
}

func (r *EnrichmentReport) add(outcomes []string) {
	for _, o := range outcomes {
		switch o {
		case metrics.ResultActive:
			r.Activated++
		case metrics.ResultInvalid:
			r.Invalidated++
		case metrics.ResultFailed:
			r.Failed++
		}
	}
}

func chunk(cities []domain.City, size int) [][]domain.City {
	batches := make([][]domain.City, 0, (len(cities)+size-1)/size)
	for start := 0; start < len(cities); start += size {
		end := min(start+size, len(cities))
		batches = append(batches, cities[start:end])
	}
	return batches
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
