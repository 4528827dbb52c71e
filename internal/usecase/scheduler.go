package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"PollutionSync/internal/logging"
	"PollutionSync/internal/metrics"
	"PollutionSync/internal/ports"
)

// JobFunc is one execution of a scheduled job.
type JobFunc func(ctx context.Context) error

type scheduledJob struct {
	name   string
	driver ports.Scheduler
	run    JobFunc
}

// Scheduler wires named jobs to their drivers and wraps every run with
// logging and metrics.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []scheduledJob
	started []ports.Scheduler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(log *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{logger: logging.OrDiscard(log), metrics: m}
}

// Register adds a job. A nil driver registers the job for RunNow only.
func (s *Scheduler) Register(name string, driver ports.Scheduler, run JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{name: name, driver: driver, run: run})
}

// Start hands every registered job to its driver.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, job := range s.jobs {
		if job.driver == nil || job.run == nil {
			continue
		}
		trigger := func(at time.Time) {
			_ = s.execute(ctx, job, at)
		}
		if err := job.driver.Start(ctx, trigger); err != nil {
			return fmt.Errorf("start job %s: %w", job.name, err)
		}
		s.started = append(s.started, job.driver)
		s.logger.Info("job scheduled", "job", job.name)
	}
	return nil
}

// Stop gracefully tears down every started driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	started := s.started
	s.started = nil
	s.mu.Unlock()

	var errs []error
	for _, driver := range started {
		if err := driver.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunNow executes the named job once on the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var (
		job   scheduledJob
		found bool
	)
	for _, j := range s.jobs {
		if j.name == name {
			job, found = j, true
			break
		}
	}
	s.mu.Unlock()

	if !found || job.run == nil {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.execute(ctx, job, time.Now())
}

func (s *Scheduler) execute(ctx context.Context, job scheduledJob, trigger time.Time) error {
	started := time.Now()
	s.logger.Info("job started", "job", job.name, "trigger", trigger)

	err := job.run(ctx)
	elapsed := time.Since(started)
	s.metrics.JobRun(job.name, err, elapsed)

	if err != nil {
		s.logger.Error("job failed", "job", job.name, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Info("job finished", "job", job.name, "duration", elapsed)
	return nil
}
