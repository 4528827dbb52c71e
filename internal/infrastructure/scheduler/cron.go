package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"PollutionSync/internal/ports"
)

// IntervalScheduler triggers a job on a fixed interval using time.Ticker.
// Runs are sequential, so a job never overlaps itself.
type IntervalScheduler struct {
	interval   time.Duration
	runOnStart bool
	location   *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler; trigger times are reported in location (UTC when nil).
func NewIntervalScheduler(interval time.Duration, runOnStart bool, location *time.Location) *IntervalScheduler {
	if location == nil {
		location = time.UTC
	}
	return &IntervalScheduler{interval: interval, runOnStart: runOnStart, location: location}
}

// Start begins ticking. Starting an already running scheduler is a no-op.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}
	if s.interval <= 0 {
		return errors.New("scheduler interval must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		if s.runOnStart {
			job(time.Now().In(s.location))
		}
		for {
			select {
			case t := <-ticker.C:
				job(t.In(s.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for an in-flight run to return,
// or for ctx to end.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
