package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/pkorhonen/ilmaris/internal/fmi"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

// ObservationFetcher is the slice of the FMI client the scheduler needs.
type ObservationFetcher interface {
	FetchObservations(ctx context.Context) (*fmi.ObservationResult, error)
}

// ObservationStore is the slice of the store the scheduler needs.
type ObservationStore interface {
	UpsertStations(ctx context.Context, stations []weather.Station) error
	UpsertObservations(ctx context.Context, observations []weather.Observation) error
}

// Scheduler periodically pulls all-station observations and persists them.
// Cycle failures are logged and absorbed; the next tick simply retries. The
// interval itself (minutes) is the only backoff.
type Scheduler struct {
	scheduler *gocron.Scheduler
	fetcher   ObservationFetcher
	store     ObservationStore
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// New creates a Scheduler. timeout bounds each cycle's upstream call.
func New(fetcher ObservationFetcher, store ObservationStore, interval, timeout time.Duration, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		fetcher:   fetcher,
		store:     store,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job, runs it once immediately, and starts the
// underlying scheduler asynchronously.
func (s *Scheduler) Start() error {
	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 10
	}

	_, err := s.scheduler.Every(minutes).Minutes().StartImmediately().Do(s.RunCycle)
	if err != nil {
		return err
	}

	s.logger.Infow("observation fetcher starting", "interval", s.interval)
	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.logger.Info("observation fetcher stopped")
}

// RunCycle performs one fetch-parse-store cycle. An empty upstream result is
// a transient upstream quirk: it is logged and skipped so previously known
// stations are never wiped by it.
func (s *Scheduler) RunCycle() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	result, err := s.fetcher.FetchObservations(ctx)
	if err != nil {
		s.logger.Errorw("failed to fetch observations", "error", err)
		return
	}
	if len(result.Stations) == 0 {
		s.logger.Warn("observation fetch returned no stations")
		return
	}

	if err := s.store.UpsertStations(ctx, result.Stations); err != nil {
		s.logger.Errorw("failed to upsert stations", "error", err)
		return
	}
	if err := s.store.UpsertObservations(ctx, result.Observations); err != nil {
		s.logger.Errorw("failed to upsert observations", "error", err)
		return
	}

	s.logger.Infow("observations fetched",
		"stations", len(result.Stations),
		"observations", len(result.Observations),
		"duration", time.Since(start),
	)
}
