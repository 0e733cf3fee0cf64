package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/bundlecast/internal/forecast"
	"github.com/i474232898/bundlecast/internal/logger"
)

// Runner is the part of the pipeline the scheduler drives.
type Runner interface {
	RunNightly(ctx context.Context, vendorID int64) forecast.RunResult
	RunForecast(ctx context.Context, vendorID int64, start time.Time) forecast.RunResult
	RunAll(ctx context.Context, vendorIDs []int64, stage string, run func(context.Context, int64) forecast.RunResult) []forecast.RunResult
}

// Config holds the daily run times in UTC "HH:MM".
type Config struct {
	NightlyAt  string
	ForecastAt string
}

// Scheduler runs the nightly aggregation and enrichment, then the weekly
// forecast refresh, for every configured vendor.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	vendorIDs []int64
	cfg       Config
}

// New creates a new Scheduler.
func New(vendorIDs []int64, cfg Config, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		vendorIDs: vendorIDs,
		cfg:       cfg,
	}
}

// Start schedules both jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if len(s.vendorIDs) == 0 {
		logger.Info("scheduler: no vendors configured; nothing to schedule")
		return nil
	}

	if _, err := s.scheduler.Every(1).Day().At(s.cfg.NightlyAt).Tag("nightly").Do(s.Nightly); err != nil {
		return err
	}
	if _, err := s.scheduler.Every(1).Day().At(s.cfg.ForecastAt).Tag("forecast").Do(s.Forecast); err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Info("scheduler started", "vendors", len(s.vendorIDs), "nightly", s.cfg.NightlyAt, "forecast", s.cfg.ForecastAt)
	return nil
}

// Nightly aggregates and enriches every vendor.
func (s *Scheduler) Nightly() []forecast.RunResult {
	logger.Info("scheduler: running nightly job")
	results := s.runner.RunAll(context.Background(), s.vendorIDs, "nightly", s.runner.RunNightly)
	logger.Info("scheduler: completed nightly job", "failed", failed(results))
	return results
}

// Forecast generates the week starting tomorrow for every vendor.
func (s *Scheduler) Forecast() []forecast.RunResult {
	logger.Info("scheduler: running forecast job")
	results := s.runner.RunAll(context.Background(), s.vendorIDs, "forecast", func(ctx context.Context, id int64) forecast.RunResult {
		return s.runner.RunForecast(ctx, id, time.Time{})
	})
	logger.Info("scheduler: completed forecast job", "failed", failed(results))
	return results
}

// Jobs reports the number of scheduled jobs.
func (s *Scheduler) Jobs() int {
	return len(s.scheduler.Jobs())
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func failed(results []forecast.RunResult) int {
	n := 0
	for _, r := range results {
		if !r.OK() {
			n++
		}
	}
	return n
}
