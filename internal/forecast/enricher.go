package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/metrics"
	"github.com/i474232898/bundlecast/internal/weather"
)

// EnrichReport summarises one enrichment run.
type EnrichReport struct {
	RunID       string    `json:"run_id"`
	VendorID    int64     `json:"vendor_id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Eligible    int       `json:"eligible"`
	Dates       int       `json:"dates"`
	Updated     int       `json:"updated"`
	FailedDates []string  `json:"failed_dates,omitempty"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
}

// Summary is the human-readable outcome shown to operators.
func (r EnrichReport) Summary() string {
	switch {
	case r.Error != "":
		return r.Error
	case len(r.FailedDates) > 0:
		return fmt.Sprintf("failed on %d day(s)", len(r.FailedDates))
	case r.Eligible == 0:
		return "no eligible forecast inputs"
	}
	return fmt.Sprintf("updated weather for %d record(s)", r.Updated)
}

// Enricher fills in the precipitation of input records once the weather of
// their date is final.
type Enricher struct {
	inputs  InputStore
	vendors Vendors
	source  WeatherSource
	cfg     settings
}

// NewEnricher creates an Enricher looking 60 days back and skipping the last 5.
func NewEnricher(inputs InputStore, vendors Vendors, source WeatherSource, opts ...Option) *Enricher {
	opts = append([]Option{WithLookbackDays(60)}, opts...)
	return &Enricher{
		inputs:  inputs,
		vendors: vendors,
		source:  source,
		cfg:     newSettings(opts),
	}
}

// Enrich looks up the daily precipitation of every date with pending records
// and patches them. A failing date keeps its records pending and is listed in
// the report; it does not fail the run. An unresolvable vendor location
// returns the report together with an error wrapping ErrUnresolvableLocation.
func (e *Enricher) Enrich(ctx context.Context, vendorID int64) (EnrichReport, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("enrich").Observe(time.Since(start).Seconds())
	}()

	today := e.cfg.today()
	from := AddDays(today, -e.cfg.lookbackDays)
	to := AddDays(today, -e.cfg.minAgeDays)

	report := EnrichReport{
		RunID:    uuid.NewString(),
		VendorID: vendorID,
		From:     from.Format(DateLayout),
		To:       to.Format(DateLayout),
	}
	if vendorID <= 0 {
		return report, fmt.Errorf("%w: vendor=%d", ErrInvalidKey, vendorID)
	}

	pending, err := e.inputs.ListInputs(ctx, InputQuery{
		VendorID:             vendorID,
		From:                 from,
		To:                   to,
		PendingPrecipitation: true,
	})
	if err != nil {
		return report, fmt.Errorf("list pending inputs for vendor %d: %w", vendorID, err)
	}
	report.Eligible = len(pending)
	if len(pending) == 0 {
		report.FinishedAt = e.cfg.now().UTC()
		logger.Info("no eligible forecast inputs", "vendor", vendorID)
		return report, nil
	}

	coords, err := e.locate(ctx, vendorID)
	if err != nil {
		metrics.LocationFailures.Inc()
		report.Error = err.Error()
		report.FinishedAt = e.cfg.now().UTC()
		logger.Warn("vendor location unresolved, enrichment skipped", "vendor", vendorID, "err", err)
		return report, err
	}

	dates := distinctDates(pending)
	report.Dates = len(dates)

	results := e.lookupAll(ctx, coords, dates)

	for _, res := range results {
		if res.err != nil {
			metrics.PrecipitationFailedDates.Inc()
			report.FailedDates = append(report.FailedDates, res.date.Format(DateLayout))
			logger.Warn("weather lookup failed", "vendor", vendorID, "date", res.date.Format(DateLayout), "err", res.err)
			continue
		}
		n, err := e.inputs.SetPrecipitation(ctx, vendorID, res.date, res.mm)
		if err != nil {
			return report, fmt.Errorf("set precipitation for %s: %w", res.date.Format(DateLayout), err)
		}
		report.Updated += n
	}
	metrics.PrecipitationUpdated.Add(float64(report.Updated))
	report.FinishedAt = e.cfg.now().UTC()

	logger.Info("enrichment finished", "vendor", vendorID, "summary", report.Summary(), "run", report.RunID)
	return report, nil
}

func (e *Enricher) locate(ctx context.Context, vendorID int64) (weather.Coordinates, error) {
	v, err := e.vendors.Vendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return weather.Coordinates{}, fmt.Errorf("%w: vendor %d not found", ErrUnresolvableLocation, vendorID)
		}
		return weather.Coordinates{}, fmt.Errorf("load vendor %d: %w", vendorID, err)
	}
	if strings.TrimSpace(v.PostalCode) == "" {
		return weather.Coordinates{}, fmt.Errorf("%w: vendor %d has no post code", ErrUnresolvableLocation, vendorID)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.lookupTimeout)
	defer cancel()

	coords, err := e.source.Locate(lookupCtx, v.PostalCode, v.Country)
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("%w: post code %q: %v", ErrUnresolvableLocation, v.PostalCode, err)
	}
	return coords, nil
}

type dateResult struct {
	date time.Time
	mm   float64
	err  error
}

// lookupAll queries each date concurrently, each under its own timeout. The
// results come back in date order.
func (e *Enricher) lookupAll(ctx context.Context, coords weather.Coordinates, dates []time.Time) []dateResult {
	results := make([]dateResult, len(dates))
	sem := make(chan struct{}, e.cfg.concurrency)
	var wg sync.WaitGroup

	for i, d := range dates {
		wg.Add(1)
		go func(i int, d time.Time) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = dateResult{date: d, err: fmt.Errorf("%w: %v", ErrExternalService, ctx.Err())}
				return
			}

			dateCtx, cancel := context.WithTimeout(ctx, e.cfg.lookupTimeout)
			defer cancel()

			mm, err := e.source.Precipitation(dateCtx, coords, d)
			if err != nil {
				results[i] = dateResult{date: d, err: fmt.Errorf("%w: %v", ErrExternalService, err)}
				return
			}
			if mm < 0 {
				results[i] = dateResult{date: d, err: fmt.Errorf("%w: negative precipitation %v", ErrExternalService, mm)}
				return
			}
			results[i] = dateResult{date: d, mm: mm}
		}(i, d)
	}

	wg.Wait()
	return results
}

func distinctDates(records []InputSlotRecord) []time.Time {
	seen := make(map[time.Time]bool)
	var dates []time.Time
	for _, r := range records {
		d := Day(r.Date)
		if seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
