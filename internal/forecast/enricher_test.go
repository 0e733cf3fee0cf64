package forecast_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
	"github.com/i474232898/bundlecast/internal/weather"
)

type fakeWeather struct {
	mu        sync.Mutex
	locateErr error
	rain      map[string]float64
	fail      map[string]bool
	block     map[string]bool
	calls     int
}

func (w *fakeWeather) Locate(context.Context, string, string) (weather.Coordinates, error) {
	if w.locateErr != nil {
		return weather.Coordinates{}, w.locateErr
	}
	return weather.Coordinates{Lat: 51.5, Lon: -0.07}, nil
}

func (w *fakeWeather) Precipitation(ctx context.Context, _ weather.Coordinates, d time.Time) (float64, error) {
	key := d.Format(forecast.DateLayout)

	w.mu.Lock()
	w.calls++
	fail, block := w.fail[key], w.block[key]
	mm := w.rain[key]
	w.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if fail {
		return 0, errors.New("upstream returned 503")
	}
	return mm, nil
}

func precipitationOf(t *testing.T, f *fixture, templateID int64, day string, hour int) float64 {
	t.Helper()
	rec, err := f.store.FindInput(context.Background(), forecast.InputKey{
		VendorID: f.vendorID, TemplateID: templateID, Date: date(day), Slot: slotAt(hour),
	})
	if err != nil {
		t.Fatalf("find input: %v", err)
	}
	return rec.Precipitation
}

// TestEnrichPartialFailure: one of three dates fails, the other two are
// patched and the failed one keeps the sentinel.
func TestEnrichPartialFailure(t *testing.T) {
	f := newFixture(t)
	bowl := f.products["Vegan Bowl"]
	f.input(t, bowl, "2025-03-01", 12, 5, 4, 0, forecast.PrecipitationUnknown)
	f.input(t, bowl, "2025-03-01", 16, 5, 2, 0, forecast.PrecipitationUnknown)
	f.input(t, bowl, "2025-03-02", 12, 5, 3, 1, forecast.PrecipitationUnknown)
	f.input(t, bowl, "2025-03-03", 12, 5, 5, 0, forecast.PrecipitationUnknown)

	src := &fakeWeather{
		rain: map[string]float64{"2025-03-01": 3.2, "2025-03-03": 0},
		fail: map[string]bool{"2025-03-02": true},
	}
	enr := forecast.NewEnricher(f.store, f.store, src, forecast.WithNow(fixedNow))

	report, err := enr.Enrich(context.Background(), f.vendorID)
	if err != nil {
		t.Fatalf("partial failure must not fail the run: %v", err)
	}
	if report.Eligible != 4 || report.Dates != 3 {
		t.Fatalf("expected 4 eligible records on 3 dates, got %+v", report)
	}
	if report.Updated != 3 {
		t.Fatalf("expected 3 records updated, got %d", report.Updated)
	}
	if len(report.FailedDates) != 1 || report.FailedDates[0] != "2025-03-02" {
		t.Fatalf("unexpected failed dates %v", report.FailedDates)
	}
	if got := report.Summary(); got != "failed on 1 day(s)" {
		t.Fatalf("unexpected summary %q", got)
	}

	if got := precipitationOf(t, f, bowl, "2025-03-01", 12); got != 3.2 {
		t.Fatalf("expected 3.2, got %v", got)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-01", 16); got != 3.2 {
		t.Fatalf("expected 3.2, got %v", got)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-03", 12); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-02", 12); got != forecast.PrecipitationUnknown {
		t.Fatalf("expected failed date to keep -1, got %v", got)
	}
}

func TestEnrichEligibilityWindow(t *testing.T) {
	f := newFixture(t)
	bowl := f.products["Vegan Bowl"]
	f.input(t, bowl, "2025-03-18", 12, 1, 1, 0, forecast.PrecipitationUnknown) // too recent
	f.input(t, bowl, "2025-01-01", 12, 1, 1, 0, forecast.PrecipitationUnknown) // too old
	f.input(t, bowl, "2025-03-10", 12, 1, 1, 0, 4.0)                           // already known
	f.input(t, bowl, "2025-03-15", 12, 1, 1, 0, forecast.PrecipitationUnknown) // exactly five days old

	src := &fakeWeather{rain: map[string]float64{"2025-03-15": 1.1}}
	enr := forecast.NewEnricher(f.store, f.store, src, forecast.WithNow(fixedNow))

	report, err := enr.Enrich(context.Background(), f.vendorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Eligible != 1 || report.Updated != 1 {
		t.Fatalf("expected only the 2025-03-15 record, got %+v", report)
	}
	if src.calls != 1 {
		t.Fatalf("expected one weather lookup, got %d", src.calls)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-18", 12); got != forecast.PrecipitationUnknown {
		t.Fatalf("recent record touched: %v", got)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-10", 12); got != 4.0 {
		t.Fatalf("known record overwritten: %v", got)
	}
}

func TestEnrichUnresolvableLocation(t *testing.T) {
	f := newFixture(t)
	bowl := f.products["Vegan Bowl"]
	f.input(t, bowl, "2025-03-01", 12, 5, 4, 0, forecast.PrecipitationUnknown)

	src := &fakeWeather{locateErr: errors.New("ZERO_RESULTS")}
	enr := forecast.NewEnricher(f.store, f.store, src, forecast.WithNow(fixedNow))

	report, err := enr.Enrich(context.Background(), f.vendorID)
	if !errors.Is(err, forecast.ErrUnresolvableLocation) {
		t.Fatalf("expected ErrUnresolvableLocation, got %v", err)
	}
	if report.Updated != 0 || src.calls != 0 {
		t.Fatalf("expected no lookups and no updates, got %+v (calls %d)", report, src.calls)
	}
	if got := precipitationOf(t, f, bowl, "2025-03-01", 12); got != forecast.PrecipitationUnknown {
		t.Fatalf("record touched: %v", got)
	}
}

func TestEnrichTimeoutCountsAsFailure(t *testing.T) {
	f := newFixture(t)
	bowl := f.products["Vegan Bowl"]
	f.input(t, bowl, "2025-03-01", 12, 5, 4, 0, forecast.PrecipitationUnknown)
	f.input(t, bowl, "2025-03-02", 12, 5, 4, 0, forecast.PrecipitationUnknown)

	src := &fakeWeather{
		rain:  map[string]float64{"2025-03-02": 0.4},
		block: map[string]bool{"2025-03-01": true},
	}
	enr := forecast.NewEnricher(f.store, f.store, src,
		forecast.WithNow(fixedNow), forecast.WithLookupTimeout(20*time.Millisecond))

	report, err := enr.Enrich(context.Background(), f.vendorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.FailedDates) != 1 || report.FailedDates[0] != "2025-03-01" {
		t.Fatalf("expected the slow date to fail, got %v", report.FailedDates)
	}
	if report.Updated != 1 {
		t.Fatalf("expected the other date to be updated, got %d", report.Updated)
	}
}

func TestEnrichNothingEligible(t *testing.T) {
	f := newFixture(t)
	enr := forecast.NewEnricher(f.store, f.store, &fakeWeather{}, forecast.WithNow(fixedNow))

	report, err := enr.Enrich(context.Background(), f.vendorID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := report.Summary(); got != "no eligible forecast inputs" {
		t.Fatalf("unexpected summary %q", got)
	}
}
