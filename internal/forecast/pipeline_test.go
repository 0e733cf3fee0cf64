package forecast_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
)

func newPipeline(f *fixture, src *fakeWeather) *forecast.Pipeline {
	opts := []forecast.Option{forecast.WithNow(fixedNow)}
	return &forecast.Pipeline{
		Aggregator:    forecast.NewAggregator(f.store, f.store, f.store, opts...),
		Enricher:      forecast.NewEnricher(f.store, f.store, src, opts...),
		Generator:     newGenerator(f, nil),
		VendorTimeout: time.Second,
	}
}

func TestPipelineNightlyThenForecast(t *testing.T) {
	f := newFixture(t)
	bowl := f.products["Vegan Bowl"]
	f.bundle(t, bowl, "2025-03-14", 12, 15, forecast.StatusCollected) // eligible for weather
	f.bundle(t, bowl, "2025-03-17", 12, 15, forecast.StatusCollected)
	f.bundle(t, bowl, "2025-03-17", 13, 0, forecast.StatusNoShow)

	p := newPipeline(f, &fakeWeather{rain: map[string]float64{"2025-03-14": 2.5}})
	ctx := context.Background()

	nightly := p.RunNightly(ctx, f.vendorID)
	if !nightly.OK() {
		t.Fatalf("nightly run failed: %s", nightly.Err)
	}
	if nightly.Aggregate.Upserted != 2 || nightly.Enrich.Updated != 1 {
		t.Fatalf("unexpected nightly result %+v %+v", nightly.Aggregate, nightly.Enrich)
	}

	res := p.RunForecast(ctx, f.vendorID, time.Time{})
	if !res.OK() || !res.Forecast.Generated {
		t.Fatalf("forecast run failed: %+v", res)
	}
	if dp := res.Forecast.Days[3].Datapoints; len(dp) != 1 || dp[0].PredictedSales != 2 || dp[0].NoShowCount != 1 {
		t.Fatalf("unexpected Monday datapoints %+v", dp)
	}
}

// TestPipelineLocationFailureIsNotFatal keeps aggregation results when the
// vendor cannot be geocoded.
func TestPipelineLocationFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, f.products["Vegan Bowl"], "2025-03-10", 12, 0, forecast.StatusCollected)

	p := newPipeline(f, &fakeWeather{locateErr: errors.New("ZERO_RESULTS")})
	res := p.RunNightly(context.Background(), f.vendorID)
	if !res.OK() {
		t.Fatalf("expected run to succeed, got %s", res.Err)
	}
	if res.Enrich == nil || res.Enrich.Error == "" {
		t.Fatalf("expected the location error in the enrich report, got %+v", res.Enrich)
	}
}

func TestPipelineRunAllIsolatesVendors(t *testing.T) {
	f := newFixture(t)
	f.bundle(t, f.products["Vegan Bowl"], "2025-03-17", 12, 0, forecast.StatusCollected)

	p := newPipeline(f, &fakeWeather{})
	results := p.RunAll(context.Background(), []int64{f.vendorID, -1}, "nightly", p.RunNightly)

	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].OK() {
		t.Fatalf("expected first vendor to succeed, got %s", results[0].Err)
	}
	if results[1].OK() || results[1].VendorID != -1 {
		t.Fatalf("expected invalid vendor to fail on its own, got %+v", results[1])
	}
}
