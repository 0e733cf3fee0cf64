package forecast

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/bundlecast/internal/logger"
)

// RunResult is the outcome of one pipeline run for one vendor.
type RunResult struct {
	VendorID  int64            `json:"vendor_id"`
	Aggregate *AggregateReport `json:"aggregate,omitempty"`
	Enrich    *EnrichReport    `json:"enrich,omitempty"`
	Forecast  *WeekForecast    `json:"forecast,omitempty"`
	Err       string           `json:"error,omitempty"`
}

// OK reports whether the run finished without a fatal error.
func (r RunResult) OK() bool {
	return r.Err == ""
}

// Pipeline chains the stages in dependency order. Vendors are independent
// and run concurrently.
type Pipeline struct {
	Aggregator *Aggregator
	Enricher   *Enricher
	Generator  *Generator

	// VendorTimeout bounds a single vendor's run. Zero means no limit.
	VendorTimeout time.Duration
}

// RunNightly aggregates yesterday's bookings and fills in any weather that
// has become final. An unresolvable location is reported but does not fail
// the run.
func (p *Pipeline) RunNightly(ctx context.Context, vendorID int64) RunResult {
	res := RunResult{VendorID: vendorID}

	agg, err := p.Aggregator.Aggregate(ctx, vendorID, 0)
	res.Aggregate = &agg
	if err != nil {
		res.Err = err.Error()
		return res
	}

	enr, err := p.Enricher.Enrich(ctx, vendorID)
	res.Enrich = &enr
	if err != nil && !errors.Is(err, ErrUnresolvableLocation) {
		res.Err = err.Error()
	}
	return res
}

// RunForecast generates the week starting at start (tomorrow when zero).
func (p *Pipeline) RunForecast(ctx context.Context, vendorID int64, start time.Time) RunResult {
	res := RunResult{VendorID: vendorID}

	week, err := p.Generator.Generate(ctx, vendorID, start)
	res.Forecast = &week
	if err != nil {
		res.Err = err.Error()
	}
	return res
}

// RunAll runs stage for every vendor in its own goroutine and timeout. The
// results are returned in the order of vendorIDs.
func (p *Pipeline) RunAll(ctx context.Context, vendorIDs []int64, stage string, run func(context.Context, int64) RunResult) []RunResult {
	results := make([]RunResult, len(vendorIDs))

	var wg sync.WaitGroup
	for i, id := range vendorIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()

			vctx := ctx
			if p.VendorTimeout > 0 {
				var cancel context.CancelFunc
				vctx, cancel = context.WithTimeout(ctx, p.VendorTimeout)
				defer cancel()
			}

			results[i] = run(vctx, id)
			if !results[i].OK() {
				logger.Error("pipeline stage failed", "stage", stage, "vendor", id, "err", results[i].Err)
			}
		}(i, id)
	}
	wg.Wait()

	logger.Info("pipeline stage completed", "stage", stage, "vendors", len(vendorIDs))
	return results
}
