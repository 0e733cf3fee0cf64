package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
)

type AggregateCmd struct {
	Vendor int64 `help:"Vendor to aggregate; defaults to VENDOR_IDS."`
	Days   int   `help:"Lookback window in days; defaults to AGGREGATE_LOOKBACK_DAYS."`
}

func (c *AggregateCmd) Run(app *App) error {
	ids, err := app.vendorIDs(c.Vendor)
	if err != nil {
		return err
	}
	results := app.Pipeline.RunAll(context.Background(), ids, "aggregate", func(ctx context.Context, id int64) forecast.RunResult {
		res := forecast.RunResult{VendorID: id}
		report, err := app.Pipeline.Aggregator.Aggregate(ctx, id, c.Days)
		res.Aggregate = &report
		if err != nil {
			res.Err = err.Error()
		}
		return res
	})
	return printResults(results)
}

type EnrichCmd struct {
	Vendor int64 `help:"Vendor to enrich; defaults to VENDOR_IDS."`
}

func (c *EnrichCmd) Run(app *App) error {
	ids, err := app.vendorIDs(c.Vendor)
	if err != nil {
		return err
	}
	results := app.Pipeline.RunAll(context.Background(), ids, "enrich", func(ctx context.Context, id int64) forecast.RunResult {
		res := forecast.RunResult{VendorID: id}
		report, err := app.Pipeline.Enricher.Enrich(ctx, id)
		res.Enrich = &report
		if err != nil {
			res.Err = err.Error()
		}
		return res
	})
	return printResults(results)
}

type ForecastCmd struct {
	Vendor int64  `help:"Vendor to forecast; defaults to VENDOR_IDS."`
	Start  string `help:"First day of the target week (YYYY-MM-DD); defaults to tomorrow."`
}

func (c *ForecastCmd) Run(app *App) error {
	ids, err := app.vendorIDs(c.Vendor)
	if err != nil {
		return err
	}
	var start time.Time
	if c.Start != "" {
		if start, err = forecast.ParseDate(c.Start); err != nil {
			return err
		}
	}
	results := app.Pipeline.RunAll(context.Background(), ids, "forecast", func(ctx context.Context, id int64) forecast.RunResult {
		return app.Pipeline.RunForecast(ctx, id, start)
	})
	return printResults(results)
}

type ConfidenceCmd struct {
	Vendor   int64  `required:"" help:"Vendor id."`
	Template int64  `required:"" help:"Product template id."`
	Date     string `required:"" help:"Target date (YYYY-MM-DD)."`
}

func (c *ConfidenceCmd) Run(app *App) error {
	target, err := forecast.ParseDate(c.Date)
	if err != nil {
		return err
	}
	ctx := context.Background()

	samples, err := app.Confidence.Samples(ctx, c.Vendor, c.Template, target)
	if err != nil {
		return err
	}
	score, err := app.Confidence.Evaluate(ctx, c.Vendor, c.Template, target)
	if err != nil {
		return err
	}
	return printJSON(map[string]interface{}{
		"vendor_id":   c.Vendor,
		"template_id": c.Template,
		"date":        target.Format(forecast.DateLayout),
		"samples":     samples,
		"confidence":  score,
	})
}

type MigrateCmd struct{}

// Run reports success; the schema was applied when the store was opened.
func (c *MigrateCmd) Run(app *App) error {
	fmt.Printf("schema applied to %s store\n", app.Config.StoreDriver)
	return nil
}

func printResults(results []forecast.RunResult) error {
	if err := printJSON(results); err != nil {
		return err
	}
	failed := 0
	for _, r := range results {
		if !r.OK() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d vendor run(s) failed", failed, len(results))
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
