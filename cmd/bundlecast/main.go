package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
)

var CLI struct {
	Version kong.VersionFlag

	Serve      ServeCmd      `cmd:"" help:"Run the HTTP API and the nightly scheduler." default:"1"`
	Aggregate  AggregateCmd  `cmd:"" help:"Rebuild forecast inputs from recent bundles."`
	Enrich     EnrichCmd     `cmd:"" help:"Fill in precipitation for forecast inputs."`
	Forecast   ForecastCmd   `cmd:"" help:"Generate the seasonal naive forecast for a week."`
	Confidence ConfidenceCmd `cmd:"" help:"Score the confidence of a template on a date."`
	Migrate    MigrateCmd    `cmd:"" help:"Apply the database schema."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("bundlecast"),
		kong.Description("Demand forecasting for surprise bundles"),
		kong.UsageOnError(),
		kong.Vars{"version": "v0.1.0"},
	)

	app, err := newApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	err = ctx.Run(app)
	app.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
