package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InputsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_aggregator_inputs_upserted_total",
		Help: "Total number of forecast input records written by the aggregator.",
	})
	MissingProducts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_aggregator_missing_products_total",
		Help: "Total number of products absent from the catalog during discount lookup.",
	})
	PrecipitationUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_enricher_records_updated_total",
		Help: "Total number of input records whose precipitation was filled in.",
	})
	PrecipitationFailedDates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_enricher_dates_failed_total",
		Help: "Total number of dates whose weather lookup failed.",
	})
	LocationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_enricher_location_failures_total",
		Help: "Total number of enrichment runs skipped because the vendor location could not be resolved.",
	})
	ForecastsUpserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_generator_forecasts_upserted_total",
		Help: "Total number of forecast output records written.",
	})
	InsufficientHistory = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_confidence_insufficient_history_total",
		Help: "Total number of confidence evaluations that fell back to the neutral value.",
	})
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bundlecast_weather_provider_failures_total",
		Help: "Total number of failed weather provider calls.",
	}, []string{"provider"})
	WeatherCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bundlecast_weather_cache_hits_total",
		Help: "Total number of weather lookups served from cache.",
	})
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bundlecast_stage_duration_seconds",
		Help:    "Duration of a pipeline stage for one vendor.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	}, []string{"stage"})
)
