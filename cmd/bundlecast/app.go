package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/i474232898/bundlecast/internal/cache"
	"github.com/i474232898/bundlecast/internal/config"
	"github.com/i474232898/bundlecast/internal/forecast"
	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/store"
	"github.com/i474232898/bundlecast/internal/weather"
	"github.com/i474232898/bundlecast/internal/weather/providers"
)

// App holds the wired components shared by every command.
type App struct {
	Config     *config.AppConfig
	Store      store.Store
	Weather    *weather.Service
	Confidence *forecast.ConfidenceEvaluator
	Pipeline   *forecast.Pipeline

	closers []func() error
}

func newApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile}); err != nil {
		return nil, fmt.Errorf("failed to init logger: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.StoreDriver,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	app := &App{Config: cfg, Store: st, closers: []func() error{st.Close}}

	app.Weather = app.newWeatherService(ctx)

	inputs := forecast.WithLookbackDays(cfg.AggregateLookbackDays)
	app.Confidence = forecast.NewConfidenceEvaluator(st, forecast.WithWeeks(cfg.ConfidenceWeeks))
	app.Pipeline = &forecast.Pipeline{
		Aggregator: forecast.NewAggregator(st, st, st, inputs),
		Enricher: forecast.NewEnricher(st, st, app.Weather,
			forecast.WithLookbackDays(cfg.EnrichLookbackDays),
			forecast.WithMinAgeDays(cfg.EnrichMinAgeDays),
			forecast.WithLookupTimeout(cfg.LookupTimeout),
		),
		Generator:     forecast.NewGenerator(st, st, st, app.Confidence),
		VendorTimeout: cfg.VendorRunTimeout,
	}

	logger.Info("bundlecast ready", "store", cfg.StoreDriver, "vendors", len(cfg.VendorIDs))
	return app, nil
}

func (a *App) newWeatherService(ctx context.Context) *weather.Service {
	cfg := a.Config

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Providers with resilience (backoff + circuit breaker). Open-Meteo needs no key.
	provs := []weather.Provider{
		providers.NewOpenMeteoArchiveProvider(httpClient, cfg.WeatherArchiveURL, cfg.WeatherTimezone),
	}
	if cfg.OpenWeatherAPIKey != "" {
		provs = append(provs, providers.NewOpenWeatherProvider(httpClient, cfg.OpenWeatherAPIKey))
	}
	if cfg.WeatherAPIKey != "" {
		provs = append(provs, providers.NewWeatherAPIProvider(httpClient, cfg.WeatherAPIKey))
	}

	var geo weather.Geocoder
	if cfg.GeocoderAPIKey != "" {
		geo = providers.NewGoogleGeocoder(cfg.GeocoderAPIKey)
	} else {
		logger.Warn("GOOGLE_GEOCODER_API_KEY not set; weather enrichment will skip every vendor")
	}

	return weather.NewService(geo, provs, weather.Options{
		Cache:          a.newCache(ctx),
		TTL:            cfg.WeatherCacheTTL,
		DefaultCountry: cfg.GeocoderCountry,
	})
}

// newCache prefers Redis and falls back to an in-process cache.
func (a *App) newCache(ctx context.Context) weather.Cache {
	if a.Config.RedisURL == "" {
		return cache.NewMemoryCache()
	}

	rc, err := cache.NewRedisCache(ctx, a.Config.RedisURL, 5)
	if err != nil {
		logger.Warn("redis unavailable, using in-memory weather cache", "err", err)
		return cache.NewMemoryCache()
	}
	a.closers = append(a.closers, rc.Close)
	return rc
}

// Close releases the store and cache connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}
}

// vendorIDs returns the explicit vendor or the configured list.
func (a *App) vendorIDs(vendor int64) ([]int64, error) {
	if vendor > 0 {
		return []int64{vendor}, nil
	}
	if len(a.Config.VendorIDs) == 0 {
		return nil, fmt.Errorf("no vendor given and VENDOR_IDS is empty")
	}
	return a.Config.VendorIDs, nil
}
