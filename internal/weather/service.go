package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/metrics"
)

const dateLayout = "2006-01-02"

var (
	// ErrNoProviders is returned when no weather provider is configured.
	ErrNoProviders = errors.New("no weather providers configured")
	// ErrNoReadings is returned when every provider failed for a date.
	ErrNoReadings = errors.New("no successful provider readings")
	// ErrNoGeocoder is returned by Locate when no geocoder is configured.
	ErrNoGeocoder = errors.New("no geocoder configured")
)

// Options tunes a Service.
type Options struct {
	// Cache stores provider results; nil disables caching.
	Cache Cache
	// TTL of cached precipitation values.
	TTL time.Duration
	// LocationTTL of cached geocoding results.
	LocationTTL time.Duration
	// DefaultCountry is used when a location has no country.
	DefaultCountry string
}

// Service resolves vendor locations and fetches daily precipitation from
// multiple providers, caching the results.
type Service struct {
	providers []Provider
	geocoder  Geocoder
	opts      Options
}

// NewService creates a new Service.
func NewService(geocoder Geocoder, providers []Provider, opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.LocationTTL <= 0 {
		opts.LocationTTL = 30 * 24 * time.Hour
	}
	return &Service{
		providers: providers,
		geocoder:  geocoder,
		opts:      opts,
	}
}

// Locate resolves a postal code to coordinates.
func (s *Service) Locate(ctx context.Context, postalCode, country string) (Coordinates, error) {
	if s.geocoder == nil {
		return Coordinates{}, ErrNoGeocoder
	}
	if strings.TrimSpace(country) == "" {
		country = s.opts.DefaultCountry
	}
	loc := Location{PostalCode: postalCode, Country: country}
	key := "geo:" + loc.Key()

	var coords Coordinates
	if s.cacheGet(ctx, key, &coords) {
		return coords, nil
	}

	coords, err := s.geocoder.Geocode(ctx, loc)
	if err != nil {
		return Coordinates{}, err
	}
	s.cacheSet(ctx, key, coords, s.opts.LocationTTL)
	return coords, nil
}

// Precipitation returns the total rainfall in mm at coords on date.
func (s *Service) Precipitation(ctx context.Context, coords Coordinates, date time.Time) (float64, error) {
	daily, err := s.Daily(ctx, coords, date)
	if err != nil {
		return 0, err
	}
	return daily.PrecipMM, nil
}

// Daily fetches data from all providers concurrently for the given day,
// aggregates successful readings and caches the result.
func (s *Service) Daily(ctx context.Context, coords Coordinates, date time.Time) (DailyPrecipitation, error) {
	if len(s.providers) == 0 {
		return DailyPrecipitation{}, ErrNoProviders
	}

	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	key := fmt.Sprintf("precip:%s:%s", coords.Key(), day.Format(dateLayout))

	var cached DailyPrecipitation
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		readings []PrecipitationReading
		errs     []error
	)

	for _, p := range s.providers {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()

			r, err := p.DailyPrecipitation(ctx, coords, day)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Keep going; partial success is enough.
				metrics.ProviderFailures.WithLabelValues(p.Name()).Inc()
				logger.Warn("provider fetch failed", "provider", p.Name(), "date", day.Format(dateLayout), "err", err)
				errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
				return
			}
			readings = append(readings, r)
		}()
	}

	wg.Wait()

	if len(readings) == 0 {
		return DailyPrecipitation{}, fmt.Errorf("%w for %s: %w", ErrNoReadings, day.Format(dateLayout), errors.Join(errs...))
	}

	daily := AggregateReadings(coords, day, readings)
	s.cacheSet(ctx, key, daily, s.opts.TTL)
	return daily, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.opts.Cache == nil {
		return false
	}
	ok, err := s.opts.Cache.Get(ctx, key, dest)
	if err != nil {
		logger.Warn("weather cache read failed", "key", key, "err", err)
		return false
	}
	if ok {
		metrics.WeatherCacheHits.Inc()
	}
	return ok
}

func (s *Service) cacheSet(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if s.opts.Cache == nil {
		return
	}
	if err := s.opts.Cache.Set(ctx, key, value, ttl); err != nil {
		logger.Warn("weather cache write failed", "key", key, "err", err)
	}
}
