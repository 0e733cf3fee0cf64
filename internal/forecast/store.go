package forecast

import (
	"context"
	"time"

	"github.com/i474232898/bundlecast/internal/weather"
)

// EventSource is the booking system's view of posted bundles.
type EventSource interface {
	// BundleEvents returns every bundle of the vendor dated on or after since,
	// each joined with its reservation if one exists.
	BundleEvents(ctx context.Context, vendorID int64, since time.Time) ([]BundleEvent, error)
}

// Catalog exposes the product templates of vendors.
type Catalog interface {
	// Product returns ErrNotFound when the template does not exist.
	Product(ctx context.Context, templateID int64) (Product, error)
	Products(ctx context.Context, vendorID int64) ([]Product, error)
}

// Vendors exposes vendor profiles.
type Vendors interface {
	// Vendor returns ErrNotFound when the vendor does not exist.
	Vendor(ctx context.Context, vendorID int64) (Vendor, error)
}

// InputQuery selects input records of one vendor. From and To are inclusive
// calendar dates; a zero TemplateID matches every template.
type InputQuery struct {
	VendorID   int64
	TemplateID int64
	From       time.Time
	To         time.Time

	// PendingPrecipitation restricts the result to rows still carrying
	// PrecipitationUnknown.
	PendingPrecipitation bool
}

// InputStore is the repository of InputSlotRecords. Implementations make
// UpsertInputs atomic per key and apply a whole batch in one transaction.
type InputStore interface {
	UpsertInputs(ctx context.Context, records []InputSlotRecord) error
	FindInput(ctx context.Context, key InputKey) (InputSlotRecord, error)
	ListInputs(ctx context.Context, q InputQuery) ([]InputSlotRecord, error)

	// SetPrecipitation patches every pending record of the vendor on date and
	// returns the number of rows updated.
	SetPrecipitation(ctx context.Context, vendorID int64, date time.Time, mm float64) (int, error)
}

// ForecastQuery selects stored forecasts of one vendor between two inclusive dates.
type ForecastQuery struct {
	VendorID  int64
	From      time.Time
	To        time.Time
	ModelType string
}

// OutputStore is the repository of OutputForecastRecords.
type OutputStore interface {
	UpsertForecasts(ctx context.Context, records []OutputForecastRecord) error
	FindForecast(ctx context.Context, key ForecastKey) (OutputForecastRecord, error)
	ListForecasts(ctx context.Context, q ForecastQuery) ([]OutputForecastRecord, error)
}

// WeatherSource resolves vendor locations and historical precipitation.
type WeatherSource interface {
	Locate(ctx context.Context, postalCode, country string) (weather.Coordinates, error)
	Precipitation(ctx context.Context, coords weather.Coordinates, date time.Time) (float64, error)
}

type settings struct {
	now           func() time.Time
	lookbackDays  int
	minAgeDays    int
	weeks         int
	lookupTimeout time.Duration
	concurrency   int
}

func defaultSettings() settings {
	return settings{
		now:           time.Now,
		lookbackDays:  30,
		minAgeDays:    5,
		weeks:         4,
		lookupTimeout: 20 * time.Second,
		concurrency:   4,
	}
}

func (s settings) today() time.Time {
	return Day(s.now())
}

// Option tunes a pipeline component.
type Option func(*settings)

// WithNow overrides the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLookbackDays sets how far back the Aggregator scans events and the
// Enricher looks for pending records.
func WithLookbackDays(days int) Option {
	return func(s *settings) {
		if days > 0 {
			s.lookbackDays = days
		}
	}
}

// WithMinAgeDays sets how old a date must be before precipitation is looked up.
func WithMinAgeDays(days int) Option {
	return func(s *settings) {
		if days >= 0 {
			s.minAgeDays = days
		}
	}
}

// WithWeeks sets the number of weeks of history scanned by the ConfidenceEvaluator.
func WithWeeks(weeks int) Option {
	return func(s *settings) {
		if weeks > 0 {
			s.weeks = weeks
		}
	}
}

// WithLookupTimeout bounds each per-date weather lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.lookupTimeout = d
		}
	}
}

// WithConcurrency bounds the number of weather lookups in flight.
func WithConcurrency(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
