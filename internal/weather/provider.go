package weather

import (
	"context"
	"time"
)

// PrecipitationReading is a single provider's total rainfall for one day.
type PrecipitationReading struct {
	ProviderName string
	Date         time.Time
	PrecipMM     float64
}

// Provider abstracts a historical weather source (e.g. Open-Meteo archive, WeatherAPI).
type Provider interface {
	Name() string
	DailyPrecipitation(ctx context.Context, coords Coordinates, date time.Time) (PrecipitationReading, error)
}

// Geocoder resolves a postal address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, loc Location) (Coordinates, error)
}

// Cache is the contract of the response cache (Redis or in-memory).
// Get reports whether the key was found and decodes it into dest.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}
