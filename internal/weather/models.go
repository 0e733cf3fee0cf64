package weather

import (
	"fmt"
	"strings"
	"time"
)

// Location is a vendor address as stored in the vendor profile.
// PostalCode must be provided; Country defaults to the configured one.
type Location struct {
	PostalCode string `json:"postCode"`
	Country    string `json:"country"`
}

// Key returns a canonical string key for caching lookups of this location.
func (l Location) Key() string {
	pc := strings.ToUpper(strings.Join(strings.Fields(l.PostalCode), ""))
	return pc + ":" + strings.ToUpper(strings.TrimSpace(l.Country))
}

// Coordinates is a resolved geographic position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key rounds to four decimals (about 10m), enough to share cached readings.
func (c Coordinates) Key() string {
	return fmt.Sprintf("%.4f,%.4f", c.Lat, c.Lon)
}

// DailyPrecipitation is the aggregated rainfall of one calendar day.
type DailyPrecipitation struct {
	Coordinates Coordinates `json:"coordinates"`
	Date        time.Time   `json:"date"`
	PrecipMM    float64     `json:"precipMm"`

	// Providers contributing to this value.
	Providers []ProviderContribution `json:"providers,omitempty"`
}

// ProviderContribution describes data coming from a single provider used in aggregation.
type ProviderContribution struct {
	ProviderName string  `json:"provider"`
	PrecipMM     float64 `json:"precipMm"`
}
