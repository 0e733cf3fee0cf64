package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/bundlecast/internal/weather"
)

// geocodeFunc matches geocoder.Geocoding.
type geocodeFunc func(geocoder.Address) (geocoder.Location, error)

// GoogleGeocoder resolves post codes through the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey  string
	lookup  geocodeFunc
	backoff BackoffConfig
	circuit *gobreaker.CircuitBreaker
}

// The geocoder package keeps its API key in a package variable. It is set
// once per constructor call and never while a lookup is running, so a hung
// lookup cannot stall other vendors.
var apiKeyMu sync.Mutex

// NewGoogleGeocoder installs apiKey as the process-wide geocoding key.
func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	if apiKey != "" {
		apiKeyMu.Lock()
		geocoder.ApiKey = apiKey
		apiKeyMu.Unlock()
	}
	return &GoogleGeocoder{
		apiKey:  apiKey,
		lookup:  geocoder.Geocoding,
		backoff: DefaultBackoff,
		circuit: newBreaker("geocoder"),
	}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, loc weather.Location) (weather.Coordinates, error) {
	if g.apiKey == "" {
		return weather.Coordinates{}, fmt.Errorf("geocoder api key is not configured")
	}
	if strings.TrimSpace(loc.PostalCode) == "" {
		return weather.Coordinates{}, fmt.Errorf("empty post code")
	}

	address := geocoder.Address{
		PostalCode: strings.TrimSpace(loc.PostalCode),
		Country:    strings.TrimSpace(loc.Country),
	}

	result, err := executeWithResilience(ctx, g.backoff, g.circuit, func() (interface{}, error) {
		type outcome struct {
			loc geocoder.Location
			err error
		}
		done := make(chan outcome, 1)
		go func() {
			l, err := g.lookup(address)
			done <- outcome{l, err}
		}()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case o := <-done:
			if o.err != nil {
				return nil, o.err
			}
			if o.loc.Latitude == 0 && o.loc.Longitude == 0 {
				return nil, permanentError{fmt.Errorf("no result for %q", address.PostalCode)}
			}
			return weather.Coordinates{Lat: o.loc.Latitude, Lon: o.loc.Longitude}, nil
		}
	})
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("geocode %s: %w", loc.Key(), err)
	}
	return result.(weather.Coordinates), nil
}
