package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/bundlecast/internal/weather"
)

// DefaultArchiveURL is the Open-Meteo historical weather endpoint.
const DefaultArchiveURL = "https://archive-api.open-meteo.com/v1/archive"

// OpenMeteoArchiveProvider implements the weather.Provider interface for the
// Open-Meteo archive. It needs no API key.
type OpenMeteoArchiveProvider struct {
	name     string
	baseURL  string
	timezone string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

// NewOpenMeteoArchiveProvider creates the provider. Empty baseURL and
// timezone fall back to DefaultArchiveURL and Europe/London.
func NewOpenMeteoArchiveProvider(client *http.Client, baseURL, timezone string) *OpenMeteoArchiveProvider {
	if baseURL == "" {
		baseURL = DefaultArchiveURL
	}
	if timezone == "" {
		timezone = "Europe/London"
	}
	return &OpenMeteoArchiveProvider{
		name:     "openmeteo",
		baseURL:  baseURL,
		timezone: timezone,
		httpCfg:  httpConfig(client),
		circuit:  newBreaker("openmeteo"),
	}
}

func (p *OpenMeteoArchiveProvider) Name() string {
	return p.name
}

// WithBackoff overrides the retry policy.
func (p *OpenMeteoArchiveProvider) WithBackoff(b BackoffConfig) *OpenMeteoArchiveProvider {
	p.httpCfg.Backoff = b
	return p
}

func (p *OpenMeteoArchiveProvider) DailyPrecipitation(ctx context.Context, coords weather.Coordinates, date time.Time) (weather.PrecipitationReading, error) {
	day := date.Format("2006-01-02")

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", coords.Lat))
		values.Set("longitude", fmt.Sprintf("%f", coords.Lon))
		values.Set("start_date", day)
		values.Set("end_date", day)
		values.Set("daily", "precipitation_sum")
		values.Set("timezone", p.timezone)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return weather.PrecipitationReading{}, err
	}
	defer resp.Body.Close()

	var payload struct {
		Daily struct {
			Time             []string   `json:"time"`
			PrecipitationSum []*float64 `json:"precipitation_sum"`
		} `json:"daily"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.PrecipitationReading{}, err
	}

	for i, t := range payload.Daily.Time {
		if t != day || i >= len(payload.Daily.PrecipitationSum) {
			continue
		}
		// The archive returns null for days it has not processed yet.
		if v := payload.Daily.PrecipitationSum[i]; v != nil {
			return weather.PrecipitationReading{
				ProviderName: p.name,
				Date:         date,
				PrecipMM:     *v,
			}, nil
		}
	}
	return weather.PrecipitationReading{}, fmt.Errorf("openmeteo: %w %s", errNoData, day)
}
