package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/bundlecast/internal/forecast"
	"github.com/i474232898/bundlecast/internal/store"
	"github.com/i474232898/bundlecast/internal/weather"
)

// Thursday.
var testNow = time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)

type stubWeather struct {
	locateErr error
	mm        float64
}

func (w stubWeather) Locate(context.Context, string, string) (weather.Coordinates, error) {
	if w.locateErr != nil {
		return weather.Coordinates{}, w.locateErr
	}
	return weather.Coordinates{Lat: 51.5, Lon: -0.07}, nil
}

func (w stubWeather) Precipitation(context.Context, weather.Coordinates, time.Time) (float64, error) {
	return w.mm, nil
}

type testEnv struct {
	app      *fiber.App
	store    *store.MemoryStore
	vendorID int64
	bowlID   int64
}

func newTestEnv(t *testing.T, w stubWeather) *testEnv {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	vendorID, err := s.SaveVendor(ctx, forecast.Vendor{Name: "Green Kitchen", PostalCode: "E1 6AN", Country: "GB"})
	if err != nil {
		t.Fatalf("save vendor: %v", err)
	}
	bowlID, err := s.SaveProduct(ctx, forecast.Product{VendorID: vendorID, Title: "Vegan Bowl", EstimatedValue: 10, Cost: 4})
	if err != nil {
		t.Fatalf("save product: %v", err)
	}

	now := forecast.WithNow(func() time.Time { return testNow })
	confidence := forecast.NewConfidenceEvaluator(s, now)
	pipeline := &forecast.Pipeline{
		Aggregator: forecast.NewAggregator(s, s, s, now),
		Enricher:   forecast.NewEnricher(s, s, w, now),
		Generator:  forecast.NewGenerator(s, s, s, confidence, now),
	}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterRoutes(app, Deps{Pipeline: pipeline, Confidence: confidence, Store: s})

	return &testEnv{app: app, store: s, vendorID: vendorID, bowlID: bowlID}
}

func (e *testEnv) input(t *testing.T, day string, hour, reserved int, precip float64) {
	t.Helper()
	d, err := forecast.ParseDate(day)
	if err != nil {
		t.Fatalf("parse date: %v", err)
	}
	rec := forecast.InputSlotRecord{
		InputKey: forecast.InputKey{
			VendorID:   e.vendorID,
			TemplateID: e.bowlID,
			Date:       d,
			Slot:       forecast.SlotFor(forecast.NewClock(hour, 0)),
		},
		BundlesPosted:   reserved,
		BundlesReserved: reserved,
		Precipitation:   precip,
	}
	if err := e.store.UpsertInputs(context.Background(), []forecast.InputSlotRecord{rec}); err != nil {
		t.Fatalf("upsert input: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, target string, out interface{}) int {
	t.Helper()
	resp, err := e.app.Test(httptest.NewRequest(method, target, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode body: %v", err)
		}
	}
	return resp.StatusCode
}

func vendorURL(id int64, path string) string {
	return "/api/v1/vendors/" + itoa(id) + path
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, stubWeather{})

	var body map[string]interface{}
	if code := env.do(t, http.MethodGet, "/health", &body); code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}

	if code := env.do(t, http.MethodGet, "/metrics", nil); code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
}

func TestVendorIDValidation(t *testing.T) {
	env := newTestEnv(t, stubWeather{})

	for _, target := range []string{
		"/api/v1/vendors/abc/forecast/naive",
		"/api/v1/vendors/0/forecast/naive",
		"/api/v1/vendors/-3/enrich",
	} {
		t.Run(target, func(t *testing.T) {
			method := http.MethodGet
			if target == "/api/v1/vendors/-3/enrich" {
				method = http.MethodPost
			}
			var body map[string]interface{}
			if code := env.do(t, method, target, &body); code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, code)
			}
			if body["error"] != true {
				t.Fatalf("expected error flag, got %v", body)
			}
		})
	}
}

func TestNaiveForecast(t *testing.T) {
	env := newTestEnv(t, stubWeather{})
	env.input(t, "2025-03-17", 12, 5, 0)

	var week forecast.WeekForecast
	code := env.do(t, http.MethodGet, vendorURL(env.vendorID, "/forecast/naive?start_date=2025-03-24"), &week)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if !week.Generated {
		t.Fatalf("expected generated forecast, got message %q", week.Message)
	}
	if len(week.Days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(week.Days))
	}
	points := week.Days[0].Datapoints
	if len(points) != 1 {
		t.Fatalf("expected 1 datapoint on Monday, got %d", len(points))
	}
	if points[0].PredictedSales != 5 || points[0].ProductName != "Vegan Bowl" {
		t.Fatalf("unexpected datapoint: %+v", points[0])
	}

	var stored struct {
		Forecasts []forecast.OutputForecastRecord `json:"forecasts"`
	}
	code = env.do(t, http.MethodGet, vendorURL(env.vendorID, "/forecast/stored?from=2025-03-24&to=2025-03-30"), &stored)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if len(stored.Forecasts) != 1 {
		t.Fatalf("expected 1 stored forecast, got %d", len(stored.Forecasts))
	}
}

func TestNaiveForecastWithoutHistory(t *testing.T) {
	env := newTestEnv(t, stubWeather{})

	var week forecast.WeekForecast
	code := env.do(t, http.MethodGet, vendorURL(env.vendorID, "/forecast/naive"), &week)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if week.Generated {
		t.Fatalf("expected no forecast to be generated")
	}
	if week.WeekStart != "2025-03-21" {
		t.Fatalf("expected week to start tomorrow, got %s", week.WeekStart)
	}
	if week.Message == "" {
		t.Fatalf("expected a message explaining the empty forecast")
	}
}

func TestQueryValidation(t *testing.T) {
	env := newTestEnv(t, stubWeather{})

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"bad start date", http.MethodGet, "/forecast/naive?start_date=24-03-2025"},
		{"stored missing to", http.MethodGet, "/forecast/stored?from=2025-03-24"},
		{"stored inverted range", http.MethodGet, "/forecast/stored?from=2025-03-30&to=2025-03-24"},
		{"confidence missing template", http.MethodGet, "/confidence?date=2025-03-24"},
		{"confidence bad date", http.MethodGet, "/confidence?template_id=1&date=tomorrow"},
		{"aggregate window too long", http.MethodPost, "/aggregate?days=1000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := env.do(t, tt.method, vendorURL(env.vendorID, tt.path), nil); code != http.StatusBadRequest {
				t.Fatalf("expected status %d, got %d", http.StatusBadRequest, code)
			}
		})
	}
}

func TestConfidenceWithoutHistoryIsNeutral(t *testing.T) {
	env := newTestEnv(t, stubWeather{})

	var body struct {
		Confidence float64 `json:"confidence"`
	}
	code := env.do(t, http.MethodGet, vendorURL(env.vendorID, "/confidence?template_id="+itoa(env.bowlID)+"&date=2025-03-24"), &body)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if body.Confidence != forecast.NeutralConfidence {
		t.Fatalf("expected %v, got %v", forecast.NeutralConfidence, body.Confidence)
	}
}

func TestAggregate(t *testing.T) {
	env := newTestEnv(t, stubWeather{})
	ev := forecast.BundleEvent{
		TemplateID:  env.bowlID,
		Date:        time.Date(2025, 3, 19, 0, 0, 0, 0, time.UTC),
		Time:        forecast.NewClock(12, 10),
		Reservation: &forecast.Reservation{Status: forecast.StatusCollected},
	}
	if _, err := env.store.SaveBundle(context.Background(), env.vendorID, ev); err != nil {
		t.Fatalf("save bundle: %v", err)
	}

	var report forecast.AggregateReport
	code := env.do(t, http.MethodPost, vendorURL(env.vendorID, "/aggregate?days=7"), &report)
	if code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, code)
	}
	if report.Upserted != 1 {
		t.Fatalf("expected 1 upserted record, got %d", report.Upserted)
	}
	if report.Since != "2025-03-13" {
		t.Fatalf("expected since 2025-03-13, got %s", report.Since)
	}
}

func TestEnrich(t *testing.T) {
	t.Run("updates pending records", func(t *testing.T) {
		env := newTestEnv(t, stubWeather{mm: 2.5})
		env.input(t, "2025-03-10", 12, 3, forecast.PrecipitationUnknown)

		var report forecast.EnrichReport
		code := env.do(t, http.MethodPost, vendorURL(env.vendorID, "/enrich"), &report)
		if code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, code)
		}
		if report.Updated != 1 {
			t.Fatalf("expected 1 updated record, got %d", report.Updated)
		}
	})

	t.Run("unresolvable location", func(t *testing.T) {
		env := newTestEnv(t, stubWeather{locateErr: errors.New("postcode not found")})
		env.input(t, "2025-03-10", 12, 3, forecast.PrecipitationUnknown)

		code := env.do(t, http.MethodPost, vendorURL(env.vendorID, "/enrich"), nil)
		if code != http.StatusUnprocessableEntity {
			t.Fatalf("expected status %d, got %d", http.StatusUnprocessableEntity, code)
		}
	})
}
