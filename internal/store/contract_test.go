package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
)

func day(s string) time.Time {
	d, err := time.Parse(forecast.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

func slotAt(hour int) forecast.Slot {
	return forecast.SlotFor(forecast.NewClock(hour, 0))
}

// runContract exercises the behaviour every Store implementation must share.
func runContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	vendorID, err := s.SaveVendor(ctx, forecast.Vendor{Name: "Corner Bakery", PostalCode: "SW1A 1AA", Country: "GB"})
	if err != nil {
		t.Fatalf("save vendor: %v", err)
	}
	templateID, err := s.SaveProduct(ctx, forecast.Product{VendorID: vendorID, Title: "Pastry", EstimatedValue: 10, Cost: 4})
	if err != nil {
		t.Fatalf("save product: %v", err)
	}

	t.Run("vendor and catalog", func(t *testing.T) {
		v, err := s.Vendor(ctx, vendorID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v.PostalCode != "SW1A 1AA" || v.Country != "GB" {
			t.Fatalf("unexpected vendor %+v", v)
		}
		if _, err := s.Vendor(ctx, vendorID+1000); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		p, err := s.Product(ctx, templateID)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Title != "Pastry" || p.Discount() != 0.6 {
			t.Fatalf("unexpected product %+v", p)
		}
		if _, err := s.Product(ctx, templateID+1000); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		products, err := s.Products(ctx, vendorID)
		if err != nil || len(products) != 1 {
			t.Fatalf("expected 1 product, got %d (%v)", len(products), err)
		}
	})

	t.Run("bundle events", func(t *testing.T) {
		bundles := []forecast.BundleEvent{
			{TemplateID: templateID, Date: day("2025-03-03"), Time: forecast.NewClock(9, 15)},
			{TemplateID: templateID, Date: day("2025-03-03"), Time: forecast.NewClock(10, 30),
				Reservation: &forecast.Reservation{Status: forecast.StatusNoShow}},
			{TemplateID: templateID, Date: day("2025-02-01"), Time: forecast.NewClock(12, 0)},
		}
		for _, b := range bundles {
			if _, err := s.SaveBundle(ctx, vendorID, b); err != nil {
				t.Fatalf("save bundle: %v", err)
			}
		}

		events, err := s.BundleEvents(ctx, vendorID, day("2025-03-01"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("expected 2 events since 2025-03-01, got %d", len(events))
		}
		if events[0].Time != forecast.NewClock(9, 15) || events[0].Reservation != nil {
			t.Fatalf("unexpected first event %+v", events[0])
		}
		if events[1].Reservation == nil || events[1].Reservation.Status != forecast.StatusNoShow {
			t.Fatalf("expected no-show reservation on second event, got %+v", events[1].Reservation)
		}
		if !events[1].Date.Equal(day("2025-03-03")) {
			t.Fatalf("unexpected date %s", events[1].Date)
		}
	})

	key := forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-03"), Slot: slotAt(8)}

	t.Run("input upsert is idempotent", func(t *testing.T) {
		rec := forecast.InputSlotRecord{
			InputKey:        key,
			BundlesPosted:   3,
			BundlesReserved: 2,
			NoShows:         1,
			Discount:        0.6,
			Precipitation:   forecast.PrecipitationUnknown,
		}
		if err := s.UpsertInputs(ctx, []forecast.InputSlotRecord{rec}); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		rec.BundlesPosted = 5
		if err := s.UpsertInputs(ctx, []forecast.InputSlotRecord{rec}); err != nil {
			t.Fatalf("second upsert: %v", err)
		}

		got, err := s.FindInput(ctx, key)
		if err != nil {
			t.Fatalf("find input: %v", err)
		}
		if got.BundlesPosted != 5 || got.BundlesReserved != 2 || got.NoShows != 1 {
			t.Fatalf("unexpected record %+v", got)
		}
		if got.Slot != slotAt(8) || !got.Date.Equal(key.Date) {
			t.Fatalf("key not preserved: %+v", got.InputKey)
		}

		all, err := s.ListInputs(ctx, forecast.InputQuery{VendorID: vendorID})
		if err != nil {
			t.Fatalf("list inputs: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("expected exactly one row for the key, got %d", len(all))
		}
	})

	t.Run("invalid key rejects the whole batch", func(t *testing.T) {
		other := key
		other.Date = day("2025-03-04")
		batch := []forecast.InputSlotRecord{
			{InputKey: other, Precipitation: forecast.PrecipitationUnknown},
			{InputKey: forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-04")}},
		}
		err := s.UpsertInputs(ctx, batch)
		if !errors.Is(err, forecast.ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey, got %v", err)
		}
		if _, err := s.FindInput(ctx, other); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected nothing written, got %v", err)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		more := []forecast.InputSlotRecord{
			{InputKey: forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-05"), Slot: slotAt(12)},
				BundlesReserved: 4, Precipitation: 1.5},
			{InputKey: forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-05"), Slot: slotAt(10)},
				BundlesReserved: 1, Precipitation: forecast.PrecipitationUnknown},
		}
		if err := s.UpsertInputs(ctx, more); err != nil {
			t.Fatalf("upsert: %v", err)
		}

		tests := []struct {
			name  string
			query forecast.InputQuery
			want  int
		}{
			{"all", forecast.InputQuery{VendorID: vendorID}, 3},
			{"date range", forecast.InputQuery{VendorID: vendorID, From: day("2025-03-04"), To: day("2025-03-05")}, 2},
			{"pending only", forecast.InputQuery{VendorID: vendorID, PendingPrecipitation: true}, 2},
			{"other template", forecast.InputQuery{VendorID: vendorID, TemplateID: templateID + 1000}, 0},
			{"other vendor", forecast.InputQuery{VendorID: vendorID + 1000}, 0},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				got, err := s.ListInputs(ctx, tc.query)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if len(got) != tc.want {
					t.Fatalf("expected %d records, got %d", tc.want, len(got))
				}
			})
		}

		got, _ := s.ListInputs(ctx, forecast.InputQuery{VendorID: vendorID, From: day("2025-03-05"), To: day("2025-03-05")})
		if len(got) != 2 || got[0].Slot != slotAt(10) || got[1].Slot != slotAt(12) {
			t.Fatalf("expected records ordered by slot, got %+v", got)
		}
	})

	t.Run("set precipitation patches pending rows only", func(t *testing.T) {
		n, err := s.SetPrecipitation(ctx, vendorID, day("2025-03-05"), 2.25)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 row updated, got %d", n)
		}
		known, _ := s.FindInput(ctx, forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-05"), Slot: slotAt(12)})
		if known.Precipitation != 1.5 {
			t.Fatalf("known precipitation overwritten: %v", known.Precipitation)
		}
		patched, _ := s.FindInput(ctx, forecast.InputKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-05"), Slot: slotAt(10)})
		if patched.Precipitation != 2.25 {
			t.Fatalf("expected 2.25, got %v", patched.Precipitation)
		}
	})

	t.Run("forecast upsert and listing", func(t *testing.T) {
		fk := forecast.ForecastKey{VendorID: vendorID, TemplateID: templateID, Date: day("2025-03-10"), Slot: slotAt(22), ModelType: forecast.ModelSeasonalNaive}
		rec := forecast.OutputForecastRecord{
			ForecastKey:           fk,
			ReservationPrediction: 2,
			NoShowPrediction:      1,
			Confidence:            0.5,
			Recommendation:        "Post 2 Pastry bundles on Mon by 21:00",
			Rationale:             "last Mon sold 2 Pastry bundles, therefore you will sell 2 this Mon",
			UpdatedAt:             time.Date(2025, 3, 9, 3, 0, 0, 0, time.UTC),
		}
		if err := s.UpsertForecasts(ctx, []forecast.OutputForecastRecord{rec}); err != nil {
			t.Fatalf("first upsert: %v", err)
		}
		rec.Confidence = 0.75
		if err := s.UpsertForecasts(ctx, []forecast.OutputForecastRecord{rec}); err != nil {
			t.Fatalf("second upsert: %v", err)
		}

		got, err := s.FindForecast(ctx, fk)
		if err != nil {
			t.Fatalf("find forecast: %v", err)
		}
		if got.Confidence != 0.75 || got.Recommendation != rec.Recommendation {
			t.Fatalf("unexpected forecast %+v", got)
		}
		if got.Slot.End != forecast.NewClock(0, 0) {
			t.Fatalf("expected 22:00 slot to end at 00:00, got %s", got.Slot)
		}
		if !got.UpdatedAt.Equal(rec.UpdatedAt) {
			t.Fatalf("expected updated_at %s, got %s", rec.UpdatedAt, got.UpdatedAt)
		}

		list, err := s.ListForecasts(ctx, forecast.ForecastQuery{VendorID: vendorID, From: day("2025-03-10"), To: day("2025-03-16"), ModelType: forecast.ModelSeasonalNaive})
		if err != nil {
			t.Fatalf("list forecasts: %v", err)
		}
		if len(list) != 1 {
			t.Fatalf("expected 1 forecast, got %d", len(list))
		}

		missing := fk
		missing.ModelType = "other"
		if _, err := s.FindForecast(ctx, missing); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("health", func(t *testing.T) {
		if err := s.Health(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
