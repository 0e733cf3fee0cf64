package forecast_test

import (
	"context"
	"testing"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
	"github.com/i474232898/bundlecast/internal/store"
)

// testNow is a Thursday.
var testNow = time.Date(2025, 3, 20, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func date(s string) time.Time {
	d, err := forecast.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func slotAt(hour int) forecast.Slot {
	return forecast.SlotFor(forecast.NewClock(hour, 0))
}

type fixture struct {
	store    *store.MemoryStore
	vendorID int64
	products map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	vendorID, err := s.SaveVendor(ctx, forecast.Vendor{Name: "Green Kitchen", PostalCode: "E1 6AN", Country: "GB"})
	if err != nil {
		t.Fatalf("save vendor: %v", err)
	}
	f := &fixture{store: s, vendorID: vendorID, products: make(map[string]int64)}
	f.product(t, "Vegan Bowl", 10, 4)
	f.product(t, "Pastry Box", 8, 2)
	return f
}

func (f *fixture) product(t *testing.T, title string, value, cost float64) int64 {
	t.Helper()
	id, err := f.store.SaveProduct(context.Background(), forecast.Product{
		VendorID: f.vendorID, Title: title, EstimatedValue: value, Cost: cost,
	})
	if err != nil {
		t.Fatalf("save product: %v", err)
	}
	f.products[title] = id
	return id
}

func (f *fixture) bundle(t *testing.T, templateID int64, day string, hour, minute int, status forecast.ReservationStatus) {
	t.Helper()
	ev := forecast.BundleEvent{TemplateID: templateID, Date: date(day), Time: forecast.NewClock(hour, minute)}
	if status != "" {
		ev.Reservation = &forecast.Reservation{Status: status}
	}
	if _, err := f.store.SaveBundle(context.Background(), f.vendorID, ev); err != nil {
		t.Fatalf("save bundle: %v", err)
	}
}

func (f *fixture) input(t *testing.T, templateID int64, day string, hour, posted, reserved, noShows int, precip float64) {
	t.Helper()
	rec := forecast.InputSlotRecord{
		InputKey:        forecast.InputKey{VendorID: f.vendorID, TemplateID: templateID, Date: date(day), Slot: slotAt(hour)},
		BundlesPosted:   posted,
		BundlesReserved: reserved,
		NoShows:         noShows,
		Precipitation:   precip,
	}
	if err := f.store.UpsertInputs(context.Background(), []forecast.InputSlotRecord{rec}); err != nil {
		t.Fatalf("upsert input: %v", err)
	}
}
