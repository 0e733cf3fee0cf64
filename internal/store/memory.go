package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/bundlecast/internal/forecast"
)

type memBundle struct {
	vendorID int64
	event    forecast.BundleEvent
}

// MemoryStore is a concurrency-safe in-memory implementation of Store.
// A single mutex serialises writers, which makes every batch atomic.
type MemoryStore struct {
	mu sync.RWMutex

	vendors  map[int64]forecast.Vendor
	products map[int64]forecast.Product
	bundles  []memBundle

	// key: InputKey.String() / ForecastKey.String()
	inputs  map[string]forecast.InputSlotRecord
	outputs map[string]forecast.OutputForecastRecord

	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vendors:  make(map[int64]forecast.Vendor),
		products: make(map[int64]forecast.Product),
		inputs:   make(map[string]forecast.InputSlotRecord),
		outputs:  make(map[string]forecast.OutputForecastRecord),
	}
}

func (s *MemoryStore) id(given int64) int64 {
	if given > 0 {
		if given > s.nextID {
			s.nextID = given
		}
		return given
	}
	s.nextID++
	return s.nextID
}

func (s *MemoryStore) SaveVendor(_ context.Context, v forecast.Vendor) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.ID = s.id(v.ID)
	s.vendors[v.ID] = v
	return v.ID, nil
}

func (s *MemoryStore) SaveProduct(_ context.Context, p forecast.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[p.VendorID]; !ok {
		return 0, fmt.Errorf("vendor %d: %w", p.VendorID, ErrNotFound)
	}
	p.TemplateID = s.id(p.TemplateID)
	s.products[p.TemplateID] = p
	return p.TemplateID, nil
}

func (s *MemoryStore) SaveBundle(_ context.Context, vendorID int64, ev forecast.BundleEvent) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vendors[vendorID]; !ok {
		return 0, fmt.Errorf("vendor %d: %w", vendorID, ErrNotFound)
	}
	ev.ID = s.id(ev.ID)
	ev.Date = forecast.Day(ev.Date)
	s.bundles = append(s.bundles, memBundle{vendorID: vendorID, event: ev})
	return ev.ID, nil
}

func (s *MemoryStore) BundleEvents(_ context.Context, vendorID int64, since time.Time) ([]forecast.BundleEvent, error) {
	since = forecast.Day(since)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []forecast.BundleEvent
	for _, b := range s.bundles {
		if b.vendorID != vendorID || b.event.Date.Before(since) {
			continue
		}
		ev := b.event
		if ev.Reservation != nil {
			r := *ev.Reservation
			ev.Reservation = &r
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Product(_ context.Context, templateID int64) (forecast.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[templateID]
	if !ok {
		return forecast.Product{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) Products(_ context.Context, vendorID int64) ([]forecast.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []forecast.Product
	for _, p := range s.products {
		if p.VendorID == vendorID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TemplateID < out[j].TemplateID })
	return out, nil
}

func (s *MemoryStore) Vendor(_ context.Context, vendorID int64) (forecast.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vendors[vendorID]
	if !ok {
		return forecast.Vendor{}, ErrNotFound
	}
	return v, nil
}

// UpsertInputs validates the whole batch before writing any of it.
func (s *MemoryStore) UpsertInputs(_ context.Context, records []forecast.InputSlotRecord) error {
	if err := validateInputs(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Date = forecast.Day(r.Date)
		s.inputs[r.InputKey.String()] = r
	}
	return nil
}

func (s *MemoryStore) FindInput(_ context.Context, key forecast.InputKey) (forecast.InputSlotRecord, error) {
	key.Date = forecast.Day(key.Date)

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.inputs[key.String()]
	if !ok {
		return forecast.InputSlotRecord{}, ErrNotFound
	}
	return r, nil
}

// ListInputs returns matching records ordered by date, slot and template.
func (s *MemoryStore) ListInputs(_ context.Context, q forecast.InputQuery) ([]forecast.InputSlotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []forecast.InputSlotRecord
	for _, r := range s.inputs {
		if !matchesInput(r, q) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Date, out[i].Slot, out[i].TemplateID, out[j].Date, out[j].Slot, out[j].TemplateID)
	})
	return out, nil
}

func matchesInput(r forecast.InputSlotRecord, q forecast.InputQuery) bool {
	if r.VendorID != q.VendorID {
		return false
	}
	if q.TemplateID != 0 && r.TemplateID != q.TemplateID {
		return false
	}
	if !q.From.IsZero() && r.Date.Before(forecast.Day(q.From)) {
		return false
	}
	if !q.To.IsZero() && r.Date.After(forecast.Day(q.To)) {
		return false
	}
	if q.PendingPrecipitation && r.PrecipitationKnown() {
		return false
	}
	return true
}

func (s *MemoryStore) SetPrecipitation(_ context.Context, vendorID int64, date time.Time, mm float64) (int, error) {
	date = forecast.Day(date)

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, r := range s.inputs {
		if r.VendorID != vendorID || !r.Date.Equal(date) || r.PrecipitationKnown() {
			continue
		}
		r.Precipitation = mm
		s.inputs[k] = r
		n++
	}
	return n, nil
}

func (s *MemoryStore) UpsertForecasts(_ context.Context, records []forecast.OutputForecastRecord) error {
	if err := validateForecasts(records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		r.Date = forecast.Day(r.Date)
		s.outputs[r.ForecastKey.String()] = r
	}
	return nil
}

func (s *MemoryStore) FindForecast(_ context.Context, key forecast.ForecastKey) (forecast.OutputForecastRecord, error) {
	key.Date = forecast.Day(key.Date)

	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.outputs[key.String()]
	if !ok {
		return forecast.OutputForecastRecord{}, ErrNotFound
	}
	return r, nil
}

func (s *MemoryStore) ListForecasts(_ context.Context, q forecast.ForecastQuery) ([]forecast.OutputForecastRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []forecast.OutputForecastRecord
	for _, r := range s.outputs {
		if r.VendorID != q.VendorID {
			continue
		}
		if q.ModelType != "" && r.ModelType != q.ModelType {
			continue
		}
		if !q.From.IsZero() && r.Date.Before(forecast.Day(q.From)) {
			continue
		}
		if !q.To.IsZero() && r.Date.After(forecast.Day(q.To)) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Date, out[i].Slot, out[i].TemplateID, out[j].Date, out[j].Slot, out[j].TemplateID)
	})
	return out, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Health(context.Context) error  { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func lessKey(da time.Time, sa forecast.Slot, ta int64, db time.Time, sb forecast.Slot, tb int64) bool {
	if !da.Equal(db) {
		return da.Before(db)
	}
	if sa.Start != sb.Start {
		return sa.Start < sb.Start
	}
	return ta < tb
}
