package forecast

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/metrics"
)

// DiscountCache memoises product discounts for the duration of one aggregation
// run. Discounts come from the current catalog, also for past dates.
type DiscountCache struct {
	catalog Catalog
	values  map[int64]float64
	missing map[int64]bool
}

// NewDiscountCache creates an empty cache backed by catalog.
func NewDiscountCache(catalog Catalog) *DiscountCache {
	return &DiscountCache{
		catalog: catalog,
		values:  make(map[int64]float64),
		missing: make(map[int64]bool),
	}
}

// Discount returns the discount of the template. Products absent from the
// catalog yield 0 and an error wrapping ErrMissingCatalogEntry; the caller
// decides whether that is fatal.
func (c *DiscountCache) Discount(ctx context.Context, templateID int64) (float64, error) {
	if d, ok := c.values[templateID]; ok {
		if c.missing[templateID] {
			return d, fmt.Errorf("%w: template %d", ErrMissingCatalogEntry, templateID)
		}
		return d, nil
	}

	p, err := c.catalog.Product(ctx, templateID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return 0, fmt.Errorf("lookup product %d: %w", templateID, err)
		}
		c.values[templateID] = 0
		c.missing[templateID] = true
		return 0, fmt.Errorf("%w: template %d", ErrMissingCatalogEntry, templateID)
	}

	c.values[templateID] = p.Discount()
	return c.values[templateID], nil
}

// Missing returns the templates that were absent from the catalog, sorted.
func (c *DiscountCache) Missing() []int64 {
	ids := make([]int64, 0, len(c.missing))
	for id := range c.missing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AggregateReport summarises one aggregation run.
type AggregateReport struct {
	RunID           string    `json:"run_id"`
	VendorID        int64     `json:"vendor_id"`
	Since           string    `json:"since"`
	Events          int       `json:"events"`
	Groups          int       `json:"groups"`
	Upserted        int       `json:"upserted"`
	MissingProducts []int64   `json:"missing_products,omitempty"`
	FinishedAt      time.Time `json:"finished_at"`
}

func (r AggregateReport) Summary() string {
	return fmt.Sprintf("synced %d forecast input(s) for vendor %d", r.Upserted, r.VendorID)
}

type slotCounts struct {
	posted   int
	reserved int
	noShows  int
}

// groupEvents buckets bundle events by (date, slot, template) and counts
// postings, reservations and no-shows. Keys carry the given vendor.
func groupEvents(vendorID int64, events []BundleEvent) (map[InputKey]*slotCounts, []InputKey) {
	groups := make(map[InputKey]*slotCounts)
	var order []InputKey

	for _, ev := range events {
		key := InputKey{
			VendorID:   vendorID,
			TemplateID: ev.TemplateID,
			Date:       Day(ev.Date),
			Slot:       SlotFor(ev.Time),
		}
		agg, ok := groups[key]
		if !ok {
			agg = &slotCounts{}
			groups[key] = agg
			order = append(order, key)
		}

		agg.posted++
		if ev.Reservation != nil {
			agg.reserved++
			if ev.Reservation.Status == StatusNoShow {
				agg.noShows++
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Slot.Start != b.Slot.Start {
			return a.Slot.Start < b.Slot.Start
		}
		return a.TemplateID < b.TemplateID
	})

	return groups, order
}

// Aggregator turns raw bundle events into InputSlotRecords.
type Aggregator struct {
	events  EventSource
	catalog Catalog
	inputs  InputStore
	cfg     settings
}

// NewAggregator creates an Aggregator. The default lookback window is 30 days.
func NewAggregator(events EventSource, catalog Catalog, inputs InputStore, opts ...Option) *Aggregator {
	return &Aggregator{
		events:  events,
		catalog: catalog,
		inputs:  inputs,
		cfg:     newSettings(opts),
	}
}

// Aggregate refreshes the input records of the vendor for every (template,
// date, slot) with at least one bundle in the last lookbackDays days. A
// non-positive lookbackDays uses the configured default.
func (a *Aggregator) Aggregate(ctx context.Context, vendorID int64, lookbackDays int) (AggregateReport, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("aggregate").Observe(time.Since(start).Seconds())
	}()

	if lookbackDays <= 0 {
		lookbackDays = a.cfg.lookbackDays
	}
	since := AddDays(a.cfg.today(), -lookbackDays)

	report := AggregateReport{
		RunID:    uuid.NewString(),
		VendorID: vendorID,
		Since:    since.Format(DateLayout),
	}

	if vendorID <= 0 {
		return report, fmt.Errorf("%w: vendor=%d", ErrInvalidKey, vendorID)
	}

	events, err := a.events.BundleEvents(ctx, vendorID, since)
	if err != nil {
		return report, fmt.Errorf("load bundle events for vendor %d: %w", vendorID, err)
	}
	report.Events = len(events)

	groups, order := groupEvents(vendorID, events)
	report.Groups = len(order)

	discounts := NewDiscountCache(a.catalog)
	records, err := buildInputRecords(ctx, groups, order, discounts)
	if err != nil {
		return report, err
	}
	report.MissingProducts = discounts.Missing()
	for _, id := range report.MissingProducts {
		metrics.MissingProducts.Inc()
		logger.Warn("product missing from catalog, discount defaults to 0",
			"vendor", vendorID, "template", id, "run", report.RunID)
	}

	if len(records) > 0 {
		if err := a.inputs.UpsertInputs(ctx, records); err != nil {
			return report, fmt.Errorf("upsert forecast inputs for vendor %d: %w", vendorID, err)
		}
	}
	report.Upserted = len(records)
	report.FinishedAt = a.cfg.now().UTC()
	metrics.InputsUpserted.Add(float64(len(records)))

	logger.Info("aggregation finished",
		"vendor", vendorID, "since", report.Since, "events", report.Events,
		"upserted", report.Upserted, "run", report.RunID)

	return report, nil
}

func buildInputRecords(ctx context.Context, groups map[InputKey]*slotCounts, order []InputKey, discounts *DiscountCache) ([]InputSlotRecord, error) {
	records := make([]InputSlotRecord, 0, len(order))
	for _, key := range order {
		if err := key.Validate(); err != nil {
			return nil, err
		}

		discount, err := discounts.Discount(ctx, key.TemplateID)
		if err != nil && !errors.Is(err, ErrMissingCatalogEntry) {
			return nil, err
		}

		agg := groups[key]
		records = append(records, InputSlotRecord{
			InputKey:        key,
			BundlesPosted:   agg.posted,
			BundlesReserved: agg.reserved,
			NoShows:         agg.noShows,
			Discount:        discount,
			Precipitation:   PrecipitationUnknown,
		})
	}
	return records, nil
}
