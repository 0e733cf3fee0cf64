package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/metrics"
)

// Scorer rates how much a forecast for a template on a target date can be trusted.
type Scorer interface {
	Evaluate(ctx context.Context, vendorID, templateID int64, target time.Time) (float64, error)
}

// Generator produces seasonal-naive forecasts: each slot of the target week is
// predicted to repeat the same slot seven days earlier.
type Generator struct {
	inputs  InputStore
	outputs OutputStore
	catalog Catalog
	scorer  Scorer
	cfg     settings
}

func NewGenerator(inputs InputStore, outputs OutputStore, catalog Catalog, scorer Scorer, opts ...Option) *Generator {
	return &Generator{
		inputs:  inputs,
		outputs: outputs,
		catalog: catalog,
		scorer:  scorer,
		cfg:     newSettings(opts),
	}
}

type confidenceKey struct {
	templateID int64
	date       time.Time
}

// Generate builds and stores the forecast of the week starting at
// targetStart. A zero targetStart means tomorrow. Running it twice for the
// same week leaves exactly one forecast per slot.
func (g *Generator) Generate(ctx context.Context, vendorID int64, targetStart time.Time) (WeekForecast, error) {
	started := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("forecast").Observe(time.Since(started).Seconds())
	}()

	if targetStart.IsZero() {
		targetStart = AddDays(g.cfg.today(), 1)
	}
	targetStart = Day(targetStart)
	sourceFrom := AddDays(targetStart, -7)
	sourceTo := AddDays(targetStart, -1)

	week := WeekForecast{
		VendorID:  vendorID,
		WeekStart: targetStart.Format(DateLayout),
		ModelType: ModelSeasonalNaive,
		Days:      emptyWeek(targetStart),
	}
	if vendorID <= 0 {
		return week, fmt.Errorf("%w: vendor=%d", ErrInvalidKey, vendorID)
	}

	history, err := g.inputs.ListInputs(ctx, InputQuery{VendorID: vendorID, From: sourceFrom, To: sourceTo})
	if err != nil {
		return week, fmt.Errorf("list inputs for vendor %d: %w", vendorID, err)
	}
	if len(history) == 0 {
		week.Message = fmt.Sprintf("%s for vendor %d between %s and %s",
			ErrNoHistoricalData, vendorID, sourceFrom.Format(DateLayout), sourceTo.Format(DateLayout))
		logger.Info("forecast skipped", "vendor", vendorID, "reason", week.Message)
		return week, nil
	}

	titles, err := g.titles(ctx, vendorID)
	if err != nil {
		return week, err
	}
	sortHistory(history, titles)

	runID := uuid.NewString()
	now := g.cfg.now().UTC()
	scores := make(map[confidenceKey]float64)
	records := make([]OutputForecastRecord, 0, len(history))

	for _, rec := range history {
		if !rec.Slot.Valid() {
			logger.Debug("skipping input without slot", "vendor", vendorID, "template", rec.TemplateID, "date", rec.Date.Format(DateLayout))
			continue
		}

		target := AddDays(rec.Date, 7)
		idx := int(target.Sub(targetStart).Hours() / 24)
		if idx < 0 || idx >= len(week.Days) {
			continue
		}
		title := productTitle(titles, rec.TemplateID)
		confidence := g.confidence(ctx, scores, vendorID, rec.TemplateID, target)

		out := OutputForecastRecord{
			ForecastKey: ForecastKey{
				VendorID:   vendorID,
				TemplateID: rec.TemplateID,
				Date:       target,
				Slot:       rec.Slot,
				ModelType:  ModelSeasonalNaive,
			},
			ReservationPrediction: rec.BundlesReserved,
			NoShowPrediction:      rec.NoShows,
			Confidence:            confidence,
			Recommendation:        recommendation(rec.BundlesReserved, title, target, rec.Slot),
			Rationale:             rationale(rec.BundlesReserved, title, target),
			UpdatedAt:             now,
		}
		if err := out.Validate(); err != nil {
			return week, err
		}
		records = append(records, out)

		week.Days[idx].Datapoints = append(week.Days[idx].Datapoints, Datapoint{
			ProductName:    title,
			PredictedSales: rec.BundlesReserved,
			ChanceOfNoShow: noShowChance(rec.BundlesReserved, rec.NoShows),
			Day:            target.Weekday().String(),
			StartTime:      rec.Slot.Start.String(),
			EndTime:        rec.Slot.End.String(),
			NoShowCount:    rec.NoShows,
			Confidence:     confidence,
			Recommendation: out.Recommendation,
			Rationale:      out.Rationale,
		})
	}

	if len(records) > 0 {
		if err := g.outputs.UpsertForecasts(ctx, records); err != nil {
			return week, fmt.Errorf("upsert forecasts for vendor %d: %w", vendorID, err)
		}
	}
	metrics.ForecastsUpserted.Add(float64(len(records)))

	week.Generated = true
	logger.Info("forecast generated", "vendor", vendorID, "week", week.WeekStart, "slots", len(records), "run", runID)
	return week, nil
}

// Stored returns the persisted forecasts of the vendor between two dates.
func (g *Generator) Stored(ctx context.Context, vendorID int64, from, to time.Time) ([]OutputForecastRecord, error) {
	if vendorID <= 0 {
		return nil, fmt.Errorf("%w: vendor=%d", ErrInvalidKey, vendorID)
	}
	return g.outputs.ListForecasts(ctx, ForecastQuery{
		VendorID:  vendorID,
		From:      Day(from),
		To:        Day(to),
		ModelType: ModelSeasonalNaive,
	})
}

func (g *Generator) confidence(ctx context.Context, cache map[confidenceKey]float64, vendorID, templateID int64, target time.Time) float64 {
	key := confidenceKey{templateID: templateID, date: target}
	if c, ok := cache[key]; ok {
		return c
	}
	c, err := g.scorer.Evaluate(ctx, vendorID, templateID, target)
	if err != nil {
		logger.Warn("confidence unavailable, using neutral value",
			"vendor", vendorID, "template", templateID, "date", target.Format(DateLayout), "err", err)
		c = NeutralConfidence
	}
	cache[key] = c
	return c
}

func (g *Generator) titles(ctx context.Context, vendorID int64) (map[int64]string, error) {
	products, err := g.catalog.Products(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("list products for vendor %d: %w", vendorID, err)
	}
	titles := make(map[int64]string, len(products))
	for _, p := range products {
		titles[p.TemplateID] = p.Title
	}
	return titles, nil
}

func productTitle(titles map[int64]string, templateID int64) string {
	if t, ok := titles[templateID]; ok && t != "" {
		return t
	}
	return fmt.Sprintf("template %d", templateID)
}

func sortHistory(records []InputSlotRecord, titles map[int64]string) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Slot.Start != b.Slot.Start {
			return a.Slot.Start < b.Slot.Start
		}
		ta, tb := productTitle(titles, a.TemplateID), productTitle(titles, b.TemplateID)
		if ta != tb {
			return ta < tb
		}
		return a.TemplateID < b.TemplateID
	})
}

func emptyWeek(start time.Time) []DayForecast {
	days := make([]DayForecast, 7)
	for i := range days {
		d := AddDays(start, i)
		days[i] = DayForecast{
			Date:       d.Format(DateLayout),
			Day:        d.Weekday().String(),
			Datapoints: []Datapoint{},
		}
	}
	return days
}
