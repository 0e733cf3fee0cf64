package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/i474232898/bundlecast/internal/common"
	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/metrics"
)

// NeutralConfidence is returned when there is no comparable history.
const NeutralConfidence = 0.5

// ConfidenceEvaluator estimates how reliable a same-weekday seasonal-naive
// forecast is for a product, from its recent forecast-vs-actual error.
type ConfidenceEvaluator struct {
	inputs InputStore
	cfg    settings
}

// NewConfidenceEvaluator creates an evaluator scanning four weeks by default.
func NewConfidenceEvaluator(inputs InputStore, opts ...Option) *ConfidenceEvaluator {
	return &ConfidenceEvaluator{
		inputs: inputs,
		cfg:    newSettings(opts),
	}
}

// Samples walks back from yesterday over the configured number of weeks and,
// for every date sharing the target's weekday, compares each slot with the
// same slot seven days earlier.
func (e *ConfidenceEvaluator) Samples(ctx context.Context, vendorID, templateID int64, target time.Time) ([]ConfidenceSample, error) {
	end := AddDays(e.cfg.today(), -1)
	start := AddDays(end, -7*e.cfg.weeks+1)
	weekday := target.Weekday()

	var samples []ConfidenceSample
	for d := end; !d.Before(start); d = AddDays(d, -1) {
		if d.Weekday() != weekday {
			continue
		}

		current, err := e.inputs.ListInputs(ctx, InputQuery{VendorID: vendorID, TemplateID: templateID, From: d, To: d})
		if err != nil {
			return nil, fmt.Errorf("load inputs for %s: %w", d.Format(DateLayout), err)
		}
		if len(current) == 0 {
			continue
		}

		prev := AddDays(d, -7)
		past, err := e.inputs.ListInputs(ctx, InputQuery{VendorID: vendorID, TemplateID: templateID, From: prev, To: prev})
		if err != nil {
			return nil, fmt.Errorf("load inputs for %s: %w", prev.Format(DateLayout), err)
		}

		pastBySlot := make(map[Slot]int, len(past))
		for _, rec := range past {
			pastBySlot[rec.Slot] = rec.BundlesReserved
		}

		offset := int(end.Sub(d).Hours()/24)/7 + 1
		for _, cur := range current {
			predicted, ok := pastBySlot[cur.Slot]
			if !ok {
				continue
			}
			samples = append(samples, ConfidenceSample{
				WeekOffset: offset,
				Slot:       cur.Slot,
				Error:      math.Abs(float64(cur.BundlesReserved - predicted)),
				Actual:     float64(cur.BundlesReserved),
			})
		}
	}

	return samples, nil
}

// Evaluate returns a confidence in [0,1] rounded to three decimals. With no
// comparable samples it returns NeutralConfidence.
func (e *ConfidenceEvaluator) Evaluate(ctx context.Context, vendorID, templateID int64, target time.Time) (float64, error) {
	samples, err := e.Samples(ctx, vendorID, templateID, target)
	if err != nil {
		return NeutralConfidence, err
	}
	score, fallback := ConfidenceFromSamples(samples)
	if fallback != nil {
		if errors.Is(fallback, ErrInsufficientHistory) {
			metrics.InsufficientHistory.Inc()
		}
		logger.Debug("confidence fallback", "vendor", vendorID, "template", templateID,
			"date", target.Format(DateLayout), "score", score, "reason", fallback)
	}
	return score, nil
}

// ConfidenceFromSamples computes max(0, 1 - MAE/mean(actual)). When the mean
// actual is zero the ratio is undefined: a perfect record scores 1, anything
// else 0. The second result names the fallback taken, if any; it is
// ErrInsufficientHistory or ErrDegenerateRatio and never fatal.
func ConfidenceFromSamples(samples []ConfidenceSample) (float64, error) {
	if len(samples) == 0 {
		return NeutralConfidence, ErrInsufficientHistory
	}

	errs := make([]float64, len(samples))
	actuals := make([]float64, len(samples))
	for i, s := range samples {
		errs[i] = s.Error
		actuals[i] = s.Actual
	}

	mae := stat.Mean(errs, nil)
	avgActual := stat.Mean(actuals, nil)

	if avgActual <= 0 {
		if mae == 0 {
			return 1, ErrDegenerateRatio
		}
		return 0, ErrDegenerateRatio
	}

	confidence := math.Max(0, 1-mae/avgActual)
	return common.RoundTo(common.Clamp(confidence, 0, 1), 3), nil
}
