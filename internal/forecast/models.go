package forecast

import (
	"fmt"
	"time"
)

// PrecipitationUnknown marks an input record whose precipitation has not been
// measured yet. Records carrying it are eligible for weather enrichment.
const PrecipitationUnknown = -1.0

// ModelSeasonalNaive is the model type written by the Generator.
const ModelSeasonalNaive = "seasonal_naive"

// ReservationStatus is the state of a reservation as reported by the booking system.
type ReservationStatus string

const (
	StatusBooked    ReservationStatus = "booked"
	StatusCollected ReservationStatus = "collected"
	StatusNoShow    ReservationStatus = "no_show"
	StatusCancelled ReservationStatus = "cancelled"
)

// Reservation is the optional reservation linked to a bundle.
type Reservation struct {
	Status ReservationStatus `json:"status"`
}

// BundleEvent is a single posted bundle as read from the booking system.
type BundleEvent struct {
	ID          int64        `json:"id"`
	TemplateID  int64        `json:"template_id"`
	Date        time.Time    `json:"date"`
	Time        Clock        `json:"time"`
	Reservation *Reservation `json:"reservation,omitempty"`
}

// Product is the catalog view of a bundle template.
type Product struct {
	TemplateID     int64   `json:"template_id"`
	VendorID       int64   `json:"vendor_id"`
	Title          string  `json:"title"`
	EstimatedValue float64 `json:"estimated_value"`
	Cost           float64 `json:"cost"`
}

// Discount returns (estimated_value - cost) / estimated_value clamped to [0,1].
func (p Product) Discount() float64 {
	if p.EstimatedValue <= 0 {
		return 0
	}
	d := (p.EstimatedValue - p.Cost) / p.EstimatedValue
	switch {
	case d < 0:
		return 0
	case d > 1:
		return 1
	}
	return d
}

// Vendor is the part of the vendor profile the pipeline needs.
type Vendor struct {
	ID         int64  `json:"vendor_id"`
	Name       string `json:"name"`
	PostalCode string `json:"post_code"`
	Country    string `json:"country"`
}

// InputKey is the natural key of an InputSlotRecord.
type InputKey struct {
	VendorID   int64     `json:"vendor_id"`
	TemplateID int64     `json:"template_id"`
	Date       time.Time `json:"date"`
	Slot       Slot      `json:"slot"`
}

// String returns a canonical representation usable as a map key.
func (k InputKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%s", k.VendorID, k.TemplateID, k.Date.Format(DateLayout), k.Slot)
}

// Validate reports ErrInvalidKey for keys that cannot identify a row.
func (k InputKey) Validate() error {
	if k.VendorID <= 0 || k.TemplateID <= 0 {
		return fmt.Errorf("%w: vendor=%d template=%d", ErrInvalidKey, k.VendorID, k.TemplateID)
	}
	if k.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidKey)
	}
	if !k.Slot.Valid() {
		return fmt.Errorf("%w: invalid slot %s", ErrInvalidKey, k.Slot)
	}
	return nil
}

// InputSlotRecord is the per-slot history row produced by the Aggregator.
type InputSlotRecord struct {
	InputKey

	BundlesPosted   int     `json:"bundles_posted"`
	BundlesReserved int     `json:"bundles_reserved"`
	NoShows         int     `json:"no_shows"`
	Discount        float64 `json:"discount"`
	Precipitation   float64 `json:"precipitation"`
}

// PrecipitationKnown reports whether the Enricher has filled the record in.
func (r InputSlotRecord) PrecipitationKnown() bool {
	return r.Precipitation != PrecipitationUnknown
}

// ForecastKey is the natural key of an OutputForecastRecord.
type ForecastKey struct {
	VendorID   int64     `json:"vendor_id"`
	TemplateID int64     `json:"template_id"`
	Date       time.Time `json:"date"`
	Slot       Slot      `json:"slot"`
	ModelType  string    `json:"model_type"`
}

func (k ForecastKey) String() string {
	return fmt.Sprintf("%d/%d/%s/%s/%s", k.VendorID, k.TemplateID, k.Date.Format(DateLayout), k.Slot, k.ModelType)
}

func (k ForecastKey) Validate() error {
	if err := (InputKey{VendorID: k.VendorID, TemplateID: k.TemplateID, Date: k.Date, Slot: k.Slot}).Validate(); err != nil {
		return err
	}
	if k.ModelType == "" {
		return fmt.Errorf("%w: missing model type", ErrInvalidKey)
	}
	return nil
}

// OutputForecastRecord is a persisted forecast for one slot.
type OutputForecastRecord struct {
	ForecastKey

	ReservationPrediction int       `json:"reservation_prediction"`
	NoShowPrediction      int       `json:"no_show_prediction"`
	Confidence            float64   `json:"confidence"`
	Recommendation        string    `json:"recommendation"`
	Rationale             string    `json:"rationale"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// ConfidenceSample is one comparison between a day and the same weekday a week earlier.
type ConfidenceSample struct {
	WeekOffset int     `json:"week_offset"`
	Slot       Slot    `json:"slot"`
	Error      float64 `json:"error"`
	Actual     float64 `json:"actual"`
}

// Datapoint is a single forecast line rendered on the vendor dashboard.
type Datapoint struct {
	ProductName    string  `json:"product_name"`
	PredictedSales int     `json:"predicted_sales"`
	ChanceOfNoShow float64 `json:"chance_of_no_show"`
	Day            string  `json:"day"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	NoShowCount    int     `json:"no_show_count"`
	Confidence     float64 `json:"confidence"`
	Recommendation string  `json:"recommendation"`
	Rationale      string  `json:"rationale"`
}

// DayForecast groups the datapoints of one day of the target week.
type DayForecast struct {
	Date       string      `json:"date"`
	Day        string      `json:"day"`
	Datapoints []Datapoint `json:"datapoints"`
}

// WeekForecast is the dashboard read model for one target week.
type WeekForecast struct {
	VendorID  int64         `json:"vendor_id"`
	WeekStart string        `json:"week_start"`
	ModelType string        `json:"model_type"`
	Generated bool          `json:"generated"`
	Message   string        `json:"message,omitempty"`
	Days      []DayForecast `json:"days"`
}
