package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/i474232898/bundlecast/internal/forecast"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLiteStore implements Store on a single SQLite file. Dates are kept as
// YYYY-MM-DD text so that range filters compare lexically.
type SQLiteStore struct {
	db *sqlx.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "bundlecast.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps batches from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func dateText(t time.Time) string {
	return forecast.Day(t).Format(forecast.DateLayout)
}

func (s *SQLiteStore) SaveVendor(ctx context.Context, v forecast.Vendor) (int64, error) {
	if v.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO vendors (vendor_id, name, post_code, country) VALUES (?, ?, ?, ?)
			ON CONFLICT (vendor_id) DO UPDATE SET
				name = excluded.name, post_code = excluded.post_code, country = excluded.country`,
			v.ID, v.Name, v.PostalCode, v.Country)
		return v.ID, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vendors (name, post_code, country) VALUES (?, ?, ?)`,
		v.Name, v.PostalCode, v.Country)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) SaveProduct(ctx context.Context, p forecast.Product) (int64, error) {
	if p.TemplateID > 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO templates (template_id, vendor_id, title, estimated_value, cost) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (template_id) DO UPDATE SET
				vendor_id = excluded.vendor_id, title = excluded.title,
				estimated_value = excluded.estimated_value, cost = excluded.cost`,
			p.TemplateID, p.VendorID, p.Title, p.EstimatedValue, p.Cost)
		return p.TemplateID, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (vendor_id, title, estimated_value, cost) VALUES (?, ?, ?, ?)`,
		p.VendorID, p.Title, p.EstimatedValue, p.Cost)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) SaveBundle(ctx context.Context, vendorID int64, ev forecast.BundleEvent) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO bundles (vendor_id, template_id, date, time) VALUES (?, ?, ?, ?)`,
		vendorID, ev.TemplateID, dateText(ev.Date), ev.Time.String())
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if ev.Reservation != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reservations (bundle_id, status) VALUES (?, ?)`,
			id, string(ev.Reservation.Status)); err != nil {
			return 0, fmt.Errorf("insert reservation: %w", err)
		}
	}
	return id, tx.Commit()
}

type bundleRow struct {
	ID         int64          `db:"bundle_id"`
	TemplateID int64          `db:"template_id"`
	Date       string         `db:"date"`
	Time       string         `db:"time"`
	Status     sql.NullString `db:"status"`
}

func (s *SQLiteStore) BundleEvents(ctx context.Context, vendorID int64, since time.Time) ([]forecast.BundleEvent, error) {
	var rows []bundleRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT b.bundle_id, b.template_id, b.date, b.time, r.status
		FROM bundles b
		LEFT JOIN reservations r ON r.bundle_id = b.bundle_id
		WHERE b.vendor_id = ? AND b.date >= ?
		ORDER BY b.date, b.time, b.bundle_id`,
		vendorID, dateText(since))
	if err != nil {
		return nil, err
	}

	out := make([]forecast.BundleEvent, 0, len(rows))
	for _, r := range rows {
		date, err := forecast.ParseDate(r.Date)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: %w", r.ID, err)
		}
		clock, err := forecast.ParseClock(r.Time)
		if err != nil {
			return nil, fmt.Errorf("bundle %d: %w", r.ID, err)
		}
		ev := forecast.BundleEvent{ID: r.ID, TemplateID: r.TemplateID, Date: date, Time: clock}
		if r.Status.Valid {
			ev.Reservation = &forecast.Reservation{Status: forecast.ReservationStatus(r.Status.String)}
		}
		out = append(out, ev)
	}
	return out, nil
}

type productRow struct {
	TemplateID     int64   `db:"template_id"`
	VendorID       int64   `db:"vendor_id"`
	Title          string  `db:"title"`
	EstimatedValue float64 `db:"estimated_value"`
	Cost           float64 `db:"cost"`
}

func (r productRow) product() forecast.Product {
	return forecast.Product{
		TemplateID:     r.TemplateID,
		VendorID:       r.VendorID,
		Title:          r.Title,
		EstimatedValue: r.EstimatedValue,
		Cost:           r.Cost,
	}
}

func (s *SQLiteStore) Product(ctx context.Context, templateID int64) (forecast.Product, error) {
	var row productRow
	err := s.db.GetContext(ctx, &row, `
		SELECT template_id, vendor_id, title, estimated_value, cost
		FROM templates WHERE template_id = ?`, templateID)
	if errors.Is(err, sql.ErrNoRows) {
		return forecast.Product{}, ErrNotFound
	}
	if err != nil {
		return forecast.Product{}, err
	}
	return row.product(), nil
}

func (s *SQLiteStore) Products(ctx context.Context, vendorID int64) ([]forecast.Product, error) {
	var rows []productRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT template_id, vendor_id, title, estimated_value, cost
		FROM templates WHERE vendor_id = ? ORDER BY template_id`, vendorID)
	if err != nil {
		return nil, err
	}
	out := make([]forecast.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.product())
	}
	return out, nil
}

func (s *SQLiteStore) Vendor(ctx context.Context, vendorID int64) (forecast.Vendor, error) {
	var row struct {
		ID         int64  `db:"vendor_id"`
		Name       string `db:"name"`
		PostalCode string `db:"post_code"`
		Country    string `db:"country"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT vendor_id, name, post_code, country FROM vendors WHERE vendor_id = ?`, vendorID)
	if errors.Is(err, sql.ErrNoRows) {
		return forecast.Vendor{}, ErrNotFound
	}
	if err != nil {
		return forecast.Vendor{}, err
	}
	return forecast.Vendor{ID: row.ID, Name: row.Name, PostalCode: row.PostalCode, Country: row.Country}, nil
}

type inputRow struct {
	VendorID        int64         `db:"vendor_id"`
	TemplateID      int64         `db:"template_id"`
	Date            string        `db:"date"`
	SlotStart       sql.NullInt64 `db:"slot_start"`
	SlotEnd         sql.NullInt64 `db:"slot_end"`
	BundlesPosted   int           `db:"bundles_posted"`
	BundlesReserved int           `db:"bundles_reserved"`
	NoShows         int           `db:"no_shows"`
	Discount        float64       `db:"discount"`
	Precipitation   float64       `db:"precipitation"`
}

func nullSlot(start, end sql.NullInt64) forecast.Slot {
	if !start.Valid || !end.Valid {
		return forecast.Slot{}
	}
	a, b := int(start.Int64), int(end.Int64)
	return slotFromColumns(&a, &b)
}

func (r inputRow) record() (forecast.InputSlotRecord, error) {
	date, err := forecast.ParseDate(r.Date)
	if err != nil {
		return forecast.InputSlotRecord{}, err
	}
	return forecast.InputSlotRecord{
		InputKey: forecast.InputKey{
			VendorID:   r.VendorID,
			TemplateID: r.TemplateID,
			Date:       date,
			Slot:       nullSlot(r.SlotStart, r.SlotEnd),
		},
		BundlesPosted:   r.BundlesPosted,
		BundlesReserved: r.BundlesReserved,
		NoShows:         r.NoShows,
		Discount:        r.Discount,
		Precipitation:   r.Precipitation,
	}, nil
}

const sqliteUpsertInput = `
	INSERT INTO forecast_inputs (vendor_id, template_id, date, slot_start, slot_end,
		bundles_posted, bundles_reserved, no_shows, discount, precipitation)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (vendor_id, template_id, date, slot_start, slot_end) DO UPDATE SET
		bundles_posted = excluded.bundles_posted,
		bundles_reserved = excluded.bundles_reserved,
		no_shows = excluded.no_shows,
		discount = excluded.discount,
		precipitation = excluded.precipitation`

func (s *SQLiteStore) UpsertInputs(ctx context.Context, records []forecast.InputSlotRecord) error {
	if err := validateInputs(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		start, end := slotColumns(r.Slot)
		if _, err := tx.ExecContext(ctx, sqliteUpsertInput,
			r.VendorID, r.TemplateID, dateText(r.Date), start, end,
			r.BundlesPosted, r.BundlesReserved, r.NoShows, r.Discount, r.Precipitation,
		); err != nil {
			return fmt.Errorf("upsert input %s: %w", r.InputKey, err)
		}
	}
	return tx.Commit()
}

const sqliteInputColumns = `vendor_id, template_id, date, slot_start, slot_end,
	bundles_posted, bundles_reserved, no_shows, discount, precipitation`

func (s *SQLiteStore) FindInput(ctx context.Context, key forecast.InputKey) (forecast.InputSlotRecord, error) {
	start, end := slotColumns(key.Slot)
	var row inputRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+sqliteInputColumns+`
		FROM forecast_inputs
		WHERE vendor_id = ? AND template_id = ? AND date = ?
		  AND slot_start IS ? AND slot_end IS ?`,
		key.VendorID, key.TemplateID, dateText(key.Date), start, end)
	if errors.Is(err, sql.ErrNoRows) {
		return forecast.InputSlotRecord{}, ErrNotFound
	}
	if err != nil {
		return forecast.InputSlotRecord{}, err
	}
	return row.record()
}

func (s *SQLiteStore) ListInputs(ctx context.Context, q forecast.InputQuery) ([]forecast.InputSlotRecord, error) {
	var (
		where = []string{"vendor_id = ?"}
		args  = []interface{}{q.VendorID}
	)
	if q.TemplateID != 0 {
		where = append(where, "template_id = ?")
		args = append(args, q.TemplateID)
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dateText(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, dateText(q.To))
	}
	if q.PendingPrecipitation {
		where = append(where, "precipitation = ?")
		args = append(args, forecast.PrecipitationUnknown)
	}

	var rows []inputRow
	query := `SELECT ` + sqliteInputColumns + ` FROM forecast_inputs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date, slot_start, template_id`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]forecast.InputSlotRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *SQLiteStore) SetPrecipitation(ctx context.Context, vendorID int64, date time.Time, mm float64) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE forecast_inputs SET precipitation = ?
		WHERE vendor_id = ? AND date = ? AND precipitation = ?`,
		mm, vendorID, dateText(date), forecast.PrecipitationUnknown)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type forecastRow struct {
	VendorID              int64         `db:"vendor_id"`
	TemplateID            int64         `db:"template_id"`
	Date                  string        `db:"date"`
	SlotStart             sql.NullInt64 `db:"slot_start"`
	SlotEnd               sql.NullInt64 `db:"slot_end"`
	ModelType             string        `db:"model_type"`
	ReservationPrediction int           `db:"reservation_prediction"`
	NoShowPrediction      int           `db:"no_show_prediction"`
	Confidence            float64       `db:"confidence"`
	Recommendation        string        `db:"recommendation"`
	Rationale             string        `db:"rationale"`
	UpdatedAt             string        `db:"updated_at"`
}

func (r forecastRow) record() (forecast.OutputForecastRecord, error) {
	date, err := forecast.ParseDate(r.Date)
	if err != nil {
		return forecast.OutputForecastRecord{}, err
	}
	updated, err := time.Parse(time.RFC3339Nano, r.UpdatedAt)
	if err != nil {
		return forecast.OutputForecastRecord{}, fmt.Errorf("invalid updated_at %q: %w", r.UpdatedAt, err)
	}
	return forecast.OutputForecastRecord{
		ForecastKey: forecast.ForecastKey{
			VendorID:   r.VendorID,
			TemplateID: r.TemplateID,
			Date:       date,
			Slot:       nullSlot(r.SlotStart, r.SlotEnd),
			ModelType:  r.ModelType,
		},
		ReservationPrediction: r.ReservationPrediction,
		NoShowPrediction:      r.NoShowPrediction,
		Confidence:            r.Confidence,
		Recommendation:        r.Recommendation,
		Rationale:             r.Rationale,
		UpdatedAt:             updated.UTC(),
	}, nil
}

const sqliteUpsertForecast = `
	INSERT INTO forecast_outputs (vendor_id, template_id, date, slot_start, slot_end, model_type,
		reservation_prediction, no_show_prediction, confidence, recommendation, rationale, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (vendor_id, template_id, date, slot_start, slot_end, model_type) DO UPDATE SET
		reservation_prediction = excluded.reservation_prediction,
		no_show_prediction = excluded.no_show_prediction,
		confidence = excluded.confidence,
		recommendation = excluded.recommendation,
		rationale = excluded.rationale,
		updated_at = excluded.updated_at`

func (s *SQLiteStore) UpsertForecasts(ctx context.Context, records []forecast.OutputForecastRecord) error {
	if err := validateForecasts(records); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, r := range records {
		start, end := slotColumns(r.Slot)
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = time.Now()
		}
		if _, err := tx.ExecContext(ctx, sqliteUpsertForecast,
			r.VendorID, r.TemplateID, dateText(r.Date), start, end, r.ModelType,
			r.ReservationPrediction, r.NoShowPrediction, r.Confidence, r.Recommendation, r.Rationale,
			updated.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("upsert forecast %s: %w", r.ForecastKey, err)
		}
	}
	return tx.Commit()
}

const sqliteForecastColumns = `vendor_id, template_id, date, slot_start, slot_end, model_type,
	reservation_prediction, no_show_prediction, confidence, recommendation, rationale, updated_at`

func (s *SQLiteStore) FindForecast(ctx context.Context, key forecast.ForecastKey) (forecast.OutputForecastRecord, error) {
	start, end := slotColumns(key.Slot)
	var row forecastRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+sqliteForecastColumns+`
		FROM forecast_outputs
		WHERE vendor_id = ? AND template_id = ? AND date = ?
		  AND slot_start IS ? AND slot_end IS ? AND model_type = ?`,
		key.VendorID, key.TemplateID, dateText(key.Date), start, end, key.ModelType)
	if errors.Is(err, sql.ErrNoRows) {
		return forecast.OutputForecastRecord{}, ErrNotFound
	}
	if err != nil {
		return forecast.OutputForecastRecord{}, err
	}
	return row.record()
}

func (s *SQLiteStore) ListForecasts(ctx context.Context, q forecast.ForecastQuery) ([]forecast.OutputForecastRecord, error) {
	var (
		where = []string{"vendor_id = ?"}
		args  = []interface{}{q.VendorID}
	)
	if q.ModelType != "" {
		where = append(where, "model_type = ?")
		args = append(args, q.ModelType)
	}
	if !q.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, dateText(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, dateText(q.To))
	}

	var rows []forecastRow
	query := `SELECT ` + sqliteForecastColumns + ` FROM forecast_outputs WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY date, slot_start, template_id`
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]forecast.OutputForecastRecord, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
