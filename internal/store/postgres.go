package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/bundlecast/internal/forecast"
)

//go:embed schema/postgres.sql
var postgresSchema string

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveVendor(ctx context.Context, v forecast.Vendor) (int64, error) {
	if v.ID > 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO vendors (vendor_id, name, post_code, country) VALUES ($1, $2, $3, $4)
			ON CONFLICT (vendor_id) DO UPDATE SET
				name = EXCLUDED.name, post_code = EXCLUDED.post_code, country = EXCLUDED.country`,
			v.ID, v.Name, v.PostalCode, v.Country)
		return v.ID, err
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO vendors (name, post_code, country) VALUES ($1, $2, $3) RETURNING vendor_id`,
		v.Name, v.PostalCode, v.Country).Scan(&id)
	return id, err
}

func (s *PostgresStore) SaveProduct(ctx context.Context, p forecast.Product) (int64, error) {
	if p.TemplateID > 0 {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO templates (template_id, vendor_id, title, estimated_value, cost) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (template_id) DO UPDATE SET
				vendor_id = EXCLUDED.vendor_id, title = EXCLUDED.title,
				estimated_value = EXCLUDED.estimated_value, cost = EXCLUDED.cost`,
			p.TemplateID, p.VendorID, p.Title, p.EstimatedValue, p.Cost)
		return p.TemplateID, err
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO templates (vendor_id, title, estimated_value, cost) VALUES ($1, $2, $3, $4)
		RETURNING template_id`,
		p.VendorID, p.Title, p.EstimatedValue, p.Cost).Scan(&id)
	return id, err
}

func (s *PostgresStore) SaveBundle(ctx context.Context, vendorID int64, ev forecast.BundleEvent) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO bundles (vendor_id, template_id, date, time) VALUES ($1, $2, $3, $4::time)
		RETURNING bundle_id`,
		vendorID, ev.TemplateID, forecast.Day(ev.Date), ev.Time.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	if ev.Reservation != nil {
		if _, err := tx.Exec(ctx,
			`INSERT INTO reservations (bundle_id, status) VALUES ($1, $2)`,
			id, string(ev.Reservation.Status)); err != nil {
			return 0, fmt.Errorf("insert reservation: %w", err)
		}
	}
	return id, tx.Commit(ctx)
}

func (s *PostgresStore) BundleEvents(ctx context.Context, vendorID int64, since time.Time) ([]forecast.BundleEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.bundle_id, b.template_id, b.date, to_char(b.time, 'HH24:MI'), r.status
		FROM bundles b
		LEFT JOIN reservations r ON r.bundle_id = b.bundle_id
		WHERE b.vendor_id = $1 AND b.date >= $2
		ORDER BY b.date, b.time, b.bundle_id`,
		vendorID, forecast.Day(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []forecast.BundleEvent
	for rows.Next() {
		var (
			ev     forecast.BundleEvent
			clock  string
			status *string
		)
		if err := rows.Scan(&ev.ID, &ev.TemplateID, &ev.Date, &clock, &status); err != nil {
			return nil, err
		}
		if ev.Time, err = forecast.ParseClock(clock); err != nil {
			return nil, fmt.Errorf("bundle %d: %w", ev.ID, err)
		}
		ev.Date = forecast.Day(ev.Date)
		if status != nil {
			ev.Reservation = &forecast.Reservation{Status: forecast.ReservationStatus(*status)}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Product(ctx context.Context, templateID int64) (forecast.Product, error) {
	var p forecast.Product
	err := s.pool.QueryRow(ctx, `
		SELECT template_id, vendor_id, title, estimated_value, cost
		FROM templates WHERE template_id = $1`, templateID).
		Scan(&p.TemplateID, &p.VendorID, &p.Title, &p.EstimatedValue, &p.Cost)
	if errors.Is(err, pgx.ErrNoRows) {
		return forecast.Product{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) Products(ctx context.Context, vendorID int64) ([]forecast.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT template_id, vendor_id, title, estimated_value, cost
		FROM templates WHERE vendor_id = $1 ORDER BY template_id`, vendorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []forecast.Product
	for rows.Next() {
		var p forecast.Product
		if err := rows.Scan(&p.TemplateID, &p.VendorID, &p.Title, &p.EstimatedValue, &p.Cost); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Vendor(ctx context.Context, vendorID int64) (forecast.Vendor, error) {
	var v forecast.Vendor
	err := s.pool.QueryRow(ctx,
		`SELECT vendor_id, name, post_code, country FROM vendors WHERE vendor_id = $1`, vendorID).
		Scan(&v.ID, &v.Name, &v.PostalCode, &v.Country)
	if errors.Is(err, pgx.ErrNoRows) {
		return forecast.Vendor{}, ErrNotFound
	}
	return v, err
}

const pgUpsertInput = `
	INSERT INTO forecast_inputs (vendor_id, template_id, date, slot_start, slot_end,
		bundles_posted, bundles_reserved, no_shows, discount, precipitation)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (vendor_id, template_id, date, slot_start, slot_end) DO UPDATE SET
		bundles_posted = EXCLUDED.bundles_posted,
		bundles_reserved = EXCLUDED.bundles_reserved,
		no_shows = EXCLUDED.no_shows,
		discount = EXCLUDED.discount,
		precipitation = EXCLUDED.precipitation`

// UpsertInputs writes the batch in a single transaction.
func (s *PostgresStore) UpsertInputs(ctx context.Context, records []forecast.InputSlotRecord) error {
	if err := validateInputs(records); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		start, end := slotColumns(r.Slot)
		if _, err := tx.Exec(ctx, pgUpsertInput,
			r.VendorID, r.TemplateID, forecast.Day(r.Date), start, end,
			r.BundlesPosted, r.BundlesReserved, r.NoShows, r.Discount, r.Precipitation,
		); err != nil {
			return fmt.Errorf("upsert input %s: %w", r.InputKey, err)
		}
	}
	return tx.Commit(ctx)
}

const pgInputColumns = `vendor_id, template_id, date, slot_start, slot_end,
	bundles_posted, bundles_reserved, no_shows, discount, precipitation`

func scanInput(row pgx.Row) (forecast.InputSlotRecord, error) {
	var (
		r          forecast.InputSlotRecord
		start, end *int
	)
	err := row.Scan(&r.VendorID, &r.TemplateID, &r.Date, &start, &end,
		&r.BundlesPosted, &r.BundlesReserved, &r.NoShows, &r.Discount, &r.Precipitation)
	if err != nil {
		return r, err
	}
	r.Date = forecast.Day(r.Date)
	r.Slot = slotFromColumns(start, end)
	return r, nil
}

func (s *PostgresStore) FindInput(ctx context.Context, key forecast.InputKey) (forecast.InputSlotRecord, error) {
	start, end := slotColumns(key.Slot)
	r, err := scanInput(s.pool.QueryRow(ctx, `
		SELECT `+pgInputColumns+`
		FROM forecast_inputs
		WHERE vendor_id = $1 AND template_id = $2 AND date = $3
		  AND slot_start IS NOT DISTINCT FROM $4 AND slot_end IS NOT DISTINCT FROM $5`,
		key.VendorID, key.TemplateID, forecast.Day(key.Date), start, end))
	if errors.Is(err, pgx.ErrNoRows) {
		return forecast.InputSlotRecord{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) ListInputs(ctx context.Context, q forecast.InputQuery) ([]forecast.InputSlotRecord, error) {
	query := `SELECT ` + pgInputColumns + ` FROM forecast_inputs WHERE vendor_id = $1`
	args := []interface{}{q.VendorID}
	if q.TemplateID != 0 {
		args = append(args, q.TemplateID)
		query += fmt.Sprintf(" AND template_id = $%d", len(args))
	}
	if !q.From.IsZero() {
		args = append(args, forecast.Day(q.From))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, forecast.Day(q.To))
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	if q.PendingPrecipitation {
		args = append(args, forecast.PrecipitationUnknown)
		query += fmt.Sprintf(" AND precipitation = $%d", len(args))
	}
	query += " ORDER BY date, slot_start NULLS FIRST, template_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []forecast.InputSlotRecord
	for rows.Next() {
		r, err := scanInput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetPrecipitation(ctx context.Context, vendorID int64, date time.Time, mm float64) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE forecast_inputs SET precipitation = $1
		WHERE vendor_id = $2 AND date = $3 AND precipitation = $4`,
		mm, vendorID, forecast.Day(date), forecast.PrecipitationUnknown)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

const pgUpsertForecast = `
	INSERT INTO forecast_outputs (vendor_id, template_id, date, slot_start, slot_end, model_type,
		reservation_prediction, no_show_prediction, confidence, recommendation, rationale, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (vendor_id, template_id, date, slot_start, slot_end, model_type) DO UPDATE SET
		reservation_prediction = EXCLUDED.reservation_prediction,
		no_show_prediction = EXCLUDED.no_show_prediction,
		confidence = EXCLUDED.confidence,
		recommendation = EXCLUDED.recommendation,
		rationale = EXCLUDED.rationale,
		updated_at = EXCLUDED.updated_at`

func (s *PostgresStore) UpsertForecasts(ctx context.Context, records []forecast.OutputForecastRecord) error {
	if err := validateForecasts(records); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, r := range records {
		start, end := slotColumns(r.Slot)
		updated := r.UpdatedAt
		if updated.IsZero() {
			updated = time.Now().UTC()
		}
		if _, err := tx.Exec(ctx, pgUpsertForecast,
			r.VendorID, r.TemplateID, forecast.Day(r.Date), start, end, r.ModelType,
			r.ReservationPrediction, r.NoShowPrediction, r.Confidence, r.Recommendation, r.Rationale, updated,
		); err != nil {
			return fmt.Errorf("upsert forecast %s: %w", r.ForecastKey, err)
		}
	}
	return tx.Commit(ctx)
}

const pgForecastColumns = `vendor_id, template_id, date, slot_start, slot_end, model_type,
	reservation_prediction, no_show_prediction, confidence, recommendation, rationale, updated_at`

func scanForecast(row pgx.Row) (forecast.OutputForecastRecord, error) {
	var (
		r          forecast.OutputForecastRecord
		start, end *int
	)
	err := row.Scan(&r.VendorID, &r.TemplateID, &r.Date, &start, &end, &r.ModelType,
		&r.ReservationPrediction, &r.NoShowPrediction, &r.Confidence, &r.Recommendation, &r.Rationale, &r.UpdatedAt)
	if err != nil {
		return r, err
	}
	r.Date = forecast.Day(r.Date)
	r.Slot = slotFromColumns(start, end)
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *PostgresStore) FindForecast(ctx context.Context, key forecast.ForecastKey) (forecast.OutputForecastRecord, error) {
	start, end := slotColumns(key.Slot)
	r, err := scanForecast(s.pool.QueryRow(ctx, `
		SELECT `+pgForecastColumns+`
		FROM forecast_outputs
		WHERE vendor_id = $1 AND template_id = $2 AND date = $3
		  AND slot_start IS NOT DISTINCT FROM $4 AND slot_end IS NOT DISTINCT FROM $5
		  AND model_type = $6`,
		key.VendorID, key.TemplateID, forecast.Day(key.Date), start, end, key.ModelType))
	if errors.Is(err, pgx.ErrNoRows) {
		return forecast.OutputForecastRecord{}, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) ListForecasts(ctx context.Context, q forecast.ForecastQuery) ([]forecast.OutputForecastRecord, error) {
	query := `SELECT ` + pgForecastColumns + ` FROM forecast_outputs WHERE vendor_id = $1`
	args := []interface{}{q.VendorID}
	if q.ModelType != "" {
		args = append(args, q.ModelType)
		query += fmt.Sprintf(" AND model_type = $%d", len(args))
	}
	if !q.From.IsZero() {
		args = append(args, forecast.Day(q.From))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, forecast.Day(q.To))
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date, slot_start NULLS FIRST, template_id"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []forecast.OutputForecastRecord
	for rows.Next() {
		r, err := scanForecast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
