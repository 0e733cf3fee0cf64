package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/i474232898/bundlecast/internal/forecast"
)

// ErrNotFound is returned when no row matches a key.
var ErrNotFound = forecast.ErrNotFound

// Store is the full persistence contract of the pipeline: the booking-system
// reads, both forecast record repositories and lifecycle management.
type Store interface {
	forecast.EventSource
	forecast.Catalog
	forecast.Vendors
	forecast.InputStore
	forecast.OutputStore

	// SaveVendor, SaveProduct and SaveBundle write booking-system rows. They
	// back the in-memory mode and tests; in production those tables belong to
	// the booking system.
	SaveVendor(ctx context.Context, v forecast.Vendor) (int64, error)
	SaveProduct(ctx context.Context, p forecast.Product) (int64, error)
	SaveBundle(ctx context.Context, vendorID int64, ev forecast.BundleEvent) (int64, error)

	Migrate(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Config selects and configures a Store implementation.
type Config struct {
	// Driver is one of postgres, sqlite, memory.
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

// Open creates the configured store and applies its schema.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres", "postgresql":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres store requires DATABASE_URL")
		}
		s, err = NewPostgresStore(ctx, cfg.DatabaseURL)
	case "sqlite":
		s, err = NewSQLiteStore(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

func validateInputs(records []forecast.InputSlotRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		if r.BundlesPosted < 0 || r.BundlesReserved < 0 || r.NoShows < 0 {
			return fmt.Errorf("%w: negative count for %s", forecast.ErrInvalidKey, r.InputKey)
		}
	}
	return nil
}

func validateForecasts(records []forecast.OutputForecastRecord) error {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func slotColumns(s forecast.Slot) (start, end *int) {
	if s == (forecast.Slot{}) {
		return nil, nil
	}
	a, b := int(s.Start), int(s.End)
	return &a, &b
}

func slotFromColumns(start, end *int) forecast.Slot {
	if start == nil || end == nil {
		return forecast.Slot{}
	}
	return forecast.Slot{Start: forecast.Clock(*start), End: forecast.Clock(*end)}
}
