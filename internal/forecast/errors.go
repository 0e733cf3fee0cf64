package forecast

import "errors"

var (
	// ErrNotFound is returned by stores when no row matches a key.
	ErrNotFound = errors.New("not found")

	// ErrInvalidKey signals a malformed natural key. It halts the run.
	ErrInvalidKey = errors.New("invalid key")

	// ErrInsufficientHistory means there were no comparable prior-week samples;
	// confidence falls back to NeutralConfidence.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrUnresolvableLocation means the vendor postcode could not be geocoded.
	ErrUnresolvableLocation = errors.New("unresolvable location")

	// ErrExternalService wraps failures of the weather service for a single date.
	ErrExternalService = errors.New("external service failure")

	// ErrDegenerateRatio marks a guarded division by zero.
	ErrDegenerateRatio = errors.New("degenerate ratio")

	// ErrMissingCatalogEntry means a product was absent during discount lookup.
	ErrMissingCatalogEntry = errors.New("missing catalog entry")

	// ErrNoHistoricalData means the source week had no input records.
	ErrNoHistoricalData = errors.New("no historical data")
)
