package weather

import "errors"

// Sentinel errors for this package. These allow errors.Is from callers.
var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// rate limiting and upstream 5xx answers.
	ErrTransient = errors.New("weather temporarily unavailable")

	ErrNoData          = errors.New("no weather data for date")
	ErrInvalidLocation = errors.New("invalid location")
	ErrUpstream        = errors.New("weather upstream rejected request")
)
