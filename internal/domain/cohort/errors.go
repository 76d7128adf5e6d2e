package cohort

import "errors"

// Sentinel errors for this package. These allow errors.Is from callers.
var (
	ErrInvalidBreakpoints = errors.New("invalid cohort breakpoints")
	ErrInvalidDuration    = errors.New("invalid duration")
	ErrInvalidTable       = errors.New("invalid cohort table")
	ErrCohortNotFound     = errors.New("cohort not found")
)
