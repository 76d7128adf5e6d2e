package narrative

import "errors"

// Sentinel errors for this package. These allow errors.Is from callers.
var (
	ErrDisabled      = errors.New("narrative disabled")
	ErrEmptyResponse = errors.New("narrative model returned no text")
	ErrIncomplete    = errors.New("plan is missing computed outputs")
)
