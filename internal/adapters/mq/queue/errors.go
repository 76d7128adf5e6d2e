package queue

import "errors"

// Sentinel errors for this package. These allow errors.Is from callers.
var (
	ErrClosed   = errors.New("queue closed")
	ErrFull     = errors.New("queue full")
	ErrQueued   = errors.New("plan already queued")
	ErrNoPlanID = errors.New("job has no plan id")
)
