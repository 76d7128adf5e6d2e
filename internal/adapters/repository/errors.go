package repository

import "errors"

// Sentinel errors for plan and quota storage.
var (
	ErrNotFound     = errors.New("plan not found")
	ErrPlanExists   = errors.New("plan already exists")
	ErrPlanTerminal = errors.New("plan is no longer generating")
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrInvalidPlan  = errors.New("invalid plan")

	// ErrCorruptRecord wraps stored data that no longer decodes.
	ErrCorruptRecord = errors.New("corrupt plan record")
)
