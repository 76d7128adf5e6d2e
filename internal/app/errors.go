package service

import "errors"

// Sentinel errors for this package. These allow errors.Is from callers.
var (
	// Input errors: the stored or submitted generation input is unusable.
	ErrInputMissing = errors.New("generation input missing")
	ErrInputInvalid = errors.New("generation input invalid")

	ErrPlanNotFound         = errors.New("plan not found")
	ErrGenerationInProgress = errors.New("generation already in progress")
	ErrGenerationFailed     = errors.New("plan generation failed")
	ErrNotGenerating        = errors.New("plan is not generating")
	ErrQuotaExceeded        = errors.New("seasonal plan quota exceeded")
	ErrBusy                 = errors.New("generation queue is full")
	ErrNotStarted           = errors.New("service not started")
)

// Failure classes, used as the error_class log field and metric label.
const (
	classInput       = "input"
	classTransient   = "transient"
	classComputation = "computation"
	classCapacity    = "capacity"
)
