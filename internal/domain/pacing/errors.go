package pacing

import "errors"

// ErrInvalidPrediction is returned when the prediction cannot be composed
// into a plan.
var ErrInvalidPrediction = errors.New("invalid prediction for pacing")
