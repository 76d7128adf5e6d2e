package predict

import "errors"

// Sentinel errors for the predictor.
var (
	ErrInvalidParams   = errors.New("invalid model parameters")
	ErrUnknownDistance = errors.New("unknown distance category")
	ErrInvalidInput    = errors.New("invalid prediction input")
)
