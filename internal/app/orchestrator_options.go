package service

import (
	"time"

	"github.com/okian/raceday/pkg/logger"
)

// OrchestratorOption applies a configuration option to the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithStaleAfter sets how long a plan may stay generating before a status
// read times it out.
func WithStaleAfter(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

// WithWeatherRetries sets how many times a transient weather failure is
// retried within one run.
func WithWeatherRetries(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.weatherRetries = n
		}
	}
}

// WithRetryBackoff sets the pause before a retry.
func WithRetryBackoff(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryBackoff = d
		}
	}
}

// WithQuotaLimit caps plans per user and season. Zero disables the cap.
func WithQuotaLimit(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.quotaLimit = n
		}
	}
}

// WithSweepBatch bounds the plans expired per SweepStale call.
func WithSweepBatch(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.sweepBatch = n
		}
	}
}

// WithPredictorWeather lets the predictor adjust finish times for weather.
// Off by default: the composer derates targets for heat either way.
func WithPredictorWeather(on bool) OrchestratorOption {
	return func(o *Orchestrator) {
		o.predictorWeather = on
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDGenerator overrides plan id generation.
func WithIDGenerator(f func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		if f != nil {
			o.newID = f
		}
	}
}

// WithOrchestratorLogger sets the pipeline logger.
func WithOrchestratorLogger(l logger.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
