// Package repository persists race plans and the per-user plan quota.
package repository

import (
	"context"
	"time"

	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/metrics"
)

// Computed is the output of the compute stage, written in one step.
type Computed struct {
	Prediction *model.PredictionResult
	Segments   *model.PacingPlan
	Nutrition  *model.NutritionPlan
	Statistics *model.StatisticalContext
}

// PlanStore provides read/write access to race plans. Every write other
// than CreatePlan is refused with ErrPlanTerminal once the plan has left the
// generating state.
type PlanStore interface {
	// CreatePlan stores a new plan. Returns ErrPlanExists on a duplicate id.
	CreatePlan(ctx context.Context, plan *model.RacePlan) error

	// GetPlan returns the plan or ErrNotFound.
	GetPlan(ctx context.Context, id string) (*model.RacePlan, error)

	// SavePrepared stores the prepare stage outputs. Nil arguments leave the
	// stored value untouched.
	SavePrepared(ctx context.Context, id string, course *model.CourseGeometry, weather *model.Weather) error

	// SaveComputed stores the compute stage outputs.
	SaveComputed(ctx context.Context, id string, c Computed) error

	// SaveNarrative stores the narrative text.
	SaveNarrative(ctx context.Context, id, text string) error

	// MarkCompleted moves the plan to completed.
	MarkCompleted(ctx context.Context, id string) error

	// MarkFailed moves the plan to failed with a user-facing message.
	MarkFailed(ctx context.Context, id, message string) error

	// ListStale returns ids of generating plans created before cutoff,
	// oldest first.
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// QuotaLedger counts plan creations per user and season. Each plan id is
// counted at most once and refunded at most once.
type QuotaLedger interface {
	// Increment records planID against the user's season and returns the
	// number of unrefunded plans in that season.
	Increment(ctx context.Context, userID, season, planID string) (int, error)

	// Refund marks planID refunded. It returns false if the plan was never
	// counted or was already refunded.
	Refund(ctx context.Context, userID, planID string) (bool, error)

	// Count returns the number of unrefunded plans in the user's season.
	Count(ctx context.Context, userID, season string) (int, error)
}

// Store is a PlanStore and QuotaLedger over one database.
type Store interface {
	PlanStore
	QuotaLedger
	Close() error
}

// Season is the quota period of t.
func Season(t time.Time) string {
	return t.UTC().Format("2006")
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
