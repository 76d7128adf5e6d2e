package model

import "time"

// PlanStatus is the generation lifecycle state.
type PlanStatus string

const (
	StatusGenerating PlanStatus = "generating"
	StatusCompleted  PlanStatus = "completed"
	StatusFailed     PlanStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s PlanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// User-facing failure messages.
const (
	MessageGenerationFailed  = "Plan generation failed. Please try again."
	MessageGenerationTimeout = "Plan generation timed out. Please try again."
)

// GenerationInput is the snapshot stored with a plan at creation time.
type GenerationInput struct {
	Distance   DistanceCategory `json:"distance" validate:"required,oneof=sprint olympic 70.3 140.6"`
	Athlete    AthleteProfile   `json:"athlete"`
	PriorRaces []PriorRace      `json:"prior_races,omitempty" validate:"omitempty,max=20,dive"`
	RaceDate   time.Time        `json:"race_date" validate:"required"`
	Location   *Location        `json:"location,omitempty" validate:"omitempty"`
	Course     *CourseRef       `json:"course,omitempty" validate:"omitempty"`
	RaceName   string           `json:"race_name,omitempty" validate:"max=120"`
}

// TerrainClass is a gradient bucket of the bike course.
type TerrainClass string

const (
	TerrainFlat    TerrainClass = "flat"
	TerrainClimb   TerrainClass = "climb"
	TerrainDescent TerrainClass = "descent"
)

// PowerBand is a bike target for one terrain class.
type PowerBand struct {
	Terrain    TerrainClass `json:"terrain"`
	Share      float64      `json:"share"`
	LowPctFTP  float64      `json:"low_pct_ftp"`
	HighPctFTP float64      `json:"high_pct_ftp"`
	LowWatts   *float64     `json:"low_watts,omitempty"`
	HighWatts  *float64     `json:"high_watts,omitempty"`
}

// PaceZone is a swim or run target in seconds per unit.
type PaceZone struct {
	FastSeconds float64 `json:"fast_seconds"`
	SlowSeconds float64 `json:"slow_seconds"`
	Unit        string  `json:"unit"`
}

// SegmentPlan is the execution target of one discipline.
type SegmentPlan struct {
	TargetSeconds int         `json:"target_seconds"`
	PaceZone      *PaceZone   `json:"pace_zone,omitempty"`
	PowerBands    []PowerBand `json:"power_bands,omitempty"`
}

// PacingPlan carries the three discipline plans.
type PacingPlan struct {
	Swim         *SegmentPlan `json:"swim,omitempty"`
	Bike         *SegmentPlan `json:"bike,omitempty"`
	Run          *SegmentPlan `json:"run,omitempty"`
	HeatDerating float64      `json:"heat_derating"`
}

// Complete reports whether all three discipline plans are present.
func (p *PacingPlan) Complete() bool {
	return p != nil && p.Swim != nil && p.Bike != nil && p.Run != nil
}

// FuelingCue is a discrete nutrition action at an elapsed race time.
type FuelingCue struct {
	ElapsedSeconds int     `json:"elapsed_seconds"`
	Discipline     string  `json:"discipline"`
	CarbsGrams     float64 `json:"carbs_grams"`
	FluidMl        float64 `json:"fluid_ml"`
	Note           string  `json:"note"`
}

// NutritionPlan is the fueling schedule.
type NutritionPlan struct {
	CarbsGramsPerHour float64      `json:"carbs_grams_per_hour"`
	FluidMlPerHour    float64      `json:"fluid_ml_per_hour"`
	SodiumMgPerHour   float64      `json:"sodium_mg_per_hour"`
	TotalCarbsGrams   float64      `json:"total_carbs_grams"`
	Cues              []FuelingCue `json:"cues"`
}

// StatisticalContext places the prediction in a peer cohort.
type StatisticalContext struct {
	Percentile float64          `json:"percentile"`
	Distance   DistanceCategory `json:"distance"`
	Gender     Gender           `json:"gender,omitempty"`
	P25Seconds int              `json:"p25_seconds"`
	Median     int              `json:"median_seconds"`
	P75Seconds int              `json:"p75_seconds"`
	Label      string           `json:"label"`
}

// RacePlan is the aggregate owned by the orchestrator.
type RacePlan struct {
	ID           string              `json:"id"`
	UserID       string              `json:"user_id"`
	Status       PlanStatus          `json:"status"`
	Input        *GenerationInput    `json:"input,omitempty"`
	Course       *CourseGeometry     `json:"course,omitempty"`
	Weather      *Weather            `json:"weather,omitempty"`
	Prediction   *PredictionResult   `json:"prediction,omitempty"`
	Segments     *PacingPlan         `json:"segments,omitempty"`
	Nutrition    *NutritionPlan      `json:"nutrition,omitempty"`
	Statistics   *StatisticalContext `json:"statistics,omitempty"`
	Narrative    *string             `json:"narrative,omitempty"`
	ErrorMessage *string             `json:"error_message,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Progress flags are derived from which plan fields are populated.
type Progress struct {
	Weather    bool `json:"weather"`
	Segments   bool `json:"segments"`
	Nutrition  bool `json:"nutrition"`
	Statistics bool `json:"statistics"`
	Narrative  bool `json:"narrative"`
}

// Progress derives the progress flags of p.
func (p *RacePlan) Progress() Progress {
	return Progress{
		Weather:    p.Weather != nil,
		Segments:   p.Segments.Complete(),
		Nutrition:  p.Nutrition != nil,
		Statistics: p.Statistics != nil,
		Narrative:  p.Narrative != nil,
	}
}

// Computed reports whether the compute stage output is stored.
func (p *RacePlan) Computed() bool {
	return p.Prediction != nil && p.Segments.Complete() && p.Nutrition != nil && p.Statistics != nil
}

// StatusReport is the response of a status query.
type StatusReport struct {
	PlanID       string     `json:"plan_id"`
	UserID       string     `json:"-"`
	Status       PlanStatus `json:"status"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	Progress     Progress   `json:"progress"`
}

// GenerationJob asks a worker to run the pipeline for one plan.
type GenerationJob struct {
	PlanID     string
	Attempt    int
	EnqueuedAt time.Time
}
