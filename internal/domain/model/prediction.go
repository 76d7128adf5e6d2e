package model

import "strconv"

// Tier is the data tier a prediction was made at. Higher is richer.
type Tier int

const (
	TierPopulation    Tier = 0
	TierDemographic   Tier = 1
	TierPriorRace     Tier = 2
	TierPhysiological Tier = 3
)

func (t Tier) String() string { return strconv.Itoa(int(t)) }

// IntensityKind names the metric carried by a segment target.
type IntensityKind string

const (
	IntensityNone  IntensityKind = "none"
	IntensityPace  IntensityKind = "pace"
	IntensityPower IntensityKind = "power"
)

// Intensity is a tier-appropriate target for one segment.
type Intensity struct {
	Kind  IntensityKind `json:"kind"`
	Value float64       `json:"value,omitempty"`
	Unit  string        `json:"unit,omitempty"`
}

// Segment is one leg of the race.
type Segment struct {
	Seconds        int       `json:"seconds"`
	DistanceMeters float64   `json:"distance_meters"`
	Intensity      Intensity `json:"intensity"`
}

// Segments holds the five race segments.
type Segments struct {
	Swim Segment `json:"swim"`
	T1   Segment `json:"t1"`
	Bike Segment `json:"bike"`
	T2   Segment `json:"t2"`
	Run  Segment `json:"run"`
}

// TotalSeconds sums the segment durations.
func (s Segments) TotalSeconds() int {
	return s.Swim.Seconds + s.T1.Seconds + s.Bike.Seconds + s.T2.Seconds + s.Run.Seconds
}

// Quantiles of the finish-time distribution in seconds.
type Quantiles struct {
	P05 int `json:"p05"`
	P25 int `json:"p25"`
	P50 int `json:"p50"`
	P75 int `json:"p75"`
	P95 int `json:"p95"`
}

// Ordered reports whether p05 <= p25 <= p50 <= p75 <= p95.
func (q Quantiles) Ordered() bool {
	return q.P05 <= q.P25 && q.P25 <= q.P50 && q.P50 <= q.P75 && q.P75 <= q.P95
}

// Spread is p95 - p05.
func (q Quantiles) Spread() int { return q.P95 - q.P05 }

// PredictionResult is the predictor output.
type PredictionResult struct {
	Distance        DistanceCategory `json:"distance"`
	TotalSeconds    int              `json:"total_seconds"`
	Tier            Tier             `json:"tier"`
	ConfidenceLabel string           `json:"confidence_label"`
	ModelVersion    string           `json:"model_version"`
	Segments        Segments         `json:"segments"`
	Quantiles       Quantiles        `json:"quantiles"`

	// BikeIntensityFactor is the fraction of FTP the bike leg was sized at.
	BikeIntensityFactor float64 `json:"bike_intensity_factor"`
}
