// Package pacing turns a finish-time prediction into per-discipline
// intensity targets and a fueling schedule.
package pacing

import (
	"fmt"
	"math"

	"github.com/okian/raceday/internal/domain/geometry"
	"github.com/okian/raceday/internal/domain/model"
)

const (
	defaultPaceBand = 0.03

	// Heat derating never drops intensity below this fraction.
	minDerating = 0.8

	// Neutral conditions below which heat has no effect.
	heatOnsetC         = 20.0
	humidityOnsetPct   = 60.0
	derateSlopePerC    = 0.0075
	derateSlopePerPct  = 0.001
	sweatOnsetC        = 15.0
	sweatOnsetHumidity = 50.0

	baseFluidMlPerHour   = 500.0
	maxFluidMlPerHour    = 1000.0
	baseSodiumMgPerHour  = 400.0
	maxSodiumMgPerHour   = 1500.0
	fluidPerC            = 25.0
	fluidPerHumidityPct  = 3.0
	sodiumPerC           = 20.0
	sodiumPerHumidityPct = 4.0
)

// powerBand is a multiple of the bike intensity factor for one terrain.
type powerBand struct {
	terrain   model.TerrainClass
	low, high float64
}

var bikeBands = []powerBand{
	{model.TerrainFlat, 0.97, 1.03},
	{model.TerrainClimb, 1.03, 1.10},
	{model.TerrainDescent, 0.80, 0.90},
}

// carbRate is the carbohydrate intake for races up to maxSeconds long.
type carbRate struct {
	maxSeconds   int
	gramsPerHour float64
}

var carbRates = []carbRate{
	{75 * 60, 30},
	{150 * 60, 60},
	{5 * 3600, 75},
	{math.MaxInt, 90},
}

type cueSchedule struct {
	first, every int
}

// Input is what Compose needs.
type Input struct {
	Prediction *model.PredictionResult
	// Course is the reduced bike course. When nil or without a terrain
	// split, the split is estimated from FallbackGainMeters.
	Course             *model.CourseGeometry
	FallbackGainMeters float64
	// Weather is optional. Without it no heat adjustment is made.
	Weather *model.Weather
}

// Composer builds pacing and nutrition plans. It holds no state between
// calls.
type Composer struct {
	paceBand float64
	bikeCue  cueSchedule
	runCue   cueSchedule
}

// New creates a Composer with configuration options.
func New(opts ...Option) *Composer {
	c := &Composer{
		paceBand: defaultPaceBand,
		bikeCue:  cueSchedule{first: 15 * 60, every: 20 * 60},
		runCue:   cueSchedule{first: 10 * 60, every: 25 * 60},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compose builds plans with the default composer.
func Compose(in Input) (*model.PacingPlan, *model.NutritionPlan, error) {
	return New().Compose(in)
}

// Compose builds the pacing and nutrition plans for in.
func (c *Composer) Compose(in Input) (*model.PacingPlan, *model.NutritionPlan, error) {
	p := in.Prediction
	if err := validate(p); err != nil {
		return nil, nil, err
	}

	temp, humidity, hasWeather := conditions(in.Weather)
	f := 1.0
	if hasWeather {
		f = HeatDerating(temp, humidity)
	}

	pacing := &model.PacingPlan{
		Swim:         c.paceSegment(p.Segments.Swim, 100, "sec/100m", f),
		Bike:         c.bikeSegment(p, terrain(in), f),
		Run:          c.paceSegment(p.Segments.Run, 1000, "sec/km", f),
		HeatDerating: round(f, 3),
	}
	return pacing, c.nutrition(p, in.Weather), nil
}

// HeatDerating returns the intensity multiplier for the given conditions. It
// is 1 in cool dry weather, never below 0.8 and non-increasing in both
// temperature and humidity.
func HeatDerating(tempC, humidityPct float64) float64 {
	loss := derateSlopePerC*math.Max(0, tempC-heatOnsetC) + derateSlopePerPct*math.Max(0, humidityPct-humidityOnsetPct)
	return 1 - math.Min(1-minDerating, loss)
}

// FluidMlPerHour returns the fluid target for the given conditions.
func FluidMlPerHour(tempC, humidityPct float64) float64 {
	v := baseFluidMlPerHour + fluidPerC*math.Max(0, tempC-sweatOnsetC) + fluidPerHumidityPct*math.Max(0, humidityPct-sweatOnsetHumidity)
	return math.Min(maxFluidMlPerHour, v)
}

// SodiumMgPerHour returns the sodium target for the given conditions.
func SodiumMgPerHour(tempC, humidityPct float64) float64 {
	v := baseSodiumMgPerHour + sodiumPerC*math.Max(0, tempC-sweatOnsetC) + sodiumPerHumidityPct*math.Max(0, humidityPct-sweatOnsetHumidity)
	return math.Min(maxSodiumMgPerHour, v)
}

// CarbsGramsPerHour returns the carbohydrate target for a race of the given
// predicted duration.
func CarbsGramsPerHour(totalSeconds int) float64 {
	for _, r := range carbRates {
		if totalSeconds < r.maxSeconds {
			return r.gramsPerHour
		}
	}
	return carbRates[len(carbRates)-1].gramsPerHour
}

func validate(p *model.PredictionResult) error {
	switch {
	case p == nil:
		return fmt.Errorf("%w: missing prediction", ErrInvalidPrediction)
	case p.TotalSeconds <= 0:
		return fmt.Errorf("%w: non-positive total %d", ErrInvalidPrediction, p.TotalSeconds)
	case p.Segments.TotalSeconds() != p.TotalSeconds:
		return fmt.Errorf("%w: segments sum to %d, total is %d", ErrInvalidPrediction, p.Segments.TotalSeconds(), p.TotalSeconds)
	case p.Segments.Swim.Seconds <= 0 || p.Segments.Bike.Seconds <= 0 || p.Segments.Run.Seconds <= 0:
		return fmt.Errorf("%w: empty discipline segment", ErrInvalidPrediction)
	case p.BikeIntensityFactor <= 0:
		return fmt.Errorf("%w: missing bike intensity factor", ErrInvalidPrediction)
	}
	return nil
}

func conditions(w *model.Weather) (temp, humidity float64, ok bool) {
	if w == nil {
		return 0, 0, false
	}
	return w.TemperatureC, w.HumidityPct, true
}

func terrain(in Input) model.TerrainProfile {
	if in.Course != nil && in.Course.Terrain.Total() > 0 {
		return in.Course.Terrain
	}
	gain := in.FallbackGainMeters
	if in.Course != nil && in.Course.PointCount > 1 {
		gain = in.Course.ElevationGainMeters
	}
	return geometry.EstimateProfile(in.Prediction.Segments.Bike.DistanceMeters, gain)
}

// paceSegment slows the predicted pace by the derating and brackets it.
func (c *Composer) paceSegment(s model.Segment, per float64, unit string, f float64) *model.SegmentPlan {
	plan := &model.SegmentPlan{TargetSeconds: int(math.Round(float64(s.Seconds) / f))}
	if s.DistanceMeters <= 0 {
		return plan
	}
	pace := float64(s.Seconds) / s.DistanceMeters * per / f
	plan.PaceZone = &model.PaceZone{
		FastSeconds: round(pace*(1-c.paceBand), 1),
		SlowSeconds: round(pace*(1+c.paceBand), 1),
		Unit:        unit,
	}
	return plan
}

// bikeSegment emits one band per terrain class present on the course.
func (c *Composer) bikeSegment(p *model.PredictionResult, t model.TerrainProfile, f float64) *model.SegmentPlan {
	plan := &model.SegmentPlan{TargetSeconds: int(math.Round(float64(p.Segments.Bike.Seconds) / f))}

	var ftp float64
	if p.Segments.Bike.Intensity.Kind == model.IntensityPower && p.Segments.Bike.Intensity.Value > 0 {
		ftp = p.Segments.Bike.Intensity.Value / p.BikeIntensityFactor
	}

	total := t.Total()
	shares := map[model.TerrainClass]float64{}
	if total > 0 {
		shares[model.TerrainFlat] = t.FlatMeters / total
		shares[model.TerrainClimb] = t.ClimbMeters / total
		shares[model.TerrainDescent] = t.DescentMeters / total
	} else {
		shares[model.TerrainFlat] = 1
	}

	for _, b := range bikeBands {
		share := shares[b.terrain]
		if share <= 0 {
			continue
		}
		band := model.PowerBand{
			Terrain:    b.terrain,
			Share:      round(share, 3),
			LowPctFTP:  round(p.BikeIntensityFactor*b.low*f*100, 1),
			HighPctFTP: round(p.BikeIntensityFactor*b.high*f*100, 1),
		}
		if ftp > 0 {
			lo := math.Round(ftp * band.LowPctFTP / 100)
			hi := math.Round(ftp * band.HighPctFTP / 100)
			band.LowWatts, band.HighWatts = &lo, &hi
		}
		plan.PowerBands = append(plan.PowerBands, band)
	}
	return plan
}

func (c *Composer) nutrition(p *model.PredictionResult, w *model.Weather) *model.NutritionPlan {
	carbs := CarbsGramsPerHour(p.TotalSeconds)
	fluid, sodium := baseFluidMlPerHour, baseSodiumMgPerHour
	if temp, humidity, ok := conditions(w); ok {
		fluid = FluidMlPerHour(temp, humidity)
		sodium = SodiumMgPerHour(temp, humidity)
	}

	seg := p.Segments
	fuelSeconds := float64(seg.Bike.Seconds + seg.Run.Seconds)
	plan := &model.NutritionPlan{
		CarbsGramsPerHour: carbs,
		FluidMlPerHour:    round(fluid, 0),
		SodiumMgPerHour:   round(sodium, 0),
		TotalCarbsGrams:   round(carbs*fuelSeconds/3600, 0),
	}

	bikeStart := seg.Swim.Seconds + seg.T1.Seconds
	runStart := bikeStart + seg.Bike.Seconds + seg.T2.Seconds
	plan.Cues = append(plan.Cues, cues("bike", bikeStart, seg.Bike.Seconds, c.bikeCue, carbs, fluid, "Eat and drink on a straight, stable section")...)
	plan.Cues = append(plan.Cues, cues("run", runStart, seg.Run.Seconds, c.runCue, carbs, fluid, "Take a gel and sip at the aid station")...)
	return plan
}

func cues(discipline string, start, length int, s cueSchedule, carbs, fluid float64, note string) []model.FuelingCue {
	var out []model.FuelingCue
	hours := float64(s.every) / 3600
	for off := s.first; off < length; off += s.every {
		out = append(out, model.FuelingCue{
			ElapsedSeconds: start + off,
			Discipline:     discipline,
			CarbsGrams:     round(carbs*hours, 0),
			FluidMl:        round(fluid*hours, 0),
			Note:           note,
		})
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
