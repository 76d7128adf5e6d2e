package predict

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/okian/raceday/internal/domain/model"
)

// Bounds is an inclusive range in seconds.
type Bounds struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (b Bounds) clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

func (b Bounds) valid() bool { return b.Min > 0 && b.Max > b.Min }

// SplitRatios divide the moving time (total minus transitions) between legs.
type SplitRatios struct {
	Swim float64 `yaml:"swim"`
	Bike float64 `yaml:"bike"`
	Run  float64 `yaml:"run"`
}

// DistanceParams describes one race distance.
type DistanceParams struct {
	SwimMeters float64 `yaml:"swim_meters"`
	BikeMeters float64 `yaml:"bike_meters"`
	RunMeters  float64 `yaml:"run_meters"`

	// TypicalBikeIF is the fraction of FTP held on the bike.
	TypicalBikeIF float64 `yaml:"typical_bike_if"`
	// SwimCSSFactor converts CSS pace to race pace.
	SwimCSSFactor float64 `yaml:"swim_css_factor"`
	// RunFade converts threshold pace to race pace off the bike.
	RunFade float64 `yaml:"run_fade"`
	// FallbackElevationGainMeters is used for the bike leg when no course
	// geometry is available.
	FallbackElevationGainMeters float64 `yaml:"fallback_elevation_gain_meters"`

	T1Seconds float64 `yaml:"t1_seconds"`
	T2Seconds float64 `yaml:"t2_seconds"`

	PopulationMedianSeconds float64     `yaml:"population_median_seconds"`
	Split                   SplitRatios `yaml:"split"`

	TotalBounds Bounds `yaml:"total_bounds"`
	SwimBounds  Bounds `yaml:"swim_bounds"`
	BikeBounds  Bounds `yaml:"bike_bounds"`
	RunBounds   Bounds `yaml:"run_bounds"`
}

// SigmaByTier is the log-normal spread of the finish time per tier.
type SigmaByTier struct {
	Tier0 float64 `yaml:"tier0"`
	Tier1 float64 `yaml:"tier1"`
	Tier2 float64 `yaml:"tier2"`
	Tier3 float64 `yaml:"tier3"`
}

// For returns the sigma of tier t.
func (s SigmaByTier) For(t model.Tier) float64 {
	switch t {
	case model.TierPhysiological:
		return s.Tier3
	case model.TierPriorRace:
		return s.Tier2
	case model.TierDemographic:
		return s.Tier1
	default:
		return s.Tier0
	}
}

// AgeBand applies a slowdown factor to athletes aged [MinAge, MaxAge].
type AgeBand struct {
	MinAge int     `yaml:"min_age"`
	MaxAge int     `yaml:"max_age"`
	Factor float64 `yaml:"factor"`
}

// ImpactBin adds Pct percent to leg times when the observed value is at
// least From.
type ImpactBin struct {
	From float64 `yaml:"from"`
	Pct  float64 `yaml:"pct"`
}

// WeatherImpact maps race-day conditions to a time penalty.
type WeatherImpact struct {
	Temperature []ImpactBin `yaml:"temperature"`
	Humidity    []ImpactBin `yaml:"humidity"`
	Wind        []ImpactBin `yaml:"wind"`
}

// Physics holds the cycling power model constants.
type Physics struct {
	CdA              float64 `yaml:"cda"`
	Crr              float64 `yaml:"crr"`
	AirDensity       float64 `yaml:"air_density"`
	BikeMassKg       float64 `yaml:"bike_mass_kg"`
	DrivetrainEff    float64 `yaml:"drivetrain_efficiency"`
	DescentRecovery  float64 `yaml:"descent_recovery"`
	Gravity          float64 `yaml:"gravity"`
	MaxSpeedMPS      float64 `yaml:"max_speed_mps"`
	SpeedSolverIters int     `yaml:"speed_solver_iterations"`
}

// Params is a versioned model parameter artifact.
type Params struct {
	Version           string                                    `yaml:"version"`
	Distances         map[model.DistanceCategory]DistanceParams `yaml:"distances"`
	Sigma             SigmaByTier                               `yaml:"sigma"`
	GenderFactors     map[model.Gender]float64                  `yaml:"gender_factors"`
	AgeBands          []AgeBand                                 `yaml:"age_bands"`
	ExperienceFactors map[model.ExperienceLevel]float64         `yaml:"experience_factors"`
	Weather           WeatherImpact                             `yaml:"weather_impact"`
	Physics           Physics                                   `yaml:"physics"`
}

// Distance returns the parameters of d.
func (p *Params) Distance(d model.DistanceCategory) (DistanceParams, error) {
	dp, ok := p.Distances[d]
	if !ok {
		return DistanceParams{}, fmt.Errorf("%w: %q", ErrUnknownDistance, d)
	}
	return dp, nil
}

// Validate rejects parameter sets the predictor cannot run on.
func (p *Params) Validate() error {
	if p.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidParams)
	}
	for _, d := range model.DistanceCategories {
		dp, ok := p.Distances[d]
		if !ok {
			return fmt.Errorf("%w: missing distance %s", ErrInvalidParams, d)
		}
		if err := dp.validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidParams, d, err)
		}
	}
	s := p.Sigma
	if !(s.Tier3 > 0 && s.Tier2 > s.Tier3 && s.Tier1 > s.Tier2 && s.Tier0 > s.Tier1) {
		return fmt.Errorf("%w: sigma must be positive and strictly widen as tier decreases", ErrInvalidParams)
	}
	for g, f := range p.GenderFactors {
		if f <= 0 {
			return fmt.Errorf("%w: gender factor %q must be positive", ErrInvalidParams, g)
		}
	}
	for _, b := range p.AgeBands {
		if b.Factor <= 0 || b.MaxAge < b.MinAge {
			return fmt.Errorf("%w: age band %d-%d", ErrInvalidParams, b.MinAge, b.MaxAge)
		}
	}
	for e, f := range p.ExperienceFactors {
		if f <= 0 {
			return fmt.Errorf("%w: experience factor %q must be positive", ErrInvalidParams, e)
		}
	}
	ph := p.Physics
	if ph.CdA <= 0 || ph.Crr <= 0 || ph.AirDensity <= 0 || ph.Gravity <= 0 ||
		ph.DrivetrainEff <= 0 || ph.DrivetrainEff > 1 || ph.DescentRecovery < 0 || ph.DescentRecovery >= 1 ||
		ph.MaxSpeedMPS <= 0 || ph.SpeedSolverIters <= 0 {
		return fmt.Errorf("%w: physics constants out of range", ErrInvalidParams)
	}
	return nil
}

func (dp DistanceParams) validate() error {
	switch {
	case dp.SwimMeters <= 0 || dp.BikeMeters <= 0 || dp.RunMeters <= 0:
		return fmt.Errorf("leg distances must be positive")
	case dp.TypicalBikeIF <= 0 || dp.TypicalBikeIF > 1.2:
		return fmt.Errorf("typical bike IF out of range")
	case dp.SwimCSSFactor <= 0 || dp.RunFade <= 0:
		return fmt.Errorf("pace factors must be positive")
	case dp.T1Seconds < 0 || dp.T2Seconds < 0:
		return fmt.Errorf("transitions must not be negative")
	case dp.PopulationMedianSeconds <= dp.T1Seconds+dp.T2Seconds:
		return fmt.Errorf("population median must exceed transitions")
	case math.Abs(dp.Split.Swim+dp.Split.Bike+dp.Split.Run-1) > 1e-6 || dp.Split.Swim <= 0 || dp.Split.Bike <= 0 || dp.Split.Run <= 0:
		return fmt.Errorf("split ratios must be positive and sum to 1")
	case !dp.TotalBounds.valid() || !dp.SwimBounds.valid() || !dp.BikeBounds.valid() || !dp.RunBounds.valid():
		return fmt.Errorf("bounds must be positive and ordered")
	}
	return nil
}

// LoadParams reads and validates a YAML parameter artifact.
func LoadParams(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model params %s: %w", path, err)
	}
	return ParseParams(data)
}

// ParseParams decodes and validates YAML parameter bytes.
func ParseParams(data []byte) (*Params, error) {
	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Encode renders p in the layout ParseParams reads.
func (p *Params) Encode() ([]byte, error) {
	return yaml.Marshal(p)
}
