// Package predict estimates a finish time and its segment split from
// whatever athlete data is available.
package predict

import (
	"fmt"
	"math"
	"sort"

	"github.com/okian/raceday/internal/domain/model"
)

// z-scores of the standard normal for the emitted quantiles.
const (
	z05 = -1.6448536269514722
	z25 = -0.6744897501960817
	z75 = 0.6744897501960817
	z95 = 1.6448536269514722
)

// Input is everything the predictor looks at.
type Input struct {
	Distance   model.DistanceCategory
	Athlete    model.AthleteProfile
	PriorRaces []model.PriorRace
	// Course is the reduced bike course. Nil means the distance fallback
	// elevation is used.
	Course *model.CourseGeometry
	// Weather is optional. When present it adjusts leg times.
	Weather *model.Weather
}

// Predictor turns Input into a PredictionResult. It is safe for concurrent
// use.
type Predictor struct {
	params     *Params
	strategies []strategy
}

// New builds a predictor over params. A nil params uses DefaultParams.
func New(params *Params) (*Predictor, error) {
	if params == nil {
		params = DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Predictor{
		params: params,
		strategies: []strategy{
			physiological{params},
			priorRace{params},
			demographic{params},
			population{params},
		},
	}, nil
}

// Version reports the parameter set version stamped on every prediction.
func (p *Predictor) Version() string { return p.params.Version }

// Params returns the parameter set in use.
func (p *Predictor) Params() *Params { return p.params }

// SelectTier reports the highest tier whose inputs are all present.
func SelectTier(athlete model.AthleteProfile, races []model.PriorRace) model.Tier {
	switch {
	case hasPhysiology(athlete):
		return model.TierPhysiological
	case len(usableRaces(races)) > 0:
		return model.TierPriorRace
	case hasDemographics(athlete):
		return model.TierDemographic
	default:
		return model.TierPopulation
	}
}

// Predict runs the highest applicable tier for in.
func (p *Predictor) Predict(in Input) (*model.PredictionResult, error) {
	dp, err := p.params.Distance(in.Distance)
	if err != nil {
		return nil, err
	}

	var s strategy
	for _, cand := range p.strategies {
		if cand.applicable(in) {
			s = cand
			break
		}
	}
	if s == nil {
		return nil, fmt.Errorf("%w: no tier applies", ErrInvalidInput)
	}

	l, err := s.legs(dp, in)
	if err != nil {
		return nil, err
	}
	if !l.finite() {
		return nil, fmt.Errorf("%w: tier %d produced non-finite legs", ErrInvalidInput, s.tier())
	}

	if in.Weather != nil {
		l = p.params.applyWeather(l, *in.Weather)
	}
	l = fitBounds(l, dp)

	secs := reconcile([]float64{l.swim, dp.T1Seconds, l.bike, dp.T2Seconds, l.run})
	total := 0
	for _, v := range secs {
		total += v
	}

	res := &model.PredictionResult{
		Distance:            in.Distance,
		TotalSeconds:        total,
		Tier:                s.tier(),
		ConfidenceLabel:     confidenceLabel(s.tier()),
		ModelVersion:        p.params.Version,
		Quantiles:           quantiles(total, p.params.Sigma.For(s.tier())),
		BikeIntensityFactor: dp.TypicalBikeIF,
		Segments: model.Segments{
			Swim: model.Segment{Seconds: secs[0], DistanceMeters: dp.SwimMeters},
			T1:   model.Segment{Seconds: secs[1], Intensity: model.Intensity{Kind: model.IntensityNone}},
			Bike: model.Segment{Seconds: secs[2], DistanceMeters: dp.BikeMeters},
			T2:   model.Segment{Seconds: secs[3], Intensity: model.Intensity{Kind: model.IntensityNone}},
			Run:  model.Segment{Seconds: secs[4], DistanceMeters: dp.RunMeters},
		},
	}
	setIntensities(res, s.tier(), l)
	return res, nil
}

// legs are raw leg durations in seconds. bikeWatts is set only when the
// bike leg was derived from power.
type legs struct {
	swim, bike, run float64
	bikeWatts       float64
}

func (l legs) finite() bool {
	for _, v := range []float64{l.swim, l.bike, l.run} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return false
		}
	}
	return true
}

func (l legs) scale(f float64) legs {
	l.swim *= f
	l.bike *= f
	l.run *= f
	return l
}

type strategy interface {
	tier() model.Tier
	applicable(in Input) bool
	legs(dp DistanceParams, in Input) (legs, error)
}

// population splits the distance median by the configured ratios.
type population struct{ p *Params }

func (population) tier() model.Tier      { return model.TierPopulation }
func (population) applicable(Input) bool { return true }
func (population) legs(dp DistanceParams, _ Input) (legs, error) {
	return baseline(dp, dp.PopulationMedianSeconds), nil
}

// demographic scales the population baseline by gender, age and experience.
type demographic struct{ p *Params }

func (demographic) tier() model.Tier { return model.TierDemographic }
func (demographic) applicable(in Input) bool {
	return hasDemographics(in.Athlete)
}
func (d demographic) legs(dp DistanceParams, in Input) (legs, error) {
	return baseline(dp, dp.PopulationMedianSeconds).scale(d.p.demographicFactor(in.Athlete)), nil
}

// priorRace scales each usable result onto the target distance by the ratio
// of population medians, then takes the median across races.
type priorRace struct{ p *Params }

func (priorRace) tier() model.Tier { return model.TierPriorRace }
func (priorRace) applicable(in Input) bool {
	return len(usableRaces(in.PriorRaces)) > 0
}
func (r priorRace) legs(dp DistanceParams, in Input) (legs, error) {
	races := usableRaces(in.PriorRaces)
	scaled := make([]float64, 0, len(races))
	for _, race := range races {
		src, err := r.p.Distance(*race.Category)
		if err != nil {
			return legs{}, err
		}
		scaled = append(scaled, float64(race.FinishSeconds)*dp.PopulationMedianSeconds/src.PopulationMedianSeconds)
	}
	return baseline(dp, median(scaled)), nil
}

// physiological derives each leg from threshold metrics.
type physiological struct{ p *Params }

func (physiological) tier() model.Tier { return model.TierPhysiological }
func (physiological) applicable(in Input) bool {
	return hasPhysiology(in.Athlete)
}
func (ph physiological) legs(dp DistanceParams, in Input) (legs, error) {
	a := in.Athlete
	var out legs

	if a.SwimCSSSecPer100m != nil {
		out.swim = *a.SwimCSSSecPer100m * dp.SwimMeters / 100 * dp.SwimCSSFactor
	} else {
		out.swim = baseline(dp, dp.PopulationMedianSeconds).swim * ph.p.demographicFactor(a)
	}

	watts := *a.FTPWatts * dp.TypicalBikeIF
	gain := dp.FallbackElevationGainMeters
	if in.Course != nil && in.Course.PointCount > 1 {
		gain = in.Course.ElevationGainMeters
	}
	bike, err := ph.p.bikeSeconds(watts, *a.BodyMassKg, dp.BikeMeters, gain)
	if err != nil {
		return legs{}, err
	}
	out.bike = bike
	out.bikeWatts = watts

	out.run = *a.RunThresholdPaceSecPerKm * dp.RunMeters / 1000 * dp.RunFade
	return out, nil
}

// bikeSeconds solves the steady-state speed on flat ground for the given
// power, then adds the time needed to lift rider and bike over the gain.
// Part of that climbing cost is recovered on descents.
func (p *Params) bikeSeconds(watts, riderKg, meters, gainMeters float64) (float64, error) {
	ph := p.Physics
	if watts <= 0 || riderKg <= 0 {
		return 0, fmt.Errorf("%w: power and mass must be positive", ErrInvalidInput)
	}
	mass := riderKg + ph.BikeMassKg
	wheel := watts * ph.DrivetrainEff
	demand := func(v float64) float64 {
		return 0.5*ph.AirDensity*ph.CdA*v*v*v + ph.Crr*mass*ph.Gravity*v
	}

	lo, hi := 0.0, ph.MaxSpeedMPS
	for i := 0; i < ph.SpeedSolverIters; i++ {
		mid := (lo + hi) / 2
		if demand(mid) > wheel {
			hi = mid
		} else {
			lo = mid
		}
	}
	v := (lo + hi) / 2
	if v <= 0 {
		return 0, fmt.Errorf("%w: solved bike speed is zero", ErrInvalidInput)
	}

	climb := math.Max(0, gainMeters) * mass * ph.Gravity * (1 - ph.DescentRecovery) / wheel
	return meters/v + climb, nil
}

func (p *Params) demographicFactor(a model.AthleteProfile) float64 {
	f := 1.0
	if a.Gender != nil {
		if g, ok := p.GenderFactors[*a.Gender]; ok {
			f *= g
		}
	}
	if a.Age != nil {
		for _, b := range p.AgeBands {
			if *a.Age >= b.MinAge && *a.Age <= b.MaxAge {
				f *= b.Factor
				break
			}
		}
	}
	if a.Experience != nil {
		if e, ok := p.ExperienceFactors[*a.Experience]; ok {
			f *= e
		}
	}
	return f
}

// applyWeather adds the heat and humidity penalty to every leg and the wind
// penalty to the bike only.
func (p *Params) applyWeather(l legs, w model.Weather) legs {
	heat := impactPct(p.Weather.Temperature, w.TemperatureC) + impactPct(p.Weather.Humidity, w.HumidityPct)
	wind := impactPct(p.Weather.Wind, w.WindSpeedKph)
	l.swim *= 1 + heat/100
	l.bike *= 1 + (heat+wind)/100
	l.run *= 1 + heat/100
	return l
}

func impactPct(bins []ImpactBin, v float64) float64 {
	pct := 0.0
	for _, b := range bins {
		if v >= b.From {
			pct = b.Pct
		}
	}
	return pct
}

func baseline(dp DistanceParams, total float64) legs {
	moving := math.Max(total-dp.T1Seconds-dp.T2Seconds, 1)
	return legs{
		swim: moving * dp.Split.Swim,
		bike: moving * dp.Split.Bike,
		run:  moving * dp.Split.Run,
	}
}

// fitBounds clamps each leg into its range, then scales the legs together
// so the total lands inside the distance bounds.
func fitBounds(l legs, dp DistanceParams) legs {
	l.swim = dp.SwimBounds.clamp(l.swim)
	l.bike = dp.BikeBounds.clamp(l.bike)
	l.run = dp.RunBounds.clamp(l.run)

	transitions := dp.T1Seconds + dp.T2Seconds
	moving := l.swim + l.bike + l.run
	target := dp.TotalBounds.clamp(moving+transitions) - transitions
	if target > 0 && target != moving {
		l = l.scale(target / moving)
	}
	return l
}

// reconcile rounds parts to whole seconds so their sum equals the rounded
// sum of the inputs. Remainders are handed out largest first, ties to the
// earlier index.
func reconcile(parts []float64) []int {
	sum := 0.0
	for _, v := range parts {
		sum += v
	}
	target := int(math.Round(sum))

	out := make([]int, len(parts))
	type rem struct {
		idx  int
		frac float64
	}
	rems := make([]rem, len(parts))
	floorSum := 0
	for i, v := range parts {
		f := math.Floor(v)
		out[i] = int(f)
		floorSum += int(f)
		rems[i] = rem{i, v - f}
	}
	sort.SliceStable(rems, func(a, b int) bool { return rems[a].frac > rems[b].frac })
	for k := 0; k < target-floorSum && k < len(rems); k++ {
		out[rems[k].idx]++
	}
	return out
}

func quantiles(total int, sigma float64) model.Quantiles {
	t := float64(total)
	return model.Quantiles{
		P05: int(math.Round(t * math.Exp(z05*sigma))),
		P25: int(math.Round(t * math.Exp(z25*sigma))),
		P50: total,
		P75: int(math.Round(t * math.Exp(z75*sigma))),
		P95: int(math.Round(t * math.Exp(z95*sigma))),
	}
}

func confidenceLabel(t model.Tier) string {
	switch t {
	case model.TierPhysiological:
		return "high"
	case model.TierPriorRace:
		return "medium"
	case model.TierDemographic:
		return "low"
	default:
		return "very_low"
	}
}

func setIntensities(res *model.PredictionResult, t model.Tier, l legs) {
	none := model.Intensity{Kind: model.IntensityNone}
	seg := &res.Segments
	seg.Swim.Intensity, seg.Bike.Intensity, seg.Run.Intensity = none, none, none
	if t < model.TierPriorRace {
		return
	}
	seg.Swim.Intensity = paceIntensity(seg.Swim, 100, "sec/100m")
	seg.Run.Intensity = paceIntensity(seg.Run, 1000, "sec/km")
	if t == model.TierPhysiological && l.bikeWatts > 0 {
		seg.Bike.Intensity = model.Intensity{
			Kind:  model.IntensityPower,
			Value: math.Round(l.bikeWatts),
			Unit:  "W",
		}
	}
}

func paceIntensity(s model.Segment, per float64, unit string) model.Intensity {
	if s.DistanceMeters <= 0 {
		return model.Intensity{Kind: model.IntensityNone}
	}
	return model.Intensity{
		Kind:  model.IntensityPace,
		Value: math.Round(float64(s.Seconds)/s.DistanceMeters*per*10) / 10,
		Unit:  unit,
	}
}

func hasPhysiology(a model.AthleteProfile) bool {
	return positive(a.FTPWatts) && positive(a.BodyMassKg) && positive(a.RunThresholdPaceSecPerKm)
}

func hasDemographics(a model.AthleteProfile) bool {
	return a.Gender != nil && *a.Gender != model.GenderUnknown && a.Age != nil && *a.Age > 0
}

func positive(v *float64) bool {
	return v != nil && *v > 0 && !math.IsNaN(*v) && !math.IsInf(*v, 0)
}

func usableRaces(races []model.PriorRace) []model.PriorRace {
	out := make([]model.PriorRace, 0, len(races))
	for _, r := range races {
		if r.Usable() {
			out = append(out, r)
		}
	}
	return out
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
