package predict

import "github.com/okian/raceday/internal/domain/model"

// DefaultVersion identifies the built-in parameter set.
const DefaultVersion = "tiered-2024.3"

const (
	minute = 60.0
	hour   = 3600.0
)

// DefaultParams returns the built-in parameter set. Each call returns a
// fresh copy.
func DefaultParams() *Params {
	return &Params{
		Version:   DefaultVersion,
		Distances: map[model.DistanceCategory]DistanceParams{
			model.DistanceSprint: {
				SwimMeters:                  750,
				BikeMeters:                  20_000,
				RunMeters:                   5_000,
				TypicalBikeIF:               0.92,
				SwimCSSFactor:               1.03,
				RunFade:                     1.04,
				FallbackElevationGainMeters: 150,
				T1Seconds:                   90,
				T2Seconds:                   60,
				PopulationMedianSeconds:     4800,
				Split:                       SplitRatios{Swim: 0.17, Bike: 0.50, Run: 0.33},
				TotalBounds:                 Bounds{60 * minute, 180 * minute},
				SwimBounds:                  Bounds{8 * minute, 30 * minute},
				BikeBounds:                  Bounds{25 * minute, 75 * minute},
				RunBounds:                   Bounds{15 * minute, 50 * minute},
			},
			model.DistanceOlympic: {
				SwimMeters:                  1_500,
				BikeMeters:                  40_000,
				RunMeters:                   10_000,
				TypicalBikeIF:               0.88,
				SwimCSSFactor:               1.05,
				RunFade:                     1.07,
				FallbackElevationGainMeters: 300,
				T1Seconds:                   120,
				T2Seconds:                   90,
				PopulationMedianSeconds:     8700,
				Split:                       SplitRatios{Swim: 0.17, Bike: 0.50, Run: 0.33},
				TotalBounds:                 Bounds{100 * minute, 300 * minute},
				SwimBounds:                  Bounds{15 * minute, 45 * minute},
				BikeBounds:                  Bounds{50 * minute, 120 * minute},
				RunBounds:                   Bounds{30 * minute, 80 * minute},
			},
			model.DistanceHalf: {
				SwimMeters:                  1_900,
				BikeMeters:                  90_000,
				RunMeters:                   21_100,
				TypicalBikeIF:               0.78,
				SwimCSSFactor:               1.07,
				RunFade:                     1.14,
				FallbackElevationGainMeters: 900,
				T1Seconds:                   180,
				T2Seconds:                   120,
				PopulationMedianSeconds:     19800,
				Split:                       SplitRatios{Swim: 0.13, Bike: 0.52, Run: 0.35},
				TotalBounds:                 Bounds{3.5 * hour, 8.5 * hour},
				SwimBounds:                  Bounds{20 * minute, 90 * minute},
				BikeBounds:                  Bounds{2 * hour, 4.5 * hour},
				RunBounds:                   Bounds{1.5 * hour, 4 * hour},
			},
			model.DistanceFull: {
				SwimMeters:                  3_800,
				BikeMeters:                  180_000,
				RunMeters:                   42_200,
				TypicalBikeIF:               0.70,
				SwimCSSFactor:               1.10,
				RunFade:                     1.28,
				FallbackElevationGainMeters: 1800,
				T1Seconds:                   300,
				T2Seconds:                   180,
				PopulationMedianSeconds:     40500,
				Split:                       SplitRatios{Swim: 0.11, Bike: 0.50, Run: 0.39},
				TotalBounds:                 Bounds{8 * hour, 17 * hour},
				SwimBounds:                  Bounds{40 * minute, 2.5 * hour},
				BikeBounds:                  Bounds{4.5 * hour, 8 * hour},
				RunBounds:                   Bounds{3 * hour, 7 * hour},
			},
		},
		Sigma:         SigmaByTier{Tier0: 0.13, Tier1: 0.09, Tier2: 0.06, Tier3: 0.04},
		GenderFactors: map[model.Gender]float64{
			model.GenderMale:   0.955,
			model.GenderFemale: 1.09,
		},
		AgeBands: []AgeBand{
			{MinAge: 0, MaxAge: 24, Factor: 1.02},
			{MinAge: 25, MaxAge: 39, Factor: 1.00},
			{MinAge: 40, MaxAge: 44, Factor: 1.02},
			{MinAge: 45, MaxAge: 49, Factor: 1.04},
			{MinAge: 50, MaxAge: 54, Factor: 1.07},
			{MinAge: 55, MaxAge: 59, Factor: 1.11},
			{MinAge: 60, MaxAge: 64, Factor: 1.16},
			{MinAge: 65, MaxAge: 200, Factor: 1.24},
		},
		ExperienceFactors: map[model.ExperienceLevel]float64{
			model.ExperienceBeginner:     1.10,
			model.ExperienceIntermediate: 1.00,
			model.ExperienceAdvanced:     0.93,
			model.ExperienceElite:        0.85,
		},
		Weather: WeatherImpact{
			Temperature: []ImpactBin{{-100, -1.5}, {15, -0.5}, {20, 0}, {25, 2.5}, {30, 5}},
			Wind:        []ImpactBin{{0, 0}, {15, 1.5}, {30, 3.5}},
			Humidity:    []ImpactBin{{0, 0}, {50, 0.5}, {70, 1.5}},
		},
		Physics: Physics{
			CdA:              0.32,
			Crr:              0.005,
			AirDensity:       1.2,
			BikeMassKg:       9,
			DrivetrainEff:    0.976,
			DescentRecovery:  0.6,
			Gravity:          9.81,
			MaxSpeedMPS:      25,
			SpeedSolverIters: 60,
		},
	}
}
