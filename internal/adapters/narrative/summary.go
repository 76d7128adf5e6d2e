package narrative

import (
	"fmt"
	"strings"

	"github.com/okian/raceday/internal/domain/model"
)

// Summary is everything a narrator may see about a plan. It carries no user
// identifiers.
type Summary struct {
	Distance        model.DistanceCategory    `json:"distance"`
	RaceName        string                    `json:"race_name,omitempty"`
	TotalSeconds    int                       `json:"total_seconds"`
	Tier            model.Tier                `json:"tier"`
	ConfidenceLabel string                    `json:"confidence_label"`
	Segments        model.Segments            `json:"segments"`
	Pacing          *model.PacingPlan         `json:"pacing"`
	Nutrition       *model.NutritionPlan      `json:"nutrition"`
	Statistics      *model.StatisticalContext `json:"statistics"`
	Weather         *model.Weather            `json:"weather,omitempty"`
	ElevationGain   float64                   `json:"elevation_gain_meters,omitempty"`
}

// FromPlan builds the summary of a plan whose compute stage has run.
func FromPlan(p *model.RacePlan) (Summary, error) {
	if p == nil || !p.Computed() {
		return Summary{}, ErrIncomplete
	}
	s := Summary{
		Distance:        p.Prediction.Distance,
		TotalSeconds:    p.Prediction.TotalSeconds,
		Tier:            p.Prediction.Tier,
		ConfidenceLabel: p.Prediction.ConfidenceLabel,
		Segments:        p.Prediction.Segments,
		Pacing:          p.Segments,
		Nutrition:       p.Nutrition,
		Statistics:      p.Statistics,
		Weather:         p.Weather,
	}
	if p.Input != nil {
		s.RaceName = p.Input.RaceName
	}
	if p.Course != nil {
		s.ElevationGain = p.Course.ElevationGainMeters
	}
	return s, nil
}

// Prompt renders the summary as the user message of a completion request.
func (s Summary) Prompt() string {
	var b strings.Builder
	name := s.RaceName
	if name == "" {
		name = "a " + string(s.Distance) + " triathlon"
	}
	fmt.Fprintf(&b, "Race: %s (%s).\n", name, s.Distance)
	fmt.Fprintf(&b, "Predicted finish: %s (confidence %s).\n", Clock(s.TotalSeconds), s.ConfidenceLabel)
	fmt.Fprintf(&b, "Splits: swim %s, T1 %s, bike %s, T2 %s, run %s.\n",
		Clock(s.Segments.Swim.Seconds), Clock(s.Segments.T1.Seconds), Clock(s.Segments.Bike.Seconds),
		Clock(s.Segments.T2.Seconds), Clock(s.Segments.Run.Seconds))
	if s.ElevationGain > 0 {
		fmt.Fprintf(&b, "Bike elevation gain: %.0f m.\n", s.ElevationGain)
	}
	if s.Pacing != nil && s.Pacing.Bike != nil {
		for _, band := range s.Pacing.Bike.PowerBands {
			fmt.Fprintf(&b, "Bike %s (%.0f%% of course): %.0f-%.0f%% FTP.\n",
				band.Terrain, band.Share*100, band.LowPctFTP, band.HighPctFTP)
		}
	}
	if s.Pacing != nil && s.Pacing.Run != nil && s.Pacing.Run.PaceZone != nil {
		z := s.Pacing.Run.PaceZone
		fmt.Fprintf(&b, "Run pace: %s-%s %s.\n", Clock(int(z.FastSeconds)), Clock(int(z.SlowSeconds)), z.Unit)
	}
	if s.Weather != nil {
		fmt.Fprintf(&b, "Weather: %.0f C, %.0f%% humidity, wind %.0f km/h.\n",
			s.Weather.TemperatureC, s.Weather.HumidityPct, s.Weather.WindSpeedKph)
	}
	if s.Nutrition != nil {
		fmt.Fprintf(&b, "Fueling: %.0f g carbs, %.0f ml fluid, %.0f mg sodium per hour.\n",
			s.Nutrition.CarbsGramsPerHour, s.Nutrition.FluidMlPerHour, s.Nutrition.SodiumMgPerHour)
	}
	if s.Statistics != nil {
		fmt.Fprintf(&b, "Cohort: %s.\n", s.Statistics.Label)
	}
	return b.String()
}

// Clock formats seconds as h:mm:ss, or m:ss below an hour.
func Clock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, sec := seconds/3600, seconds%3600/60, seconds%60
	if h == 0 {
		return fmt.Sprintf("%d:%02d", m, sec)
	}
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}
