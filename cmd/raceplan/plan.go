package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/raceday/internal/adapters/narrative"
	app "github.com/okian/raceday/internal/app"
	"github.com/okian/raceday/internal/config"
	"github.com/okian/raceday/internal/domain/model"
)

const (
	cliUser    = "cli"
	dateLayout = "2006-01-02"

	formatText = "text"
	formatJSON = "json"
)

type planFlags struct {
	distance   string
	raceDate   string
	raceName   string
	ftp        float64
	mass       float64
	runPace    float64
	swimCSS    float64
	maxHR      int
	restingHR  int
	gender     string
	age        int
	experience string
	prior      []string
	lat        float64
	lon        float64
	coursePath string
	weather    string
	tempC      float64
	humidity   float64
	narrator   string
	format     string
}

func newPlanCmd() *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Generate a race plan",
		Example: `  raceplan plan --distance olympic --date 2026-06-14 --ftp 250 --mass 72 --run-pace 255
  raceplan plan --distance 70.3 --date 2026-09-06 --course ./course.gpx --lat 46.2 --lon 6.1 --weather open-meteo -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlan(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.distance, "distance", "d", "", "race distance: sprint, olympic, 70.3 or 140.6")
	fl.StringVar(&f.raceDate, "date", "", "race date (YYYY-MM-DD)")
	fl.StringVar(&f.raceName, "name", "", "race name used in the narrative")
	fl.Float64Var(&f.ftp, "ftp", 0, "functional threshold power in watts")
	fl.Float64Var(&f.mass, "mass", 0, "body mass in kg")
	fl.Float64Var(&f.runPace, "run-pace", 0, "run threshold pace in seconds per km")
	fl.Float64Var(&f.swimCSS, "swim-css", 0, "swim critical speed in seconds per 100m")
	fl.IntVar(&f.maxHR, "max-hr", 0, "maximum heart rate")
	fl.IntVar(&f.restingHR, "resting-hr", 0, "resting heart rate")
	fl.StringVar(&f.gender, "gender", "", "male or female")
	fl.IntVar(&f.age, "age", 0, "age in years")
	fl.StringVar(&f.experience, "experience", "", "beginner, intermediate, advanced or elite")
	fl.StringSliceVar(&f.prior, "prior", nil, "prior result as distance=h:mm:ss (repeatable)")
	fl.Float64Var(&f.lat, "lat", 0, "venue latitude")
	fl.Float64Var(&f.lon, "lon", 0, "venue longitude")
	fl.StringVar(&f.coursePath, "course", "", "bike course file (.gpx or .fit)")
	fl.StringVar(&f.weather, "weather", config.WeatherStatic, "weather source: static, open-meteo or off")
	fl.Float64Var(&f.tempC, "temp", 18, "temperature in C for static weather")
	fl.Float64Var(&f.humidity, "humidity", 55, "relative humidity in % for static weather")
	fl.StringVar(&f.narrator, "narrative", config.NarrativeTemplate, "narrative provider: template, openai or off")
	fl.StringVarP(&f.format, "output", "o", formatText, "output format: text or json")
	_ = cmd.MarkFlagRequired("distance")
	_ = cmd.MarkFlagRequired("date")

	return cmd
}

func runPlan(cmd *cobra.Command, f *planFlags) error {
	if f.format != formatText && f.format != formatJSON {
		return fmt.Errorf("unknown output format %q", f.format)
	}
	in, err := f.input(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	cfg.StoreDriver = config.StoreBadger
	cfg.StorePath = ""
	cfg.QuotaLimit = 0
	cfg.WeatherSource = f.weather
	cfg.StaticTemperatureC = f.tempC
	cfg.StaticHumidityPct = f.humidity
	cfg.NarrativeProvider = f.narrator
	if f.coursePath != "" {
		abs, err := filepath.Abs(f.coursePath)
		if err != nil {
			return err
		}
		cfg.CourseDir = filepath.Dir(abs)
		in.Course = &model.CourseRef{Key: filepath.Base(abs)}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	rt, err := app.Build(ctx, cfg, app.WithPredictorWeather(true))
	if err != nil {
		return err
	}
	defer rt.Close()

	plan, err := rt.Orchestrator.Create(ctx, cliUser, in)
	if err != nil {
		return err
	}
	plan, err = rt.Orchestrator.Generate(ctx, plan.ID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if f.format == formatJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	return printPlan(out, plan)
}

func (f *planFlags) input(cmd *cobra.Command) (model.GenerationInput, error) {
	var in model.GenerationInput
	d, err := model.ParseDistanceCategory(f.distance)
	if err != nil {
		return in, err
	}
	date, err := time.Parse(dateLayout, f.raceDate)
	if err != nil {
		return in, fmt.Errorf("invalid --date %q: want YYYY-MM-DD", f.raceDate)
	}
	in.Distance = d
	in.RaceDate = date
	in.RaceName = strings.TrimSpace(f.raceName)

	set := cmd.Flags().Changed
	a := &in.Athlete
	if set("ftp") {
		a.FTPWatts = model.Float64Ptr(f.ftp)
	}
	if set("mass") {
		a.BodyMassKg = model.Float64Ptr(f.mass)
	}
	if set("run-pace") {
		a.RunThresholdPaceSecPerKm = model.Float64Ptr(f.runPace)
	}
	if set("swim-css") {
		a.SwimCSSSecPer100m = model.Float64Ptr(f.swimCSS)
	}
	if set("max-hr") {
		a.MaxHR = model.IntPtr(f.maxHR)
	}
	if set("resting-hr") {
		a.RestingHR = model.IntPtr(f.restingHR)
	}
	if set("age") {
		a.Age = model.IntPtr(f.age)
	}
	if set("gender") {
		g := model.Gender(strings.ToLower(f.gender))
		a.Gender = &g
	}
	if set("experience") {
		e := model.ExperienceLevel(strings.ToLower(f.experience))
		a.Experience = &e
	}

	for _, p := range f.prior {
		race, err := parsePrior(p)
		if err != nil {
			return in, err
		}
		in.PriorRaces = append(in.PriorRaces, race)
	}

	switch {
	case set("lat") && set("lon"):
		in.Location = &model.Location{Lat: f.lat, Lon: f.lon}
	case set("lat") || set("lon"):
		return in, errors.New("--lat and --lon must be given together")
	}
	return in, nil
}

// parsePrior reads "olympic=2:31:10".
func parsePrior(s string) (model.PriorRace, error) {
	name, clock, ok := strings.Cut(s, "=")
	if !ok {
		return model.PriorRace{}, fmt.Errorf("invalid --prior %q: want distance=h:mm:ss", s)
	}
	d, err := model.ParseDistanceCategory(name)
	if err != nil {
		return model.PriorRace{}, fmt.Errorf("invalid --prior %q: %w", s, err)
	}
	secs, err := parseClock(clock)
	if err != nil {
		return model.PriorRace{}, fmt.Errorf("invalid --prior %q: %w", s, err)
	}
	return model.PriorRace{Category: &d, FinishSeconds: secs}, nil
}

func parseClock(s string) (int, error) {
	var h, m, sec int
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	var err error
	switch len(parts) {
	case 3:
		_, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	case 2:
		_, err = fmt.Sscanf(s, "%d:%d", &m, &sec)
	default:
		err = errors.New("want h:mm:ss or mm:ss")
	}
	if err != nil {
		return 0, err
	}
	if h < 0 || m < 0 || (len(parts) == 3 && m > 59) || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*3600 + m*60 + sec, nil
}

func printPlan(out io.Writer, p *model.RacePlan) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	row := func(k, v string) { fmt.Fprintf(tw, "%s\t%s\n", k, v) }

	row("plan", p.ID)
	row("status", string(p.Status))
	if in := p.Input; in != nil {
		row("distance", string(in.Distance))
		row("race date", in.RaceDate.Format(dateLayout))
	}
	if pr := p.Prediction; pr != nil {
		row("finish", narrative.Clock(pr.TotalSeconds))
		row("range", narrative.Clock(pr.Quantiles.P05)+" - "+narrative.Clock(pr.Quantiles.P95))
		row("tier", fmt.Sprintf("%d (%s)", pr.Tier, pr.ConfidenceLabel))
		row("swim", narrative.Clock(pr.Segments.Swim.Seconds))
		row("t1", narrative.Clock(pr.Segments.T1.Seconds))
		row("bike", narrative.Clock(pr.Segments.Bike.Seconds))
		row("t2", narrative.Clock(pr.Segments.T2.Seconds))
		row("run", narrative.Clock(pr.Segments.Run.Seconds))
	}
	if w := p.Weather; w != nil {
		row("weather", fmt.Sprintf("%.1fC %.0f%% (%s)", w.TemperatureC, w.HumidityPct, w.Source))
	}
	if c := p.Course; c != nil {
		row("course", fmt.Sprintf("%.1f km, +%.0f m", c.TotalDistanceMeters/1000, c.ElevationGainMeters))
	}
	if s := p.Segments; s != nil {
		row("heat derating", fmt.Sprintf("%.3f", s.HeatDerating))
		if s.Bike != nil {
			for _, b := range s.Bike.PowerBands {
				v := fmt.Sprintf("%.0f-%.0f%% FTP", b.LowPctFTP, b.HighPctFTP)
				if b.LowWatts != nil && b.HighWatts != nil {
					v += fmt.Sprintf(" (%.0f-%.0f W)", *b.LowWatts, *b.HighWatts)
				}
				row("bike "+string(b.Terrain), v)
			}
		}
	}
	if n := p.Nutrition; n != nil {
		row("carbs", fmt.Sprintf("%.0f g/h, %.0f g total", n.CarbsGramsPerHour, n.TotalCarbsGrams))
		row("fluid", fmt.Sprintf("%.0f ml/h", n.FluidMlPerHour))
		row("sodium", fmt.Sprintf("%.0f mg/h", n.SodiumMgPerHour))
	}
	if st := p.Statistics; st != nil {
		row("cohort", fmt.Sprintf("p%.0f, %s", st.Percentile, st.Label))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if p.Narrative != nil {
		_, err := fmt.Fprintf(out, "\n%s\n", *p.Narrative)
		return err
	}
	return nil
}
