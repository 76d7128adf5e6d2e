package service_test

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/raceday/internal/adapters/narrative"
	"github.com/okian/raceday/internal/adapters/repository"
	service "github.com/okian/raceday/internal/app"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var start = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeWeather struct {
	mu    sync.Mutex
	errs  []error
	calls int
	w     model.Weather
	hook  func()
}

func (f *fakeWeather) Forecast(_ context.Context, _, _ float64, date time.Time) (model.Weather, error) {
	f.mu.Lock()
	f.calls++
	var err error
	if f.calls <= len(f.errs) {
		err = f.errs[f.calls-1]
	}
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return model.Weather{}, err
	}
	w := f.w
	w.Date = date
	return w, nil
}

func (f *fakeWeather) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCourses struct {
	err error
}

// Fetch returns a 40 km out-and-back line with rolling elevation.
func (f *fakeCourses) Fetch(context.Context, model.CourseRef) ([]model.TrackPoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	pts := make([]model.TrackPoint, 0, 361)
	for i := 0; i <= 360; i++ {
		pts = append(pts, model.TrackPoint{
			Lat:             47.0 + float64(i)*0.001,
			Lon:             8.5,
			ElevationMeters: 400 + 30*math.Sin(float64(i)/20),
		})
	}
	return pts, nil
}

type fakeNarrator struct {
	mu   sync.Mutex
	text string
	err  error
}

func (f *fakeNarrator) Narrate(context.Context, narrative.Summary) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text, f.err
}

func (f *fakeNarrator) set(text string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text, f.err = text, err
}

// flakyStore injects storage failures into a real store.
type flakyStore struct {
	repository.Store
	failComplete atomic.Bool
	failRefund   atomic.Bool
}

func (s *flakyStore) MarkCompleted(ctx context.Context, id string) error {
	if s.failComplete.Load() {
		return errors.New("disk full")
	}
	return s.Store.MarkCompleted(ctx, id)
}

func (s *flakyStore) Refund(ctx context.Context, userID, planID string) (bool, error) {
	if s.failRefund.Load() {
		return false, errors.New("ledger unavailable")
	}
	return s.Store.Refund(ctx, userID, planID)
}

type harness struct {
	orch     *service.Orchestrator
	store    *flakyStore
	clock    *clock
	weather  *fakeWeather
	courses  *fakeCourses
	narrator *fakeNarrator
}

func newHarness(t *testing.T, deps func(*service.Deps), opts ...service.OrchestratorOption) *harness {
	c := &clock{t: start}
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "plans.db"), repository.WithClock(c.Now))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		store:    &flakyStore{Store: db},
		clock:    c,
		weather:  &fakeWeather{w: model.Weather{TemperatureC: 18, HumidityPct: 60, Source: "test"}},
		courses:  &fakeCourses{},
		narrator: &fakeNarrator{text: "Go steady."},
	}
	d := service.Deps{
		Store:    h.store,
		Courses:  h.courses,
		Weather:  h.weather,
		Narrator: h.narrator,
	}
	if deps != nil {
		deps(&d)
	}
	opts = append([]service.OrchestratorOption{
		service.WithClock(c.Now),
		service.WithRetryBackoff(0),
	}, opts...)
	h.orch, err = service.NewOrchestrator(d, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func olympicInput() model.GenerationInput {
	return model.GenerationInput{
		Distance: model.DistanceOlympic,
		Athlete: model.AthleteProfile{
			FTPWatts:                 model.Float64Ptr(250),
			BodyMassKg:               model.Float64Ptr(72),
			RunThresholdPaceSecPerKm: model.Float64Ptr(255),
			SwimCSSSecPer100m:        model.Float64Ptr(98),
		},
		RaceDate: time.Date(2026, 6, 14, 0, 0, 0, 0, time.UTC),
		Location: &model.Location{Lat: 47.37, Lon: 8.54},
		Course:   &model.CourseRef{Key: "zurich.gpx"},
		RaceName: "Lake Classic",
	}
}
