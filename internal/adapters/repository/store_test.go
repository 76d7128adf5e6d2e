package repository_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/raceday/internal/adapters/repository"
	"github.com/okian/raceday/internal/domain/model"
)

type storeFactory func(t *testing.T, clock func() time.Time) repository.Store

func stores() map[string]storeFactory {
	return map[string]storeFactory{
		"sqlite": func(t *testing.T, clock func() time.Time) repository.Store {
			s, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "plans.db"), repository.WithClock(clock))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"badger": func(t *testing.T, clock func() time.Time) repository.Store {
			s, err := repository.OpenBadger("", repository.WithClock(clock), repository.WithSyncWrites(false))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

var created = time.Date(2026, 6, 1, 7, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return created.Add(time.Minute) }
}

func newPlan(id string, at time.Time) *model.RacePlan {
	return &model.RacePlan{
		ID:     id,
		UserID: "user-1",
		Status: model.StatusGenerating,
		Input: &model.GenerationInput{
			Distance: model.DistanceOlympic,
			Athlete:  model.AthleteProfile{FTPWatts: model.Float64Ptr(240)},
			RaceDate: time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC),
			Location: &model.Location{Lat: 47.5, Lon: 8.7},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestPlanLifecycle(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())

			require.NoError(t, s.CreatePlan(ctx, newPlan("p1", created)))
			assert.ErrorIs(t, s.CreatePlan(ctx, newPlan("p1", created)), repository.ErrPlanExists)

			p, err := s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusGenerating, p.Status)
			assert.Equal(t, 240.0, *p.Input.Athlete.FTPWatts)
			assert.True(t, p.CreatedAt.Equal(created))
			assert.False(t, p.Progress().Weather)

			// Weather first, course later: the earlier value must survive.
			weather := &model.Weather{TemperatureC: 24, HumidityPct: 61, Source: "open-meteo"}
			require.NoError(t, s.SavePrepared(ctx, "p1", nil, weather))
			course := &model.CourseGeometry{TotalDistanceMeters: 40100, ElevationGainMeters: 310, PointCount: 900}
			require.NoError(t, s.SavePrepared(ctx, "p1", course, nil))

			p, err = s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			require.NotNil(t, p.Weather)
			require.NotNil(t, p.Course)
			assert.Equal(t, 24.0, p.Weather.TemperatureC)
			assert.Equal(t, 310.0, p.Course.ElevationGainMeters)
			assert.True(t, p.UpdatedAt.Equal(created.Add(time.Minute)))

			computed := repository.Computed{
				Prediction: &model.PredictionResult{TotalSeconds: 8700, ModelVersion: "v"},
				Segments: &model.PacingPlan{
					Swim: &model.SegmentPlan{TargetSeconds: 1500},
					Bike: &model.SegmentPlan{TargetSeconds: 4400},
					Run:  &model.SegmentPlan{TargetSeconds: 2590},
				},
				Nutrition:  &model.NutritionPlan{CarbsGramsPerHour: 60},
				Statistics: &model.StatisticalContext{Percentile: 50},
			}
			require.NoError(t, s.SaveComputed(ctx, "p1", computed))
			require.NoError(t, s.SaveNarrative(ctx, "p1", "Steady swim, then hold power."))
			require.NoError(t, s.MarkCompleted(ctx, "p1"))

			p, err = s.GetPlan(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, model.StatusCompleted, p.Status)
			assert.True(t, p.Computed())
			assert.Equal(t, model.Progress{Weather: true, Segments: true, Nutrition: true, Statistics: true, Narrative: true}, p.Progress())

			// Terminal plans refuse every further write.
			assert.ErrorIs(t, s.MarkFailed(ctx, "p1", model.MessageGenerationFailed), repository.ErrPlanTerminal)
			assert.ErrorIs(t, s.SaveNarrative(ctx, "p1", "late"), repository.ErrPlanTerminal)
			assert.ErrorIs(t, s.MarkCompleted(ctx, "p1"), repository.ErrPlanTerminal)
		})
	}
}

func TestMarkFailed(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())
			require.NoError(t, s.CreatePlan(ctx, newPlan("p2", created)))

			require.NoError(t, s.MarkFailed(ctx, "p2", model.MessageGenerationTimeout))
			p, err := s.GetPlan(ctx, "p2")
			require.NoError(t, err)
			assert.Equal(t, model.StatusFailed, p.Status)
			require.NotNil(t, p.ErrorMessage)
			assert.Equal(t, model.MessageGenerationTimeout, *p.ErrorMessage)

			assert.ErrorIs(t, s.MarkCompleted(ctx, "p2"), repository.ErrPlanTerminal)
			_, err = s.GetPlan(ctx, "missing")
			assert.ErrorIs(t, err, repository.ErrNotFound)
			assert.ErrorIs(t, s.MarkFailed(ctx, "missing", "x"), repository.ErrNotFound)
		})
	}
}

func TestListStale(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())

			require.NoError(t, s.CreatePlan(ctx, newPlan("old-2", created.Add(-8*time.Minute))))
			require.NoError(t, s.CreatePlan(ctx, newPlan("old-1", created.Add(-10*time.Minute))))
			require.NoError(t, s.CreatePlan(ctx, newPlan("fresh", created.Add(-time.Minute))))
			require.NoError(t, s.CreatePlan(ctx, newPlan("done", created.Add(-20*time.Minute))))
			require.NoError(t, s.MarkCompleted(ctx, "done"))

			ids, err := s.ListStale(ctx, created.Add(-5*time.Minute), 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"old-1", "old-2"}, ids)

			ids, err = s.ListStale(ctx, created.Add(-5*time.Minute), 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"old-1"}, ids)

			_, err = s.ListStale(ctx, created, 0)
			assert.ErrorIs(t, err, repository.ErrInvalidLimit)
		})
	}
}

func TestQuotaLedger(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())

			n, err := s.Increment(ctx, "user-1", "2026", "p1")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			n, err = s.Increment(ctx, "user-1", "2026", "p2")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// Counting the same plan twice does not double count.
			n, err = s.Increment(ctx, "user-1", "2026", "p2")
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = s.Increment(ctx, "user-1", "2025", "p0")
			require.NoError(t, err)
			assert.Equal(t, 1, n)

			ok, err := s.Refund(ctx, "user-1", "p1")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = s.Refund(ctx, "user-1", "p1")
			require.NoError(t, err)
			assert.False(t, ok, "refund must be idempotent")

			ok, err = s.Refund(ctx, "user-2", "p2")
			require.NoError(t, err)
			assert.False(t, ok, "refund is scoped to the owning user")

			n, err = s.Count(ctx, "user-1", "2026")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestQuotaUserIsolation(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())

			_, err := s.Increment(ctx, "a", "2026", "p1")
			require.NoError(t, err)
			_, err = s.Increment(ctx, "a/b", "2026", "p2")
			require.NoError(t, err)
			_, err = s.Increment(ctx, "a%2Fb", "2026", "p3")
			require.NoError(t, err)

			for _, user := range []string{"a", "a/b", "a%2Fb"} {
				n, err := s.Count(ctx, user, "2026")
				require.NoError(t, err)
				assert.Equal(t, 1, n, "user %q", user)
			}

			ok, err := s.Refund(ctx, "a", "b/p2")
			require.NoError(t, err)
			assert.False(t, ok, "a plan id cannot reach into another user's ledger")

			n, err := s.Count(ctx, "a/b", "2026")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestConcurrentRefund(t *testing.T) {
	for name, factory := range stores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t, fixedClock())
			_, err := s.Increment(ctx, "user-1", "2026", "p1")
			require.NoError(t, err)

			var mu sync.Mutex
			wins := 0
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := s.Refund(ctx, "user-1", "p1")
					if err == nil && ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, 1, wins)
		})
	}
}

func TestSeason(t *testing.T) {
	assert.Equal(t, "2026", repository.Season(time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)))
}
