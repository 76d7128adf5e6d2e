package narrative_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/raceday/internal/adapters/narrative"
	"github.com/okian/raceday/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func computedPlan() *model.RacePlan {
	return &model.RacePlan{
		ID:    "p1",
		Input: &model.GenerationInput{Distance: model.DistanceOlympic, RaceName: "Lake Classic"},
		Prediction: &model.PredictionResult{
			Distance:        model.DistanceOlympic,
			TotalSeconds:    8700,
			ConfidenceLabel: "medium",
			Segments: model.Segments{
				Swim: model.Segment{Seconds: 1500}, T1: model.Segment{Seconds: 120},
				Bike: model.Segment{Seconds: 4400}, T2: model.Segment{Seconds: 90},
				Run: model.Segment{Seconds: 2590},
			},
		},
		Segments: &model.PacingPlan{
			Swim: &model.SegmentPlan{},
			Bike: &model.SegmentPlan{PowerBands: []model.PowerBand{{Terrain: model.TerrainFlat, Share: 1, LowPctFTP: 85, HighPctFTP: 91}}},
			Run:  &model.SegmentPlan{PaceZone: &model.PaceZone{FastSeconds: 251, SlowSeconds: 266, Unit: "sec/km"}},
		},
		Nutrition:  &model.NutritionPlan{CarbsGramsPerHour: 60, FluidMlPerHour: 600, SodiumMgPerHour: 500},
		Statistics: &model.StatisticalContext{Percentile: 48, Label: "faster than 48% of olympic athletes"},
		Weather:    &model.Weather{TemperatureC: 22, HumidityPct: 55, WindSpeedKph: 10},
		Course:     &model.CourseGeometry{ElevationGainMeters: 310},
	}
}

func TestSummary(t *testing.T) {
	Convey("Given a computed plan", t, func() {
		s, err := narrative.FromPlan(computedPlan())
		So(err, ShouldBeNil)

		Convey("Then the prompt carries the plan figures", func() {
			p := s.Prompt()
			So(p, ShouldContainSubstring, "Lake Classic")
			So(p, ShouldContainSubstring, "Predicted finish: 2:25:00")
			So(p, ShouldContainSubstring, "swim 25:00")
			So(p, ShouldContainSubstring, "85-91% FTP")
			So(p, ShouldContainSubstring, "Run pace: 4:11-4:26 sec/km")
			So(p, ShouldContainSubstring, "310 m")
			So(p, ShouldNotContainSubstring, "p1")
		})
	})

	Convey("Given a plan without computed outputs", t, func() {
		_, err := narrative.FromPlan(&model.RacePlan{ID: "p2"})
		So(errors.Is(err, narrative.ErrIncomplete), ShouldBeTrue)
	})

	Convey("Given durations", t, func() {
		So(narrative.Clock(59), ShouldEqual, "0:59")
		So(narrative.Clock(3600), ShouldEqual, "1:00:00")
		So(narrative.Clock(-5), ShouldEqual, "0:00")
	})
}

func TestOpenAI(t *testing.T) {
	Convey("Given a chat completion endpoint", t, func() {
		var got struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		reply := "  Swim steady, then settle on the bike.  "
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
				http.NotFound(w, r)
				return
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":     "cmpl-1",
				"object": "chat.completion",
				"model":  got.Model,
				"choices": []map[string]any{{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]string{"role": "assistant", "content": reply},
				}},
			})
		}))
		defer srv.Close()

		n := narrative.NewOpenAI("test-key", narrative.WithBaseURL(srv.URL+"/v1"), narrative.WithModel("coach-mini"))
		s, _ := narrative.FromPlan(computedPlan())

		Convey("When a briefing is requested", func() {
			text, err := n.Narrate(context.Background(), s)

			Convey("Then the trimmed reply is returned", func() {
				So(err, ShouldBeNil)
				So(text, ShouldEqual, "Swim steady, then settle on the bike.")
				So(got.Model, ShouldEqual, "coach-mini")
				So(got.Messages, ShouldHaveLength, 2)
				So(got.Messages[0].Role, ShouldEqual, "system")
				So(got.Messages[1].Content, ShouldContainSubstring, "Lake Classic")
			})
		})

		Convey("When the model answers with nothing", func() {
			reply = "   "
			_, err := n.Narrate(context.Background(), s)
			So(errors.Is(err, narrative.ErrEmptyResponse), ShouldBeTrue)
		})
	})

	Convey("Given a failing endpoint", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()
		n := narrative.NewOpenAI("k", narrative.WithBaseURL(srv.URL))
		s, _ := narrative.FromPlan(computedPlan())
		_, err := n.Narrate(context.Background(), s)
		So(err, ShouldNotBeNil)
	})

	Convey("Given the offline narrators", t, func() {
		s, _ := narrative.FromPlan(computedPlan())
		_, err := narrative.Disabled{}.Narrate(context.Background(), s)
		So(errors.Is(err, narrative.ErrDisabled), ShouldBeTrue)

		text, err := narrative.Template{}.Narrate(context.Background(), s)
		So(err, ShouldBeNil)
		So(text, ShouldStartWith, "Race: Lake Classic")
	})
}
