package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/raceday/internal/adapters/http/api"
	service "github.com/okian/raceday/internal/app"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type mockPlans struct {
	createErr error
	resumeErr error
	readErr   error

	userID  string
	input   model.GenerationInput
	plan    *model.RacePlan
	resumed int
}

func (m *mockPlans) CreatePlan(_ context.Context, userID string, in model.GenerationInput) (*model.RacePlan, error) {
	m.userID, m.input = userID, in
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &model.RacePlan{ID: "plan-1", UserID: userID, Status: model.StatusGenerating, Input: &in}, nil
}

func (m *mockPlans) Resume(_ context.Context, id string) (*model.RacePlan, error) {
	if m.resumeErr != nil {
		return nil, m.resumeErr
	}
	m.resumed++
	return &model.RacePlan{ID: id, Status: model.StatusGenerating}, nil
}

func (m *mockPlans) Plan(_ context.Context, id string) (*model.RacePlan, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	p := *m.plan
	p.ID = id
	return &p, nil
}

func (m *mockPlans) Status(ctx context.Context, id string) (model.StatusReport, error) {
	p, err := m.Plan(ctx, id)
	if err != nil {
		return model.StatusReport{}, err
	}
	return model.StatusReport{PlanID: p.ID, UserID: p.UserID, Status: p.Status, ErrorMessage: p.ErrorMessage, Progress: p.Progress()}, nil
}

type mockStatsProvider struct {
	stats map[string]interface{}
}

func (m *mockStatsProvider) GetStats() map[string]interface{} {
	return m.stats
}

const validBody = `{
	"distance": "olympic",
	"athlete": {"ftp_watts": 250, "body_mass_kg": 72, "run_threshold_pace_sec_per_km": 255},
	"race_date": "2026-09-12",
	"location": {"lat": 47.37, "lon": 8.54},
	"course": {"key": "zurich.gpx"},
	"race_name": " Lake Classic "
}`

func serve(mux *http.ServeMux, method, path, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
	return body
}

func TestServer_Register(t *testing.T) {
	Convey("Given a registered API server", t, func() {
		deps := &mockPlans{plan: &model.RacePlan{Status: model.StatusGenerating}}
		stats := &mockStatsProvider{stats: map[string]interface{}{"started": true, "workerCount": 4}}
		mux := http.NewServeMux()
		api.NewServer(deps, stats).Register(context.Background(), mux)

		Convey("When the health endpoint is scraped", func() {
			w := serve(mux, http.MethodGet, "/healthz", "", "")

			Convey("Then it serves the metrics registry", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(w.Body.String(), ShouldContainSubstring, "raceday_")
			})
		})

		Convey("When the stats endpoint is read", func() {
			w := serve(mux, http.MethodGet, "/stats", "", "")

			Convey("Then it returns the provider's stats", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var body map[string]interface{}
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["started"], ShouldEqual, true)
				So(body["workerCount"], ShouldEqual, float64(4))
			})
		})

		Convey("When an unknown route is requested", func() {
			w := serve(mux, http.MethodGet, "/archive", "", "")
			So(w.Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When a route is called with the wrong method", func() {
			w := serve(mux, http.MethodDelete, "/plans/plan-1", "", "")
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPlansHandler_Create(t *testing.T) {
	Convey("Given the plans API", t, func() {
		deps := &mockPlans{}
		mux := http.NewServeMux()
		api.NewServer(deps, &mockStatsProvider{}).Register(context.Background(), mux)

		Convey("When a valid plan request is posted", func() {
			w := serve(mux, http.MethodPost, "/plans", "user-1", validBody)

			Convey("Then generation is accepted", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(w.Header().Get("Location"), ShouldEqual, "/plans/plan-1")
				So(w.Header().Get("X-Request-ID"), ShouldNotBeEmpty)

				var body map[string]string
				So(json.Unmarshal(w.Body.Bytes(), &body), ShouldBeNil)
				So(body["plan_id"], ShouldEqual, "plan-1")
				So(body["status"], ShouldEqual, "generating")
				So(body["status_url"], ShouldEqual, "/plans/plan-1/status")
			})

			Convey("Then the input reaches the service normalized", func() {
				So(deps.userID, ShouldEqual, "user-1")
				So(deps.input.Distance, ShouldEqual, model.DistanceOlympic)
				So(deps.input.RaceDate.Format("2006-01-02"), ShouldEqual, "2026-09-12")
				So(*deps.input.Athlete.FTPWatts, ShouldEqual, 250)
				So(deps.input.RaceName, ShouldEqual, "Lake Classic")
				So(deps.input.Course.Key, ShouldEqual, "zurich.gpx")
			})
		})

		Convey("When the distance uses an alias", func() {
			body := strings.Replace(validBody, `"olympic"`, `"ironman"`, 1)
			w := serve(mux, http.MethodPost, "/plans", "user-1", body)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			So(deps.input.Distance, ShouldEqual, model.DistanceFull)
		})

		Convey("When the request is malformed", func() {
			cases := map[string]string{
				"no user":          "",
				"bad json":         "{",
				"unknown field":    `{"distance":"sprint","race_date":"2026-09-12","colour":"red"}`,
				"missing date":     `{"distance":"sprint"}`,
				"bad date":         `{"distance":"sprint","race_date":"12/09/2026"}`,
				"unknown distance": `{"distance":"marathon","race_date":"2026-09-12"}`,
				"ftp out of range": `{"distance":"sprint","race_date":"2026-09-12","athlete":{"ftp_watts":-5}}`,
				"bad latitude":     `{"distance":"sprint","race_date":"2026-09-12","location":{"lat":91,"lon":0}}`,
			}
			for name, body := range cases {
				user := "user-1"
				if name == "no user" {
					user, body = "", validBody
				}
				w := serve(mux, http.MethodPost, "/plans", user, body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				So(decodeError(w)["code"], ShouldEqual, "bad_request")
			}
		})

		Convey("When the service refuses the plan", func() {
			cases := []struct {
				err  error
				code int
				kind string
			}{
				{fmt.Errorf("%w: too young", service.ErrInputInvalid), http.StatusBadRequest, "bad_request"},
				{fmt.Errorf("%w: 3 of 3", service.ErrQuotaExceeded), http.StatusTooManyRequests, "quota_exceeded"},
				{fmt.Errorf("%w: queue full", service.ErrBusy), http.StatusServiceUnavailable, "backpressure"},
				{service.ErrNotStarted, http.StatusServiceUnavailable, "unavailable"},
				{fmt.Errorf("create plan: disk full"), http.StatusInternalServerError, "internal_error"},
			}
			for _, c := range cases {
				deps.createErr = c.err
				w := serve(mux, http.MethodPost, "/plans", "user-1", validBody)
				So(w.Code, ShouldEqual, c.code)
				So(decodeError(w)["code"], ShouldEqual, c.kind)
			}
		})

		Convey("When the service fails internally", func() {
			deps.createErr = fmt.Errorf("create plan: sqlite: database is locked")
			w := serve(mux, http.MethodPost, "/plans", "user-1", validBody)

			Convey("Then the cause is not exposed", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				So(w.Body.String(), ShouldNotContainSubstring, "sqlite")
			})
		})
	})
}

func TestPlansHandler_Read(t *testing.T) {
	Convey("Given a failed plan", t, func() {
		msg := model.MessageGenerationTimeout
		deps := &mockPlans{plan: &model.RacePlan{
			UserID:       "user-1",
			Status:       model.StatusFailed,
			ErrorMessage: &msg,
			Weather:      &model.Weather{TemperatureC: 21},
		}}
		mux := http.NewServeMux()
		api.NewServer(deps, &mockStatsProvider{}).Register(context.Background(), mux)

		Convey("When its status is read", func() {
			w := serve(mux, http.MethodGet, "/plans/plan-9/status", "user-1", "")

			Convey("Then the report carries status, message and progress", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var report model.StatusReport
				So(json.Unmarshal(w.Body.Bytes(), &report), ShouldBeNil)
				So(report.PlanID, ShouldEqual, "plan-9")
				So(report.Status, ShouldEqual, model.StatusFailed)
				So(*report.ErrorMessage, ShouldEqual, model.MessageGenerationTimeout)
				So(report.Progress.Weather, ShouldBeTrue)
				So(report.Progress.Segments, ShouldBeFalse)
			})
		})

		Convey("When the full plan is read", func() {
			w := serve(mux, http.MethodGet, "/plans/plan-9", "user-1", "")

			Convey("Then the stored plan is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var plan model.RacePlan
				So(json.Unmarshal(w.Body.Bytes(), &plan), ShouldBeNil)
				So(plan.ID, ShouldEqual, "plan-9")
				So(plan.Weather.TemperatureC, ShouldEqual, 21)
			})
		})

		Convey("When the plan does not exist", func() {
			deps.readErr = fmt.Errorf("%w: nope", service.ErrPlanNotFound)
			So(serve(mux, http.MethodGet, "/plans/nope", "user-1", "").Code, ShouldEqual, http.StatusNotFound)
			So(serve(mux, http.MethodGet, "/plans/nope/status", "user-1", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the caller is not named", func() {
			for _, req := range [][2]string{
				{http.MethodGet, "/plans/plan-9"},
				{http.MethodGet, "/plans/plan-9/status"},
				{http.MethodPost, "/plans/plan-9/retry"},
			} {
				w := serve(mux, req[0], req[1], "", "")

				Convey("Then "+req[0]+" "+req[1]+" is a bad request", func() {
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decodeError(w)["code"], ShouldEqual, "bad_request")
				})
			}
		})

		Convey("When another user asks for the plan", func() {
			for _, req := range [][2]string{
				{http.MethodGet, "/plans/plan-9"},
				{http.MethodGet, "/plans/plan-9/status"},
				{http.MethodPost, "/plans/plan-9/retry"},
			} {
				w := serve(mux, req[0], req[1], "user-2", "")

				Convey("Then "+req[0]+" "+req[1]+" answers as if it did not exist", func() {
					So(w.Code, ShouldEqual, http.StatusNotFound)
					So(decodeError(w)["code"], ShouldEqual, "not_found")
					So(w.Body.String(), ShouldNotContainSubstring, "timed out")
				})
			}

			Convey("Then nothing is queued again", func() {
				So(deps.resumed, ShouldEqual, 0)
			})
		})

		Convey("When a retry is requested", func() {
			Convey("Then a generating plan is queued again", func() {
				w := serve(mux, http.MethodPost, "/plans/plan-9/retry", "user-1", "")
				So(w.Code, ShouldEqual, http.StatusAccepted)
			})

			Convey("Then a terminal plan is a conflict", func() {
				deps.resumeErr = fmt.Errorf("%w: plan-9 is failed", service.ErrNotGenerating)
				w := serve(mux, http.MethodPost, "/plans/plan-9/retry", "user-1", "")
				So(w.Code, ShouldEqual, http.StatusConflict)
				So(decodeError(w)["code"], ShouldEqual, "conflict")
			})
		})
	})
}
