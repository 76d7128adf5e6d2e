package weather_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/raceday/internal/adapters/weather"
	. "github.com/smartystreets/goconvey/convey"
)

var today = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

type upstream struct {
	srv      *httptest.Server
	forecast atomic.Int32
	archive  atomic.Int32
	lastDay  atomic.Value
	status   int
}

func newUpstream(status int) *upstream {
	u := &upstream{status: status}
	u.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/forecast":
			u.forecast.Add(1)
		case "/archive":
			u.archive.Add(1)
		}
		day := r.URL.Query().Get("start_date")
		u.lastDay.Store(day)
		if u.status != http.StatusOK {
			w.WriteHeader(u.status)
			return
		}
		if day == "2026-06-03" {
			fmt.Fprintf(w, `{"daily":{"time":[%q],"temperature_2m_mean":[null],"relative_humidity_2m_mean":[50],"wind_speed_10m_max":[3]}}`, day)
			return
		}
		fmt.Fprintf(w, `{"daily":{"time":[%q],"temperature_2m_mean":[24.5],"relative_humidity_2m_mean":[63],"wind_speed_10m_max":[14.2]}}`, day)
	}))
	return u
}

func (u *upstream) client() *weather.Client {
	return weather.New(
		weather.WithForecastURL(u.srv.URL+"/forecast"),
		weather.WithArchiveURL(u.srv.URL+"/archive"),
		weather.WithHTTPClient(u.srv.Client()),
		weather.WithRateLimit(0, 0),
		weather.WithClock(func() time.Time { return today }),
	)
}

func TestForecast(t *testing.T) {
	Convey("Given an Open-Meteo upstream", t, func() {
		u := newUpstream(http.StatusOK)
		defer u.srv.Close()
		c := u.client()
		ctx := context.Background()

		Convey("When the race is inside the forecast window", func() {
			w, err := c.Forecast(ctx, 47.5, 8.7, today.AddDate(0, 0, 10))

			Convey("Then the forecast endpoint answers", func() {
				So(err, ShouldBeNil)
				So(w.TemperatureC, ShouldEqual, 24.5)
				So(w.HumidityPct, ShouldEqual, 63)
				So(w.WindSpeedKph, ShouldEqual, 14.2)
				So(w.Climatology, ShouldBeFalse)
				So(w.Source, ShouldEqual, "open-meteo")
				So(u.forecast.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the race is months away", func() {
			race := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
			w, err := c.Forecast(ctx, 47.5, 8.7, race)

			Convey("Then the same day of the previous year is used", func() {
				So(err, ShouldBeNil)
				So(w.Climatology, ShouldBeTrue)
				So(w.Date, ShouldEqual, race)
				So(u.lastDay.Load(), ShouldEqual, "2025-09-12")
				So(u.archive.Load(), ShouldEqual, 1)
			})
		})

		Convey("When the race is more than a year away", func() {
			_, err := c.Forecast(ctx, 47.5, 8.7, time.Date(2027, 8, 1, 0, 0, 0, 0, time.UTC))

			Convey("Then the latest archived year is used", func() {
				So(err, ShouldBeNil)
				So(u.lastDay.Load(), ShouldEqual, "2025-08-01")
			})
		})

		Convey("When the upstream has no value for the day", func() {
			_, err := c.Forecast(ctx, 47.5, 8.7, time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC))
			So(errors.Is(err, weather.ErrNoData), ShouldBeTrue)
		})

		Convey("When the location is out of range", func() {
			_, err := c.Forecast(ctx, 91, 8.7, today)
			So(errors.Is(err, weather.ErrInvalidLocation), ShouldBeTrue)
			So(u.forecast.Load(), ShouldEqual, 0)
		})
	})

	Convey("Given a failing upstream", t, func() {
		Convey("When it answers 503", func() {
			u := newUpstream(http.StatusServiceUnavailable)
			defer u.srv.Close()
			_, err := u.client().Forecast(context.Background(), 47.5, 8.7, today)
			So(errors.Is(err, weather.ErrTransient), ShouldBeTrue)
		})

		Convey("When it answers 400", func() {
			u := newUpstream(http.StatusBadRequest)
			defer u.srv.Close()
			_, err := u.client().Forecast(context.Background(), 47.5, 8.7, today)
			So(errors.Is(err, weather.ErrUpstream), ShouldBeTrue)
			So(errors.Is(err, weather.ErrTransient), ShouldBeFalse)
		})

		Convey("When it cannot be reached", func() {
			u := newUpstream(http.StatusOK)
			c := u.client()
			u.srv.Close()
			_, err := c.Forecast(context.Background(), 47.5, 8.7, today)
			So(errors.Is(err, weather.ErrTransient), ShouldBeTrue)
		})
	})
}

func TestStatic(t *testing.T) {
	Convey("Given a static source", t, func() {
		s := weather.Static{}
		w, err := s.Forecast(context.Background(), 0, 0, today)
		So(err, ShouldBeNil)
		So(w.Source, ShouldEqual, "static")
		So(w.Date, ShouldEqual, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	})
}
