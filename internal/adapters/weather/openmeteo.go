// Package weather provides race-day weather snapshots from Open-Meteo.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/metrics"
)

const (
	DefaultForecastURL = "https://api.open-meteo.com/v1/forecast"
	DefaultArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	// Open-Meteo serves daily forecasts 16 days ahead.
	defaultHorizon = 16 * 24 * time.Hour
	// The archive lags real time by a few days.
	archiveLag = 7 * 24 * time.Hour

	defaultTimeout = 10 * time.Second
	dailyFields    = "temperature_2m_mean,relative_humidity_2m_mean,wind_speed_10m_max"
	dateLayout     = "2006-01-02"

	sourceForecast    = "open-meteo"
	sourceClimatology = "open-meteo-archive"
)

// Client fetches daily means for a venue and date. Dates beyond the forecast
// horizon use the same day of the most recent archived year.
type Client struct {
	forecastURL string
	archiveURL  string
	http        *http.Client
	limiter     *rate.Limiter
	horizon     time.Duration
	now         func() time.Time
	group       singleflight.Group
}

// New creates a Client with configuration options.
func New(opts ...Option) *Client {
	c := &Client{
		forecastURL: DefaultForecastURL,
		archiveURL:  DefaultArchiveURL,
		http:        &http.Client{Timeout: defaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(5), 5),
		horizon:     defaultHorizon,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type dailyResponse struct {
	Daily struct {
		Time        []string   `json:"time"`
		Temperature []*float64 `json:"temperature_2m_mean"`
		Humidity    []*float64 `json:"relative_humidity_2m_mean"`
		Wind        []*float64 `json:"wind_speed_10m_max"`
	} `json:"daily"`
}

// Forecast returns the weather snapshot for (lat, lon) on date. Concurrent
// identical requests share one upstream call.
func (c *Client) Forecast(ctx context.Context, lat, lon float64, date time.Time) (model.Weather, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return model.Weather{}, fmt.Errorf("%w: %.4f,%.4f", ErrInvalidLocation, lat, lon)
	}
	day := date.UTC().Truncate(24 * time.Hour)
	endpoint, queryDay, climatology := c.plan(day)

	key := fmt.Sprintf("%s|%.3f|%.3f|%s", endpoint, lat, lon, queryDay.Format(dateLayout))
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.fetch(ctx, endpoint, lat, lon, queryDay)
	})
	if err != nil {
		metrics.RecordWeatherRequest(resultLabel(err))
		return model.Weather{}, err
	}
	metrics.RecordWeatherRequest("ok")

	w := v.(model.Weather)
	w.Date = day
	w.Climatology = climatology
	if climatology {
		w.Source = sourceClimatology
	}
	return w, nil
}

// plan picks the endpoint and the day to query. Days inside the forecast
// window go to the forecast endpoint; later days are shifted back a year at a
// time until the archive has them.
func (c *Client) plan(day time.Time) (endpoint string, query time.Time, climatology bool) {
	now := c.now().UTC()
	if !day.After(now.Add(c.horizon)) && day.After(now.Add(-archiveLag)) {
		return c.forecastURL, day, false
	}
	query = day
	for !query.Before(now.Add(-archiveLag)) {
		query = query.AddDate(-1, 0, 0)
	}
	return c.archiveURL, query, !query.Equal(day)
}

func (c *Client) fetch(ctx context.Context, endpoint string, lat, lon float64, day time.Time) (model.Weather, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return model.Weather{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("daily", dailyFields)
	q.Set("start_date", day.Format(dateLayout))
	q.Set("end_date", day.Format(dateLayout))
	q.Set("timezone", "UTC")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return model.Weather{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return model.Weather{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return model.Weather{}, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return model.Weather{}, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var body dailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		var ne net.Error
		if errors.As(err, &ne) {
			return model.Weather{}, fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return model.Weather{}, fmt.Errorf("%w: decode: %v", ErrUpstream, err)
	}
	return snapshot(body, day)
}

func snapshot(body dailyResponse, day time.Time) (model.Weather, error) {
	d := body.Daily
	want := day.Format(dateLayout)
	for i, t := range d.Time {
		if t != want {
			continue
		}
		temp, hum := at(d.Temperature, i), at(d.Humidity, i)
		if temp == nil || hum == nil {
			break
		}
		w := model.Weather{TemperatureC: *temp, HumidityPct: *hum, Source: sourceForecast}
		if wind := at(d.Wind, i); wind != nil {
			w.WindSpeedKph = *wind
		}
		return w, nil
	}
	return model.Weather{}, fmt.Errorf("%w: %s", ErrNoData, want)
}

func at(v []*float64, i int) *float64 {
	if i < len(v) {
		return v[i]
	}
	return nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrTransient):
		return "transient"
	case errors.Is(err, ErrNoData):
		return "no_data"
	}
	return "error"
}

// Static always returns the same conditions. It serves offline runs and
// tests.
type Static struct {
	Weather model.Weather
}

// Forecast returns the configured weather stamped with date.
func (s Static) Forecast(_ context.Context, _, _ float64, date time.Time) (model.Weather, error) {
	w := s.Weather
	w.Date = date.UTC().Truncate(24 * time.Hour)
	if w.Source == "" {
		w.Source = "static"
	}
	return w, nil
}
