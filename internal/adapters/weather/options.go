package weather

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithForecastURL overrides the forecast endpoint.
func WithForecastURL(url string) Option {
	return func(c *Client) {
		c.forecastURL = url
	}
}

// WithArchiveURL overrides the historical endpoint used for climatology.
func WithArchiveURL(url string) Option {
	return func(c *Client) {
		c.archiveURL = url
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithRateLimit bounds outgoing requests per second. A non-positive rate
// disables the limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(1, burst))
	}
}

// WithHorizon sets how far ahead the forecast endpoint is trusted.
func WithHorizon(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.horizon = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}
