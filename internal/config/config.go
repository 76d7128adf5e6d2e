// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Plan store drivers.
const (
	StoreSQLite = "sqlite"
	StoreBadger = "badger"
)

// Weather sources.
const (
	WeatherOpenMeteo = "open-meteo"
	WeatherStatic    = "static"
	WeatherOff       = "off"
)

// Narrative providers.
const (
	NarrativeOff      = "off"
	NarrativeOpenAI   = "openai"
	NarrativeTemplate = "template"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the plan store: sqlite or badger.
	StoreDriver string `koanf:"store_driver"`
	// StorePath is the SQLite file or the Badger directory. An empty Badger
	// path keeps plans in memory.
	StorePath string `koanf:"store_path"`

	// QueueSize bounds the in-memory generation queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of generation workers.
	WorkerCount int `koanf:"worker_count"`

	// StaleAfter is how long a plan may stay generating before a read fails
	// it with the timeout message.
	StaleAfter time.Duration `koanf:"stale_after"`
	// SweepInterval enables the background reaper. Zero disables it.
	SweepInterval time.Duration `koanf:"sweep_interval"`
	// WeatherRetries is the number of automatic retries after a transient
	// weather failure.
	WeatherRetries int           `koanf:"weather_retries"`
	RetryBackoff   time.Duration `koanf:"retry_backoff"`
	// QuotaLimit caps plans per user and season. Zero means unlimited.
	QuotaLimit int `koanf:"quota_limit"`

	WeatherSource      string  `koanf:"weather_source"`
	WeatherForecastURL string  `koanf:"weather_forecast_url"`
	WeatherArchiveURL  string  `koanf:"weather_archive_url"`
	WeatherRatePerSec  float64 `koanf:"weather_rate_per_sec"`
	// StaticTemperatureC and StaticHumidityPct feed the static source.
	StaticTemperatureC float64 `koanf:"static_temperature_c"`
	StaticHumidityPct  float64 `koanf:"static_humidity_pct"`
	// PredictorWeather lets the predictor see race-day weather as well as
	// the composer.
	PredictorWeather bool `koanf:"predictor_weather"`

	NarrativeProvider string        `koanf:"narrative_provider"`
	OpenAIAPIKey      string        `koanf:"openai_api_key"`
	OpenAIModel       string        `koanf:"openai_model"`
	OpenAIBaseURL     string        `koanf:"openai_base_url"`
	NarrativeTimeout  time.Duration `koanf:"narrative_timeout"`

	// CourseDir holds course files addressed by key.
	CourseDir string `koanf:"course_dir"`
	// CourseBucket reads keys from a GCS bucket instead of CourseDir.
	CourseBucket       string `koanf:"course_bucket"`
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`
	CourseMaxBytes     int64  `koanf:"course_max_bytes"`
	// CourseAllowPrivateHosts lets course URLs reach loopback, private and
	// link-local addresses.
	CourseAllowPrivateHosts bool `koanf:"course_allow_private_hosts"`

	// ParamsPath points at a YAML predictor parameter set. Empty uses the
	// built-in set.
	ParamsPath string `koanf:"params_path"`
	// CohortPath points at a parquet cohort table. Empty uses the built-in
	// table.
	CohortPath    string `koanf:"cohort_path"`
	CohortVersion string `koanf:"cohort_version"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		StoreDriver:        StoreSQLite,
		StorePath:          "raceday.db",
		QueueSize:          1024,
		WorkerCount:        runtime.NumCPU(),
		StaleAfter:         5 * time.Minute,
		WeatherRetries:     1,
		RetryBackoff:       500 * time.Millisecond,
		WeatherSource:      WeatherOpenMeteo,
		WeatherForecastURL: "https://api.open-meteo.com/v1/forecast",
		WeatherArchiveURL:  "https://archive-api.open-meteo.com/v1/archive",
		WeatherRatePerSec:  5,
		StaticTemperatureC: 18,
		StaticHumidityPct:  55,
		NarrativeProvider:  NarrativeOff,
		OpenAIModel:        "gpt-4o-mini",
		NarrativeTimeout:   20 * time.Second,
		CourseMaxBytes:     32 << 20,
		CohortVersion:      "custom",
	}
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != StoreSQLite && c.StoreDriver != StoreBadger:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == StoreSQLite && c.StorePath == "":
		return fmt.Errorf("%w: store_path is required for sqlite", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	case c.StaleAfter <= 0:
		return fmt.Errorf("%w: stale_after must be positive", ErrInvalidConfig)
	case c.SweepInterval < 0 || c.WeatherRetries < 0 || c.RetryBackoff < 0 || c.QuotaLimit < 0:
		return fmt.Errorf("%w: sweep_interval, weather_retries, retry_backoff and quota_limit must not be negative", ErrInvalidConfig)
	}

	switch c.WeatherSource {
	case WeatherOpenMeteo, WeatherStatic, WeatherOff:
	default:
		return fmt.Errorf("%w: unknown weather_source %q", ErrInvalidConfig, c.WeatherSource)
	}

	switch c.NarrativeProvider {
	case NarrativeOff, NarrativeTemplate:
	case NarrativeOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: openai_api_key is required for the openai narrative provider", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown narrative_provider %q", ErrInvalidConfig, c.NarrativeProvider)
	}
	return nil
}
