package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/raceday/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.StaleAfter, convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.SweepInterval, convey.ShouldEqual, 0)
			convey.So(cfg.WeatherRetries, convey.ShouldEqual, 1)
			convey.So(cfg.WeatherSource, convey.ShouldEqual, config.WeatherOpenMeteo)
			convey.So(cfg.NarrativeProvider, convey.ShouldEqual, config.NarrativeOff)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldResemble, config.New())
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RACEDAY_ADDR", ":8080")
			_ = os.Setenv("RACEDAY_QUEUE_SIZE", "64")
			_ = os.Setenv("RACEDAY_WORKER_COUNT", "16")
			_ = os.Setenv("RACEDAY_STALE_AFTER", "90s")
			_ = os.Setenv("RACEDAY_SWEEP_INTERVAL", "1m")
			_ = os.Setenv("RACEDAY_PREDICTOR_WEATHER", "true")
			_ = os.Setenv("RACEDAY_STORE_DRIVER", "badger")
			_ = os.Setenv("RACEDAY_STORE_PATH", "")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.StaleAfter, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.SweepInterval, convey.ShouldEqual, time.Minute)
				convey.So(cfg.PredictorWeather, convey.ShouldBeTrue)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreBadger)
				convey.So(cfg.StorePath, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			path := createTempConfigFile(t, `
addr: ":9090"
queue_size: 300
worker_count: 24
quota_limit: 12
weather_source: static
static_temperature_c: 27.5
narrative_provider: template
course_dir: /srv/courses
`)
			_ = os.Setenv("RACEDAY_CONFIG", path)
			_ = os.Setenv("RACEDAY_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.QuotaLimit, convey.ShouldEqual, 12)
				convey.So(cfg.WeatherSource, convey.ShouldEqual, config.WeatherStatic)
				convey.So(cfg.StaticTemperatureC, convey.ShouldEqual, 27.5)
				convey.So(cfg.NarrativeProvider, convey.ShouldEqual, config.NarrativeTemplate)
				convey.So(cfg.CourseDir, convey.ShouldEqual, "/srv/courses")
			})
		})

		convey.Convey("When the config file does not exist", func() {
			_ = os.Setenv("RACEDAY_CONFIG", "/non/existent/raceday.yaml")
			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a number is malformed", func() {
			_ = os.Setenv("RACEDAY_QUEUE_SIZE", "lots")
			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When values are out of range", func() {
			cases := map[string]string{
				"RACEDAY_ADDR":               "",
				"RACEDAY_STORE_DRIVER":       "postgres",
				"RACEDAY_QUEUE_SIZE":         "0",
				"RACEDAY_WORKER_COUNT":       "-1",
				"RACEDAY_STALE_AFTER":        "0s",
				"RACEDAY_QUOTA_LIMIT":        "-3",
				"RACEDAY_WEATHER_SOURCE":     "almanac",
				"RACEDAY_NARRATIVE_PROVIDER": "openai",
			}
			for key, value := range cases {
				clearConfigEnvVars()
				_ = os.Setenv(key, value)
				_, err := config.Load(ctx)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			}
		})

		convey.Convey("When the openai provider has a key", func() {
			_ = os.Setenv("RACEDAY_NARRATIVE_PROVIDER", "openai")
			_ = os.Setenv("RACEDAY_OPENAI_API_KEY", "sk-test")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it loads", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.OpenAIAPIKey, convey.ShouldEqual, "sk-test")
			})
		})
	})
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if key, _, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(key, "RACEDAY_") {
			_ = os.Unsetenv(key)
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "raceday.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
