package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/okian/raceday/internal/adapters/course"
	"github.com/okian/raceday/internal/adapters/narrative"
	"github.com/okian/raceday/internal/adapters/repository"
	weathersrc "github.com/okian/raceday/internal/adapters/weather"
	"github.com/okian/raceday/internal/config"
	"github.com/okian/raceday/internal/domain/cohort"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/internal/domain/predict"
	"github.com/okian/raceday/pkg/logger"
)

// Runtime is an orchestrator together with the resources it owns.
type Runtime struct {
	Orchestrator *Orchestrator
	Store        repository.Store

	closers []io.Closer
}

// Build opens the plan store and constructs every collaborator cfg selects.
// Extra options are applied after the ones derived from cfg.
func Build(ctx context.Context, cfg *config.Config, extra ...OrchestratorOption) (*Runtime, error) {
	rt := &Runtime{}
	ok := false
	defer func() {
		if !ok {
			_ = rt.Close()
		}
	}()

	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	rt.Store = store
	rt.closers = append(rt.closers, store)

	params := predict.DefaultParams()
	if cfg.ParamsPath != "" {
		if params, err = predict.LoadParams(cfg.ParamsPath); err != nil {
			return nil, fmt.Errorf("load model parameters: %w", err)
		}
	}
	predictor, err := predict.New(params)
	if err != nil {
		return nil, err
	}

	cohorts := cohort.DefaultTable()
	if cfg.CohortPath != "" {
		if cohorts, err = cohort.LoadParquetFile(cfg.CohortPath, cfg.CohortVersion); err != nil {
			return nil, fmt.Errorf("load cohort table: %w", err)
		}
	}

	courses, err := rt.courseSource(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []OrchestratorOption{
		WithStaleAfter(cfg.StaleAfter),
		WithWeatherRetries(cfg.WeatherRetries),
		WithRetryBackoff(cfg.RetryBackoff),
		WithQuotaLimit(cfg.QuotaLimit),
		WithPredictorWeather(cfg.PredictorWeather),
	}
	d := Deps{
		Store:     store,
		Courses:   courses,
		Weather:   weatherSource(cfg),
		Narrator:  narrator(cfg),
		Predictor: predictor,
		Cohorts:   cohorts,
	}
	rt.Orchestrator, err = NewOrchestrator(d, append(opts, extra...)...)
	if err != nil {
		return nil, err
	}

	logger.Get().Info(ctx, "runtime built",
		logger.String("store", cfg.StoreDriver),
		logger.String("weather", cfg.WeatherSource),
		logger.String("narrative", cfg.NarrativeProvider),
		logger.Bool("predictor_weather", cfg.PredictorWeather),
		logger.String("model_version", predictor.Version()),
		logger.String("cohort_version", cohorts.Version()),
	)
	ok = true
	return rt, nil
}

// Close releases the store and any client the runtime opened.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i].Close())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

func openStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreBadger:
		return repository.OpenBadger(cfg.StorePath, repository.WithBadgerLogger(logger.Named("badger")))
	case config.StoreSQLite:
		return repository.OpenSQLite(cfg.StorePath)
	}
	return nil, fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.StoreDriver)
}

func (rt *Runtime) courseSource(ctx context.Context, cfg *config.Config) (CourseSource, error) {
	opts := []course.Option{
		course.WithDir(cfg.CourseDir),
		course.WithMaxBytes(cfg.CourseMaxBytes),
		course.WithPrivateHosts(cfg.CourseAllowPrivateHosts),
	}
	if cfg.CourseBucket != "" || cfg.GCSCredentialsFile != "" {
		client, err := course.NewGCSClient(ctx, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client)
		opts = append(opts, course.WithGCS(client, cfg.CourseBucket))
	}
	return course.New(opts...), nil
}

func weatherSource(cfg *config.Config) WeatherSource {
	switch cfg.WeatherSource {
	case config.WeatherStatic:
		return weathersrc.Static{Weather: model.Weather{
			TemperatureC: cfg.StaticTemperatureC,
			HumidityPct:  cfg.StaticHumidityPct,
		}}
	case config.WeatherOff:
		return nil
	}
	return weathersrc.New(
		weathersrc.WithForecastURL(cfg.WeatherForecastURL),
		weathersrc.WithArchiveURL(cfg.WeatherArchiveURL),
		weathersrc.WithRateLimit(cfg.WeatherRatePerSec, max(1, int(cfg.WeatherRatePerSec))),
	)
}

func narrator(cfg *config.Config) Narrator {
	switch cfg.NarrativeProvider {
	case config.NarrativeOpenAI:
		opts := []narrative.Option{
			narrative.WithModel(cfg.OpenAIModel),
			narrative.WithTimeout(cfg.NarrativeTimeout),
		}
		if cfg.OpenAIBaseURL != "" {
			opts = append(opts, narrative.WithBaseURL(cfg.OpenAIBaseURL))
		}
		return narrative.NewOpenAI(cfg.OpenAIAPIKey, opts...)
	case config.NarrativeTemplate:
		return narrative.Template{}
	}
	return narrative.Disabled{}
}
