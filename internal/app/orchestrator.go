package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/okian/raceday/internal/adapters/narrative"
	"github.com/okian/raceday/internal/adapters/repository"
	weathersrc "github.com/okian/raceday/internal/adapters/weather"
	"github.com/okian/raceday/internal/domain/cohort"
	"github.com/okian/raceday/internal/domain/geometry"
	"github.com/okian/raceday/internal/domain/inflight"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/internal/domain/pacing"
	"github.com/okian/raceday/internal/domain/predict"
	"github.com/okian/raceday/pkg/logger"
	"github.com/okian/raceday/pkg/metrics"
)

const (
	defaultStaleAfter     = 5 * time.Minute
	defaultWeatherRetries = 1
	defaultRetryBackoff   = 500 * time.Millisecond
	defaultSweepBatch     = 100

	tracerName = "github.com/okian/raceday/internal/app"
)

// CourseSource fetches the raw points of a course.
type CourseSource interface {
	Fetch(ctx context.Context, ref model.CourseRef) ([]model.TrackPoint, error)
}

// WeatherSource returns the weather for a venue on a date.
type WeatherSource interface {
	Forecast(ctx context.Context, lat, lon float64, date time.Time) (model.Weather, error)
}

// Narrator writes a briefing for a computed plan.
type Narrator interface {
	Narrate(ctx context.Context, s narrative.Summary) (string, error)
}

// Deps are the collaborators of an Orchestrator. Store is required. A nil
// source skips that input and a nil narrator leaves plans without narrative;
// nil domain components get their defaults.
type Deps struct {
	Store     repository.Store
	Courses   CourseSource
	Weather   WeatherSource
	Narrator  Narrator
	Predictor *predict.Predictor
	Composer  *pacing.Composer
	Cohorts   *cohort.Table
	Reducer   *geometry.Reducer
	Marker    inflight.Marker
}

// Orchestrator runs the generation pipeline of a plan:
//
//	load -> prepare (course || weather) -> compute -> narrative -> finalize
//
// Every stage persists its output before the next one starts, and a resumed
// run skips stages whose output is already stored. The plan is the only
// checkpoint; no pipeline state is kept elsewhere.
type Orchestrator struct {
	store     repository.Store
	courses   CourseSource
	weather   WeatherSource
	narrator  Narrator
	predictor *predict.Predictor
	composer  *pacing.Composer
	cohorts   *cohort.Table
	reducer   *geometry.Reducer
	marker    inflight.Marker

	validate *validator.Validate
	tracer   trace.Tracer
	logger   logger.Logger
	now      func() time.Time
	newID    func() string

	staleAfter       time.Duration
	weatherRetries   int
	retryBackoff     time.Duration
	quotaLimit       int
	sweepBatch       int
	predictorWeather bool
}

// NewOrchestrator creates an Orchestrator over d.
func NewOrchestrator(d Deps, opts ...OrchestratorOption) (*Orchestrator, error) {
	if d.Store == nil {
		return nil, errors.New("orchestrator needs a plan store")
	}
	o := &Orchestrator{
		store:          d.Store,
		courses:        d.Courses,
		weather:        d.Weather,
		narrator:       d.Narrator,
		predictor:      d.Predictor,
		composer:       d.Composer,
		cohorts:        d.Cohorts,
		reducer:        d.Reducer,
		marker:         d.Marker,
		validate:       validator.New(),
		tracer:         otel.Tracer(tracerName),
		logger:         logger.Get().Named("orchestrator"),
		now:            time.Now,
		newID:          uuid.NewString,
		staleAfter:     defaultStaleAfter,
		weatherRetries: defaultWeatherRetries,
		retryBackoff:   defaultRetryBackoff,
		sweepBatch:     defaultSweepBatch,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.predictor == nil {
		p, err := predict.New(nil)
		if err != nil {
			return nil, err
		}
		o.predictor = p
	}
	if o.composer == nil {
		o.composer = pacing.New()
	}
	if o.cohorts == nil {
		o.cohorts = cohort.DefaultTable()
	}
	if o.reducer == nil {
		o.reducer = geometry.New()
	}
	if o.marker == nil {
		o.marker = inflight.NewInMemoryMarker(inflight.WithTTL(2 * o.staleAfter))
	}
	return o, nil
}

// Create validates in, stores a new plan in status generating and charges
// the user's seasonal quota. Charging is best effort.
func (o *Orchestrator) Create(ctx context.Context, userID string, in model.GenerationInput) (*model.RacePlan, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInputInvalid)
	}
	if err := o.validate.StructCtx(ctx, in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}

	now := o.now().UTC()
	season := repository.Season(now)
	if o.quotaLimit > 0 {
		n, err := o.store.Count(ctx, userID, season)
		switch {
		case err != nil:
			o.logger.Warn(ctx, "quota count failed, admitting plan",
				logger.String("user_id", userID), logger.Error(err))
		case n >= o.quotaLimit:
			return nil, fmt.Errorf("%w: %d of %d plans used in %s", ErrQuotaExceeded, n, o.quotaLimit, season)
		}
	}

	snapshot := in
	snapshot.PriorRaces = slices.Clone(in.PriorRaces)
	plan := &model.RacePlan{
		ID:        o.newID(),
		UserID:    userID,
		Status:    model.StatusGenerating,
		Input:     &snapshot,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}
	if _, err := o.store.Increment(ctx, userID, season, plan.ID); err != nil {
		o.logger.Warn(ctx, "quota increment failed",
			logger.String("plan_id", plan.ID), logger.String("user_id", userID), logger.Error(err))
	}

	metrics.RecordPlanCreated()
	o.logger.Info(ctx, "plan created",
		logger.String("plan_id", plan.ID),
		logger.String("distance", string(in.Distance)),
	)
	return plan, nil
}

// Generate runs or resumes the pipeline of planID. Only one generation per
// plan runs at a time; a concurrent call gets ErrGenerationInProgress. A plan
// that is already terminal is returned unchanged.
//
// A failed stage compensates the quota charge and marks the plan failed; the
// failed plan is returned together with an error wrapping
// ErrGenerationFailed. Storage errors leave the plan generating so a later
// run can resume it.
func (o *Orchestrator) Generate(ctx context.Context, planID string) (*model.RacePlan, error) {
	tok, ok := o.marker.Acquire(ctx, planID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrGenerationInProgress, planID)
	}
	metrics.UpdateInflightPlans(int(o.marker.Size()))
	defer func() {
		o.marker.Release(ctx, planID, tok)
		metrics.UpdateInflightPlans(int(o.marker.Size()))
	}()

	ctx = logger.With(ctx, logger.String("plan_id", planID))
	ctx, span := o.tracer.Start(ctx, "plan.generate", trace.WithAttributes(attribute.String("plan.id", planID)))
	defer span.End()

	plan, err := o.generate(ctx, planID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return plan, err
}

func (o *Orchestrator) generate(ctx context.Context, planID string) (*model.RacePlan, error) {
	plan, err := o.store.GetPlan(ctx, planID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	case errors.Is(err, repository.ErrCorruptRecord):
		return nil, o.failUnreadable(ctx, planID, err)
	case err != nil:
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if plan.Status.Terminal() {
		return plan, nil
	}

	err = o.runStages(ctx, plan)
	var se *stageError
	switch {
	case err == nil:
		metrics.RecordGenerationOutcome(string(model.StatusCompleted))
		o.logger.Info(ctx, "plan completed", logger.Int("tier", int(plan.Prediction.Tier)))
		return o.reload(ctx, plan), nil
	case errors.Is(err, repository.ErrPlanTerminal):
		o.logger.Warn(ctx, "plan became terminal during generation", logger.Error(err))
		return o.reload(ctx, plan), nil
	case errors.As(err, &se):
		return o.fail(ctx, plan, se.class, se.err)
	}
	o.logger.Error(ctx, "generation interrupted, plan left generating", logger.Error(err))
	return plan, err
}

type stage struct {
	name string
	run  func(context.Context, *model.RacePlan) error
}

func (o *Orchestrator) runStages(ctx context.Context, plan *model.RacePlan) error {
	stages := []stage{
		{"load", o.checkInput},
		{"prepare", o.prepare},
		{"compute", o.compute},
		{"narrative", o.narrate},
		{"finalize", o.finalize},
	}
	for _, s := range stages {
		if err := o.runStage(ctx, s, plan); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) runStage(ctx context.Context, s stage, plan *model.RacePlan) error {
	ctx = logger.With(ctx, logger.String("stage", s.name))
	ctx, span := o.tracer.Start(ctx, "plan."+s.name)
	defer span.End()

	start := time.Now()
	err := s.run(ctx, plan)
	metrics.RecordStageDuration(s.name, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, s.name+" failed")
		return err
	}
	o.logger.Debug(ctx, "stage done", logger.Duration("elapsed", time.Since(start)))
	return nil
}

func (o *Orchestrator) checkInput(ctx context.Context, plan *model.RacePlan) error {
	if plan.Input == nil {
		return &stageError{class: classInput, err: ErrInputMissing}
	}
	if err := o.validate.StructCtx(ctx, plan.Input); err != nil {
		return &stageError{class: classInput, err: fmt.Errorf("%w: %v", ErrInputInvalid, err)}
	}
	return nil
}

// prepare resolves course geometry and weather concurrently. Only missing
// outputs are fetched. An unavailable course falls back to the distance's
// typical elevation; weather that cannot exist for the request leaves the
// plan with neutral conditions; transient weather errors are retried and
// fail the stage once the budget is spent.
func (o *Orchestrator) prepare(ctx context.Context, plan *model.RacePlan) error {
	if plan.Computed() {
		return nil
	}
	in := plan.Input
	needCourse := o.courses != nil && in.Course != nil && plan.Course == nil
	needWeather := o.weather != nil && in.Location != nil && plan.Weather == nil
	if !needCourse && !needWeather {
		return nil
	}

	var (
		course  *model.CourseGeometry
		weather *model.Weather
	)
	g, gctx := errgroup.WithContext(ctx)
	if needCourse {
		g.Go(func() error {
			course = o.fetchCourse(gctx, *in.Course)
			return nil
		})
	}
	if needWeather {
		g.Go(func() error {
			var err error
			weather, err = o.fetchWeather(gctx, *in.Location, in.RaceDate)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if course == nil && weather == nil {
		return nil
	}

	if err := o.store.SavePrepared(ctx, plan.ID, course, weather); err != nil {
		return fmt.Errorf("save prepared: %w", err)
	}
	if course != nil {
		plan.Course = course
	}
	if weather != nil {
		plan.Weather = weather
	}
	return nil
}

func (o *Orchestrator) fetchCourse(ctx context.Context, ref model.CourseRef) *model.CourseGeometry {
	points, err := o.courses.Fetch(ctx, ref)
	if err != nil {
		o.logger.Warn(ctx, "course unavailable, using typical elevation", logger.Error(err))
		return nil
	}
	g := o.reducer.Reduce(points)
	o.logger.Debug(ctx, "course reduced",
		logger.Int("points", g.PointCount),
		logger.Float64("distance_m", g.TotalDistanceMeters),
		logger.Float64("gain_m", g.ElevationGainMeters),
	)
	return &g
}

func (o *Orchestrator) fetchWeather(ctx context.Context, loc model.Location, date time.Time) (*model.Weather, error) {
	for attempt := 0; ; attempt++ {
		w, err := o.weather.Forecast(ctx, loc.Lat, loc.Lon, date)
		if err == nil {
			return &w, nil
		}
		if !transient(err) {
			o.logger.Warn(ctx, "weather unavailable, composing for neutral conditions", logger.Error(err))
			return nil, nil
		}
		if attempt >= o.weatherRetries {
			return nil, &stageError{class: classTransient, err: fmt.Errorf("weather after %d attempts: %w", attempt+1, err)}
		}

		metrics.RecordGenerationRetry()
		o.logger.Warn(ctx, "weather fetch failed, retrying",
			logger.Int("attempt", attempt+1), logger.Error(err))
		select {
		case <-ctx.Done():
			return nil, &stageError{class: classTransient, err: ctx.Err()}
		case <-time.After(o.retryBackoff):
		}
	}
}

func (o *Orchestrator) compute(ctx context.Context, plan *model.RacePlan) error {
	if plan.Computed() {
		return nil
	}
	in := plan.Input

	pin := predict.Input{
		Distance:   in.Distance,
		Athlete:    in.Athlete,
		PriorRaces: in.PriorRaces,
		Course:     plan.Course,
	}
	if o.predictorWeather {
		pin.Weather = plan.Weather
	}
	pred, err := o.predictor.Predict(pin)
	if err != nil {
		return &stageError{class: classComputation, err: fmt.Errorf("predict: %w", err)}
	}
	metrics.RecordPredictionTier(pred.Tier.String())

	dp, err := o.predictor.Params().Distance(in.Distance)
	if err != nil {
		return &stageError{class: classComputation, err: err}
	}
	segments, nutrition, err := o.composer.Compose(pacing.Input{
		Prediction:         pred,
		Course:             plan.Course,
		FallbackGainMeters: dp.FallbackElevationGainMeters,
		Weather:            plan.Weather,
	})
	if err != nil {
		return &stageError{class: classComputation, err: fmt.Errorf("compose: %w", err)}
	}
	stats, err := o.cohorts.Context(in.Distance, in.Athlete.GenderOrUnknown(), pred.TotalSeconds)
	if err != nil {
		return &stageError{class: classComputation, err: fmt.Errorf("cohort: %w", err)}
	}

	computed := repository.Computed{
		Prediction: pred,
		Segments:   segments,
		Nutrition:  nutrition,
		Statistics: &stats,
	}
	if err := o.store.SaveComputed(ctx, plan.ID, computed); err != nil {
		return fmt.Errorf("save computed: %w", err)
	}
	plan.Prediction, plan.Segments, plan.Nutrition, plan.Statistics = pred, segments, nutrition, &stats

	o.logger.Info(ctx, "plan computed",
		logger.String("tier", pred.Tier.String()),
		logger.Int("total_seconds", pred.TotalSeconds),
		logger.Float64("percentile", stats.Percentile),
	)
	return nil
}

// narrate never fails the plan; only a terminal plan stops the pipeline.
func (o *Orchestrator) narrate(ctx context.Context, plan *model.RacePlan) error {
	if o.narrator == nil || plan.Narrative != nil {
		return nil
	}
	summary, err := narrative.FromPlan(plan)
	var text string
	if err == nil {
		text, err = o.narrator.Narrate(ctx, summary)
	}
	if err != nil {
		if !errors.Is(err, narrative.ErrDisabled) {
			metrics.RecordNarrativeFailure()
			o.logger.Warn(ctx, "narrative unavailable", logger.String("error_class", "best_effort"), logger.Error(err))
		}
		return nil
	}

	if err := o.store.SaveNarrative(ctx, plan.ID, text); err != nil {
		if errors.Is(err, repository.ErrPlanTerminal) {
			return err
		}
		metrics.RecordNarrativeFailure()
		o.logger.Warn(ctx, "narrative not saved", logger.Error(err))
		return nil
	}
	plan.Narrative = &text
	return nil
}

func (o *Orchestrator) finalize(ctx context.Context, plan *model.RacePlan) error {
	if err := o.store.MarkCompleted(ctx, plan.ID); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	plan.Status = model.StatusCompleted
	return nil
}

// fail runs the compensating refund, then marks the plan failed. Neither
// write is allowed to mask the original cause.
func (o *Orchestrator) fail(ctx context.Context, plan *model.RacePlan, class string, cause error) (*model.RacePlan, error) {
	o.logger.Error(ctx, "plan generation failed", logger.String("error_class", class), logger.Error(cause))
	metrics.RecordGenerationFailure(class)

	o.compensate(ctx, plan)
	if err := o.store.MarkFailed(ctx, plan.ID, model.MessageGenerationFailed); err != nil &&
		!errors.Is(err, repository.ErrPlanTerminal) {
		o.logger.Error(ctx, "failed status not written", logger.Error(err))
	}
	metrics.RecordGenerationOutcome(string(model.StatusFailed))
	return o.reload(ctx, plan), fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
}

// failUnreadable fails a plan whose stored record cannot be decoded. The
// owner is unknown, so no refund is attempted.
func (o *Orchestrator) failUnreadable(ctx context.Context, planID string, cause error) error {
	o.logger.Error(ctx, "plan generation failed", logger.String("error_class", classInput), logger.Error(cause))
	metrics.RecordGenerationFailure(classInput)
	metrics.RecordCompensation("skipped")
	if err := o.store.MarkFailed(ctx, planID, model.MessageGenerationFailed); err != nil &&
		!errors.Is(err, repository.ErrPlanTerminal) {
		o.logger.Error(ctx, "failed status not written", logger.Error(err))
	}
	metrics.RecordGenerationOutcome(string(model.StatusFailed))
	return fmt.Errorf("%w: %w: %w", ErrGenerationFailed, ErrInputInvalid, cause)
}

func (o *Orchestrator) compensate(ctx context.Context, plan *model.RacePlan) {
	refunded, err := o.store.Refund(ctx, plan.UserID, plan.ID)
	switch {
	case err != nil:
		metrics.RecordCompensation("error")
		o.logger.Error(ctx, "quota refund failed",
			logger.String("user_id", plan.UserID), logger.Error(err))
	case refunded:
		metrics.RecordCompensation("refunded")
	default:
		metrics.RecordCompensation("noop")
	}
}

// Plan returns a plan, expiring it first when it has been generating for
// longer than the stale threshold.
func (o *Orchestrator) Plan(ctx context.Context, planID string) (*model.RacePlan, error) {
	plan, err := o.store.GetPlan(ctx, planID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	if err != nil {
		return nil, err
	}
	if plan.Status == model.StatusGenerating && o.stale(plan) {
		return o.expire(ctx, plan)
	}
	return plan, nil
}

// Status reports status and progress of a plan. Reading a stale plan
// persists its timeout before the report is returned.
func (o *Orchestrator) Status(ctx context.Context, planID string) (model.StatusReport, error) {
	plan, err := o.Plan(ctx, planID)
	if err != nil {
		return model.StatusReport{}, err
	}
	return model.StatusReport{
		PlanID:       plan.ID,
		UserID:       plan.UserID,
		Status:       plan.Status,
		ErrorMessage: plan.ErrorMessage,
		Progress:     plan.Progress(),
	}, nil
}

// SweepStale expires every stale plan the store lists, up to one batch.
// It returns the number of plans expired.
func (o *Orchestrator) SweepStale(ctx context.Context) (int, error) {
	ids, err := o.store.ListStale(ctx, o.now().Add(-o.staleAfter), o.sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale plans: %w", err)
	}
	n := 0
	for _, id := range ids {
		plan, err := o.store.GetPlan(ctx, id)
		if err != nil {
			o.logger.Warn(ctx, "stale plan not readable", logger.String("plan_id", id), logger.Error(err))
			continue
		}
		if plan.Status != model.StatusGenerating {
			continue
		}
		expired, err := o.expire(ctx, plan)
		if err != nil {
			o.logger.Warn(ctx, "stale plan not expired", logger.String("plan_id", id), logger.Error(err))
			continue
		}
		if expired.Status == model.StatusFailed {
			n++
		}
	}
	return n, nil
}

func (o *Orchestrator) stale(p *model.RacePlan) bool {
	return o.now().Sub(p.CreatedAt) > o.staleAfter
}

// expire marks a stale plan failed with the timeout message. When another
// writer made the plan terminal first, the stored plan is returned as is.
func (o *Orchestrator) expire(ctx context.Context, plan *model.RacePlan) (*model.RacePlan, error) {
	err := o.store.MarkFailed(ctx, plan.ID, model.MessageGenerationTimeout)
	if errors.Is(err, repository.ErrPlanTerminal) {
		return o.store.GetPlan(ctx, plan.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("expire plan %s: %w", plan.ID, err)
	}

	metrics.RecordStaleTransition()
	metrics.RecordGenerationOutcome(string(model.StatusFailed))
	o.logger.Warn(ctx, "plan generation timed out",
		logger.String("plan_id", plan.ID),
		logger.Duration("age", o.now().Sub(plan.CreatedAt)),
	)
	o.compensate(ctx, plan)
	return o.reload(ctx, plan), nil
}

// reload returns the stored plan, or plan when the read fails.
func (o *Orchestrator) reload(ctx context.Context, plan *model.RacePlan) *model.RacePlan {
	stored, err := o.store.GetPlan(ctx, plan.ID)
	if err != nil {
		o.logger.Warn(ctx, "plan reload failed", logger.Error(err))
		return plan
	}
	return stored
}

// stageError carries the failure class of a stage error that must fail the
// plan.
type stageError struct {
	class string
	err   error
}

func (e *stageError) Error() string { return e.class + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func transient(err error) bool {
	if errors.Is(err, weathersrc.ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
