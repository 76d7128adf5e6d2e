// Package service wires the generation orchestrator to a job queue and a
// worker pool and exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/okian/raceday/internal/adapters/mq/queue"
	"github.com/okian/raceday/internal/adapters/mq/worker"
	"github.com/okian/raceday/internal/domain/model"
	"github.com/okian/raceday/pkg/logger"
	"github.com/okian/raceday/pkg/metrics"
)

// Service runs plan generation asynchronously.
type Service struct {
	mu sync.RWMutex

	orch  *Orchestrator
	queue *queue.InMemoryQueue
	pool  *worker.Pool

	workerCount   int
	queueSize     int
	sweepInterval time.Duration

	started bool
	cancel  context.CancelFunc
	sweeps  sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum number of queued generation jobs.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithSweepInterval enables the background reaper of stale plans. Zero
// keeps the lazy check on status reads as the only timeout path.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.sweepInterval = d
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service around orch.
func New(orch *Orchestrator, opts ...Option) *Service {
	s := &Service{
		orch:        orch,
		workerCount: runtime.NumCPU(),
		queueSize:   1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates the queue and starts the worker pool. Workers run on a
// context detached from ctx; only Stop ends them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.orch == nil {
		return errors.New("service needs an orchestrator")
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, worker.HandlerFunc(s.handle))
	s.pool.Start(runCtx)

	if s.sweepInterval > 0 {
		s.sweeps.Add(1)
		go s.sweep(runCtx)
	}

	s.started = true
	s.logger.Info(ctx, "plan service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("sweepInterval", s.sweepInterval),
	)
	return nil
}

// Stop closes the queue, waits for the workers to generate every job still
// queued, then stops the reaper. Jobs left when the drain times out stay
// generating and are resumed with Resume or expired by the stale check.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping plan service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.cancel()
	s.sweeps.Wait()

	s.started = false
	s.logger.Info(ctx, "plan service stopped")
}

// CreatePlan stores a new plan and queues its generation. When the queue is
// full the plan is failed right away and ErrBusy is returned.
func (s *Service) CreatePlan(ctx context.Context, userID string, in model.GenerationInput) (*model.RacePlan, error) {
	q, err := s.jobs()
	if err != nil {
		return nil, err
	}
	plan, err := s.orch.Create(ctx, userID, in)
	if err != nil {
		return nil, err
	}

	job := queue.Job{PlanID: plan.ID, Attempt: 1, EnqueuedAt: time.Now()}
	if err := q.Enqueue(ctx, job); err != nil {
		failed, _ := s.orch.fail(context.WithoutCancel(ctx), plan, classCapacity, err)
		if failed != nil {
			plan = failed
		}
		return plan, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return plan, nil
}

// Resume queues another run of a plan that is still generating, for
// example after a restart interrupted it. Stages already stored are not
// repeated.
func (s *Service) Resume(ctx context.Context, planID string) (*model.RacePlan, error) {
	q, err := s.jobs()
	if err != nil {
		return nil, err
	}
	plan, err := s.orch.Plan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status != model.StatusGenerating {
		return plan, fmt.Errorf("%w: %s is %s", ErrNotGenerating, planID, plan.Status)
	}

	err = q.Enqueue(ctx, queue.Job{PlanID: planID, Attempt: 2, EnqueuedAt: time.Now()})
	switch {
	case errors.Is(err, queue.ErrQueued):
		return plan, nil
	case err != nil:
		return plan, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	return plan, nil
}

// Plan returns a plan, applying the staleness timeout.
func (s *Service) Plan(ctx context.Context, planID string) (*model.RacePlan, error) {
	return s.orch.Plan(ctx, planID)
}

// Status returns status and progress of a plan, applying the staleness
// timeout.
func (s *Service) Status(ctx context.Context, planID string) (model.StatusReport, error) {
	return s.orch.Status(ctx, planID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":       s.started,
		"workerCount":   s.workerCount,
		"queueSize":     s.queueSize,
		"sweepInterval": s.sweepInterval.String(),
		"modelVersion":  s.orch.predictor.Version(),
		"cohortVersion": s.orch.cohorts.Version(),
		"inflightPlans": s.orch.marker.Size(),
	}
	if s.started {
		queueLen := s.queue.Len(context.Background())
		stats["queueLength"] = queueLen
		stats["jobsProcessed"] = s.pool.Stats().Processed()
		stats["jobsFailed"] = s.pool.Stats().Failed()
		metrics.UpdateQueueSize(queueLen)
	}
	return stats
}

func (s *Service) jobs() (*queue.InMemoryQueue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.queue, nil
}

func (s *Service) handle(ctx context.Context, job queue.Job) error {
	_, err := s.orch.Generate(ctx, job.PlanID)
	if errors.Is(err, ErrGenerationInProgress) {
		s.logger.Debug(ctx, "plan already generating elsewhere", logger.String("plan_id", job.PlanID))
		return nil
	}
	return err
}

func (s *Service) sweep(ctx context.Context) {
	defer s.sweeps.Done()
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.orch.SweepStale(ctx)
			if err != nil {
				s.logger.Warn(ctx, "stale sweep failed", logger.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info(ctx, "stale plans expired", logger.Int("count", n))
			}
		}
	}
}
