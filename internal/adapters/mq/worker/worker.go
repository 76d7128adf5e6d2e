// Package worker runs generation jobs taken from the queue.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/raceday/internal/adapters/mq/queue"
	"github.com/okian/raceday/pkg/logger"
	"github.com/okian/raceday/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Handler runs one generation job.
type Handler interface {
	Handle(ctx context.Context, job queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, job queue.Job) error

func (f HandlerFunc) Handle(ctx context.Context, job queue.Job) error { return f(ctx, job) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// Stats counts jobs handled by a worker or pool.
type Stats struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// Processed returns the number of jobs handled, failed ones included.
func (s *Stats) Processed() int64 { return s.processed.Load() }

// Failed returns the number of jobs whose handler returned an error.
func (s *Stats) Failed() int64 { return s.failed.Load() }

// Worker processes jobs until stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	jobs    <-chan queue.Job
	handler Handler
	name    string
	stats   *Stats

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		stats:    &Stats{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run takes jobs until ctx is done, Shutdown is called or the job channel
// closes. A job in progress always finishes. Jobs not yet taken stay in the
// queue when Shutdown stops the worker.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.jobs
	if jobs == nil {
		jobs = w.queue.Dequeue(ctx)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Shutdown stops the worker and waits for the job in progress.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	return w.wait(ctx)
}

func (w *InMemoryWorker) wait(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Stats returns the worker counters.
func (w *InMemoryWorker) Stats() *Stats { return w.stats }

func (w *InMemoryWorker) process(ctx context.Context, job queue.Job) {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	w.stats.processed.Add(1)
	if err := w.handler.Handle(ctx, job); err != nil {
		w.stats.failed.Add(1)
		metrics.RecordErrorByComponent("worker", "job_failed")
		w.logger.Error(ctx, "generation job failed",
			logger.String("plan_id", job.PlanID),
			logger.Int("attempt", job.Attempt),
			logger.Error(err),
		)
	}
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	stats   *Stats
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers. A count below one means one
// worker per CPU.
func NewPool(workerCount int, q Queue, h Handler) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		stats:   &Stats{},
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, h,
			WithName("worker-"+strconv.Itoa(i)),
			WithStats(p.stats),
		)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Stats returns the counters shared by all workers of the pool.
func (p *Pool) Stats() *Stats { return p.stats }

// Start starts all workers in the pool. The workers receive from one
// shared channel, so a job goes to whichever worker is free first.
func (p *Pool) Start(ctx context.Context) {
	jobs := p.queue.Dequeue(ctx)
	for _, w := range p.workers {
		w.jobs = jobs
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits until the workers have handled every
// job still queued. A queue that cannot be closed is abandoned instead: the
// workers stop after their current job.
func (p *Pool) Shutdown(ctx context.Context) error {
	closer, drain := p.queue.(interface{ Close() error })
	if drain {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
			drain = false
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	for i, w := range p.workers {
		var err error
		if drain {
			err = w.wait(shutdownCtx)
		} else {
			err = w.Shutdown(shutdownCtx)
		}
		if err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
