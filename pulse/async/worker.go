package async

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/metrics"
	"go.uber.org/zap"
)

const (
	// MaxOrphanedJobsToRecover limits how many orphaned jobs are failed on startup
	MaxOrphanedJobsToRecover = 1000

	// OrphanedJobReason is recorded on jobs a previous process left processing
	OrphanedJobReason = "interrupted by restart"

	// defaultStopTimeout bounds how long Stop waits for in-flight dispatches
	defaultStopTimeout = 30 * time.Second
)

// pulseLogger wraps zap.SugaredLogger with special methods for Pulse operations
// Uses different log levels to create visual distinction:
// - DEBUG level → STARTING (✿ Opening operations)
// - WARN level → CLOSING (❀ Closing operations)
// - INFO level → PULSE (general worker operations)
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an Opening (✿) event
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	logger.AddPulseOpenSymbol(l.SugaredLogger).Debugw(msg, keysAndValues...)
}

// Closing logs a Closing (❀) event
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	logger.AddPulseCloseSymbol(l.SugaredLogger).Warnw(msg, keysAndValues...)
}

// Pulse logs general worker operations
func (l pulseLogger) Pulse(msg string, keysAndValues ...interface{}) {
	logger.AddPulseSymbol(l.SugaredLogger).Infow(msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`       // Number of concurrent workers
	PollInterval time.Duration `json:"poll_interval"` // How often idle workers look for queued jobs
	Timeouts     Timeouts      `json:"timeouts"`      // Per-kind dispatch deadlines
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      DefaultCeiling,
		PollInterval: 2 * time.Second,
		Timeouts:     DefaultTimeouts(),
	}
}

// WorkerPool claims queued jobs and hands them to the Dispatcher. Each worker
// runs one dispatch at a time, so a slow generation call blocks only its worker.
type WorkerPool struct {
	manager    *Manager
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	workers    int
	poll       time.Duration
	stopWait   time.Duration

	parentCtx context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	running   *sync.WaitGroup // workers of the current run

	logger pulseLogger

	mu            sync.Mutex
	timeouts      Timeouts
	activeWorkers int
	jobsProcessed int
	startTime     time.Time
}

// NewWorkerPool creates a worker pool bound to ctx. Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, manager *Manager, dispatcher Dispatcher, cfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	defaults := DefaultWorkerPoolConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaults.PollInterval
	}
	if log == nil {
		log = logger.Logger
	}

	workerCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		manager:    manager,
		dispatcher: dispatcher,
		workers:    cfg.Workers,
		poll:       cfg.PollInterval,
		stopWait:   defaultStopTimeout,
		timeouts:   cfg.Timeouts.withDefaults(),
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		running:    &sync.WaitGroup{},
		logger:     pulseLogger{log.Named("pulse.worker")},
	}
}

// SetMetrics attaches Prometheus collectors. Call before Start.
func (wp *WorkerPool) SetMetrics(m *metrics.Metrics) { wp.metrics = m }

// SetTimeouts replaces the per-kind dispatch deadlines for jobs claimed from now on.
func (wp *WorkerPool) SetTimeouts(t Timeouts) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	wp.timeouts = t.withDefaults()
}

func (wp *WorkerPool) timeoutFor(kind Kind) time.Duration {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.timeouts.For(kind)
}

// Start fails jobs orphaned by a previous process, then launches the workers.
// Each run gets its own context and WaitGroup, so a straggler left behind by a
// timed-out Stop never shares state with the workers launched here.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		// Restarted after Stop: derive a fresh context from the parent
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	ctx := wp.ctx
	running := &sync.WaitGroup{}
	wp.running = running
	wp.startTime = time.Now()
	wp.jobsProcessed = 0
	wp.mu.Unlock()

	if n, err := wp.recoverOrphanedJobs(ctx); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", logger.FieldError, err)
	} else if n > 0 {
		wp.logger.Starting("Failed jobs orphaned by previous process", logger.FieldCount, n)
	}

	wp.logger.Starting("Worker pool starting", "workers", wp.workers, "poll_interval", wp.poll)
	for i := 0; i < wp.workers; i++ {
		running.Add(1)
		go wp.worker(ctx, running, i)
	}
}

// recoverOrphanedJobs fails every job still marked processing. A processing
// job with no worker behind it can never finish, and the state machine has
// no edge back to queued.
func (wp *WorkerPool) recoverOrphanedJobs(ctx context.Context) (int, error) {
	processing := JobStatusProcessing
	orphaned, err := wp.manager.List(ctx, ListOptions{Status: &processing, Limit: MaxOrphanedJobsToRecover})
	if err != nil {
		return 0, errors.Wrap(err, "failed to list processing jobs")
	}

	recovered := 0
	for _, job := range orphaned {
		if _, err := wp.manager.Fail(ctx, job.ID, OrphanedJobReason); err != nil {
			wp.logger.Warnw("Failed to fail orphaned job", logger.FieldJobID, job.ID, logger.FieldError, err)
			continue
		}
		recovered++
	}
	return recovered, nil
}

// Stop cancels the workers and waits for in-flight dispatches to return,
// giving up after 30 seconds.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	cancel, running := wp.cancel, wp.running
	wp.mu.Unlock()
	cancel()

	done := make(chan struct{})
	go func() {
		running.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.Pulse("Worker pool stopped - all workers exited cleanly")
	case <-time.After(wp.stopWait):
		wp.logger.Closing("Worker pool stop timed out - dispatches may still be running", "timeout", wp.stopWait)
	}
}

// worker claims and dispatches jobs until ctx ends
func (wp *WorkerPool) worker(ctx context.Context, running *sync.WaitGroup, id int) {
	defer running.Done()

	ticker := time.NewTicker(wp.poll)
	defer ticker.Stop()

	// Error backoff state
	errorCount := 0
	const maxConsecutiveErrors = 5
	backoffDuration := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wp.manager.wakeups():
		}

		// Drain the queue before going back to sleep
		for {
			processed, err := wp.processNextJob(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, sql.ErrConnDone) {
					return
				}
				errorCount++
				wp.logger.Errorw("Worker error processing job",
					logger.FieldWorker, id,
					logger.FieldError, err,
					"consecutive_errors", errorCount)

				if errorCount >= maxConsecutiveErrors {
					wp.logger.Warnw("Worker backing off due to consecutive errors",
						logger.FieldWorker, id,
						"backoff", backoffDuration,
						"consecutive_errors", errorCount)
					select {
					case <-ctx.Done():
						return
					case <-time.After(backoffDuration):
					}
					backoffDuration = min(backoffDuration*2, maxBackoff)
				}
				break
			}

			if errorCount > 0 {
				wp.logger.Infow("Worker recovered from errors",
					logger.FieldWorker, id,
					"previous_error_count", errorCount)
			}
			errorCount = 0
			backoffDuration = time.Second

			if !processed || ctx.Err() != nil {
				break
			}
		}
	}
}

// processNextJob claims the oldest queued job and dispatches it.
// Reports whether a job was claimed.
func (wp *WorkerPool) processNextJob(ctx context.Context) (bool, error) {
	if ctx.Err() != nil {
		return false, nil
	}

	job, err := wp.manager.claimNext(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.activeWorkers++
	wp.jobsProcessed++
	wp.mu.Unlock()
	wp.metrics.DispatchStarted()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
		wp.metrics.DispatchEnded()
	}()

	return true, wp.dispatch(ctx, job)
}

// dispatch runs one generation call under the kind's deadline and records the outcome.
func (wp *WorkerPool) dispatch(poolCtx context.Context, job *Job) error {
	timeout := wp.timeoutFor(job.Kind)
	ctx, cancel := context.WithTimeout(logger.WithJobID(poolCtx, job.ID), timeout)
	defer cancel()

	log := logger.LoggerFromContext(ctx, wp.logger.SugaredLogger)
	log.Debugw("Dispatching job", logger.FieldKind, job.Kind, "timeout", timeout)

	started := time.Now()
	result, err := wp.dispatcher.Dispatch(ctx, job)
	elapsed := time.Since(started)

	// The job's outcome must be written even when the pool is shutting down
	recordCtx := context.WithoutCancel(poolCtx)

	if err != nil {
		kind := KindOf(err)
		wp.metrics.DispatchDuration(string(job.Kind), string(kind), elapsed)
		// The full error names the service address; it stays in the log
		log.Warnw("Dispatch failed",
			logger.FieldKind, job.Kind,
			"failure", kind,
			logger.FieldDurationMS, elapsed.Milliseconds(),
			logger.FieldError, err)

		if _, failErr := wp.manager.FailDispatch(recordCtx, job.ID, kind); failErr != nil {
			return errors.Wrapf(failErr, "failed to record dispatch failure for job %s", job.ID)
		}
		return nil
	}

	wp.metrics.DispatchDuration(string(job.Kind), "ok", elapsed)
	if _, err := wp.manager.Complete(recordCtx, job.ID, result); err != nil {
		return errors.Wrapf(err, "failed to record result for job %s", job.ID)
	}
	log.Infow("Job dispatched", logger.FieldKind, job.Kind, logger.FieldDurationMS, elapsed.Milliseconds())
	return nil
}

// PoolStatus is a snapshot of worker activity.
type PoolStatus struct {
	Workers       int       `json:"workers"`
	ActiveWorkers int       `json:"active_workers"`
	JobsProcessed int       `json:"jobs_processed"`
	StartedAt     time.Time `json:"started_at"`
}

// Status returns a snapshot of worker activity.
func (wp *WorkerPool) Status() PoolStatus {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return PoolStatus{
		Workers:       wp.workers,
		ActiveWorkers: wp.activeWorkers,
		JobsProcessed: wp.jobsProcessed,
		StartedAt:     wp.startTime,
	}
}

// Workers returns the number of concurrent workers configured for this pool
func (wp *WorkerPool) Workers() int {
	return wp.workers
}
