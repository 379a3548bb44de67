package async

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/metrics"
	"go.uber.org/zap"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100

	// awaitPollInterval re-reads a job while awaiting it, covering dropped
	// notifications and updates made by another process.
	awaitPollInterval = time.Second
)

// ManagerConfig holds the runtime-adjustable admission settings.
type ManagerConfig struct {
	Ceiling     int // maximum queued+processing jobs; <= 0 means DefaultCeiling
	MaxDuration int // maximum requested duration in seconds; <= 0 disables the check
}

// Manager owns the job lifecycle: admission, state transitions and
// change notification. Every transition goes through Store.Update so
// concurrent callers never lose each other's writes.
type Manager struct {
	store    Store
	clock    cadence.Clock
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	recorder OutcomeRecorder

	ceiling     atomic.Int64
	maxDuration atomic.Int64

	// admitMu serializes count+insert so the ceiling is strict within one process
	admitMu sync.Mutex

	mu          sync.RWMutex
	subscribers []chan *Job

	wake chan struct{}
}

// NewManager creates a job manager over store. A nil clock means the system
// clock; a nil logger means the global logger.
func NewManager(store Store, clock cadence.Clock, cfg ManagerConfig, log *zap.SugaredLogger) *Manager {
	if clock == nil {
		clock = cadence.SystemClock{}
	}
	if log == nil {
		log = logger.Logger
	}
	m := &Manager{
		store:  store,
		clock:  clock,
		logger: log.Named("pulse.jobs"),
		wake:   make(chan struct{}, 1),
	}
	m.SetCeiling(cfg.Ceiling)
	m.SetMaxDuration(cfg.MaxDuration)
	return m
}

// SetMetrics attaches Prometheus collectors. Call before serving traffic.
func (m *Manager) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// SetRecorder attaches the receiver of schedule-linked job outcomes.
// Call before serving traffic.
func (m *Manager) SetRecorder(r OutcomeRecorder) { m.recorder = r }

// SetCeiling changes the admission ceiling. Values <= 0 restore DefaultCeiling.
func (m *Manager) SetCeiling(n int) {
	if n <= 0 {
		n = DefaultCeiling
	}
	m.ceiling.Store(int64(n))
}

// Ceiling returns the current admission ceiling.
func (m *Manager) Ceiling() int { return int(m.ceiling.Load()) }

// SetMaxDuration changes the requested-duration limit in seconds. Values <= 0 disable it.
func (m *Manager) SetMaxDuration(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	m.maxDuration.Store(int64(seconds))
}

// MaxDuration returns the requested-duration limit in seconds, 0 if disabled.
func (m *Manager) MaxDuration() int { return int(m.maxDuration.Load()) }

// Now returns the manager's clock reading.
func (m *Manager) Now() time.Time { return m.clock.Now() }

// Submit validates req, checks the admission ceiling and persists a queued job.
// A request over the ceiling creates nothing and returns a capacity error.
func (m *Manager) Submit(ctx context.Context, req JobRequest) (*Job, error) {
	if err := req.Validate(m.MaxDuration()); err != nil {
		return nil, err
	}
	req = req.withDefaults()

	m.admitMu.Lock()
	active, err := m.store.ListActive(ctx)
	if err != nil {
		m.admitMu.Unlock()
		err = errors.Wrap(err, "failed to count active jobs")
		return nil, errors.WithDetail(err, fmt.Sprintf("Kind: %s", req.Kind))
	}

	ceiling := m.Ceiling()
	if !CanAdmit(active, ceiling) {
		m.admitMu.Unlock()
		m.metrics.AdmissionRejected()
		m.logger.Infow("Job rejected at capacity",
			logger.FieldKind, req.Kind,
			logger.FieldActive, CountActive(active),
			logger.FieldCeiling, ceiling)
		err := errors.NewCapacityError("%d of %d concurrent jobs already active", CountActive(active), ceiling)
		return nil, errors.WithHint(err, "retry once a running job finishes")
	}

	job := NewJob(req.Kind, req.Params, req.ScheduleID, m.clock.Now())
	err = m.store.Create(ctx, job)
	m.admitMu.Unlock()
	if err != nil {
		err = errors.Wrap(err, "failed to submit job")
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", job.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Kind: %s", job.Kind))
		return nil, err
	}

	m.metrics.JobSubmitted(string(job.Kind))
	m.logger.Infow("Job queued",
		logger.FieldJobID, job.ID,
		logger.FieldKind, job.Kind,
		logger.FieldScheduleID, job.ScheduleID)

	m.notify(job)
	m.Wake()
	return job.Clone(), nil
}

// Get returns a job by id.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	return m.store.Get(ctx, id)
}

// List returns jobs newest first.
func (m *Manager) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	return m.store.List(ctx, opts)
}

// FindActiveForSchedule returns the queued or processing job linked to a
// schedule, or nil if there is none.
func (m *Manager) FindActiveForSchedule(ctx context.Context, scheduleID string) (*Job, error) {
	return m.store.FindActiveBySchedule(ctx, scheduleID)
}

// Start moves a queued job to processing.
func (m *Manager) Start(ctx context.Context, id string) (*Job, error) {
	now := m.clock.Now()
	job, err := m.store.Update(ctx, id, func(j *Job) error { return j.Start(now) })
	if err != nil {
		return nil, errors.Wrapf(err, "failed to start job %s", id)
	}
	m.logger.Debugw("Job started", logger.FieldJobID, id, logger.FieldKind, job.Kind)
	m.notify(job)
	return job, nil
}

// claimNext starts the oldest queued job, or returns nil when none is queued.
func (m *Manager) claimNext(ctx context.Context) (*Job, error) {
	now := m.clock.Now()
	job, err := m.store.ClaimNext(ctx, func(j *Job) error { return j.Start(now) })
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim next job")
	}
	if job != nil {
		m.notify(job)
	}
	return job, nil
}

// UpdateProgress raises the progress of a processing job.
func (m *Manager) UpdateProgress(ctx context.Context, id string, progress int) (*Job, error) {
	now := m.clock.Now()
	job, err := m.store.Update(ctx, id, func(j *Job) error { return j.UpdateProgress(progress, now) })
	if err != nil {
		err = errors.Wrapf(err, "failed to update progress of job %s", id)
		return nil, errors.WithDetail(err, fmt.Sprintf("Progress: %d", progress))
	}
	m.notify(job)
	return job, nil
}

// Complete marks a processing job completed with its result.
func (m *Manager) Complete(ctx context.Context, id string, result Result) (*Job, error) {
	now := m.clock.Now()
	job, err := m.store.Update(ctx, id, func(j *Job) error { return j.Complete(result, now) })
	if err != nil {
		return nil, errors.Wrapf(err, "failed to complete job %s", id)
	}
	m.logger.Infow("Job completed", logger.FieldJobID, id, logger.FieldKind, job.Kind)
	m.finished(ctx, job)
	return job, nil
}

// Fail marks a queued or processing job failed with reason.
func (m *Manager) Fail(ctx context.Context, id string, reason string) (*Job, error) {
	return m.fail(ctx, id, reason, "")
}

// FailDispatch marks a job failed by the generation service. Only the kind's
// opaque reason is stored; the caller logs the detailed error.
func (m *Manager) FailDispatch(ctx context.Context, id string, kind DispatchErrorKind) (*Job, error) {
	return m.fail(ctx, id, kind.Reason(), kind)
}

func (m *Manager) fail(ctx context.Context, id, reason string, kind DispatchErrorKind) (*Job, error) {
	now := m.clock.Now()
	job, err := m.store.Update(ctx, id, func(j *Job) error {
		if err := j.Fail(reason, now); err != nil {
			return err
		}
		j.ErrorKind = kind
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "failed to mark job %s as failed", id)
		return nil, errors.WithDetail(err, fmt.Sprintf("Job error: %s", reason))
	}
	m.logger.Warnw("Job failed", logger.FieldJobID, id, logger.FieldKind, job.Kind, logger.FieldError, reason)
	m.finished(ctx, job)
	return job, nil
}

// finished publishes a terminal job and reports schedule-linked outcomes.
// Recorder failures are logged; the job transition already happened.
func (m *Manager) finished(ctx context.Context, job *Job) {
	m.metrics.JobFinished(string(job.Kind), string(job.Status))
	m.notify(job)

	if job.ScheduleID == "" || m.recorder == nil {
		return
	}
	succeeded := job.Status == JobStatusCompleted
	if err := m.recorder.RecordOutcome(ctx, job.ScheduleID, succeeded, *job.CompletedAt); err != nil {
		m.logger.Warnw("Failed to record schedule outcome",
			logger.FieldJobID, job.ID,
			logger.FieldScheduleID, job.ScheduleID,
			logger.FieldError, err)
	}
}

// Await blocks until the job reaches a terminal status or ctx ends.
func (m *Manager) Await(ctx context.Context, id string) (*Job, error) {
	updates := m.Subscribe()
	defer m.Unsubscribe(updates)

	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, errors.Wrapf(ctx.Err(), "stopped waiting for job %s", id)
		case u := <-updates:
			if u.ID == id && u.Status.IsTerminal() {
				return u.Clone(), nil
			}
		case <-ticker.C:
		}
	}
}

// Stats counts jobs per status.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Total      int `json:"total"`
	Ceiling    int `json:"ceiling"`
}

// Stats returns job counts by status along with the admission ceiling.
func (m *Manager) Stats(ctx context.Context) (*Stats, error) {
	counts, err := m.store.CountByStatus(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	stats := &Stats{
		Queued:     counts[JobStatusQueued],
		Processing: counts[JobStatusProcessing],
		Completed:  counts[JobStatusCompleted],
		Failed:     counts[JobStatusFailed],
		Ceiling:    m.Ceiling(),
	}
	stats.Total = stats.Queued + stats.Processing + stats.Completed + stats.Failed
	return stats, nil
}

// Cleanup removes completed and failed jobs not updated within olderThan.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := m.clock.Now().Add(-olderThan)
	removed, err := m.store.CleanupOld(ctx, cutoff)
	if err != nil {
		err = errors.Wrap(err, "failed to clean up old jobs")
		return 0, errors.WithDetail(err, fmt.Sprintf("Cutoff: %s", cutoff.Format(time.RFC3339)))
	}
	return removed, nil
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (m *Manager) Subscribe() chan *Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel. The channel is NOT closed;
// callers manage its lifecycle.
func (m *Manager) Unsubscribe(ch chan *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// notify sends a copy of job to every subscriber without blocking.
func (m *Manager) notify(job *Job) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ch := range m.subscribers {
		select {
		case ch <- job.Clone():
		default:
			// Channel full, skip
		}
	}
}

// Wake nudges an idle worker to look for queued jobs.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) wakeups() <-chan struct{} { return m.wake }
