package schedule

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/metrics"
)

// JobSubmitter admits generation jobs on behalf of schedules.
// *async.Manager satisfies it.
type JobSubmitter interface {
	Submit(ctx context.Context, req async.JobRequest) (*async.Job, error)
	FindActiveForSchedule(ctx context.Context, scheduleID string) (*async.Job, error)
}

// Manager owns schedule lifecycle and turns due schedules into jobs.
type Manager struct {
	store   Store
	jobs    JobSubmitter
	clock   cadence.Clock
	metrics *metrics.Metrics
	logger  *zap.SugaredLogger
}

// NewManager creates a schedule manager. jobs may be nil for callers that only
// edit schedules; RunNow and FireDue then fail.
func NewManager(store Store, jobs JobSubmitter, clock cadence.Clock, log *zap.SugaredLogger) *Manager {
	if clock == nil {
		clock = cadence.SystemClock{}
	}
	if log == nil {
		log = logger.Logger
	}
	return &Manager{
		store:  store,
		jobs:   jobs,
		clock:  clock,
		logger: log.Named("pulse.schedule"),
	}
}

// SetMetrics attaches Prometheus collectors.
func (m *Manager) SetMetrics(mt *metrics.Metrics) { m.metrics = mt }

// SetJobs attaches the job submitter. The job manager and the schedule manager
// reference each other, so one side is wired after construction.
func (m *Manager) SetJobs(jobs JobSubmitter) { m.jobs = jobs }

// durationLimiter is implemented by submitters that cap video length.
// *async.Manager does.
type durationLimiter interface {
	MaxDuration() int
}

// checkDuration rejects a duration every firing of the schedule would be refused for.
func (m *Manager) checkDuration(seconds int) error {
	lim, ok := m.jobs.(durationLimiter)
	if !ok {
		return nil
	}
	if limit := lim.MaxDuration(); limit > 0 && seconds > limit {
		return errors.NewFieldError("duration", "%d seconds exceeds the %d second maximum", seconds, limit)
	}
	return nil
}

// Create validates spec and stores a new schedule under a fresh id.
func (m *Manager) Create(ctx context.Context, spec Spec) (*Schedule, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	duration := DefaultDuration
	if spec.Duration != nil {
		duration = *spec.Duration
	}
	if err := m.checkDuration(duration); err != nil {
		return nil, err
	}
	id, err := m.store.NextID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate schedule id")
	}

	s := spec.build(id, m.clock.Now())
	if err := m.store.Create(ctx, s); err != nil {
		err = errors.Wrap(err, "failed to create schedule")
		return nil, errors.WithDetail(err, fmt.Sprintf("Schedule name: %s", s.Name))
	}

	m.logger.Infow("Schedule created",
		logger.FieldScheduleID, s.ID,
		logger.FieldPersonaID, s.PersonaID,
		"cadence", s.Cadence,
		logger.FieldNextRun, s.NextRun)
	if !s.Cadence.Known() {
		m.logger.Warnw("Unrecognized cadence, schedule will recur daily",
			logger.FieldScheduleID, s.ID, "cadence", s.Cadence)
	}
	return s, nil
}

// Get returns a schedule by id.
func (m *Manager) Get(ctx context.Context, id string) (*Schedule, error) {
	return m.store.Get(ctx, id)
}

// List returns every schedule, oldest first.
func (m *Manager) List(ctx context.Context) ([]*Schedule, error) {
	return m.store.List(ctx)
}

// Update applies patch. next_run is recomputed only when a timing field is present.
func (m *Manager) Update(ctx context.Context, id string, patch Patch) (*Schedule, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Duration != nil {
		if err := m.checkDuration(*patch.Duration); err != nil {
			return nil, err
		}
	}
	s, err := m.store.Update(ctx, id, func(s *Schedule) error {
		patch.apply(s, m.clock.Now())
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to update schedule %s", id)
	}
	m.logger.Infow("Schedule updated", logger.FieldScheduleID, id, logger.FieldNextRun, s.NextRun)
	return s, nil
}

// SetStatus pauses or resumes a schedule.
func (m *Manager) SetStatus(ctx context.Context, id string, status Status) (*Schedule, error) {
	if status == "" {
		return nil, errors.MissingField("status")
	}
	if !status.IsValid() {
		return nil, errors.NewFieldError("status", "must be active or paused, got %q", string(status))
	}
	s, err := m.store.Update(ctx, id, func(s *Schedule) error {
		s.Status = status
		s.UpdatedAt = m.clock.Now()
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to set status of schedule %s", id)
	}
	m.logger.Infow("Schedule status changed", logger.FieldScheduleID, id, logger.FieldStatus, status)
	return s, nil
}

// Delete removes a schedule. Jobs it already produced are left alone.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "failed to delete schedule %s", id)
	}
	m.logger.Infow("Schedule deleted", logger.FieldScheduleID, id)
	return nil
}

// jobRequest builds the automated job a schedule run submits.
func jobRequest(s *Schedule) async.JobRequest {
	theme := s.Theme
	if theme == "" {
		// Automated jobs require a theme; an unthemed schedule runs under its name
		theme = s.Name
	}
	autoUpload := s.AutoPost
	return async.JobRequest{
		Kind:       async.KindAutomated,
		ScheduleID: s.ID,
		Params: async.Params{
			PersonaID:  s.PersonaID,
			Theme:      theme,
			Duration:   s.Duration,
			Platforms:  append([]string{}, s.Platforms...),
			AutoUpload: &autoUpload,
		},
	}
}

// RunNow submits a job for the schedule immediately. next_run is not moved.
func (m *Manager) RunNow(ctx context.Context, id string) (*async.Job, error) {
	if m.jobs == nil {
		return nil, errors.New("schedule manager has no job submitter")
	}
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	job, err := m.jobs.Submit(ctx, jobRequest(s))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to run schedule %s", id)
	}
	m.logger.Infow("Schedule triggered manually",
		logger.FieldScheduleID, id,
		logger.FieldJobID, job.ID)
	return job, nil
}

// Fire outcomes reported by FireDue.
const (
	FireSubmitted = "submitted"
	FireSkipped   = "skipped"
	FireDeferred  = "deferred"
	FireFailed    = "failed"
)

// Firing is what happened to one due schedule in a FireDue pass.
type Firing struct {
	ScheduleID string    `json:"schedule_id"`
	Outcome    string    `json:"outcome"`
	JobID      string    `json:"job_id,omitempty"`
	NextRun    time.Time `json:"next_run"`
	Error      string    `json:"error,omitempty"`
}

// FireReport summarizes one FireDue pass.
type FireReport struct {
	Firings []Firing `json:"firings"`
}

// Count returns how many firings had the given outcome.
func (r *FireReport) Count(outcome string) int {
	n := 0
	for _, f := range r.Firings {
		if f.Outcome == outcome {
			n++
		}
	}
	return n
}

// FireDue submits a job for every active schedule whose next_run is at or before now.
//
// A schedule that still has a queued or processing job skips this occurrence.
// A capacity rejection leaves next_run untouched so the next pass retries.
// Any other submit failure advances next_run and counts as a failed run.
func (m *Manager) FireDue(ctx context.Context, now time.Time) (*FireReport, error) {
	if m.jobs == nil {
		return nil, errors.New("schedule manager has no job submitter")
	}
	now = now.UTC()
	due, err := m.store.ListDue(ctx, now)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list due schedules")
	}

	report := &FireReport{Firings: make([]Firing, 0, len(due))}
	for _, s := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		f := m.fire(ctx, s, now)
		m.metrics.ScheduleFired(f.Outcome)
		report.Firings = append(report.Firings, f)
	}
	return report, nil
}

func (m *Manager) fire(ctx context.Context, s *Schedule, now time.Time) Firing {
	f := Firing{ScheduleID: s.ID, NextRun: s.NextRun}
	log := m.logger.With(logger.FieldScheduleID, s.ID)

	active, err := m.jobs.FindActiveForSchedule(ctx, s.ID)
	if err != nil {
		f.Outcome = FireDeferred
		f.Error = err.Error()
		log.Warnw("Failed to check for active job, will retry", logger.FieldError, err)
		return f
	}
	if active != nil {
		f.Outcome = FireSkipped
		f.JobID = active.ID
		f.NextRun = m.advance(ctx, s.ID, now, nil)
		log.Infow("Skipping occurrence, previous job still active",
			logger.FieldJobID, active.ID,
			logger.FieldStatus, active.Status,
			logger.FieldNextRun, f.NextRun)
		return f
	}

	job, err := m.jobs.Submit(ctx, jobRequest(s))
	switch {
	case err == nil:
		f.Outcome = FireSubmitted
		f.JobID = job.ID
		f.NextRun = m.advance(ctx, s.ID, now, nil)
		log.Infow("Schedule fired", logger.FieldJobID, job.ID, logger.FieldNextRun, f.NextRun)
	case errors.IsCapacityError(err):
		f.Outcome = FireDeferred
		f.Error = err.Error()
		log.Infow("Schedule deferred at capacity", logger.FieldError, err)
	default:
		f.Outcome = FireFailed
		f.Error = err.Error()
		failed := false
		f.NextRun = m.advance(ctx, s.ID, now, &failed)
		log.Warnw("Schedule run failed to submit", logger.FieldError, err, logger.FieldNextRun, f.NextRun)
	}
	return f
}

// advance moves next_run past now and, when outcome is set, records a run.
// Returns the stored next_run, or the zero time if the write failed.
func (m *Manager) advance(ctx context.Context, id string, now time.Time, outcome *bool) time.Time {
	s, err := m.store.Update(ctx, id, func(s *Schedule) error {
		s.recompute(now)
		if outcome != nil {
			s.recordRun(*outcome, now)
		}
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		m.logger.Warnw("Failed to advance schedule", logger.FieldScheduleID, id, logger.FieldError, err)
		return time.Time{}
	}
	return s.NextRun
}

// RecordOutcome folds a finished job into the schedule's run history.
// A schedule deleted while its job ran is ignored.
func (m *Manager) RecordOutcome(ctx context.Context, scheduleID string, succeeded bool, at time.Time) error {
	s, err := m.store.Update(ctx, scheduleID, func(s *Schedule) error {
		s.recordRun(succeeded, at)
		s.UpdatedAt = m.clock.Now()
		return nil
	})
	if errors.IsNotFoundError(err) {
		m.logger.Debugw("Outcome for deleted schedule ignored", logger.FieldScheduleID, scheduleID)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to record outcome for schedule %s", scheduleID)
	}
	m.logger.Debugw("Schedule run recorded",
		logger.FieldScheduleID, scheduleID,
		"succeeded", succeeded,
		"success_rate", s.SuccessRate)
	return nil
}

// Next returns the active schedule that fires soonest, or nil if none is active.
func (m *Manager) Next(ctx context.Context) (*Schedule, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var next *Schedule
	for _, s := range all {
		if s.Status != StatusActive {
			continue
		}
		if next == nil || s.NextRun.Before(next.NextRun) {
			next = s
		}
	}
	return next, nil
}

var _ async.OutcomeRecorder = (*Manager)(nil)
