// Package janitor periodically deletes old finished generation jobs.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
)

const (
	// DefaultSchedule runs cleanup daily at 03:00 UTC
	DefaultSchedule = "0 3 * * *"
	// DefaultRetentionDays keeps finished jobs for a month
	DefaultRetentionDays = 30
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule checks a five-field cron expression or descriptor such as @daily.
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.NewFieldError("jobs.cleanup_schedule", "invalid cron expression %q: %v", spec, err)
	}
	return sched, nil
}

// Cleaner removes finished jobs not updated within olderThan.
// *async.Manager satisfies it.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config configures the janitor.
type Config struct {
	Schedule      string
	RetentionDays int
}

// Janitor runs Cleaner on a cron schedule.
type Janitor struct {
	cleaner   Cleaner
	retention time.Duration
	spec      string
	cron      *cron.Cron
	entry     cron.EntryID
	logger    *zap.SugaredLogger

	mu          sync.Mutex
	lastRun     time.Time
	lastRemoved int
	lastErr     error
}

// New validates cfg and prepares a janitor. Nothing runs until Start.
func New(cleaner Cleaner, cfg Config, log *zap.SugaredLogger) (*Janitor, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = DefaultRetentionDays
	}
	if cfg.RetentionDays < 0 {
		return nil, errors.NewFieldError("jobs.cleanup_days", "must be positive, got %d", cfg.RetentionDays)
	}
	if _, err := ParseSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Logger
	}

	j := &Janitor{
		cleaner:   cleaner,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		spec:      cfg.Schedule,
		cron:      cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		logger:    log.Named("pulse.janitor"),
	}
	entry, err := j.cron.AddFunc(cfg.Schedule, func() {
		if _, err := j.RunOnce(context.Background()); err != nil {
			j.logger.Warnw("Scheduled cleanup failed", logger.FieldError, err)
		}
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to schedule cleanup %q", cfg.Schedule)
	}
	j.entry = entry
	return j, nil
}

// Start begins the cron loop.
func (j *Janitor) Start() {
	j.cron.Start()
	logger.AddPulseOpenSymbol(j.logger).Debugw("Janitor started",
		"schedule", j.spec,
		"retention", j.retention,
		logger.FieldNextRun, j.Next())
}

// Stop halts the cron loop and waits for a running cleanup, bounded by ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		j.logger.Warnw("Janitor stop timed out with a cleanup still running")
	}
}

// RunOnce deletes finished jobs older than the retention window now.
func (j *Janitor) RunOnce(ctx context.Context) (int, error) {
	started := time.Now()
	removed, err := j.cleaner.Cleanup(ctx, j.retention)

	j.mu.Lock()
	j.lastRun = started.UTC()
	j.lastRemoved = removed
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		return removed, errors.Wrap(err, "cleanup failed")
	}
	j.logger.Infow("Old jobs cleaned up",
		logger.FieldCount, removed,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
	return removed, nil
}

// Next returns when the cleanup runs next, zero if the janitor is not started.
func (j *Janitor) Next() time.Time {
	return j.cron.Entry(j.entry).Next
}

// Stats reports the last cleanup.
type Stats struct {
	Schedule    string    `json:"schedule"`
	Retention   string    `json:"retention"`
	LastRun     time.Time `json:"last_run"`
	LastRemoved int       `json:"last_removed"`
	LastError   string    `json:"last_error,omitempty"`
	NextRun     time.Time `json:"next_run"`
}

// Stats returns a snapshot of janitor activity.
func (j *Janitor) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := Stats{
		Schedule:    j.spec,
		Retention:   j.retention.String(),
		LastRun:     j.lastRun,
		LastRemoved: j.lastRemoved,
		NextRun:     j.Next(),
	}
	if j.lastErr != nil {
		s.LastError = j.lastErr.Error()
	}
	return s
}
