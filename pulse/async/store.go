package async

import (
	"context"
	"time"
)

// ListOptions filters job listings. Zero values mean no filter; Limit <= 0
// means DefaultListLimit.
type ListOptions struct {
	Status     *JobStatus
	ScheduleID string
	Limit      int
}

const (
	// DefaultListLimit caps listings that do not ask for a limit
	DefaultListLimit = 100
	// MaxJobsLimit is the most jobs a single listing returns
	MaxJobsLimit = 10000
)

func (o ListOptions) limit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxJobsLimit:
		return MaxJobsLimit
	default:
		return o.Limit
	}
}

// Store persists jobs. Every mutation of an existing job goes through Update
// or ClaimNext, which read, apply fn and write back as one atomic step.
// Returned jobs are copies; mutating them does not touch stored state.
type Store interface {
	// Create inserts a new job.
	Create(ctx context.Context, job *Job) error
	// Get loads a job by id, or returns a not-found error.
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs newest first.
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	// ListActive returns every queued or processing job.
	ListActive(ctx context.Context) ([]*Job, error)
	// Update applies fn to the stored job and persists the result. If fn
	// returns an error nothing is written and that error is returned as is.
	Update(ctx context.Context, id string, fn func(*Job) error) (*Job, error)
	// ClaimNext applies fn to the oldest queued job and persists it.
	// Returns nil, nil when no job is queued.
	ClaimNext(ctx context.Context, fn func(*Job) error) (*Job, error)
	// FindActiveBySchedule returns the newest queued or processing job linked
	// to a schedule, or nil when there is none.
	FindActiveBySchedule(ctx context.Context, scheduleID string) (*Job, error)
	// CountByStatus counts jobs per status.
	CountByStatus(ctx context.Context) (map[JobStatus]int, error)
	// CleanupOld deletes terminal jobs last updated before cutoff.
	CleanupOld(ctx context.Context, cutoff time.Time) (int, error)
}
