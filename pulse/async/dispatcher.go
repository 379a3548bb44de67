package async

import (
	"context"
	"fmt"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
)

// Dispatcher sends a job to the generation service and reports its outcome.
// Implementations must honor ctx cancellation; the worker pool puts the
// per-kind timeout on ctx.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *Job) (Result, error)
}

// DispatchErrorKind distinguishes an unreachable service from one that answered with a failure.
type DispatchErrorKind string

const (
	DispatchUnavailable      DispatchErrorKind = "unavailable"
	DispatchGenerationFailed DispatchErrorKind = "generation_failed"
)

// Reason is the caller-facing text stored on a job the kind failed. It never
// includes the service address, status code or response body.
func (k DispatchErrorKind) Reason() string {
	if k == DispatchGenerationFailed {
		return "generation failed"
	}
	return "AI services unavailable"
}

// KindOf classifies a Dispatch error. Anything that is not a *DispatchError
// counts as the service being unavailable.
func KindOf(err error) DispatchErrorKind {
	var de *DispatchError
	if errors.As(err, &de) && de.Kind == DispatchGenerationFailed {
		return DispatchGenerationFailed
	}
	return DispatchUnavailable
}

// DispatchError is a failed call to the generation service.
type DispatchError struct {
	Kind       DispatchErrorKind
	StatusCode int    // HTTP status for GenerationFailed, 0 otherwise
	Body       string // truncated response body for GenerationFailed
	Err        error  // underlying transport error for Unavailable
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case DispatchGenerationFailed:
		if e.Body != "" {
			return fmt.Sprintf("generation failed: HTTP %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("generation failed: HTTP %d", e.StatusCode)
	default:
		if e.Err != nil {
			return "generation service unavailable: " + e.Err.Error()
		}
		return "generation service unavailable"
	}
}

// Unwrap ties the error to the matching sentinel so errors.Is classifies it.
func (e *DispatchError) Unwrap() error {
	if e.Kind == DispatchGenerationFailed {
		return errors.ErrGenerationFailed
	}
	return errors.ErrServiceUnavailable
}

// Timeouts are the per-kind dispatch deadlines.
type Timeouts struct {
	Automated time.Duration
	Audio     time.Duration
	Face      time.Duration
	Video     time.Duration
}

// DefaultTimeouts returns the deadlines the generation service is sized for.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Automated: 30 * time.Second,
		Audio:     120 * time.Second,
		Face:      180 * time.Second,
		Video:     600 * time.Second,
	}
}

// withDefaults fills zero deadlines from DefaultTimeouts.
func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Automated <= 0 {
		t.Automated = d.Automated
	}
	if t.Audio <= 0 {
		t.Audio = d.Audio
	}
	if t.Face <= 0 {
		t.Face = d.Face
	}
	if t.Video <= 0 {
		t.Video = d.Video
	}
	return t
}

// For returns the deadline for a job kind, falling back to the automated deadline.
func (t Timeouts) For(kind Kind) time.Duration {
	switch kind {
	case KindAudio:
		return t.Audio
	case KindFace:
		return t.Face
	case KindVideo:
		return t.Video
	default:
		return t.Automated
	}
}

// OutcomeRecorder receives the outcome of jobs that a schedule triggered.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, scheduleID string, succeeded bool, at time.Time) error
}
