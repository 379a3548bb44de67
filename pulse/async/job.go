// Package async tracks generation jobs from admission to a terminal outcome
// and runs them on a pool of dispatch workers.
package async

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/buzzsnip/buzzsnip/errors"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsValidStatus returns true if the status string is a valid JobStatus
func IsValidStatus(s string) bool {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no transition leaves this status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsActive reports whether a job in this status counts against the admission ceiling.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusProcessing
}

// transitions is the job state machine. Nothing returns to queued and
// nothing leaves a terminal state.
var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
func CanTransition(from, to JobStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Kind is the generation operation a job requests.
type Kind string

const (
	KindAutomated Kind = "automated" // full pipeline: script, voice, face, video, optional upload
	KindAudio     Kind = "audio"
	KindFace      Kind = "face"
	KindVideo     Kind = "video"
)

// Kinds lists every job kind in pipeline order.
var Kinds = []Kind{KindAutomated, KindAudio, KindFace, KindVideo}

// IsValidKind returns true if the string names a job kind
func IsValidKind(s string) bool {
	for _, k := range Kinds {
		if string(k) == s {
			return true
		}
	}
	return false
}

// Params are the generation parameters sent to the generation service.
// Which fields are required depends on the job kind.
type Params struct {
	PersonaID    string   `json:"persona_id,omitempty"`
	Theme        string   `json:"theme,omitempty"`
	Duration     int      `json:"duration,omitempty"`
	Platforms    []string `json:"platforms,omitempty"`
	AutoUpload   *bool    `json:"auto_upload,omitempty"`
	ScheduleTime string   `json:"schedule_time,omitempty"`
	Script       string   `json:"script,omitempty"`
	VoiceType    string   `json:"voice_type,omitempty"`
	Language     string   `json:"language,omitempty"`
	AudioURL     string   `json:"audio_url,omitempty"`
	FaceURL      string   `json:"face_url,omitempty"`
}

// Result holds the output locations reported by the generation service
// (audio_url, face_url, video_url, thumbnail_url, duration, resolution, file_size, ...).
type Result map[string]interface{}

// Job is one request to the generation service, tracked from admission to a
// terminal status.
type Job struct {
	ID     string    `json:"job_id"`
	Kind   Kind      `json:"kind"`
	Status JobStatus `json:"status"`
	Params
	ScheduleID  string            `json:"schedule_id,omitempty"`
	Progress    int               `json:"progress"`
	Result      Result            `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
	ErrorKind   DispatchErrorKind `json:"error_kind,omitempty"` // set when the generation service failed the job
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewJob creates a queued job with a fresh UUID.
func NewJob(kind Kind, params Params, scheduleID string, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		Status:     JobStatusQueued,
		Params:     params,
		ScheduleID: scheduleID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Platforms != nil {
		c.Platforms = append([]string(nil), j.Platforms...)
	}
	if j.AutoUpload != nil {
		v := *j.AutoUpload
		c.AutoUpload = &v
	}
	if j.Result != nil {
		c.Result = make(Result, len(j.Result))
		for k, v := range j.Result {
			c.Result[k] = v
		}
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (j *Job) transition(to JobStatus) error {
	if !CanTransition(j.Status, to) {
		err := errors.Wrapf(errors.ErrInvalidTransition, "job %s: %s -> %s", j.ID, j.Status, to)
		err = errors.WithDetail(err, fmt.Sprintf("Job ID: %s", j.ID))
		err = errors.WithDetail(err, fmt.Sprintf("Current status: %s", j.Status))
		return err
	}
	j.Status = to
	return nil
}

// Start marks the job as processing with progress reset to 0
func (j *Job) Start(now time.Time) error {
	if err := j.transition(JobStatusProcessing); err != nil {
		return err
	}
	now = now.UTC()
	j.Progress = 0
	j.StartedAt = &now
	j.UpdatedAt = now
	return nil
}

// Complete marks the job as completed with its result
func (j *Job) Complete(result Result, now time.Time) error {
	if err := j.transition(JobStatusCompleted); err != nil {
		return err
	}
	now = now.UTC()
	j.Progress = 100
	j.Result = result
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// Fail marks the job as failed with a reason
func (j *Job) Fail(reason string, now time.Time) error {
	if err := j.transition(JobStatusFailed); err != nil {
		return err
	}
	now = now.UTC()
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// UpdateProgress raises the job's progress, clamped to 0..100.
// Progress never decreases and only moves while processing.
func (j *Job) UpdateProgress(progress int, now time.Time) error {
	if j.Status != JobStatusProcessing {
		err := errors.Wrapf(errors.ErrInvalidTransition, "job %s is not processing (status: %s)", j.ID, j.Status)
		return errors.WithDetail(err, fmt.Sprintf("Job ID: %s", j.ID))
	}
	progress = max(0, min(100, progress))
	if progress > j.Progress {
		j.Progress = progress
	}
	j.UpdatedAt = now.UTC()
	return nil
}

// MarshalParams converts Params to a JSON string for storage
func MarshalParams(p Params) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal job params")
	}
	return string(data), nil
}

// UnmarshalParams converts a stored JSON string to Params
func UnmarshalParams(data string) (Params, error) {
	var p Params
	if data == "" {
		return p, nil
	}
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return p, errors.Wrap(err, "failed to unmarshal job params")
	}
	return p, nil
}

// MarshalResult converts a Result to a JSON string; nil results store as NULL
func MarshalResult(r Result) (*string, error) {
	if r == nil {
		return nil, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal job result")
	}
	s := string(data)
	return &s, nil
}

// UnmarshalResult converts a stored JSON string to a Result
func UnmarshalResult(data string) (Result, error) {
	if data == "" {
		return nil, nil
	}
	var r Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal job result")
	}
	return r, nil
}
