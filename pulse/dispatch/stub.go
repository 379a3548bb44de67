package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/buzzsnip/buzzsnip/pulse/async"
)

// Stub is an in-process Dispatcher returning canned results. It backs the
// server's --stub-generation mode and tests.
type Stub struct {
	mu      sync.Mutex
	results map[async.Kind]async.Result
	errs    map[async.Kind]error
	delay   time.Duration
	calls   []*async.Job
}

// NewStub returns a stub answering every kind with plausible output locations.
func NewStub() *Stub {
	return &Stub{
		results: map[async.Kind]async.Result{
			async.KindAutomated: {"status": "started"},
			async.KindAudio:     {"audio_url": "stub://audio.wav", "duration": 30, "file_size": 480000},
			async.KindFace:      {"face_url": "stub://face.png", "resolution": "1024x1024", "file_size": 350000},
			async.KindVideo: {
				"video_url":     "stub://video.mp4",
				"thumbnail_url": "stub://thumb.jpg",
				"duration":      30,
				"resolution":    "1080x1920",
				"file_size":     12000000,
			},
		},
		errs: make(map[async.Kind]error),
	}
}

// SetResult replaces the canned result for kind.
func (s *Stub) SetResult(kind async.Kind, r async.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[kind] = r
}

// FailWith makes every dispatch of kind return err. A nil err clears it.
func (s *Stub) FailWith(kind async.Kind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.errs, kind)
		return
	}
	s.errs[kind] = err
}

// SetDelay makes each dispatch take d, or until ctx ends.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Dispatch records the call and returns the canned outcome.
func (s *Stub) Dispatch(ctx context.Context, job *async.Job) (async.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, job.Clone())
	delay := s.delay
	err := s.errs[job.Kind]
	result := s.results[job.Kind]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, &async.DispatchError{Kind: async.DispatchUnavailable, Err: ctx.Err()}
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}

	out := make(async.Result, len(result))
	for k, v := range result {
		out[k] = v
	}
	return out, nil
}

// Calls returns copies of the jobs dispatched so far.
func (s *Stub) Calls() []*async.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*async.Job, len(s.calls))
	copy(out, s.calls)
	return out
}

var _ async.Dispatcher = (*Stub)(nil)
