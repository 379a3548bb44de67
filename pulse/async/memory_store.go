package async

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
)

// MemoryStore keeps jobs in process memory. A single mutex serializes every
// read-modify-write, which gives the same per-job atomicity as SQLStore.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	seq  map[string]int64 // insertion order, tie-break for equal created_at
	next int64
}

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*Job),
		seq:  make(map[string]int64),
	}
}

func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return errors.Wrapf(errors.ErrConflict, "job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	s.next++
	s.seq[job.ID] = s.next
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	return job.Clone(), nil
}

// sorted returns matching jobs oldest first. Caller holds s.mu.
func (s *MemoryStore) sorted(match func(*Job) bool) []*Job {
	var out []*Job
	for _, j := range s.jobs {
		if match(j) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return s.seq[out[a].ID] < s.seq[out[b].ID]
	})
	return out
}

func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.sorted(func(j *Job) bool {
		if opts.Status != nil && j.Status != *opts.Status {
			return false
		}
		return opts.ScheduleID == "" || j.ScheduleID == opts.ScheduleID
	})

	limit := opts.limit()
	var out []*Job
	for i := len(matched) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, matched[i].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, j := range s.sorted(func(j *Job) bool { return j.Status.IsActive() }) {
		out = append(out, j.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.jobs[id]
	if !ok {
		return nil, errors.NewNotFoundError("job %s", id)
	}
	return s.apply(stored, fn)
}

func (s *MemoryStore) ClaimNext(_ context.Context, fn func(*Job) error) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.sorted(func(j *Job) bool { return j.Status == JobStatusQueued })
	if len(queued) == 0 {
		return nil, nil
	}
	return s.apply(queued[0], fn)
}

// apply runs fn on a copy and stores it only on success. Caller holds s.mu.
func (s *MemoryStore) apply(stored *Job, fn func(*Job) error) (*Job, error) {
	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	s.jobs[working.ID] = working
	return working.Clone(), nil
}

func (s *MemoryStore) FindActiveBySchedule(_ context.Context, scheduleID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.sorted(func(j *Job) bool {
		return j.ScheduleID == scheduleID && j.Status.IsActive()
	})
	if len(active) == 0 {
		return nil, nil
	}
	return active[len(active)-1].Clone(), nil
}

func (s *MemoryStore) CountByStatus(_ context.Context) (map[JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[JobStatus]int)
	for _, j := range s.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) CleanupOld(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, j := range s.jobs {
		if j.Status.IsTerminal() && j.UpdatedAt.Before(cutoff) {
			delete(s.jobs, id)
			delete(s.seq, id)
			removed++
		}
	}
	return removed, nil
}
