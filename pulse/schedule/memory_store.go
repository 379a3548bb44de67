package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
)

// MemoryStore keeps schedules in process memory behind one mutex.
type MemoryStore struct {
	mu        sync.Mutex
	schedules map[string]*Schedule
	seq       int64
}

// NewMemoryStore creates an empty in-memory schedule store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{schedules: make(map[string]*Schedule)}
}

func (st *MemoryStore) NextID(_ context.Context) (string, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.seq++
	return FormatID(st.seq), nil
}

func (st *MemoryStore) Create(_ context.Context, s *Schedule) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.schedules[s.ID]; exists {
		return errors.Wrapf(errors.ErrConflict, "schedule %s already exists", s.ID)
	}
	st.schedules[s.ID] = s.Clone()
	if n, ok := idSequence(s.ID); ok && n > st.seq {
		st.seq = n
	}
	return nil
}

func (st *MemoryStore) Get(_ context.Context, id string) (*Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.schedules[id]
	if !ok {
		return nil, errors.NewNotFoundError("schedule %s", id)
	}
	return s.Clone(), nil
}

func (st *MemoryStore) List(_ context.Context) ([]*Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*Schedule, 0, len(st.schedules))
	for _, s := range st.schedules {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *MemoryStore) ListDue(_ context.Context, now time.Time) ([]*Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var out []*Schedule
	for _, s := range st.schedules {
		if s.Status == StatusActive && !s.NextRun.After(now) {
			out = append(out, s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextRun.Equal(out[j].NextRun) {
			return out[i].NextRun.Before(out[j].NextRun)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (st *MemoryStore) Update(_ context.Context, id string, fn func(*Schedule) error) (*Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, ok := st.schedules[id]
	if !ok {
		return nil, errors.NewNotFoundError("schedule %s", id)
	}
	working := stored.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id
	st.schedules[id] = working
	return working.Clone(), nil
}

func (st *MemoryStore) Delete(_ context.Context, id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.schedules[id]; !ok {
		return errors.NewNotFoundError("schedule %s", id)
	}
	delete(st.schedules, id)
	return nil
}
