package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	bstest "github.com/buzzsnip/buzzsnip/internal/testing"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
	"github.com/buzzsnip/buzzsnip/pulse/metrics"
)

// outcome is one RecordOutcome call
type outcome struct {
	scheduleID string
	succeeded  bool
	at         time.Time
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []outcome
	err      error
}

func (r *fakeRecorder) RecordOutcome(_ context.Context, scheduleID string, succeeded bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome{scheduleID, succeeded, at})
	return r.err
}

func (r *fakeRecorder) recorded() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outcome(nil), r.outcomes...)
}

func newTestManager(t *testing.T, ceiling int) (*Manager, *cadence.FixedClock) {
	t.Helper()
	clock := cadence.NewFixedClock(testNow)
	m := NewManager(NewMemoryStore(), clock, ManagerConfig{Ceiling: ceiling, MaxDuration: 60}, zap.NewNop().Sugar())
	return m, clock
}

func audioRequest() JobRequest {
	return JobRequest{Kind: KindAudio, Params: Params{Script: "hello", VoiceType: "warm", PersonaID: "persona_1"}}
}

func TestManagerSubmit(t *testing.T) {
	m, _ := newTestManager(t, 3)
	ctx := context.Background()

	job, err := m.Submit(ctx, JobRequest{
		Kind:       KindAutomated,
		Params:     Params{PersonaID: "persona_1", Theme: "tech", Duration: 30},
		ScheduleID: "schedule_001",
	})
	require.NoError(t, err)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, testNow, job.CreatedAt)
	assert.Equal(t, []string{"youtube"}, job.Platforms)

	stored, err := m.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job, stored)
	assert.Equal(t, "schedule_001", stored.ScheduleID)
}

func TestManagerSubmitInvalidCreatesNothing(t *testing.T) {
	m, _ := newTestManager(t, 3)
	ctx := context.Background()

	_, err := m.Submit(ctx, JobRequest{Kind: KindVideo, Params: Params{AudioURL: "a"}})
	require.Error(t, err)
	assert.Equal(t, "face_url", errors.FieldOf(err))

	_, err = m.Submit(ctx, JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "t", Duration: 90}})
	assert.True(t, errors.IsInvalidRequestError(err), "duration over max_video_duration")

	jobs, err := m.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestManagerAdmissionCeiling(t *testing.T) {
	m, _ := newTestManager(t, 2)
	ctx := context.Background()

	first, err := m.Submit(ctx, audioRequest())
	require.NoError(t, err)
	_, err = m.Submit(ctx, audioRequest())
	require.NoError(t, err)

	_, err = m.Submit(ctx, audioRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCapacityError(err))

	jobs, err := m.List(ctx, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, jobs, 2, "rejected requests leave no record")

	// A finished job frees its slot
	_, err = m.Fail(ctx, first.ID, "cancelled by operator")
	require.NoError(t, err)
	_, err = m.Submit(ctx, audioRequest())
	assert.NoError(t, err)
}

// TestTASBotFloodsAdmission: TAS Bot fires twenty frame-perfect submits at
// once and the ceiling still holds exactly.
func TestTASBotFloodsAdmission(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return NewSQLStore(bstest.CreateTestDB(t)) },
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			m := NewManager(newStore(t), cadence.NewFixedClock(testNow), ManagerConfig{Ceiling: 3}, zap.NewNop().Sugar())

			var wg sync.WaitGroup
			var mu sync.Mutex
			admitted, rejected := 0, 0
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := m.Submit(context.Background(), audioRequest())
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						admitted++
					} else if errors.IsCapacityError(err) {
						rejected++
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 3, admitted)
			assert.Equal(t, 17, rejected)
		})
	}
}

func TestManagerLifecycleRecordsScheduleOutcome(t *testing.T) {
	m, clock := newTestManager(t, 3)
	rec := &fakeRecorder{}
	m.SetRecorder(rec)
	ctx := context.Background()

	job, err := m.Submit(ctx, JobRequest{
		Kind:       KindAutomated,
		Params:     Params{PersonaID: "p", Theme: "t", Duration: 30},
		ScheduleID: "schedule_002",
	})
	require.NoError(t, err)

	clock.Advance(time.Second)
	started, err := m.Start(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusProcessing, started.Status)

	progressed, err := m.UpdateProgress(ctx, job.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, 60, progressed.Progress)

	clock.Advance(time.Minute)
	done, err := m.Complete(ctx, job.ID, Result{"video_url": "/media/v.mp4"})
	require.NoError(t, err)
	assert.Equal(t, 100, done.Progress)

	require.Equal(t, []outcome{{"schedule_002", true, testNow.Add(61 * time.Second)}}, rec.recorded())

	_, err = m.Fail(ctx, job.ID, "late failure")
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition), "terminal jobs never change")
	assert.Len(t, rec.recorded(), 1)
}

func TestManagerFailReportsUnsuccessfulOutcome(t *testing.T) {
	m, _ := newTestManager(t, 3)
	rec := &fakeRecorder{err: errors.New("schedule deleted")}
	m.SetRecorder(rec)
	ctx := context.Background()

	job, err := m.Submit(ctx, JobRequest{Kind: KindFace, Params: Params{PersonaID: "p"}, ScheduleID: "schedule_009"})
	require.NoError(t, err)

	failed, err := m.Fail(ctx, job.ID, "generation failed: HTTP 500")
	require.NoError(t, err, "recorder errors do not undo the transition")
	assert.Equal(t, JobStatusFailed, failed.Status)

	out := rec.recorded()
	require.Len(t, out, 1)
	assert.False(t, out[0].succeeded)
}

func TestManagerJobsWithoutScheduleSkipRecorder(t *testing.T) {
	m, _ := newTestManager(t, 3)
	rec := &fakeRecorder{}
	m.SetRecorder(rec)
	ctx := context.Background()

	job, err := m.Submit(ctx, audioRequest())
	require.NoError(t, err)
	_, err = m.Fail(ctx, job.ID, "x")
	require.NoError(t, err)
	assert.Empty(t, rec.recorded())
}

func TestManagerGetUnknown(t *testing.T) {
	m, _ := newTestManager(t, 3)
	_, err := m.Get(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))

	_, err = m.Start(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestManagerAwait(t *testing.T) {
	m, _ := newTestManager(t, 3)
	ctx := context.Background()

	job, err := m.Submit(ctx, audioRequest())
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = m.Start(ctx, job.ID)
		_, _ = m.Complete(ctx, job.ID, Result{"audio_url": "/media/a.wav"})
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	done, err := m.Await(waitCtx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, done.Status)
	assert.Equal(t, "/media/a.wav", done.Result["audio_url"])
}

func TestManagerAwaitHonorsContext(t *testing.T) {
	m, _ := newTestManager(t, 3)
	job, err := m.Submit(context.Background(), audioRequest())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	last, err := m.Await(ctx, job.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, JobStatusQueued, last.Status)
}

func TestManagerSubscribe(t *testing.T) {
	m, _ := newTestManager(t, 3)
	updates := m.Subscribe()
	defer m.Unsubscribe(updates)

	job, err := m.Submit(context.Background(), audioRequest())
	require.NoError(t, err)
	_, err = m.Start(context.Background(), job.ID)
	require.NoError(t, err)

	first := <-updates
	second := <-updates
	assert.Equal(t, JobStatusQueued, first.Status)
	assert.Equal(t, JobStatusProcessing, second.Status)

	m.Unsubscribe(updates)
	_, err = m.Fail(context.Background(), job.ID, "x")
	require.NoError(t, err)
	assert.Len(t, updates, 0)
}

func TestManagerStatsAndCleanup(t *testing.T) {
	m, clock := newTestManager(t, 5)
	ctx := context.Background()

	old, err := m.Submit(ctx, audioRequest())
	require.NoError(t, err)
	_, err = m.Fail(ctx, old.ID, "x")
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	_, err = m.Submit(ctx, audioRequest())
	require.NoError(t, err)

	stats, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Queued: 1, Failed: 1, Total: 2, Ceiling: 5}, *stats)

	removed, err := m.Cleanup(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	stats, err = m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
}

func TestManagerRuntimeSettings(t *testing.T) {
	m, _ := newTestManager(t, 3)

	m.SetCeiling(7)
	assert.Equal(t, 7, m.Ceiling())
	m.SetCeiling(0)
	assert.Equal(t, DefaultCeiling, m.Ceiling())

	m.SetMaxDuration(-1)
	assert.Equal(t, 0, m.MaxDuration())
	_, err := m.Submit(context.Background(), JobRequest{Kind: KindAutomated, Params: Params{PersonaID: "p", Theme: "t", Duration: 600}})
	assert.NoError(t, err)
}

func TestManagerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := newTestManager(t, 1)
	m.SetMetrics(metrics.New(reg))
	ctx := context.Background()

	_, err := m.Submit(ctx, audioRequest())
	require.NoError(t, err)
	_, err = m.Submit(ctx, audioRequest())
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := make(map[string]float64)
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["buzzsnip_jobs_submitted_total"])
	assert.Equal(t, 1.0, values["buzzsnip_jobs_admission_rejected_total"])
}
