package schedule

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	bstest "github.com/buzzsnip/buzzsnip/internal/testing"
	"github.com/buzzsnip/buzzsnip/internal/util"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

type fixture struct {
	schedules *Manager
	jobs      *async.Manager
	clock     *cadence.FixedClock
}

func newFixture(t *testing.T, store Store, ceiling int) *fixture {
	t.Helper()
	clock := cadence.NewFixedClock(testNow)
	log := zap.NewNop().Sugar()
	jobs := async.NewManager(async.NewMemoryStore(), clock, async.ManagerConfig{Ceiling: ceiling, MaxDuration: 60}, log)
	schedules := NewManager(store, jobs, clock, log)
	jobs.SetRecorder(schedules)
	return &fixture{schedules: schedules, jobs: jobs, clock: clock}
}

func forEachFixture(t *testing.T, ceiling int, test func(t *testing.T, f *fixture)) {
	t.Run("sqlite", func(t *testing.T) {
		test(t, newFixture(t, NewSQLStore(bstest.CreateTestDB(t)), ceiling))
	})
	t.Run("memory", func(t *testing.T) {
		test(t, newFixture(t, NewMemoryStore(), ceiling))
	})
}

// at returns 2024-03-<day> hh:mm UTC
func at(day, hh, mm int) time.Time {
	return time.Date(2024, 3, day, hh, mm, 0, 0, time.UTC)
}

func TestManagerCreate(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)
		assert.Equal(t, "schedule_001", s.ID)
		assert.Equal(t, at(6, 14, 0), s.NextRun)

		got, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s, got)

		bad := techTips()
		bad.Platforms = nil
		_, err = f.schedules.Create(ctx, bad)
		assert.Equal(t, "platforms", errors.FieldOf(err))

		tooLong := techTips()
		tooLong.Duration = util.Ptr(90)
		_, err = f.schedules.Create(ctx, tooLong)
		assert.Equal(t, "duration", errors.FieldOf(err), "a duration every firing would reject")

		all, err := f.schedules.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1, "invalid specs store nothing")
	})
}

func TestManagerCreateUnknownCadenceRecursDaily(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		spec := techTips()
		spec.Cadence = "fortnightly"

		s, err := f.schedules.Create(context.Background(), spec)
		require.NoError(t, err)
		assert.Equal(t, cadence.Cadence("fortnightly"), s.Cadence)
		assert.Equal(t, at(6, 14, 0), s.NextRun, "today's slot is still ahead")

		f.clock.Set(at(6, 15, 0))
		tod := "14:00"
		updated, err := f.schedules.Update(context.Background(), s.ID, Patch{TimeOfDay: &tod})
		require.NoError(t, err)
		assert.Equal(t, at(7, 14, 0), updated.NextRun)
	})
}

func TestManagerUpdate(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		f.clock.Advance(time.Hour)
		theme := "gadgets"
		updated, err := f.schedules.Update(ctx, s.ID, Patch{Theme: &theme})
		require.NoError(t, err)
		assert.Equal(t, "gadgets", updated.Theme)
		assert.Equal(t, s.NextRun, updated.NextRun)
		assert.Equal(t, testNow.Add(time.Hour), updated.UpdatedAt)

		monthly := cadence.Monthly
		tod := "09:00"
		updated, err = f.schedules.Update(ctx, s.ID, Patch{Cadence: &monthly, TimeOfDay: &tod})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 4, 6, 9, 0, 0, 0, time.UTC), updated.NextRun)

		f.clock.Advance(time.Hour)
		platforms := []string{"instagram", "tiktok"}
		updated, err = f.schedules.Update(ctx, s.ID, Patch{Platforms: &platforms})
		require.NoError(t, err)
		assert.Equal(t, platforms, updated.Platforms)
		assert.Equal(t, time.Date(2024, 4, 6, 9, 0, 0, 0, time.UTC), updated.NextRun, "platforms alone keep next_run")

		bad := "25:61"
		_, err = f.schedules.Update(ctx, s.ID, Patch{TimeOfDay: &bad})
		assert.Equal(t, "time_of_day", errors.FieldOf(err))

		tooLong := 61
		_, err = f.schedules.Update(ctx, s.ID, Patch{Duration: &tooLong})
		assert.Equal(t, "duration", errors.FieldOf(err))

		_, err = f.schedules.Update(ctx, "schedule_404", Patch{Theme: &theme})
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestManagerSetStatus(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		paused, err := f.schedules.SetStatus(ctx, s.ID, StatusPaused)
		require.NoError(t, err)
		assert.Equal(t, StatusPaused, paused.Status)

		_, err = f.schedules.SetStatus(ctx, s.ID, "archived")
		assert.True(t, errors.IsInvalidRequestError(err))
		assert.Equal(t, "status", errors.FieldOf(err))

		_, err = f.schedules.SetStatus(ctx, s.ID, "")
		assert.Equal(t, "status", errors.FieldOf(err))

		_, err = f.schedules.SetStatus(ctx, "schedule_404", StatusActive)
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestManagerDelete(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		require.NoError(t, f.schedules.Delete(ctx, s.ID))
		assert.True(t, errors.IsNotFoundError(f.schedules.Delete(ctx, s.ID)))
	})
}

func TestManagerRunNow(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		spec := techTips()
		spec.Theme = ""
		s, err := f.schedules.Create(ctx, spec)
		require.NoError(t, err)

		job, err := f.schedules.RunNow(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, async.KindAutomated, job.Kind)
		assert.Equal(t, s.ID, job.ScheduleID)
		assert.Equal(t, "Tech Tips", job.Theme, "unthemed schedules run under their name")
		require.NotNil(t, job.AutoUpload)
		assert.True(t, *job.AutoUpload)

		after, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.NextRun, after.NextRun, "manual runs leave next_run alone")

		_, err = f.schedules.RunNow(ctx, "schedule_404")
		assert.True(t, errors.IsNotFoundError(err))
	})
}

func TestFireDueSubmitsAndAdvances(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)
		paused := techTips()
		paused.Status = StatusPaused
		_, err = f.schedules.Create(ctx, paused)
		require.NoError(t, err)

		report, err := f.schedules.FireDue(ctx, at(6, 13, 59))
		require.NoError(t, err)
		assert.Empty(t, report.Firings, "not due yet")

		report, err = f.schedules.FireDue(ctx, at(6, 14, 0))
		require.NoError(t, err)
		require.Len(t, report.Firings, 1, "paused schedules never fire")

		firing := report.Firings[0]
		assert.Equal(t, FireSubmitted, firing.Outcome)
		assert.Equal(t, s.ID, firing.ScheduleID)
		assert.Equal(t, at(7, 14, 0), firing.NextRun)

		job, err := f.jobs.Get(ctx, firing.JobID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, job.ScheduleID)
		assert.Equal(t, "tech_guru", job.PersonaID)
		assert.Equal(t, "ai_tips", job.Theme)
		assert.Equal(t, 30, job.Duration)
		assert.Equal(t, []string{"youtube"}, job.Platforms)

		stored, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, at(7, 14, 0), stored.NextRun)
		assert.Equal(t, 0, stored.TotalRuns, "runs are counted when the job finishes")
	})
}

func TestFireDueSkipsWhilePreviousJobActive(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		first, err := f.schedules.FireDue(ctx, at(6, 14, 0))
		require.NoError(t, err)
		require.Equal(t, 1, first.Count(FireSubmitted))

		// Yesterday's job is still queued when the next occurrence comes due
		report, err := f.schedules.FireDue(ctx, at(7, 14, 5))
		require.NoError(t, err)
		require.Len(t, report.Firings, 1)
		assert.Equal(t, FireSkipped, report.Firings[0].Outcome)
		assert.Equal(t, first.Firings[0].JobID, report.Firings[0].JobID)
		assert.Equal(t, at(8, 14, 0), report.Firings[0].NextRun)

		jobs, err := f.jobs.List(ctx, async.ListOptions{ScheduleID: s.ID})
		require.NoError(t, err)
		assert.Len(t, jobs, 1, "no duplicate job")
	})
}

func TestFireDueDefersAtCapacity(t *testing.T) {
	forEachFixture(t, 1, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		_, err = f.jobs.Submit(ctx, async.JobRequest{
			Kind:   async.KindFace,
			Params: async.Params{PersonaID: "someone_else"},
		})
		require.NoError(t, err)

		report, err := f.schedules.FireDue(ctx, at(6, 14, 0))
		require.NoError(t, err)
		require.Len(t, report.Firings, 1)
		assert.Equal(t, FireDeferred, report.Firings[0].Outcome)

		stored, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.NextRun, stored.NextRun, "retried on a later tick")
		assert.Equal(t, 0, stored.TotalRuns)

		due, err := f.schedules.FireDue(ctx, at(6, 14, 1))
		require.NoError(t, err)
		assert.Equal(t, 1, due.Count(FireDeferred), "still due")
	})
}

func TestFireDueRecordsSubmitFailure(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		// A config reload lowered the cap below the stored 30 seconds
		f.jobs.SetMaxDuration(20)

		report, err := f.schedules.FireDue(ctx, at(6, 14, 0))
		require.NoError(t, err)
		require.Len(t, report.Firings, 1)
		assert.Equal(t, FireFailed, report.Firings[0].Outcome)
		assert.NotEmpty(t, report.Firings[0].Error)

		stored, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, at(7, 14, 0), stored.NextRun)
		assert.Equal(t, 1, stored.TotalRuns)
		assert.Equal(t, 0, stored.SuccessfulRuns)
		assert.Equal(t, 0.0, stored.SuccessRate)
		require.NotNil(t, stored.LastRun)
		assert.Equal(t, at(6, 14, 0), *stored.LastRun)
	})
}

func TestFinishedJobUpdatesScheduleHistory(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		s, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)

		f.clock.Set(at(6, 14, 0))
		report, err := f.schedules.FireDue(ctx, f.clock.Now())
		require.NoError(t, err)
		jobID := report.Firings[0].JobID

		f.clock.Set(at(6, 14, 3))
		_, err = f.jobs.Start(ctx, jobID)
		require.NoError(t, err)
		_, err = f.jobs.Complete(ctx, jobID, async.Result{"video_url": "https://cdn.example/v.mp4"})
		require.NoError(t, err)

		stored, err := f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.TotalRuns)
		assert.Equal(t, 1, stored.SuccessfulRuns)
		assert.Equal(t, 100.0, stored.SuccessRate)
		require.NotNil(t, stored.LastRun)
		assert.Equal(t, at(6, 14, 3), *stored.LastRun)

		// A failed run through RunNow lowers the rate
		job, err := f.schedules.RunNow(ctx, s.ID)
		require.NoError(t, err)
		_, err = f.jobs.Fail(ctx, job.ID, "generation failed: HTTP 500")
		require.NoError(t, err)

		stored, err = f.schedules.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.TotalRuns)
		assert.Equal(t, 50.0, stored.SuccessRate)
	})
}

func TestRecordOutcomeForDeletedSchedule(t *testing.T) {
	f := newFixture(t, NewMemoryStore(), 3)
	assert.NoError(t, f.schedules.RecordOutcome(context.Background(), "schedule_404", true, testNow))
}

func TestRecordOutcomeStoreFailure(t *testing.T) {
	f := newFixture(t, failingStore{NewMemoryStore()}, 3)
	err := f.schedules.RecordOutcome(context.Background(), "schedule_001", true, testNow)
	assert.True(t, errors.IsStoreError(err))
}

// failingStore fails every update with a store error
type failingStore struct {
	*MemoryStore
}

func (failingStore) Update(context.Context, string, func(*Schedule) error) (*Schedule, error) {
	return nil, errors.MarkStore(fmt.Errorf("disk full"), "failed to update schedule")
}

func TestFireDueWithoutSubmitter(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil, cadence.NewFixedClock(testNow), zap.NewNop().Sugar())
	_, err := m.FireDue(context.Background(), testNow)
	assert.Error(t, err)
}

func TestManagerNext(t *testing.T) {
	f := newFixture(t, NewMemoryStore(), 3)
	ctx := context.Background()

	next, err := f.schedules.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)

	late := techTips()
	late.TimeOfDay = "20:00"
	early := techTips()
	early.TimeOfDay = "11:00"
	early.Status = StatusPaused
	_, err = f.schedules.Create(ctx, late)
	require.NoError(t, err)
	_, err = f.schedules.Create(ctx, early)
	require.NoError(t, err)
	soon, err := f.schedules.Create(ctx, techTips())
	require.NoError(t, err)

	next, err = f.schedules.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, soon.ID, next.ID, "paused schedules are ignored")
}

func TestSeedDefaults(t *testing.T) {
	forEachFixture(t, 3, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		n, err := f.schedules.SeedDefaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = f.schedules.SeedDefaults(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n, "seeding twice inserts nothing")

		tips, err := f.schedules.Get(ctx, "schedule_001")
		require.NoError(t, err)
		assert.Equal(t, "Daily Tech Tips", tips.Name)
		assert.Equal(t, 25, tips.TotalRuns)
		assert.Equal(t, 96.0, tips.SuccessRate)
		require.NotNil(t, tips.LastRun)
		assert.Equal(t, time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC), *tips.LastRun)

		workout, err := f.schedules.Get(ctx, "schedule_002")
		require.NoError(t, err)
		assert.Equal(t, []string{"monday", "wednesday", "friday"}, workout.Weekdays)
		assert.Equal(t, at(8, 8, 0), workout.NextRun, "Wednesday 08:00 has passed, Friday is next")
		assert.Equal(t, 100.0, workout.SuccessRate)

		created, err := f.schedules.Create(ctx, techTips())
		require.NoError(t, err)
		assert.Equal(t, "schedule_003", created.ID)
	})
}
