package schedule

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/pulse/async"
)

func TestTickerTick(t *testing.T) {
	f := newFixture(t, NewMemoryStore(), 3)
	ctx := context.Background()
	_, err := f.schedules.Create(ctx, techTips())
	require.NoError(t, err)

	ticker := NewTicker(ctx, f.schedules, f.jobs, TickerConfig{Interval: time.Hour}, zap.NewNop().Sugar())

	require.NoError(t, ticker.Tick(ctx))
	stats := ticker.GetStats()
	assert.Equal(t, int64(1), stats.TicksSinceStart)
	assert.Equal(t, testNow, stats.LastTickAt)
	require.NotNil(t, stats.LastReport)
	assert.Empty(t, stats.LastReport.Firings)

	f.clock.Set(at(6, 14, 0))
	require.NoError(t, ticker.Tick(ctx))
	stats = ticker.GetStats()
	assert.Equal(t, int64(2), stats.TicksSinceStart)
	assert.Equal(t, 1, stats.LastReport.Count(FireSubmitted))

	jobs, err := f.jobs.List(ctx, async.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestCronosTickerFiresOnInterval(t *testing.T) {
	f := newFixture(t, NewMemoryStore(), 3)
	ctx := context.Background()
	_, err := f.schedules.Create(ctx, techTips())
	require.NoError(t, err)
	f.clock.Set(at(6, 15, 0))

	ticker := NewTicker(ctx, f.schedules, nil, TickerConfig{Interval: 10 * time.Millisecond}, zap.NewNop().Sugar())
	ticker.Start()
	ticker.Start() // second start is a no-op

	assert.Eventually(t, func() bool {
		jobs, err := f.jobs.List(ctx, async.ListOptions{})
		return err == nil && len(jobs) == 1
	}, time.Second, 10*time.Millisecond)
	ticker.Stop()

	assert.Positive(t, ticker.GetStats().TicksSinceStart)
}

func TestDefaultTickerConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, DefaultTickerConfig().Interval)

	f := newFixture(t, NewMemoryStore(), 3)
	ticker := NewTicker(context.Background(), f.schedules, nil, TickerConfig{}, nil)
	assert.Equal(t, 30*time.Second, ticker.GetStats().Interval)
}

func TestActivityMessage(t *testing.T) {
	next := &Schedule{Name: "Daily Tech Tips", NextRun: testNow.Add(90 * time.Minute)}

	assert.Equal(t, "Pulse - no active schedules", activityMessage(0, nil, testNow))
	assert.Equal(t, "꩜ Pulse - no active schedules, 2 jobs active", activityMessage(2, nil, testNow))
	assert.Equal(t, "Pulse - next schedule 'Daily Tech Tips' in 1h30m0s", activityMessage(0, next, testNow))
	assert.Equal(t, "꩜ ꩜ ꩜ Pulse - next schedule 'Daily Tech Tips' in 1h30m0s, 12 jobs active",
		activityMessage(12, next, testNow))

	overdue := activityMessage(0, next, testNow.Add(3*time.Hour))
	assert.Contains(t, overdue, "in 0s")

	flood := activityMessage(1000, nil, testNow)
	assert.Equal(t, 60, strings.Count(flood, "꩜"), "indicator is capped")
}
