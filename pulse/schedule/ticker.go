package schedule

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/async"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

// JobStats reports job counts for the ticker's activity line.
// *async.Manager satisfies it.
type JobStats interface {
	Stats(ctx context.Context) (*async.Stats, error)
}

// Ticker periodically fires due schedules.
type Ticker struct {
	manager  *Manager
	jobs     JobStats
	clock    cadence.Clock
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger   *zap.SugaredLogger
	pulseLog *zap.SugaredLogger // Logger with Pulse symbol pre-attached

	mu              sync.Mutex
	running         bool
	lastTickAt      time.Time
	ticksSinceStart int64
	lastActiveWork  int // Track last active work count to detect changes
	lastReport      *FireReport
}

// TickerConfig contains configuration for the Pulse ticker
type TickerConfig struct {
	Interval time.Duration // How often to check for due schedules (default: 30 seconds)
}

// DefaultTickerConfig returns sensible defaults
func DefaultTickerConfig() TickerConfig {
	return TickerConfig{
		Interval: 30 * time.Second,
	}
}

// NewTicker creates a ticker bound to ctx. jobs may be nil, which disables
// the activity line.
func NewTicker(ctx context.Context, manager *Manager, jobs JobStats, cfg TickerConfig, log *zap.SugaredLogger) *Ticker {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickerConfig().Interval
	}
	if log == nil {
		log = logger.Logger
	}
	log = log.Named("pulse.ticker")
	tickerCtx, cancel := context.WithCancel(ctx)

	return &Ticker{
		manager:  manager,
		jobs:     jobs,
		clock:    manager.clock,
		interval: cfg.Interval,
		ctx:      tickerCtx,
		cancel:   cancel,
		logger:   log,
		pulseLog: logger.AddPulseSymbol(log),
	}
}

// Start begins the ticker loop
func (t *Ticker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run()
	t.pulseLog.Infow("Pulse ticker started", "interval", t.interval)
}

// Stop gracefully stops the ticker
func (t *Ticker) Stop() {
	t.cancel()
	t.wg.Wait()
	t.pulseLog.Infow("Pulse ticker stopped")
}

// run is the main ticker loop
func (t *Ticker) run() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.Tick(t.ctx); err != nil && t.ctx.Err() == nil {
				// Don't spam logs - log errors at warn level
				t.pulseLog.Warnw("Pulse tick error", logger.FieldError, err)
			}
		}
	}
}

// Tick runs one pass: fire due schedules, then log activity if it changed.
func (t *Ticker) Tick(ctx context.Context) error {
	now := t.clock.Now()

	report, err := t.manager.FireDue(ctx, now)

	t.mu.Lock()
	t.lastTickAt = now
	t.ticksSinceStart++
	if report != nil {
		t.lastReport = report
	}
	t.mu.Unlock()

	if err != nil {
		return errors.Wrap(err, "failed to fire due schedules")
	}
	if n := len(report.Firings); n > 0 {
		t.pulseLog.Infow("Pulse fired due schedules",
			logger.FieldCount, n,
			FireSubmitted, report.Count(FireSubmitted),
			FireSkipped, report.Count(FireSkipped),
			FireDeferred, report.Count(FireDeferred),
			FireFailed, report.Count(FireFailed))
	}

	t.logActivity(ctx, now)
	return nil
}

// logActivity logs the next due schedule whenever the active job count changes
func (t *Ticker) logActivity(ctx context.Context, now time.Time) {
	if t.jobs == nil {
		return
	}
	stats, err := t.jobs.Stats(ctx)
	if err != nil {
		t.pulseLog.Warnw("Failed to get job stats", logger.FieldError, err)
		return
	}
	activeWork := stats.Queued + stats.Processing

	t.mu.Lock()
	hasChanged := activeWork != t.lastActiveWork
	t.lastActiveWork = activeWork
	t.mu.Unlock()
	if !hasChanged {
		return
	}

	next, err := t.manager.Next(ctx)
	if err != nil {
		t.pulseLog.Warnw("Failed to get next schedule", logger.FieldError, err)
		return
	}
	t.pulseLog.Infow(activityMessage(activeWork, next, now))
}

// activityMessage renders the ticker's status line. One pulse symbol per five
// active jobs, capped at 60.
func activityMessage(activeWork int, next *Schedule, now time.Time) string {
	indicator := ""
	if activeWork > 0 {
		n := min(activeWork/5+1, 60)
		indicator = strings.TrimSpace(strings.Repeat(logger.SymPulse+" ", n)) + " "
	}

	if next == nil {
		if activeWork > 0 {
			return fmt.Sprintf("%sPulse - no active schedules, %d jobs active", indicator, activeWork)
		}
		return "Pulse - no active schedules"
	}

	until := max(next.NextRun.Sub(now), 0)
	msg := fmt.Sprintf("%sPulse - next schedule '%s' in %s", indicator, next.Name, until.Round(time.Second))
	if activeWork > 0 {
		msg += fmt.Sprintf(", %d jobs active", activeWork)
	}
	return msg
}

// TickerStats is a snapshot of ticker activity.
type TickerStats struct {
	LastTickAt      time.Time     `json:"last_tick_at"`
	TicksSinceStart int64         `json:"ticks_since_start"`
	Interval        time.Duration `json:"interval"`
	LastReport      *FireReport   `json:"last_report,omitempty"`
}

// GetStats returns ticker statistics
func (t *Ticker) GetStats() TickerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return TickerStats{
		LastTickAt:      t.lastTickAt,
		TicksSinceStart: t.ticksSinceStart,
		Interval:        t.interval,
		LastReport:      t.lastReport,
	}
}
