package schedule

import (
	"context"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/internal/util"
	"github.com/buzzsnip/buzzsnip/logger"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

// seed is a default schedule with its recorded history.
type seed struct {
	spec           Spec
	id             string
	lastRun        time.Time
	totalRuns      int
	successfulRuns int
}

var defaultSeeds = []seed{
	{
		id: FormatID(1),
		spec: Spec{
			Name:      "Daily Tech Tips",
			PersonaID: "tech_guru_hindi",
			Cadence:   cadence.Daily,
			TimeOfDay: "14:00",
			Platforms: []string{"youtube", "instagram"},
			Theme:     "ai_tips",
			Duration:  util.Ptr(30),
		},
		lastRun:        time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC),
		totalRuns:      25,
		successfulRuns: 24,
	},
	{
		id: FormatID(2),
		spec: Spec{
			Name:      "Weekly Workout",
			PersonaID: "fitness_coach",
			Cadence:   cadence.Weekly,
			TimeOfDay: "08:00",
			Weekdays:  []string{"monday", "wednesday", "friday"},
			Platforms: []string{"instagram"},
			Theme:     "workout_tips",
			Duration:  util.Ptr(25),
		},
		lastRun:        time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC),
		totalRuns:      12,
		successfulRuns: 12,
	},
}

// SeedDefaults inserts the default schedules that are not already present.
// Returns how many were inserted.
func (m *Manager) SeedDefaults(ctx context.Context) (int, error) {
	now := m.clock.Now()
	inserted := 0
	for _, sd := range defaultSeeds {
		_, err := m.store.Get(ctx, sd.id)
		if err == nil {
			continue
		}
		if !errors.IsNotFoundError(err) {
			return inserted, errors.Wrapf(err, "failed to check seed %s", sd.id)
		}

		s := sd.spec.build(sd.id, now)
		lastRun := sd.lastRun
		s.LastRun = &lastRun
		s.TotalRuns = sd.totalRuns
		s.SuccessfulRuns = sd.successfulRuns
		s.SuccessRate = successRate(sd.successfulRuns, sd.totalRuns)

		if err := m.store.Create(ctx, s); err != nil {
			return inserted, errors.Wrapf(err, "failed to seed schedule %s", sd.id)
		}
		inserted++
		m.logger.Infow("Seeded default schedule", logger.FieldScheduleID, s.ID, "name", s.Name)
	}
	return inserted, nil
}
