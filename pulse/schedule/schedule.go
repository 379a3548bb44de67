// Package schedule owns recurring content schedules: their lifecycle, the
// next-run bookkeeping, and firing due schedules into generation jobs.
package schedule

import (
	"strings"
	"time"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

// Status is whether a schedule fires.
type Status string

const (
	StatusActive Status = "active"
	StatusPaused Status = "paused"
)

// IsValid reports whether s is active or paused.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusPaused
}

const (
	// DefaultDuration is the video length in seconds when a schedule names none
	DefaultDuration = 30
	// InitialSuccessRate is reported before a schedule has any runs
	InitialSuccessRate = 100.0
)

// Schedule is a recurring request for persona-driven content.
type Schedule struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	PersonaID      string          `json:"persona_id"`
	Cadence        cadence.Cadence `json:"cadence"`
	TimeOfDay      string          `json:"time_of_day"`
	Weekdays       []string        `json:"weekdays"`
	Platforms      []string        `json:"platforms"`
	Theme          string          `json:"theme"`
	Duration       int             `json:"duration"`
	AutoPost       bool            `json:"auto_post"`
	Status         Status          `json:"status"`
	NextRun        time.Time       `json:"next_run"`
	LastRun        *time.Time      `json:"last_run,omitempty"`
	TotalRuns      int             `json:"total_runs"`
	SuccessfulRuns int             `json:"successful_runs"`
	SuccessRate    float64         `json:"success_rate"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Clone returns a deep copy.
func (s *Schedule) Clone() *Schedule {
	if s == nil {
		return nil
	}
	c := *s
	c.Weekdays = append([]string{}, s.Weekdays...)
	c.Platforms = append([]string{}, s.Platforms...)
	if s.LastRun != nil {
		t := *s.LastRun
		c.LastRun = &t
	}
	return &c
}

// recompute sets NextRun from the schedule's timing fields.
func (s *Schedule) recompute(now time.Time) {
	s.NextRun = cadence.NextRun(s.Cadence, s.TimeOfDay, s.Weekdays, now)
}

// recordRun folds one finished run into the history counters.
func (s *Schedule) recordRun(succeeded bool, at time.Time) {
	at = at.UTC()
	s.LastRun = &at
	s.TotalRuns++
	if succeeded {
		s.SuccessfulRuns++
	}
	s.SuccessRate = successRate(s.SuccessfulRuns, s.TotalRuns)
}

// successRate is the percentage of successful runs, rounded to one decimal.
func successRate(successful, total int) float64 {
	if total == 0 {
		return InitialSuccessRate
	}
	pct := float64(successful) * 100 / float64(total)
	return float64(int(pct*10+0.5)) / 10
}

// Spec describes a schedule to create.
type Spec struct {
	Name      string          `json:"name"`
	PersonaID string          `json:"persona_id"`
	Cadence   cadence.Cadence `json:"cadence"`
	TimeOfDay string          `json:"time_of_day"`
	Weekdays  []string        `json:"weekdays,omitempty"`
	Platforms []string        `json:"platforms"`
	Theme     string          `json:"theme,omitempty"`
	Duration  *int            `json:"duration,omitempty"`
	AutoPost  *bool           `json:"auto_post,omitempty"`
	Status    Status          `json:"status,omitempty"`
}

// Validate checks required fields and boundary formats.
func (s Spec) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return errors.MissingField("name")
	case strings.TrimSpace(s.PersonaID) == "":
		return errors.MissingField("persona_id")
	case strings.TrimSpace(string(s.Cadence)) == "":
		return errors.MissingField("cadence")
	case strings.TrimSpace(s.TimeOfDay) == "":
		return errors.MissingField("time_of_day")
	case len(s.Platforms) == 0:
		return errors.MissingField("platforms")
	}
	if err := validateTimeOfDay(s.TimeOfDay); err != nil {
		return err
	}
	if err := validateWeekdays(s.Weekdays); err != nil {
		return err
	}
	if s.Duration != nil && *s.Duration <= 0 {
		return errors.NewFieldError("duration", "must be positive, got %d", *s.Duration)
	}
	if s.Status != "" && !s.Status.IsValid() {
		return errors.NewFieldError("status", "must be active or paused, got %q", string(s.Status))
	}
	return nil
}

// build turns a validated spec into a new schedule.
func (s Spec) build(id string, now time.Time) *Schedule {
	now = now.UTC()
	sched := &Schedule{
		ID:          id,
		Name:        strings.TrimSpace(s.Name),
		PersonaID:   strings.TrimSpace(s.PersonaID),
		Cadence:     s.Cadence,
		TimeOfDay:   strings.TrimSpace(s.TimeOfDay),
		Weekdays:    normalizeWeekdays(s.Weekdays),
		Platforms:   append([]string{}, s.Platforms...),
		Theme:       s.Theme,
		Duration:    DefaultDuration,
		AutoPost:    true,
		Status:      StatusActive,
		SuccessRate: InitialSuccessRate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if s.Duration != nil {
		sched.Duration = *s.Duration
	}
	if s.AutoPost != nil {
		sched.AutoPost = *s.AutoPost
	}
	if s.Status != "" {
		sched.Status = s.Status
	}
	sched.recompute(now)
	return sched
}

// Patch carries the fields an update may change. Nil means unchanged.
type Patch struct {
	Name      *string          `json:"name,omitempty"`
	PersonaID *string          `json:"persona_id,omitempty"`
	Cadence   *cadence.Cadence `json:"cadence,omitempty"`
	TimeOfDay *string          `json:"time_of_day,omitempty"`
	Weekdays  *[]string        `json:"weekdays,omitempty"`
	Platforms *[]string        `json:"platforms,omitempty"`
	Theme     *string          `json:"theme,omitempty"`
	Duration  *int             `json:"duration,omitempty"`
	AutoPost  *bool            `json:"auto_post,omitempty"`
	Status    *Status          `json:"status,omitempty"`
}

// TimingChanged reports whether the patch touches a field next_run depends on.
func (p Patch) TimingChanged() bool {
	return p.Cadence != nil || p.TimeOfDay != nil || p.Weekdays != nil
}

// Validate checks every present field.
func (p Patch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return errors.NewFieldError("name", "must not be empty")
	}
	if p.PersonaID != nil && strings.TrimSpace(*p.PersonaID) == "" {
		return errors.NewFieldError("persona_id", "must not be empty")
	}
	if p.Cadence != nil && strings.TrimSpace(string(*p.Cadence)) == "" {
		return errors.NewFieldError("cadence", "must not be empty")
	}
	if p.TimeOfDay != nil {
		if err := validateTimeOfDay(*p.TimeOfDay); err != nil {
			return err
		}
	}
	if p.Weekdays != nil {
		if err := validateWeekdays(*p.Weekdays); err != nil {
			return err
		}
	}
	if p.Platforms != nil && len(*p.Platforms) == 0 {
		return errors.NewFieldError("platforms", "must name at least one platform")
	}
	if p.Duration != nil && *p.Duration <= 0 {
		return errors.NewFieldError("duration", "must be positive, got %d", *p.Duration)
	}
	if p.Status != nil && !p.Status.IsValid() {
		return errors.NewFieldError("status", "must be active or paused, got %q", string(*p.Status))
	}
	return nil
}

// apply writes the patch onto s, recomputing next_run when timing changed.
func (p Patch) apply(s *Schedule, now time.Time) {
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.PersonaID != nil {
		s.PersonaID = strings.TrimSpace(*p.PersonaID)
	}
	if p.Cadence != nil {
		s.Cadence = *p.Cadence
	}
	if p.TimeOfDay != nil {
		s.TimeOfDay = strings.TrimSpace(*p.TimeOfDay)
	}
	if p.Weekdays != nil {
		s.Weekdays = normalizeWeekdays(*p.Weekdays)
	}
	if p.Platforms != nil {
		s.Platforms = append([]string{}, (*p.Platforms)...)
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.Duration != nil {
		s.Duration = *p.Duration
	}
	if p.AutoPost != nil {
		s.AutoPost = *p.AutoPost
	}
	if p.Status != nil {
		s.Status = *p.Status
	}
	if p.TimingChanged() {
		s.recompute(now)
	}
	s.UpdatedAt = now.UTC()
}

func validateTimeOfDay(s string) error {
	if _, _, ok := cadence.ParseTimeOfDay(strings.TrimSpace(s)); !ok {
		return errors.NewFieldError("time_of_day", "must be HH:MM in 24-hour time, got %q", s)
	}
	return nil
}

func validateWeekdays(days []string) error {
	for _, d := range days {
		if _, ok := cadence.WeekdayIndex(d); !ok {
			return errors.NewFieldError("weekdays", "unknown weekday %q", d)
		}
	}
	return nil
}

// normalizeWeekdays lowercases names and drops duplicates, keeping order.
func normalizeWeekdays(days []string) []string {
	out := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		d = strings.ToLower(strings.TrimSpace(d))
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
