// Package cadence computes when a recurring schedule fires next.
//
// Everything here works in UTC. NextRun is total: a malformed time of day or an
// unknown cadence still produces an instant, so callers that need strict input
// must validate with ParseTimeOfDay first.
package cadence

import (
	"strconv"
	"strings"
	"time"
)

// Cadence is the recurrence pattern of a schedule.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// Known reports whether c is one of the recognized cadences.
// Unknown cadences are stored as given and recur daily.
func (c Cadence) Known() bool {
	switch c {
	case Daily, Weekly, Monthly:
		return true
	}
	return false
}

// FallbackHour is the UTC hour used when a time of day cannot be parsed.
const FallbackHour = 12

// weekdayIndex maps weekday names to a Monday-first index.
var weekdayIndex = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// WeekdayIndex returns the Monday-first index (monday=0 .. sunday=6) of a weekday
// name, matched case-insensitively.
func WeekdayIndex(name string) (int, bool) {
	idx, ok := weekdayIndex[strings.ToLower(strings.TrimSpace(name))]
	return idx, ok
}

// mondayIndex converts Go's Sunday-first weekday to a Monday-first index.
func mondayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// NextRun computes the next instant a schedule with the given cadence, time of
// day and weekday set should fire, strictly after now.
//
//   - daily (and unknown cadences): today at timeOfDay, or tomorrow if that has passed.
//   - weekly with weekdays: the nearest requested weekday at timeOfDay. Today counts
//     when timeOfDay is still ahead, so the result is always within 7 days.
//   - weekly without usable weekdays: today at timeOfDay plus one week.
//   - monthly: this month at timeOfDay, or the same day next month if that has
//     passed, clamped to the last day of a shorter month.
//
// A malformed timeOfDay yields tomorrow at FallbackHour:00.
func NextRun(c Cadence, timeOfDay string, weekdays []string, now time.Time) time.Time {
	now = now.UTC()

	hour, minute, ok := ParseTimeOfDay(timeOfDay)
	if !ok {
		d := now.AddDate(0, 0, 1)
		return time.Date(d.Year(), d.Month(), d.Day(), FallbackHour, 0, 0, 0, time.UTC)
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)

	switch c {
	case Weekly:
		return nextWeekly(today, weekdays, now)
	case Monthly:
		return nextMonthly(today, now)
	default:
		if !today.After(now) {
			return today.AddDate(0, 0, 1)
		}
		return today
	}
}

func nextWeekly(today time.Time, weekdays []string, now time.Time) time.Time {
	targets := make(map[int]bool, len(weekdays))
	for _, name := range weekdays {
		if idx, ok := WeekdayIndex(name); ok {
			targets[idx] = true
		}
	}
	if len(targets) == 0 {
		return today.AddDate(0, 0, 7)
	}

	current := mondayIndex(today.Weekday())
	if targets[current] && today.After(now) {
		return today
	}

	for idx := current + 1; idx < 7; idx++ {
		if targets[idx] {
			return today.AddDate(0, 0, idx-current)
		}
	}

	// Wrap into next week at the earliest requested day
	for idx := 0; idx <= current; idx++ {
		if targets[idx] {
			return today.AddDate(0, 0, 7-current+idx)
		}
	}
	return today.AddDate(0, 0, 7)
}

func nextMonthly(today time.Time, now time.Time) time.Time {
	if today.After(now) {
		return today
	}

	year, month := today.Year(), today.Month()+1
	if month > time.December {
		month = time.January
		year++
	}

	day := today.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, today.Hour(), today.Minute(), 0, 0, time.UTC)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
