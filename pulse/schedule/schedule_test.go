package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buzzsnip/buzzsnip/errors"
	"github.com/buzzsnip/buzzsnip/pulse/cadence"
)

// testNow is a Wednesday morning
var testNow = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

func techTips() Spec {
	return Spec{
		Name:      "Tech Tips",
		PersonaID: "tech_guru",
		Cadence:   cadence.Daily,
		TimeOfDay: "14:00",
		Platforms: []string{"youtube"},
		Theme:     "ai_tips",
	}
}

func TestSpecValidateMissingFields(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Spec)
	}{
		{"name", func(s *Spec) { s.Name = "  " }},
		{"persona_id", func(s *Spec) { s.PersonaID = "" }},
		{"cadence", func(s *Spec) { s.Cadence = "" }},
		{"time_of_day", func(s *Spec) { s.TimeOfDay = "" }},
		{"platforms", func(s *Spec) { s.Platforms = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			spec := techTips()
			tt.mutate(&spec)
			err := spec.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsInvalidRequestError(err))
			assert.Equal(t, tt.field, errors.FieldOf(err))
		})
	}
}

func TestSpecValidateFormats(t *testing.T) {
	zero := 0
	tests := []struct {
		name   string
		field  string
		mutate func(*Spec)
	}{
		{"hour out of range", "time_of_day", func(s *Spec) { s.TimeOfDay = "25:00" }},
		{"not a time", "time_of_day", func(s *Spec) { s.TimeOfDay = "noon" }},
		{"unknown weekday", "weekdays", func(s *Spec) { s.Weekdays = []string{"monday", "caturday"} }},
		{"zero duration", "duration", func(s *Spec) { s.Duration = &zero }},
		{"bad status", "status", func(s *Spec) { s.Status = "archived" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := techTips()
			tt.mutate(&spec)
			assert.Equal(t, tt.field, errors.FieldOf(spec.Validate()))
		})
	}

	assert.NoError(t, techTips().Validate())
}

func TestSpecBuildDefaults(t *testing.T) {
	s := techTips().build("schedule_007", testNow)

	assert.Equal(t, "schedule_007", s.ID)
	assert.Equal(t, DefaultDuration, s.Duration)
	assert.True(t, s.AutoPost)
	assert.Equal(t, StatusActive, s.Status)
	assert.Equal(t, 0, s.TotalRuns)
	assert.Equal(t, InitialSuccessRate, s.SuccessRate)
	assert.Nil(t, s.LastRun)
	assert.Equal(t, testNow, s.CreatedAt)
	assert.Equal(t, time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC), s.NextRun)
}

func TestSpecBuildOverrides(t *testing.T) {
	duration := 45
	autoPost := false
	spec := techTips()
	spec.Duration = &duration
	spec.AutoPost = &autoPost
	spec.Status = StatusPaused
	spec.Cadence = cadence.Weekly
	spec.Weekdays = []string{"Friday", "friday", "MONDAY"}

	s := spec.build("schedule_001", testNow)
	assert.Equal(t, 45, s.Duration)
	assert.False(t, s.AutoPost)
	assert.Equal(t, StatusPaused, s.Status)
	assert.Equal(t, []string{"friday", "monday"}, s.Weekdays)
	assert.Equal(t, time.Date(2024, 3, 8, 14, 0, 0, 0, time.UTC), s.NextRun)
}

func TestPatchApply(t *testing.T) {
	s := techTips().build("schedule_001", testNow)
	original := s.NextRun
	later := testNow.Add(time.Hour)

	name := "Renamed"
	Patch{Name: &name}.apply(s, later)
	assert.Equal(t, "Renamed", s.Name)
	assert.Equal(t, original, s.NextRun, "non-timing fields keep next_run")
	assert.Equal(t, later, s.UpdatedAt)

	platforms := []string{"instagram"}
	patch := Patch{Platforms: &platforms}
	assert.False(t, patch.TimingChanged())
	patch.apply(s, later.Add(time.Hour))
	assert.Equal(t, []string{"instagram"}, s.Platforms)
	assert.Equal(t, original, s.NextRun, "platforms alone keep next_run")

	tod := "09:30"
	Patch{TimeOfDay: &tod}.apply(s, later)
	assert.Equal(t, time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC), s.NextRun)

	weekly := cadence.Weekly
	days := []string{"Saturday"}
	Patch{Cadence: &weekly, Weekdays: &days}.apply(s, later)
	assert.Equal(t, []string{"saturday"}, s.Weekdays)
	assert.Equal(t, time.Date(2024, 3, 9, 9, 30, 0, 0, time.UTC), s.NextRun)
}

func TestPatchValidate(t *testing.T) {
	empty := ""
	badTime := "7pm"
	noPlatforms := []string{}
	negative := -5
	archived := Status("archived")

	tests := []struct {
		name  string
		patch Patch
		field string
	}{
		{"empty name", Patch{Name: &empty}, "name"},
		{"bad time", Patch{TimeOfDay: &badTime}, "time_of_day"},
		{"no platforms", Patch{Platforms: &noPlatforms}, "platforms"},
		{"negative duration", Patch{Duration: &negative}, "duration"},
		{"bad status", Patch{Status: &archived}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.field, errors.FieldOf(tt.patch.Validate()))
		})
	}
	assert.NoError(t, Patch{}.Validate())
}

func TestRecordRun(t *testing.T) {
	s := techTips().build("schedule_001", testNow)

	s.recordRun(true, testNow)
	s.recordRun(true, testNow)
	s.recordRun(false, testNow.Add(time.Hour))

	assert.Equal(t, 3, s.TotalRuns)
	assert.Equal(t, 2, s.SuccessfulRuns)
	assert.Equal(t, 66.7, s.SuccessRate)
	require.NotNil(t, s.LastRun)
	assert.Equal(t, testNow.Add(time.Hour), *s.LastRun)
}

func TestSuccessRate(t *testing.T) {
	assert.Equal(t, 100.0, successRate(0, 0))
	assert.Equal(t, 96.0, successRate(24, 25))
	assert.Equal(t, 33.3, successRate(1, 3))
	assert.Equal(t, 0.0, successRate(0, 4))
}

func TestScheduleCloneIsDeep(t *testing.T) {
	s := techTips().build("schedule_001", testNow)
	s.recordRun(true, testNow)

	c := s.Clone()
	c.Platforms[0] = "tiktok"
	*c.LastRun = testNow.Add(time.Hour)

	assert.Equal(t, "youtube", s.Platforms[0])
	assert.Equal(t, testNow, *s.LastRun)
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "schedule_001", FormatID(1))
	assert.Equal(t, "schedule_1234", FormatID(1234))

	n, ok := idSequence("schedule_042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	_, ok = idSequence("custom")
	assert.False(t, ok)
	_, ok = idSequence("schedule_abc")
	assert.False(t, ok)
}
