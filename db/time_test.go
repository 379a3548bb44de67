package db

import (
	"database/sql"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTime_SortsChronologically(t *testing.T) {
	base := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	times := []time.Time{
		base.Add(1500 * time.Millisecond),
		base,
		base.Add(time.Microsecond),
		base.Add(time.Second),
		base.Add(-time.Hour),
	}

	var formatted []string
	for _, tm := range times {
		formatted = append(formatted, FormatTime(tm))
	}
	sort.Strings(formatted)

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i, tm := range times {
		assert.Equal(t, FormatTime(tm), formatted[i])
	}
}

func TestFormatTime_ConvertsToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	tm := time.Date(2024, 3, 6, 15, 30, 0, 0, ist)
	assert.Equal(t, "2024-03-06T10:00:00.000000Z", FormatTime(tm))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 3, 6, 10, 0, 0, 123456000, time.UTC)

	got, err := ParseTime(FormatTime(want))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = ParseTime("2024-03-06T15:30:00+05:30")
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC).Equal(got))

	_, err = ParseTime("yesterday")
	assert.Error(t, err)
}

func TestNullTime(t *testing.T) {
	assert.False(t, NullTime(nil).Valid)

	tm := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	ns := NullTime(&tm)
	assert.True(t, ns.Valid)

	back, err := ParseNullTime(ns)
	require.NoError(t, err)
	require.NotNil(t, back)
	assert.True(t, tm.Equal(*back))

	back, err = ParseNullTime(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, back)
}
