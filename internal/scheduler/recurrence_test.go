package scheduler

import (
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyreports/internal/types"
)

func ptr[T any](v T) *T { return &v }

func TestCronSpec(t *testing.T) {
	tests := []struct {
		name     string
		schedule types.Schedule
		want     string
	}{
		{"daily", types.Schedule{Frequency: types.FrequencyDaily, Time: "07:30"}, "30 7 * * *"},
		{"weekly monday", types.Schedule{Frequency: types.FrequencyWeekly, Time: "08:00", DayOfWeek: ptr(1)}, "0 8 * * 1"},
		{"weekly sunday", types.Schedule{Frequency: types.FrequencyWeekly, Time: "23:59", DayOfWeek: ptr(0)}, "59 23 * * 0"},
		{"monthly", types.Schedule{Frequency: types.FrequencyMonthly, Time: "06:05", DayOfMonth: ptr(28)}, "5 6 28 * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CronSpec(&tt.schedule)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			_, err = cron.ParseStandard(got)
			assert.NoError(t, err)
		})
	}
}

func TestCronSpec_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		schedule types.Schedule
	}{
		{"bad time", types.Schedule{Frequency: types.FrequencyDaily, Time: "7:30"}},
		{"weekly without day", types.Schedule{Frequency: types.FrequencyWeekly, Time: "08:00"}},
		{"monthly day 30", types.Schedule{Frequency: types.FrequencyMonthly, Time: "08:00", DayOfMonth: ptr(30)}},
		{"unknown frequency", types.Schedule{Frequency: "hourly", Time: "08:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CronSpec(&tt.schedule)
			assert.Error(t, err)
		})
	}
}

func TestCronSpec_FiresInReferenceZone(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	spec, err := CronSpec(&types.Schedule{Frequency: types.FrequencyDaily, Time: "07:00"})
	require.NoError(t, err)
	sched, err := cron.ParseStandard(spec)
	require.NoError(t, err)

	// 06:00 Chicago on 2026-03-10 (CDT, UTC-5).
	from := time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC).In(chicago)
	next := sched.Next(from)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestReportWindow(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 03:00 UTC on March 8 is still March 7 in Chicago.
	now := time.Date(2026, 3, 8, 3, 0, 0, 0, time.UTC)

	tests := []struct {
		freq       types.Frequency
		start, end string
	}{
		{types.FrequencyDaily, "2026-03-06", "2026-03-07"},
		{types.FrequencyWeekly, "2026-02-28", "2026-03-07"},
		{types.FrequencyMonthly, "2026-02-07", "2026-03-07"},
	}
	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			w, err := ReportWindow(tt.freq, now, chicago)
			require.NoError(t, err)
			assert.Equal(t, tt.start, w.Start.Format(time.DateOnly))
			assert.Equal(t, tt.end, w.End.Format(time.DateOnly))
			assert.Equal(t, chicago, w.Start.Location())
		})
	}
}

func TestReportWindow_MonthlyClampsToShortMonth(t *testing.T) {
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	w, err := ReportWindow(types.FrequencyMonthly, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2026-02-28", w.Start.Format(time.DateOnly))

	now = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	w, err = ReportWindow(types.FrequencyMonthly, now, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-15", w.Start.Format(time.DateOnly))
}

func TestReportWindow_UnknownFrequency(t *testing.T) {
	_, err := ReportWindow("hourly", time.Now(), time.UTC)
	assert.Error(t, err)
}
