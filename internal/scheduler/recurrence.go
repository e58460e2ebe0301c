package scheduler

import (
	"fmt"
	"time"

	"safetyreports/internal/reports"
	"safetyreports/internal/types"
)

// CronSpec translates a schedule's recurrence into a five-field cron
// expression (minute hour day-of-month month day-of-week). The expression
// carries no zone: the cron instance evaluates it in the reference timezone.
func CronSpec(s *types.Schedule) (string, error) {
	hour, minute, err := types.ParseTimeOfDay(s.Time)
	if err != nil {
		return "", fmt.Errorf("schedule %s: %w", s.ID, err)
	}

	switch s.Frequency {
	case types.FrequencyDaily:
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	case types.FrequencyWeekly:
		if s.DayOfWeek == nil || *s.DayOfWeek < 0 || *s.DayOfWeek > types.MaxDayOfWeek {
			return "", fmt.Errorf("schedule %s: weekly recurrence needs day_of_week 0-%d", s.ID, types.MaxDayOfWeek)
		}
		return fmt.Sprintf("%d %d * * %d", minute, hour, *s.DayOfWeek), nil
	case types.FrequencyMonthly:
		if s.DayOfMonth == nil || *s.DayOfMonth < types.MinDayOfMonth || *s.DayOfMonth > types.MaxDayOfMonth {
			return "", fmt.Errorf("schedule %s: monthly recurrence needs day_of_month %d-%d",
				s.ID, types.MinDayOfMonth, types.MaxDayOfMonth)
		}
		return fmt.Sprintf("%d %d %d * *", minute, hour, *s.DayOfMonth), nil
	default:
		return "", fmt.Errorf("schedule %s: unknown frequency %q", s.ID, s.Frequency)
	}
}

// ReportWindow returns the inclusive date range a run covers. The window ends
// on today's date in loc and starts one day, seven days or one calendar month
// earlier. Going back a month from a day the previous month lacks (March 31)
// lands on that month's last day.
func ReportWindow(freq types.Frequency, now time.Time, loc *time.Location) (reports.DateRange, error) {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	var start time.Time
	switch freq {
	case types.FrequencyDaily:
		start = end.AddDate(0, 0, -1)
	case types.FrequencyWeekly:
		start = end.AddDate(0, 0, -7)
	case types.FrequencyMonthly:
		start = monthBefore(end)
	default:
		return reports.DateRange{}, fmt.Errorf("unknown frequency %q", freq)
	}
	return reports.DateRange{Start: start, End: end}, nil
}

func monthBefore(t time.Time) time.Time {
	firstOfPrev := time.Date(t.Year(), t.Month()-1, 1, 0, 0, 0, 0, t.Location())
	lastDay := firstOfPrev.AddDate(0, 1, -1).Day()
	return time.Date(firstOfPrev.Year(), firstOfPrev.Month(), min(t.Day(), lastDay), 0, 0, 0, 0, t.Location())
}
