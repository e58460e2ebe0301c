package scheduler

import (
	"fmt"
	"strings"

	"safetyreports/internal/reports"
	"safetyreports/internal/stats"
	"safetyreports/internal/types"
)

var frequencyTitle = map[types.Frequency]string{
	types.FrequencyDaily:   "Daily",
	types.FrequencyWeekly:  "Weekly",
	types.FrequencyMonthly: "Monthly",
}

// Subject is the email subject of a run, e.g.
// "Weekly Inspection Report: Yard A (2026-03-01 to 2026-03-07)".
func Subject(sch *types.Schedule, window reports.DateRange) string {
	prefix := frequencyTitle[sch.Frequency]
	if prefix == "" {
		prefix = "Scheduled"
	}
	scope := sch.Name
	if sch.LocationFilter != nil && *sch.LocationFilter != "" {
		scope = *sch.LocationFilter
	}
	return fmt.Sprintf("%s Inspection Report: %s (%s)", prefix, scope, window.String())
}

// Body is the plain-text email body: a short summary of the attached reports.
func Body(sch *types.Schedule, in reports.Input) string {
	s := in.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", sch.Name)
	fmt.Fprintf(&b, "Period: %s\n", in.Range.String())
	fmt.Fprintf(&b, "Location: %s\n\n", in.LocationLabel())
	fmt.Fprintf(&b, "Total inspections: %d\n", s.TotalInspections)
	fmt.Fprintf(&b, "Inspections with failures: %d\n", s.InspectionsWithFailures)
	fmt.Fprintf(&b, "Failed items: %d\n", s.TotalFailures)
	fmt.Fprintf(&b, "Pass rate: %d%%\n", stats.PassRate(s))

	if s.TotalInspections == 0 {
		b.WriteString("\nNo inspections were submitted in this period.\n")
	}
	b.WriteString("\nThe full report is attached.\n")
	return b.String()
}
