package types

// Frequency is the recurrence cadence of a report schedule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ReportFormat selects which renderers a schedule produces.
type ReportFormat string

const (
	FormatDocument ReportFormat = "document"
	FormatWorkbook ReportFormat = "workbook"
	FormatBoth     ReportFormat = "both"
)

// Includes reports whether the format requests output of kind f.
// FormatBoth includes both single formats.
func (r ReportFormat) Includes(f ReportFormat) bool {
	return r == f || r == FormatBoth
}

// RunStatus is the outcome of a single schedule execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"

	// RunStatusRunning only appears in run history while a run is in flight.
	RunStatusRunning RunStatus = "running"
)

// RunTrigger records what initiated a schedule execution.
type RunTrigger string

const (
	TriggerScheduled RunTrigger = "scheduled"
	TriggerManual    RunTrigger = "manual"
)

// ChecklistResult is the recorded outcome of one inspected item.
type ChecklistResult string

const (
	ResultPass ChecklistResult = "Pass"
	ResultFail ChecklistResult = "Fail"
	ResultNA   ChecklistResult = "N/A"
)

// FormTypeInspection is the form type aggregated into scheduled reports.
const FormTypeInspection = "inspection"
