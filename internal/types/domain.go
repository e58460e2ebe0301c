package types

import (
	"time"
)

// Payload field names read from inspection submissions.
const (
	PayloadChecklistField     = "checklist"
	PayloadAssetField         = "equipmentId"
	PayloadSafeToOperateField = "safeToOperate"
)

// Submission is a persisted form submission. Submissions are written by the
// intake path and are read-only here.
type Submission struct {
	ID          string         `json:"id"`
	FormType    string         `json:"form_type"`
	Location    string         `json:"location"`
	SubmittedBy string         `json:"submitted_by"`
	SubmittedAt time.Time      `json:"submitted_at"`
	Payload     map[string]any `json:"payload"`
	EmailSent   bool           `json:"email_sent"`
}

// InspectionView is the typed subset of an inspection payload consumed by the
// aggregator and the renderers.
type InspectionView struct {
	Checklist     map[string]ChecklistResult
	AssetID       string
	SafeToOperate string
}

// Inspection extracts the typed inspection view from the opaque payload.
// Missing or malformed fields yield zero values. Checklist values that are
// not strings are skipped.
func (s Submission) Inspection() InspectionView {
	var v InspectionView
	if raw, ok := s.Payload[PayloadChecklistField].(map[string]any); ok {
		v.Checklist = make(map[string]ChecklistResult, len(raw))
		for item, result := range raw {
			if str, ok := result.(string); ok {
				v.Checklist[item] = ChecklistResult(str)
			}
		}
	}
	if asset, ok := s.Payload[PayloadAssetField].(string); ok {
		v.AssetID = asset
	}
	if safe, ok := s.Payload[PayloadSafeToOperateField].(string); ok {
		v.SafeToOperate = safe
	}
	return v
}

// SubmissionQuery filters submissions for a report window. Start and End are
// inclusive calendar dates interpreted in TZ.
type SubmissionQuery struct {
	FormType string
	Location *string
	Start    time.Time
	End      time.Time
	TZ       *time.Location
}

// Schedule is a persisted definition of a recurring report job.
type Schedule struct {
	ID             string       `json:"id"`
	Name           string       `json:"name" validate:"required,max=200"`
	Frequency      Frequency    `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	DayOfWeek      *int         `json:"day_of_week,omitempty" validate:"required_if=Frequency weekly,omitempty,min=0,max=6"`
	DayOfMonth     *int         `json:"day_of_month,omitempty" validate:"required_if=Frequency monthly,omitempty,min=1,max=28"`
	Time           string       `json:"time" validate:"required,hhmm"`
	LocationFilter *string      `json:"location_filter,omitempty"`
	Recipients     []string     `json:"recipients" validate:"required,min=1,max=50,dive,required,email"`
	Format         ReportFormat `json:"format" validate:"required,oneof=document workbook both"`
	IsActive       bool         `json:"is_active"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	LastRunStatus  *RunStatus   `json:"last_run_status,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SchedulePatch carries a partial update. Nil fields are left untouched.
type SchedulePatch struct {
	Name           *string       `json:"name,omitempty"`
	Frequency      *Frequency    `json:"frequency,omitempty"`
	DayOfWeek      *int          `json:"day_of_week,omitempty"`
	DayOfMonth     *int          `json:"day_of_month,omitempty"`
	Time           *string       `json:"time,omitempty"`
	LocationFilter *string       `json:"location_filter,omitempty"`
	Recipients     []string      `json:"recipients,omitempty"`
	Format         *ReportFormat `json:"format,omitempty"`
	IsActive       *bool         `json:"is_active,omitempty"`
}

// Apply merges the provided fields onto a copy of s. An empty LocationFilter
// clears the filter.
func (p SchedulePatch) Apply(s Schedule) Schedule {
	out := s
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Frequency != nil {
		out.Frequency = *p.Frequency
	}
	if p.DayOfWeek != nil {
		v := *p.DayOfWeek
		out.DayOfWeek = &v
	}
	if p.DayOfMonth != nil {
		v := *p.DayOfMonth
		out.DayOfMonth = &v
	}
	if p.Time != nil {
		out.Time = *p.Time
	}
	if p.LocationFilter != nil {
		if *p.LocationFilter == "" {
			out.LocationFilter = nil
		} else {
			v := *p.LocationFilter
			out.LocationFilter = &v
		}
	}
	if p.Recipients != nil {
		out.Recipients = append([]string(nil), p.Recipients...)
	}
	if p.Format != nil {
		out.Format = *p.Format
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	return out
}

// RunRecord is one row of execution history for a schedule.
type RunRecord struct {
	ID              int64      `json:"id"`
	ScheduleID      string     `json:"schedule_id"`
	Trigger         RunTrigger `json:"trigger"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	Status          RunStatus  `json:"status,omitempty"`
	WindowStart     string     `json:"window_start,omitempty"`
	WindowEnd       string     `json:"window_end,omitempty"`
	SubmissionCount int        `json:"submission_count"`
	Attachments     []string   `json:"attachments,omitempty"`
	FailedStep      string     `json:"failed_step,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Attachment is a rendered report file carried by an outbound email.
type Attachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// SenderIdentity is the From header of an outbound email.
type SenderIdentity struct {
	Address string
	Name    string
}

// EmailMessage is a fully addressed outbound message. Raw holds the encoded
// MIME message for providers that send raw content.
type EmailMessage struct {
	From        SenderIdentity
	To          []string
	Subject     string
	BodyText    string
	Attachments []Attachment
	Raw         []byte
	ReferenceID string
}

// RunOutcome is the final state of an execution attempt, written to run
// history when the attempt ends.
type RunOutcome struct {
	Status          RunStatus
	SubmissionCount int
	Attachments     []string
	FailedStep      string
	Err             error
}
