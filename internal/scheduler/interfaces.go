// Package scheduler runs report schedules: one cron trigger per active
// schedule, evaluated in a single reference timezone, and the pipeline each
// run executes (aggregate, render, deliver, record).
package scheduler

import (
	"context"
	"time"

	"safetyreports/internal/notifications/email"
	"safetyreports/internal/types"
)

// ScheduleStore is the subset of db.ScheduleRepository the scheduler needs.
type ScheduleStore interface {
	GetByID(ctx context.Context, id string) (*types.Schedule, error)
	ListActive(ctx context.Context) ([]*types.Schedule, error)
	RecordRun(ctx context.Context, id string, at time.Time, status types.RunStatus) error
}

// SubmissionFinder returns the submissions in a report window.
type SubmissionFinder interface {
	Find(ctx context.Context, q types.SubmissionQuery) ([]types.Submission, error)
}

// RunHistory keeps one entry per execution attempt.
type RunHistory interface {
	Start(ctx context.Context, scheduleID string, trigger types.RunTrigger, windowStart, windowEnd time.Time) (int64, error)
	Finish(ctx context.Context, id int64, out types.RunOutcome) error
}

// Deliverer sends the rendered reports.
type Deliverer interface {
	Deliver(ctx context.Context, req email.Request) (email.Result, error)
}
