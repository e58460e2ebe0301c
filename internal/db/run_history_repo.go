package db

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"safetyreports/internal/types"
)

// DefaultRunHistoryLimit bounds ListBySchedule when the caller passes zero.
const DefaultRunHistoryLimit = 50

// RunHistoryRepository provides data access for the report_runs table. Each
// execution attempt gets a row inserted as 'running' by Start and closed by
// Finish.
type RunHistoryRepository struct {
	db DBTX
}

// NewRunHistoryRepository creates a RunHistoryRepository backed by db.
func NewRunHistoryRepository(db DBTX) *RunHistoryRepository {
	return &RunHistoryRepository{db: db}
}

// Start inserts a running entry for the window [windowStart, windowEnd] and
// returns its generated ID.
func (r *RunHistoryRepository) Start(ctx context.Context, scheduleID string, trigger types.RunTrigger, windowStart, windowEnd time.Time) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx,
		`INSERT INTO report_runs (schedule_id, trigger, started_at, status, window_start, window_end)
		 VALUES ($1, $2, NOW(), 'running', $3, $4)
		 RETURNING id`,
		scheduleID,
		trigger,
		calendarDate(windowStart),
		calendarDate(windowEnd),
	).Scan(&id)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to start report run entry", err)
	}
	return id, nil
}

// Finish closes the entry with the outcome. A non-nil out.Err is stored as
// its message.
func (r *RunHistoryRepository) Finish(ctx context.Context, id int64, out types.RunOutcome) error {
	var errMsg *string
	if out.Err != nil {
		s := out.Err.Error()
		errMsg = &s
	}
	attachments := out.Attachments
	if attachments == nil {
		attachments = []string{}
	}
	encoded, err := json.Marshal(attachments)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode attachment names", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE report_runs
		 SET finished_at = NOW(), status = $2, submission_count = $3,
		     attachments = $4, failed_step = $5, error = $6
		 WHERE id = $1`,
		id,
		out.Status,
		out.SubmissionCount,
		encoded,
		nilIfEmpty(out.FailedStep),
		errMsg,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finish report run entry", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "report run entry not found", nil)
	}
	return nil
}

// ListBySchedule returns the most recent runs of a schedule, newest first.
// limit <= 0 selects DefaultRunHistoryLimit.
func (r *RunHistoryRepository) ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]types.RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRunHistoryLimit
	}
	query, args, err := psql.
		Select("id", "schedule_id", "trigger", "started_at", "finished_at", "status",
			"window_start", "window_end", "submission_count", "attachments", "failed_step", "error").
		From("report_runs").
		Where(sq.Eq{"schedule_id": scheduleID}).
		OrderBy("started_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build run history query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list report runs", err)
	}
	defer rows.Close()

	runs := make([]types.RunRecord, 0)
	for rows.Next() {
		var (
			rec                    types.RunRecord
			windowStart, windowEnd *time.Time
			attachments            []byte
			failedStep, errMsg     *string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.ScheduleID,
			&rec.Trigger,
			&rec.StartedAt,
			&rec.FinishedAt,
			&rec.Status,
			&windowStart,
			&windowEnd,
			&rec.SubmissionCount,
			&attachments,
			&failedStep,
			&errMsg,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan report run", err)
		}
		if windowStart != nil {
			rec.WindowStart = windowStart.Format(time.DateOnly)
		}
		if windowEnd != nil {
			rec.WindowEnd = windowEnd.Format(time.DateOnly)
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &rec.Attachments); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode attachment names", err)
			}
		}
		if failedStep != nil {
			rec.FailedStep = *failedStep
		}
		if errMsg != nil {
			rec.Error = *errMsg
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate report runs", err)
	}
	return runs, nil
}
