package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"safetyreports/internal/types"
)

// ScheduleRepository provides data access for the report_schedules table.
type ScheduleRepository struct {
	db DBTX
}

// NewScheduleRepository creates a ScheduleRepository backed by db.
func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `id, name, frequency, day_of_week, day_of_month, time_of_day,
	location_filter, recipients, format, is_active,
	last_run_at, last_run_status, created_at, updated_at`

// scanSchedule scans one row in scheduleColumns order. pgx.Rows satisfies
// pgx.Row, so this serves both QueryRow and Query results.
func scanSchedule(row pgx.Row) (*types.Schedule, error) {
	var (
		s          types.Schedule
		dayOfWeek  *int16
		dayOfMonth *int16
		recipients []byte
	)
	err := row.Scan(
		&s.ID,
		&s.Name,
		&s.Frequency,
		&dayOfWeek,
		&dayOfMonth,
		&s.Time,
		&s.LocationFilter,
		&recipients,
		&s.Format,
		&s.IsActive,
		&s.LastRunAt,
		&s.LastRunStatus,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if dayOfWeek != nil {
		v := int(*dayOfWeek)
		s.DayOfWeek = &v
	}
	if dayOfMonth != nil {
		v := int(*dayOfMonth)
		s.DayOfMonth = &v
	}
	if len(recipients) > 0 {
		if err := json.Unmarshal(recipients, &s.Recipients); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func encodeRecipients(recipients []string) ([]byte, error) {
	if recipients == nil {
		recipients = []string{}
	}
	return json.Marshal(recipients)
}

// Create inserts a new schedule. The caller assigns the ID. CreatedAt and
// UpdatedAt default to NOW() when zero and are written back to s.
func (r *ScheduleRepository) Create(ctx context.Context, s *types.Schedule) error {
	recipients, err := encodeRecipients(s.Recipients)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode recipients", err)
	}

	err = r.db.QueryRow(ctx,
		`INSERT INTO report_schedules (
			id, name, frequency, day_of_week, day_of_month, time_of_day,
			location_filter, recipients, format, is_active,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			COALESCE($11, NOW()), COALESCE($12, NOW())
		)
		RETURNING created_at, updated_at`,
		s.ID,
		s.Name,
		s.Frequency,
		s.DayOfWeek,
		s.DayOfMonth,
		s.Time,
		s.LocationFilter,
		recipients,
		s.Format,
		s.IsActive,
		nilIfZeroTime(s.CreatedAt),
		nilIfZeroTime(s.UpdatedAt),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictScheduleExists, "schedule already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create schedule", err)
	}
	return nil
}

// GetByID returns the schedule with the given ID or not_found_schedule.
func (r *ScheduleRepository) GetByID(ctx context.Context, id string) (*types.Schedule, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM report_schedules WHERE id = $1`,
		id,
	)
	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve schedule", err)
	}
	return s, nil
}

// List returns all schedules ordered by creation time.
func (r *ScheduleRepository) List(ctx context.Context) ([]*types.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM report_schedules ORDER BY created_at, id`)
}

// ListActive returns schedules with is_active = true. Used once at startup to
// install triggers.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]*types.Schedule, error) {
	return r.list(ctx, `SELECT `+scheduleColumns+` FROM report_schedules WHERE is_active ORDER BY created_at, id`)
}

func (r *ScheduleRepository) list(ctx context.Context, query string) ([]*types.Schedule, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list schedules", err)
	}
	defer rows.Close()

	schedules := make([]*types.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan schedule", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate schedules", err)
	}
	return schedules, nil
}

// Update writes every mutable field of s. Callers merge partial changes onto
// the stored record first (see types.SchedulePatch). Last-run bookkeeping is
// owned by RecordRun and is not touched here.
func (r *ScheduleRepository) Update(ctx context.Context, s *types.Schedule) error {
	recipients, err := encodeRecipients(s.Recipients)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode recipients", err)
	}

	err = r.db.QueryRow(ctx,
		`UPDATE report_schedules SET
			name = $1,
			frequency = $2,
			day_of_week = $3,
			day_of_month = $4,
			time_of_day = $5,
			location_filter = $6,
			recipients = $7,
			format = $8,
			is_active = $9,
			updated_at = NOW()
		 WHERE id = $10
		 RETURNING updated_at`,
		s.Name,
		s.Frequency,
		s.DayOfWeek,
		s.DayOfMonth,
		s.Time,
		s.LocationFilter,
		recipients,
		s.Format,
		s.IsActive,
		s.ID,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update schedule", err)
	}
	return nil
}

// Delete removes the schedule. Its run history is removed by cascade.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM report_schedules WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete schedule", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	return nil
}

// RecordRun writes the last-run timestamp and status after an execution
// attempt. Only the last-run columns are written, so a concurrent Update of
// the definition is preserved.
func (r *ScheduleRepository) RecordRun(ctx context.Context, id string, at time.Time, status types.RunStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE report_schedules SET last_run_at = $2, last_run_status = $3 WHERE id = $1`,
		id, at, status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record schedule run", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	return nil
}
