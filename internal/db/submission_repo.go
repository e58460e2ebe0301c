package db

import (
	"context"
	"encoding/json"
	"time"

	sq "github.com/Masterminds/squirrel"

	"safetyreports/internal/types"
)

// SubmissionRepository reads form submissions for report windows.
type SubmissionRepository struct {
	db DBTX
}

// NewSubmissionRepository creates a SubmissionRepository backed by db.
func NewSubmissionRepository(db DBTX) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Find returns submissions of q.FormType whose submitted_at falls on a
// calendar date between q.Start and q.End inclusive, where dates are taken in
// q.TZ (UTC when nil). A nil q.Location includes every location. Rows are
// returned in no particular order.
func (r *SubmissionRepository) Find(ctx context.Context, q types.SubmissionQuery) ([]types.Submission, error) {
	tz := q.TZ
	if tz == nil {
		tz = time.UTC
	}

	builder := psql.
		Select("id", "form_type", "location", "submitted_by", "submitted_at", "payload", "email_sent").
		From("submissions").
		Where(sq.Eq{"form_type": q.FormType})
	if q.Location != nil {
		builder = builder.Where(sq.Eq{"location": *q.Location})
	}
	if !q.Start.IsZero() {
		builder = builder.Where("(submitted_at AT TIME ZONE ?)::date >= ?", tz.String(), calendarDate(q.Start.In(tz)))
	}
	if !q.End.IsZero() {
		builder = builder.Where("(submitted_at AT TIME ZONE ?)::date <= ?", tz.String(), calendarDate(q.End.In(tz)))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build submission query", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query submissions", err)
	}
	defer rows.Close()

	subs := make([]types.Submission, 0)
	for rows.Next() {
		var (
			s       types.Submission
			payload []byte
		)
		if err := rows.Scan(&s.ID, &s.FormType, &s.Location, &s.SubmittedBy, &s.SubmittedAt, &payload, &s.EmailSent); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan submission", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &s.Payload); err != nil {
				return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode submission payload", err).
					WithDetails(map[string]any{"submission_id": s.ID})
			}
		}
		s.SubmittedAt = s.SubmittedAt.UTC()
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate submissions", err)
	}
	return subs, nil
}

// Insert stores a submission. Used by the intake path and by seed tooling.
func (r *SubmissionRepository) Insert(ctx context.Context, s *types.Submission) error {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode submission payload", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO submissions (id, form_type, location, submitted_by, submitted_at, payload, email_sent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.FormType, s.Location, s.SubmittedBy, s.SubmittedAt.UTC(), payload, s.EmailSent,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert submission", err)
	}
	return nil
}
