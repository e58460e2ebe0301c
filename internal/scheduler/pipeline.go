package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"safetyreports/internal/notifications/email"
	"safetyreports/internal/reports"
	"safetyreports/internal/stats"
	"safetyreports/internal/telemetry"
	"safetyreports/internal/types"
)

// Pipeline steps named in run failures.
const (
	StepLoad    = "load"
	StepQuery   = "query"
	StepRender  = "render"
	StepDeliver = "deliver"
	StepRecord  = "record"
)

// bookkeepingTimeout bounds the writes made after a run ends, which use a
// context detached from the run's own deadline.
const bookkeepingTimeout = 15 * time.Second

// RunResult is the outcome of one Execute call.
type RunResult struct {
	ScheduleID      string
	RunID           int64
	Trigger         types.RunTrigger
	Status          types.RunStatus
	LastRunAt       time.Time
	Window          reports.DateRange
	SubmissionCount int
	Attachments     []string
	FailedStep      string
}

// run carries the state of one execution through the pipeline.
type run struct {
	result   RunResult
	schedule *types.Schedule
	step     string
	started  time.Time
}

// Execute runs schedule id once. It returns ErrRunInProgress if the schedule
// already has a run in flight. Any other failure is recorded on the schedule
// as a failed run and returned as report_run_failed with the failing step in
// its details, except a schedule that cannot be loaded, which is returned
// as-is with nothing recorded.
func (s *Scheduler) Execute(ctx context.Context, id string, trigger types.RunTrigger) (RunResult, error) {
	if !s.tryAcquire(id) {
		return RunResult{ScheduleID: id, Trigger: trigger}, ErrRunInProgress
	}
	defer s.release(id)

	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	r := &run{
		result:  RunResult{ScheduleID: id, Trigger: trigger},
		step:    StepLoad,
		started: s.clock.Now(),
	}
	logger := s.logger.With("schedule_id", id, "trigger", string(trigger))

	runErr := s.safely(ctx, r)
	if r.schedule == nil {
		logger.ErrorContext(ctx, "report run aborted, schedule not loaded", "error", runErr)
		return r.result, runErr
	}

	status := types.RunStatusSuccess
	if runErr != nil {
		status = types.RunStatusFailed
	}
	finishedAt := s.clock.Now()

	bookCtx, bookCancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer bookCancel()

	if err := s.schedules.RecordRun(bookCtx, id, finishedAt, status); err != nil {
		logger.ErrorContext(ctx, "failed to record last run", "status", string(status), "error", err)
		if runErr == nil {
			r.step = StepRecord
			runErr = err
			status = types.RunStatusFailed
		}
	}

	r.result.Status = status
	r.result.LastRunAt = finishedAt
	if runErr != nil {
		r.result.FailedStep = r.step
	}
	s.finishHistory(bookCtx, r, runErr)

	s.metrics.RecordRun(bookCtx, telemetry.Run{
		Frequency:   r.schedule.Frequency,
		Trigger:     trigger,
		Status:      status,
		Duration:    finishedAt.Sub(r.started),
		Submissions: r.result.SubmissionCount,
	})

	if runErr != nil {
		logger.ErrorContext(ctx, "report run failed",
			"step", r.step,
			"window", r.result.Window.String(),
			"error", runErr,
		)
		return r.result, types.NewAppErrorWithDetails(types.ErrCodeReportRunFailed,
			fmt.Sprintf("report run failed at step %s", r.step), runErr,
			map[string]any{
				"step":            r.step,
				"schedule_id":     id,
				"last_run_at":     finishedAt,
				"last_run_status": status,
			})
	}

	logger.InfoContext(ctx, "report run succeeded",
		"window", r.result.Window.String(),
		"submissions", r.result.SubmissionCount,
		"attachments", r.result.Attachments,
		"duration_ms", finishedAt.Sub(r.started).Milliseconds(),
	)
	return r.result, nil
}

// safely runs the pipeline, turning a panic into an error attributed to the
// step that was executing.
func (s *Scheduler) safely(ctx context.Context, r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.ErrorContext(ctx, "panic in report run",
				"schedule_id", r.result.ScheduleID,
				"step", r.step,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("panic: %v", p), nil)
		}
	}()
	return s.pipeline(ctx, r)
}

func (s *Scheduler) pipeline(ctx context.Context, r *run) error {
	id := r.result.ScheduleID

	sch, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return err
	}
	r.schedule = sch

	window, err := ReportWindow(sch.Frequency, r.started, s.loc)
	if err != nil {
		return err
	}
	r.result.Window = window
	s.startHistory(ctx, r)

	r.step = StepQuery
	subs, err := s.submissions.Find(ctx, types.SubmissionQuery{
		FormType: types.FormTypeInspection,
		Location: sch.LocationFilter,
		Start:    window.Start,
		End:      window.End,
		TZ:       s.loc,
	})
	if err != nil {
		return err
	}
	r.result.SubmissionCount = len(subs)

	r.step = StepRender
	in := reports.Input{
		Submissions:    subs,
		Summary:        stats.Compute(subs),
		Range:          window,
		LocationFilter: sch.LocationFilter,
		TZ:             s.loc,
		GeneratedAt:    r.started,
	}
	attachments, err := s.render(ctx, sch.Format, in)
	if err != nil {
		return err
	}
	for _, a := range attachments {
		r.result.Attachments = append(r.result.Attachments, a.Filename)
	}

	r.step = StepDeliver
	if len(sch.Recipients) == 0 {
		return email.ErrNoRecipients
	}
	if _, err := s.deliverer.Deliver(ctx, email.Request{
		Recipients:  sch.Recipients,
		Subject:     Subject(sch, window),
		Body:        Body(sch, in),
		Attachments: attachments,
		ReferenceID: id,
	}); err != nil {
		return err
	}

	if _, err := s.archiver.Archive(ctx, id, attachments); err != nil {
		s.logger.WarnContext(ctx, "failed to archive delivered reports", "schedule_id", id, "error", err)
	}
	return nil
}

// render runs every renderer the format asks for concurrently. Attachments
// come back in renderer order.
func (s *Scheduler) render(ctx context.Context, format types.ReportFormat, in reports.Input) ([]types.Attachment, error) {
	var selected []reports.Renderer
	for _, rd := range s.renderers {
		if format.Includes(rd.Format()) {
			selected = append(selected, rd)
		}
	}
	if len(selected) == 0 {
		return nil, types.NewAppError(types.ErrCodeInternalRender,
			fmt.Sprintf("no renderer for format %q", format), nil)
	}

	out := make([]types.Attachment, len(selected))
	g, gctx := errgroup.WithContext(ctx)
	for i, rd := range selected {
		g.Go(func() (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = types.NewAppError(types.ErrCodeInternalRender,
						fmt.Sprintf("%s renderer panicked: %v", rd.Format(), p), nil)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			att, err := rd.Render(in)
			if err != nil {
				return err
			}
			out[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Scheduler) startHistory(ctx context.Context, r *run) {
	if s.runs == nil {
		return
	}
	runID, err := s.runs.Start(ctx, r.result.ScheduleID, r.result.Trigger, r.result.Window.Start, r.result.Window.End)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to open run history entry", "schedule_id", r.result.ScheduleID, "error", err)
		return
	}
	r.result.RunID = runID
}

func (s *Scheduler) finishHistory(ctx context.Context, r *run, runErr error) {
	if s.runs == nil || r.result.RunID == 0 {
		return
	}
	err := s.runs.Finish(ctx, r.result.RunID, types.RunOutcome{
		Status:          r.result.Status,
		SubmissionCount: r.result.SubmissionCount,
		Attachments:     r.result.Attachments,
		FailedStep:      r.result.FailedStep,
		Err:             runErr,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to close run history entry",
			"schedule_id", r.result.ScheduleID,
			"run_id", r.result.RunID,
			"error", err,
		)
	}
}
