package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"safetyreports/internal/archive"
	"safetyreports/internal/reports"
	"safetyreports/internal/telemetry"
	"safetyreports/internal/types"
)

// DefaultRunTimeout bounds a run when Config.RunTimeout is zero.
const DefaultRunTimeout = 5 * time.Minute

// ErrRunInProgress is returned by Execute when the schedule already has a run
// in flight.
var ErrRunInProgress = types.NewAppError(types.ErrCodeConflictRunInProgress, "a run of this schedule is already in progress", nil)

// Config holds Scheduler dependencies. Archiver and Metrics are optional.
type Config struct {
	Schedules   ScheduleStore
	Submissions SubmissionFinder
	Runs        RunHistory
	Renderers   []reports.Renderer
	Deliverer   Deliverer
	Archiver    archive.Archiver
	Metrics     telemetry.RunMetrics

	// Location is the reference timezone for triggers and report windows.
	Location   *time.Location
	RunTimeout time.Duration
	Clock      types.Clock
	Logger     *slog.Logger
}

// Scheduler owns the cron triggers of active schedules and executes runs,
// allowing at most one run per schedule at a time.
type Scheduler struct {
	schedules   ScheduleStore
	submissions SubmissionFinder
	runs        RunHistory
	renderers   []reports.Renderer
	deliverer   Deliverer
	archiver    archive.Archiver
	metrics     telemetry.RunMetrics

	loc        *time.Location
	runTimeout time.Duration
	clock      types.Clock
	logger     *slog.Logger

	cron *cron.Cron

	// mu guards entries. Register and Unregister hold it for their whole
	// body so replacing a trigger is atomic per schedule.
	mu      sync.Mutex
	entries map[string]cron.EntryID

	runMu   sync.Mutex
	running map[string]struct{}

	startOnce sync.Once
}

// New creates a Scheduler. Triggers are not installed until Start.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		schedules:   cfg.Schedules,
		submissions: cfg.Submissions,
		runs:        cfg.Runs,
		renderers:   cfg.Renderers,
		deliverer:   cfg.Deliverer,
		archiver:    cfg.Archiver,
		metrics:     cfg.Metrics,
		loc:         cfg.Location,
		runTimeout:  cfg.RunTimeout,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
		entries:     make(map[string]cron.EntryID),
		running:     make(map[string]struct{}),
	}
	if s.archiver == nil {
		s.archiver = archive.NopArchiver{}
	}
	if s.metrics == nil {
		s.metrics = telemetry.NopRunMetrics{}
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.runTimeout <= 0 {
		s.runTimeout = DefaultRunTimeout
	}
	if s.clock == nil {
		s.clock = types.RealClock{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.cron = cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	return s
}

// Location returns the reference timezone.
func (s *Scheduler) Location() *time.Location { return s.loc }

// Start loads every active schedule once, installs its trigger and starts
// the cron loop. A schedule whose trigger cannot be built is logged and
// skipped. Calls after the first are no-ops.
func (s *Scheduler) Start(ctx context.Context) error {
	var err error
	s.startOnce.Do(func() {
		var active []*types.Schedule
		active, err = s.schedules.ListActive(ctx)
		if err != nil {
			err = fmt.Errorf("load active schedules: %w", err)
			return
		}
		for _, sch := range active {
			if regErr := s.Register(sch); regErr != nil {
				s.logger.ErrorContext(ctx, "failed to register schedule at startup",
					"schedule_id", sch.ID,
					"error", regErr,
				)
			}
		}
		s.cron.Start()
		s.logger.InfoContext(ctx, "scheduler started",
			"schedules", len(s.Entries()),
			"timezone", s.loc.String(),
		)
	})
	return err
}

// Stop halts new firings and waits for in-flight runs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for report runs: %w", ctx.Err())
	}
}

// Register installs the trigger for sch, replacing any existing one. An
// inactive schedule only has its stale trigger removed.
func (s *Scheduler) Register(sch *types.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(sch.ID)
	if !sch.IsActive {
		return nil
	}

	spec, err := CronSpec(sch)
	if err != nil {
		return err
	}
	id := sch.ID
	entryID, err := s.cron.AddFunc(spec, func() { s.fire(id) })
	if err != nil {
		return fmt.Errorf("install trigger for schedule %s: %w", id, err)
	}
	s.entries[id] = entryID

	s.logger.Info("schedule registered", "schedule_id", id, "cron", spec)
	return nil
}

// Unregister removes the trigger for id if one exists. A run already in
// flight is left to finish.
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeLocked(id) {
		s.logger.Info("schedule unregistered", "schedule_id", id)
	}
}

func (s *Scheduler) removeLocked(id string) bool {
	entryID, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.entries, id)
	return true
}

// Entries returns the IDs of schedules with an installed trigger.
func (s *Scheduler) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	return ids
}

// NextRun returns the next firing time of id's trigger, or false when the
// schedule has no trigger or the cron loop is not running.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.mu.Lock()
	entryID, ok := s.entries[id]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	next := s.cron.Entry(entryID).Next
	return next, !next.IsZero()
}

// fire is the trigger callback. A firing that overlaps a run of the same
// schedule is skipped.
func (s *Scheduler) fire(id string) {
	ctx := context.Background()
	_, err := s.Execute(ctx, id, types.TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, ErrRunInProgress):
		s.logger.WarnContext(ctx, "skipping trigger, previous run still in progress", "schedule_id", id)
	default:
		s.logger.ErrorContext(ctx, "scheduled report run failed", "schedule_id", id, "error", err)
	}
}

// tryAcquire marks id as running. It reports false if it already is.
func (s *Scheduler) tryAcquire(id string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if _, busy := s.running[id]; busy {
		return false
	}
	s.running[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.runMu.Lock()
	delete(s.running, id)
	s.runMu.Unlock()
}

// Running reports whether id has a run in flight.
func (s *Scheduler) Running(id string) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	_, busy := s.running[id]
	return busy
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
