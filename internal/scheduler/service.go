package scheduler

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"safetyreports/internal/types"
)

// ScheduleRepository is the persistence used by Service.
type ScheduleRepository interface {
	Create(ctx context.Context, s *types.Schedule) error
	GetByID(ctx context.Context, id string) (*types.Schedule, error)
	List(ctx context.Context) ([]*types.Schedule, error)
	Update(ctx context.Context, s *types.Schedule) error
	Delete(ctx context.Context, id string) error
}

// RunLister reads run history.
type RunLister interface {
	ListBySchedule(ctx context.Context, scheduleID string, limit int) ([]types.RunRecord, error)
}

// Service is the schedule registry as seen by the API: every change to a
// stored schedule is mirrored onto the scheduler's triggers.
type Service struct {
	repo      ScheduleRepository
	runs      RunLister
	scheduler *Scheduler
	logger    *slog.Logger

	// writeMu serializes persist-then-register so the installed trigger
	// always matches the last stored definition.
	writeMu sync.Mutex
}

// NewService creates a Service.
func NewService(repo ScheduleRepository, runs RunLister, scheduler *Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, runs: runs, scheduler: scheduler, logger: logger}
}

// Create validates, stores and registers a new schedule.
func (s *Service) Create(ctx context.Context, sch types.Schedule) (*types.Schedule, error) {
	sch.ID = "sch_" + uuid.NewString()
	sch.LastRunAt = nil
	sch.LastRunStatus = nil
	if err := sch.Validate(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Create(ctx, &sch); err != nil {
		return nil, err
	}
	if err := s.scheduler.Register(&sch); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "schedule stored but trigger not installed", err)
	}
	s.logger.InfoContext(ctx, "schedule created",
		"schedule_id", sch.ID,
		"frequency", string(sch.Frequency),
		"active", sch.IsActive,
	)
	return &sch, nil
}

// Get returns one schedule.
func (s *Service) Get(ctx context.Context, id string) (*types.Schedule, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns every schedule.
func (s *Service) List(ctx context.Context) ([]*types.Schedule, error) {
	return s.repo.List(ctx)
}

// Update merges patch onto the stored schedule, validates the result, stores
// it and replaces the trigger.
func (s *Service) Update(ctx context.Context, id string, patch types.SchedulePatch) (*types.Schedule, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := patch.Apply(*current)
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, &merged); err != nil {
		return nil, err
	}
	if err := s.scheduler.Register(&merged); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "schedule stored but trigger not installed", err)
	}
	s.logger.InfoContext(ctx, "schedule updated", "schedule_id", id, "active", merged.IsActive)
	return &merged, nil
}

// Delete removes the schedule and its trigger.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.scheduler.Unregister(id)
	s.logger.InfoContext(ctx, "schedule deleted", "schedule_id", id)
	return nil
}

// RunNow executes the schedule synchronously and reports the recorded
// outcome. A run already in flight yields conflict_report_run_in_progress.
func (s *Service) RunNow(ctx context.Context, id string) (RunResult, error) {
	return s.scheduler.Execute(ctx, id, types.TriggerManual)
}

// Runs lists recent run history, newest first.
func (s *Service) Runs(ctx context.Context, id string, limit int) ([]types.RunRecord, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.runs.ListBySchedule(ctx, id, limit)
}
