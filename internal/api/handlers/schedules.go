// Package handlers contains the HTTP handlers of the report scheduling API.
//
// Routes are mounted under /v1 by core.Server through RegisterRoutes:
//   - schedule CRUD on /schedules
//   - synchronous manual execution on POST /schedules/{id}/run
//   - run history on GET /schedules/{id}/runs
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"safetyreports/internal/core"
	"safetyreports/internal/scheduler"
	"safetyreports/internal/types"
)

// maxRunHistoryLimit caps the limit query parameter of the runs endpoint.
const maxRunHistoryLimit = 100

// ScheduleService is the contract the handler needs from scheduler.Service.
type ScheduleService interface {
	Create(ctx context.Context, sch types.Schedule) (*types.Schedule, error)
	Get(ctx context.Context, id string) (*types.Schedule, error)
	List(ctx context.Context) ([]*types.Schedule, error)
	Update(ctx context.Context, id string, patch types.SchedulePatch) (*types.Schedule, error)
	Delete(ctx context.Context, id string) error
	RunNow(ctx context.Context, id string) (scheduler.RunResult, error)
	Runs(ctx context.Context, id string, limit int) ([]types.RunRecord, error)
}

// CreateScheduleRequest is the body of POST /v1/schedules. IsActive defaults
// to true when omitted.
type CreateScheduleRequest struct {
	Name           string             `json:"name"`
	Frequency      types.Frequency    `json:"frequency"`
	DayOfWeek      *int               `json:"day_of_week,omitempty"`
	DayOfMonth     *int               `json:"day_of_month,omitempty"`
	Time           string             `json:"time"`
	LocationFilter *string            `json:"location_filter,omitempty"`
	Recipients     []string           `json:"recipients"`
	Format         types.ReportFormat `json:"format"`
	IsActive       *bool              `json:"is_active,omitempty"`
}

func (req CreateScheduleRequest) schedule() types.Schedule {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	sch := types.Schedule{
		Name:       req.Name,
		Frequency:  req.Frequency,
		DayOfWeek:  req.DayOfWeek,
		DayOfMonth: req.DayOfMonth,
		Time:       req.Time,
		Recipients: req.Recipients,
		Format:     req.Format,
		IsActive:   active,
	}
	if req.LocationFilter != nil && *req.LocationFilter != "" {
		sch.LocationFilter = req.LocationFilter
	}
	return sch
}

// RunResponse is the body returned by a successful manual run.
type RunResponse struct {
	ScheduleID      string          `json:"schedule_id"`
	RunID           int64           `json:"run_id,omitempty"`
	LastRunAt       time.Time       `json:"last_run_at"`
	LastRunStatus   types.RunStatus `json:"last_run_status"`
	WindowStart     string          `json:"window_start"`
	WindowEnd       string          `json:"window_end"`
	SubmissionCount int             `json:"submission_count"`
	Attachments     []string        `json:"attachments"`
}

func newRunResponse(res scheduler.RunResult) RunResponse {
	return RunResponse{
		ScheduleID:      res.ScheduleID,
		RunID:           res.RunID,
		LastRunAt:       res.LastRunAt,
		LastRunStatus:   res.Status,
		WindowStart:     res.Window.Start.Format(time.DateOnly),
		WindowEnd:       res.Window.End.Format(time.DateOnly),
		SubmissionCount: res.SubmissionCount,
		Attachments:     res.Attachments,
	}
}

// ScheduleHandler serves the schedule endpoints.
type ScheduleHandler struct {
	service ScheduleService
	logger  *slog.Logger
}

// NewScheduleHandler creates a ScheduleHandler.
func NewScheduleHandler(service ScheduleService, l *slog.Logger) *ScheduleHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ScheduleHandler{service: service, logger: l}
}

// RegisterRoutes mounts the schedule routes on r.
func (h *ScheduleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/schedules", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Post("/run", h.Run)
			r.Get("/runs", h.Runs)
		})
	})
}

// Create handles POST /v1/schedules.
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	sch, err := h.service.Create(r.Context(), req.schedule())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "schedule created",
		"schedule_id", sch.ID,
		"frequency", sch.Frequency,
		"active", sch.IsActive,
	)
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: sch})
}

// List handles GET /v1/schedules.
func (h *ScheduleHandler) List(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.service.List(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: schedules})
}

// Get handles GET /v1/schedules/{id}.
func (h *ScheduleHandler) Get(w http.ResponseWriter, r *http.Request) {
	sch, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sch})
}

// Update handles PATCH /v1/schedules/{id}. Omitted fields keep their stored
// values; the merged schedule is validated as a whole.
func (h *ScheduleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch types.SchedulePatch
	if err := core.DecodeJSON(w, r, &patch); err != nil {
		core.Error(w, r, err)
		return
	}

	sch, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: sch})
}

// Delete handles DELETE /v1/schedules/{id}.
func (h *ScheduleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.Delete(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "schedule deleted", "schedule_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// Run handles POST /v1/schedules/{id}/run. The report is generated and
// delivered before the response is written.
func (h *ScheduleHandler) Run(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.RunNow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: newRunResponse(res)})
}

// Runs handles GET /v1/schedules/{id}/runs?limit=N.
func (h *ScheduleHandler) Runs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRunHistoryLimit {
			core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidParameter,
				"limit must be an integer between 1 and "+strconv.Itoa(maxRunHistoryLimit), nil,
				map[string]any{"parameter": "limit"}))
			return
		}
		limit = n
	}

	runs, err := h.service.Runs(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: runs})
}
