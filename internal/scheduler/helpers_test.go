package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"safetyreports/internal/notifications/email"
	"safetyreports/internal/reports"
	"safetyreports/internal/types"
)

// --- Mocks ---

type recordedRun struct {
	ID     string
	At     time.Time
	Status types.RunStatus
}

// fakeStore is an in-memory schedule registry.
type fakeStore struct {
	mu        sync.Mutex
	schedules map[string]*types.Schedule
	recorded  []recordedRun
	listCalls int
	getErr    error
	recordErr error
	createErr error
}

func newFakeStore(schedules ...*types.Schedule) *fakeStore {
	f := &fakeStore{schedules: make(map[string]*types.Schedule)}
	for _, s := range schedules {
		f.schedules[s.ID] = s
	}
	return f
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*types.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	s, ok := f.schedules[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListActive(_ context.Context) ([]*types.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	var out []*types.Schedule
	for _, s := range f.schedules {
		if s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context) ([]*types.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.Schedule, 0, len(f.schedules))
	for _, s := range f.schedules {
		cp := *s
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, s *types.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeStore) Update(_ context.Context, s *types.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[s.ID]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	cp := *s
	f.schedules[s.ID] = &cp
	return nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.schedules[id]; !ok {
		return types.NewAppError(types.ErrCodeNotFoundSchedule, "schedule not found", nil)
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeStore) RecordRun(_ context.Context, id string, at time.Time, status types.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, recordedRun{ID: id, At: at, Status: status})
	if s, ok := f.schedules[id]; ok {
		s.LastRunAt = &at
		s.LastRunStatus = &status
	}
	return nil
}

func (f *fakeStore) runs() []recordedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRun(nil), f.recorded...)
}

// fakeFinder returns a fixed submission set.
type fakeFinder struct {
	mu      sync.Mutex
	subs    []types.Submission
	err     error
	queries []types.SubmissionQuery
}

func (f *fakeFinder) Find(_ context.Context, q types.SubmissionQuery) ([]types.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	return f.subs, f.err
}

// fakeHistory records run history calls.
type fakeHistory struct {
	mu       sync.Mutex
	nextID   int64
	started  []types.RunTrigger
	finished map[int64]types.RunOutcome
	listed   []types.RunRecord
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{finished: make(map[int64]types.RunOutcome)}
}

func (f *fakeHistory) Start(_ context.Context, _ string, trigger types.RunTrigger, _, _ time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.started = append(f.started, trigger)
	return f.nextID, nil
}

func (f *fakeHistory) Finish(_ context.Context, id int64, out types.RunOutcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished[id] = out
	return nil
}

func (f *fakeHistory) ListBySchedule(_ context.Context, _ string, _ int) ([]types.RunRecord, error) {
	return f.listed, nil
}

// fakeRenderer produces a fixed attachment.
type fakeRenderer struct {
	format types.ReportFormat
	err    error
	panics bool

	mu    sync.Mutex
	calls int
}

func (r *fakeRenderer) Format() types.ReportFormat { return r.format }

func (r *fakeRenderer) Render(in reports.Input) (types.Attachment, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.panics {
		panic("renderer exploded")
	}
	if r.err != nil {
		return types.Attachment{}, r.err
	}
	ext := "pdf"
	if r.format == types.FormatWorkbook {
		ext = "xlsx"
	}
	return types.Attachment{
		Filename: reports.FileName(in.Range, ext),
		MimeType: "application/octet-stream",
		Content:  []byte(string(r.format)),
	}, nil
}

func (r *fakeRenderer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeDeliverer records deliveries. When block is non-nil each Deliver waits
// for it to be closed (or for ctx to end).
type fakeDeliverer struct {
	mu       sync.Mutex
	requests []email.Request
	err      error
	entered  chan struct{}
	block    chan struct{}
}

func (d *fakeDeliverer) Deliver(ctx context.Context, req email.Request) (email.Result, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()

	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return email.Result{}, ctx.Err()
		}
	}
	if d.err != nil {
		return email.Result{}, d.err
	}
	return email.Result{ProviderMessageID: "msg_1", DeliveredTo: req.Recipients}, nil
}

func (d *fakeDeliverer) sent() []email.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]email.Request(nil), d.requests...)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// --- Fixtures ---

var testNow = time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func weeklySchedule() *types.Schedule {
	dow := 0
	return &types.Schedule{
		ID:         "sch_weekly",
		Name:       "Yard A weekly",
		Frequency:  types.FrequencyWeekly,
		DayOfWeek:  &dow,
		Time:       "07:00",
		Recipients: []string{"ops@example.com", "safety@example.com"},
		Format:     types.FormatBoth,
		IsActive:   true,
	}
}

func inspection(id, location, asset string, checklist map[string]any) types.Submission {
	return types.Submission{
		ID:          id,
		FormType:    types.FormTypeInspection,
		Location:    location,
		SubmittedBy: "driver",
		SubmittedAt: testNow.Add(-24 * time.Hour),
		Payload: map[string]any{
			"checklist":     checklist,
			"equipmentId":   asset,
			"safeToOperate": "Yes",
		},
	}
}

type testEnv struct {
	store     *fakeStore
	finder    *fakeFinder
	history   *fakeHistory
	document  *fakeRenderer
	workbook  *fakeRenderer
	deliverer *fakeDeliverer
	scheduler *Scheduler
}

func newTestEnv(schedules ...*types.Schedule) *testEnv {
	env := &testEnv{
		store: newFakeStore(schedules...),
		finder: &fakeFinder{subs: []types.Submission{
			inspection("s1", "Yard A", "TRK-1", map[string]any{"brakes": "Fail", "lights": "Pass"}),
			inspection("s2", "Yard A", "TRK-2", map[string]any{"brakes": "Pass"}),
		}},
		history:   newFakeHistory(),
		document:  &fakeRenderer{format: types.FormatDocument},
		workbook:  &fakeRenderer{format: types.FormatWorkbook},
		deliverer: &fakeDeliverer{},
	}
	env.scheduler = New(Config{
		Schedules:   env.store,
		Submissions: env.finder,
		Runs:        env.history,
		Renderers:   []reports.Renderer{env.document, env.workbook},
		Deliverer:   env.deliverer,
		Location:    chicago(),
		Clock:       fixedClock{testNow},
		Logger:      discardLogger(),
	})
	return env
}

func chicago() *time.Location {
	loc, err := time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
	return loc
}
