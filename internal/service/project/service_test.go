package project

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spmagent/contracts/mq"
	"spmagent/internal/apperr"
	"spmagent/internal/config"
	"spmagent/internal/generator"
	"spmagent/internal/model"
	"spmagent/internal/repository"
	"spmagent/internal/roadmap"
)

type fakeStore struct {
	mu       sync.Mutex
	projects map[string]*model.ProjectWithRoadmap
	events   []repository.Event
	failSave error
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: map[string]*model.ProjectWithRoadmap{}}
}

func cloneTree(p *model.ProjectWithRoadmap) *model.ProjectWithRoadmap {
	cp := *p
	cp.Modules = make([]model.Module, len(p.Modules))
	for i, m := range p.Modules {
		m.Tasks = append([]model.Task(nil), m.Tasks...)
		cp.Modules[i] = m
	}
	return &cp
}

func (f *fakeStore) CreateRoadmap(_ context.Context, p *model.ProjectWithRoadmap, event repository.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	f.projects[p.ID] = cloneTree(p)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) ListProjects(_ context.Context, userID string) ([]model.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, p.Project)
		}
	}
	return out, nil
}

func (f *fakeStore) get(userID, projectID string) (*model.ProjectWithRoadmap, error) {
	p, ok := f.projects[projectID]
	if !ok || p.UserID != userID {
		return nil, repository.ErrProjectNotFound
	}
	return p, nil
}

func (f *fakeStore) GetProject(_ context.Context, userID, projectID string) (*model.ProjectWithRoadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(userID, projectID)
	if err != nil {
		return nil, err
	}
	tree := cloneTree(p)
	tree.Rollup()
	return tree, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, userID, projectID, taskID string, mutate repository.TaskMutation) (*model.ProjectWithRoadmap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(userID, projectID)
	if err != nil {
		return nil, err
	}
	tree := cloneTree(p)
	for i := range tree.Modules {
		for j := range tree.Modules[i].Tasks {
			if tree.Modules[i].Tasks[j].ID != taskID {
				continue
			}
			event, err := mutate(tree, &tree.Modules[i], &tree.Modules[i].Tasks[j])
			if err != nil {
				return nil, err
			}
			f.projects[projectID] = tree
			if event != nil {
				f.events = append(f.events, *event)
			}
			return tree, nil
		}
	}
	return nil, repository.ErrTaskNotFound
}

func (f *fakeStore) Archive(_ context.Context, userID, projectID string, event repository.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, err := f.get(userID, projectID)
	if err != nil {
		return err
	}
	p.Status = roadmap.ProjectArchived
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) Delete(_ context.Context, userID, projectID string, event repository.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.get(userID, projectID); err != nil {
		return err
	}
	delete(f.projects, projectID)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeStore) DeadlineCandidates(_ context.Context, userID string) ([]roadmap.DeadlineCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []roadmap.DeadlineCandidate
	for _, p := range f.projects {
		if p.UserID != userID {
			continue
		}
		for _, m := range p.Modules {
			for _, t := range m.Tasks {
				out = append(out, roadmap.DeadlineCandidate{
					ProjectID: p.ID, ProjectTitle: p.Title, TaskID: t.ID, TaskTitle: t.Title,
					ModuleOrderIndex: m.OrderIndex, TaskOrderIndex: t.OrderIndex,
					Deadline: t.Deadline, Status: t.Status,
				})
			}
		}
	}
	return out, nil
}

type fakeGenerator struct {
	content *generator.Content
	err     error
	chunks  []string
	calls   int
	lastReq generator.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req generator.Request, onChunk func(string)) (*generator.Content, error) {
	g.calls++
	g.lastReq = req
	for _, c := range g.chunks {
		if onChunk != nil {
			onChunk(c)
		}
	}
	return g.content, g.err
}

type fakeProfiles struct {
	user *model.User
}

func (f fakeProfiles) FindByID(_ context.Context, id string) (*model.User, error) {
	if f.user == nil || f.user.ID != id {
		return nil, repository.ErrUserNotFound
	}
	return f.user, nil
}

type fakeClaimer struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func (c *fakeClaimer) AcquireOnce(_ context.Context, scope, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[scope+key] {
		return false
	}
	c.held[scope+key] = true
	return true
}

func (c *fakeClaimer) Release(_ context.Context, scope, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, scope+key)
	c.released = append(c.released, key)
}

type recorder struct {
	steps  []string
	chunks []string
}

func (r *recorder) Status(msg string) { r.steps = append(r.steps, msg) }
func (r *recorder) Chunk(text string) { r.chunks = append(r.chunks, text) }

const owner = "user-1"

var today = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

// twoModules has module hours 18 and 30: 3 and 5 days at 6 hours per day.
func twoModules() *generator.Content {
	proposed := roadmap.MustParseDate("2024-01-05")
	return &generator.Content{Modules: []generator.ModuleContent{
		{Title: "Setup", Tasks: []generator.TaskContent{
			{Title: "Scaffold", EstimatedHours: 6},
			{Title: "CI", EstimatedHours: 12, NeedsDeadline: true},
		}},
		{Title: "Build", Tasks: []generator.TaskContent{
			{Title: "API", EstimatedHours: 20, Deadline: &proposed},
			{Title: "UI", EstimatedHours: 10},
		}},
	}}
}

type harness struct {
	svc    *Service
	store  *fakeStore
	gen    *fakeGenerator
	claims *fakeClaimer
}

func newHarness(content *generator.Content) *harness {
	h := &harness{
		store:  newFakeStore(),
		gen:    &fakeGenerator{content: content, chunks: []string{`{"modules":`, `[...]}`}},
		claims: &fakeClaimer{held: map[string]bool{}},
	}
	level, pace := "junior", "relaxed"
	profiles := fakeProfiles{user: &model.User{ID: owner, SkillLevel: &level, PreferredPace: &pace}}
	h.svc = NewService(h.store, profiles, h.gen, h.claims, config.PlannerConfig{
		DefaultHoursPerDay: 6, DeadlineLimit: 2, MaxDeadlineLimit: 3,
	}, nil)
	h.svc.now = func() time.Time { return today }
	return h
}

func openInput() CreateInput {
	return CreateInput{
		Title:        "  Portfolio site ",
		Description:  "A personal site with a blog and contact form.",
		TechStack:    []string{"Go", " React "},
		PlanningMode: "open",
	}
}

func statusOf(err error) int {
	status, _ := apperr.Status(err)
	return status
}

func TestCreate_OpenModeSchedulesContiguously(t *testing.T) {
	h := newHarness(twoModules())
	rec := &recorder{}

	p, err := h.svc.Create(context.Background(), owner, openInput(), rec)
	require.NoError(t, err)

	assert.Equal(t, "Portfolio site", p.Title)
	assert.Equal(t, []string{"Go", "React"}, p.TechStack)
	assert.Equal(t, 6.0, p.WorkingHoursPerDay)
	assert.Equal(t, roadmap.ProjectPlanning, p.Status)
	assert.Equal(t, 0, p.BufferDays)
	require.Len(t, p.Modules, 2)

	m0, m1 := p.Modules[0], p.Modules[1]
	assert.Equal(t, 3, m0.EstimatedDays)
	assert.Equal(t, "2024-01-01", m0.StartDate.String())
	assert.Equal(t, "2024-01-03", m0.EndDate.String())
	assert.Equal(t, 5, m1.EstimatedDays)
	assert.Equal(t, "2024-01-04", m1.StartDate.String())
	assert.Equal(t, "2024-01-08", m1.EndDate.String())

	assert.Nil(t, m0.Tasks[0].Deadline, "no deadline requested")
	require.NotNil(t, m0.Tasks[1].Deadline)
	assert.Equal(t, "2024-01-03", m0.Tasks[1].Deadline.String(), "requested deadline is the module end")
	require.NotNil(t, m1.Tasks[0].Deadline)
	assert.Equal(t, "2024-01-05", m1.Tasks[0].Deadline.String(), "proposed date inside the module is kept")
	assert.Nil(t, m1.Tasks[1].Deadline)

	for _, m := range p.Modules {
		assert.Equal(t, roadmap.ModulePending, m.Status)
		for _, task := range m.Tasks {
			assert.Equal(t, roadmap.TaskPending, task.Status)
			assert.Equal(t, m.ID, task.ModuleID)
			assert.Equal(t, p.ID, task.ProjectID)
		}
	}

	assert.Equal(t, []string{StepValidating, StepGenerating, StepScheduling, StepSaving}, rec.steps)
	assert.Len(t, rec.chunks, 2)
	assert.Equal(t, "junior", h.gen.lastReq.SkillLevel)
	assert.Equal(t, "relaxed", h.gen.lastReq.PreferredPace)

	require.Len(t, h.store.events, 1)
	assert.Equal(t, mq.RoutingProjectCreated, h.store.events[0].RoutingKey)
	payload := h.store.events[0].Payload.(mq.ProjectCreatedPayload)
	assert.Equal(t, 4, payload.TaskCount)
	assert.Equal(t, "2024-01-08", payload.EndDate)
}

func TestCreate_TaskDeadlineOutsideModuleIsContentError(t *testing.T) {
	content := twoModules()
	outside := roadmap.MustParseDate("2024-02-01")
	content.Modules[1].Tasks[0].Deadline = &outside
	h := newHarness(content)

	_, err := h.svc.Create(context.Background(), owner, openInput(), nil)
	status, detail := apperr.Status(err)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, apperr.DetailGeneration, detail)
	assert.Empty(t, h.store.projects)
}

func TestCreate_DeadlineMode(t *testing.T) {
	h := newHarness(twoModules())
	in := openInput()
	in.PlanningMode = "deadline"
	deadline := roadmap.MustParseDate("2024-01-10")
	in.DeadlineDate = &deadline

	p, err := h.svc.Create(context.Background(), owner, in, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, p.BufferDays, "10 days available, 8 required")
	assert.Equal(t, "2024-01-10", p.DeadlineDate.String())
}

func TestCreate_DeadlineTooTightIsInfeasible(t *testing.T) {
	h := newHarness(twoModules())
	in := openInput()
	in.PlanningMode = "deadline"
	deadline := roadmap.MustParseDate("2024-01-05")
	in.DeadlineDate = &deadline

	_, err := h.svc.Create(context.Background(), owner, in, nil)
	var infeasible *roadmap.InfeasibleScheduleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, 3, infeasible.ShortfallDays)
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(err))
	assert.Empty(t, h.store.projects, "nothing persisted")
}

func TestCreate_Validation(t *testing.T) {
	past := roadmap.MustParseDate("2024-01-01")
	future := roadmap.MustParseDate("2024-03-01")
	hours := func(v float64) *float64 { return &v }

	tests := []struct {
		name   string
		mutate func(*CreateInput)
		detail string
	}{
		{"empty title", func(in *CreateInput) { in.Title = "   " }, "Title must be between 1 and 200 characters."},
		{"short description", func(in *CreateInput) { in.Description = "too short" }, "Description must be at least 10 characters."},
		{"blank tech", func(in *CreateInput) { in.TechStack = []string{"Go", " "} }, "Tech stack entries must not be empty."},
		{"bad mode", func(in *CreateInput) { in.PlanningMode = "someday" }, ""},
		{"deadline missing", func(in *CreateInput) { in.PlanningMode = "deadline" },
			"deadline_date is required when planning_mode is 'deadline'."},
		{"deadline today", func(in *CreateInput) { in.PlanningMode = "deadline"; in.DeadlineDate = &past },
			"deadline_date must be in the future."},
		{"deadline in open mode", func(in *CreateInput) { in.DeadlineDate = &future },
			"deadline_date must be omitted when planning_mode is 'open'."},
		{"hours too low", func(in *CreateInput) { in.WorkingHoursPerDay = hours(0.5) },
			"working_hours_per_day must be between 1 and 16."},
		{"hours too high", func(in *CreateInput) { in.WorkingHoursPerDay = hours(17) },
			"working_hours_per_day must be between 1 and 16."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(twoModules())
			in := openInput()
			tt.mutate(&in)

			_, err := h.svc.Create(context.Background(), owner, in, nil)
			status, detail := apperr.Status(err)
			assert.Equal(t, http.StatusBadRequest, status)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, detail)
			}
			assert.Zero(t, h.gen.calls, "generator is not called for invalid input")
		})
	}
}

func TestCreate_GenerationFailureReleasesIdempotencyKey(t *testing.T) {
	h := newHarness(nil)
	h.gen.err = errors.New("upstream overloaded")
	in := openInput()
	in.IdempotencyKey = "abc"

	_, err := h.svc.Create(context.Background(), owner, in, nil)
	assert.Equal(t, http.StatusBadGateway, statusOf(err))
	assert.Equal(t, []string{"abc"}, h.claims.released)

	h.gen.err = nil
	h.gen.content = twoModules()
	_, err = h.svc.Create(context.Background(), owner, in, nil)
	require.NoError(t, err, "a released key can be retried")
}

func TestCreate_DuplicateIdempotencyKeyConflicts(t *testing.T) {
	h := newHarness(twoModules())
	in := openInput()
	in.IdempotencyKey = "abc"

	_, err := h.svc.Create(context.Background(), owner, in, nil)
	require.NoError(t, err)

	_, err = h.svc.Create(context.Background(), owner, in, nil)
	assert.Equal(t, http.StatusConflict, statusOf(err))
	assert.Equal(t, 1, h.gen.calls)
}

func TestCreate_EmptyContentAndBadEstimate(t *testing.T) {
	h := newHarness(&generator.Content{})
	_, err := h.svc.Create(context.Background(), owner, openInput(), nil)
	assert.Equal(t, http.StatusBadGateway, statusOf(err))

	content := twoModules()
	content.Modules[0].Tasks[0].EstimatedHours = 0
	h = newHarness(content)
	_, err = h.svc.Create(context.Background(), owner, openInput(), nil)
	var estimate *roadmap.InvalidEstimateError
	assert.ErrorAs(t, err, &estimate)
	assert.Equal(t, http.StatusBadGateway, statusOf(err))
}

func TestCreate_OversizedEstimateIsContentError(t *testing.T) {
	for _, hours := range []float64{1e20, 1e15, roadmap.MaxEstimatedDays*6 + 1} {
		content := twoModules()
		content.Modules[1].Tasks[1].EstimatedHours = hours
		h := newHarness(content)

		_, err := h.svc.Create(context.Background(), owner, openInput(), nil)
		status, detail := apperr.Status(err)
		assert.Equal(t, http.StatusBadGateway, status, "hours=%g", hours)
		assert.Equal(t, apperr.DetailGeneration, detail)
		assert.Empty(t, h.store.projects, "hours=%g", hours)
	}
}

func TestCreate_AnchorsOnUTCDate(t *testing.T) {
	h := newHarness(twoModules())
	// 2024-01-01T20:00Z seen from UTC+10 is already 2024-01-02 locally.
	h.svc.now = func() time.Time {
		return time.Date(2024, 1, 2, 6, 0, 0, 0, time.FixedZone("UTC+10", 10*3600))
	}

	p, err := h.svc.Create(context.Background(), owner, openInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01", p.Modules[0].StartDate.String())
	assert.Equal(t, "2024-01-01", h.gen.lastReq.Today.String())
}

func TestCreate_SaveFailureReturnsError(t *testing.T) {
	h := newHarness(twoModules())
	h.store.failSave = errors.New("connection reset")

	_, err := h.svc.Create(context.Background(), owner, openInput(), nil)
	assert.Equal(t, http.StatusInternalServerError, statusOf(err))
}

func createOne(t *testing.T, h *harness) *model.ProjectWithRoadmap {
	t.Helper()
	p, err := h.svc.Create(context.Background(), owner, openInput(), nil)
	require.NoError(t, err)
	return p
}

func TestUpdateTaskStatus_RollsUp(t *testing.T) {
	h := newHarness(twoModules())
	p := createOne(t, h)
	ctx := context.Background()
	m0 := p.Modules[0]

	up, err := h.svc.UpdateTaskStatus(ctx, owner, p.ID, m0.Tasks[0].ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, roadmap.TaskCompleted, up.Task.Status)
	require.NotNil(t, up.Task.CompletedAt)
	assert.Equal(t, today, *up.Task.CompletedAt)
	assert.Equal(t, roadmap.ModuleInProgress, up.ModuleStatus)
	assert.Equal(t, roadmap.Progress{Completed: 1, Total: 2, Percent: 50}, up.ModuleProgress)
	assert.Equal(t, roadmap.ProjectActive, up.ProjectStatus)
	assert.Equal(t, 25, up.ProjectProgress.Percent)

	up, err = h.svc.UpdateTaskStatus(ctx, owner, p.ID, m0.Tasks[1].ID, "completed")
	require.NoError(t, err)
	assert.Equal(t, roadmap.ModuleCompleted, up.ModuleStatus)

	up, err = h.svc.UpdateTaskStatus(ctx, owner, p.ID, m0.Tasks[0].ID, "pending")
	require.NoError(t, err)
	assert.Nil(t, up.Task.CompletedAt, "leaving completed clears completed_at")
	assert.Equal(t, roadmap.ModuleInProgress, up.ModuleStatus)

	last := h.store.events[len(h.store.events)-1]
	assert.Equal(t, mq.RoutingTaskStatusChanged, last.RoutingKey)
	payload := last.Payload.(mq.TaskStatusChangedPayload)
	assert.Equal(t, "completed", payload.From)
	assert.Equal(t, "pending", payload.To)
}

func TestUpdateTaskStatus_AllCompletedCompletesProject(t *testing.T) {
	h := newHarness(twoModules())
	p := createOne(t, h)

	var up *model.TaskUpdate
	for _, m := range p.Modules {
		for _, task := range m.Tasks {
			var err error
			up, err = h.svc.UpdateTaskStatus(context.Background(), owner, p.ID, task.ID, "completed")
			require.NoError(t, err)
		}
	}
	assert.Equal(t, roadmap.ProjectCompleted, up.ProjectStatus)
	assert.Equal(t, 100, up.ProjectProgress.Percent)
}

func TestUpdateTaskStatus_Errors(t *testing.T) {
	h := newHarness(twoModules())
	p := createOne(t, h)
	taskID := p.Modules[0].Tasks[0].ID
	ctx := context.Background()

	_, err := h.svc.UpdateTaskStatus(ctx, owner, p.ID, taskID, "done")
	assert.Equal(t, http.StatusBadRequest, statusOf(err))

	_, err = h.svc.UpdateTaskStatus(ctx, owner, p.ID, "missing", "completed")
	_, detail := apperr.Status(err)
	assert.Equal(t, "Task not found.", detail)

	_, err = h.svc.UpdateTaskStatus(ctx, "someone-else", p.ID, taskID, "completed")
	_, detail = apperr.Status(err)
	assert.Equal(t, "Project not found.", detail)
}

func TestArchive_StaysArchived(t *testing.T) {
	h := newHarness(twoModules())
	p := createOne(t, h)
	ctx := context.Background()

	summary, err := h.svc.Archive(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, roadmap.ProjectArchived, summary.Status)

	up, err := h.svc.UpdateTaskStatus(ctx, owner, p.ID, p.Modules[0].Tasks[0].ID, "in_progress")
	require.NoError(t, err)
	assert.Equal(t, roadmap.ProjectArchived, up.ProjectStatus)

	_, err = h.svc.Archive(ctx, "someone-else", p.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
}

func TestDelete(t *testing.T) {
	h := newHarness(twoModules())
	p := createOne(t, h)
	ctx := context.Background()

	require.NoError(t, h.svc.Delete(ctx, owner, p.ID))
	assert.Equal(t, mq.RoutingProjectDeleted, h.store.events[len(h.store.events)-1].RoutingKey)

	_, err := h.svc.Get(ctx, owner, p.ID)
	assert.Equal(t, http.StatusNotFound, statusOf(err))
	assert.Equal(t, http.StatusNotFound, statusOf(h.svc.Delete(ctx, owner, p.ID)))
}

func TestDeadlines_LimitDefaultsAndCap(t *testing.T) {
	content := twoModules()
	for i := range content.Modules {
		for j := range content.Modules[i].Tasks {
			content.Modules[i].Tasks[j].NeedsDeadline = true
			content.Modules[i].Tasks[j].Deadline = nil
		}
	}
	h := newHarness(content)
	p := createOne(t, h)
	ctx := context.Background()

	items, err := h.svc.Deadlines(ctx, owner, 0)
	require.NoError(t, err)
	assert.Len(t, items, 2, "configured default")

	items, err = h.svc.Deadlines(ctx, owner, 100)
	require.NoError(t, err)
	assert.Len(t, items, 3, "capped at the configured maximum")
	assert.Equal(t, p.Modules[0].Tasks[0].ID, items[0].TaskID)

	_, err = h.svc.UpdateTaskStatus(ctx, owner, p.ID, p.Modules[0].Tasks[0].ID, "completed")
	require.NoError(t, err)
	items, err = h.svc.Deadlines(ctx, owner, 3)
	require.NoError(t, err)
	for _, it := range items {
		assert.NotEqual(t, roadmap.TaskCompleted, it.Status)
	}
}

func collect(ch <-chan StreamEvent) []StreamEvent {
	var out []StreamEvent
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestStream_EmitsOrderedEventsThenDone(t *testing.T) {
	h := newHarness(twoModules())

	events := collect(h.svc.Stream(context.Background(), owner, openInput()))

	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventStatus, EventStatus, EventChunk, EventChunk, EventStatus, EventStatus, EventDone}, types)
	assert.Equal(t, StepValidating, events[0].Data)

	done := events[len(events)-1]
	_, ok := h.store.projects[done.Data]
	assert.True(t, ok, "done carries the new project id")
}

func TestStream_ErrorFrameEndsStream(t *testing.T) {
	h := newHarness(twoModules())
	in := openInput()
	in.Title = ""

	events := collect(h.svc.Stream(context.Background(), owner, in))
	require.Len(t, events, 2)
	assert.Equal(t, EventError, events[1].Type)
	assert.Equal(t, "Title must be between 1 and 200 characters.", events[1].Data)
}

func TestStream_ListenerGoneStillPersists(t *testing.T) {
	h := newHarness(twoModules())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ch := h.svc.Stream(ctx, owner, openInput())
	for range ch {
	}

	assert.Len(t, h.store.projects, 1)
}
