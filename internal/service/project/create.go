package project

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spmagent/contracts/mq"
	"spmagent/internal/apperr"
	"spmagent/internal/generator"
	"spmagent/internal/model"
	"spmagent/internal/repository"
	"spmagent/internal/roadmap"
	"spmagent/pkg/logger"
	"spmagent/pkg/metrics"
	"spmagent/pkg/trace"
)

// Progress messages emitted while a roadmap is created.
const (
	StepValidating = "Validating request"
	StepGenerating = "Generating roadmap"
	StepScheduling = "Scheduling modules"
	StepSaving     = "Saving roadmap"
)

// CreateInput is the body of POST /api/projects.
type CreateInput struct {
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	TechStack          []string      `json:"tech_stack"`
	PlanningMode       string        `json:"planning_mode"`
	DeadlineDate       *roadmap.Date `json:"deadline_date"`
	WorkingHoursPerDay *float64      `json:"working_hours_per_day"`
	// IdempotencyKey comes from the Idempotency-Key header.
	IdempotencyKey string `json:"-"`
}

// Progress receives creation progress. Implementations must not block for long.
type Progress interface {
	Status(msg string)
	Chunk(text string)
}

type noProgress struct{}

func (noProgress) Status(string) {}
func (noProgress) Chunk(string)  {}

// Create validates in, generates content, schedules it and persists the roadmap atomically.
// progress may be nil.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput, progress Progress) (tree *model.ProjectWithRoadmap, err error) {
	if progress == nil {
		progress = noProgress{}
	}
	log := logger.WithTrace(ctx, s.logger).With(zap.String("user_id", userID))

	progress.Status(StepValidating)
	today := roadmap.DateOf(s.now().UTC())
	req, err := s.validate(in, today)
	if err != nil {
		return nil, err
	}

	if in.IdempotencyKey != "" && s.claims != nil {
		scope := "create-roadmap:" + userID
		if !s.claims.AcquireOnce(ctx, scope, in.IdempotencyKey) {
			return nil, &apperr.ConflictError{Detail: "This roadmap request is already being processed."}
		}
		defer func() {
			if err != nil {
				s.claims.Release(context.WithoutCancel(ctx), scope, in.IdempotencyKey)
			}
		}()
	}

	if u, perr := s.profiles.FindByID(ctx, userID); perr == nil {
		if u.SkillLevel != nil {
			req.SkillLevel = *u.SkillLevel
		}
		if u.PreferredPace != nil {
			req.PreferredPace = *u.PreferredPace
		}
	} else if !errors.Is(perr, repository.ErrUserNotFound) {
		return nil, perr
	}

	progress.Status(StepGenerating)
	content, err := s.generator.Generate(ctx, req, progress.Chunk)
	if err == nil {
		err = content.Validate()
	}
	if err != nil {
		log.Error("Roadmap generation failed", zap.Error(err))
		return nil, &apperr.GenerationError{Cause: err}
	}

	progress.Status(StepScheduling)
	tree, err = assemble(userID, req, content, today, s.now().UTC())
	if err != nil {
		var infeasible *roadmap.InfeasibleScheduleError
		switch {
		case errors.As(err, &infeasible):
			metrics.IncrementInfeasible()
			log.Info("Deadline too tight for generated roadmap",
				zap.Int("required_days", infeasible.RequiredDays),
				zap.Int("available_days", infeasible.AvailableDays),
			)
		case apperr.IsContentInconsistency(err):
			log.Error("Generated roadmap could not be scheduled", zap.Error(err))
		}
		return nil, err
	}

	progress.Status(StepSaving)
	if err = s.store.CreateRoadmap(ctx, tree, repository.Event{
		RoutingKey: mq.RoutingProjectCreated,
		Payload:    createdPayload(ctx, tree),
	}); err != nil {
		return nil, err
	}

	metrics.IncrementProjectCreated(string(tree.PlanningMode))
	log.Info("Roadmap created",
		zap.String("project_id", tree.ID),
		zap.Int("modules", len(tree.Modules)),
		zap.Int("buffer_days", tree.BufferDays),
	)
	return tree, nil
}

func (s *Service) validate(in CreateInput, today roadmap.Date) (generator.Request, error) {
	title := strings.TrimSpace(in.Title)
	if n := utf8.RuneCountInString(title); n < 1 || n > 200 {
		return generator.Request{}, apperr.Validation("Title must be between 1 and 200 characters.")
	}
	description := strings.TrimSpace(in.Description)
	if utf8.RuneCountInString(description) < 10 {
		return generator.Request{}, apperr.Validation("Description must be at least 10 characters.")
	}

	stack := make([]string, 0, len(in.TechStack))
	for _, t := range in.TechStack {
		t = strings.TrimSpace(t)
		if t == "" {
			return generator.Request{}, apperr.Validation("Tech stack entries must not be empty.")
		}
		stack = append(stack, t)
	}

	mode, err := roadmap.ParsePlanningMode(in.PlanningMode)
	if err != nil {
		return generator.Request{}, err
	}
	deadline := in.DeadlineDate
	if deadline != nil && deadline.IsZero() {
		deadline = nil
	}
	switch mode {
	case roadmap.ModeDeadline:
		if deadline == nil {
			return generator.Request{}, apperr.Validation("deadline_date is required when planning_mode is 'deadline'.")
		}
		if !deadline.After(today) {
			return generator.Request{}, apperr.Validation("deadline_date must be in the future.")
		}
	case roadmap.ModeOpen:
		if deadline != nil {
			return generator.Request{}, apperr.Validation("deadline_date must be omitted when planning_mode is 'open'.")
		}
	}

	hours := s.planner.DefaultHoursPerDay
	if in.WorkingHoursPerDay != nil {
		hours = *in.WorkingHoursPerDay
	}
	if hours < 1 || hours > 16 {
		return generator.Request{}, apperr.Validation("working_hours_per_day must be between 1 and 16.")
	}

	return generator.Request{
		Title:        title,
		Description:  description,
		TechStack:    stack,
		PlanningMode: mode,
		DeadlineDate: deadline,
		HoursPerDay:  hours,
		Today:        today,
	}, nil
}

// assemble converts generated content into a scheduled project tree anchored at today.
// Every task estimate must be positive; a module lasts DaysFor(sum of its task hours).
func assemble(userID string, req generator.Request, content *generator.Content, today roadmap.Date, now time.Time) (*model.ProjectWithRoadmap, error) {
	inputs := make([]roadmap.ModuleInput, len(content.Modules))
	for i, m := range content.Modules {
		for _, t := range m.Tasks {
			if _, err := roadmap.DaysFor(t.EstimatedHours, req.HoursPerDay); err != nil {
				return nil, err
			}
		}
		days, err := roadmap.DaysFor(content.ModuleHours(i), req.HoursPerDay)
		if err != nil {
			return nil, err
		}
		inputs[i] = roadmap.ModuleInput{OrderIndex: i, EstimatedDays: days}
	}

	sched, err := roadmap.ScheduleModules(inputs, today, req.PlanningMode, req.DeadlineDate)
	if err != nil {
		return nil, err
	}

	tree := &model.ProjectWithRoadmap{
		Project: model.Project{
			ID:                 uuid.NewString(),
			UserID:             userID,
			Title:              req.Title,
			Description:        req.Description,
			TechStack:          req.TechStack,
			PlanningMode:       req.PlanningMode,
			DeadlineDate:       req.DeadlineDate,
			WorkingHoursPerDay: req.HoursPerDay,
			Status:             roadmap.ProjectPlanning,
			BufferDays:         sched.BufferDays,
			CreatedAt:          now,
			UpdatedAt:          now,
		},
		Modules: make([]model.Module, len(content.Modules)),
	}

	for i, mc := range content.Modules {
		span := sched.Spans[i]
		m := model.Module{
			ID:            uuid.NewString(),
			ProjectID:     tree.ID,
			Title:         mc.Title,
			Description:   mc.Description,
			OrderIndex:    i,
			Status:        roadmap.ModulePending,
			EstimatedDays: inputs[i].EstimatedDays,
			StartDate:     span.StartDate,
			EndDate:       span.EndDate,
			Tasks:         make([]model.Task, len(mc.Tasks)),
			CreatedAt:     now,
		}
		for j, tc := range mc.Tasks {
			deadline, ok, err := roadmap.TaskDeadline(span, tc.NeedsDeadline, tc.Deadline)
			if err != nil {
				return nil, err
			}
			t := model.Task{
				ID:             uuid.NewString(),
				ModuleID:       m.ID,
				ProjectID:      tree.ID,
				Title:          tc.Title,
				Description:    tc.Description,
				OrderIndex:     j,
				Status:         roadmap.TaskPending,
				EstimatedHours: tc.EstimatedHours,
				CreatedAt:      now,
			}
			if ok {
				t.Deadline = &deadline
			}
			m.Tasks[j] = t
		}
		tree.Modules[i] = m
	}

	tree.Rollup()
	return tree, nil
}

func createdPayload(ctx context.Context, tree *model.ProjectWithRoadmap) mq.ProjectCreatedPayload {
	p := mq.ProjectCreatedPayload{
		ProjectID:    tree.ID,
		UserID:       tree.UserID,
		Title:        tree.Title,
		PlanningMode: string(tree.PlanningMode),
		BufferDays:   tree.BufferDays,
		ModuleCount:  len(tree.Modules),
		TraceID:      trace.FromContext(ctx),
		OccurredAt:   tree.CreatedAt,
	}
	if tree.DeadlineDate != nil {
		p.DeadlineDate = tree.DeadlineDate.String()
	}
	if n := len(tree.Modules); n > 0 {
		p.StartDate = tree.Modules[0].StartDate.String()
		p.EndDate = tree.Modules[n-1].EndDate.String()
	}
	for _, m := range tree.Modules {
		p.TaskCount += len(m.Tasks)
	}
	return p
}
