// Package project turns a project description into a scheduled roadmap and manages
// the roadmap afterwards: task status changes, archive, delete and the deadline view.
package project

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"spmagent/contracts/mq"
	"spmagent/internal/apperr"
	"spmagent/internal/config"
	"spmagent/internal/generator"
	"spmagent/internal/model"
	"spmagent/internal/repository"
	"spmagent/internal/roadmap"
	"spmagent/pkg/logger"
	"spmagent/pkg/metrics"
	"spmagent/pkg/trace"
)

// Store is the persistence the service drives. *repository.ProjectRepository implements it.
type Store interface {
	CreateRoadmap(ctx context.Context, p *model.ProjectWithRoadmap, event repository.Event) error
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	GetProject(ctx context.Context, userID, projectID string) (*model.ProjectWithRoadmap, error)
	UpdateTask(ctx context.Context, userID, projectID, taskID string, mutate repository.TaskMutation) (*model.ProjectWithRoadmap, error)
	Archive(ctx context.Context, userID, projectID string, event repository.Event) error
	Delete(ctx context.Context, userID, projectID string, event repository.Event) error
	DeadlineCandidates(ctx context.Context, userID string) ([]roadmap.DeadlineCandidate, error)
}

// ProfileSource supplies the developer profile passed to the generator.
type ProfileSource interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Claimer guards against duplicate creation requests. *util.Deduper implements it.
type Claimer interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

type Service struct {
	store     Store
	profiles  ProfileSource
	generator generator.Generator
	claims    Claimer
	planner   config.PlannerConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(
	store Store,
	profiles ProfileSource,
	gen generator.Generator,
	claims Claimer,
	planner config.PlannerConfig,
	logger *zap.Logger,
) *Service {
	if planner.DefaultHoursPerDay <= 0 {
		planner.DefaultHoursPerDay = roadmap.DefaultHoursPerDay
	}
	if planner.DeadlineLimit <= 0 {
		planner.DeadlineLimit = roadmap.DefaultDeadlineLimit
	}
	if planner.MaxDeadlineLimit < planner.DeadlineLimit {
		planner.MaxDeadlineLimit = 200
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		profiles:  profiles,
		generator: gen,
		claims:    claims,
		planner:   planner,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) List(ctx context.Context, userID string) ([]model.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, projectID string) (*model.ProjectWithRoadmap, error) {
	p, err := s.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

// UpdateTaskStatus applies a user status change and returns the task as stored with the
// module and project rollups it caused.
func (s *Service) UpdateTaskStatus(ctx context.Context, userID, projectID, taskID, status string) (*model.TaskUpdate, error) {
	next, err := roadmap.ParseTaskStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		update model.TaskUpdate
		from   roadmap.TaskStatus
	)
	_, err = s.store.UpdateTask(ctx, userID, projectID, taskID,
		func(tree *model.ProjectWithRoadmap, module *model.Module, task *model.Task) (*repository.Event, error) {
			from = task.Status
			state, err := roadmap.Transition(roadmap.TaskState{Status: task.Status, CompletedAt: task.CompletedAt}, next, s.now())
			if err != nil {
				return nil, err
			}
			task.Status, task.CompletedAt = state.Status, state.CompletedAt
			tree.Rollup()

			update = model.TaskUpdate{
				Task:            *task,
				ModuleStatus:    module.Status,
				ModuleProgress:  module.Progress,
				ProjectStatus:   tree.Status,
				ProjectProgress: tree.Progress,
			}
			return &repository.Event{
				RoutingKey: mq.RoutingTaskStatusChanged,
				Payload: mq.TaskStatusChangedPayload{
					TaskID:        task.ID,
					ModuleID:      module.ID,
					ProjectID:     tree.ID,
					UserID:        userID,
					From:          string(from),
					To:            string(task.Status),
					ModuleStatus:  string(module.Status),
					ProjectStatus: string(tree.Status),
					TraceID:       trace.FromContext(ctx),
					OccurredAt:    s.now().UTC(),
				},
			}, nil
		})
	if err != nil {
		return nil, notFound(err)
	}

	metrics.IncrementTaskTransition(string(from), string(next))
	logger.WithTrace(ctx, s.logger).Info("Task status updated",
		zap.String("project_id", projectID),
		zap.String("task_id", taskID),
		zap.String("from", string(from)),
		zap.String("to", string(next)),
	)
	return &update, nil
}

// Archive marks the project archived and returns its summary.
func (s *Service) Archive(ctx context.Context, userID, projectID string) (*model.Project, error) {
	err := s.store.Archive(ctx, userID, projectID, s.lifecycleEvent(ctx, mq.RoutingProjectArchived, userID, projectID))
	if err != nil {
		return nil, notFound(err)
	}
	p, err := s.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, notFound(err)
	}
	return &p.Project, nil
}

func (s *Service) Delete(ctx context.Context, userID, projectID string) error {
	err := s.store.Delete(ctx, userID, projectID, s.lifecycleEvent(ctx, mq.RoutingProjectDeleted, userID, projectID))
	if err != nil {
		return notFound(err)
	}
	logger.WithTrace(ctx, s.logger).Info("Project deleted", zap.String("project_id", projectID))
	return nil
}

// Deadlines returns the owner's open tasks with a deadline, soonest first. limit <= 0 selects
// the configured default; larger values are capped.
func (s *Service) Deadlines(ctx context.Context, userID string, limit int) ([]roadmap.DeadlineItem, error) {
	if limit <= 0 {
		limit = s.planner.DeadlineLimit
	}
	if limit > s.planner.MaxDeadlineLimit {
		limit = s.planner.MaxDeadlineLimit
	}
	candidates, err := s.store.DeadlineCandidates(ctx, userID)
	if err != nil {
		return nil, err
	}
	return roadmap.UpcomingDeadlines(candidates, limit), nil
}

func (s *Service) lifecycleEvent(ctx context.Context, key, userID, projectID string) repository.Event {
	return repository.Event{
		RoutingKey: key,
		Payload: mq.ProjectLifecyclePayload{
			ProjectID:  projectID,
			UserID:     userID,
			TraceID:    trace.FromContext(ctx),
			OccurredAt: s.now().UTC(),
		},
	}
}

func notFound(err error) error {
	switch {
	case errors.Is(err, repository.ErrProjectNotFound):
		return &apperr.NotFoundError{Resource: "project"}
	case errors.Is(err, repository.ErrTaskNotFound):
		return &apperr.NotFoundError{Resource: "task"}
	default:
		return err
	}
}
