package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"spmagent/internal/model"
	"spmagent/internal/roadmap"
	"spmagent/pkg/outbox"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrTaskNotFound    = errors.New("task not found")
)

// Event is an outbox record written in the same transaction as the change it describes.
type Event struct {
	RoutingKey string
	Payload    any
}

// TaskMutation edits task (and any derived state on tree) in memory while the project row is locked.
// The returned event, if any, is written to the outbox with the update.
type TaskMutation func(tree *model.ProjectWithRoadmap, module *model.Module, task *model.Task) (*Event, error)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ProjectRepository struct {
	db *pgxpool.Pool
}

func NewProjectRepository(db *pgxpool.Pool) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// CreateRoadmap inserts the project, its modules and tasks, and event in one transaction.
func (r *ProjectRepository) CreateRoadmap(ctx context.Context, p *model.ProjectWithRoadmap, event Event) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO projects (id, user_id, title, description, tech_stack, planning_mode, deadline_date,
		                      working_hours_per_day, status, buffer_days, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		p.ID, p.UserID, p.Title, p.Description, p.TechStack, p.PlanningMode, p.DeadlineDate,
		p.WorkingHoursPerDay, p.Status, p.BufferDays, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}

	moduleRows := make([][]any, 0, len(p.Modules))
	var taskRows [][]any
	for _, m := range p.Modules {
		moduleRows = append(moduleRows, []any{
			m.ID, m.ProjectID, m.Title, m.Description, m.OrderIndex, m.Status,
			m.EstimatedDays, m.StartDate, m.EndDate, m.CreatedAt,
		})
		for _, t := range m.Tasks {
			taskRows = append(taskRows, []any{
				t.ID, t.ModuleID, t.ProjectID, t.Title, t.Description, t.OrderIndex, t.Status,
				t.EstimatedHours, t.Deadline, t.CompletedAt, t.CreatedAt,
			})
		}
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"modules"},
		[]string{"id", "project_id", "title", "description", "order_index", "status",
			"estimated_days", "start_date", "end_date", "created_at"},
		pgx.CopyFromRows(moduleRows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert modules: %w", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"tasks"},
		[]string{"id", "module_id", "project_id", "title", "description", "order_index", "status",
			"estimated_hours", "deadline", "completed_at", "created_at"},
		pgx.CopyFromRows(taskRows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert tasks: %w", err)
	}

	if err := outbox.InsertEventInTx(ctx, tx, "project", p.ID, event.RoutingKey, event.Payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit roadmap: %w", err)
	}
	return nil
}

// ListProjects returns the owner's projects, newest first, with project-level progress.
func (r *ProjectRepository) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.user_id, p.title, p.description, p.tech_stack, p.planning_mode, p.deadline_date,
		       p.working_hours_per_day, p.status, p.buffer_days, p.created_at, p.updated_at,
		       COUNT(t.id) FILTER (WHERE t.status = 'completed'), COUNT(t.id)
		FROM projects p
		LEFT JOIN tasks t ON t.project_id = p.id
		WHERE p.user_id = $1
		GROUP BY p.id
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var (
			p                model.Project
			completed, total int
		)
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Title, &p.Description, &p.TechStack, &p.PlanningMode, &p.DeadlineDate,
			&p.WorkingHoursPerDay, &p.Status, &p.BufferDays, &p.CreatedAt, &p.UpdatedAt,
			&completed, &total,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.Progress = roadmap.ProgressOf(completed, total)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// GetProject loads the full tree with derived status and progress.
func (r *ProjectRepository) GetProject(ctx context.Context, userID, projectID string) (*model.ProjectWithRoadmap, error) {
	tree, err := loadTree(ctx, r.db, userID, projectID, false)
	if err != nil {
		return nil, err
	}
	tree.Rollup()
	return tree, nil
}

// UpdateTask locks the project row, applies mutate, and persists the task, its module,
// the project status and the returned event atomically. The project lock serializes
// concurrent updates so rollups always see every sibling task's latest status.
func (r *ProjectRepository) UpdateTask(ctx context.Context, userID, projectID, taskID string, mutate TaskMutation) (*model.ProjectWithRoadmap, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tree, err := loadTree(ctx, tx, userID, projectID, true)
	if err != nil {
		return nil, err
	}

	module, task := findTask(tree, taskID)
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	event, err := mutate(tree, module, task)
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE tasks SET status = $2, completed_at = $3 WHERE id = $1`,
		task.ID, task.Status, task.CompletedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE modules SET status = $2 WHERE id = $1`,
		module.ID, module.Status,
	); err != nil {
		return nil, fmt.Errorf("failed to update module: %w", err)
	}
	if err := tx.QueryRow(ctx,
		`UPDATE projects SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
		tree.ID, tree.Status,
	).Scan(&tree.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	if event != nil {
		if err := outbox.InsertEventInTx(ctx, tx, "task", task.ID, event.RoutingKey, event.Payload); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return tree, nil
}

// Archive marks the project archived. Rollups never move it out of that state.
func (r *ProjectRepository) Archive(ctx context.Context, userID, projectID string, event Event) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE projects SET status = 'archived', updated_at = NOW() WHERE id = $1 AND user_id = $2`,
			projectID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to archive project: %w", err)
		}
		if err := requireRow(tag, projectID); err != nil {
			return err
		}
		return outbox.InsertEventInTx(ctx, tx, "project", projectID, event.RoutingKey, event.Payload)
	})
}

// Delete removes the project; modules and tasks go with it via ON DELETE CASCADE.
func (r *ProjectRepository) Delete(ctx context.Context, userID, projectID string, event Event) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM projects WHERE id = $1 AND user_id = $2`, projectID, userID)
		if err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		if err := requireRow(tag, projectID); err != nil {
			return err
		}
		return outbox.InsertEventInTx(ctx, tx, "project", projectID, event.RoutingKey, event.Payload)
	})
}

// DeadlineCandidates returns the owner's open tasks that carry a deadline, unsorted.
func (r *ProjectRepository) DeadlineCandidates(ctx context.Context, userID string) ([]roadmap.DeadlineCandidate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.title, t.id, t.title, m.order_index, t.order_index, t.deadline, t.status
		FROM tasks t
		JOIN modules m ON m.id = t.module_id
		JOIN projects p ON p.id = t.project_id
		WHERE p.user_id = $1
		  AND t.deadline IS NOT NULL
		  AND t.status <> 'completed'
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deadlines: %w", err)
	}
	defer rows.Close()

	var out []roadmap.DeadlineCandidate
	for rows.Next() {
		var c roadmap.DeadlineCandidate
		if err := rows.Scan(
			&c.ProjectID, &c.ProjectTitle, &c.TaskID, &c.TaskTitle,
			&c.ModuleOrderIndex, &c.TaskOrderIndex, &c.Deadline, &c.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan deadline: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *ProjectRepository) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func requireRow(tag pgconn.CommandTag, projectID string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return nil
}

func loadTree(ctx context.Context, q querier, userID, projectID string, forUpdate bool) (*model.ProjectWithRoadmap, error) {
	query := `
		SELECT id, user_id, title, description, tech_stack, planning_mode, deadline_date,
		       working_hours_per_day, status, buffer_days, created_at, updated_at
		FROM projects
		WHERE id = $1 AND user_id = $2
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	tree := &model.ProjectWithRoadmap{}
	p := &tree.Project
	err := q.QueryRow(ctx, query, projectID, userID).Scan(
		&p.ID, &p.UserID, &p.Title, &p.Description, &p.TechStack, &p.PlanningMode, &p.DeadlineDate,
		&p.WorkingHoursPerDay, &p.Status, &p.BufferDays, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, project_id, title, description, order_index, status, estimated_days,
		       start_date, end_date, created_at
		FROM modules
		WHERE project_id = $1
		ORDER BY order_index
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load modules: %w", err)
	}
	tree.Modules, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Module, error) {
		m := model.Module{Tasks: []model.Task{}}
		err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.Description, &m.OrderIndex, &m.Status,
			&m.EstimatedDays, &m.StartDate, &m.EndDate, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan modules: %w", err)
	}

	byID := make(map[string]int, len(tree.Modules))
	for i, m := range tree.Modules {
		byID[m.ID] = i
	}

	rows, err = q.Query(ctx, `
		SELECT id, module_id, project_id, title, description, order_index, status,
		       estimated_hours, deadline, completed_at, created_at
		FROM tasks
		WHERE project_id = $1
		ORDER BY order_index
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	tasks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Task, error) {
		var t model.Task
		err := row.Scan(&t.ID, &t.ModuleID, &t.ProjectID, &t.Title, &t.Description, &t.OrderIndex,
			&t.Status, &t.EstimatedHours, &t.Deadline, &t.CompletedAt, &t.CreatedAt)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan tasks: %w", err)
	}
	for _, t := range tasks {
		if i, ok := byID[t.ModuleID]; ok {
			tree.Modules[i].Tasks = append(tree.Modules[i].Tasks, t)
		}
	}
	if tree.Modules == nil {
		tree.Modules = []model.Module{}
	}
	return tree, nil
}

func findTask(tree *model.ProjectWithRoadmap, taskID string) (*model.Module, *model.Task) {
	for i := range tree.Modules {
		m := &tree.Modules[i]
		for j := range m.Tasks {
			if m.Tasks[j].ID == taskID {
				return m, &m.Tasks[j]
			}
		}
	}
	return nil, nil
}
