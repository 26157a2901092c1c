package model

import (
	"time"

	"spmagent/internal/roadmap"
)

type Project struct {
	ID                 string                `json:"id"`
	UserID             string                `json:"user_id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	TechStack          []string              `json:"tech_stack"`
	PlanningMode       roadmap.PlanningMode  `json:"planning_mode"`
	DeadlineDate       *roadmap.Date         `json:"deadline_date"`
	WorkingHoursPerDay float64               `json:"working_hours_per_day"`
	Status             roadmap.ProjectStatus `json:"status"`
	BufferDays         int                   `json:"buffer_days"`
	Progress           roadmap.Progress      `json:"progress"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

type Module struct {
	ID            string               `json:"id"`
	ProjectID     string               `json:"project_id"`
	Title         string               `json:"title"`
	Description   string               `json:"description"`
	OrderIndex    int                  `json:"order_index"`
	Status        roadmap.ModuleStatus `json:"status"`
	EstimatedDays int                  `json:"estimated_days"`
	StartDate     roadmap.Date         `json:"start_date"`
	EndDate       roadmap.Date         `json:"end_date"`
	Progress      roadmap.Progress     `json:"progress"`
	Tasks         []Task               `json:"tasks"`
	CreatedAt     time.Time            `json:"created_at"`
}

type Task struct {
	ID             string             `json:"id"`
	ModuleID       string             `json:"module_id"`
	ProjectID      string             `json:"project_id"`
	Title          string             `json:"title"`
	Description    string             `json:"description"`
	OrderIndex     int                `json:"order_index"`
	Status         roadmap.TaskStatus `json:"status"`
	EstimatedHours float64            `json:"estimated_hours"`
	Deadline       *roadmap.Date      `json:"deadline"`
	CompletedAt    *time.Time         `json:"completed_at"`
	CreatedAt      time.Time          `json:"created_at"`
}

// ProjectWithRoadmap is the full project tree returned by create and detail endpoints.
type ProjectWithRoadmap struct {
	Project
	Modules []Module `json:"modules"`
}

// TaskStatuses lists the statuses of a module's tasks in order.
func (m *Module) TaskStatuses() []roadmap.TaskStatus {
	out := make([]roadmap.TaskStatus, len(m.Tasks))
	for i, t := range m.Tasks {
		out[i] = t.Status
	}
	return out
}

// Rollup recomputes derived module and project status and progress from task statuses.
func (p *ProjectWithRoadmap) Rollup() {
	moduleStatuses := make([]roadmap.ModuleStatus, len(p.Modules))
	perModule := make([][]roadmap.TaskStatus, len(p.Modules))
	for i := range p.Modules {
		m := &p.Modules[i]
		statuses := m.TaskStatuses()
		m.Status = roadmap.ModuleStatusOf(statuses)
		m.Progress = roadmap.ModuleProgress(statuses)
		moduleStatuses[i] = m.Status
		perModule[i] = statuses
	}
	p.Status = roadmap.ProjectStatusOf(p.Status, moduleStatuses)
	p.Progress = roadmap.ProjectProgress(perModule)
}

// TaskUpdate is the response of a task status change: the task as stored plus the rollups it caused.
type TaskUpdate struct {
	Task            Task                  `json:"task"`
	ModuleStatus    roadmap.ModuleStatus  `json:"module_status"`
	ModuleProgress  roadmap.Progress      `json:"module_progress"`
	ProjectStatus   roadmap.ProjectStatus `json:"project_status"`
	ProjectProgress roadmap.Progress      `json:"project_progress"`
}
