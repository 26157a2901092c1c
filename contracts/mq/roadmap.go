package mq

import "time"

// Routing keys published on the roadmap.events exchange.
const (
	RoutingProjectCreated    = "project.created"
	RoutingProjectArchived   = "project.archived"
	RoutingProjectDeleted    = "project.deleted"
	RoutingTaskStatusChanged = "task.status_changed"
)

type ProjectCreatedPayload struct {
	ProjectID    string    `json:"project_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	PlanningMode string    `json:"planning_mode"`
	DeadlineDate string    `json:"deadline_date,omitempty"`
	StartDate    string    `json:"start_date"`
	EndDate      string    `json:"end_date"`
	BufferDays   int       `json:"buffer_days"`
	ModuleCount  int       `json:"module_count"`
	TaskCount    int       `json:"task_count"`
	TraceID      string    `json:"trace_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// ProjectLifecyclePayload is published for archive and delete.
type ProjectLifecyclePayload struct {
	ProjectID  string    `json:"project_id"`
	UserID     string    `json:"user_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type TaskStatusChangedPayload struct {
	TaskID        string    `json:"task_id"`
	ModuleID      string    `json:"module_id"`
	ProjectID     string    `json:"project_id"`
	UserID        string    `json:"user_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ModuleStatus  string    `json:"module_status"`
	ProjectStatus string    `json:"project_status"`
	TraceID       string    `json:"trace_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}
