package roadmap

import "time"

// TaskStatus is the user-controlled state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskBlocked    TaskStatus = "blocked"
)

// ParseTaskStatus validates a status string coming from a request body.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskPending, TaskInProgress, TaskCompleted, TaskBlocked:
		return TaskStatus(s), nil
	}
	return "", &InvalidStatusError{Value: s}
}

// ModuleStatus is derived from the statuses of a module's tasks.
type ModuleStatus string

const (
	ModulePending    ModuleStatus = "pending"
	ModuleInProgress ModuleStatus = "in_progress"
	ModuleCompleted  ModuleStatus = "completed"
	ModuleBlocked    ModuleStatus = "blocked"
)

// ProjectStatus is derived from module statuses, except archived which only a user sets.
type ProjectStatus string

const (
	ProjectPlanning  ProjectStatus = "planning"
	ProjectActive    ProjectStatus = "active"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// TaskState is the mutable part of a task that status changes touch.
type TaskState struct {
	Status      TaskStatus
	CompletedAt *time.Time
}

// Transition applies a user status change. Every pair of states is legal; the only
// side effect is CompletedAt, which is set on entering completed and cleared on leaving it.
// Re-applying completed keeps the original completion time.
func Transition(cur TaskState, next TaskStatus, now time.Time) (TaskState, error) {
	if _, err := ParseTaskStatus(string(next)); err != nil {
		return cur, err
	}
	out := TaskState{Status: next}
	if next == TaskCompleted {
		if cur.Status == TaskCompleted && cur.CompletedAt != nil {
			out.CompletedAt = cur.CompletedAt
		} else {
			ts := now.UTC()
			out.CompletedAt = &ts
		}
	}
	return out, nil
}

// ModuleStatusOf rolls task statuses up into a module status.
//
// in_progress outranks blocked: a module with both is in_progress.
func ModuleStatusOf(tasks []TaskStatus) ModuleStatus {
	if len(tasks) == 0 {
		return ModulePending
	}
	var inProgress, completed, blocked int
	for _, s := range tasks {
		switch s {
		case TaskInProgress:
			inProgress++
		case TaskCompleted:
			completed++
		case TaskBlocked:
			blocked++
		}
	}
	switch {
	case completed == len(tasks):
		return ModuleCompleted
	case inProgress > 0:
		return ModuleInProgress
	case blocked > 0:
		return ModuleBlocked
	case completed > 0:
		return ModuleInProgress
	default:
		return ModulePending
	}
}

// ProjectStatusOf rolls module statuses up into a project status. An archived project
// stays archived.
func ProjectStatusOf(current ProjectStatus, modules []ModuleStatus) ProjectStatus {
	if current == ProjectArchived {
		return ProjectArchived
	}
	if len(modules) == 0 {
		return ProjectPlanning
	}
	started, completed := 0, 0
	for _, m := range modules {
		if m == ModuleCompleted {
			completed++
		}
		if m != ModulePending {
			started++
		}
	}
	switch {
	case completed == len(modules):
		return ProjectCompleted
	case started > 0:
		return ProjectActive
	default:
		return ProjectPlanning
	}
}
