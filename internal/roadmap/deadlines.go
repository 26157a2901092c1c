package roadmap

import "sort"

// DefaultDeadlineLimit caps the upcoming-deadlines view when the caller does not ask for a size.
const DefaultDeadlineLimit = 50

// DeadlineCandidate is a task row as seen by the deadline index.
type DeadlineCandidate struct {
	ProjectID        string
	ProjectTitle     string
	TaskID           string
	TaskTitle        string
	ModuleOrderIndex int
	TaskOrderIndex   int
	Deadline         *Date
	Status           TaskStatus
}

// DeadlineItem is one row of the upcoming-deadlines view.
type DeadlineItem struct {
	ProjectID    string     `json:"project_id"`
	ProjectTitle string     `json:"project_title"`
	TaskID       string     `json:"task_id"`
	TaskTitle    string     `json:"task_title"`
	Deadline     Date       `json:"deadline"`
	Status       TaskStatus `json:"status"`
}

// UpcomingDeadlines filters out completed tasks and tasks without a deadline, then orders by
// deadline, project id, module order and task order. limit <= 0 means unbounded.
// Overdue tasks are kept: they are the most urgent rows.
func UpcomingDeadlines(candidates []DeadlineCandidate, limit int) []DeadlineItem {
	kept := make([]DeadlineCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Deadline == nil || c.Deadline.IsZero() || c.Status == TaskCompleted {
			continue
		}
		kept = append(kept, c)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if !a.Deadline.Equal(*b.Deadline) {
			return a.Deadline.Before(*b.Deadline)
		}
		if a.ProjectID != b.ProjectID {
			return a.ProjectID < b.ProjectID
		}
		if a.ModuleOrderIndex != b.ModuleOrderIndex {
			return a.ModuleOrderIndex < b.ModuleOrderIndex
		}
		if a.TaskOrderIndex != b.TaskOrderIndex {
			return a.TaskOrderIndex < b.TaskOrderIndex
		}
		return a.TaskID < b.TaskID
	})

	if limit > 0 && len(kept) > limit {
		kept = kept[:limit]
	}

	items := make([]DeadlineItem, len(kept))
	for i, c := range kept {
		items[i] = DeadlineItem{
			ProjectID:    c.ProjectID,
			ProjectTitle: c.ProjectTitle,
			TaskID:       c.TaskID,
			TaskTitle:    c.TaskTitle,
			Deadline:     *c.Deadline,
			Status:       c.Status,
		}
	}
	return items
}
