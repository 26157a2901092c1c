package roadmap

import "math"

// Progress is a completed/total ratio with a rounded percentage.
type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

// ProgressOf builds a Progress from raw counts.
func ProgressOf(completed, total int) Progress {
	p := Progress{Completed: completed, Total: total}
	if total > 0 {
		p.Percent = int(math.Round(100 * float64(completed) / float64(total)))
	}
	return p
}

// ModuleProgress counts completed tasks of one module.
func ModuleProgress(tasks []TaskStatus) Progress {
	done := 0
	for _, s := range tasks {
		if s == TaskCompleted {
			done++
		}
	}
	return ProgressOf(done, len(tasks))
}

// ProjectProgress sums completed and total tasks across every module.
func ProjectProgress(modules [][]TaskStatus) Progress {
	done, total := 0, 0
	for _, tasks := range modules {
		m := ModuleProgress(tasks)
		done += m.Completed
		total += m.Total
	}
	return ProgressOf(done, total)
}
