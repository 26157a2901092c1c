// Package generator produces roadmap content (module and task titles,
// descriptions and hour estimates) from a project description. Dates are not
// its concern; the scheduler assigns them afterwards.
package generator

import (
	"context"
	"errors"
	"fmt"

	"spmagent/internal/roadmap"
)

// ErrEmptyContent is returned when the generator produced no usable modules or tasks.
var ErrEmptyContent = errors.New("generator returned no modules")

// Request is everything the generator is told about the project and its developer.
type Request struct {
	Title         string
	Description   string
	TechStack     []string
	PlanningMode  roadmap.PlanningMode
	DeadlineDate  *roadmap.Date
	HoursPerDay   float64
	SkillLevel    string
	PreferredPace string
	Today         roadmap.Date
}

type Content struct {
	Modules []ModuleContent
}

type ModuleContent struct {
	Title       string
	Description string
	Tasks       []TaskContent
}

type TaskContent struct {
	Title          string
	Description    string
	EstimatedHours float64
	// NeedsDeadline asks the scheduler for a deadline; Deadline optionally proposes one.
	NeedsDeadline bool
	Deadline      *roadmap.Date
}

// Generator turns a Request into Content. onChunk, when non-nil, receives raw
// text as it is produced and is called from the Generate goroutine.
type Generator interface {
	Generate(ctx context.Context, req Request, onChunk func(string)) (*Content, error)
}

// Validate checks the structural minimum the scheduler relies on.
func (c *Content) Validate() error {
	if c == nil || len(c.Modules) == 0 {
		return ErrEmptyContent
	}
	for i, m := range c.Modules {
		if m.Title == "" {
			return fmt.Errorf("module %d has no title", i)
		}
		if len(m.Tasks) == 0 {
			return fmt.Errorf("module %d (%s) has no tasks", i, m.Title)
		}
		for j, t := range m.Tasks {
			if t.Title == "" {
				return fmt.Errorf("task %d of module %d has no title", j, i)
			}
		}
	}
	return nil
}

// ModuleHours sums the task estimates of module i.
func (c *Content) ModuleHours(i int) float64 {
	var total float64
	for _, t := range c.Modules[i].Tasks {
		total += t.EstimatedHours
	}
	return total
}
