package generator

import (
	"fmt"
	"strings"

	"spmagent/internal/roadmap"
)

// BuildPrompt renders the instruction sent to the model.
func BuildPrompt(req Request) string {
	tech := "Not specified"
	if len(req.TechStack) > 0 {
		tech = strings.Join(req.TechStack, ", ")
	}
	skill := orDefault(req.SkillLevel, "medium")
	pace := orDefault(req.PreferredPace, "medium")

	var b strings.Builder
	b.WriteString("You are an expert software product manager. Break the project below into a roadmap of modules and tasks.\n\n")
	if req.Title != "" {
		fmt.Fprintf(&b, "PROJECT TITLE: %s\n", req.Title)
	}
	fmt.Fprintf(&b, "PROJECT DESCRIPTION:\n%s\n\n", req.Description)
	fmt.Fprintf(&b, "TECH STACK: %s\n", tech)
	fmt.Fprintf(&b, "DEVELOPER SKILL LEVEL: %s\n", skill)
	fmt.Fprintf(&b, "DEVELOPER PACE: %s\n", pace)
	fmt.Fprintf(&b, "WORKING HOURS PER DAY: %g\n", req.HoursPerDay)
	fmt.Fprintf(&b, "PLANNING MODE: %s\n", req.PlanningMode)
	fmt.Fprintf(&b, "TODAY: %s\n\n", req.Today)

	if req.PlanningMode == roadmap.ModeDeadline && req.DeadlineDate != nil {
		days := req.DeadlineDate.DaysSince(req.Today) + 1
		fmt.Fprintf(&b, "The project must be finished by %s, which leaves %d calendar days of about %g hours each. "+
			"Modules run one after another and each one is scheduled in whole days: its task hours are summed, "+
			"divided by %g and rounded up. The rounded-up days of all modules together must not exceed %d; "+
			"reduce scope rather than exceed it.\n\n",
			req.DeadlineDate, days, req.HoursPerDay, req.HoursPerDay, days)
	} else {
		b.WriteString("This is an open-ended project with no fixed deadline. Estimate effort realistically for the developer's skill and pace.\n\n")
	}

	b.WriteString(`Respond with ONLY valid JSON in exactly this shape, with no markdown and no explanation:
{
  "modules": [
    {
      "title": "Module name",
      "description": "What this module covers",
      "tasks": [
        {
          "title": "Task name",
          "description": "What to do",
          "estimated_hours": 4,
          "needs_deadline": true
        }
      ]
    }
  ]
}

Rules:
- 3 to 8 modules, ordered by dependency (prerequisites first).
- 2 to 6 actionable tasks per module.
- estimated_hours is a positive number reflecting the developer's skill level.
- Set needs_deadline to true for tasks that gate later work or deliver a milestone.
- Do not include dates; the schedule is computed separately.
`)
	return b.String()
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
