package generator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"spmagent/internal/roadmap"
)

var (
	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
	objectRegex        = regexp.MustCompile(`(?s)\{.*\}`)
)

type wireContent struct {
	Modules []wireModule `json:"modules"`
}

type wireModule struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Tasks       []wireTask `json:"tasks"`
}

type wireTask struct {
	Title          string  `json:"title"`
	Description    string  `json:"description"`
	EstimatedHours float64 `json:"estimated_hours"`
	NeedsDeadline  bool    `json:"needs_deadline"`
	Deadline       string  `json:"deadline"`
}

// ParseContent decodes model output into Content. It accepts bare JSON, JSON in a
// code fence, JSON with trailing commas, and JSON surrounded by prose.
func ParseContent(text string) (*Content, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errors.New("empty generator output")
	}

	var firstErr error
	for _, candidate := range candidates(trimmed) {
		var w wireContent
		if err := json.Unmarshal([]byte(candidate), &w); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return w.toContent()
	}
	return nil, fmt.Errorf("generator output is not valid JSON: %w", firstErr)
}

// candidates lists progressively more aggressive cleanups of text, without duplicates.
func candidates(text string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}

	add(text)
	unfenced := text
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		unfenced = m[1]
		add(unfenced)
	}
	cleaned := trailingCommaRegex.ReplaceAllString(unfenced, "$1")
	add(cleaned)
	add(objectRegex.FindString(cleaned))
	return out
}

func (w wireContent) toContent() (*Content, error) {
	c := &Content{Modules: make([]ModuleContent, 0, len(w.Modules))}
	for i, wm := range w.Modules {
		m := ModuleContent{
			Title:       strings.TrimSpace(wm.Title),
			Description: strings.TrimSpace(wm.Description),
			Tasks:       make([]TaskContent, 0, len(wm.Tasks)),
		}
		for j, wt := range wm.Tasks {
			t := TaskContent{
				Title:          strings.TrimSpace(wt.Title),
				Description:    strings.TrimSpace(wt.Description),
				EstimatedHours: wt.EstimatedHours,
				NeedsDeadline:  wt.NeedsDeadline,
			}
			if s := strings.TrimSpace(wt.Deadline); s != "" {
				d, err := roadmap.ParseDate(s)
				if err != nil {
					return nil, fmt.Errorf("module %d task %d: %w", i, j, err)
				}
				t.Deadline = &d
			}
			m.Tasks = append(m.Tasks, t)
		}
		c.Modules = append(c.Modules, m)
	}
	return c, nil
}
