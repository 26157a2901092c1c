package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `{"modules":[{"title":"Setup","description":"Scaffold","tasks":[{"title":"Init repo","description":"git init","estimated_hours":2,"needs_deadline":true,"deadline":"2024-01-02"},{"title":"CI","estimated_hours":3.5}]}]}`

func TestParseContent_Variants(t *testing.T) {
	tests := map[string]string{
		"bare":           sample,
		"fenced":         "```json\n" + sample + "\n```",
		"fenced no lang": "```\n" + sample + "```",
		"prose":          "Here is your roadmap:\n" + sample + "\nGood luck!",
		"trailing comma": `{"modules":[{"title":"Setup","description":"Scaffold","tasks":[{"title":"Init repo","description":"git init","estimated_hours":2,"needs_deadline":true,"deadline":"2024-01-02",},{"title":"CI","estimated_hours":3.5},],},],}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := ParseContent(input)
			require.NoError(t, err)
			require.Len(t, c.Modules, 1)
			m := c.Modules[0]
			assert.Equal(t, "Setup", m.Title)
			require.Len(t, m.Tasks, 2)
			assert.True(t, m.Tasks[0].NeedsDeadline)
			require.NotNil(t, m.Tasks[0].Deadline)
			assert.Equal(t, "2024-01-02", m.Tasks[0].Deadline.String())
			assert.Nil(t, m.Tasks[1].Deadline)
			assert.Equal(t, 5.5, c.ModuleHours(0))
		})
	}
}

func TestParseContent_Errors(t *testing.T) {
	_, err := ParseContent("   ")
	assert.Error(t, err)

	_, err = ParseContent("I cannot help with that.")
	assert.ErrorContains(t, err, "not valid JSON")

	_, err = ParseContent(`{"modules":[{"title":"A","tasks":[{"title":"x","estimated_hours":1,"deadline":"next week"}]}]}`)
	assert.ErrorContains(t, err, "module 0 task 0")
}

func TestContent_Validate(t *testing.T) {
	var nilContent *Content
	assert.ErrorIs(t, nilContent.Validate(), ErrEmptyContent)
	assert.ErrorIs(t, (&Content{}).Validate(), ErrEmptyContent)

	c := &Content{Modules: []ModuleContent{{Title: "A"}}}
	assert.ErrorContains(t, c.Validate(), "no tasks")

	c = &Content{Modules: []ModuleContent{{Title: "A", Tasks: []TaskContent{{Title: ""}}}}}
	assert.ErrorContains(t, c.Validate(), "no title")

	c = &Content{Modules: []ModuleContent{{Title: "A", Tasks: []TaskContent{{Title: "t", EstimatedHours: 1}}}}}
	assert.NoError(t, c.Validate())
}
