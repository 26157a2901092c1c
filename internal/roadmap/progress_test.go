package roadmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestModuleProgress(t *testing.T) {
	assert.Equal(t, Progress{}, ModuleProgress(nil), "zero tasks is 0%, not a division error")

	got := ModuleProgress([]TaskStatus{TaskCompleted, TaskPending, TaskBlocked})
	assert.Equal(t, Progress{Completed: 1, Total: 3, Percent: 33}, got)

	got = ModuleProgress([]TaskStatus{TaskCompleted, TaskCompleted, TaskInProgress})
	assert.Equal(t, 67, got.Percent)

	got = ModuleProgress([]TaskStatus{TaskCompleted, TaskInProgress})
	assert.Equal(t, 50, got.Percent)

	got = ModuleProgress([]TaskStatus{TaskCompleted})
	assert.Equal(t, 100, got.Percent)
}

func TestProjectProgress_SumsAcrossModules(t *testing.T) {
	got := ProjectProgress([][]TaskStatus{
		{TaskCompleted, TaskPending},
		{},
		{TaskCompleted, TaskCompleted, TaskBlocked, TaskInProgress},
	})
	assert.Equal(t, Progress{Completed: 3, Total: 6, Percent: 50}, got)

	assert.Equal(t, Progress{}, ProjectProgress(nil))
	assert.Equal(t, Progress{}, ProjectProgress([][]TaskStatus{{}, {}}))
}

func TestProgress_PercentRoundsHalfUp(t *testing.T) {
	// 1/8 = 12.5% and 5/8 = 62.5%.
	tasks := make([]TaskStatus, 8)
	for i := range tasks {
		tasks[i] = TaskPending
	}
	tasks[0] = TaskCompleted
	assert.Equal(t, 13, ModuleProgress(tasks).Percent)

	for i := 1; i < 5; i++ {
		tasks[i] = TaskCompleted
	}
	assert.Equal(t, 63, ModuleProgress(tasks).Percent)
}
