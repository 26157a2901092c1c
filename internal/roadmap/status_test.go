package roadmap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allTaskStatuses = []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskBlocked}

func TestTransition_AnyPairIsLegal(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, from := range allTaskStatuses {
		for _, to := range allTaskStatuses {
			cur := TaskState{Status: from}
			if from == TaskCompleted {
				earlier := now.Add(-time.Hour)
				cur.CompletedAt = &earlier
			}
			next, err := Transition(cur, to, now)
			require.NoError(t, err, "%s -> %s", from, to)
			assert.Equal(t, to, next.Status)
			assert.Equal(t, to == TaskCompleted, next.CompletedAt != nil, "%s -> %s", from, to)
		}
	}
}

func TestTransition_CompletedRoundTrip(t *testing.T) {
	requestTime := time.Now()
	done, err := Transition(TaskState{Status: TaskInProgress}, TaskCompleted, time.Now())
	require.NoError(t, err)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(requestTime))

	reopened, err := Transition(done, TaskPending, time.Now())
	require.NoError(t, err)
	assert.Equal(t, TaskPending, reopened.Status)
	assert.Nil(t, reopened.CompletedAt)
}

func TestTransition_RecompletingKeepsTimestamp(t *testing.T) {
	first := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	done, err := Transition(TaskState{Status: TaskPending}, TaskCompleted, first)
	require.NoError(t, err)

	again, err := Transition(done, TaskCompleted, first.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, *again.CompletedAt)
}

func TestTransition_UnknownStatus(t *testing.T) {
	cur := TaskState{Status: TaskPending}
	next, err := Transition(cur, TaskStatus("done"), time.Now())
	var serr *InvalidStatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, cur, next)
}

func TestParseTaskStatus(t *testing.T) {
	for _, s := range allTaskStatuses {
		got, err := ParseTaskStatus(string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	_, err := ParseTaskStatus("COMPLETED")
	assert.Error(t, err)
}

func TestModuleStatusOf(t *testing.T) {
	p, ip, c, b := TaskPending, TaskInProgress, TaskCompleted, TaskBlocked
	tests := []struct {
		name  string
		tasks []TaskStatus
		want  ModuleStatus
	}{
		{"no tasks", nil, ModulePending},
		{"nothing started", []TaskStatus{p, p}, ModulePending},
		{"one in progress", []TaskStatus{p, ip}, ModuleInProgress},
		{"some completed", []TaskStatus{c, p}, ModuleInProgress},
		{"all completed", []TaskStatus{c, c, c}, ModuleCompleted},
		{"blocked only", []TaskStatus{b, p}, ModuleBlocked},
		{"blocked with completed", []TaskStatus{b, c}, ModuleBlocked},
		{"in progress outranks blocked", []TaskStatus{b, ip}, ModuleInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ModuleStatusOf(tt.tasks))
		})
	}
}

// Exhaustive over every 3-task module: completed iff all completed,
// blocked iff any blocked and none in progress.
func TestModuleStatusOf_Properties(t *testing.T) {
	for _, a := range allTaskStatuses {
		for _, b := range allTaskStatuses {
			for _, c := range allTaskStatuses {
				tasks := []TaskStatus{a, b, c}
				got := ModuleStatusOf(tasks)

				allDone, anyBlocked, anyInProgress := true, false, false
				for _, s := range tasks {
					allDone = allDone && s == TaskCompleted
					anyBlocked = anyBlocked || s == TaskBlocked
					anyInProgress = anyInProgress || s == TaskInProgress
				}
				assert.Equal(t, allDone, got == ModuleCompleted, "%v", tasks)
				assert.Equal(t, anyBlocked && !anyInProgress, got == ModuleBlocked, "%v", tasks)
			}
		}
	}
}

func TestProjectStatusOf(t *testing.T) {
	tests := []struct {
		name    string
		current ProjectStatus
		modules []ModuleStatus
		want    ProjectStatus
	}{
		{"fresh roadmap", ProjectPlanning, []ModuleStatus{ModulePending, ModulePending}, ProjectPlanning},
		{"first task started", ProjectPlanning, []ModuleStatus{ModuleInProgress, ModulePending}, ProjectActive},
		{"blocked module counts as started", ProjectPlanning, []ModuleStatus{ModuleBlocked, ModulePending}, ProjectActive},
		{"some modules done", ProjectActive, []ModuleStatus{ModuleCompleted, ModulePending}, ProjectActive},
		{"all done", ProjectActive, []ModuleStatus{ModuleCompleted, ModuleCompleted}, ProjectCompleted},
		{"reopened after completion", ProjectCompleted, []ModuleStatus{ModuleCompleted, ModuleInProgress}, ProjectActive},
		{"back to untouched", ProjectActive, []ModuleStatus{ModulePending}, ProjectPlanning},
		{"archived is sticky", ProjectArchived, []ModuleStatus{ModuleCompleted}, ProjectArchived},
		{"no modules", ProjectActive, nil, ProjectPlanning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectStatusOf(tt.current, tt.modules))
		})
	}
}
