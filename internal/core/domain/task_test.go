package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatusTransitions(t *testing.T) {
	cases := []struct {
		from    TaskStatus
		to      TaskStatus
		allowed bool
	}{
		{TaskStatusPending, TaskStatusReady, true},
		{TaskStatusPending, TaskStatusWaitingForMaterial, true},
		{TaskStatusPending, TaskStatusError, true},
		{TaskStatusPending, TaskStatusRunning, false},
		{TaskStatusPending, TaskStatusCompleted, false},
		{TaskStatusReady, TaskStatusRunning, true},
		{TaskStatusReady, TaskStatusPending, true},
		{TaskStatusRunning, TaskStatusPaused, true},
		{TaskStatusRunning, TaskStatusCompleted, true},
		{TaskStatusRunning, TaskStatusPending, false},
		{TaskStatusRunning, TaskStatusReady, false},
		{TaskStatusPaused, TaskStatusRunning, true},
		{TaskStatusPaused, TaskStatusPending, false},
		{TaskStatusWaitingForMaterial, TaskStatusPending, true},
		{TaskStatusWaitingForMaterial, TaskStatusReady, false},
		{TaskStatusError, TaskStatusPending, true},
		{TaskStatusError, TaskStatusRunning, false},
		{TaskStatusCompleted, TaskStatusPending, false},
		{TaskStatusCompleted, TaskStatusRunning, false},
	}

	for _, c := range cases {
		assert.Equalf(t, c.allowed, c.from.CanTransitionTo(c.to),
			"%s -> %s", c.from, c.to)
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.False(t, TaskStatusError.IsTerminal())
	assert.False(t, TaskStatusPending.IsTerminal())
}

func TestUpdateStatusRejectsIllegalTransition(t *testing.T) {
	task := &Task{ID: "TASK_1", Status: TaskStatusPending}

	err := task.UpdateStatus(TaskStatusRunning, "")
	require.Error(t, err)

	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, TaskStatusPending, invalid.From)
	assert.Equal(t, TaskStatusRunning, invalid.To)
	assert.Equal(t, TaskStatusPending, task.Status, "status must not change on a refused transition")
}

func TestUpdateStatusStampsRunningAndCompleted(t *testing.T) {
	task := &Task{ID: "TASK_1", Status: TaskStatusReady, OrderQuantity: 50}

	require.NoError(t, task.UpdateStatus(TaskStatusRunning, "started"))
	require.NotNil(t, task.StartedAt)
	first := *task.StartedAt

	require.NoError(t, task.UpdateStatus(TaskStatusPaused, "paused"))
	require.NoError(t, task.UpdateStatus(TaskStatusRunning, "resumed"))
	assert.Equal(t, first, *task.StartedAt, "StartedAt stamps only on first entry into RUNNING")

	require.NoError(t, task.UpdateStatus(TaskStatusCompleted, "done"))
	require.NotNil(t, task.EndedAt)
	assert.Equal(t, 50, task.CompletedQuantity)
}

func TestUpdateStatusErrorRequeue(t *testing.T) {
	started := time.Now()
	task := &Task{ID: "TASK_1", Status: TaskStatusRunning, StartedAt: &started}

	require.NoError(t, task.UpdateStatus(TaskStatusError, "spindle alarm"))
	assert.Equal(t, "spindle alarm", task.ErrorMessage)

	require.NoError(t, task.UpdateStatus(TaskStatusPending, "requeued"))
	assert.Equal(t, 1, task.RetryCount)
	assert.Empty(t, task.ErrorMessage)
}

func TestProgress(t *testing.T) {
	task := &Task{OrderQuantity: 200, CompletedQuantity: 50}
	assert.InDelta(t, 25.0, task.Progress(), 0.001)
	assert.Equal(t, 150, task.RemainingQuantity())

	empty := &Task{}
	assert.Zero(t, empty.Progress())
}

func TestCanStart(t *testing.T) {
	task := &Task{Status: TaskStatusReady, MaterialChecked: true, ProgramAvailable: true}
	assert.True(t, task.CanStart())

	task.ProgramAvailable = false
	assert.False(t, task.CanStart())

	task.ProgramAvailable = true
	task.Status = TaskStatusRunning
	assert.False(t, task.CanStart())
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("URGENT")
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, p)

	_, err = ParsePriority("critical")
	assert.Error(t, err)

	assert.Greater(t, PriorityUrgent.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityNormal.Rank())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("WAITING_FOR_MATERIAL")
	require.NoError(t, err)
	assert.Equal(t, TaskStatusWaitingForMaterial, s)

	_, err = ParseStatus("SLEEPING")
	assert.Error(t, err)
}
