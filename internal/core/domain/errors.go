// Package domain holds the scheduling engine's entities and their invariants.
package domain

import "fmt"

// InvalidTransitionError is returned when a task status change violates the
// transition table.
type InvalidTransitionError struct {
	TaskID string
	From   TaskStatus
	To     TaskStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

// TaskNotFoundError is returned when a task ID is not in the expected queue.
type TaskNotFoundError struct {
	TaskID string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s", e.TaskID)
}

// MachineNotFoundError is returned when a machine ID has never been reported
// by the status provider.
type MachineNotFoundError struct {
	MachineID string
}

func (e *MachineNotFoundError) Error() string {
	return fmt.Sprintf("machine not found: %s", e.MachineID)
}

// MaterialNotFoundError is returned when a material code has no record in the
// store.
type MaterialNotFoundError struct {
	Code string
}

func (e *MaterialNotFoundError) Error() string {
	return fmt.Sprintf("material not found: %s", e.Code)
}
