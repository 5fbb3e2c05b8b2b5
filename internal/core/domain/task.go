package domain

import (
	"fmt"
	"time"
)

type TaskStatus string

const (
	TaskStatusPending            TaskStatus = "PENDING"
	TaskStatusReady              TaskStatus = "READY"
	TaskStatusRunning            TaskStatus = "RUNNING"
	TaskStatusPaused             TaskStatus = "PAUSED"
	TaskStatusCompleted          TaskStatus = "COMPLETED"
	TaskStatusError              TaskStatus = "ERROR"
	TaskStatusWaitingForMaterial TaskStatus = "WAITING_FOR_MATERIAL"
)

// validTransitions is the closed transition table. COMPLETED is terminal;
// ERROR is requeueable so a failed task can be retried.
var validTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:            {TaskStatusReady, TaskStatusWaitingForMaterial, TaskStatusError},
	TaskStatusReady:              {TaskStatusRunning, TaskStatusCompleted, TaskStatusPending, TaskStatusWaitingForMaterial, TaskStatusError},
	TaskStatusRunning:            {TaskStatusPaused, TaskStatusCompleted, TaskStatusError},
	TaskStatusPaused:             {TaskStatusRunning, TaskStatusCompleted, TaskStatusError},
	TaskStatusWaitingForMaterial: {TaskStatusPending, TaskStatusError},
	TaskStatusError:              {TaskStatusPending},
}

// CanTransitionTo returns true if moving from the current status to next is legal.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted
}

// ParseStatus validates a raw status token at the boundary.
func ParseStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(raw)
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusRunning, TaskStatusPaused,
		TaskStatusCompleted, TaskStatusError, TaskStatusWaitingForMaterial:
		return s, nil
	}
	return "", fmt.Errorf("unknown task status %q", raw)
}

type TaskPriority string

const (
	PriorityNormal TaskPriority = "NORMAL"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

// Rank orders priorities for strategy sorting: URGENT > HIGH > NORMAL.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 3
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// ParsePriority validates a raw priority token at the boundary.
func ParsePriority(raw string) (TaskPriority, error) {
	p := TaskPriority(raw)
	switch p {
	case PriorityNormal, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown task priority %q", raw)
}

// Task represents a production work order to be placed on a machine
type Task struct {
	ID                string       `json:"id"`
	InstructionID     string       `json:"instruction_id"`
	ProductModel      string       `json:"product_model"`
	MaterialSpec      string       `json:"material_spec"`
	OrderQuantity     int          `json:"order_quantity"`
	CompletedQuantity int          `json:"completed_quantity"`
	Priority          TaskPriority `json:"priority"`
	Status            TaskStatus   `json:"status"`
	AssignedMachine   string       `json:"assigned_machine,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	StartedAt         *time.Time   `json:"started_at,omitempty"`
	EndedAt           *time.Time   `json:"ended_at,omitempty"`
	LastStateChange   time.Time    `json:"last_state_change"`
	EstimatedDuration int          `json:"estimated_duration"` // minutes
	MaterialChecked   bool         `json:"material_checked"`
	ProgramAvailable  bool         `json:"program_available"`
	ProgramName       string       `json:"program_name,omitempty"`
	Notes             string       `json:"notes,omitempty"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	RetryCount        int          `json:"retry_count"`
}

// UpdateStatus performs a validated transition and applies its side effects:
// stamps LastStateChange, stamps StartedAt on first entry into RUNNING,
// stamps EndedAt and forces CompletedQuantity on COMPLETED, stores the reason
// as ErrorMessage on ERROR, and bumps RetryCount on an ERROR requeue.
func (t *Task) UpdateStatus(next TaskStatus, reason string) error {
	if !t.Status.CanTransitionTo(next) {
		return &InvalidTransitionError{TaskID: t.ID, From: t.Status, To: next}
	}

	from := t.Status
	t.Status = next
	now := time.Now()
	t.LastStateChange = now

	switch next {
	case TaskStatusRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case TaskStatusCompleted:
		if t.EndedAt == nil {
			t.EndedAt = &now
		}
		t.CompletedQuantity = t.OrderQuantity
	case TaskStatusError:
		if reason != "" {
			t.ErrorMessage = reason
		}
	case TaskStatusPending:
		if from == TaskStatusError {
			t.RetryCount++
			t.ErrorMessage = ""
		}
	}
	return nil
}

// Progress returns the completion percentage, 0 for an empty order.
func (t *Task) Progress() float64 {
	if t.OrderQuantity == 0 {
		return 0
	}
	return float64(t.CompletedQuantity) / float64(t.OrderQuantity) * 100
}

// RemainingQuantity returns the quantity still to produce.
func (t *Task) RemainingQuantity() int {
	return t.OrderQuantity - t.CompletedQuantity
}

// CanStart reports whether the task is eligible to begin machining.
func (t *Task) CanStart() bool {
	return (t.Status == TaskStatusPending || t.Status == TaskStatusReady) &&
		t.MaterialChecked && t.ProgramAvailable
}
