// Package port declares the interfaces between the scheduling core and its
// adapters.
package port

import (
	"context"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
)

// MaterialStore defines how material records are persisted (Postgres)
type MaterialStore interface {
	LoadAll(ctx context.Context) ([]*domain.MaterialRecord, error)
	LookupByCode(ctx context.Context, code string) (*domain.MaterialRecord, error)
	LookupByName(ctx context.Context, name string) (*domain.MaterialRecord, error)
	MutateStock(ctx context.Context, code string, newStock int) error
}

// FleetMirror defines how machine snapshots are shared with other processes (Redis)
type FleetMirror interface {
	PublishState(ctx context.Context, state *domain.MachineState) error
	ListStates(ctx context.Context) ([]*domain.MachineState, error)
}

// DispatchQueue defines how committed assignments leave the engine and how
// machine status events arrive (RabbitMQ)
type DispatchQueue interface {
	PublishAssignment(ctx context.Context, task *domain.Task, machineID string) error
	ConsumeStatus(ctx context.Context, handler func(state *domain.MachineState) error) error
}

// Decision is the outcome of an ApprovalPolicy consultation.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionReject
	DecisionDefer
)

// ApprovalPolicy decides what to do when an assignment would force a material
// changeover. Implementations must never block; a deferred decision parks the
// task until resolved out-of-band.
type ApprovalPolicy interface {
	Decide(task *domain.Task, machineID string, check *domain.MaterialCheckResult) Decision
}

// ApprovalStore records deferred changeover requests for later resolution.
type ApprovalStore interface {
	Put(taskID string, req *ApprovalRequest) error
	Get(taskID string) (*ApprovalRequest, error)
	Delete(taskID string) error
}

// ApprovalRequest is a pending changeover decision.
type ApprovalRequest struct {
	TaskID     string `json:"task_id"`
	MachineID  string `json:"machine_id"`
	ChangeCost int    `json:"change_cost"`
	Message    string `json:"message,omitempty"`
}
