package service

import (
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

// AutoAccept approves every changeover; the cost is already priced into the
// assignment score.
type AutoAccept struct{}

func (AutoAccept) Decide(*domain.Task, string, *domain.MaterialCheckResult) port.Decision {
	return port.DecisionApprove
}

// AutoReject refuses any assignment that would require a changeover. Tasks
// wait for a machine already loaded with the right material.
type AutoReject struct{}

func (AutoReject) Decide(_ *domain.Task, _ string, check *domain.MaterialCheckResult) port.Decision {
	if check.RequiresChange {
		return port.DecisionReject
	}
	return port.DecisionApprove
}

// QueueForApproval defers changeover decisions to an operator. The request is
// recorded in the approval store and the task stays pending until
// Scheduler.ResolveApproval settles it. Same-material assignments pass
// through untouched.
type QueueForApproval struct {
	Store port.ApprovalStore
	Log   *zap.Logger
}

func (q *QueueForApproval) Decide(task *domain.Task, machineID string, check *domain.MaterialCheckResult) port.Decision {
	if !check.RequiresChange {
		return port.DecisionApprove
	}

	// Re-deferring an already queued request keeps its original entry.
	if existing, err := q.Store.Get(task.ID); err == nil && existing != nil {
		return port.DecisionDefer
	}

	req := &port.ApprovalRequest{
		TaskID:     task.ID,
		MachineID:  machineID,
		ChangeCost: check.ChangeCost,
		Message:    check.Message,
	}
	if err := q.Store.Put(task.ID, req); err != nil {
		q.Log.Error("Failed to queue changeover approval", zap.String("task_id", task.ID), zap.Error(err))
		// Fall back to rejecting this pass; the task stays pending.
		return port.DecisionReject
	}

	q.Log.Info("Changeover queued for approval",
		zap.String("task_id", task.ID),
		zap.String("machine_id", machineID),
		zap.Int("change_cost", check.ChangeCost))
	return port.DecisionDefer
}

// NewApprovalPolicy builds the policy named in config. Unknown names fall
// back to auto_accept.
func NewApprovalPolicy(name string, store port.ApprovalStore, log *zap.Logger) port.ApprovalPolicy {
	switch name {
	case "auto_reject":
		return AutoReject{}
	case "queue":
		return &QueueForApproval{Store: store, Log: log}
	default:
		return AutoAccept{}
	}
}
