package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

// TaskSpec is the intake request for a new work order.
type TaskSpec struct {
	InstructionID     string
	ProductModel      string
	MaterialSpec      string
	OrderQuantity     int
	Priority          string
	EstimatedDuration int
	ProgramName       string
	Notes             string
}

// Scheduler owns the task queues and the machine snapshot map. A single
// coarse mutex guards every public mutator; the timer loop, task intake and
// status callbacks all funnel through it, so a scheduling pass always works
// from one consistent snapshot and no machine is double-booked within a pass.
type Scheduler struct {
	material *MaterialEngine
	approval port.ApprovalPolicy
	store    port.ApprovalStore
	mirror   port.FleetMirror
	log      *zap.Logger

	mu        sync.Mutex
	pending   []*domain.Task
	running   map[string]*domain.Task
	completed []*domain.Task
	machines  map[string]*domain.MachineState
	strategy  string
	// resolved holds operator decisions for deferred changeovers, consumed by
	// the task's next assignment attempt against the machine the decision was
	// granted for.
	resolved map[string]resolvedApproval

	strategies map[string]strategyFunc

	// notify wakes the background loop after intake or a status change so a
	// pass runs promptly without re-entering Schedule from the caller.
	notify chan struct{}
}

// resolvedApproval is a settled changeover decision, valid only for the
// machine it was requested against.
type resolvedApproval struct {
	decision  port.Decision
	machineID string
}

func NewScheduler(
	material *MaterialEngine,
	approval port.ApprovalPolicy,
	store port.ApprovalStore,
	mirror port.FleetMirror,
	log *zap.Logger,
) *Scheduler {
	s := &Scheduler{
		material: material,
		approval: approval,
		store:    store,
		mirror:   mirror,
		log:      log,
		running:  make(map[string]*domain.Task),
		machines: make(map[string]*domain.MachineState),
		resolved: make(map[string]resolvedApproval),
		strategy: StrategyMaterialFirst,
		notify:   make(chan struct{}, 1),
	}
	s.strategies = map[string]strategyFunc{
		StrategyMaterialFirst: s.scheduleMaterialFirst,
		StrategyPriorityFirst: s.schedulePriorityFirst,
		StrategyLoadBalance:   s.scheduleLoadBalance,
		StrategyEfficiency:    s.scheduleEfficiency,
	}
	return s
}

// Notify returns the wake-up channel consumed by the background loop.
func (s *Scheduler) Notify() <-chan struct{} { return s.notify }

func (s *Scheduler) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// SubmitTask validates an intake request, creates the task in PENDING and
// appends it to the queue. The background loop is woken to run a pass.
func (s *Scheduler) SubmitTask(spec TaskSpec) (*domain.Task, error) {
	if spec.InstructionID == "" {
		return nil, fmt.Errorf("instruction id is required")
	}
	if spec.MaterialSpec == "" {
		return nil, fmt.Errorf("material spec is required")
	}
	if spec.OrderQuantity <= 0 {
		return nil, fmt.Errorf("order quantity must be positive")
	}
	priority := domain.PriorityNormal
	if spec.Priority != "" {
		p, err := domain.ParsePriority(strings.ToUpper(spec.Priority))
		if err != nil {
			return nil, err
		}
		priority = p
	}

	now := time.Now()
	task := &domain.Task{
		ID:                fmt.Sprintf("TASK_%s", strings.ToUpper(uuid.NewString()[:8])),
		InstructionID:     spec.InstructionID,
		ProductModel:      spec.ProductModel,
		MaterialSpec:      spec.MaterialSpec,
		OrderQuantity:     spec.OrderQuantity,
		Priority:          priority,
		Status:            domain.TaskStatusPending,
		CreatedAt:         now,
		LastStateChange:   now,
		EstimatedDuration: spec.EstimatedDuration,
		ProgramName:       spec.ProgramName,
		ProgramAvailable:  spec.ProgramName != "",
		Notes:             spec.Notes,
	}

	if err := s.AddTask(task); err != nil {
		return nil, err
	}
	return task, nil
}

// AddTask appends a prepared task to the pending queue.
func (s *Scheduler) AddTask(task *domain.Task) error {
	if task.ID == "" {
		return fmt.Errorf("task id is required")
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("task %s: intake requires PENDING status, got %s", task.ID, task.Status)
	}

	s.mu.Lock()
	s.pending = append(s.pending, task)
	s.mu.Unlock()

	s.log.Info("Task queued", zap.String("task_id", task.ID), zap.String("priority", string(task.Priority)))
	s.wake()
	return nil
}

// RemoveTask drops a task that is still pending. Assigned or finished tasks
// cannot be removed this way.
func (s *Scheduler) RemoveTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.pending {
		if t.ID == taskID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			s.log.Info("Task removed from queue", zap.String("task_id", taskID))
			return nil
		}
	}
	return &domain.TaskNotFoundError{TaskID: taskID}
}

// UpdateMachineState replaces the stored snapshot for a machine, last write
// wins. CurrentTask is engine-owned: provider snapshots never carry
// assignment state, so it is re-stamped from the running index.
func (s *Scheduler) UpdateMachineState(state *domain.MachineState) {
	if state == nil || state.MachineID == "" {
		return
	}
	snapshot := *state
	if snapshot.LastUpdate.IsZero() {
		snapshot.LastUpdate = time.Now()
	}

	s.mu.Lock()
	snapshot.CurrentTask = ""
	for id, t := range s.running {
		if t.AssignedMachine == snapshot.MachineID {
			snapshot.CurrentTask = id
			break
		}
	}
	s.machines[snapshot.MachineID] = &snapshot
	s.mu.Unlock()

	s.log.Debug("Machine state updated",
		zap.String("machine_id", snapshot.MachineID),
		zap.String("state", snapshot.CurrentState))
	s.wake()
}

// ListAvailableMachines returns the IDs passing the availability predicate.
// Order follows map iteration and carries no meaning.
func (s *Scheduler) ListAvailableMachines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.availableMachinesLocked()
}

func (s *Scheduler) availableMachinesLocked() []string {
	var out []string
	for id, m := range s.machines {
		if m.IsAvailable() {
			out = append(out, id)
		}
	}
	return out
}

// Machines returns a copy of every machine snapshot.
func (s *Scheduler) Machines() []*domain.MachineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.MachineState, 0, len(s.machines))
	for _, m := range s.machines {
		snapshot := *m
		out = append(out, &snapshot)
	}
	return out
}

// Schedule runs one scheduling pass: park short-stocked tasks, snapshot
// available machines, run the active strategy and commit the non-conflicting
// assignments. Tasks that fail to place stay pending; with nothing to do the
// pass is a no-op, never an error.
func (s *Scheduler) Schedule(ctx context.Context) []domain.Assignment {
	s.mu.Lock()

	s.reconcileMaterialWaitsLocked()

	schedulable := make([]*domain.Task, 0, len(s.pending))
	for _, t := range s.pending {
		if t.Status == domain.TaskStatusPending {
			schedulable = append(schedulable, t)
		}
	}

	machines := s.availableMachinesLocked()
	if len(schedulable) == 0 || len(machines) == 0 {
		s.mu.Unlock()
		return nil
	}

	strategyName := s.strategy
	candidates := s.strategies[strategyName](schedulable, machines)

	var committed []domain.Assignment
	var touched []*domain.MachineState
	claimed := make(map[string]bool)
	for _, c := range candidates {
		if claimed[c.machineID] {
			continue
		}
		if !s.assignLocked(c.task, c.machineID) {
			continue
		}
		claimed[c.machineID] = true
		s.removePendingLocked(c.task.ID)
		// Assignments leave the mutex, so they carry a copy of the task.
		taskCopy := *c.task
		committed = append(committed, domain.Assignment{Task: &taskCopy, MachineID: c.machineID})
		if m := s.machines[c.machineID]; m != nil {
			snapshot := *m
			touched = append(touched, &snapshot)
		}
	}
	s.mu.Unlock()

	s.publishMirror(ctx, touched)

	if len(committed) > 0 {
		s.log.Info("Scheduling pass committed",
			zap.Int("assignments", len(committed)),
			zap.String("strategy", strategyName))
	}
	return committed
}

// reconcileMaterialWaitsLocked parks pending tasks whose remaining quantity
// exceeds stock, and re-arms waiting tasks once stock returns.
func (s *Scheduler) reconcileMaterialWaitsLocked() {
	for _, t := range s.pending {
		check := s.material.CheckStock(t.MaterialSpec, t.RemainingQuantity())
		switch t.Status {
		case domain.TaskStatusPending:
			if !check.Sufficient {
				if err := t.UpdateStatus(domain.TaskStatusWaitingForMaterial, fmt.Sprintf("stock %d short of %d", check.Available, t.RemainingQuantity())); err == nil {
					s.log.Warn("Task waiting for material",
						zap.String("task_id", t.ID),
						zap.String("material", t.MaterialSpec),
						zap.Int("available", check.Available))
				}
			}
		case domain.TaskStatusWaitingForMaterial:
			if check.Sufficient {
				if err := t.UpdateStatus(domain.TaskStatusPending, "stock replenished"); err == nil {
					s.log.Info("Task released from material wait", zap.String("task_id", t.ID))
				}
			}
		}
	}
}

// assignLocked commits task to machine. It returns false without mutating
// state when a precondition fails: unknown or busy machine, or a changeover
// that the approval policy refuses or defers.
func (s *Scheduler) assignLocked(task *domain.Task, machineID string) bool {
	m, ok := s.machines[machineID]
	if !ok {
		s.log.Warn("Assignment to unknown machine refused",
			zap.String("task_id", task.ID),
			zap.String("machine_id", machineID))
		return false
	}
	if !m.IsAvailable() {
		return false
	}

	check := s.material.CheckCompatibility(task, machineID, m.CurrentMaterial)
	if check.RequiresChange {
		var decision port.Decision
		if r, ok := s.resolved[task.ID]; ok && r.machineID == machineID {
			delete(s.resolved, task.ID)
			decision = r.decision
		} else {
			// A decision granted for a different machine does not transfer;
			// the changeover there may cost something else entirely.
			decision = s.approval.Decide(task, machineID, check)
		}
		switch decision {
		case port.DecisionReject:
			s.log.Info("Changeover rejected by policy",
				zap.String("task_id", task.ID),
				zap.String("machine_id", machineID))
			return false
		case port.DecisionDefer:
			return false
		}
	}

	if err := task.UpdateStatus(domain.TaskStatusReady, fmt.Sprintf("assigned to %s", machineID)); err != nil {
		s.log.Error("Assignment transition refused", zap.Error(err))
		return false
	}
	task.AssignedMachine = machineID
	task.MaterialChecked = true
	s.running[task.ID] = task

	m.CurrentTask = task.ID
	m.CurrentState = "RUNNING"
	m.CurrentMaterial = task.MaterialSpec
	m.LastUpdate = time.Now()

	s.log.Info("Task assigned",
		zap.String("task_id", task.ID),
		zap.String("machine_id", machineID),
		zap.Bool("changeover", check.RequiresChange),
		zap.Int("change_cost", check.ChangeCost))
	return true
}

func (s *Scheduler) removePendingLocked(taskID string) {
	for i, t := range s.pending {
		if t.ID == taskID {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// StartTask marks an assigned task as actively machining.
func (s *Scheduler) StartTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[taskID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	return task.UpdateStatus(domain.TaskStatusRunning, "machining started")
}

// ReportProgress updates the completed quantity, clamped to the order.
func (s *Scheduler) ReportProgress(taskID string, completedQty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[taskID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if completedQty < 0 {
		completedQty = 0
	}
	if completedQty > task.OrderQuantity {
		completedQty = task.OrderQuantity
	}
	task.CompletedQuantity = completedQty
	return nil
}

// CompleteTask finishes a task: it moves to the completed list, its stock is
// consumed, and the machine returns to the available pool.
func (s *Scheduler) CompleteTask(ctx context.Context, taskID string) error {
	s.mu.Lock()
	task, ok := s.running[taskID]
	if !ok {
		s.mu.Unlock()
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err := task.UpdateStatus(domain.TaskStatusCompleted, "task completed"); err != nil {
		s.mu.Unlock()
		return err
	}
	delete(s.running, taskID)
	s.completed = append(s.completed, task)

	var touched []*domain.MachineState
	if m, ok := s.machines[task.AssignedMachine]; ok {
		m.CurrentTask = ""
		m.CurrentState = "IDLE"
		m.LastUpdate = time.Now()
		snapshot := *m
		touched = append(touched, &snapshot)
	}
	material := task.MaterialSpec
	qty := task.OrderQuantity
	s.mu.Unlock()

	if !s.material.Consume(ctx, material, qty) {
		s.log.Warn("Completion stock consume failed, inventory drift likely",
			zap.String("task_id", taskID),
			zap.String("material", material))
	}
	s.publishMirror(ctx, touched)

	s.log.Info("Task completed", zap.String("task_id", taskID))
	s.wake()
	return nil
}

// PauseTask suspends a running task and mirrors it on the machine state.
func (s *Scheduler) PauseTask(taskID string) error {
	return s.setRunState(taskID, domain.TaskStatusPaused, "PAUSED", "task paused")
}

// ResumeTask continues a paused task.
func (s *Scheduler) ResumeTask(taskID string) error {
	return s.setRunState(taskID, domain.TaskStatusRunning, "RUNNING", "task resumed")
}

func (s *Scheduler) setRunState(taskID string, status domain.TaskStatus, machineToken, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[taskID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err := task.UpdateStatus(status, reason); err != nil {
		return err
	}
	if m, ok := s.machines[task.AssignedMachine]; ok {
		m.CurrentState = machineToken
		m.LastUpdate = time.Now()
	}
	s.log.Info(reason, zap.String("task_id", taskID))
	return nil
}

// FailTask marks a running task as errored and frees its machine. The task
// can be requeued later through RequeueTask.
func (s *Scheduler) FailTask(taskID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[taskID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err := task.UpdateStatus(domain.TaskStatusError, reason); err != nil {
		return err
	}
	if m, ok := s.machines[task.AssignedMachine]; ok {
		m.CurrentTask = ""
		m.CurrentState = "IDLE"
		m.LastUpdate = time.Now()
	}
	// Unbind the machine so later provider snapshots do not re-stamp the
	// errored task onto it.
	task.AssignedMachine = ""
	s.log.Warn("Task failed", zap.String("task_id", taskID), zap.String("reason", reason))
	return nil
}

// RequeueTask returns an errored task to the pending queue for another
// attempt.
func (s *Scheduler) RequeueTask(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.running[taskID]
	if !ok {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err := task.UpdateStatus(domain.TaskStatusPending, "requeued"); err != nil {
		return err
	}
	delete(s.running, taskID)
	task.AssignedMachine = ""
	s.pending = append(s.pending, task)
	s.log.Info("Task requeued", zap.String("task_id", taskID), zap.Int("retry", task.RetryCount))
	return nil
}

// ResolveApproval settles a deferred changeover decision. The stored request
// is cleared and the outcome is consumed by the task's next assignment
// attempt.
func (s *Scheduler) ResolveApproval(taskID string, accept bool) error {
	req, err := s.store.Get(taskID)
	if err != nil || req == nil {
		return &domain.TaskNotFoundError{TaskID: taskID}
	}
	if err := s.store.Delete(taskID); err != nil {
		s.log.Error("Failed to clear approval request", zap.String("task_id", taskID), zap.Error(err))
	}

	decision := port.DecisionReject
	if accept {
		decision = port.DecisionApprove
	}
	s.mu.Lock()
	s.resolved[taskID] = resolvedApproval{decision: decision, machineID: req.MachineID}
	s.mu.Unlock()

	s.log.Info("Changeover approval resolved",
		zap.String("task_id", taskID),
		zap.String("machine_id", req.MachineID),
		zap.Bool("accepted", accept))
	s.wake()
	return nil
}

// SetStrategy switches the active assignment strategy.
func (s *Scheduler) SetStrategy(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.strategies[name]; !ok {
		return fmt.Errorf("unknown scheduling strategy %q", name)
	}
	s.strategy = name
	s.log.Info("Scheduling strategy set", zap.String("strategy", name))
	return nil
}

// Strategy returns the active strategy name.
func (s *Scheduler) Strategy() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// Statistics summarizes the queues for presentation layers.
func (s *Scheduler) Statistics() *domain.Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiting := 0
	for _, t := range s.pending {
		if t.Status == domain.TaskStatusWaitingForMaterial {
			waiting++
		}
	}
	stats := &domain.Statistics{
		Pending:            len(s.pending) - waiting,
		WaitingForMaterial: waiting,
		Running:            len(s.running),
		Completed:          len(s.completed),
		Total:              len(s.pending) + len(s.running) + len(s.completed),
		Strategy:           s.strategy,
		MachineUtilization: s.machineUtilizationLocked(),
	}
	return stats
}

// machineUtilizationLocked returns each machine's share of all placed tasks.
func (s *Scheduler) machineUtilizationLocked() map[string]float64 {
	total := len(s.running) + len(s.completed)
	out := make(map[string]float64, len(s.machines))
	for id := range s.machines {
		if total == 0 {
			out[id] = 0
			continue
		}
		count := 0
		for _, t := range s.running {
			if t.AssignedMachine == id {
				count++
			}
		}
		for _, t := range s.completed {
			if t.AssignedMachine == id {
				count++
			}
		}
		out[id] = float64(count) / float64(total) * 100
	}
	return out
}

// Tasks returns a copy of every task across the three collections.
func (s *Scheduler) Tasks() []*domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Task, 0, len(s.pending)+len(s.running)+len(s.completed))
	for _, t := range s.pending {
		task := *t
		out = append(out, &task)
	}
	for _, t := range s.running {
		task := *t
		out = append(out, &task)
	}
	for _, t := range s.completed {
		task := *t
		out = append(out, &task)
	}
	return out
}

// Task returns a copy of one task wherever it currently lives.
func (s *Scheduler) Task(taskID string) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.running[taskID]; ok {
		task := *t
		return &task, nil
	}
	for _, t := range s.pending {
		if t.ID == taskID {
			task := *t
			return &task, nil
		}
	}
	for _, t := range s.completed {
		if t.ID == taskID {
			task := *t
			return &task, nil
		}
	}
	return nil, &domain.TaskNotFoundError{TaskID: taskID}
}

func (s *Scheduler) publishMirror(ctx context.Context, states []*domain.MachineState) {
	if s.mirror == nil {
		return
	}
	for _, st := range states {
		if err := s.mirror.PublishState(ctx, st); err != nil {
			s.log.Warn("Fleet mirror publish failed",
				zap.String("machine_id", st.MachineID),
				zap.Error(err))
		}
	}
}
