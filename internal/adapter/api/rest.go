// Package api exposes the scheduling engine over HTTP for shop-floor
// dashboards and operator tooling.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	monitoring "github.com/shopfloor/cnc-scheduler/internal/adapter/monitoring/prometheus"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/service"
	"go.uber.org/zap"
)

// REST handles HTTP requests against the scheduler.
type REST struct {
	scheduler *service.Scheduler
	material  *service.MaterialEngine
	log       *zap.Logger
}

// NewREST creates a new REST handler.
func NewREST(scheduler *service.Scheduler, material *service.MaterialEngine, log *zap.Logger) *REST {
	return &REST{scheduler: scheduler, material: material, log: log}
}

// SubmitTaskRequest is the JSON body for POST /api/v1/tasks.
type SubmitTaskRequest struct {
	InstructionID     string `json:"instruction_id"`
	ProductModel      string `json:"product_model"`
	MaterialSpec      string `json:"material_spec"`
	OrderQuantity     int    `json:"order_quantity"`
	Priority          string `json:"priority"`
	EstimatedDuration int    `json:"estimated_duration"`
	ProgramName       string `json:"program_name,omitempty"`
	Notes             string `json:"notes,omitempty"`
}

// SubmitTaskResponse is the 201 response body.
type SubmitTaskResponse struct {
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitTask handles POST /api/v1/tasks.
func (h *REST) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req SubmitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := h.scheduler.SubmitTask(service.TaskSpec{
		InstructionID:     req.InstructionID,
		ProductModel:      req.ProductModel,
		MaterialSpec:      req.MaterialSpec,
		OrderQuantity:     req.OrderQuantity,
		Priority:          req.Priority,
		EstimatedDuration: req.EstimatedDuration,
		ProgramName:       req.ProgramName,
		Notes:             req.Notes,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	monitoring.TasksSubmitted.WithLabelValues(string(task.Priority)).Inc()
	writeJSON(w, http.StatusCreated, SubmitTaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt,
	})
}

// ListTasks handles GET /api/v1/tasks.
func (h *REST) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Tasks())
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *REST) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.scheduler.Task(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// RemoveTask handles DELETE /api/v1/tasks/{id}. Only queued tasks can be
// removed; running work has to be failed or completed first.
func (h *REST) RemoveTask(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RemoveTask(chi.URLParam(r, "id")); err != nil {
		var notFound *domain.TaskNotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// taskAction wraps the single-task lifecycle endpoints.
func (h *REST) taskAction(action func(taskID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := chi.URLParam(r, "id")
		if err := action(taskID); err != nil {
			status := http.StatusConflict
			var notFound *domain.TaskNotFoundError
			if errors.As(err, &notFound) {
				status = http.StatusNotFound
			}
			writeError(w, status, err.Error())
			return
		}

		task, err := h.scheduler.Task(taskID)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, task)
	}
}

// ReportProgressRequest is the JSON body for POST /api/v1/tasks/{id}/progress.
type ReportProgressRequest struct {
	CompletedQuantity int `json:"completed_quantity"`
}

// ReportProgress handles POST /api/v1/tasks/{id}/progress.
func (h *REST) ReportProgress(w http.ResponseWriter, r *http.Request) {
	var req ReportProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.taskAction(func(taskID string) error {
		return h.scheduler.ReportProgress(taskID, req.CompletedQuantity)
	})(w, r)
}

// FailTaskRequest is the JSON body for POST /api/v1/tasks/{id}/fail.
type FailTaskRequest struct {
	Reason string `json:"reason"`
}

// FailTask handles POST /api/v1/tasks/{id}/fail.
func (h *REST) FailTask(w http.ResponseWriter, r *http.Request) {
	var req FailTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.taskAction(func(taskID string) error {
		return h.scheduler.FailTask(taskID, req.Reason)
	})(w, r)
}

// Schedule handles POST /api/v1/schedule: runs one pass immediately and
// returns the committed assignments.
func (h *REST) Schedule(w http.ResponseWriter, r *http.Request) {
	assignments := h.scheduler.Schedule(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"assigned":    len(assignments),
		"assignments": assignments,
	})
}

// StrategyRequest is the JSON body for PUT /api/v1/strategy.
type StrategyRequest struct {
	Strategy string `json:"strategy"`
}

// GetStrategy handles GET /api/v1/strategy.
func (h *REST) GetStrategy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"strategy": h.scheduler.Strategy()})
}

// SetStrategy handles PUT /api/v1/strategy.
func (h *REST) SetStrategy(w http.ResponseWriter, r *http.Request) {
	var req StrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.scheduler.SetStrategy(req.Strategy); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"strategy": req.Strategy})
}

// Statistics handles GET /api/v1/statistics.
func (h *REST) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Statistics())
}

// Machines handles GET /api/v1/machines.
func (h *REST) Machines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Machines())
}

// UpdateMachineRequest is the JSON body for PUT /api/v1/machines/{id}.
type UpdateMachineRequest struct {
	State           string   `json:"state"`
	CurrentMaterial string   `json:"current_material,omitempty"`
	ProgramName     string   `json:"program_name,omitempty"`
	Capabilities    []string `json:"capabilities,omitempty"`
	Address         string   `json:"address,omitempty"`
}

// UpdateMachine handles PUT /api/v1/machines/{id}: manual state override for
// fleets without an AMQP bridge.
func (h *REST) UpdateMachine(w http.ResponseWriter, r *http.Request) {
	var req UpdateMachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.scheduler.UpdateMachineState(&domain.MachineState{
		MachineID:       chi.URLParam(r, "id"),
		CurrentState:    req.State,
		CurrentMaterial: req.CurrentMaterial,
		ProgramName:     req.ProgramName,
		Capabilities:    req.Capabilities,
		Address:         req.Address,
		LastUpdate:      time.Now(),
	})
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Materials handles GET /api/v1/materials.
func (h *REST) Materials(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.material.Records())
}

// LookupMaterial handles GET /api/v1/materials/{key}: resolves a canonical
// code, display name or barcode scan key to its record.
func (h *REST) LookupMaterial(w http.ResponseWriter, r *http.Request) {
	rec, err := h.material.Lookup(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// MaterialReport handles GET /api/v1/materials/report.
func (h *REST) MaterialReport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.material.Report())
}

// ResolveApprovalRequest is the JSON body for POST /api/v1/approvals/{taskID}.
type ResolveApprovalRequest struct {
	Accept bool `json:"accept"`
}

// ResolveApproval handles POST /api/v1/approvals/{taskID}: records the
// operator's changeover decision.
func (h *REST) ResolveApproval(w http.ResponseWriter, r *http.Request) {
	var req ResolveApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	taskID := chi.URLParam(r, "taskID")
	if err := h.scheduler.ResolveApproval(taskID, req.Accept); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_id": taskID, "accepted": req.Accept})
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
