package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"github.com/shopfloor/cnc-scheduler/internal/core/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memMaterialStore struct {
	records []*domain.MaterialRecord
}

func (m *memMaterialStore) LoadAll(context.Context) ([]*domain.MaterialRecord, error) {
	return m.records, nil
}

func (m *memMaterialStore) LookupByCode(_ context.Context, code string) (*domain.MaterialRecord, error) {
	for _, r := range m.records {
		if r.Code == code {
			return r, nil
		}
	}
	return nil, &domain.MaterialNotFoundError{Code: code}
}

func (m *memMaterialStore) LookupByName(_ context.Context, name string) (*domain.MaterialRecord, error) {
	for _, r := range m.records {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, &domain.MaterialNotFoundError{Code: name}
}

func (m *memMaterialStore) MutateStock(context.Context, string, int) error { return nil }

type memApprovals struct {
	reqs map[string]*port.ApprovalRequest
}

func (m *memApprovals) Put(id string, r *port.ApprovalRequest) error { m.reqs[id] = r; return nil }
func (m *memApprovals) Get(id string) (*port.ApprovalRequest, error) { return m.reqs[id], nil }
func (m *memApprovals) Delete(id string) error                       { delete(m.reqs, id); return nil }

func newTestServer(t *testing.T) (http.Handler, *service.Scheduler) {
	t.Helper()

	store := &memMaterialStore{records: []*domain.MaterialRecord{
		{Code: "STEEL", Name: "Steel bar", Family: "STEEL", Stock: 1000},
		{Code: "ALUMINUM", Name: "Aluminum bar", Family: "ALUMINUM", Stock: 1000},
	}}
	material := service.NewMaterialEngine(store, service.MaterialEngineConfig{}, zap.NewNop())
	require.NoError(t, material.Load(context.Background()))

	approvals := &memApprovals{reqs: make(map[string]*port.ApprovalRequest)}
	scheduler := service.NewScheduler(material, service.AutoAccept{}, approvals, nil, zap.NewNop())

	rest := NewREST(scheduler, material, zap.NewNop())
	return NewRouter(rest), scheduler
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitAndGetTask(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks",
		`{"instruction_id":"WO-1","product_model":"GEAR-7","material_spec":"STEEL","order_quantity":25,"priority":"HIGH"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.TaskID, "TASK_"))
	assert.Equal(t, "PENDING", created.Status)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/tasks/"+created.TaskID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var task domain.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &task))
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, 25, task.OrderQuantity)
}

func TestSubmitTaskRejectsBadBody(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks", `{"instruction_id":"WO-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/tasks", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskNotFound(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/api/v1/tasks/TASK_NOPE", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScheduleEndToEnd(t *testing.T) {
	h, scheduler := newTestServer(t)

	scheduler.UpdateMachineState(&domain.MachineState{MachineID: "CNC-001", CurrentState: "IDLE", CurrentMaterial: "STEEL"})

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks",
		`{"instruction_id":"WO-1","material_spec":"STEEL","order_quantity":10}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/api/v1/schedule", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Assigned    int                 `json:"assigned"`
		Assignments []domain.Assignment `json:"assignments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Assigned)
	assert.Equal(t, "CNC-001", result.Assignments[0].MachineID)
}

func TestStrategyEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/strategy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "material_first")

	rec = doJSON(t, h, http.MethodPut, "/api/v1/strategy", `{"strategy":"efficiency"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/v1/strategy", `{"strategy":"round_robin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatisticsAndMachines(t *testing.T) {
	h, scheduler := newTestServer(t)
	scheduler.UpdateMachineState(&domain.MachineState{MachineID: "CNC-001", CurrentState: "IDLE"})

	rec := doJSON(t, h, http.MethodGet, "/api/v1/statistics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats domain.Statistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, "material_first", stats.Strategy)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/machines", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "CNC-001")
}

func TestMaterialsEndpoints(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/materials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "STEEL")

	rec = doJSON(t, h, http.MethodGet, "/api/v1/materials/report", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var report domain.StockReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, 2, report.TotalMaterials)
	assert.Equal(t, 2000, report.TotalStock)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/materials/ALUMINUM", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ALUMINUM"`)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/materials/TITANIUM", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveTask(t *testing.T) {
	h, _ := newTestServer(t)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/tasks",
		`{"instruction_id":"WO-1","material_spec":"STEEL","order_quantity":5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created SubmitTaskResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/tasks/"+created.TaskID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/tasks/"+created.TaskID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
