package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMaterialStore is an in-memory port.MaterialStore recording stock
// mutations.
type fakeMaterialStore struct {
	mu        sync.Mutex
	records   []*domain.MaterialRecord
	mutations map[string]int
}

func newFakeMaterialStore(records ...*domain.MaterialRecord) *fakeMaterialStore {
	return &fakeMaterialStore{records: records, mutations: make(map[string]int)}
}

func (f *fakeMaterialStore) LoadAll(context.Context) ([]*domain.MaterialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.MaterialRecord, 0, len(f.records))
	for _, r := range f.records {
		rec := *r
		out = append(out, &rec)
	}
	return out, nil
}

func (f *fakeMaterialStore) LookupByCode(_ context.Context, code string) (*domain.MaterialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Code == code {
			rec := *r
			return &rec, nil
		}
	}
	return nil, &domain.MaterialNotFoundError{Code: code}
}

func (f *fakeMaterialStore) LookupByName(_ context.Context, name string) (*domain.MaterialRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.Name == name {
			rec := *r
			return &rec, nil
		}
	}
	return nil, &domain.MaterialNotFoundError{Code: name}
}

func (f *fakeMaterialStore) MutateStock(_ context.Context, code string, newStock int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations[code] = newStock
	return nil
}

var _ port.MaterialStore = (*fakeMaterialStore)(nil)

func record(code, family string, stock int) *domain.MaterialRecord {
	return &domain.MaterialRecord{
		ScanKey: "SCAN-" + code,
		Code:    code,
		Name:    code + " bar stock",
		Family:  family,
		Stock:   stock,
		Unit:    "pcs",
	}
}

func newTestEngine(t *testing.T, records ...*domain.MaterialRecord) (*MaterialEngine, *fakeMaterialStore) {
	t.Helper()
	store := newFakeMaterialStore(records...)
	engine := NewMaterialEngine(store, MaterialEngineConfig{}, zap.NewNop())
	require.NoError(t, engine.Load(context.Background()))
	return engine, store
}

func TestChangeCostDiagonalIsZero(t *testing.T) {
	engine, _ := newTestEngine(t,
		record("STEEL", "STEEL", 500),
		record("ALUMINUM", "ALUMINUM", 500),
		record("STAINLESS_STEEL", "STAINLESS_STEEL", 500),
		record("COPPER", "COPPER", 500),
	)

	for _, m := range []string{"STEEL", "ALUMINUM", "STAINLESS_STEEL", "COPPER"} {
		assert.Zerof(t, engine.ChangeCost(m, m), "cost %s -> %s", m, m)
	}
}

func TestChangeCostMatrix(t *testing.T) {
	engine, _ := newTestEngine(t,
		record("STEEL", "STEEL", 500),
		record("ALUMINUM", "ALUMINUM", 500),
		record("COPPER", "COPPER", 500),
		record("S45C", "STEEL", 200),
	)

	assert.Equal(t, 30, engine.ChangeCost("STEEL", "ALUMINUM"))
	assert.Equal(t, 30, engine.ChangeCost("ALUMINUM", "STEEL"))
	assert.Equal(t, 60, engine.ChangeCost("STEEL", "COPPER"))

	// Empty machine incurs no changeover at all.
	assert.Zero(t, engine.ChangeCost("", "STEEL"))

	// Same family, different codes: no changeover.
	assert.Zero(t, engine.ChangeCost("S45C", "STEEL"))

	// Unknown material falls back to the default penalty.
	assert.Equal(t, 60, engine.ChangeCost("TITANIUM", "STEEL"))
	assert.Equal(t, 60, engine.ChangeCost("STEEL", "TITANIUM"))
}

func TestChangeCostMatrixFromConfig(t *testing.T) {
	store := newFakeMaterialStore(
		record("STEEL", "STEEL", 500),
		record("ALUMINUM", "ALUMINUM", 500),
		record("COPPER", "COPPER", 500),
	)
	engine := NewMaterialEngine(store, MaterialEngineConfig{
		ChangeCosts: ChangeCostMatrix(map[string]int{
			"STEEL->COPPER":        15,
			" aluminum -> copper ": 25,
			"MALFORMED":            10,
			"STEEL->":              10,
			"COPPER->STEEL":        -1,
		}),
	}, zap.NewNop())
	require.NoError(t, engine.Load(context.Background()))

	// Overridden pairs, including one with sloppy config spelling.
	assert.Equal(t, 15, engine.ChangeCost("STEEL", "COPPER"))
	assert.Equal(t, 25, engine.ChangeCost("ALUMINUM", "COPPER"))

	// Untouched pairs keep the built-in costs.
	assert.Equal(t, 30, engine.ChangeCost("STEEL", "ALUMINUM"))
	assert.Equal(t, 60, engine.ChangeCost("COPPER", "STEEL"), "malformed and negative entries are skipped")

	assert.Nil(t, ChangeCostMatrix(nil))
	assert.Nil(t, ChangeCostMatrix(map[string]int{}))
}

func TestChangeCostIsDeterministic(t *testing.T) {
	engine, _ := newTestEngine(t,
		record("STEEL", "STEEL", 500),
		record("ALUMINUM", "ALUMINUM", 500),
	)

	first := engine.ChangeCost("STEEL", "ALUMINUM")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, engine.ChangeCost("STEEL", "ALUMINUM"))
	}
}

func TestCheckCompatibilityNeverBlocks(t *testing.T) {
	engine, _ := newTestEngine(t,
		record("STEEL", "STEEL", 500),
		record("COPPER", "COPPER", 500),
	)
	task := &domain.Task{ID: "TASK_1", MaterialSpec: "COPPER", OrderQuantity: 10}

	match := engine.CheckCompatibility(task, "CNC-001", "COPPER")
	assert.True(t, match.Compatible)
	assert.False(t, match.RequiresChange)
	assert.Zero(t, match.ChangeCost)

	change := engine.CheckCompatibility(task, "CNC-001", "STEEL")
	assert.True(t, change.Compatible, "a differing material raises cost, it never blocks")
	assert.True(t, change.RequiresChange)
	assert.Equal(t, 60, change.ChangeCost)
	assert.Equal(t, 500, change.AvailableStock)
}

func TestCheckStock(t *testing.T) {
	engine, _ := newTestEngine(t, record("STEEL", "STEEL", 100))

	assert.True(t, engine.CheckStock("STEEL", 100).Sufficient)
	assert.False(t, engine.CheckStock("STEEL", 101).Sufficient)

	unknown := engine.CheckStock("TITANIUM", 1)
	assert.False(t, unknown.Sufficient)
	assert.Zero(t, unknown.Available)
}

func TestConsumeFailsCleanOnShortStock(t *testing.T) {
	engine, store := newTestEngine(t, record("STEEL", "STEEL", 10))
	ctx := context.Background()

	assert.False(t, engine.Consume(ctx, "STEEL", 11))
	assert.Equal(t, 10, engine.CheckStock("STEEL", 0).Available, "refused consume must not mutate stock")
	assert.Empty(t, store.mutations)

	assert.False(t, engine.Consume(ctx, "TITANIUM", 1))
}

func TestConsumeAndReturnPersist(t *testing.T) {
	engine, store := newTestEngine(t, record("STEEL", "STEEL", 100))
	ctx := context.Background()

	require.True(t, engine.Consume(ctx, "STEEL", 40))
	assert.Equal(t, 60, engine.CheckStock("STEEL", 0).Available)
	assert.Equal(t, 60, store.mutations["STEEL"])

	engine.Return(ctx, "STEEL", 15)
	assert.Equal(t, 75, engine.CheckStock("STEEL", 0).Available)
	assert.Equal(t, 75, store.mutations["STEEL"])
}

func TestLookup(t *testing.T) {
	engine, _ := newTestEngine(t, record("STEEL", "STEEL", 100))

	byCode, err := engine.Lookup("STEEL")
	require.NoError(t, err)
	assert.Equal(t, "STEEL", byCode.Code)

	byName, err := engine.Lookup("STEEL bar stock")
	require.NoError(t, err)
	assert.Equal(t, "STEEL", byName.Code)

	byScan, err := engine.Lookup("SCAN-STEEL")
	require.NoError(t, err)
	assert.Equal(t, "STEEL", byScan.Code)

	_, err = engine.Lookup("TITANIUM")
	var notFound *domain.MaterialNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestStockReportThresholds(t *testing.T) {
	store := newFakeMaterialStore(
		record("A", "STEEL", 0),
		record("B", "STEEL", 15),
		record("C", "STEEL", 80),
		record("D", "STEEL", 500),
	)
	engine := NewMaterialEngine(store, MaterialEngineConfig{
		LowStockThreshold:      100,
		CriticalStockThreshold: 20,
	}, zap.NewNop())
	require.NoError(t, engine.Load(context.Background()))

	report := engine.Report()
	assert.Equal(t, 4, report.TotalMaterials)
	assert.Equal(t, 595, report.TotalStock)
	assert.Equal(t, 1, report.OutOfStockCount)
	assert.Equal(t, 2, report.CriticalCount)
	assert.Equal(t, 3, report.LowStockCount)
}
