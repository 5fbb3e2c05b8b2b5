package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

// defaultChangeCost applies when either material family is unknown.
const defaultChangeCost = 60

// defaultChangeCosts is the changeover matrix in minutes, keyed
// (fromFamily, toFamily). Zero on the diagonal.
var defaultChangeCosts = map[string]map[string]int{
	"STEEL":           {"STEEL": 0, "ALUMINUM": 30, "STAINLESS_STEEL": 45, "COPPER": 60},
	"ALUMINUM":        {"STEEL": 30, "ALUMINUM": 0, "STAINLESS_STEEL": 40, "COPPER": 35},
	"STAINLESS_STEEL": {"STEEL": 45, "ALUMINUM": 40, "STAINLESS_STEEL": 0, "COPPER": 50},
	"COPPER":          {"STEEL": 60, "ALUMINUM": 35, "STAINLESS_STEEL": 50, "COPPER": 0},
}

// ChangeCostMatrix expands flat "FROM->TO" cost overrides, as they appear in
// configuration, onto the built-in changeover matrix. Families are upper-cased
// and trimmed; malformed keys and negative costs are skipped. An empty input
// returns nil so the defaults apply unchanged.
func ChangeCostMatrix(flat map[string]int) map[string]map[string]int {
	if len(flat) == 0 {
		return nil
	}
	out := make(map[string]map[string]int, len(defaultChangeCosts))
	for from, row := range defaultChangeCosts {
		out[from] = make(map[string]int, len(row))
		for to, cost := range row {
			out[from][to] = cost
		}
	}
	for key, cost := range flat {
		from, to, ok := strings.Cut(key, "->")
		if !ok || cost < 0 {
			continue
		}
		from = strings.ToUpper(strings.TrimSpace(from))
		to = strings.ToUpper(strings.TrimSpace(to))
		if from == "" || to == "" {
			continue
		}
		if out[from] == nil {
			out[from] = make(map[string]int)
		}
		out[from][to] = cost
	}
	return out
}

// MaterialEngineConfig tunes inventory reporting and the changeover model.
type MaterialEngineConfig struct {
	LowStockThreshold      int
	CriticalStockThreshold int
	// ChangeCosts overrides the built-in changeover matrix when non-nil.
	ChangeCosts map[string]map[string]int
}

// MaterialEngine answers compatibility questions and owns the in-memory
// inventory, backed by a MaterialStore for persistence. Compatibility is a
// cost model, not a gate: a differing machine material never blocks an
// assignment, it only raises the changeover cost folded into scoring. Stock
// sufficiency is likewise reported but not folded into Compatible; the
// scheduler parks short-stocked tasks instead (see Scheduler.Schedule).
type MaterialEngine struct {
	store       port.MaterialStore
	log         *zap.Logger
	cfg         MaterialEngineConfig
	changeCosts map[string]map[string]int

	mu      sync.RWMutex
	byCode  map[string]*domain.MaterialRecord
	records []*domain.MaterialRecord
}

func NewMaterialEngine(store port.MaterialStore, cfg MaterialEngineConfig, log *zap.Logger) *MaterialEngine {
	if cfg.LowStockThreshold <= 0 {
		cfg.LowStockThreshold = 100
	}
	if cfg.CriticalStockThreshold <= 0 {
		cfg.CriticalStockThreshold = 20
	}
	costs := cfg.ChangeCosts
	if costs == nil {
		costs = defaultChangeCosts
	}
	return &MaterialEngine{
		store:       store,
		log:         log,
		cfg:         cfg,
		changeCosts: costs,
		byCode:      make(map[string]*domain.MaterialRecord),
	}
}

// Load bulk-reads the material store. A failure here is fatal at startup:
// the engine cannot make stock decisions without records.
func (e *MaterialEngine) Load(ctx context.Context) error {
	records, err := e.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load materials: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = records
	e.byCode = make(map[string]*domain.MaterialRecord, len(records))
	for _, r := range records {
		e.byCode[r.Code] = r
	}

	e.log.Info("Material store loaded", zap.Int("count", len(records)))
	return nil
}

// CheckCompatibility evaluates placing task on a machine currently loaded with
// currentMaterial. Differing materials are always compatible; the changeover
// penalty is reported as ChangeCost for the strategy to weigh.
func (e *MaterialEngine) CheckCompatibility(task *domain.Task, machineID, currentMaterial string) *domain.MaterialCheckResult {
	stock := e.CheckStock(task.MaterialSpec, task.RemainingQuantity())

	if currentMaterial == task.MaterialSpec {
		return &domain.MaterialCheckResult{
			Compatible:      true,
			RequiresChange:  false,
			ChangeCost:      0,
			AvailableStock:  stock.Available,
			MachineMaterial: currentMaterial,
			Message:         "material match",
		}
	}

	cost := e.ChangeCost(currentMaterial, task.MaterialSpec)
	return &domain.MaterialCheckResult{
		Compatible:      true,
		RequiresChange:  true,
		ChangeCost:      cost,
		AvailableStock:  stock.Available,
		MachineMaterial: currentMaterial,
		Message:         fmt.Sprintf("changeover %s -> %s, est. %d min", currentMaterial, task.MaterialSpec, cost),
	}
}

// ChangeCost returns the deterministic changeover penalty in minutes for
// switching a machine from one material to another. Zero when the materials
// are equal or the machine has no material loaded yet.
func (e *MaterialEngine) ChangeCost(from, to string) int {
	if from == "" || from == to {
		return 0
	}
	fromFam := e.familyOf(from)
	toFam := e.familyOf(to)
	if fromFam == "" || toFam == "" {
		return defaultChangeCost
	}
	if fromFam == toFam {
		return 0
	}
	if row, ok := e.changeCosts[fromFam]; ok {
		if cost, ok := row[toFam]; ok {
			return cost
		}
	}
	return defaultChangeCost
}

func (e *MaterialEngine) familyOf(code string) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.byCode[code]; ok {
		return strings.ToUpper(r.Family)
	}
	return ""
}

// CheckStock reports whether requiredQty of the material is on hand.
func (e *MaterialEngine) CheckStock(code string, requiredQty int) domain.StockCheck {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.byCode[code]
	if !ok {
		return domain.StockCheck{Sufficient: false, Available: 0}
	}
	return domain.StockCheck{Sufficient: r.Stock >= requiredQty, Available: r.Stock}
}

// Consume removes qty from stock. It fails without mutating anything when the
// material is unknown or the stock is insufficient.
func (e *MaterialEngine) Consume(ctx context.Context, code string, qty int) bool {
	e.mu.Lock()
	r, ok := e.byCode[code]
	if !ok || r.Stock < qty {
		available := 0
		if ok {
			available = r.Stock
		}
		e.mu.Unlock()
		e.log.Warn("Stock consume refused",
			zap.String("material", code),
			zap.Int("requested", qty),
			zap.Int("available", available))
		return false
	}
	r.Stock -= qty
	newStock := r.Stock
	e.mu.Unlock()

	e.persistStock(ctx, code, newStock)
	e.log.Info("Stock consumed", zap.String("material", code), zap.Int("qty", qty), zap.Int("remaining", newStock))
	return true
}

// Return adds qty back to stock. It always succeeds for known materials.
func (e *MaterialEngine) Return(ctx context.Context, code string, qty int) {
	e.mu.Lock()
	r, ok := e.byCode[code]
	if !ok {
		e.mu.Unlock()
		e.log.Warn("Stock return for unknown material", zap.String("material", code))
		return
	}
	r.Stock += qty
	if r.Stock < 0 {
		r.Stock = 0
	}
	newStock := r.Stock
	e.mu.Unlock()

	e.persistStock(ctx, code, newStock)
	e.log.Info("Stock returned", zap.String("material", code), zap.Int("qty", qty), zap.Int("stock", newStock))
}

// persistStock writes through to the store; a write failure leaves the
// in-memory figure authoritative and is only logged.
func (e *MaterialEngine) persistStock(ctx context.Context, code string, newStock int) {
	if err := e.store.MutateStock(ctx, code, newStock); err != nil {
		e.log.Error("Failed to persist stock mutation",
			zap.String("material", code),
			zap.Int("stock", newStock),
			zap.Error(err))
	}
}

// Lookup finds a record by canonical code, falling back to display name.
func (e *MaterialEngine) Lookup(key string) (*domain.MaterialRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r, ok := e.byCode[key]; ok {
		rec := *r
		return &rec, nil
	}
	for _, r := range e.records {
		if strings.EqualFold(r.Name, key) || r.ScanKey == key {
			rec := *r
			return &rec, nil
		}
	}
	return nil, &domain.MaterialNotFoundError{Code: key}
}

// Records returns a copy of all material records.
func (e *MaterialEngine) Records() []*domain.MaterialRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*domain.MaterialRecord, 0, len(e.records))
	for _, r := range e.records {
		rec := *r
		out = append(out, &rec)
	}
	return out
}

// Report aggregates inventory counts against the configured thresholds.
func (e *MaterialEngine) Report() *domain.StockReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := &domain.StockReport{
		TotalMaterials:    len(e.records),
		LowThreshold:      e.cfg.LowStockThreshold,
		CriticalThreshold: e.cfg.CriticalStockThreshold,
	}
	for _, r := range e.records {
		report.TotalStock += r.Stock
		switch {
		case r.Stock <= 0:
			report.OutOfStockCount++
			report.CriticalCount++
			report.LowStockCount++
		case r.Stock <= e.cfg.CriticalStockThreshold:
			report.CriticalCount++
			report.LowStockCount++
		case r.Stock <= e.cfg.LowStockThreshold:
			report.LowStockCount++
		}
	}
	return report
}
