package domain

// MaterialRecord is one row of the material store: a scannable lookup key
// mapped to a canonical code, its family and the on-hand stock.
type MaterialRecord struct {
	ScanKey  string `json:"scan_key"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Family   string `json:"family"`
	Stock    int    `json:"stock"`
	Unit     string `json:"unit,omitempty"`
	Supplier string `json:"supplier,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// MaterialCheckResult is the value object produced by a compatibility check.
// It is computed fresh on every check and never stored.
type MaterialCheckResult struct {
	Compatible      bool   `json:"compatible"`
	RequiresChange  bool   `json:"requires_change"`
	ChangeCost      int    `json:"change_cost"` // minutes
	Message         string `json:"message,omitempty"`
	AvailableStock  int    `json:"available_stock"`
	MachineMaterial string `json:"machine_material,omitempty"`
}

// StockCheck is the outcome of a stock sufficiency query.
type StockCheck struct {
	Sufficient bool `json:"sufficient"`
	Available  int  `json:"available"`
}

// StockReport aggregates inventory counts for operational dashboards.
type StockReport struct {
	TotalMaterials    int `json:"total_materials"`
	TotalStock        int `json:"total_stock"`
	LowStockCount     int `json:"low_stock_count"`
	CriticalCount     int `json:"critical_stock_count"`
	OutOfStockCount   int `json:"out_of_stock_count"`
	LowThreshold      int `json:"low_threshold"`
	CriticalThreshold int `json:"critical_threshold"`
}

// Statistics summarizes the scheduler queues for presentation layers.
type Statistics struct {
	Pending            int                `json:"pending"`
	WaitingForMaterial int                `json:"waiting_for_material"`
	Running            int                `json:"running"`
	Completed          int                `json:"completed"`
	Total              int                `json:"total"`
	Strategy           string             `json:"strategy"`
	MachineUtilization map[string]float64 `json:"machine_utilization,omitempty"`
}

// Assignment is one committed (task, machine) pair from a scheduling pass.
type Assignment struct {
	Task      *Task  `json:"task"`
	MachineID string `json:"machine_id"`
}
