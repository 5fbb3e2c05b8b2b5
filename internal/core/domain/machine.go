package domain

import (
	"strings"
	"time"
)

// availableStates are the status tokens under which a machine may accept work.
var availableStates = map[string]bool{
	"OFF":     true,
	"IDLE":    true,
	"STANDBY": true,
	"READY":   true,
}

// MachineState is the last observed snapshot of one machine, pushed in by the
// status provider. The scheduler only writes CurrentTask and CurrentState on
// assignment and completion.
type MachineState struct {
	MachineID       string    `json:"machine_id"`
	CurrentState    string    `json:"current_state"`
	CurrentMaterial string    `json:"current_material"`
	CurrentTask     string    `json:"current_task,omitempty"`
	ProgramName     string    `json:"program_name,omitempty"`
	LastUpdate      time.Time `json:"last_update"`
	Capabilities    []string  `json:"capabilities,omitempty"`
	Address         string    `json:"address,omitempty"`
}

// IsAvailable reports whether the machine can take a task: its normalized
// status token is on the allow-list and it holds no task. An unrecognized
// token counts as available; a stale or missing status must not deadlock the
// fleet.
func (m *MachineState) IsAvailable() bool {
	if m.CurrentTask != "" {
		return false
	}
	state := strings.ToUpper(strings.TrimSpace(m.CurrentState))
	if state == "" || state == "UNKNOWN" {
		return true
	}
	if availableStates[state] {
		return true
	}
	return !knownBusyStates[state]
}

// knownBusyStates are tokens that definitely mean the machine is occupied.
var knownBusyStates = map[string]bool{
	"ON":      true,
	"RUNNING": true,
	"BUSY":    true,
	"ALARM":   true,
	"PAUSED":  true,
}

// IsRunning reports whether the machine is actively machining.
func (m *MachineState) IsRunning() bool {
	return knownBusyStates[strings.ToUpper(strings.TrimSpace(m.CurrentState))]
}

// HasCapability reports whether the machine declares the given capability tag.
func (m *MachineState) HasCapability(tag string) bool {
	for _, c := range m.Capabilities {
		if strings.EqualFold(c, tag) {
			return true
		}
	}
	return false
}
