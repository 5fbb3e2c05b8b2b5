package service

import (
	"sort"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
)

// Strategy names selectable at runtime.
const (
	StrategyMaterialFirst = "material_first"
	StrategyPriorityFirst = "priority_first"
	StrategyLoadBalance   = "load_balance"
	StrategyEfficiency    = "efficiency"
)

// candidate is one proposed (task, machine) pair before commit.
type candidate struct {
	task      *domain.Task
	machineID string
}

type strategyFunc func(tasks []*domain.Task, machines []string) []candidate

// Priority term of the assignment score.
var priorityScores = map[domain.TaskPriority]float64{
	domain.PriorityUrgent: 50,
	domain.PriorityHigh:   30,
	domain.PriorityNormal: 10,
}

// capabilityBonus is the additive score per declared machine capability.
const capabilityBonus = 5

// sortByPriority orders tasks URGENT > HIGH > NORMAL, stable so queue order
// breaks ties.
func sortByPriority(tasks []*domain.Task) []*domain.Task {
	sorted := make([]*domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Rank() > sorted[j].Priority.Rank()
	})
	return sorted
}

// scheduleMaterialFirst places higher-priority tasks first, each on the
// machine with the best assignment score; the material term dominates, so
// zero-changeover placements win. One task per machine per pass.
func (s *Scheduler) scheduleMaterialFirst(tasks []*domain.Task, machines []string) []candidate {
	var out []candidate
	pool := append([]string(nil), machines...)

	for _, task := range sortByPriority(tasks) {
		best := s.findBestMachine(task, pool)
		if best == "" {
			continue
		}
		out = append(out, candidate{task: task, machineID: best})
		pool = removeString(pool, best)
	}
	return out
}

// schedulePriorityFirst is the same mechanics with priority as the only sort
// key; ties fall back to pending-queue order through the stable sort.
func (s *Scheduler) schedulePriorityFirst(tasks []*domain.Task, machines []string) []candidate {
	return s.scheduleMaterialFirst(tasks, machines)
}

// scheduleLoadBalance assigns each task to the least-loaded compatible
// machine, load being the aggregate estimated duration of its running tasks.
func (s *Scheduler) scheduleLoadBalance(tasks []*domain.Task, machines []string) []candidate {
	load := make(map[string]int)
	for _, t := range s.running {
		if t.AssignedMachine != "" {
			load[t.AssignedMachine] += t.EstimatedDuration
		}
	}

	var out []candidate
	pool := append([]string(nil), machines...)

	for _, task := range sortByPriority(tasks) {
		if len(pool) == 0 {
			break
		}
		best := ""
		bestLoad := 0
		for _, id := range pool {
			m := s.machines[id]
			if m == nil {
				continue
			}
			check := s.material.CheckCompatibility(task, id, m.CurrentMaterial)
			if !check.Compatible {
				continue
			}
			if best == "" || load[id] < bestLoad {
				best = id
				bestLoad = load[id]
			}
		}
		if best == "" {
			continue
		}
		out = append(out, candidate{task: task, machineID: best})
		load[best] += task.EstimatedDuration
		pool = removeString(pool, best)
	}
	return out
}

// scheduleEfficiency scores every (task, machine) pair, then greedily accepts
// the best pair whose task and machine are both still free. This is a global
// matching, not per-task-first.
func (s *Scheduler) scheduleEfficiency(tasks []*domain.Task, machines []string) []candidate {
	type pair struct {
		score     float64
		task      *domain.Task
		machineID string
	}

	var pairs []pair
	for _, task := range tasks {
		for _, id := range machines {
			m := s.machines[id]
			if m == nil {
				continue
			}
			score := s.efficiencyScore(task, id, m.CurrentMaterial)
			if score < 0 {
				continue
			}
			pairs = append(pairs, pair{score: score, task: task, machineID: id})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	takenTask := make(map[string]bool)
	takenMachine := make(map[string]bool)
	var out []candidate
	for _, p := range pairs {
		if takenTask[p.task.ID] || takenMachine[p.machineID] {
			continue
		}
		out = append(out, candidate{task: p.task, machineID: p.machineID})
		takenTask[p.task.ID] = true
		takenMachine[p.machineID] = true
	}
	return out
}

// findBestMachine returns the machine in pool maximizing the assignment
// score, or "" when the pool is empty.
func (s *Scheduler) findBestMachine(task *domain.Task, pool []string) string {
	best := ""
	bestScore := -1.0
	for _, id := range pool {
		m := s.machines[id]
		if m == nil {
			continue
		}
		check := s.material.CheckCompatibility(task, id, m.CurrentMaterial)
		if !check.Compatible {
			continue
		}
		score := s.assignmentScore(task, m, check)
		if score > bestScore {
			bestScore = score
			best = id
		}
	}
	return best
}

// assignmentScore is material term + priority term + capability term.
func (s *Scheduler) assignmentScore(task *domain.Task, m *domain.MachineState, check *domain.MaterialCheckResult) float64 {
	score := 0.0
	if !check.RequiresChange {
		score += 100
	} else {
		score += maxFloat(0, 100-float64(check.ChangeCost))
	}
	score += priorityScores[task.Priority]
	score += float64(len(m.Capabilities)) * capabilityBonus
	return score
}

// efficiencyScore is the weighted variant used by the efficiency strategy:
// base 100, changeover cost at double weight, priority as a multiplier, and
// running-task count on the machine as a load-damping divisor.
func (s *Scheduler) efficiencyScore(task *domain.Task, machineID, currentMaterial string) float64 {
	check := s.material.CheckCompatibility(task, machineID, currentMaterial)
	if !check.Compatible {
		return -1
	}

	eff := 100.0
	if check.RequiresChange {
		eff -= float64(check.ChangeCost) * 2
	}

	switch task.Priority {
	case domain.PriorityUrgent:
		eff *= 1.5
	case domain.PriorityHigh:
		eff *= 1.2
	}

	runningCount := 0
	for _, t := range s.running {
		if t.AssignedMachine == machineID {
			runningCount++
		}
	}
	eff /= 1 + float64(runningCount)*0.1

	return eff
}

func removeString(pool []string, v string) []string {
	for i, s := range pool {
		if s == v {
			return append(pool[:i], pool[i+1:]...)
		}
	}
	return pool
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
