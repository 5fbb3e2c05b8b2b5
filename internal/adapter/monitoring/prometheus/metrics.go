// Package prometheus exposes the engine's operational metrics.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SchedulePasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cncsched",
		Subsystem: "scheduler",
		Name:      "passes_total",
		Help:      "Total scheduling passes executed.",
	})

	AssignmentsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cncsched",
		Subsystem: "scheduler",
		Name:      "assignments_total",
		Help:      "Total committed task assignments, labelled by strategy.",
	}, []string{"strategy"})

	DispatchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cncsched",
		Subsystem: "scheduler",
		Name:      "dispatch_failures_total",
		Help:      "Total assignments that failed to publish downstream.",
	})

	TasksSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cncsched",
		Subsystem: "api",
		Name:      "tasks_submitted_total",
		Help:      "Total tasks accepted through the operations surface.",
	}, []string{"priority"})

	MachinesAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cncsched",
		Subsystem: "fleet",
		Name:      "machines_available",
		Help:      "Machines currently passing the availability predicate.",
	})

	StatusEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cncsched",
		Subsystem: "fleet",
		Name:      "status_events_total",
		Help:      "Machine status events consumed from providers.",
	})
)
