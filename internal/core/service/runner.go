package service

import (
	"context"
	"time"

	monitoring "github.com/shopfloor/cnc-scheduler/internal/adapter/monitoring/prometheus"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

// Runner drives the scheduler: a fixed-interval ticker plus out-of-band
// wake-ups from task intake and machine status changes. Committed
// assignments are the hand-off point to the execution layer; the runner
// pushes them to the dispatch queue after each pass.
type Runner struct {
	scheduler *Scheduler
	queue     port.DispatchQueue
	interval  time.Duration
	log       *zap.Logger
}

func NewRunner(scheduler *Scheduler, queue port.DispatchQueue, interval time.Duration, log *zap.Logger) *Runner {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Runner{
		scheduler: scheduler,
		queue:     queue,
		interval:  interval,
		log:       log,
	}
}

// Run blocks until ctx is cancelled. An in-flight pass always finishes; only
// new ticks stop.
func (r *Runner) Run(ctx context.Context) error {
	if r.queue != nil {
		if err := r.queue.ConsumeStatus(ctx, func(state *domain.MachineState) error {
			monitoring.StatusEvents.Inc()
			r.scheduler.UpdateMachineState(state)
			return nil
		}); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	count := 0
	for {
		select {
		case <-ctx.Done():
			r.log.Info("Stopping scheduler loop")
			return nil
		case <-r.scheduler.Notify():
			r.pass(ctx)
		case <-ticker.C:
			count++
			if count%3 == 0 {
				available := r.scheduler.ListAvailableMachines()
				r.log.Info("Scheduler heartbeat",
					zap.Int("available_machines", len(available)),
					zap.Duration("interval", r.interval))
			}
			r.pass(ctx)
		}
	}
}

func (r *Runner) pass(ctx context.Context) {
	monitoring.SchedulePasses.Inc()
	monitoring.MachinesAvailable.Set(float64(len(r.scheduler.ListAvailableMachines())))

	assignments := r.scheduler.Schedule(ctx)
	if len(assignments) == 0 {
		return
	}

	strategy := r.scheduler.Strategy()
	for _, a := range assignments {
		monitoring.AssignmentsCommitted.WithLabelValues(strategy).Inc()
		if r.queue == nil {
			continue
		}
		if err := r.queue.PublishAssignment(ctx, a.Task, a.MachineID); err != nil {
			monitoring.DispatchFailures.Inc()
			r.log.Error("Failed to dispatch assignment",
				zap.String("task_id", a.Task.ID),
				zap.String("machine_id", a.MachineID),
				zap.Error(err))
		}
	}
}
