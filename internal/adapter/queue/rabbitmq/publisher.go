package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

const dispatchExchange = "dispatch.direct"

type dispatchQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *zap.Logger
}

// NewDispatchQueue dials the broker with incremental backoff. The broker
// usually comes up slower than the scheduler in a compose stack.
func NewDispatchQueue(url string, log *zap.Logger) (port.DispatchQueue, error) {
	var conn *amqp.Connection
	var err error

	maxRetries := 10
	for i := 1; i <= maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			ch, err := conn.Channel()
			if err == nil {
				return &dispatchQueue{
					conn: conn,
					ch:   ch,
					log:  log,
				}, nil
			}
			conn.Close()
		}

		log.Warn("Failed to connect to RabbitMQ, retrying...",
			zap.Int("attempt", i),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)

		time.Sleep(time.Duration(i*2) * time.Second)
	}

	return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
}

// PublishAssignment routes the assignment by task priority so urgent work
// can be drained by machine agents ahead of the backlog.
func (q *dispatchQueue) PublishAssignment(ctx context.Context, task *domain.Task, machineID string) error {
	body, err := json.Marshal(domain.Assignment{Task: task, MachineID: machineID})
	if err != nil {
		return err
	}

	routingKey := "dispatch.normal"
	switch task.Priority {
	case domain.PriorityUrgent:
		routingKey = "dispatch.urgent"
	case domain.PriorityHigh:
		routingKey = "dispatch.high"
	}

	err = q.ch.PublishWithContext(ctx,
		dispatchExchange, // Exchange
		routingKey,       // Routing key
		false,            // Mandatory
		false,            // Immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
			Priority:    uint8(task.Priority.Rank()),
		})

	if err != nil {
		q.log.Error("Failed to publish assignment", zap.Error(err))
		return err
	}

	q.log.Info("Published assignment",
		zap.String("task", task.ID),
		zap.String("machine", machineID),
		zap.String("key", routingKey),
	)
	return nil
}
