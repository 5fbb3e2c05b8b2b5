package rabbitmq

import (
	"context"
	"encoding/json"

	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"go.uber.org/zap"
)

// ConsumeStatus listens for machine status reports published by the machine
// agents and feeds each one to the handler.
func (q *dispatchQueue) ConsumeStatus(ctx context.Context, handler func(state *domain.MachineState) error) error {
	qName := "machine.status"

	_, err := q.ch.QueueDeclare(
		qName, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		qName, // queue
		"",    // consumer
		false, // auto-ack (ack manually after the state is applied)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	q.log.Info("Started consuming machine status", zap.String("queue", qName))

	go func() {
		for d := range msgs {
			var state domain.MachineState
			if err := json.Unmarshal(d.Body, &state); err != nil {
				q.log.Error("Failed to unmarshal machine status", zap.Error(err))
				d.Nack(false, false) // discard invalid message
				continue
			}

			if err := handler(&state); err != nil {
				q.log.Error("Status handling failed",
					zap.String("machine", state.MachineID),
					zap.Error(err),
				)
				d.Nack(false, true)
			} else {
				d.Ack(false)
			}
		}
	}()

	return nil
}
