package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopfloor/cnc-scheduler/internal/core/domain"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
	"go.uber.org/zap"
)

// snapshotTTL bounds staleness: a machine that stops reporting drops out of
// the mirror on its own.
const snapshotTTL = 30 * time.Second

type fleetMirror struct {
	client redis.UniversalClient
	log    *zap.Logger
}

// NewFleetMirror creates the Redis adapter that shares machine snapshots
// with other processes (monitor, verification).
func NewFleetMirror(client redis.UniversalClient, log *zap.Logger) port.FleetMirror {
	return &fleetMirror{
		client: client,
		log:    log,
	}
}

func (m *fleetMirror) PublishState(ctx context.Context, state *domain.MachineState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("machine:%s", state.MachineID)
	return m.client.Set(ctx, key, data, snapshotTTL).Err()
}

func (m *fleetMirror) ListStates(ctx context.Context) ([]*domain.MachineState, error) {
	keys, err := m.client.Keys(ctx, "machine:*").Result()
	if err != nil {
		return nil, err
	}

	var states []*domain.MachineState
	for _, key := range keys {
		val, err := m.client.Get(ctx, key).Result()
		if err != nil {
			continue // key expired between KEYS and GET
		}

		var state domain.MachineState
		if err := json.Unmarshal([]byte(val), &state); err == nil {
			states = append(states, &state)
		}
	}
	return states, nil
}
