package redis

import (
	"encoding/json"
	"time"

	"github.com/gofiber/storage/redis/v3"
	"github.com/shopfloor/cnc-scheduler/internal/core/port"
)

// approvalTTL keeps abandoned requests from piling up when no operator
// ever resolves them.
const approvalTTL = 24 * time.Hour

type approvalStore struct {
	storage *redis.Storage
}

// NewApprovalStore creates the Redis-backed queue of material change
// requests awaiting an operator decision.
func NewApprovalStore(storage *redis.Storage) port.ApprovalStore {
	return &approvalStore{storage: storage}
}

func (s *approvalStore) Put(taskID string, req *port.ApprovalRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return s.storage.Set(approvalKey(taskID), data, approvalTTL)
}

func (s *approvalStore) Get(taskID string) (*port.ApprovalRequest, error) {
	data, err := s.storage.Get(approvalKey(taskID))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var req port.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *approvalStore) Delete(taskID string) error {
	return s.storage.Delete(approvalKey(taskID))
}

func approvalKey(taskID string) string {
	return "approval:" + taskID
}
