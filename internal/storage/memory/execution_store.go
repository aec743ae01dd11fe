package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// ExecutionStore is an in-memory implementation of storage.ExecutionStore.
type ExecutionStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ExecutionResult // keyed by provenance hash
}

// NewExecutionStore creates a new in-memory execution result store.
func NewExecutionStore() *ExecutionStore {
	return &ExecutionStore{
		data: make(map[string]*domain.ExecutionResult),
	}
}

// Insert adds a new result. Returns ErrDuplicateKey if id exists.
func (s *ExecutionStore) Insert(_ context.Context, r *domain.ExecutionResult) error {
	if r == nil || r.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[r.ID] = r.Clone()
	return nil
}

// GetByID retrieves a result by its provenance hash. Returns ErrNotFound if not exists.
func (s *ExecutionStore) GetByID(_ context.Context, id string) (*domain.ExecutionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// GetByStrategyID retrieves all results for a strategy, ordered by (timestamp, nonce) ASC.
func (s *ExecutionStore) GetByStrategyID(_ context.Context, strategyID uint64) ([]*domain.ExecutionResult, error) {
	return s.filter(func(r *domain.ExecutionResult) bool { return r.StrategyID == strategyID }), nil
}

// GetByExecutor retrieves all results submitted by executor, ordered by (timestamp, nonce) ASC.
func (s *ExecutionStore) GetByExecutor(_ context.Context, executor common.Address) ([]*domain.ExecutionResult, error) {
	return s.filter(func(r *domain.ExecutionResult) bool { return r.Executor == executor }), nil
}

func (s *ExecutionStore) filter(keep func(*domain.ExecutionResult) bool) []*domain.ExecutionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.ExecutionResult
	for _, r := range s.data {
		if keep(r) {
			result = append(result, r.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].Nonce < result[j].Nonce
	})
	return result
}

var _ storage.ExecutionStore = (*ExecutionStore)(nil)
