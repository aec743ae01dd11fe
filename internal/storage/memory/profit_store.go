package memory

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/storage"
)

type userAsset struct {
	user  common.Address
	asset common.Address
}

type strategyUserAsset struct {
	strategyID uint64
	user       common.Address
	asset      common.Address
}

// ProfitStore is an in-memory implementation of storage.ProfitStore.
type ProfitStore struct {
	mu            sync.RWMutex
	totals        map[common.Address]*big.Int
	users         map[userAsset]*big.Int
	strategyUsers map[strategyUserAsset]*big.Int
}

// NewProfitStore creates a new in-memory profit ledger store.
func NewProfitStore() *ProfitStore {
	return &ProfitStore{
		totals:        make(map[common.Address]*big.Int),
		users:         make(map[userAsset]*big.Int),
		strategyUsers: make(map[strategyUserAsset]*big.Int),
	}
}

// Add applies all entries atomically. Fails the whole batch on any invalid entry.
func (s *ProfitStore) Add(_ context.Context, entries []storage.ProfitEntry) error {
	for _, e := range entries {
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		addTo(s.totals, e.Asset, e.Amount)
		addTo(s.users, userAsset{e.User, e.Asset}, e.Amount)
		addTo(s.strategyUsers, strategyUserAsset{e.StrategyID, e.User, e.Asset}, e.Amount)
	}
	return nil
}

// Total returns cumulative profit of asset across all users.
func (s *ProfitStore) Total(_ context.Context, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valueOf(s.totals, asset), nil
}

// User returns cumulative profit of asset credited to user.
func (s *ProfitStore) User(_ context.Context, user, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valueOf(s.users, userAsset{user, asset}), nil
}

// StrategyUser returns profit of asset credited to user by one strategy.
func (s *ProfitStore) StrategyUser(_ context.Context, strategyID uint64, user, asset common.Address) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return valueOf(s.strategyUsers, strategyUserAsset{strategyID, user, asset}), nil
}

func addTo[K comparable](m map[K]*big.Int, k K, v *big.Int) {
	cur, ok := m[k]
	if !ok {
		cur = new(big.Int)
	}
	m[k] = new(big.Int).Add(cur, v)
}

func valueOf[K comparable](m map[K]*big.Int, k K) *big.Int {
	if v, ok := m[k]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

var _ storage.ProfitStore = (*ProfitStore)(nil)
