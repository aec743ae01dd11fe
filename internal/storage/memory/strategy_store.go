package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

// StrategyStore is an in-memory implementation of storage.StrategyStore.
type StrategyStore struct {
	mu     sync.RWMutex
	nextID uint64
	data   map[uint64]*domain.Strategy // keyed by strategy id
}

// NewStrategyStore creates a new in-memory strategy store.
func NewStrategyStore() *StrategyStore {
	return &StrategyStore{
		nextID: 1,
		data:   make(map[uint64]*domain.Strategy),
	}
}

// NextID allocates the next strategy id.
func (s *StrategyStore) NextID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	return id, nil
}

// PeekNextID returns the id the next NextID call will allocate.
func (s *StrategyStore) PeekNextID(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextID, nil
}

// Insert adds a new strategy. Returns ErrDuplicateKey if id exists.
func (s *StrategyStore) Insert(_ context.Context, st *domain.Strategy) error {
	if st == nil || st.ID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.ID]; exists {
		return storage.ErrDuplicateKey
	}
	s.data[st.ID] = st.Clone()
	if st.ID >= s.nextID {
		s.nextID = st.ID + 1
	}
	return nil
}

// GetByID retrieves a strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) GetByID(_ context.Context, id uint64) (*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return st.Clone(), nil
}

// Update replaces a stored strategy. Returns ErrNotFound if not exists.
func (s *StrategyStore) Update(_ context.Context, st *domain.Strategy) error {
	if st == nil || st.ID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[st.ID]; !exists {
		return storage.ErrNotFound
	}
	s.data[st.ID] = st.Clone()
	return nil
}

// List retrieves all strategies, ordered by id ASC.
func (s *StrategyStore) List(_ context.Context) ([]*domain.Strategy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Strategy, 0, len(s.data))
	for _, st := range s.data {
		result = append(result, st.Clone())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListByCreator retrieves up to limit strategy ids of creator, ordered by id ASC.
func (s *StrategyStore) ListByCreator(_ context.Context, creator common.Address, limit int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uint64
	for id, st := range s.data {
		if st.Creator == creator {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// CountByCreator returns how many strategies creator owns.
func (s *StrategyStore) CountByCreator(_ context.Context, creator common.Address) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, st := range s.data {
		if st.Creator == creator {
			n++
		}
	}
	return n, nil
}

var _ storage.StrategyStore = (*StrategyStore)(nil)
