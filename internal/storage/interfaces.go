package storage

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
)

// StrategyStore provides access to strategies storage.
// Strategies are never deleted; deactivation is an Update.
type StrategyStore interface {
	// NextID allocates the next strategy id. Ids start at 1 and are never reused.
	NextID(ctx context.Context) (uint64, error)

	// PeekNextID returns the id the next NextID call will allocate.
	PeekNextID(ctx context.Context) (uint64, error)

	// Insert adds a new strategy. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, s *domain.Strategy) error

	// GetByID retrieves a strategy with its actions. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id uint64) (*domain.Strategy, error)

	// Update replaces a stored strategy. Returns ErrNotFound if not exists.
	Update(ctx context.Context, s *domain.Strategy) error

	// List retrieves all strategies, ordered by id ASC.
	List(ctx context.Context) ([]*domain.Strategy, error)

	// ListByCreator retrieves up to limit strategy ids of creator, ordered by id ASC.
	ListByCreator(ctx context.Context, creator common.Address, limit int) ([]uint64, error)

	// CountByCreator returns how many strategies creator owns.
	CountByCreator(ctx context.Context, creator common.Address) (int, error)
}

// ExecutionStore provides access to execution_results storage (append-only).
type ExecutionStore interface {
	// Insert adds a new result. Returns ErrDuplicateKey if id exists.
	Insert(ctx context.Context, r *domain.ExecutionResult) error

	// GetByID retrieves a result by its provenance hash. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.ExecutionResult, error)

	// GetByStrategyID retrieves all results for a strategy, ordered by (timestamp, nonce) ASC.
	GetByStrategyID(ctx context.Context, strategyID uint64) ([]*domain.ExecutionResult, error)

	// GetByExecutor retrieves all results submitted by executor, ordered by (timestamp, nonce) ASC.
	GetByExecutor(ctx context.Context, executor common.Address) ([]*domain.ExecutionResult, error)
}

// ProfitEntry is one realized-profit credit.
type ProfitEntry struct {
	StrategyID uint64
	User       common.Address
	Asset      common.Address
	Amount     *big.Int // raw asset units, positive
}

// ProfitStore provides access to the profit ledger. Totals only grow.
type ProfitStore interface {
	// Add applies all entries atomically.
	Add(ctx context.Context, entries []ProfitEntry) error

	// Total returns cumulative profit of asset across all users.
	Total(ctx context.Context, asset common.Address) (*big.Int, error)

	// User returns cumulative profit of asset credited to user.
	User(ctx context.Context, user, asset common.Address) (*big.Int, error)

	// StrategyUser returns profit of asset credited to user by one strategy.
	StrategyUser(ctx context.Context, strategyID uint64, user, asset common.Address) (*big.Int, error)
}

// StrategyStats is an analytics aggregate over a strategy's execution history.
type StrategyStats struct {
	StrategyID     uint64
	Attempts       uint64
	Successes      uint64
	TotalProfitUSD decimal.Decimal
	TotalGasUsed   uint64
	LastExecution  int64 // unix seconds, 0 when never executed
}

// StrategyStatsStore computes per-strategy aggregates from the analytics store.
type StrategyStatsStore interface {
	// GetStats aggregates the execution history of one strategy.
	GetStats(ctx context.Context, strategyID uint64) (*StrategyStats, error)
}
