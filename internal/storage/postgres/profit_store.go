package postgres

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"

	"flashloan-executor/internal/storage"
)

// ProfitStore implements storage.ProfitStore using PostgreSQL. One row per
// (strategy, user, asset); user and global totals are sums over it.
type ProfitStore struct {
	pool *Pool
}

// NewProfitStore creates a new ProfitStore.
func NewProfitStore(pool *Pool) *ProfitStore {
	return &ProfitStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProfitStore = (*ProfitStore)(nil)

// Add applies all entries atomically. Fails the whole batch on any invalid entry.
func (s *ProfitStore) Add(ctx context.Context, entries []storage.ProfitEntry) (err error) {
	for _, e := range entries {
		if e.Amount == nil || e.Amount.Sign() <= 0 {
			return storage.ErrInvalidInput
		}
	}
	if len(entries) == 0 {
		return nil
	}
	start := time.Now()
	defer func() { observe("profit_add", start, err) }()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO profits (strategy_id, user_addr, asset, amount)
			VALUES ($1, $2, $3, $4::numeric)
			ON CONFLICT (strategy_id, user_addr, asset)
			DO UPDATE SET amount = profits.amount + EXCLUDED.amount
		`, int64(e.StrategyID), e.User.Hex(), e.Asset.Hex(), e.Amount.String())
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("add profits: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Total returns cumulative profit of asset across all users.
func (s *ProfitStore) Total(ctx context.Context, asset common.Address) (*big.Int, error) {
	return s.sum(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM profits WHERE asset = $1`, asset.Hex())
}

// User returns cumulative profit of asset credited to user.
func (s *ProfitStore) User(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	return s.sum(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM profits WHERE user_addr = $1 AND asset = $2`,
		user.Hex(), asset.Hex())
}

// StrategyUser returns profit of asset credited to user by one strategy.
func (s *ProfitStore) StrategyUser(ctx context.Context, strategyID uint64, user, asset common.Address) (*big.Int, error) {
	return s.sum(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM profits
		WHERE strategy_id = $1 AND user_addr = $2 AND asset = $3
	`, int64(strategyID), user.Hex(), asset.Hex())
}

func (s *ProfitStore) sum(ctx context.Context, query string, args ...any) (*big.Int, error) {
	var raw string
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&raw); err != nil {
		return nil, fmt.Errorf("sum profits: %w", err)
	}
	v, err := parseNumeric(&raw)
	if err != nil {
		return nil, err
	}
	return v, nil
}
