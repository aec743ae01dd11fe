// Package ledger tracks realized profit per asset and per user.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"flashloan-executor/internal/storage"
)

// ErrNegativeCredit is returned for credits below zero. The ledger never decreases.
var ErrNegativeCredit = errors.New("negative credit")

// Credit is one pending profit credit.
type Credit struct {
	StrategyID uint64
	User       common.Address
	Asset      common.Address
	Amount     *big.Int
}

// Ledger is the profit ledger. The orchestrator is its only writer and
// credits it only after an execution was validated and the loan repaid.
type Ledger struct {
	store  storage.ProfitStore
	logger *zap.Logger
}

// New creates a ledger backed by store.
func New(store storage.ProfitStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, logger: logger}
}

// Credit increases user's and the global total for asset by amount.
// Zero credits are no-ops.
func (l *Ledger) Credit(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return l.CreditAll(ctx, []Credit{{User: user, Asset: asset, Amount: amount}})
}

// CreditAll applies credits atomically. Zero amounts are skipped.
func (l *Ledger) CreditAll(ctx context.Context, credits []Credit) error {
	entries := make([]storage.ProfitEntry, 0, len(credits))
	for _, c := range credits {
		if c.Amount == nil || c.Amount.Sign() < 0 {
			return fmt.Errorf("%w: %v for %s", ErrNegativeCredit, c.Amount, c.Asset.Hex())
		}
		if c.Amount.Sign() == 0 {
			continue
		}
		entries = append(entries, storage.ProfitEntry{
			StrategyID: c.StrategyID,
			User:       c.User,
			Asset:      c.Asset,
			Amount:     new(big.Int).Set(c.Amount),
		})
	}
	if len(entries) == 0 {
		return nil
	}

	if err := l.store.Add(ctx, entries); err != nil {
		return fmt.Errorf("credit profit: %w", err)
	}
	for _, e := range entries {
		l.logger.Debug("profit credited",
			zap.Uint64("strategy_id", e.StrategyID),
			zap.String("user", e.User.Hex()),
			zap.String("asset", e.Asset.Hex()),
			zap.String("amount", e.Amount.String()),
		)
	}
	return nil
}

// TotalProfit returns cumulative realized profit of asset.
func (l *Ledger) TotalProfit(ctx context.Context, asset common.Address) (*big.Int, error) {
	return l.store.Total(ctx, asset)
}

// UserProfit returns cumulative realized profit of asset credited to user.
func (l *Ledger) UserProfit(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	return l.store.User(ctx, user, asset)
}

// StrategyUserProfit returns profit of asset credited to user by one strategy.
func (l *Ledger) StrategyUserProfit(ctx context.Context, strategyID uint64, user, asset common.Address) (*big.Int, error) {
	return l.store.StrategyUser(ctx, strategyID, user, asset)
}
