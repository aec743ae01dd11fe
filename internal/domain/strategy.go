package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StrategyType classifies what a strategy is meant to do.
type StrategyType string

// Strategy type constants
const (
	StrategyTypeArbitrage      StrategyType = "ARBITRAGE"
	StrategyTypeLiquidation    StrategyType = "LIQUIDATION"
	StrategyTypeRefinance      StrategyType = "REFINANCE"
	StrategyTypeYieldFarming   StrategyType = "YIELD_FARMING"
	StrategyTypeCollateralSwap StrategyType = "COLLATERAL_SWAP"
	StrategyTypeCustom         StrategyType = "CUSTOM"
)

// String returns the string representation of StrategyType.
func (t StrategyType) String() string {
	return string(t)
}

// IsValid checks if the strategy type is a known value.
func (t StrategyType) IsValid() bool {
	switch t {
	case StrategyTypeArbitrage, StrategyTypeLiquidation, StrategyTypeRefinance,
		StrategyTypeYieldFarming, StrategyTypeCollateralSwap, StrategyTypeCustom:
		return true
	}
	return false
}

// MaxBps is 100% expressed in basis points.
const MaxBps = 10_000

// Strategy is a named, ordered list of actions executed under a flash loan.
type Strategy struct {
	ID          uint64         // monotonic, starts at 1, never reused
	Creator     common.Address // owner of the strategy
	Name        string
	Description string
	Type        StrategyType
	Active      bool

	MinProfitBps uint32   // 0..10000, profit / borrowed value
	MaxGasPrice  *big.Int // per-strategy ceiling (wei), nil = governor limit only
	Deadline     int64    // unix seconds, executions rejected after it

	Actions []Action

	// Execution bookkeeping, written only by the orchestrator
	ExecutionCount uint64
	TotalProfitUSD decimal.Decimal

	CreatedAt int64 // unix seconds
	UpdatedAt int64 // unix seconds
}

// IsLive reports whether the strategy can be executed at the given time.
func (s *Strategy) IsLive(now int64) bool {
	return s.Active && now <= s.Deadline
}

// Clone returns a deep copy of the strategy.
func (s *Strategy) Clone() *Strategy {
	if s == nil {
		return nil
	}
	c := *s
	if s.MaxGasPrice != nil {
		c.MaxGasPrice = new(big.Int).Set(s.MaxGasPrice)
	}
	c.Actions = make([]Action, len(s.Actions))
	for i, a := range s.Actions {
		c.Actions[i] = a.Clone()
	}
	return &c
}
