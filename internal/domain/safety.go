package domain

import (
	"fmt"
	"math/big"
)

// SafetyParams are the process-wide guard rails consulted by every execution.
type SafetyParams struct {
	MaxSlippageBps   uint32   // applied when a swap carries no explicit minimum
	DeadlineBuffer   int64    // seconds added to now for swaps without a deadline
	MinProfitBps     uint32   // floor for a strategy's own MinProfitBps
	MaxGasPrice      *big.Int // wei
	MaxExecutionTime int64    // seconds a queued request may wait before it is stale
	EmergencyStop    bool
}

// Default safety parameter values.
const (
	DefaultMaxSlippageBps   = 300 // 3%
	DefaultDeadlineBuffer   = 300 // 5 minutes
	DefaultMinProfitBps     = 10  // 0.1%
	DefaultMaxExecutionTime = 300
)

// DefaultMaxGasPrice is 100 gwei.
var DefaultMaxGasPrice = big.NewInt(100_000_000_000)

// DefaultSafetyParams returns the parameters a fresh governor starts with.
func DefaultSafetyParams() SafetyParams {
	return SafetyParams{
		MaxSlippageBps:   DefaultMaxSlippageBps,
		DeadlineBuffer:   DefaultDeadlineBuffer,
		MinProfitBps:     DefaultMinProfitBps,
		MaxGasPrice:      new(big.Int).Set(DefaultMaxGasPrice),
		MaxExecutionTime: DefaultMaxExecutionTime,
	}
}

// Validate checks parameter ranges.
func (p SafetyParams) Validate() error {
	if p.MaxSlippageBps > MaxBps {
		return fmt.Errorf("max slippage %d bps exceeds %d", p.MaxSlippageBps, MaxBps)
	}
	if p.MinProfitBps > MaxBps {
		return fmt.Errorf("min profit %d bps exceeds %d", p.MinProfitBps, MaxBps)
	}
	if p.MaxGasPrice == nil || p.MaxGasPrice.Sign() <= 0 {
		return fmt.Errorf("max gas price must be positive")
	}
	if p.DeadlineBuffer <= 0 {
		return fmt.Errorf("deadline buffer must be positive")
	}
	if p.MaxExecutionTime <= 0 {
		return fmt.Errorf("max execution time must be positive")
	}
	return nil
}

// Clone returns a copy that shares no pointers with p.
func (p SafetyParams) Clone() SafetyParams {
	c := p
	if p.MaxGasPrice != nil {
		c.MaxGasPrice = new(big.Int).Set(p.MaxGasPrice)
	}
	return c
}
