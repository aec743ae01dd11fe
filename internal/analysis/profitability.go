// Package analysis answers pre-trade questions without moving funds.
package analysis

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
)

// Defaults used when a profitability request leaves a field unset.
const (
	DefaultGasEstimate  uint64 = 500_000
	DefaultMinProfitBps uint32 = 100
)

// DefaultGasPrice is 20 gwei.
var DefaultGasPrice = big.NewInt(20_000_000_000)

var ErrInvalidProfitability = errors.New("invalid profitability request")

// ProfitabilityRequest describes an opportunity. Profit, gas cost and
// principal are all denominated in the native asset's raw units.
type ProfitabilityRequest struct {
	ExpectedProfit *big.Int
	Principal      *big.Int
	GasEstimate    uint64   // zero = DefaultGasEstimate
	GasPrice       *big.Int // nil = DefaultGasPrice
	MinProfitBps   *uint32  // nil = DefaultMinProfitBps
}

// Profitability is the verdict on a ProfitabilityRequest.
type Profitability struct {
	GasCost       *big.Int
	NetProfit     *big.Int
	ProfitPercent decimal.Decimal // net / principal * 100, zero for a zero principal
	MinProfitBps  uint32
	Profitable    bool
}

// CheckProfitability subtracts the gas cost from the expected profit and
// compares the remainder against the minimum return on principal. A request
// is profitable when net profit is positive and
// net * 10000 >= minProfitBps * principal.
func CheckProfitability(req ProfitabilityRequest) (Profitability, error) {
	if req.ExpectedProfit == nil || req.Principal == nil || req.Principal.Sign() < 0 {
		return Profitability{}, domain.Precondition("check profitability", ErrInvalidProfitability)
	}
	gasEstimate := req.GasEstimate
	if gasEstimate == 0 {
		gasEstimate = DefaultGasEstimate
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		gasPrice = DefaultGasPrice
	}
	if gasPrice.Sign() < 0 {
		return Profitability{}, domain.Precondition("check profitability", ErrInvalidProfitability)
	}
	minBps := DefaultMinProfitBps
	if req.MinProfitBps != nil {
		minBps = *req.MinProfitBps
	}
	if minBps > domain.MaxBps {
		return Profitability{}, domain.Precondition("check profitability", ErrInvalidProfitability)
	}

	gasCost := new(big.Int).Mul(new(big.Int).SetUint64(gasEstimate), gasPrice)
	net := new(big.Int).Sub(req.ExpectedProfit, gasCost)

	out := Profitability{
		GasCost:       gasCost,
		NetProfit:     net,
		ProfitPercent: decimal.Zero,
		MinProfitBps:  minBps,
	}
	if req.Principal.Sign() > 0 {
		out.ProfitPercent = decimal.NewFromBigInt(net, 0).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromBigInt(req.Principal, 0))
	}

	lhs := new(big.Int).Mul(net, big.NewInt(int64(domain.MaxBps)))
	rhs := new(big.Int).Mul(new(big.Int).SetUint64(uint64(minBps)), req.Principal)
	out.Profitable = net.Sign() > 0 && lhs.Cmp(rhs) >= 0
	return out, nil
}
