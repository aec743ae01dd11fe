package orchestrator

import (
	"math/big"

	"github.com/shopspring/decimal"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/oracle"
)

// ValueUSD converts amount raw units of an asset with the given decimals at
// price (oracle.PriceDecimals fixed point) into USD.
func ValueUSD(amount *big.Int, decimals uint8, price *big.Int) decimal.Decimal {
	if amount == nil || price == nil {
		return decimal.Zero
	}
	units := decimal.NewFromBigInt(amount, -int32(decimals))
	return units.Mul(decimal.NewFromBigInt(price, -oracle.PriceDecimals))
}

// MeetsMinProfit reports whether profit is at least minBps of borrowed.
// A zero threshold always passes.
func MeetsMinProfit(profit, borrowed decimal.Decimal, minBps uint32) bool {
	if minBps == 0 {
		return true
	}
	lhs := profit.Mul(decimal.NewFromInt(domain.MaxBps))
	rhs := borrowed.Mul(decimal.NewFromInt(int64(minBps)))
	return lhs.GreaterThanOrEqual(rhs)
}
