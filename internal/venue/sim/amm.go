// Package sim provides in-process venues that settle through a token.Book.
// They back the simulation environment and deterministic tests.
package sim

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Simulated venue errors.
var (
	ErrPoolNotFound       = errors.New("pool does not exist")
	ErrInsufficientOutput = errors.New("insufficient output amount")
	ErrInsufficientInput  = errors.New("insufficient input amount")
	ErrInvalidPath        = errors.New("invalid path")
	ErrExpired            = errors.New("expired")
	ErrDuplicatePool      = errors.New("pool already exists")
)

const bpsDenominator = 10_000

// GetAmountOut returns the constant-product output for amountIn with a fee
// in basis points, rounding down like the on-chain integer formula.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeBps uint32) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, ErrInsufficientInput
	}
	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return nil, ErrPoolNotFound
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(int64(bpsDenominator-feeBps)))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(bpsDenominator))
	den.Add(den, inWithFee)
	return num.Div(num, den), nil
}

// sortTokens orders a pair so lookups do not depend on direction.
func sortTokens(a, b common.Address) (common.Address, common.Address) {
	if a.Cmp(b) < 0 {
		return a, b
	}
	return b, a
}

// poolAddress derives a deterministic holder address for a pool's reserves.
func poolAddress(router, token0, token1 common.Address, fee uint32) common.Address {
	feeBytes := big.NewInt(int64(fee)).Bytes()
	h := crypto.Keccak256(router.Bytes(), token0.Bytes(), token1.Bytes(), feeBytes)
	return common.BytesToAddress(h[12:])
}
