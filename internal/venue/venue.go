// Package venue gives strategies one swap interface over heterogeneous
// liquidity venues: constant-product routers and fee-tiered routers.
package venue

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Venue errors.
var (
	ErrUnknownVenue       = errors.New("unknown venue")
	ErrDuplicateVenue     = errors.New("venue already registered")
	ErrUnsupportedRouter  = errors.New("unsupported router type")
	ErrInvalidSwap        = errors.New("invalid swap params")
	ErrExpired            = errors.New("swap deadline passed")
	ErrNoLiquidity        = errors.New("no liquidity for pair")
	ErrInsufficientOutput = errors.New("insufficient output amount")
)

// Router is the common surface of every venue: the address that pulls
// input tokens and therefore receives the allowance.
type Router interface {
	Address() common.Address
}

// ConstantProductRouter is a Uniswap-v2 style router.
type ConstantProductRouter interface {
	Router

	// GetAmountsOut simulates a swap along path and returns the amount after each hop.
	GetAmountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error)

	// SwapExactTokensForTokens pulls amountIn of path[0] from sender and sends
	// the final output to recipient. Fails if output < amountOutMin.
	SwapExactTokensForTokens(
		ctx context.Context,
		sender common.Address,
		amountIn, amountOutMin *big.Int,
		path []common.Address,
		recipient common.Address,
		deadline int64,
	) ([]*big.Int, error)
}

// ExactInputSingleParams mirrors the tiered router's single-pool swap input.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               uint32
	Recipient         common.Address
	Deadline          int64
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// TieredRouter is a concentrated-liquidity router with one pool per fee tier.
type TieredRouter interface {
	Router

	// QuoteExactInputSingle simulates a swap in the pool of the given fee tier.
	// Read-only; may be called once per tier.
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error)

	// ExactInputSingle executes a swap pulling AmountIn from sender.
	ExactInputSingle(ctx context.Context, sender common.Address, params ExactInputSingleParams) (*big.Int, error)
}
