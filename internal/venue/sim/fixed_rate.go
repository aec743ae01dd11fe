package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
)

type rate struct {
	num *big.Int
	den *big.Int
}

// FixedRateRouter swaps at fixed per-direction rates out of its own
// inventory. It has no price impact, which makes scenario outputs exact.
type FixedRateRouter struct {
	address common.Address
	book    *token.Book
	now     func() time.Time

	mu    sync.RWMutex
	rates map[[2]common.Address]rate // directed (in, out)
}

// NewFixedRateRouter creates a router at address settling through book.
func NewFixedRateRouter(address common.Address, book *token.Book, now func() time.Time) *FixedRateRouter {
	if now == nil {
		now = time.Now
	}
	return &FixedRateRouter{
		address: address,
		book:    book,
		now:     now,
		rates:   make(map[[2]common.Address]rate),
	}
}

// Address returns the router address.
func (r *FixedRateRouter) Address() common.Address {
	return r.address
}

// SetRate makes one unit of tokenIn buy num/den units of tokenOut.
func (r *FixedRateRouter) SetRate(tokenIn, tokenOut common.Address, num, den *big.Int) error {
	if num == nil || den == nil || num.Sign() < 0 || den.Sign() <= 0 {
		return fmt.Errorf("invalid rate %v/%v", num, den)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[[2]common.Address{tokenIn, tokenOut}] = rate{new(big.Int).Set(num), new(big.Int).Set(den)}
	return nil
}

// Fund mints inventory the router pays outputs from.
func (r *FixedRateRouter) Fund(asset common.Address, amount *big.Int) error {
	return r.book.Mint(asset, r.address, amount)
}

// GetAmountsOut applies each hop's rate.
func (r *FixedRateRouter) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		rt, ok := r.rates[[2]common.Address{path[i], path[i+1]}]
		if !ok {
			return nil, fmt.Errorf("%w: %s->%s", ErrPoolNotFound, path[i].Hex(), path[i+1].Hex())
		}
		out := new(big.Int).Mul(amounts[i], rt.num)
		amounts[i+1] = out.Div(out, rt.den)
	}
	return amounts, nil
}

// SwapExactTokensForTokens pulls amountIn from sender and pays the final
// amount to recipient from inventory.
func (r *FixedRateRouter) SwapExactTokensForTokens(
	ctx context.Context,
	sender common.Address,
	amountIn, amountOutMin *big.Int,
	path []common.Address,
	recipient common.Address,
	deadline int64,
) ([]*big.Int, error) {
	if deadline < r.now().Unix() {
		return nil, ErrExpired
	}
	amounts, err := r.GetAmountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	out := amounts[len(amounts)-1]
	if out.Cmp(amountOutMin) < 0 || out.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutput, out, amountOutMin)
	}

	snap := r.book.Snapshot()
	if err := r.book.TransferFrom(path[0], r.address, sender, r.address, amountIn); err != nil {
		_ = r.book.RevertToSnapshot(snap)
		return nil, fmt.Errorf("pull input: %w", err)
	}
	if err := r.book.Transfer(path[len(path)-1], r.address, recipient, out); err != nil {
		_ = r.book.RevertToSnapshot(snap)
		return nil, fmt.Errorf("pay output: %w", err)
	}
	_ = r.book.Commit(snap)
	return amounts, nil
}

var _ venue.ConstantProductRouter = (*FixedRateRouter)(nil)
