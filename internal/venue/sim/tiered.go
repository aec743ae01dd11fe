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

type tierKey struct {
	token0 common.Address
	token1 common.Address
	fee    uint32
}

// TieredRouter is a concentrated-liquidity style router. Each (pair, fee)
// pool is modelled as a full-range constant-product pool charging its tier.
type TieredRouter struct {
	address common.Address
	book    *token.Book
	now     func() time.Time

	mu    sync.RWMutex
	pools map[tierKey]common.Address
}

// NewTieredRouter creates a router at address settling through book.
func NewTieredRouter(address common.Address, book *token.Book, now func() time.Time) *TieredRouter {
	if now == nil {
		now = time.Now
	}
	return &TieredRouter{
		address: address,
		book:    book,
		now:     now,
		pools:   make(map[tierKey]common.Address),
	}
}

// Address returns the router address.
func (r *TieredRouter) Address() common.Address {
	return r.address
}

// AddPool creates the pool of one fee tier seeded with reserves.
func (r *TieredRouter) AddPool(tokenA, tokenB common.Address, fee uint32, reserveA, reserveB *big.Int) (common.Address, error) {
	t0, t1 := sortTokens(tokenA, tokenB)
	key := tierKey{t0, t1, fee}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pools[key]; exists {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrDuplicatePool, tokenA.Hex(), tokenB.Hex(), fee)
	}
	pool := poolAddress(r.address, t0, t1, fee)
	if err := r.book.Mint(tokenA, pool, reserveA); err != nil {
		return common.Address{}, fmt.Errorf("seed reserve: %w", err)
	}
	if err := r.book.Mint(tokenB, pool, reserveB); err != nil {
		return common.Address{}, fmt.Errorf("seed reserve: %w", err)
	}
	r.pools[key] = pool
	return pool, nil
}

// QuoteExactInputSingle simulates a swap in one tier's pool.
func (r *TieredRouter) QuoteExactInputSingle(_ context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	pool, err := r.pool(tokenIn, tokenOut, fee)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, r.book.BalanceOf(tokenIn, pool), r.book.BalanceOf(tokenOut, pool), fee/100)
}

// ExactInputSingle swaps AmountIn pulled from sender in one tier's pool.
func (r *TieredRouter) ExactInputSingle(ctx context.Context, sender common.Address, p venue.ExactInputSingleParams) (*big.Int, error) {
	if p.Deadline < r.now().Unix() {
		return nil, ErrExpired
	}
	out, err := r.QuoteExactInputSingle(ctx, p.TokenIn, p.TokenOut, p.Fee, p.AmountIn)
	if err != nil {
		return nil, err
	}
	if p.AmountOutMinimum != nil && out.Cmp(p.AmountOutMinimum) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutput, out, p.AmountOutMinimum)
	}
	if out.Sign() == 0 {
		return nil, ErrInsufficientOutput
	}
	pool, _ := r.pool(p.TokenIn, p.TokenOut, p.Fee)

	snap := r.book.Snapshot()
	if err := r.book.TransferFrom(p.TokenIn, r.address, sender, pool, p.AmountIn); err != nil {
		_ = r.book.RevertToSnapshot(snap)
		return nil, fmt.Errorf("pull input: %w", err)
	}
	if err := r.book.Transfer(p.TokenOut, pool, p.Recipient, out); err != nil {
		_ = r.book.RevertToSnapshot(snap)
		return nil, fmt.Errorf("pay output: %w", err)
	}
	_ = r.book.Commit(snap)
	return out, nil
}

var _ venue.TieredRouter = (*TieredRouter)(nil)

func (r *TieredRouter) pool(a, b common.Address, fee uint32) (common.Address, error) {
	t0, t1 := sortTokens(a, b)

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[tierKey{t0, t1, fee}]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s/%s fee %d", ErrPoolNotFound, a.Hex(), b.Hex(), fee)
	}
	return p, nil
}
