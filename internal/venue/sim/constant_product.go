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

// DefaultConstantProductFeeBps is the 0.3% swap fee of v2-style pools.
const DefaultConstantProductFeeBps = 30

// ConstantProductRouter is a v2-style router over x*y=k pairs.
type ConstantProductRouter struct {
	address common.Address
	book    *token.Book
	feeBps  uint32
	now     func() time.Time

	mu    sync.RWMutex
	pairs map[[2]common.Address]common.Address // sorted pair -> reserve holder
}

// NewConstantProductRouter creates a router at address settling through book.
func NewConstantProductRouter(address common.Address, book *token.Book, feeBps uint32, now func() time.Time) *ConstantProductRouter {
	if now == nil {
		now = time.Now
	}
	return &ConstantProductRouter{
		address: address,
		book:    book,
		feeBps:  feeBps,
		now:     now,
		pairs:   make(map[[2]common.Address]common.Address),
	}
}

// Address returns the router address.
func (r *ConstantProductRouter) Address() common.Address {
	return r.address
}

// AddPair creates a pair seeded with the given reserves and returns its address.
func (r *ConstantProductRouter) AddPair(tokenA, tokenB common.Address, reserveA, reserveB *big.Int) (common.Address, error) {
	t0, t1 := sortTokens(tokenA, tokenB)
	key := [2]common.Address{t0, t1}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pairs[key]; exists {
		return common.Address{}, fmt.Errorf("%w: %s/%s", ErrDuplicatePool, tokenA.Hex(), tokenB.Hex())
	}
	pair := poolAddress(r.address, t0, t1, r.feeBps)
	if err := r.book.Mint(tokenA, pair, reserveA); err != nil {
		return common.Address{}, fmt.Errorf("seed reserve: %w", err)
	}
	if err := r.book.Mint(tokenB, pair, reserveB); err != nil {
		return common.Address{}, fmt.Errorf("seed reserve: %w", err)
	}
	r.pairs[key] = pair
	return pair, nil
}

// Reserves returns the pair reserves ordered as (tokenA, tokenB).
func (r *ConstantProductRouter) Reserves(tokenA, tokenB common.Address) (*big.Int, *big.Int, error) {
	pair, err := r.pair(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	return r.book.BalanceOf(tokenA, pair), r.book.BalanceOf(tokenB, pair), nil
}

// GetAmountsOut simulates a swap along path.
func (r *ConstantProductRouter) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, ErrInvalidPath
	}

	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := r.Reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		out, err := GetAmountOut(amounts[i], reserveIn, reserveOut, r.feeBps)
		if err != nil {
			return nil, err
		}
		amounts[i+1] = out
	}
	return amounts, nil
}

// SwapExactTokensForTokens pulls amountIn from sender and routes it along path.
func (r *ConstantProductRouter) SwapExactTokensForTokens(
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
	if amounts[len(amounts)-1].Cmp(amountOutMin) < 0 {
		return nil, fmt.Errorf("%w: %s < %s", ErrInsufficientOutput, amounts[len(amounts)-1], amountOutMin)
	}

	snap := r.book.Snapshot()
	if err := r.settle(sender, amounts, path, recipient); err != nil {
		_ = r.book.RevertToSnapshot(snap)
		return nil, err
	}
	_ = r.book.Commit(snap)
	return amounts, nil
}

var _ venue.ConstantProductRouter = (*ConstantProductRouter)(nil)

func (r *ConstantProductRouter) settle(sender common.Address, amounts []*big.Int, path []common.Address, recipient common.Address) error {
	first, err := r.pair(path[0], path[1])
	if err != nil {
		return err
	}
	if err := r.book.TransferFrom(path[0], r.address, sender, first, amounts[0]); err != nil {
		return fmt.Errorf("pull input: %w", err)
	}

	for i := 0; i < len(path)-1; i++ {
		from, err := r.pair(path[i], path[i+1])
		if err != nil {
			return err
		}
		to := recipient
		if i < len(path)-2 {
			if to, err = r.pair(path[i+1], path[i+2]); err != nil {
				return err
			}
		}
		if amounts[i+1].Sign() == 0 {
			return ErrInsufficientOutput
		}
		if err := r.book.Transfer(path[i+1], from, to, amounts[i+1]); err != nil {
			return fmt.Errorf("hop %d: %w", i, err)
		}
	}
	return nil
}

func (r *ConstantProductRouter) pair(a, b common.Address) (common.Address, error) {
	t0, t1 := sortTokens(a, b)

	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pairs[[2]common.Address{t0, t1}]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, a.Hex(), b.Hex())
	}
	return p, nil
}
