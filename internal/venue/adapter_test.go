package venue

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/token"
)

var (
	tokenA   = common.HexToAddress("0x000000000000000000000000000000000000a000")
	tokenB   = common.HexToAddress("0x000000000000000000000000000000000000b000")
	executor = common.HexToAddress("0x000000000000000000000000000000000000e000")
	stubAddr = common.HexToAddress("0x0000000000000000000000000000000000005000")
)

func now() time.Time { return time.Unix(1_700_000_000, 0) }

type staticParams struct{ p domain.SafetyParams }

func (s staticParams) Params() domain.SafetyParams { return s.p }

// stubTiered quotes fixed outputs per tier and pays them from its own inventory.
type stubTiered struct {
	book     *token.Book
	quotes   map[uint32]*big.Int
	failing  map[uint32]bool
	executed []uint32
	shortBy  int64 // pay this much less than quoted
}

func (s *stubTiered) Address() common.Address { return stubAddr }

func (s *stubTiered) QuoteExactInputSingle(_ context.Context, _, _ common.Address, fee uint32, _ *big.Int) (*big.Int, error) {
	if s.failing[fee] {
		return nil, errors.New("pool does not exist")
	}
	q, ok := s.quotes[fee]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(q), nil
}

func (s *stubTiered) ExactInputSingle(_ context.Context, sender common.Address, p ExactInputSingleParams) (*big.Int, error) {
	s.executed = append(s.executed, p.Fee)
	if err := s.book.TransferFrom(p.TokenIn, stubAddr, sender, stubAddr, p.AmountIn); err != nil {
		return nil, err
	}
	out := new(big.Int).Sub(s.quotes[p.Fee], big.NewInt(s.shortBy))
	if err := s.book.Transfer(p.TokenOut, stubAddr, p.Recipient, out); err != nil {
		return nil, err
	}
	return out, nil
}

// stubCP pays a fixed output for any input.
type stubCP struct {
	book *token.Book
	out  *big.Int
}

func (s *stubCP) Address() common.Address { return stubAddr }

func (s *stubCP) GetAmountsOut(_ context.Context, amountIn *big.Int, path []common.Address) ([]*big.Int, error) {
	amounts := make([]*big.Int, len(path))
	amounts[0] = amountIn
	for i := 1; i < len(path); i++ {
		amounts[i] = new(big.Int).Set(s.out)
	}
	return amounts, nil
}

func (s *stubCP) SwapExactTokensForTokens(ctx context.Context, sender common.Address, amountIn, _ *big.Int, path []common.Address, to common.Address, _ int64) ([]*big.Int, error) {
	if err := s.book.TransferFrom(path[0], stubAddr, sender, stubAddr, amountIn); err != nil {
		return nil, err
	}
	if err := s.book.Transfer(path[len(path)-1], stubAddr, to, s.out); err != nil {
		return nil, err
	}
	return s.GetAmountsOut(ctx, amountIn, path)
}

func setup(t *testing.T, name string, r Router) (*Adapter, *token.Book) {
	t.Helper()
	book := token.NewBook()
	reg := NewRegistry()
	require.NoError(t, reg.Register(name, r))

	switch v := r.(type) {
	case *stubTiered:
		v.book = book
	case *stubCP:
		v.book = book
	}
	require.NoError(t, book.Mint(tokenA, executor, big.NewInt(1000)))
	require.NoError(t, book.Mint(tokenB, stubAddr, big.NewInt(1_000_000)))

	return NewAdapter(Options{
		Registry: reg,
		Book:     book,
		Params:   staticParams{domain.DefaultSafetyParams()},
		Now:      now,
	}), book
}

func TestAdapter_OptimalFeeTierSelectsMid(t *testing.T) {
	r := &stubTiered{quotes: map[uint32]*big.Int{
		domain.FeeTierLow:    big.NewInt(100),
		domain.FeeTierMedium: big.NewInt(150),
		domain.FeeTierHigh:   big.NewInt(90),
	}}
	a, book := setup(t, "v3", r)

	out, err := a.Swap(context.Background(), executor, domain.SwapParams{
		Venue: "v3", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), out.Int64())
	assert.Equal(t, []uint32{domain.FeeTierMedium}, r.executed)
	assert.Equal(t, int64(150), book.BalanceOf(tokenB, executor).Int64())
}

func TestOptimalFeeTier_TieBreaking(t *testing.T) {
	ctx := context.Background()

	// tie including the default tier -> default tier
	r := &stubTiered{quotes: map[uint32]*big.Int{
		domain.FeeTierLow:    big.NewInt(150),
		domain.FeeTierMedium: big.NewInt(150),
	}}
	fee, _, err := OptimalFeeTier(ctx, r, tokenA, tokenB, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.FeeTierMedium, fee)

	// tie without the default tier -> lowest fee
	r = &stubTiered{quotes: map[uint32]*big.Int{
		domain.FeeTierLow:  big.NewInt(200),
		domain.FeeTierHigh: big.NewInt(200),
	}}
	fee, _, err = OptimalFeeTier(ctx, r, tokenA, tokenB, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.FeeTierLow, fee)
}

func TestOptimalFeeTier_ProbeErrorIsZeroQuote(t *testing.T) {
	r := &stubTiered{
		quotes:  map[uint32]*big.Int{domain.FeeTierHigh: big.NewInt(5)},
		failing: map[uint32]bool{domain.FeeTierLowest: true, domain.FeeTierMedium: true},
	}
	fee, out, err := OptimalFeeTier(context.Background(), r, tokenA, tokenB, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, domain.FeeTierHigh, fee)
	assert.Equal(t, int64(5), out.Int64())

	r = &stubTiered{failing: map[uint32]bool{100: true, 500: true, 3000: true, 10000: true}}
	_, _, err = OptimalFeeTier(context.Background(), r, tokenA, tokenB, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoLiquidity)
}

func TestAdapter_ExactAllowanceClearedAfterSwap(t *testing.T) {
	r := &stubCP{out: big.NewInt(20)}
	a, book := setup(t, "v2", r)

	_, err := a.Swap(context.Background(), executor, domain.SwapParams{
		Venue: "v2", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(10), MinAmountOut: big.NewInt(20),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), book.Allowance(tokenA, executor, stubAddr).Int64())
	assert.Equal(t, int64(990), book.BalanceOf(tokenA, executor).Int64())
}

func TestAdapter_InsufficientOutput(t *testing.T) {
	r := &stubTiered{quotes: map[uint32]*big.Int{domain.FeeTierMedium: big.NewInt(100)}, shortBy: 5}
	a, _ := setup(t, "v3", r)

	_, err := a.Swap(context.Background(), executor, domain.SwapParams{
		Venue: "v3", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(10),
		Fee: domain.FeeTierMedium, MinAmountOut: big.NewInt(100),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientOutput)
	assert.Equal(t, domain.KindVenue, domain.KindOf(err))
}

func TestAdapter_DerivesMinOutFromSlippage(t *testing.T) {
	// 3% default slippage: quote 100 -> min 97, venue pays 98
	r := &stubTiered{quotes: map[uint32]*big.Int{domain.FeeTierMedium: big.NewInt(100)}, shortBy: 2}
	a, _ := setup(t, "v3", r)

	out, err := a.Swap(context.Background(), executor, domain.SwapParams{
		Venue: "v3", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(10),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(98), out.Int64())

	r.shortBy = 4 // pays 96 < 97
	_, err = a.Swap(context.Background(), executor, domain.SwapParams{
		Venue: "v3", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(10),
	})
	assert.ErrorIs(t, err, ErrInsufficientOutput)
}

func TestAdapter_Validation(t *testing.T) {
	a, _ := setup(t, "v2", &stubCP{out: big.NewInt(1)})
	ctx := context.Background()

	cases := []struct {
		name string
		p    domain.SwapParams
		want error
	}{
		{"zero amount", domain.SwapParams{Venue: "v2", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(0)}, ErrInvalidSwap},
		{"same token", domain.SwapParams{Venue: "v2", TokenIn: tokenA, TokenOut: tokenA, AmountIn: big.NewInt(1)}, ErrInvalidSwap},
		{"expired", domain.SwapParams{Venue: "v2", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1), Deadline: now().Unix() - 1}, ErrExpired},
		{"unknown venue", domain.SwapParams{Venue: "nope", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1)}, ErrUnknownVenue},
		{"bad path", domain.SwapParams{Venue: "v2", TokenIn: tokenA, TokenOut: tokenB, AmountIn: big.NewInt(1), Path: []common.Address{tokenB, tokenA}}, ErrInvalidSwap},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := a.Swap(ctx, executor, tc.p)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, domain.KindVenue, domain.KindOf(err))
		})
	}
}

func TestRegistry_RegisterAndResolve(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("v2", &stubCP{}))
	require.NoError(t, reg.Register("v3", &stubTiered{}))

	assert.ErrorIs(t, reg.Register("v2", &stubCP{}), ErrDuplicateVenue)

	h, err := reg.Resolve("v3")
	require.NoError(t, err)
	assert.Equal(t, domain.VenueTiered, h.Kind)
	_, ok := h.Tiered()
	assert.True(t, ok)
	_, ok = h.ConstantProduct()
	assert.False(t, ok)

	_, err = reg.Resolve("v4")
	assert.ErrorIs(t, err, ErrUnknownVenue)
	assert.Len(t, reg.List(), 2)
}
