package sim

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/token"
	"flashloan-executor/internal/venue"
)

var (
	tokA   = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
	tokB   = common.HexToAddress("0x000000000000000000000000000000000000bbbb")
	tokC   = common.HexToAddress("0x000000000000000000000000000000000000cccc")
	trader = common.HexToAddress("0x0000000000000000000000000000000000007777")
	router = common.HexToAddress("0x0000000000000000000000000000000000009999")
)

func fixedNow() time.Time { return time.Unix(1_700_000_000, 0) }

func TestGetAmountOut(t *testing.T) {
	out, err := GetAmountOut(big.NewInt(1000), big.NewInt(10000), big.NewInt(10000), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(906), out.Int64())

	_, err = GetAmountOut(big.NewInt(0), big.NewInt(1), big.NewInt(1), 30)
	assert.ErrorIs(t, err, ErrInsufficientInput)

	_, err = GetAmountOut(big.NewInt(1), big.NewInt(0), big.NewInt(1), 30)
	assert.ErrorIs(t, err, ErrPoolNotFound)
}

func TestConstantProductRouter_MultiHopSwap(t *testing.T) {
	book := token.NewBook()
	r := NewConstantProductRouter(router, book, DefaultConstantProductFeeBps, fixedNow)
	ctx := context.Background()

	_, err := r.AddPair(tokA, tokB, big.NewInt(1_000_000), big.NewInt(2_000_000))
	require.NoError(t, err)
	_, err = r.AddPair(tokB, tokC, big.NewInt(2_000_000), big.NewInt(500_000))
	require.NoError(t, err)

	_, err = r.AddPair(tokB, tokA, big.NewInt(1), big.NewInt(1))
	assert.ErrorIs(t, err, ErrDuplicatePool)

	path := []common.Address{tokA, tokB, tokC}
	quoted, err := r.GetAmountsOut(ctx, big.NewInt(10_000), path)
	require.NoError(t, err)
	require.Len(t, quoted, 3)

	require.NoError(t, book.Mint(tokA, trader, big.NewInt(10_000)))
	require.NoError(t, book.Approve(tokA, trader, router, big.NewInt(10_000)))

	amounts, err := r.SwapExactTokensForTokens(ctx, trader, big.NewInt(10_000), big.NewInt(1), path, trader, fixedNow().Unix())
	require.NoError(t, err)
	assert.Equal(t, quoted[2], amounts[2])
	assert.Equal(t, 0, book.BalanceOf(tokC, trader).Cmp(amounts[2]))
	assert.Equal(t, int64(0), book.BalanceOf(tokA, trader).Int64())

	ra, _, err := r.Reserves(tokA, tokB)
	require.NoError(t, err)
	assert.Equal(t, int64(1_010_000), ra.Int64())
}

func TestConstantProductRouter_MinOutAndDeadline(t *testing.T) {
	book := token.NewBook()
	r := NewConstantProductRouter(router, book, DefaultConstantProductFeeBps, fixedNow)
	ctx := context.Background()
	_, err := r.AddPair(tokA, tokB, big.NewInt(10_000), big.NewInt(10_000))
	require.NoError(t, err)
	require.NoError(t, book.Mint(tokA, trader, big.NewInt(1000)))
	require.NoError(t, book.Approve(tokA, trader, router, big.NewInt(1000)))

	path := []common.Address{tokA, tokB}
	_, err = r.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), big.NewInt(907), path, trader, fixedNow().Unix())
	assert.ErrorIs(t, err, ErrInsufficientOutput)

	_, err = r.SwapExactTokensForTokens(ctx, trader, big.NewInt(1000), big.NewInt(1), path, trader, fixedNow().Unix()-1)
	assert.ErrorIs(t, err, ErrExpired)

	// nothing moved
	assert.Equal(t, int64(1000), book.BalanceOf(tokA, trader).Int64())
}

func TestTieredRouter_QuotePerTier(t *testing.T) {
	book := token.NewBook()
	r := NewTieredRouter(router, book, fixedNow)
	ctx := context.Background()

	_, err := r.AddPool(tokA, tokB, 500, big.NewInt(1_000_000), big.NewInt(1_000_000))
	require.NoError(t, err)
	_, err = r.AddPool(tokA, tokB, 3000, big.NewInt(5_000_000), big.NewInt(5_000_000))
	require.NoError(t, err)

	_, err = r.QuoteExactInputSingle(ctx, tokA, tokB, 10000, big.NewInt(1000))
	assert.ErrorIs(t, err, ErrPoolNotFound)

	fee, out, err := venue.OptimalFeeTier(ctx, r, tokA, tokB, big.NewInt(100_000))
	require.NoError(t, err)
	// deeper 3000 pool beats the cheaper but shallower 500 pool for a large trade
	assert.Equal(t, uint32(3000), fee)

	require.NoError(t, book.Mint(tokA, trader, big.NewInt(100_000)))
	require.NoError(t, book.Approve(tokA, trader, router, big.NewInt(100_000)))
	got, err := r.ExactInputSingle(ctx, trader, venue.ExactInputSingleParams{
		TokenIn: tokA, TokenOut: tokB, Fee: fee, Recipient: trader,
		Deadline: fixedNow().Unix(), AmountIn: big.NewInt(100_000), AmountOutMinimum: out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, got.Cmp(out))
	assert.Equal(t, 0, book.BalanceOf(tokB, trader).Cmp(out))
}

func TestFixedRateRouter(t *testing.T) {
	book := token.NewBook()
	r := NewFixedRateRouter(router, book, fixedNow)
	ctx := context.Background()

	require.NoError(t, r.SetRate(tokA, tokB, big.NewInt(2), big.NewInt(1)))
	require.NoError(t, r.Fund(tokB, big.NewInt(100)))
	require.NoError(t, book.Mint(tokA, trader, big.NewInt(10)))
	require.NoError(t, book.Approve(tokA, trader, router, big.NewInt(10)))

	amounts, err := r.SwapExactTokensForTokens(ctx, trader, big.NewInt(10), big.NewInt(20), []common.Address{tokA, tokB}, trader, fixedNow().Unix())
	require.NoError(t, err)
	assert.Equal(t, int64(20), amounts[1].Int64())
	assert.Equal(t, int64(20), book.BalanceOf(tokB, trader).Int64())
	assert.Equal(t, int64(10), book.BalanceOf(tokA, router).Int64())

	_, err = r.GetAmountsOut(ctx, big.NewInt(1), []common.Address{tokB, tokA})
	assert.ErrorIs(t, err, ErrPoolNotFound)
}
