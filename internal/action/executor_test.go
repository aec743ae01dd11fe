package action

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
	"flashloan-executor/internal/venue"
	"flashloan-executor/internal/venue/sim"
)

var (
	usdc   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	self   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	router = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	custom = common.HexToAddress("0x00000000000000000000000000000000000000c1")
)

func fixedNow() time.Time { return time.Unix(1_700_000_000, 0) }

type staticParams struct{}

func (staticParams) Params() domain.SafetyParams { return domain.DefaultSafetyParams() }

func newTestExecutor(t *testing.T) (*Executor, *token.Book, *Targets) {
	t.Helper()
	book := token.NewBook()

	fr := sim.NewFixedRateRouter(router, book, fixedNow)
	require.NoError(t, fr.SetRate(usdc, weth, big.NewInt(1), big.NewInt(2)))
	require.NoError(t, fr.Fund(weth, big.NewInt(1_000)))

	reg := venue.NewRegistry()
	require.NoError(t, reg.Register("fixed", fr))

	targets := NewTargets()
	exec := NewExecutor(Options{
		Swapper: venue.NewAdapter(venue.Options{Registry: reg, Book: book, Params: staticParams{}, Now: fixedNow}),
		Venues:  reg,
		Targets: targets,
		Book:    book,
	})
	require.NoError(t, book.Mint(usdc, self, big.NewInt(100)))
	return exec, book, targets
}

func TestSwapPayload_RoundTrip(t *testing.T) {
	in := domain.SwapParams{
		Venue:        "fixed",
		TokenIn:      usdc,
		TokenOut:     weth,
		AmountIn:     big.NewInt(42),
		MinAmountOut: big.NewInt(7),
		Path:         []common.Address{usdc, weth},
		Fee:          domain.FeeTierLow,
		Recipient:    self,
		Deadline:     1_700_000_100,
		Extra:        []byte{0x01},
	}
	data, err := EncodeSwapPayload(in)
	require.NoError(t, err)

	out, err := DecodeSwapPayload(data)
	require.NoError(t, err)
	assert.Equal(t, in.Venue, out.Venue)
	assert.Equal(t, in.Path, out.Path)
	assert.Equal(t, in.Fee, out.Fee)
	assert.Equal(t, in.Deadline, out.Deadline)
	assert.Equal(t, 0, in.AmountIn.Cmp(out.AmountIn))
	assert.Equal(t, in.Extra, out.Extra)

	_, err = DecodeSwapPayload([]byte{0xde, 0xad})
	assert.ErrorIs(t, err, ErrDecodePayload)
}

func TestExecutor_Swap(t *testing.T) {
	exec, book, _ := newTestExecutor(t)

	payload, err := EncodeSwapPayload(domain.SwapParams{TokenIn: usdc, TokenOut: weth, AmountIn: big.NewInt(40)})
	require.NoError(t, err)

	// no venue name: resolved from the target address
	res := exec.Execute(context.Background(), 0, domain.Action{Kind: domain.ActionSwap, Target: router, Payload: payload}, LoanContext{Self: self})
	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, int64(20), res.AmountOut.Int64())
	assert.Equal(t, int64(60), book.BalanceOf(usdc, self).Int64())
	assert.Equal(t, int64(20), book.BalanceOf(weth, self).Int64())
	assert.Equal(t, uint64(150_000), res.GasUsed)
}

func TestExecutor_SwapZeroAmountUsesFullBalance(t *testing.T) {
	exec, book, _ := newTestExecutor(t)

	payload, err := EncodeSwapPayload(domain.SwapParams{Venue: "fixed", TokenIn: usdc, TokenOut: weth})
	require.NoError(t, err)

	res := exec.Execute(context.Background(), 0, domain.Action{Kind: domain.ActionSwap, Target: router, Payload: payload}, LoanContext{Self: self})
	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, int64(0), book.BalanceOf(usdc, self).Int64())
	assert.Equal(t, int64(50), book.BalanceOf(weth, self).Int64())
}

func TestExecutor_FailureRevertsPartialEffects(t *testing.T) {
	exec, book, targets := newTestExecutor(t)

	// moves funds, then reverts
	require.NoError(t, targets.Register(custom, TargetFunc(func(_ context.Context, c Call) ([]byte, error) {
		if err := book.Transfer(usdc, c.Caller, custom, big.NewInt(30)); err != nil {
			return nil, err
		}
		return nil, errors.New("execution reverted")
	})))

	res := exec.Execute(context.Background(), 3, domain.Action{Kind: domain.ActionCustom, Target: custom}, LoanContext{Self: self})
	assert.False(t, res.Success)
	assert.Equal(t, 3, res.Index)
	assert.Equal(t, domain.KindActionFailure, domain.KindOf(res.Err))
	assert.Equal(t, int64(100), book.BalanceOf(usdc, self).Int64())
	assert.Equal(t, int64(0), book.BalanceOf(usdc, custom).Int64())
}

func TestExecutor_RecoversPanics(t *testing.T) {
	exec, book, targets := newTestExecutor(t)
	require.NoError(t, targets.Register(custom, TargetFunc(func(_ context.Context, c Call) ([]byte, error) {
		_ = book.Transfer(usdc, c.Caller, custom, big.NewInt(1))
		panic("boom")
	})))

	res := exec.Execute(context.Background(), 0, domain.Action{Kind: domain.ActionCustom, Target: custom}, LoanContext{Self: self})
	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Error(), "boom")
	assert.Equal(t, int64(100), book.BalanceOf(usdc, self).Int64())
}

func TestExecutor_SendsValue(t *testing.T) {
	exec, book, targets := newTestExecutor(t)
	require.NoError(t, book.Mint(domain.NativeAsset, self, big.NewInt(5)))

	var got *big.Int
	require.NoError(t, targets.Register(custom, TargetFunc(func(_ context.Context, c Call) ([]byte, error) {
		got = c.Value
		return []byte{0x01}, nil
	})))

	res := exec.Execute(context.Background(), 0, domain.Action{Kind: domain.ActionWrap, Target: custom, Value: big.NewInt(5)}, LoanContext{Self: self})
	require.True(t, res.Success, "err: %v", res.Err)
	assert.Equal(t, int64(5), got.Int64())
	assert.Equal(t, []byte{0x01}, res.ReturnData)
	assert.Equal(t, int64(5), book.BalanceOf(domain.NativeAsset, custom).Int64())
}

func TestExecutor_UnknownTargetAndKind(t *testing.T) {
	exec, _, _ := newTestExecutor(t)
	ctx := context.Background()

	res := exec.Execute(ctx, 0, domain.Action{Kind: domain.ActionLend, Target: custom}, LoanContext{Self: self})
	assert.ErrorIs(t, res.Err, ErrUnknownTarget)

	res = exec.Execute(ctx, 0, domain.Action{Kind: domain.ActionKind(99), Target: custom}, LoanContext{Self: self})
	assert.False(t, res.Success)
	assert.Equal(t, domain.KindActionFailure, domain.KindOf(res.Err))
}

func TestGasModel_EstimateStrategy(t *testing.T) {
	m := DefaultGasModel()
	actions := []domain.Action{{Kind: domain.ActionSwap}, {Kind: domain.ActionSwap}}
	want := uint64(TxBaseGas + FlashLoanGas + FlashLoanAssetGas + 2*150_000)
	if got := m.EstimateStrategy(actions, 1); got != want {
		t.Fatalf("EstimateStrategy = %d, want %d", got, want)
	}
}
