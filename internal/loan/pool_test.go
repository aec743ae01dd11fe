package loan

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/token"
)

var (
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	recvAddr = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	assetA   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	assetB   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

// receiverFunc adapts a function to Receiver.
type receiverFunc func(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error)

func (f receiverFunc) OnLoanGranted(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, initiator common.Address, params []byte) (bool, error) {
	return f(ctx, caller, assets, amounts, premiums, initiator, params)
}

func newPool(t *testing.T, premiumBps uint32) (*Pool, *token.Book) {
	t.Helper()
	book := token.NewBook()
	p := NewPool(poolAddr, book, premiumBps, nil)
	require.NoError(t, p.Fund(assetA, big.NewInt(1_000_000)))
	require.NoError(t, p.Fund(assetB, big.NewInt(1_000_000)))
	return p, book
}

// repaying approves principal + premium plus a fixed tip, funded by minting.
func repaying(book *token.Book, tip int64) Receiver {
	return receiverFunc(func(_ context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, _ common.Address, _ []byte) (bool, error) {
		for i, a := range assets {
			owed := new(big.Int).Add(amounts[i], premiums[i])
			if err := book.Mint(a, recvAddr, big.NewInt(tip+premiums[i].Int64())); err != nil {
				return false, err
			}
			if err := book.Approve(a, recvAddr, caller, owed); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

func TestPool_Premium(t *testing.T) {
	p, _ := newPool(t, 5)
	tests := []struct {
		amount int64
		want   int64
	}{
		{10_000, 5},
		{1_000, 1}, // 0.5 rounds up
		{999, 0},   // 0.4995 rounds down
		{0, 0},
	}
	for _, tt := range tests {
		if got := p.Premium(big.NewInt(tt.amount)).Int64(); got != tt.want {
			t.Errorf("Premium(%d) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

func TestPool_FlashLoanRepaid(t *testing.T) {
	p, book := newPool(t, 50)
	initiator := common.HexToAddress("0x00000000000000000000000000000000000000c1")

	var gotInitiator common.Address
	var gotParams []byte
	recv := receiverFunc(func(ctx context.Context, caller common.Address, assets []common.Address, amounts, premiums []*big.Int, init common.Address, params []byte) (bool, error) {
		gotInitiator, gotParams = init, params
		assert.Equal(t, poolAddr, caller)
		assert.Equal(t, int64(1000), book.BalanceOf(assetA, recvAddr).Int64())
		assert.Equal(t, int64(5), premiums[0].Int64())
		return repaying(book, 0).OnLoanGranted(ctx, caller, assets, amounts, premiums, init, params)
	})

	err := p.FlashLoan(context.Background(), initiator, Request{
		Assets:          []common.Address{assetA},
		Amounts:         []*big.Int{big.NewInt(1000)},
		Params:          []byte{0xaa},
		Receiver:        recv,
		ReceiverAddress: recvAddr,
	})
	require.NoError(t, err)
	assert.Equal(t, initiator, gotInitiator)
	assert.Equal(t, []byte{0xaa}, gotParams)
	assert.Equal(t, int64(1_000_005), p.Liquidity(assetA).Int64())
	assert.Equal(t, int64(0), book.BalanceOf(assetA, recvAddr).Int64())
}

func TestPool_FailuresVoidTheLoan(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		recv func(*token.Book) Receiver
		want error
	}{
		{"callback error", func(*token.Book) Receiver {
			return receiverFunc(func(context.Context, common.Address, []common.Address, []*big.Int, []*big.Int, common.Address, []byte) (bool, error) {
				return false, boom
			})
		}, boom},
		{"callback declined", func(*token.Book) Receiver {
			return receiverFunc(func(context.Context, common.Address, []common.Address, []*big.Int, []*big.Int, common.Address, []byte) (bool, error) {
				return false, nil
			})
		}, ErrCallbackDeclined},
		{"no approval", func(*token.Book) Receiver {
			return receiverFunc(func(context.Context, common.Address, []common.Address, []*big.Int, []*big.Int, common.Address, []byte) (bool, error) {
				return true, nil
			})
		}, ErrRepaymentFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, book := newPool(t, 5)
			err := p.FlashLoan(context.Background(), recvAddr, Request{
				Assets:          []common.Address{assetA, assetB},
				Amounts:         []*big.Int{big.NewInt(100), big.NewInt(200)},
				Receiver:        tt.recv(book),
				ReceiverAddress: recvAddr,
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, int64(1_000_000), p.Liquidity(assetA).Int64())
			assert.Equal(t, int64(1_000_000), p.Liquidity(assetB).Int64())
			assert.Equal(t, int64(0), book.BalanceOf(assetA, recvAddr).Int64())
		})
	}
}

func TestPool_RejectsBadRequests(t *testing.T) {
	p, book := newPool(t, 5)
	recv := repaying(book, 0)
	one := []*big.Int{big.NewInt(1)}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no assets", Request{Receiver: recv, ReceiverAddress: recvAddr}, ErrInvalidRequest},
		{"length mismatch", Request{Assets: []common.Address{assetA, assetB}, Amounts: one, Receiver: recv, ReceiverAddress: recvAddr}, ErrInvalidRequest},
		{"duplicate", Request{Assets: []common.Address{assetA, assetA}, Amounts: []*big.Int{big.NewInt(1), big.NewInt(1)}, Receiver: recv, ReceiverAddress: recvAddr}, ErrInvalidRequest},
		{"zero amount", Request{Assets: []common.Address{assetA}, Amounts: []*big.Int{big.NewInt(0)}, Receiver: recv, ReceiverAddress: recvAddr}, ErrInvalidRequest},
		{"debt mode", Request{Assets: []common.Address{assetA}, Amounts: one, Modes: []uint8{2}, Receiver: recv, ReceiverAddress: recvAddr}, ErrUnsupportedMode},
		{"no receiver", Request{Assets: []common.Address{assetA}, Amounts: one}, ErrInvalidRequest},
		{"too large", Request{Assets: []common.Address{assetA}, Amounts: []*big.Int{big.NewInt(2_000_000)}, Receiver: recv, ReceiverAddress: recvAddr}, ErrInsufficientLiquidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.FlashLoan(context.Background(), recvAddr, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.True(t, p.Available(assetA, big.NewInt(1_000_000)))
	assert.False(t, p.Available(assetA, big.NewInt(1_000_001)))
}
