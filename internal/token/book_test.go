package token

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	assetA = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	pool   = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

func TestBook_TransferAndBalance(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(100)))
	require.NoError(t, b.Transfer(assetA, alice, bob, big.NewInt(40)))

	assert.Equal(t, int64(60), b.BalanceOf(assetA, alice).Int64())
	assert.Equal(t, int64(40), b.BalanceOf(assetA, bob).Int64())

	err := b.Transfer(assetA, bob, alice, big.NewInt(41))
	assert.True(t, errors.Is(err, ErrInsufficientBalance))
	assert.Equal(t, int64(40), b.BalanceOf(assetA, bob).Int64())
}

func TestBook_RejectsNonPositiveAmounts(t *testing.T) {
	b := NewBook()
	assert.ErrorIs(t, b.Mint(assetA, alice, big.NewInt(0)), ErrInvalidAmount)
	assert.ErrorIs(t, b.Transfer(assetA, alice, bob, nil), ErrInvalidAmount)
	assert.ErrorIs(t, b.Approve(assetA, alice, bob, big.NewInt(-1)), ErrInvalidAmount)
}

func TestBook_TransferFromConsumesAllowance(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(100)))
	require.NoError(t, b.Approve(assetA, alice, pool, big.NewInt(30)))

	require.NoError(t, b.TransferFrom(assetA, pool, alice, pool, big.NewInt(20)))
	assert.Equal(t, int64(10), b.Allowance(assetA, alice, pool).Int64())

	err := b.TransferFrom(assetA, pool, alice, pool, big.NewInt(11))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, int64(80), b.BalanceOf(assetA, alice).Int64())
}

func TestBook_RevertToSnapshot(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(100)))

	snap := b.Snapshot()
	require.NoError(t, b.Transfer(assetA, alice, bob, big.NewInt(70)))
	require.NoError(t, b.Approve(assetA, bob, pool, big.NewInt(5)))
	require.NoError(t, b.Mint(assetA, pool, big.NewInt(1)))

	require.NoError(t, b.RevertToSnapshot(snap))

	assert.Equal(t, int64(100), b.BalanceOf(assetA, alice).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(assetA, bob).Int64())
	assert.Equal(t, int64(0), b.BalanceOf(assetA, pool).Int64())
	assert.Equal(t, int64(0), b.Allowance(assetA, bob, pool).Int64())
	assert.Empty(t, b.Holdings(assetA)[bob])
}

func TestBook_NestedSnapshots(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(100)))

	outer := b.Snapshot()
	require.NoError(t, b.Transfer(assetA, alice, bob, big.NewInt(10)))
	inner := b.Snapshot()
	require.NoError(t, b.Transfer(assetA, alice, bob, big.NewInt(10)))

	require.NoError(t, b.RevertToSnapshot(inner))
	assert.Equal(t, int64(10), b.BalanceOf(assetA, bob).Int64())

	// inner is gone once reverted
	assert.ErrorIs(t, b.RevertToSnapshot(inner), ErrUnknownSnapshot)

	require.NoError(t, b.RevertToSnapshot(outer))
	assert.Equal(t, int64(0), b.BalanceOf(assetA, bob).Int64())
}

func TestBook_CommitKeepsChanges(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(100)))

	snap := b.Snapshot()
	require.NoError(t, b.Transfer(assetA, alice, bob, big.NewInt(25)))
	require.NoError(t, b.Commit(snap))

	assert.Equal(t, int64(25), b.BalanceOf(assetA, bob).Int64())
	assert.ErrorIs(t, b.RevertToSnapshot(snap), ErrUnknownSnapshot)
	assert.Empty(t, b.journal)
}

func TestBook_BalanceOfReturnsCopy(t *testing.T) {
	b := NewBook()
	require.NoError(t, b.Mint(assetA, alice, big.NewInt(5)))

	v := b.BalanceOf(assetA, alice)
	v.SetInt64(1000)

	assert.Equal(t, int64(5), b.BalanceOf(assetA, alice).Int64())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Metadata{Address: assetA, Symbol: "WETH", Decimals: 18})

	d, err := r.Decimals(assetA)
	require.NoError(t, err)
	assert.Equal(t, uint8(18), d)

	m, err := r.BySymbol("weth")
	require.NoError(t, err)
	assert.Equal(t, assetA, m.Address)

	_, err = r.Get(bob)
	assert.ErrorIs(t, err, ErrUnknownToken)

	assert.Error(t, r.Register(Metadata{Address: bob}))
}
