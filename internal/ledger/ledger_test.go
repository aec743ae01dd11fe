package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/storage/memory"
)

var (
	user  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	asset = common.HexToAddress("0x00000000000000000000000000000000000000a5")
)

func TestLedger_CreditMonotonic(t *testing.T) {
	l := New(memory.NewProfitStore(), nil)
	ctx := context.Background()

	require.NoError(t, l.Credit(ctx, user, asset, big.NewInt(45)))
	require.NoError(t, l.Credit(ctx, user, asset, big.NewInt(0)))
	require.NoError(t, l.Credit(ctx, user, asset, big.NewInt(5)))

	total, err := l.TotalProfit(ctx, asset)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total.Int64())

	up, err := l.UserProfit(ctx, user, asset)
	require.NoError(t, err)
	assert.Equal(t, int64(50), up.Int64())
}

func TestLedger_RejectsNegative(t *testing.T) {
	l := New(memory.NewProfitStore(), nil)
	ctx := context.Background()

	err := l.Credit(ctx, user, asset, big.NewInt(-1))
	assert.ErrorIs(t, err, ErrNegativeCredit)
	assert.ErrorIs(t, l.Credit(ctx, user, asset, nil), ErrNegativeCredit)

	total, _ := l.TotalProfit(ctx, asset)
	assert.Equal(t, int64(0), total.Int64())
}

func TestLedger_CreditAllPerStrategy(t *testing.T) {
	l := New(memory.NewProfitStore(), nil)
	ctx := context.Background()
	other := common.HexToAddress("0x00000000000000000000000000000000000000a6")

	require.NoError(t, l.CreditAll(ctx, []Credit{
		{StrategyID: 7, User: user, Asset: asset, Amount: big.NewInt(3)},
		{StrategyID: 7, User: user, Asset: other, Amount: big.NewInt(4)},
	}))

	got, err := l.StrategyUserProfit(ctx, 7, user, other)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.Int64())

	none, _ := l.StrategyUserProfit(ctx, 8, user, other)
	assert.Equal(t, int64(0), none.Int64())
}
