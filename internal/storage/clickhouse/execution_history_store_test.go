package clickhouse

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashloan-executor/internal/domain"
	"flashloan-executor/internal/storage"
)

var (
	executorA = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	executorB = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	assetA    = common.HexToAddress("0x000000000000000000000000000000000000aaaa")
)

func createTestResult(id string, strategyID uint64, executor common.Address, ts int64, nonce uint64, profit string) *domain.ExecutionResult {
	return &domain.ExecutionResult{
		ID:         id,
		StrategyID: strategyID,
		Executor:   executor,
		Nonce:      nonce,
		Status:     domain.ExecutionSuccess,
		GasUsed:    100_000,
		ProfitUSD:  decimal.RequireFromString(profit),
		AssetProfits: []domain.AssetProfit{
			{Asset: assetA, Amount: big.NewInt(42)},
		},
		Timestamp: ts,
	}
}

func TestExecutionHistoryStore_InsertAndGet(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewExecutionHistoryStore(conn)

	r := createTestResult("0x01", 1, executorA, 100, 1, "0.45")
	require.NoError(t, store.Insert(ctx, r))
	assert.ErrorIs(t, store.Insert(ctx, r), storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "0x01")
	require.NoError(t, err)
	assert.Equal(t, r.StrategyID, got.StrategyID)
	assert.Equal(t, r.Executor, got.Executor)
	assert.Equal(t, r.Status, got.Status)
	assert.True(t, r.ProfitUSD.Equal(got.ProfitUSD))
	require.Len(t, got.AssetProfits, 1)
	assert.Equal(t, int64(42), got.AssetProfits[0].Amount.Int64())

	_, err = store.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestExecutionHistoryStore_OrderingAndStats(t *testing.T) {
	conn := setupTestDB(t)

	ctx := context.Background()
	store := NewExecutionHistoryStore(conn)

	failed := createTestResult("0x03", 1, executorB, 150, 2, "0")
	failed.Status = domain.ExecutionFailed
	failed.FailureKind = domain.KindProfitShortfall
	failed.AssetProfits = nil
	failed.GasUsed = 50_000

	require.NoError(t, store.Insert(ctx, createTestResult("0x01", 1, executorA, 200, 3, "1.5")))
	require.NoError(t, store.Insert(ctx, failed))
	require.NoError(t, store.Insert(ctx, createTestResult("0x02", 1, executorA, 100, 1, "0.25")))
	require.NoError(t, store.Insert(ctx, createTestResult("0x04", 2, executorA, 50, 4, "9")))

	results, err := store.GetByStrategyID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "0x02", results[0].ID)
	assert.Equal(t, "0x03", results[1].ID)
	assert.Equal(t, "0x01", results[2].ID)
	assert.Equal(t, domain.KindProfitShortfall, results[1].FailureKind)

	byExecutor, err := store.GetByExecutor(ctx, executorA)
	require.NoError(t, err)
	assert.Len(t, byExecutor, 3)

	stats, err := store.GetStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), stats.Attempts)
	assert.Equal(t, uint64(2), stats.Successes)
	assert.True(t, decimal.RequireFromString("1.75").Equal(stats.TotalProfitUSD))
	assert.Equal(t, uint64(250_000), stats.TotalGasUsed)
	assert.Equal(t, int64(200), stats.LastExecution)

	empty, err := store.GetStats(ctx, 77)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), empty.Attempts)
}
